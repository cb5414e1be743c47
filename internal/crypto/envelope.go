package crypto

import (
	"errors"
	"fmt"
)

// EnvelopeVersion версия формата зашифрованного payload
const EnvelopeVersion byte = 1

// ErrInvalidEnvelope payload не является конвертом известного формата
var ErrInvalidEnvelope = errors.New("invalid encrypted envelope")

// Seal шифрует payload и упаковывает его в конверт:
// version (1 byte) + salt (16 bytes) + nonce (12 bytes) + ciphertext + auth_tag.
// Соль передается вместе с данными, чтобы другое устройство с тем же паролем
// могло вывести тот же ключ.
func Seal(plaintext, key, salt []byte) ([]byte, error) {
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("salt must be %d bytes, got %d", SaltSize, len(salt))
	}

	body, err := Encrypt(plaintext, key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 1+SaltSize+len(body))
	out = append(out, EnvelopeVersion)
	out = append(out, salt...)
	out = append(out, body...)
	return out, nil
}

// EnvelopeSalt извлекает соль из конверта без расшифровки
func EnvelopeSalt(envelope []byte) ([]byte, error) {
	if len(envelope) < 1+SaltSize+NonceSize+TagSize {
		return nil, fmt.Errorf("envelope too short (%d bytes): %w", len(envelope), ErrInvalidEnvelope)
	}
	if envelope[0] != EnvelopeVersion {
		return nil, fmt.Errorf("unsupported envelope version %d: %w", envelope[0], ErrInvalidEnvelope)
	}
	return envelope[1 : 1+SaltSize], nil
}

// Open расшифровывает конверт ключом, выведенным из соли этого конверта
func Open(envelope, key []byte) ([]byte, error) {
	if _, err := EnvelopeSalt(envelope); err != nil {
		return nil, err
	}
	return Decrypt(envelope[1+SaltSize:], key)
}
