package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Параметры Argon2id по умолчанию
const (
	// Argon2Time - количество итераций (time cost)
	Argon2Time = 1
	// Argon2Memory - объем памяти в KB (64MB = 64*1024 KB)
	Argon2Memory = 64 * 1024
	// Argon2Threads - количество параллельных потоков
	Argon2Threads = 4
	// KeySize - длина выходного ключа в байтах (AES-256)
	KeySize = 32
	// SaltSize - размер соли в байтах
	SaltSize = 16
)

// KDFParams параметры деривации ключа из пароля
type KDFParams struct {
	Time    uint32
	Memory  uint32
	Threads uint8
}

// DefaultKDFParams возвращает параметры Argon2id для продакшена
func DefaultKDFParams() KDFParams {
	return KDFParams{
		Time:    Argon2Time,
		Memory:  Argon2Memory,
		Threads: Argon2Threads,
	}
}

// GenerateSalt генерирует криптографически случайную соль
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKey генерирует ключ шифрования из пароля и соли с помощью Argon2id
func DeriveKey(password string, salt []byte, params KDFParams) ([]byte, error) {
	if password == "" {
		return nil, fmt.Errorf("password cannot be empty")
	}
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("salt must be %d bytes, got %d", SaltSize, len(salt))
	}
	if params.Time == 0 || params.Memory == 0 || params.Threads == 0 {
		return nil, fmt.Errorf("invalid kdf params: %+v", params)
	}

	return argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Threads, KeySize), nil
}
