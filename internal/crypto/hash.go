package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// KeyFingerprint возвращает SHA256 отпечаток ключа (hex).
// Используется как ссылка на ключевой материал: сам ключ не сохраняется.
func KeyFingerprint(key []byte) string {
	if len(key) == 0 {
		return ""
	}
	hash := sha256.Sum256(key)
	return hex.EncodeToString(hash[:])
}
