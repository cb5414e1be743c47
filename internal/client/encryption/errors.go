package encryption

import "errors"

var (
	// ErrEncryptionUnavailable encryption is enabled but no key material is installed.
	// Payloads are never uploaded in plain text as a fallback.
	ErrEncryptionUnavailable = errors.New("encryption enabled but no key material available")

	// ErrDecryptionFailed wrong password or corrupted payload
	ErrDecryptionFailed = errors.New("failed to decrypt payload: wrong password or corrupted data")

	// ErrWrongPassword password does not match the stored key fingerprint
	ErrWrongPassword = errors.New("password does not match stored key material")
)
