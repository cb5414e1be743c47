package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testKDFParams облегченные параметры, чтобы тесты не тратили 64MB на каждую деривацию
var testKDFParams = KDFParams{Time: 1, Memory: 8 * 1024, Threads: 1}

func TestGenerateSalt(t *testing.T) {
	salt1, err := GenerateSalt()
	require.NoError(t, err)
	assert.Len(t, salt1, SaltSize, "salt должен быть %d bytes", SaltSize)

	salt2, err := GenerateSalt()
	require.NoError(t, err)
	assert.NotEqual(t, salt1, salt2, "соли должны различаться")
}

func TestDeriveKey(t *testing.T) {
	salt := make([]byte, SaltSize)
	for i := range salt {
		salt[i] = byte(i)
	}

	tests := []struct {
		name     string
		password string
		salt     []byte
		params   KDFParams
		wantErr  bool
	}{
		{
			name:     "successful key derivation",
			password: "super_secret_password_123",
			salt:     salt,
			params:   testKDFParams,
		},
		{
			name:     "empty password",
			password: "",
			salt:     salt,
			params:   testKDFParams,
			wantErr:  true,
		},
		{
			name:     "short salt",
			password: "pw",
			salt:     []byte("short"),
			params:   testKDFParams,
			wantErr:  true,
		},
		{
			name:     "zero params",
			password: "pw",
			salt:     salt,
			params:   KDFParams{},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := DeriveKey(tt.password, tt.salt, tt.params)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, key, KeySize)
		})
	}
}

func TestDeriveKey_Deterministic(t *testing.T) {
	salt, err := GenerateSalt()
	require.NoError(t, err)

	k1, err := DeriveKey("password", salt, testKDFParams)
	require.NoError(t, err)
	k2, err := DeriveKey("password", salt, testKDFParams)
	require.NoError(t, err)
	assert.Equal(t, k1, k2, "одинаковые входные данные дают одинаковый ключ")

	k3, err := DeriveKey("other", salt, testKDFParams)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)

	otherSalt, err := GenerateSalt()
	require.NoError(t, err)
	k4, err := DeriveKey("password", otherSalt, testKDFParams)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k4)
}

func TestKeyFingerprint(t *testing.T) {
	key := make([]byte, KeySize)
	fp := KeyFingerprint(key)
	assert.Len(t, fp, 64)
	assert.Equal(t, fp, KeyFingerprint(key))

	key[0] = 1
	assert.NotEqual(t, fp, KeyFingerprint(key))
	assert.Empty(t, KeyFingerprint(nil))
}
