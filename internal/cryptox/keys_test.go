package cryptox

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateEncryptionKey(t *testing.T) {
	good, err := GenerateKey()
	require.NoError(t, err)

	tests := []struct {
		name      string
		candidate string
		valid     bool
		errText   string
	}{
		{"generated key", good, true, ""},
		{"not base64", "this is not base64!", false, "invalid base64 encoding"},
		{"16 bytes", base64.StdEncoding.EncodeToString(make([]byte, 16)), false, "key must be 32 bytes, got 16"},
		{"33 bytes", base64.StdEncoding.EncodeToString(make([]byte, 33)), false, "key must be 32 bytes, got 33"},
		{"empty", "", false, "key must be 32 bytes, got 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateEncryptionKey(tt.candidate)
			assert.Equal(t, tt.valid, got.Valid)
			assert.Equal(t, tt.errText, got.Error)
		})
	}
}

func TestEnvKeyProvider_ReadsOnEveryCall(t *testing.T) {
	const name = "CLOUDWARDEN_TEST_KEY"
	p := NewEnvKeyProvider(name)
	c := NewCipher(p)

	t.Setenv(name, "")
	_, err := c.Encrypt("x")
	require.ErrorIs(t, err, ErrKeyNotConfigured)
	assert.Contains(t, err.Error(), name)

	k, err := GenerateKey()
	require.NoError(t, err)
	t.Setenv(name, k)

	blob, err := c.Encrypt("x")
	require.NoError(t, err)

	other, err := GenerateKey()
	require.NoError(t, err)
	t.Setenv(name, other)

	_, err = c.Decrypt(blob)
	assert.ErrorIs(t, err, ErrIntegrityCheckFailed, "rotated key must be picked up")
}

func TestNewEnvKeyProvider_DefaultName(t *testing.T) {
	p := NewEnvKeyProvider("")
	assert.Equal(t, DefaultKeyEnvVar, p.name)
}

func TestGenerateKey_Valid(t *testing.T) {
	k, err := GenerateKey()
	require.NoError(t, err)
	assert.True(t, ValidateEncryptionKey(k).Valid)
}

func TestDeriveKey_Deterministic(t *testing.T) {
	password := []byte("secret-password")
	salt := []byte("fixed-salt")

	key1 := DeriveKey(password, salt)
	key2 := DeriveKey(password, salt)

	if !bytes.Equal(key1, key2) {
		t.Errorf("expected same result for same inputs, got different")
	}

	expectedHex := "34f7a1c64df63ab1ad5b5ee06e64db5713b35f81839823304db63e8e5e6a6a39"
	if hex.EncodeToString(key1) != expectedHex {
		t.Errorf("expected %s, got %s", expectedHex, hex.EncodeToString(key1))
	}
}

func TestDeriveKey_DifferentSalts(t *testing.T) {
	password := []byte("secret-password")

	key1 := DeriveKey(password, []byte("salt-1"))
	key2 := DeriveKey(password, []byte("salt-2"))

	if bytes.Equal(key1, key2) {
		t.Errorf("expected different results for different salts, got same")
	}
	if len(key1) != KeySize {
		t.Errorf("expected %d bytes, got %d", KeySize, len(key1))
	}
}
