package cryptox

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/dmitrijs2005/cloudwarden/internal/shared"
	"golang.org/x/crypto/argon2"
)

// DefaultKeyEnvVar is the environment variable read by EnvKeyProvider when
// no other name is configured.
const DefaultKeyEnvVar = "CREDENTIAL_ENCRYPTION_KEY"

// KeyProvider hands out the base64-encoded AES-256 key. It is consulted on
// every Cipher call, so rotating or removing the key takes effect immediately.
type KeyProvider interface {
	EncryptionKey() (string, error)
}

// EnvKeyProvider reads the key from an environment variable on every call.
type EnvKeyProvider struct {
	name   string
	lookup func(string) (string, bool)
}

func NewEnvKeyProvider(name string) *EnvKeyProvider {
	if name == "" {
		name = DefaultKeyEnvVar
	}
	return &EnvKeyProvider{name: name, lookup: os.LookupEnv}
}

func (p *EnvKeyProvider) EncryptionKey() (string, error) {
	v, ok := p.lookup(p.name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("%w: %s is not set", ErrKeyNotConfigured, p.name)
	}
	return v, nil
}

// StaticKeyProvider always returns the same key.
type StaticKeyProvider string

func (k StaticKeyProvider) EncryptionKey() (string, error) {
	if k == "" {
		return "", ErrKeyNotConfigured
	}
	return string(k), nil
}

// decodeKey turns the provider's text into raw key bytes. The caller owns the
// returned slice and should wipe it.
func decodeKey(kp KeyProvider) ([]byte, error) {
	if kp == nil {
		return nil, ErrKeyNotConfigured
	}
	encoded, err := kp.EncryptionKey()
	if err != nil {
		return nil, err
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyEncoding, err)
	}
	if len(key) != KeySize {
		shared.WipeByteArray(key)
		return nil, &ErrInvalidKeySize{Expected: KeySize, Actual: len(key)}
	}
	return key, nil
}

// KeyValidation is the outcome of ValidateEncryptionKey.
type KeyValidation struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// ValidateEncryptionKey checks a candidate key without side effects: it must
// be standard base64 decoding to exactly 32 bytes.
func ValidateEncryptionKey(candidate string) KeyValidation {
	key, err := base64.StdEncoding.DecodeString(candidate)
	if err != nil {
		return KeyValidation{Error: "invalid base64 encoding"}
	}
	defer shared.WipeByteArray(key)

	if len(key) != KeySize {
		return KeyValidation{Error: fmt.Sprintf("key must be %d bytes, got %d", KeySize, len(key))}
	}
	return KeyValidation{Valid: true}
}

// GenerateKey returns a fresh random key in the format KeyProvider expects.
func GenerateKey() (string, error) {
	key, err := shared.GenerateRandByteArray(KeySize)
	if err != nil {
		return "", err
	}
	defer shared.WipeByteArray(key)
	return base64.StdEncoding.EncodeToString(key), nil
}

// DeriveKey stretches a passphrase into a 32-byte key with argon2id.
// The same passphrase and salt always produce the same key.
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, KeySize)
}
