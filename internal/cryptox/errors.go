package cryptox

import (
	"errors"
	"fmt"
)

var (
	// ErrKeyNotConfigured means the key provider has no key to hand out.
	ErrKeyNotConfigured = errors.New("encryption key is not configured")

	// ErrInvalidKeyEncoding means the configured key is not valid base64.
	ErrInvalidKeyEncoding = errors.New("invalid base64 encoding")

	ErrEmptyPlaintext = errors.New("cannot encrypt empty plaintext")

	// ErrInvalidEncryptedData is returned when a blob field is missing.
	ErrInvalidEncryptedData = errors.New("invalid encrypted data")

	// ErrIntegrityCheckFailed is returned when the authentication tag does
	// not verify: the blob was modified or was sealed under another key.
	ErrIntegrityCheckFailed = errors.New("integrity check failed - possible tampering")
)

// ErrInvalidKeySize indicates the decoded key has the wrong length.
type ErrInvalidKeySize struct {
	Expected int
	Actual   int
}

func (e *ErrInvalidKeySize) Error() string {
	return fmt.Sprintf("invalid key size: expected %d bytes, got %d bytes", e.Expected, e.Actual)
}

// ErrEncryptionFailed wraps any failure inside Encrypt.
type ErrEncryptionFailed struct {
	Cause error
}

func (e *ErrEncryptionFailed) Error() string {
	return fmt.Sprintf("encryption failed: %v", e.Cause)
}

func (e *ErrEncryptionFailed) Unwrap() error {
	return e.Cause
}

// ErrDecryptionFailed wraps malformed-input and configuration failures
// inside Decrypt. Tag mismatches are reported as ErrIntegrityCheckFailed instead.
type ErrDecryptionFailed struct {
	Cause error
}

func (e *ErrDecryptionFailed) Error() string {
	return fmt.Sprintf("decryption failed: %v", e.Cause)
}

func (e *ErrDecryptionFailed) Unwrap() error {
	return e.Cause
}
