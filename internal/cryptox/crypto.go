// Package cryptox protects cloud credentials at rest with AES-256-GCM.
//
// Every Encrypt call draws a fresh 16-byte IV, so sealing the same plaintext
// twice never yields the same ciphertext, IV or tag. The key is pulled from a
// KeyProvider on every call and is never cached inside the Cipher.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"

	"github.com/dmitrijs2005/cloudwarden/internal/shared"
)

const (
	KeySize = 32
	IVSize  = 16
	TagSize = 16
)

// EncryptedBlob is one sealed secret. All fields are standard base64.
type EncryptedBlob struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	AuthTag    string `json:"authTag"`
}

// IsZero reports whether the blob carries nothing at all.
func (b EncryptedBlob) IsZero() bool {
	return b.Ciphertext == "" && b.IV == "" && b.AuthTag == ""
}

// Cipher seals and opens credential strings. It holds no state besides the
// key provider and is safe for concurrent use.
type Cipher struct {
	keys KeyProvider
}

func NewCipher(keys KeyProvider) *Cipher {
	return &Cipher{keys: keys}
}

func (c *Cipher) aead() (cipher.AEAD, error) {
	key, err := decodeKey(c.keys)
	if err != nil {
		return nil, err
	}
	defer shared.WipeByteArray(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Encrypt seals plaintext under the configured key.
//
// A new random 16-byte IV is generated for each call. The 16-byte GCM
// authentication tag is split off the sealed output and returned separately,
// so the blob maps onto three storage columns.
//
// Errors:
//   - ErrEmptyPlaintext if plaintext is "".
//   - *ErrEncryptionFailed wrapping the cause (missing key, wrong key size,
//     randomness failure). Its message always starts with "encryption failed: ".
//
// Example:
//
//	c := cryptox.NewCipher(cryptox.NewEnvKeyProvider(""))
//	blob, err := c.Encrypt(`{"accessKeyId":"AKIA...","secretAccessKey":"..."}`)
//	if err != nil {
//	    return err
//	}
//	account.Credentials = blob
func (c *Cipher) Encrypt(plaintext string) (EncryptedBlob, error) {
	if plaintext == "" {
		return EncryptedBlob{}, ErrEmptyPlaintext
	}

	gcm, err := c.aead()
	if err != nil {
		return EncryptedBlob{}, &ErrEncryptionFailed{Cause: err}
	}

	iv, err := shared.GenerateRandByteArray(IVSize)
	if err != nil {
		return EncryptedBlob{}, &ErrEncryptionFailed{Cause: err}
	}

	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	split := len(sealed) - TagSize

	return EncryptedBlob{
		Ciphertext: base64.StdEncoding.EncodeToString(sealed[:split]),
		IV:         base64.StdEncoding.EncodeToString(iv),
		AuthTag:    base64.StdEncoding.EncodeToString(sealed[split:]),
	}, nil
}

// Decrypt opens a blob produced by Encrypt.
//
// The three failure classes are kept apart so callers can tell a caller bug
// from an attack:
//   - ErrInvalidEncryptedData when any blob field is empty.
//   - *ErrDecryptionFailed ("decryption failed: <reason>") for bad base64,
//     a wrong IV or tag length, or a key configuration problem.
//   - ErrIntegrityCheckFailed when the tag does not verify.
//
// Plaintext is only returned after the tag has been verified.
func (c *Cipher) Decrypt(blob EncryptedBlob) (string, error) {
	if blob.Ciphertext == "" || blob.IV == "" || blob.AuthTag == "" {
		return "", ErrInvalidEncryptedData
	}

	ciphertext, err := base64.StdEncoding.DecodeString(blob.Ciphertext)
	if err != nil {
		return "", &ErrDecryptionFailed{Cause: fmt.Errorf("ciphertext: %w", err)}
	}
	iv, err := base64.StdEncoding.DecodeString(blob.IV)
	if err != nil {
		return "", &ErrDecryptionFailed{Cause: fmt.Errorf("iv: %w", err)}
	}
	if len(iv) != IVSize {
		return "", &ErrDecryptionFailed{Cause: fmt.Errorf("iv must be %d bytes, got %d", IVSize, len(iv))}
	}
	tag, err := base64.StdEncoding.DecodeString(blob.AuthTag)
	if err != nil {
		return "", &ErrDecryptionFailed{Cause: fmt.Errorf("auth tag: %w", err)}
	}
	if len(tag) != TagSize {
		return "", &ErrDecryptionFailed{Cause: fmt.Errorf("auth tag must be %d bytes, got %d", TagSize, len(tag))}
	}

	gcm, err := c.aead()
	if err != nil {
		return "", &ErrDecryptionFailed{Cause: err}
	}

	// GCM verifies the tag before releasing any plaintext.
	sealed := make([]byte, 0, len(ciphertext)+TagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", ErrIntegrityCheckFailed
	}
	return string(plaintext), nil
}

// EncryptFields seals each non-empty value independently. Empty values are
// left out of the result.
func (c *Cipher) EncryptFields(fields map[string]string) (map[string]EncryptedBlob, error) {
	out := make(map[string]EncryptedBlob, len(fields))
	for name, value := range fields {
		if value == "" {
			continue
		}
		blob, err := c.Encrypt(value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		out[name] = blob
	}
	return out, nil
}

// DecryptFields opens each non-empty blob independently. Zero blobs are
// skipped.
func (c *Cipher) DecryptFields(blobs map[string]EncryptedBlob) (map[string]string, error) {
	out := make(map[string]string, len(blobs))
	for name, blob := range blobs {
		if blob.IsZero() {
			continue
		}
		value, err := c.Decrypt(blob)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		out[name] = value
	}
	return out, nil
}
