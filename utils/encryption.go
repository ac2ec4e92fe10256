package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	kdfIterations = 100000
	kdfSalt       = "echoshop-2fa-secret-storage"

	// BackupCodeLength is the number of digits in a generated backup code
	BackupCodeLength = 8
)

// Encryptor seals two-factor secrets at rest with AES-256-GCM. The key is
// derived exactly once at construction, never per call.
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor derives the AES-256 key from the operator-configured secret
// via PBKDF2-SHA256 and a fixed application salt.
func NewEncryptor(secret string) (*Encryptor, error) {
	if secret == "" {
		return nil, fmt.Errorf("encryption secret is not set")
	}

	key := pbkdf2.Key([]byte(secret), []byte(kdfSalt), kdfIterations, 32, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher block: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Encryptor{aead: gcm}, nil
}

// Encrypt seals the plaintext with a fresh random IV and returns an
// iv:tag:ciphertext envelope, each part hex encoded.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("failed to generate IV: %w", err)
	}

	sealed := e.aead.Seal(nil, iv, []byte(plaintext), nil)

	// GCM appends the authentication tag to the ciphertext
	tagStart := len(sealed) - e.aead.Overhead()
	ciphertext, tag := sealed[:tagStart], sealed[tagStart:]

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ciphertext), nil
}

// Decrypt opens an iv:tag:ciphertext envelope. Any tampering, truncation or
// malformed envelope fails closed.
func (e *Encryptor) Decrypt(envelope string) (string, error) {
	parts := strings.Split(envelope, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("malformed envelope: expected 3 parts, got %d", len(parts))
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("malformed envelope IV: %w", err)
	}
	if len(iv) != e.aead.NonceSize() {
		return "", fmt.Errorf("malformed envelope: IV must be %d bytes, got %d", e.aead.NonceSize(), len(iv))
	}

	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("malformed envelope tag: %w", err)
	}

	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("malformed envelope ciphertext: %w", err)
	}

	plaintext, err := e.aead.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt data: %w", err)
	}

	return string(plaintext), nil
}

// GenerateBackupCode returns a cryptographically random 8-digit numeric code
// in the range 10000000 to 99999999 inclusive.
func GenerateBackupCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(90000000))
	if err != nil {
		return "", fmt.Errorf("failed to generate backup code: %w", err)
	}
	return fmt.Sprintf("%d", n.Int64()+10000000), nil
}
