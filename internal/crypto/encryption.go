// Package crypto seals and opens account passwords kept in configuration files.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

var errSealedTooShort = errors.New("sealed password is too short")

// PasswordSealer encrypts passwords with AES-GCM. A sealed password is the base64 encoding
// of [nonce][ciphertext][tag], so it can be stored as a single config value.
type PasswordSealer struct {
	aead cipher.AEAD
}

// NewPasswordSealer creates a sealer from a base64-encoded 32-byte key.
func NewPasswordSealer(base64Key string) (*PasswordSealer, error) {
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encryption key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d bytes", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &PasswordSealer{aead: aead}, nil
}

// Seal encrypts password with a fresh random nonce.
func (s *PasswordSealer) Seal(password string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := s.aead.Seal(nonce, nonce, []byte(password), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a password produced by Seal. It fails if the value was sealed with another
// key or was tampered with.
func (s *PasswordSealer) Open(sealed string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("failed to decode sealed password: %w", err)
	}

	n := s.aead.NonceSize()
	if len(data) < n+s.aead.Overhead() {
		return "", errSealedTooShort
	}

	password, err := s.aead.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt password: %w", err)
	}
	return string(password), nil
}
