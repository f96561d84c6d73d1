package testutil

import (
	"encoding/base64"
	"testing"

	"github.com/vdavid/mailkit/internal/crypto"
)

// EncryptionKey returns a deterministic base64 AES-256 key for tests.
func EncryptionKey() string {
	key := make([]byte, crypto.KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	return base64.StdEncoding.EncodeToString(key)
}

// SealPassword seals password with EncryptionKey, as a config file would store it.
func SealPassword(t *testing.T, password string) string {
	t.Helper()

	sealer, err := crypto.NewPasswordSealer(EncryptionKey())
	if err != nil {
		t.Fatalf("Failed to create sealer: %v", err)
	}
	sealed, err := sealer.Seal(password)
	if err != nil {
		t.Fatalf("Failed to seal password: %v", err)
	}
	return sealed
}
