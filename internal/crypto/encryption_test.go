package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(seed byte) string {
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = seed + byte(i)
	}
	return base64.StdEncoding.EncodeToString(key)
}

func TestNewPasswordSealer(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{name: "valid 32-byte key", key: testKey(0)},
		{name: "invalid base64", key: "not-valid-base64!!!", wantErr: true},
		{name: "wrong key length", key: base64.StdEncoding.EncodeToString(make([]byte, 16)), wantErr: true},
		{name: "empty key", key: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewPasswordSealer(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, s)
		})
	}
}

func TestSealOpen(t *testing.T) {
	s, err := NewPasswordSealer(testKey(0))
	require.NoError(t, err)

	tests := []struct {
		name     string
		password string
	}{
		{"simple password", "mypassword123"},
		{"complex password", "P@ssw0rd!#$%^&*()"},
		{"empty string", ""},
		{"unicode", "пароль密码🔐"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealed, err := s.Seal(tt.password)
			require.NoError(t, err)
			assert.NotEqual(t, tt.password, sealed)

			opened, err := s.Open(sealed)
			require.NoError(t, err)
			assert.Equal(t, tt.password, opened)
		})
	}
}

func TestSeal_FreshNonce(t *testing.T) {
	s, err := NewPasswordSealer(testKey(0))
	require.NoError(t, err)

	first, err := s.Seal("same")
	require.NoError(t, err)
	second, err := s.Seal("same")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestOpen_Invalid(t *testing.T) {
	s, err := NewPasswordSealer(testKey(0))
	require.NoError(t, err)
	other, err := NewPasswordSealer(testKey(100))
	require.NoError(t, err)

	sealed, err := s.Seal("secret")
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(sealed)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	tampered := base64.StdEncoding.EncodeToString(raw)

	tests := []struct {
		name   string
		sealer *PasswordSealer
		sealed string
	}{
		{name: "not base64", sealer: s, sealed: "%%%"},
		{name: "too short", sealer: s, sealed: base64.StdEncoding.EncodeToString([]byte("short"))},
		{name: "tampered", sealer: s, sealed: tampered},
		{name: "other key", sealer: other, sealed: sealed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.sealer.Open(tt.sealed)
			assert.Error(t, err)
		})
	}
}
