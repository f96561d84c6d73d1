package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vdavid/mailkit/internal/testutil"
	"github.com/vdavid/mailkit/protocol"
)

// setEnv sets MAILKIT_ENV=test, so no .env file is read, plus the given variables.
func setEnv(t *testing.T, vars map[string]string) {
	t.Helper()
	t.Setenv("MAILKIT_ENV", "test")
	for k, v := range vars {
		t.Setenv(k, v)
	}
}

func TestNewConfig(t *testing.T) {
	setEnv(t, map[string]string{
		"MAILKIT_SMTP_HOST":      "smtp.test.com",
		"MAILKIT_SMTP_PORT":      "2525",
		"MAILKIT_SMTP_USERNAME":  "user",
		"MAILKIT_SMTP_PASSWORD":  "pass",
		"MAILKIT_SMTP_STARTTLS":  "true",
		"MAILKIT_STORE_PROTOCOL": "pop3s",
		"MAILKIT_STORE_HOST":     "pop.test.com",
		"MAILKIT_STORE_USERNAME": "user",
		"MAILKIT_STORE_PASSWORD": "pass",
		"MAILKIT_TIMEOUT":        "30",
		"MAILKIT_CHARSET":        "ISO-8859-1",
		"MAILKIT_LOG_LEVEL":      "debug",
	})

	config, err := NewConfig("")
	require.NoError(t, err)

	assert.Equal(t, "test", config.Environment)
	assert.Equal(t, Account{
		Protocol: protocol.SMTP,
		Host:     "smtp.test.com",
		Port:     2525,
		Username: "user",
		Password: "pass",
		StartTLS: true,
	}, config.SMTP)
	assert.Equal(t, Account{
		Protocol: protocol.POP3,
		Host:     "pop.test.com",
		Username: "user",
		Password: "pass",
		TLS:      true,
	}, config.Store)
	assert.Equal(t, 30, config.Timeout)
	assert.Equal(t, "ISO-8859-1", config.Charset)
	assert.Equal(t, logrus.DebugLevel, config.LogLevel)
}

func TestNewConfigWithDefaults(t *testing.T) {
	setEnv(t, map[string]string{"MAILKIT_STORE_HOST": "imap.test.com"})

	config, err := NewConfig("")
	require.NoError(t, err)

	assert.Equal(t, protocol.IMAP, config.Store.Protocol)
	assert.Equal(t, 0, config.Store.Port)
	assert.False(t, config.SMTP.Configured())
	assert.Equal(t, 10, config.Timeout)
	assert.Equal(t, logrus.InfoLevel, config.LogLevel)
}

func TestNewConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mailkit.yaml")
	content := "smtp:\n" +
		"  host: file.test.com\n" +
		"  port: 465\n" +
		"  tls: true\n" +
		"store:\n" +
		"  host: imap.test.com\n" +
		"timeout: 5\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	setEnv(t, map[string]string{"MAILKIT_SMTP_HOST": "env.test.com"})

	config, err := NewConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "env.test.com", config.SMTP.Host, "environment overrides the file")
	assert.Equal(t, 465, config.SMTP.Port)
	assert.True(t, config.SMTP.TLS)
	assert.Equal(t, "imap.test.com", config.Store.Host)
	assert.Equal(t, 5, config.Timeout)

	t.Run("missing file", func(t *testing.T) {
		_, err := NewConfig(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})
}

func TestNewConfig_EncryptedPasswords(t *testing.T) {
	sealed := testutil.SealPassword(t, "s3cret")

	t.Run("decrypts with the key", func(t *testing.T) {
		setEnv(t, map[string]string{
			"MAILKIT_ENCRYPTION_KEY_BASE64":    testutil.EncryptionKey(),
			"MAILKIT_STORE_HOST":               "imap.test.com",
			"MAILKIT_STORE_USERNAME":           "user",
			"MAILKIT_STORE_PASSWORD_ENCRYPTED": sealed,
		})

		config, err := NewConfig("")
		require.NoError(t, err)
		assert.Equal(t, "s3cret", config.Store.Password)
	})

	t.Run("plain password wins", func(t *testing.T) {
		setEnv(t, map[string]string{
			"MAILKIT_STORE_HOST":               "imap.test.com",
			"MAILKIT_STORE_USERNAME":           "user",
			"MAILKIT_STORE_PASSWORD":           "plain",
			"MAILKIT_STORE_PASSWORD_ENCRYPTED": sealed,
		})

		config, err := NewConfig("")
		require.NoError(t, err)
		assert.Equal(t, "plain", config.Store.Password)
	})

	t.Run("requires the key", func(t *testing.T) {
		setEnv(t, map[string]string{
			"MAILKIT_STORE_HOST":               "imap.test.com",
			"MAILKIT_STORE_USERNAME":           "user",
			"MAILKIT_STORE_PASSWORD_ENCRYPTED": sealed,
		})

		_, err := NewConfig("")
		assert.ErrorContains(t, err, "MAILKIT_ENCRYPTION_KEY_BASE64")
	})

	t.Run("rejects a corrupt value", func(t *testing.T) {
		setEnv(t, map[string]string{
			"MAILKIT_ENCRYPTION_KEY_BASE64":    testutil.EncryptionKey(),
			"MAILKIT_STORE_HOST":               "imap.test.com",
			"MAILKIT_STORE_USERNAME":           "user",
			"MAILKIT_STORE_PASSWORD_ENCRYPTED": "bm90IHNlYWxlZA==",
		})

		_, err := NewConfig("")
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			SMTP:    Account{Protocol: protocol.SMTP, Host: "smtp.test.com"},
			Store:   Account{Protocol: protocol.IMAP, Host: "imap.test.com"},
			Timeout: 10,
		}
	}

	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr string
	}{
		{name: "valid", modify: func(*Config) {}},
		{name: "send only", modify: func(c *Config) { c.Store = Account{} }},
		{name: "no host", modify: func(c *Config) { c.SMTP.Host, c.Store.Host = "", "" }, wantErr: "is required"},
		{name: "store protocol", modify: func(c *Config) { c.Store.Protocol = protocol.SMTP }, wantErr: "imap or pop3"},
		{name: "port range", modify: func(c *Config) { c.SMTP.Port = 70000 }, wantErr: "out of range"},
		{name: "username without password", modify: func(c *Config) { c.Store.Username = "user" }, wantErr: "together"},
		{name: "TLS and STARTTLS", modify: func(c *Config) { c.SMTP.TLS, c.SMTP.StartTLS = true, true }, wantErr: "both"},
		{name: "negative timeout", modify: func(c *Config) { c.Timeout = -1 }, wantErr: "negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.modify(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestClient(t *testing.T) {
	c := &Config{Timeout: 7, Charset: "UTF-8"}

	tests := []struct {
		name      string
		account   Account
		wantTLS   bool
		wantProps map[string]string
	}{
		{
			name:      "plain",
			account:   Account{Protocol: protocol.IMAP, Host: "imap.test.com"},
			wantProps: map[string]string{protocol.MimeCharsetKey: "UTF-8"},
		},
		{
			name:    "implicit TLS trusting the host",
			account: Account{Protocol: protocol.IMAP, Host: "imap.test.com", TLS: true, SkipTLSVerify: true},
			wantTLS: true,
			wantProps: map[string]string{
				protocol.MimeCharsetKey:      "UTF-8",
				protocol.IMAPS.SSLTrustKey(): "imap.test.com",
			},
		},
		{
			name:    "STARTTLS",
			account: Account{Protocol: protocol.SMTP, Host: "smtp.test.com", StartTLS: true},
			wantProps: map[string]string{
				protocol.MimeCharsetKey:     "UTF-8",
				protocol.SMTP.StartTLSKey(): "true",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := c.Client(tt.account, logrus.StandardLogger())
			assert.Equal(t, 7, cfg.ConnectionTimeout)
			assert.Equal(t, 7, cfg.ReadTimeout)
			assert.Equal(t, 7, cfg.WriteTimeout)
			assert.Equal(t, tt.wantTLS, cfg.TLS != nil)
			assert.Equal(t, tt.wantProps, cfg.Properties)
		})
	}
}
