// Package config loads the account settings of the mailctl command from a .env file, an
// optional config file and MAILKIT_* environment variables.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/vdavid/mailkit/client"
	"github.com/vdavid/mailkit/internal/crypto"
	"github.com/vdavid/mailkit/protocol"
)

const envPrefix = "MAILKIT"

// Account is one server account.
type Account struct {
	// Protocol is the protocol family: smtp for sending, imap or pop3 for retrieval.
	Protocol protocol.Protocol
	Host     string
	Port     int
	Username string
	Password string
	// TLS selects implicit TLS; StartTLS upgrades a cleartext connection instead.
	TLS           bool
	StartTLS      bool
	SkipTLSVerify bool
}

// Configured reports whether the account has a host.
func (a Account) Configured() bool {
	return a.Host != ""
}

type Config struct {
	Environment         string
	EncryptionKeyBase64 string
	SMTP                Account
	Store               Account
	// Timeout in seconds for connecting, reading and writing.
	Timeout  int
	Charset  string
	LogLevel logrus.Level
}

// NewConfig loads the configuration. In development a .env file in the working directory
// is loaded first. configFile is optional; environment variables override its values.
func NewConfig(configFile string) (*Config, error) {
	env := os.Getenv(envPrefix + "_ENV")
	if env == "" {
		env = "development"
	}

	if env == "development" {
		if err := godotenv.Load(); err != nil {
			logrus.Debug(".env file not found, using environment variables")
		}
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("smtp.port", 0)
	v.SetDefault("store.protocol", "imap")
	v.SetDefault("store.port", 0)
	v.SetDefault("timeout", client.DefaultTimeout)
	v.SetDefault("log_level", "info")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", configFile, err)
		}
	}

	level, err := logrus.ParseLevel(v.GetString("log_level"))
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	config := &Config{
		Environment:         env,
		EncryptionKeyBase64: v.GetString("encryption_key_base64"),
		Timeout:             v.GetInt("timeout"),
		Charset:             v.GetString("charset"),
		LogLevel:            level,
	}

	config.SMTP, err = readAccount(v, "smtp", "smtp")
	if err != nil {
		return nil, err
	}
	config.Store, err = readAccount(v, "store", v.GetString("store.protocol"))
	if err != nil {
		return nil, err
	}

	if err := config.openPasswords(v); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func readAccount(v *viper.Viper, section, protocolName string) (Account, error) {
	p, err := protocol.Parse(protocolName)
	if err != nil {
		return Account{}, fmt.Errorf("%s.protocol: %w", section, err)
	}

	return Account{
		Protocol:      protocol.ForTLS(p, false),
		Host:          v.GetString(section + ".host"),
		Port:          v.GetInt(section + ".port"),
		Username:      v.GetString(section + ".username"),
		Password:      v.GetString(section + ".password"),
		TLS:           v.GetBool(section+".tls") || p.Secure(),
		StartTLS:      v.GetBool(section + ".starttls"),
		SkipTLSVerify: v.GetBool(section + ".skip_tls_verify"),
	}, nil
}

// openPasswords decrypts <section>.password_encrypted values into the accounts. A plain
// password takes precedence.
func (c *Config) openPasswords(v *viper.Viper) error {
	accounts := map[string]*Account{"smtp": &c.SMTP, "store": &c.Store}

	var sealer *crypto.PasswordSealer
	for _, section := range []string{"smtp", "store"} {
		sealed := v.GetString(section + ".password_encrypted")
		a := accounts[section]
		if sealed == "" || a.Password != "" {
			continue
		}

		if sealer == nil {
			if c.EncryptionKeyBase64 == "" {
				return fmt.Errorf("%s_ENCRYPTION_KEY_BASE64 is required for %s.password_encrypted", envPrefix, section)
			}
			var err error
			sealer, err = crypto.NewPasswordSealer(c.EncryptionKeyBase64)
			if err != nil {
				return err
			}
		}

		password, err := sealer.Open(sealed)
		if err != nil {
			return fmt.Errorf("%s password: %w", section, err)
		}
		a.Password = password
	}
	return nil
}

func (c *Config) Validate() error {
	if !c.SMTP.Configured() && !c.Store.Configured() {
		return errors.New("MAILKIT_SMTP_HOST or MAILKIT_STORE_HOST is required")
	}

	if c.Store.Configured() && !c.Store.Protocol.IsIMAP() && !c.Store.Protocol.IsPOP3() {
		return fmt.Errorf("store protocol must be imap or pop3, got %v", c.Store.Protocol)
	}

	for name, a := range map[string]Account{"smtp": c.SMTP, "store": c.Store} {
		if a.Port < 0 || a.Port > 65535 {
			return fmt.Errorf("%s port %d is out of range", name, a.Port)
		}
		if (a.Username == "") != (a.Password == "") {
			return fmt.Errorf("%s username and password must be given together", name)
		}
		if a.TLS && a.StartTLS {
			return fmt.Errorf("%s cannot use both TLS and STARTTLS", name)
		}
	}

	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %d", c.Timeout)
	}

	return nil
}

// Client returns the client configuration for account a.
func (c *Config) Client(a Account, logger logrus.FieldLogger) *client.Configuration {
	cfg := &client.Configuration{
		ConnectionTimeout: c.Timeout,
		ReadTimeout:       c.Timeout,
		WriteTimeout:      c.Timeout,
		Properties:        map[string]string{},
		Logger:            logger,
	}

	p := protocol.ForTLS(a.Protocol, a.TLS)
	if a.TLS {
		cfg.TLS = &tls.Config{}
	}
	if a.StartTLS {
		cfg.Properties[p.StartTLSKey()] = "true"
	}
	if a.SkipTLSVerify {
		cfg.Properties[p.SSLTrustKey()] = a.Host
	}
	if c.Charset != "" {
		cfg.Properties[protocol.MimeCharsetKey] = c.Charset
	}

	return cfg
}
