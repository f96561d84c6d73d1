// Package client provides ready-made clients for the common cases: an SMTP client that sends,
// and IMAP and POP3 clients that retrieve. Each one is a thin wrapper over a sender or
// mailbox session built from a Configuration.
package client

import (
	"crypto/tls"

	"github.com/sirupsen/logrus"

	"github.com/vdavid/mailkit/internal/session"
	"github.com/vdavid/mailkit/protocol"
)

// DefaultTimeout is the timeout, in seconds, of a default Configuration.
const DefaultTimeout = 10

// Configuration holds the connection settings shared by all clients.
type Configuration struct {
	// Timeouts in seconds. Zero means no timeout.
	ConnectionTimeout int
	ReadTimeout       int
	WriteTimeout      int

	// Properties override the session property table, for example
	// "mail.imap.ssl.trust" or "mail.mime.charset".
	Properties map[string]string

	// TLS selects the secure variant of the protocol (SMTPS, IMAPS, POP3S) when set.
	TLS *tls.Config

	Logger logrus.FieldLogger
}

// DefaultConfiguration returns a Configuration with all timeouts set to DefaultTimeout.
func DefaultConfiguration() *Configuration {
	return &Configuration{
		ConnectionTimeout: DefaultTimeout,
		ReadTimeout:       DefaultTimeout,
		WriteTimeout:      DefaultTimeout,
	}
}

// newSession builds the session of a client for the protocol family of base. A nil cfg
// means DefaultConfiguration.
func newSession(base protocol.Protocol, username, password, host string, port int, cfg *Configuration) (*session.Session, error) {
	if cfg == nil {
		cfg = DefaultConfiguration()
	}

	return session.New(session.Options{
		Protocol:          protocol.ForTLS(base, cfg.TLS != nil),
		Host:              host,
		Port:              port,
		Username:          username,
		Password:          password,
		ConnectionTimeout: cfg.ConnectionTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		Properties:        cfg.Properties,
		TLS:               cfg.TLS,
		Logger:            cfg.Logger,
	})
}
