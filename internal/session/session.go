// Package session builds the property table and credentials shared by mailbox and sender
// sessions, and dials the server connection they run on.
package session

import (
	"crypto/tls"
	"net"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/vdavid/mailkit/email"
	"github.com/vdavid/mailkit/protocol"
)

// Options describes a session to build.
type Options struct {
	Protocol protocol.Protocol
	Host     string
	// Port defaults to the protocol's well-known port when zero.
	Port     int
	Username string
	Password string

	// Timeouts in seconds. Zero means no timeout.
	ConnectionTimeout int
	ReadTimeout       int
	WriteTimeout      int

	// Properties override the computed property table.
	Properties map[string]string
	// TLS is the base TLS configuration. The ssl.* properties are applied on top of a clone.
	TLS *tls.Config
	// Logger defaults to logrus.StandardLogger().
	Logger logrus.FieldLogger
}

// Credentials is a username and password pair.
type Credentials struct {
	Username string
	Password string
}

// Session is the immutable result of New. It is safe for concurrent use.
type Session struct {
	protocol    protocol.Protocol
	props       Properties
	credentials *Credentials
	tls         *tls.Config
	logger      logrus.FieldLogger
}

// New builds the property table of a session and applies the authentication policy:
// no username and no password is an anonymous session, a single one of them fails with
// ErrConnection, and both enable authentication.
func New(opts Options) (*Session, error) {
	p := opts.Protocol
	if !p.Valid() {
		return nil, email.Errorf(email.ErrConnection, "unknown protocol %v", p)
	}

	credentials, err := authenticator(opts.Username, opts.Password)
	if err != nil {
		return nil, err
	}

	port := opts.Port
	if port == 0 {
		port = p.DefaultPort()
	}

	props := Properties{
		p.HostKey():               opts.Host,
		p.PortKey():               strconv.Itoa(port),
		p.ConnectionTimeoutKey():  millis(opts.ConnectionTimeout),
		p.ReadTimeoutKey():        millis(opts.ReadTimeout),
		p.WriteTimeoutKey():       millis(opts.WriteTimeout),
		protocol.TransportNameKey: p.Name(),
	}
	if p.Secure() {
		props[p.SSLEnableKey()] = "true"
	}
	if credentials != nil {
		props[p.AuthKey()] = "true"
	}
	for k, v := range opts.Properties {
		props[k] = v
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	s := &Session{
		protocol:    p,
		props:       props,
		credentials: credentials,
		logger: logger.WithFields(logrus.Fields{
			"protocol": p.Name(),
			"host":     props.Get(p.HostKey()),
		}),
	}

	s.tls, err = s.buildTLSConfig(opts.TLS)
	if err != nil {
		return nil, err
	}

	return s, nil
}

func authenticator(username, password string) (*Credentials, error) {
	switch {
	case username == "" && password == "":
		return nil, nil
	case username == "":
		return nil, email.Errorf(email.ErrConnection, "Password provided but no username was specified")
	case password == "":
		return nil, email.Errorf(email.ErrConnection, "Username provided but no password was specified")
	}
	return &Credentials{Username: username, Password: password}, nil
}

// Protocol returns the session protocol.
func (s *Session) Protocol() protocol.Protocol {
	return s.protocol
}

// Properties returns a copy of the property table.
func (s *Session) Properties() Properties {
	return s.props.Clone()
}

// Credentials returns the credentials and whether the session authenticates.
// The auth property can turn authentication off even when credentials were given.
func (s *Session) Credentials() (Credentials, bool) {
	if s.credentials == nil || !s.props.Bool(s.protocol.AuthKey()) {
		return Credentials{}, false
	}
	return *s.credentials, true
}

// Host returns the server host name.
func (s *Session) Host() string {
	return s.props.Get(s.protocol.HostKey())
}

// Port returns the server port.
func (s *Session) Port() int {
	if port, ok := s.props.Int(s.protocol.PortKey()); ok {
		return port
	}
	return s.protocol.DefaultPort()
}

// Address returns host:port.
func (s *Session) Address() string {
	return net.JoinHostPort(s.Host(), strconv.Itoa(s.Port()))
}

// ImplicitTLS reports whether the connection is TLS from the first byte.
func (s *Session) ImplicitTLS() bool {
	return s.props.Bool(s.protocol.SSLEnableKey()) || s.props.Get(s.protocol.SocketFactoryKey()) != ""
}

// StartTLS reports whether a cleartext connection must be upgraded with STARTTLS.
func (s *Session) StartTLS() bool {
	return !s.ImplicitTLS() && s.props.Bool(s.protocol.StartTLSKey())
}

// TLSConfig returns the TLS configuration derived from the ssl.* properties.
func (s *Session) TLSConfig() *tls.Config {
	return s.tls.Clone()
}

// DefaultCharset returns the charset for parts that do not declare one.
func (s *Session) DefaultCharset() string {
	if cs := s.props.Get(protocol.MimeCharsetKey); cs != "" {
		return cs
	}
	return email.DefaultCharset
}

// Logger returns the session logger, with protocol and host fields set.
func (s *Session) Logger() logrus.FieldLogger {
	return s.logger
}
