package session

import (
	"crypto/tls"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/vdavid/mailkit/email"
)

// ConnectionTimeout returns the TCP and TLS handshake timeout.
func (s *Session) ConnectionTimeout() time.Duration {
	return s.props.Millis(s.protocol.ConnectionTimeoutKey())
}

// ReadTimeout returns the timeout of a single server response.
func (s *Session) ReadTimeout() time.Duration {
	return s.props.Millis(s.protocol.ReadTimeoutKey())
}

// WriteTimeout returns the timeout of a single write to the server.
func (s *Session) WriteTimeout() time.Duration {
	return s.props.Millis(s.protocol.WriteTimeoutKey())
}

// dialAddress returns the address to dial. socketFactory.port overrides the port.
func (s *Session) dialAddress() string {
	if port, ok := s.props.Int(s.protocol.SocketFactoryPortKey()); ok && port > 0 {
		return net.JoinHostPort(s.Host(), strconv.Itoa(port))
	}
	return s.Address()
}

// Dial connects to the server, over TLS when ImplicitTLS is set. With socketFactory.fallback
// set, a failed TLS dial is retried in cleartext. STARTTLS is left to the protocol client.
func (s *Session) Dial() (net.Conn, error) {
	dialer := &net.Dialer{
		Timeout: s.ConnectionTimeout(),
	}
	addr := s.dialAddress()

	if s.ImplicitTLS() {
		conn, err := tls.DialWithDialer(dialer, "tcp", addr, s.TLSConfig())
		if err == nil {
			return conn, nil
		}
		if !s.props.Bool(s.protocol.SocketFactoryFallbackKey()) {
			return nil, email.NewError(email.ErrConnection, fmt.Sprintf("dial %s with TLS", addr), err)
		}
		s.logger.WithError(err).Warn("TLS dial failed, falling back to a plain connection")
	}

	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		return nil, email.NewError(email.ErrConnection, fmt.Sprintf("dial %s", addr), err)
	}

	return conn, nil
}

// buildTLSConfig applies ssl.trust, ssl.protocols and ssl.ciphersuites to a clone of base.
func (s *Session) buildTLSConfig(base *tls.Config) (*tls.Config, error) {
	cfg := &tls.Config{}
	if base != nil {
		cfg = base.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = s.Host()
	}

	trusted := s.props.List(s.protocol.SSLTrustKey())
	if slices.Contains(trusted, "*") || slices.Contains(trusted, s.Host()) {
		cfg.InsecureSkipVerify = true
	}

	if versions := s.props.List(s.protocol.SSLProtocolsKey()); len(versions) > 0 {
		var lowest, highest uint16
		for _, name := range versions {
			v, ok := tlsVersions[strings.ToUpper(name)]
			if !ok {
				return nil, email.Errorf(email.ErrConnection, "unknown TLS protocol %q in %s", name, s.protocol.SSLProtocolsKey())
			}
			if lowest == 0 || v < lowest {
				lowest = v
			}
			if v > highest {
				highest = v
			}
		}
		cfg.MinVersion = lowest
		cfg.MaxVersion = highest
	}

	if names := s.props.List(s.protocol.SSLCipherSuitesKey()); len(names) > 0 {
		cfg.CipherSuites = cfg.CipherSuites[:0:0]
		for _, name := range names {
			id, ok := cipherSuiteID(name)
			if !ok {
				return nil, email.Errorf(email.ErrConnection, "unknown cipher suite %q in %s", name, s.protocol.SSLCipherSuitesKey())
			}
			cfg.CipherSuites = append(cfg.CipherSuites, id)
		}
	}

	return cfg, nil
}

var tlsVersions = map[string]uint16{
	"TLSV1":   tls.VersionTLS10,
	"TLSV1.0": tls.VersionTLS10,
	"TLSV1.1": tls.VersionTLS11,
	"TLSV1.2": tls.VersionTLS12,
	"TLSV1.3": tls.VersionTLS13,
}

func cipherSuiteID(name string) (uint16, bool) {
	for _, list := range [][]*tls.CipherSuite{tls.CipherSuites(), tls.InsecureCipherSuites()} {
		for _, suite := range list {
			if strings.EqualFold(suite.Name, name) {
				return suite.ID, true
			}
		}
	}
	return 0, false
}
