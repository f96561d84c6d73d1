// Package protocol describes the six supported mail protocols and the configuration
// keys each of them reads from a session property table.
package protocol

import (
	"fmt"
	"strings"
)

// Protocol is one of SMTP, SMTPS, IMAP, IMAPS, POP3 and POP3S.
type Protocol int

const (
	SMTP Protocol = iota + 1
	SMTPS
	IMAP
	IMAPS
	POP3
	POP3S
)

// All lists every protocol.
var All = []Protocol{SMTP, SMTPS, IMAP, IMAPS, POP3, POP3S}

type descriptor struct {
	name        string
	base        string
	secure      bool
	defaultPort int
}

var descriptors = map[Protocol]descriptor{
	SMTP:  {name: "SMTP", base: "smtp", secure: false, defaultPort: 25},
	SMTPS: {name: "SMTPS", base: "smtp", secure: true, defaultPort: 465},
	IMAP:  {name: "IMAP", base: "imap", secure: false, defaultPort: 143},
	IMAPS: {name: "IMAPS", base: "imaps", secure: true, defaultPort: 993},
	POP3:  {name: "POP3", base: "pop3", secure: false, defaultPort: 110},
	POP3S: {name: "POP3S", base: "pop3s", secure: true, defaultPort: 995},
}

// SubmissionPort is the alternative SMTP port some deployments use for authenticated submission.
const SubmissionPort = 587

func (p Protocol) String() string {
	if d, ok := descriptors[p]; ok {
		return d.name
	}
	return fmt.Sprintf("Protocol(%d)", int(p))
}

// Valid reports whether p is one of the six protocols.
func (p Protocol) Valid() bool {
	_, ok := descriptors[p]
	return ok
}

// Name returns the base name used in configuration keys: smtp, imap, imaps, pop3 or pop3s.
// SMTPS shares the smtp base name.
func (p Protocol) Name() string {
	return descriptors[p].base
}

// Secure reports whether the protocol runs over implicit TLS.
func (p Protocol) Secure() bool {
	return descriptors[p].secure
}

// DefaultPort returns the well-known port of the protocol.
func (p Protocol) DefaultPort() int {
	return descriptors[p].defaultPort
}

// IsIMAP reports whether p is IMAP or IMAPS.
func (p Protocol) IsIMAP() bool { return p == IMAP || p == IMAPS }

// IsPOP3 reports whether p is POP3 or POP3S.
func (p Protocol) IsPOP3() bool { return p == POP3 || p == POP3S }

// IsSMTP reports whether p is SMTP or SMTPS.
func (p Protocol) IsSMTP() bool { return p == SMTP || p == SMTPS }

// ForTLS returns the secure variant of the protocol family of p when secure is true
// and the cleartext variant otherwise.
func ForTLS(p Protocol, secure bool) Protocol {
	switch {
	case p.IsSMTP():
		if secure {
			return SMTPS
		}
		return SMTP
	case p.IsIMAP():
		if secure {
			return IMAPS
		}
		return IMAP
	case p.IsPOP3():
		if secure {
			return POP3S
		}
		return POP3
	}
	return p
}

// Parse parses a protocol name such as "imaps", case-insensitively.
func Parse(name string) (Protocol, error) {
	for _, p := range All {
		if strings.EqualFold(p.String(), name) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown protocol %q", name)
}

func (p Protocol) key(property string) string {
	return fmt.Sprintf("mail.%s.%s", p.Name(), property)
}

// TransportNameKey holds the default transport protocol name.
const TransportNameKey = "mail.transport.name"

// MimeCharsetKey holds the charset used for parts that do not declare one.
const MimeCharsetKey = "mail.mime.charset"

func (p Protocol) HostKey() string { return p.key("host") }
func (p Protocol) PortKey() string { return p.key("port") }
func (p Protocol) AuthKey() string { return p.key("auth") }
func (p Protocol) ConnectionTimeoutKey() string { return p.key("connectiontimeout") }
func (p Protocol) ReadTimeoutKey() string { return p.key("timeout") }
func (p Protocol) WriteTimeoutKey() string { return p.key("writetimeout") }
func (p Protocol) SSLEnableKey() string { return p.key("ssl.enable") }
func (p Protocol) SSLTrustKey() string { return p.key("ssl.trust") }
func (p Protocol) SSLProtocolsKey() string { return p.key("ssl.protocols") }
func (p Protocol) SSLCipherSuitesKey() string { return p.key("ssl.ciphersuites") }
func (p Protocol) SocketFactoryKey() string { return p.key("socketFactory") }
func (p Protocol) SocketFactoryPortKey() string { return p.key("socketFactory.port") }

// SocketFactoryFallbackKey, when "true", lets a secure session fall back to a plain
// socket if the TLS handshake fails.
func (p Protocol) SocketFactoryFallbackKey() string { return p.key("socketFactory.fallback") }

// StartTLSKey, when "true", upgrades a cleartext connection with STARTTLS.
func (p Protocol) StartTLSKey() string { return p.key("starttls.enable") }

// LocalHostKey names the host a client announces in EHLO. It defaults to "localhost".
func (p Protocol) LocalHostKey() string { return p.key("localhost") }
