package client

import (
	"github.com/vdavid/mailkit/protocol"
	"github.com/vdavid/mailkit/sender"
)

// SMTPClient sends emails. It is safe for concurrent use.
type SMTPClient struct {
	*sender.Session
}

// NewSMTPClient creates an SMTP client. No connection is made until the first Send. Empty
// username and password mean an unauthenticated client. A zero port selects 25, or 465 when
// cfg has TLS.
func NewSMTPClient(username, password, host string, port int, cfg *Configuration) (*SMTPClient, error) {
	s, err := newSession(protocol.SMTP, username, password, host, port, cfg)
	if err != nil {
		return nil, err
	}

	m, err := sender.New(s)
	if err != nil {
		return nil, err
	}
	return &SMTPClient{Session: m}, nil
}
