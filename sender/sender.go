// Package sender implements the submission side: an SMTP session that assembles and sends emails.
package sender

import (
	"errors"
	"fmt"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/sirupsen/logrus"

	"github.com/vdavid/mailkit/email"
	"github.com/vdavid/mailkit/internal/mime"
	"github.com/vdavid/mailkit/internal/session"
)

const defaultLocalName = "localhost"

// Session sends emails over SMTP. Every Send opens its own connection, so a Session is
// safe for concurrent use.
type Session struct {
	session   *session.Session
	logger    logrus.FieldLogger
	localName string
	now       func() time.Time
}

// New creates a sender session. The protocol of s must be SMTP or SMTPS.
func New(s *session.Session) (*Session, error) {
	if !s.Protocol().IsSMTP() {
		return nil, email.Errorf(email.ErrConnection, "%v is not a submission protocol", s.Protocol())
	}

	localName := s.Properties().Get(s.Protocol().LocalHostKey())
	if localName == "" {
		localName = defaultLocalName
	}

	return &Session{
		session:   s,
		logger:    s.Logger(),
		localName: localName,
		now:       time.Now,
	}, nil
}

// Send assembles e and submits it to every To, Cc and Bcc recipient. The message is dated
// at the time of the call and never carries a Bcc field.
func (m *Session) Send(e email.Email) error {
	if e == nil {
		return email.Errorf(email.ErrInvariantViolation, "no email given")
	}

	msg, err := mime.Assemble(e, m.now())
	if err != nil {
		return err
	}

	if err := m.submit(msg); err != nil {
		return sendError("submit message", err)
	}

	m.logger.WithFields(logrus.Fields{
		"from":       msg.From,
		"recipients": len(msg.Recipients),
		"bytes":      len(msg.Data),
	}).Info("Sent email")
	return nil
}

func (m *Session) submit(msg *mime.Message) error {
	conn, err := m.session.Dial()
	if err != nil {
		return err
	}

	var c *smtp.Client
	if m.session.StartTLS() {
		c, err = smtp.NewClientStartTLS(conn, m.session.TLSConfig())
		if err != nil {
			_ = conn.Close()
			return fmt.Errorf("STARTTLS: %w", err)
		}
	} else {
		c = smtp.NewClient(conn)
	}
	defer func() { _ = c.Close() }()

	if d := m.session.ReadTimeout(); d > 0 {
		c.CommandTimeout = d
	}
	if d := m.session.WriteTimeout(); d > 0 {
		c.SubmissionTimeout = d
	}

	if err := c.Hello(m.localName); err != nil {
		return fmt.Errorf("EHLO: %w", err)
	}

	if credentials, ok := m.session.Credentials(); ok {
		if err := c.Auth(sasl.NewPlainClient("", credentials.Username, credentials.Password)); err != nil {
			return fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	if err := c.Mail(msg.From, nil); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, rcpt := range msg.Recipients {
		if err := c.Rcpt(rcpt, nil); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(msg.Data); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("message rejected: %w", err)
	}

	if err := c.Quit(); err != nil {
		m.logger.WithError(err).Debug("QUIT failed after the message was accepted")
	}
	return nil
}

// sendError wraps err as ErrSend. An error that already carries a kind is flattened so the
// result matches ErrSend only.
func sendError(op string, err error) error {
	var e *email.Error
	if errors.As(err, &e) {
		return email.NewError(email.ErrSend, op+": "+e.Op, e.Err)
	}
	return email.NewError(email.ErrSend, op, err)
}
