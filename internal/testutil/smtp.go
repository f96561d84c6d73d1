package testutil

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// ReceivedMessage is one delivered copy of a message.
type ReceivedMessage struct {
	From string
	// Recipient is the envelope recipient this copy was delivered to.
	Recipient string
	Data      []byte
}

// MemoryBackend is a simple in-memory SMTP backend for testing.
// It stores one copy of each message per envelope recipient, like a mail store delivering
// to separate mailboxes.
type MemoryBackend struct {
	mu        sync.Mutex
	messages  []*ReceivedMessage
	username  string
	password  string
	onDeliver func(*ReceivedMessage)
}

// NewMemoryBackend creates a new in-memory SMTP backend. Empty credentials accept any login.
func NewMemoryBackend(username, password string) *MemoryBackend {
	return &MemoryBackend{
		messages: make([]*ReceivedMessage, 0),
		username: username,
		password: password,
	}
}

// NewSession creates a new SMTP session.
func (b *MemoryBackend) NewSession(*smtp.Conn) (smtp.Session, error) {
	return &memorySession{backend: b}, nil
}

// OnDeliver registers a function called with every delivered copy.
func (b *MemoryBackend) OnDeliver(fn func(*ReceivedMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onDeliver = fn
}

// GetMessages returns all received messages.
func (b *MemoryBackend) GetMessages() []*ReceivedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*ReceivedMessage(nil), b.messages...)
}

// ClearMessages clears all stored messages.
func (b *MemoryBackend) ClearMessages() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = make([]*ReceivedMessage, 0)
}

type memorySession struct {
	backend       *MemoryBackend
	authenticated bool
	from          string
	to            []string
}

var errBadCredentials = errors.New("invalid username or password")

func (s *memorySession) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

func (s *memorySession) Auth(mech string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(identity, username, password string) error {
		if s.backend.username != "" && (username != s.backend.username || password != s.backend.password) {
			return errBadCredentials
		}
		s.authenticated = true
		return nil
	}), nil
}

func (s *memorySession) Mail(from string, opts *smtp.MailOptions) error {
	if s.backend.username != "" && !s.authenticated {
		return smtp.ErrAuthRequired
	}
	s.from = from
	return nil
}

func (s *memorySession) Rcpt(to string, opts *smtp.RcptOptions) error {
	s.to = append(s.to, to)
	return nil
}

func (s *memorySession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()

	for _, rcpt := range s.to {
		msg := &ReceivedMessage{
			From:      s.from,
			Recipient: rcpt,
			Data:      data,
		}
		s.backend.messages = append(s.backend.messages, msg)
		if s.backend.onDeliver != nil {
			s.backend.onDeliver(msg)
		}
	}

	return nil
}

func (s *memorySession) Reset() {
	s.from = ""
	s.to = nil
}

func (s *memorySession) Logout() error {
	return nil
}

// TestSMTPServer represents a test SMTP server instance.
type TestSMTPServer struct {
	Server   *smtp.Server
	Address  string
	Backend  *MemoryBackend
	cleanup  func()
	username string
	password string
}

// StartTestSMTPServer starts an SMTP server with an in-memory backend on addr, such as
// "127.0.0.1:0". Empty credentials accept any login.
func StartTestSMTPServer(addr, username, password string) (*TestSMTPServer, error) {
	be := NewMemoryBackend(username, password)

	s := smtp.NewServer(be)
	s.AllowInsecureAuth = true
	s.Domain = "localhost"
	s.ReadTimeout = 10 * time.Second
	s.WriteTimeout = 10 * time.Second

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	go func() {
		_ = s.Serve(listener)
	}()

	// Give server time to start
	time.Sleep(100 * time.Millisecond)

	return &TestSMTPServer{
		Server:  s,
		Address: listener.Addr().String(),
		Backend: be,
		cleanup: func() {
			_ = s.Close()
		},
		username: username,
		password: password,
	}, nil
}

// NewTestSMTPServer starts a test SMTP server on a random local port that requires AUTH
// PLAIN with the test credentials, and stops it when the test ends.
func NewTestSMTPServer(t *testing.T) *TestSMTPServer {
	t.Helper()

	srv, err := StartTestSMTPServer("127.0.0.1:0", "test-user", "test-pass")
	if err != nil {
		t.Fatalf("Failed to start SMTP server: %v", err)
	}
	t.Cleanup(srv.Close)

	return srv
}

// Close shuts down the test SMTP server.
func (s *TestSMTPServer) Close() {
	if s.cleanup != nil {
		s.cleanup()
		s.cleanup = nil
	}
}

// Username returns the test username.
func (s *TestSMTPServer) Username() string {
	return s.username
}

// Password returns the test password.
func (s *TestSMTPServer) Password() string {
	return s.password
}

// Host returns the host the server listens on.
func (s *TestSMTPServer) Host() string {
	host, _, _ := net.SplitHostPort(s.Address)
	return host
}

// Port returns the port the server listens on.
func (s *TestSMTPServer) Port() int {
	return portOf(s.Address)
}

// GetMessages returns all messages received by the server.
func (s *TestSMTPServer) GetMessages() []*ReceivedMessage {
	return s.Backend.GetMessages()
}

// ClearMessages clears all stored messages.
func (s *TestSMTPServer) ClearMessages() {
	s.Backend.ClearMessages()
}

func portOf(address string) int {
	_, port, err := net.SplitHostPort(address)
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(port)
	return n
}
