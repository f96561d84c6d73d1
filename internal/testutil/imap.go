package testutil

import (
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/backend"
	"github.com/emersion/go-imap/backend/memory"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/server"
)

// TestIMAPServer represents a test IMAP server instance.
type TestIMAPServer struct {
	Server   *server.Server
	Address  string
	Backend  *memory.Backend
	cleanup  func()
	username string
	password string
}

// moveBackend wraps the memory backend so that its mailboxes support MOVE.
type moveBackend struct {
	*memory.Backend
}

func (b moveBackend) Login(info *imap.ConnInfo, username, password string) (backend.User, error) {
	u, err := b.Backend.Login(info, username, password)
	if err != nil {
		return nil, err
	}
	return moveUser{u}, nil
}

type moveUser struct {
	backend.User
}

func (u moveUser) GetMailbox(name string) (backend.Mailbox, error) {
	mbox, err := u.User.GetMailbox(name)
	if err != nil {
		return nil, err
	}
	return moveMailbox{mbox}, nil
}

type moveMailbox struct {
	backend.Mailbox
}

// MoveMessages copies, flags the source messages deleted and expunges them.
func (m moveMailbox) MoveMessages(uid bool, seqset *imap.SeqSet, dest string) error {
	if err := m.CopyMessages(uid, seqset, dest); err != nil {
		return err
	}
	if err := m.UpdateMessagesFlags(uid, seqset, imap.AddFlags, []string{imap.DeletedFlag}); err != nil {
		return err
	}
	return m.Expunge()
}

// StartTestIMAPServer starts an IMAP server with an in-memory backend on addr, such as
// "127.0.0.1:0". The memory backend creates a default user with username "username" and
// password "password" whose INBOX holds one seen message.
func StartTestIMAPServer(addr string) (*TestIMAPServer, error) {
	be := memory.New()

	s := server.New(moveBackend{be})
	s.AllowInsecureAuth = true

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	go func() {
		_ = s.Serve(listener)
	}()

	// Give server time to start
	time.Sleep(100 * time.Millisecond)

	return &TestIMAPServer{
		Server:  s,
		Address: listener.Addr().String(),
		Backend: be,
		cleanup: func() {
			_ = s.Close()
		},
		username: "username",
		password: "password",
	}, nil
}

// NewTestIMAPServer starts a test IMAP server on a random local port and stops it when the
// test ends.
func NewTestIMAPServer(t *testing.T) *TestIMAPServer {
	t.Helper()

	srv, err := StartTestIMAPServer("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to start IMAP server: %v", err)
	}
	t.Cleanup(srv.Close)

	return srv
}

// Close shuts down the test IMAP server.
func (s *TestIMAPServer) Close() {
	if s.cleanup != nil {
		s.cleanup()
		s.cleanup = nil
	}
}

// Username returns the default test username.
func (s *TestIMAPServer) Username() string {
	return s.username
}

// Password returns the default test password.
func (s *TestIMAPServer) Password() string {
	return s.password
}

// Host returns the host the server listens on.
func (s *TestIMAPServer) Host() string {
	host, _, _ := net.SplitHostPort(s.Address)
	return host
}

// Port returns the port the server listens on.
func (s *TestIMAPServer) Port() int {
	return portOf(s.Address)
}

// Dial opens a logged-in client connection as the default user.
func (s *TestIMAPServer) Dial() (*imapclient.Client, error) {
	client, err := imapclient.Dial(s.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test server: %w", err)
	}

	if err := client.Login(s.username, s.password); err != nil {
		_ = client.Logout()
		return nil, fmt.Errorf("failed to login: %w", err)
	}
	return client, nil
}

// Connect creates a new IMAP client connection to the test server.
func (s *TestIMAPServer) Connect(t *testing.T) (*imapclient.Client, func()) {
	t.Helper()

	client, err := s.Dial()
	if err != nil {
		t.Fatalf("%v", err)
	}

	cleanup := func() {
		_ = client.Logout()
	}

	return client, cleanup
}

// Create creates a folder for the default user.
func (s *TestIMAPServer) Create(name string) error {
	client, err := s.Dial()
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout() }()

	if err := client.Create(name); err != nil {
		return fmt.Errorf("failed to create folder %s: %w", name, err)
	}
	return nil
}

// CreateFolder creates a folder for the default user.
func (s *TestIMAPServer) CreateFolder(t *testing.T, name string) {
	t.Helper()

	if err := s.Create(name); err != nil {
		t.Fatalf("%v", err)
	}
}

// Append appends a raw message with the given flags and internal date to a folder.
func (s *TestIMAPServer) Append(folderName, raw string, flags []string, received time.Time) error {
	client, err := s.Dial()
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout() }()

	if err := client.Append(folderName, flags, received, strings.NewReader(raw)); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// ClearFolder removes every message from a folder.
func (s *TestIMAPServer) ClearFolder(t *testing.T, name string) {
	t.Helper()

	client, cleanup := s.Connect(t)
	defer cleanup()

	mbox, err := client.Select(name, false)
	if err != nil {
		t.Fatalf("Failed to select folder: %v", err)
	}
	if mbox.Messages == 0 {
		return
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddRange(1, mbox.Messages)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := client.Store(seqSet, item, []interface{}{imap.DeletedFlag}, nil); err != nil {
		t.Fatalf("Failed to flag messages: %v", err)
	}
	if err := client.Expunge(nil); err != nil {
		t.Fatalf("Failed to expunge: %v", err)
	}
}

// AddMessage adds a test message to the specified folder and returns its UID.
func (s *TestIMAPServer) AddMessage(t *testing.T, folderName, messageID, subject, from, to string, sentAt time.Time) uint32 {
	t.Helper()

	messageBody := fmt.Sprintf("Message-ID: %s\r\n"+
		"Date: %s\r\n"+
		"From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"Content-Type: text/plain; charset=utf-8\r\n"+
		"\r\n"+
		"Test message body.\r\n", messageID, sentAt.Format(time.RFC1123Z), from, to, subject)

	return s.AppendRaw(t, folderName, messageID, messageBody, nil, time.Now())
}

// AppendRaw appends a raw message with the given flags and internal date and returns its UID.
// messageID must match the Message-ID header of raw.
func (s *TestIMAPServer) AppendRaw(t *testing.T, folderName, messageID, raw string, flags []string, received time.Time) uint32 {
	t.Helper()

	if err := s.Append(folderName, raw, flags, received); err != nil {
		t.Fatalf("%v", err)
	}

	client, cleanup := s.Connect(t)
	defer cleanup()

	if _, err := client.Select(folderName, true); err != nil {
		t.Fatalf("Failed to select folder: %v", err)
	}

	// Search for the message we just added to get its UID
	criteria := imap.NewSearchCriteria()
	criteria.Header.Add("Message-ID", messageID)
	uids, err := client.UidSearch(criteria)
	if err != nil {
		t.Fatalf("Failed to search for message: %v", err)
	}

	if len(uids) == 0 {
		t.Fatalf("Message not found after append")
	}

	return uids[len(uids)-1]
}

// Flags returns the flags of the message with the given UID.
func (s *TestIMAPServer) Flags(t *testing.T, folderName string, uid uint32) []string {
	t.Helper()

	client, cleanup := s.Connect(t)
	defer cleanup()

	if _, err := client.Select(folderName, true); err != nil {
		t.Fatalf("Failed to select folder: %v", err)
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)
	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- client.UidFetch(seqSet, []imap.FetchItem{imap.FetchFlags}, messages)
	}()

	var flags []string
	for msg := range messages {
		flags = msg.Flags
	}
	if err := <-done; err != nil {
		t.Fatalf("Failed to fetch flags: %v", err)
	}
	return flags
}

// Count returns the number of messages in a folder.
func (s *TestIMAPServer) Count(t *testing.T, folderName string) int {
	t.Helper()

	client, cleanup := s.Connect(t)
	defer cleanup()

	mbox, err := client.Select(folderName, true)
	if err != nil {
		t.Fatalf("Failed to select folder: %v", err)
	}
	return int(mbox.Messages)
}
