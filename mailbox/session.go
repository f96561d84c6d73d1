// Package mailbox implements the retrieval side: a session against an IMAP or POP3 server
// that keeps at most one folder open, and the folder operations (retrieve, search, move,
// mark, delete) on top of it.
package mailbox

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/vdavid/mailkit/email"
	"github.com/vdavid/mailkit/internal/session"
	"github.com/vdavid/mailkit/internal/store"
	"github.com/vdavid/mailkit/protocol"
)

// Session is an authenticated retrieval session. All methods are serialized by a mutex,
// so a Session may be shared between goroutines, but operations never run concurrently.
type Session struct {
	mu       sync.Mutex
	session  *session.Session
	store    store.Store
	current  *Folder
	closed   bool
	logger   logrus.FieldLogger
	protocol protocol.Protocol
}

// Folder is a folder handle of a Session.
type Folder struct {
	owner  *Session
	folder store.Folder
}

// Name returns the folder name.
func (f *Folder) Name() string {
	return f.folder.Name()
}

// Mode returns the mode the folder was last opened in.
func (f *Folder) Mode() email.FolderMode {
	f.owner.mu.Lock()
	defer f.owner.mu.Unlock()
	return f.folder.Mode()
}

// IsOpen reports whether the folder is the open folder of its session.
func (f *Folder) IsOpen() bool {
	f.owner.mu.Lock()
	defer f.owner.mu.Unlock()
	return f.isOpen()
}

// SupportsUID reports whether messages of the folder can be addressed by id.
func (f *Folder) SupportsUID() bool {
	_, ok := f.folder.(store.UIDFolder)
	return ok
}

func (f *Folder) isOpen() bool {
	return !f.owner.closed && f.owner.current == f && f.folder.IsOpen()
}

// Connect opens the store for the protocol of s and authenticates when s has credentials.
func Connect(s *session.Session) (*Session, error) {
	p := s.Protocol()

	var (
		st  store.Store
		err error
	)
	switch {
	case p.IsIMAP():
		st, err = store.OpenIMAP(s)
	case p.IsPOP3():
		st, err = store.OpenPOP3(s)
	default:
		return nil, email.Errorf(email.ErrConnection, "%v is not a retrieval protocol", p)
	}
	if err != nil {
		return nil, err
	}

	s.Logger().Debug("Mailbox session connected")

	return newSession(s, st), nil
}

func newSession(s *session.Session, st store.Store) *Session {
	return &Session{
		session:  s,
		store:    st,
		logger:   s.Logger(),
		protocol: s.Protocol(),
	}
}

// Protocol returns the session protocol.
func (m *Session) Protocol() protocol.Protocol {
	return m.protocol
}

func (m *Session) ensureConnected() error {
	if m.closed {
		return email.Errorf(email.ErrConnection, "session is disconnected")
	}
	return nil
}

// OpenFolder opens name in mode. The open folder is returned as is when it has the same
// name, compared case-insensitively, and the same mode. Otherwise it is closed without
// expunge and name is opened in its place.
func (m *Session) OpenFolder(name string, mode email.FolderMode) (*Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openFolder(name, mode)
}

func (m *Session) openFolder(name string, mode email.FolderMode) (*Folder, error) {
	if err := m.ensureConnected(); err != nil {
		return nil, err
	}
	if mode != email.ReadOnly && mode != email.ReadWrite {
		return nil, email.Errorf(email.ErrInvariantViolation, "invalid folder mode %v", mode)
	}

	if c := m.current; c != nil && strings.EqualFold(c.folder.Name(), name) && c.folder.Mode() == mode && c.folder.IsOpen() {
		return c, nil
	}

	m.closeCurrent(false)

	f, err := m.getFolder(name)
	if err != nil {
		return nil, err
	}
	if err := f.folder.Open(mode); err != nil {
		return nil, email.NewError(email.ErrMailbox, fmt.Sprintf("open folder [%s]", name), err)
	}

	m.current = f
	m.logger.WithFields(logrus.Fields{"folder": name, "mode": mode}).Debug("Opened folder")
	return f, nil
}

// GetFolder returns a handle for name without opening it. The open folder is returned when
// its name matches.
func (m *Session) GetFolder(name string) (*Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureConnected(); err != nil {
		return nil, err
	}
	return m.getFolder(name)
}

func (m *Session) getFolder(name string) (*Folder, error) {
	if c := m.current; c != nil && strings.EqualFold(c.folder.Name(), name) {
		return c, nil
	}

	sf, err := m.store.Folder(name)
	if err != nil {
		return nil, email.NewError(email.ErrMailbox, fmt.Sprintf("get folder [%s]", name), err)
	}
	return &Folder{owner: m, folder: sf}, nil
}

// CloseFolder closes the open folder, if any. With expunge, messages marked deleted are removed.
func (m *Session) CloseFolder(expunge bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil
	}
	c := m.current
	m.current = nil
	if err := c.folder.Close(expunge); err != nil {
		return email.NewError(email.ErrMailbox, fmt.Sprintf("close folder [%s]", c.folder.Name()), err)
	}
	return nil
}

// closeCurrent closes the open folder and logs a failure instead of returning it.
func (m *Session) closeCurrent(expunge bool) {
	if m.current == nil {
		return
	}
	c := m.current
	m.current = nil
	if err := c.folder.Close(expunge); err != nil {
		m.logger.WithError(err).WithField("folder", c.folder.Name()).Warn("Failed to close folder")
	}
}

// Disconnect closes the open folder without expunge and closes the store. Errors are
// logged and otherwise ignored. Calling Disconnect again does nothing.
func (m *Session) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closeCurrent(false)
	m.closed = true

	if err := m.store.Close(); err != nil {
		m.logger.WithError(err).Warn("Failed to close store")
	}
	m.logger.Debug("Mailbox session disconnected")
}

// ListFolders lists the folders of the account. POP3 has only INBOX.
func (m *Session) ListFolders() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureConnected(); err != nil {
		return nil, err
	}

	lister, ok := m.store.(store.Lister)
	if !ok {
		return []string{email.Inbox}, nil
	}
	names, err := lister.ListFolders()
	if err != nil {
		return nil, email.NewError(email.ErrMailbox, "list folders", err)
	}
	return names, nil
}
