package store

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/go-pop3"
	"github.com/sirupsen/logrus"

	"github.com/vdavid/mailkit/email"
	"github.com/vdavid/mailkit/internal/session"
)

// POP3Store is a Store backed by a go-pop3 connection. A POP3 maildrop has a single folder,
// INBOX. Deletions are committed only when the connection quits after an expunge, so the
// connection is dropped on such a close and dialed again by the next Open.
type POP3Store struct {
	session *session.Session
	logger  logrus.FieldLogger
	conn    *pop3.Conn
	folder  *pop3Folder
}

// OpenPOP3 dials the server of s and authenticates when s has credentials.
func OpenPOP3(s *session.Session) (*POP3Store, error) {
	if s.StartTLS() {
		return nil, email.Errorf(email.ErrConnection, "STARTTLS is not supported for %s", s.Protocol().Name())
	}

	st := &POP3Store{session: s, logger: s.Logger()}
	if err := st.connect(); err != nil {
		return nil, err
	}
	return st, nil
}

// sessionDialer dials through the session, which applies its TLS settings and timeouts.
type sessionDialer struct {
	session *session.Session
}

func (d sessionDialer) Dial(string, string) (net.Conn, error) {
	conn, err := d.session.Dial()
	if err != nil {
		return nil, err
	}
	return &deadlineConn{
		Conn:         conn,
		readTimeout:  d.session.ReadTimeout(),
		writeTimeout: d.session.WriteTimeout(),
	}, nil
}

// deadlineConn renews the read and write deadlines before every read and write.
type deadlineConn struct {
	net.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	if c.readTimeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}

func (c *deadlineConn) Write(b []byte) (int, error) {
	if c.writeTimeout > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(b)
}

func (st *POP3Store) connect() error {
	c := pop3.New(pop3.Opt{
		Host:        st.session.Host(),
		Port:        st.session.Port(),
		DialTimeout: st.session.ConnectionTimeout(),
		Dialer:      sessionDialer{session: st.session},
	})

	conn, err := c.NewConn()
	if err != nil {
		var e *email.Error
		if errors.As(err, &e) {
			return err
		}
		return email.NewError(email.ErrConnection, "read POP3 greeting", err)
	}

	if credentials, ok := st.session.Credentials(); ok {
		if err := conn.Auth(credentials.Username, credentials.Password); err != nil {
			_ = conn.Quit()
			return email.NewError(email.ErrConnection, "failed to authenticate", err)
		}
	}

	st.conn = conn
	return nil
}

// Folder returns a handle for name. Only INBOX can be opened.
func (st *POP3Store) Folder(name string) (Folder, error) {
	if name == "" {
		return nil, fmt.Errorf("empty folder name")
	}
	return &pop3Folder{store: st, name: name, mode: email.ReadOnly}, nil
}

// Close quits the connection. Deletions not committed by an expunge are reset first.
func (st *POP3Store) Close() error {
	if st.folder != nil {
		_ = st.folder.Close(false)
	}
	if st.conn == nil {
		return nil
	}
	conn := st.conn
	st.conn = nil
	if err := conn.Quit(); err != nil {
		return fmt.Errorf("failed to quit: %w", err)
	}
	return nil
}

type pop3Folder struct {
	store *POP3Store
	name  string
	mode  email.FolderMode
	open  bool
	// count is the maildrop size at open time; POP3 message numbers are fixed for a session.
	count int
	uids  map[int]int64
	// commit is set by Expunge; the next close quits so the server removes deleted messages.
	commit bool
}

func (f *pop3Folder) Name() string {
	return f.name
}

func (f *pop3Folder) Mode() email.FolderMode {
	return f.mode
}

func (f *pop3Folder) IsOpen() bool {
	return f.open && f.store.folder == f && f.store.conn != nil
}

func (f *pop3Folder) Open(mode email.FolderMode) error {
	if !strings.EqualFold(f.name, email.Inbox) {
		return fmt.Errorf("%w: POP3 has only %s", ErrFolderNotFound, email.Inbox)
	}

	if prev := f.store.folder; prev != nil && prev != f {
		_ = prev.Close(false)
	}
	if f.store.conn == nil {
		if err := f.store.connect(); err != nil {
			return err
		}
	}

	count, _, err := f.store.conn.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat maildrop: %w", err)
	}

	f.uids = map[int]int64{}
	if ids, err := f.store.conn.Uidl(0); err == nil {
		for _, id := range ids {
			f.uids[id.ID] = parseUIDL(id.UID)
		}
	} else {
		f.store.logger.WithError(err).Debug("UIDL not available, messages have no id")
	}

	f.count = count
	f.mode = mode
	f.open = true
	f.commit = false
	f.store.folder = f
	return nil
}

// parseUIDL returns the UIDL value as a number, or email.NoID when it is not decimal.
func parseUIDL(uid string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(uid), 10, 64)
	if err != nil || n < 0 {
		return email.NoID
	}
	return n
}

// Close ends the folder. With expunge, or after Expunge, the connection quits so the server
// commits deletions. Otherwise deletions are undone with RSET and the connection is kept.
func (f *pop3Folder) Close(expunge bool) error {
	if !f.IsOpen() {
		f.open = false
		return nil
	}
	f.open = false
	f.store.folder = nil

	if (expunge || f.commit) && f.mode == email.ReadWrite {
		conn := f.store.conn
		f.store.conn = nil
		if err := conn.Quit(); err != nil {
			return fmt.Errorf("failed to commit deletions: %w", err)
		}
		return nil
	}

	if err := f.store.conn.Rset(); err != nil {
		return fmt.Errorf("failed to reset maildrop: %w", err)
	}
	return nil
}

func (f *pop3Folder) ensureOpen() error {
	if !f.IsOpen() {
		return ErrFolderNotOpen
	}
	return nil
}

func (f *pop3Folder) MessageCount() (int, error) {
	if err := f.ensureOpen(); err != nil {
		return 0, err
	}
	return f.count, nil
}

// Messages retrieves messages from..to. POP3 has no seen flag, so the whole message is
// retrieved even when content is not requested; the caller ignores the body.
func (f *pop3Folder) Messages(from, to int, _ bool) ([]*Message, error) {
	if err := f.ensureOpen(); err != nil {
		return nil, err
	}

	to = min(to, f.count)
	result := make([]*Message, 0, max(to-from+1, 0))
	for n := max(from, 1); n <= to; n++ {
		raw, err := f.store.conn.RetrRaw(n)
		if err != nil {
			return nil, fmt.Errorf("failed to retrieve message %d: %w", n, err)
		}

		uid, ok := f.uids[n]
		if !ok {
			uid = email.NoID
		}
		result = append(result, &Message{Number: n, UID: uid, Raw: raw.Bytes()})
	}
	return result, nil
}

// SetFlag supports only the deleted flag. Clearing it resets every deletion of the session.
func (f *pop3Folder) SetFlag(refs []Ref, flag email.Flag, set bool) error {
	if err := f.ensureOpen(); err != nil {
		return err
	}
	if flag != email.FlagDeleted {
		return fmt.Errorf("%w: POP3 has no %s flag", ErrNotSupported, flag)
	}

	if !set {
		return f.store.conn.Rset()
	}
	for _, r := range refs {
		if err := f.store.conn.Dele(r.Number); err != nil {
			return fmt.Errorf("failed to delete message %d: %w", r.Number, err)
		}
	}
	return nil
}

// Expunge marks the folder so that closing it commits deletions.
func (f *pop3Folder) Expunge() error {
	if err := f.ensureOpen(); err != nil {
		return err
	}
	f.commit = true
	return nil
}

func (f *pop3Folder) Copy([]Ref, string) error {
	return fmt.Errorf("%w: POP3 cannot copy messages", ErrNotSupported)
}
