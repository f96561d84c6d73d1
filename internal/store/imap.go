package store

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/sirupsen/logrus"

	"github.com/vdavid/mailkit/email"
	"github.com/vdavid/mailkit/internal/session"
	"github.com/vdavid/mailkit/search"
)

// imapFlags maps the five standard flags to their IMAP system flags.
var imapFlags = map[email.Flag]string{
	email.FlagAnswered: imap.AnsweredFlag,
	email.FlagDeleted:  imap.DeletedFlag,
	email.FlagDraft:    imap.DraftFlag,
	email.FlagRecent:   imap.RecentFlag,
	email.FlagSeen:     imap.SeenFlag,
}

// FlagsFromIMAP maps IMAP system flags to Flags. Keywords are ignored.
func FlagsFromIMAP(flags []string) email.Flags {
	var f email.Flags
	for _, flag := range flags {
		switch imap.CanonicalFlag(flag) {
		case imap.AnsweredFlag:
			f.Answered = true
		case imap.DeletedFlag:
			f.Deleted = true
		case imap.DraftFlag:
			f.Draft = true
		case imap.RecentFlag:
			f.Recent = true
		case imap.SeenFlag:
			f.Seen = true
		}
	}
	return f
}

// IMAPStore is a Store backed by a go-imap client.
type IMAPStore struct {
	client   *client.Client
	logger   logrus.FieldLogger
	selected *imapFolder
}

// OpenIMAP dials the server of s, upgrades with STARTTLS when requested and logs in when
// s has credentials.
func OpenIMAP(s *session.Session) (*IMAPStore, error) {
	conn, err := s.Dial()
	if err != nil {
		return nil, err
	}

	c, err := client.New(conn)
	if err != nil {
		_ = conn.Close()
		return nil, email.NewError(email.ErrConnection, "read IMAP greeting", err)
	}
	c.Timeout = max(s.ReadTimeout(), s.WriteTimeout())

	if s.StartTLS() {
		if err := c.StartTLS(s.TLSConfig()); err != nil {
			_ = c.Logout()
			return nil, email.NewError(email.ErrConnection, "STARTTLS", err)
		}
	}

	if credentials, ok := s.Credentials(); ok {
		if err := c.Login(credentials.Username, credentials.Password); err != nil {
			_ = c.Logout()
			return nil, email.NewError(email.ErrConnection, "failed to authenticate", err)
		}
	}

	return &IMAPStore{client: c, logger: s.Logger()}, nil
}

// Folder returns a handle for name.
func (st *IMAPStore) Folder(name string) (Folder, error) {
	if name == "" {
		return nil, fmt.Errorf("empty folder name")
	}
	return &imapFolder{store: st, name: name, mode: email.ReadOnly}, nil
}

// ListFolders lists every folder of the account.
func (st *IMAPStore) ListFolders() ([]string, error) {
	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)

	go func() {
		done <- st.client.List("", "*", mailboxes)
	}()

	var names []string
	for m := range mailboxes {
		names = append(names, m.Name)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}

	sort.Strings(names)
	return names, nil
}

// Close logs out.
func (st *IMAPStore) Close() error {
	st.selected = nil
	if err := st.client.Logout(); err != nil && err != client.ErrAlreadyLoggedOut {
		return fmt.Errorf("failed to log out: %w", err)
	}
	return nil
}

type imapFolder struct {
	store *IMAPStore
	name  string
	mode  email.FolderMode
	open  bool
	// stale is set when an EXPUNGE or MOVE may have shrunk the mailbox without the server
	// reporting it.
	stale bool
}

func (f *imapFolder) Name() string {
	return f.name
}

func (f *imapFolder) Mode() email.FolderMode {
	return f.mode
}

func (f *imapFolder) IsOpen() bool {
	if !f.open || f.store.selected != f || f.store.client.State() != imap.SelectedState {
		return false
	}
	mbox := f.store.client.Mailbox()
	return mbox != nil && strings.EqualFold(mbox.Name, f.name)
}

// Open selects the folder, read-only with EXAMINE.
func (f *imapFolder) Open(mode email.FolderMode) error {
	if _, err := f.store.client.Select(f.name, mode == email.ReadOnly); err != nil {
		f.open = false
		if strings.Contains(strings.ToLower(err.Error()), "no such mailbox") {
			return fmt.Errorf("%w: %v", ErrFolderNotFound, err)
		}
		return err
	}

	if prev := f.store.selected; prev != nil && prev != f {
		prev.open = false
	}
	f.store.selected = f
	f.mode = mode
	f.open = true
	f.stale = false
	return nil
}

// Close closes the folder. With expunge it issues CLOSE, which removes deleted messages.
// Without it the mailbox is unselected with UNSELECT, or simply left for the next SELECT
// to replace when the server lacks UNSELECT.
func (f *imapFolder) Close(expunge bool) error {
	if !f.IsOpen() {
		f.open = false
		return nil
	}
	f.open = false
	f.store.selected = nil

	if expunge && f.mode == email.ReadWrite {
		return f.store.client.Close()
	}

	if ok, err := f.store.client.Support("UNSELECT"); err == nil && ok {
		return f.store.client.Unselect()
	}
	return nil
}

func (f *imapFolder) ensureOpen() error {
	if !f.IsOpen() {
		return ErrFolderNotOpen
	}
	return nil
}

func (f *imapFolder) MessageCount() (int, error) {
	if err := f.ensureOpen(); err != nil {
		return 0, err
	}
	// go-imap counts EXISTS but not EXPUNGE responses, so after a removal the folder is
	// selected again for a fresh count. STATUS must not be used on the selected mailbox.
	if f.stale {
		if err := f.Open(f.mode); err != nil {
			return 0, fmt.Errorf("failed to get message count: %w", err)
		}
	}
	mbox := f.store.client.Mailbox()
	if mbox == nil {
		return 0, ErrFolderNotOpen
	}
	return int(mbox.Messages), nil
}

// Messages fetches messages from..to by sequence number.
func (f *imapFolder) Messages(from, to int, readContent bool) ([]*Message, error) {
	if err := f.ensureOpen(); err != nil {
		return nil, err
	}
	if from < 1 || to < from {
		return []*Message{}, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddRange(uint32(from), uint32(to))

	return f.fetch(false, seqSet, readContent, nil)
}

func (f *imapFolder) MessageByUID(uid int64, readContent bool) (*Message, error) {
	if err := f.ensureOpen(); err != nil {
		return nil, err
	}
	if uid <= 0 {
		return nil, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uint32(uid))

	messages, err := f.fetch(true, seqSet, readContent, nil)
	if err != nil {
		return nil, err
	}
	for _, m := range messages {
		if m.UID == uid {
			return m, nil
		}
	}
	return nil, nil
}

// Search runs UID SEARCH and fetches the matches in result order.
func (f *imapFolder) Search(term search.Term, readContent bool) ([]*Message, error) {
	if err := f.ensureOpen(); err != nil {
		return nil, err
	}

	c, err := criteria(term)
	if err != nil {
		return nil, err
	}

	uids, err := f.store.client.UidSearch(c)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	if len(uids) == 0 {
		return []*Message{}, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	return f.fetch(true, seqSet, readContent, uids)
}

// fetch fetches seqSet and returns the messages sorted by sequence number, or in the
// order of uids when given.
func (f *imapFolder) fetch(uid bool, seqSet *imap.SeqSet, readContent bool, uids []uint32) ([]*Message, error) {
	section := &imap.BodySectionName{Peek: true}
	if readContent {
		// A read-write fetch of the whole message sets \Seen, like any client reading it.
		section.Peek = f.mode == email.ReadOnly
	} else {
		section.Specifier = imap.HeaderSpecifier
	}

	items := []imap.FetchItem{
		imap.FetchUid,
		imap.FetchFlags,
		imap.FetchInternalDate,
		section.FetchItem(),
	}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)

	go func() {
		if uid {
			done <- f.store.client.UidFetch(seqSet, items, messages)
		} else {
			done <- f.store.client.Fetch(seqSet, items, messages)
		}
	}()

	var result []*Message
	var readErr error
	for msg := range messages {
		m, err := convertIMAPMessage(msg, section)
		if err != nil {
			if readErr == nil {
				readErr = err
			}
			continue
		}
		result = append(result, m)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	if readErr != nil {
		return nil, readErr
	}

	if uids != nil {
		order := make(map[int64]int, len(uids))
		for i, u := range uids {
			order[int64(u)] = i
		}
		sort.SliceStable(result, func(i, j int) bool { return order[result[i].UID] < order[result[j].UID] })
	} else {
		sort.SliceStable(result, func(i, j int) bool { return result[i].Number < result[j].Number })
	}

	return result, nil
}

func convertIMAPMessage(msg *imap.Message, section *imap.BodySectionName) (*Message, error) {
	m := &Message{
		Number:       int(msg.SeqNum),
		UID:          email.NoID,
		Flags:        FlagsFromIMAP(msg.Flags),
		InternalDate: msg.InternalDate,
	}
	if msg.Uid != 0 {
		m.UID = int64(msg.Uid)
	}

	body := msg.GetBody(section)
	if body == nil {
		return nil, fmt.Errorf("server did not return the content of message %d", msg.SeqNum)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read message %d: %w", msg.SeqNum, err)
	}
	m.Raw = raw

	return m, nil
}

// refSet builds a UID set when every ref has a UID and a sequence set otherwise.
func refSet(refs []Ref) (*imap.SeqSet, bool) {
	byUID := true
	for _, r := range refs {
		if r.UID <= 0 {
			byUID = false
			break
		}
	}

	seqSet := new(imap.SeqSet)
	for _, r := range refs {
		if byUID {
			seqSet.AddNum(uint32(r.UID))
		} else {
			seqSet.AddNum(uint32(r.Number))
		}
	}
	return seqSet, byUID
}

func (f *imapFolder) SetFlag(refs []Ref, flag email.Flag, set bool) error {
	if err := f.ensureOpen(); err != nil {
		return err
	}
	name, ok := imapFlags[flag]
	if !ok {
		return fmt.Errorf("unknown flag %v", flag)
	}
	if len(refs) == 0 {
		return nil
	}

	op := imap.FlagsOp(imap.AddFlags)
	if !set {
		op = imap.RemoveFlags
	}
	item := imap.FormatFlagsOp(op, true)
	value := []interface{}{name}

	seqSet, byUID := refSet(refs)
	var err error
	if byUID {
		err = f.store.client.UidStore(seqSet, item, value, nil)
	} else {
		err = f.store.client.Store(seqSet, item, value, nil)
	}
	if err != nil {
		return fmt.Errorf("failed to store flag %s: %w", name, err)
	}
	return nil
}

func (f *imapFolder) Expunge() error {
	if err := f.ensureOpen(); err != nil {
		return err
	}
	f.stale = true
	if err := f.store.client.Expunge(nil); err != nil {
		return fmt.Errorf("failed to expunge: %w", err)
	}
	return nil
}

func (f *imapFolder) Copy(refs []Ref, dest string) error {
	if err := f.ensureOpen(); err != nil {
		return err
	}

	seqSet, byUID := refSet(refs)
	var err error
	if byUID {
		err = f.store.client.UidCopy(seqSet, dest)
	} else {
		err = f.store.client.Copy(seqSet, dest)
	}
	if err != nil {
		return fmt.Errorf("failed to copy to %s: %w", dest, err)
	}
	return nil
}

// Move uses MOVE, which go-imap replaces with COPY, STORE and EXPUNGE when the server lacks it.
func (f *imapFolder) Move(refs []Ref, dest string) error {
	if err := f.ensureOpen(); err != nil {
		return err
	}

	f.stale = true
	seqSet, byUID := refSet(refs)
	var err error
	if byUID {
		err = f.store.client.UidMove(seqSet, dest)
	} else {
		err = f.store.client.Move(seqSet, dest)
	}
	if err != nil {
		return fmt.Errorf("failed to move to %s: %w", dest, err)
	}
	return nil
}
