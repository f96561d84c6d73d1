package mailbox

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vdavid/mailkit/email"
	"github.com/vdavid/mailkit/internal/mime"
	"github.com/vdavid/mailkit/internal/store"
	"github.com/vdavid/mailkit/search"
)

// requireOpen fails unless f is the open folder of m.
func (m *Session) requireOpen(f *Folder) error {
	if err := m.ensureConnected(); err != nil {
		return err
	}
	if f == nil {
		return email.Errorf(email.ErrInvariantViolation, "no folder given")
	}
	if f.owner != m {
		return email.Errorf(email.ErrInvariantViolation, "folder [%s] belongs to another session", f.Name())
	}
	if !f.isOpen() {
		return email.Errorf(email.ErrMailbox, "folder [%s] is not open", f.Name())
	}
	return nil
}

// requireWritable fails unless f is open in READ_WRITE mode.
func (m *Session) requireWritable(f *Folder) error {
	if err := m.requireOpen(f); err != nil {
		return err
	}
	if mode := f.folder.Mode(); mode != email.ReadWrite {
		return email.Errorf(email.ErrInvariantViolation, "folder [%s] is open in %v mode, %v is required", f.Name(), mode, email.ReadWrite)
	}
	return nil
}

// materialize reads a store message into a stored email.
func (m *Session) materialize(f *Folder, msg *store.Message, readContent bool) (*email.Stored, error) {
	env, content, err := mime.Read(msg.Raw, mime.Options{
		ReadContent:    readContent,
		DefaultCharset: m.session.DefaultCharset(),
	})
	if err != nil {
		return nil, err
	}

	return email.NewStored(email.StoredFields{
		Subject:      env.Subject,
		From:         env.From,
		ReplyTo:      env.ReplyTo,
		To:           env.To,
		Cc:           env.Cc,
		SentDate:     env.SentDate,
		ReceivedDate: msg.InternalDate,
		Body:         content.Body,
		Attachments:  content.Attachments,
		Headers:      env.Headers,
		Flags:        msg.Flags,
		Number:       msg.Number,
		ID:           msg.UID,
		Folder:       f.Name(),
	}), nil
}

func (m *Session) materializeAll(f *Folder, messages []*store.Message, readContent bool) ([]*email.Stored, error) {
	result := make([]*email.Stored, 0, len(messages))
	for _, msg := range messages {
		e, err := m.materialize(f, msg, readContent)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, nil
}

// retrievalError wraps a store failure, keeping errors that already carry a kind.
func retrievalError(op string, err error) error {
	var e *email.Error
	if errors.As(err, &e) {
		return err
	}
	return email.NewError(email.ErrRetrieval, op, err)
}

func mailboxError(op string, err error) error {
	var e *email.Error
	if errors.As(err, &e) {
		return err
	}
	return email.NewError(email.ErrMailbox, op, err)
}

// RetrieveByID returns the message with the server UID uid. The folder must support UID
// addressing, which POP3 folders do not.
func (m *Session) RetrieveByID(f *Folder, uid int64, readContent bool) (*email.Stored, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireOpen(f); err != nil {
		return nil, err
	}
	return m.retrieveByID(f, uid, readContent)
}

func (m *Session) retrieveByID(f *Folder, uid int64, readContent bool) (*email.Stored, error) {
	uf, ok := f.folder.(store.UIDFolder)
	if !ok {
		return nil, email.Errorf(email.ErrRetrieval, "folder [%s] does not support UID addressing over %v", f.Name(), m.protocol)
	}

	msg, err := uf.MessageByUID(uid, readContent)
	if err != nil {
		return nil, retrievalError(fmt.Sprintf("retrieve message %d from [%s]", uid, f.Name()), err)
	}
	if msg == nil {
		return nil, email.Errorf(email.ErrRetrieval, "no message with UID %d in [%s]", uid, f.Name())
	}
	return m.materialize(f, msg, readContent)
}

// Retrieve returns the first n messages of f in folder order. email.AllMessages retrieves
// every message present when the call starts.
func (m *Session) Retrieve(f *Folder, readContent bool, n int) ([]*email.Stored, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireOpen(f); err != nil {
		return nil, err
	}
	messages, err := m.first(f, n, readContent)
	if err != nil {
		return nil, err
	}
	return m.materializeAll(f, messages, readContent)
}

// first fetches messages 1..n, with n clamped to the message count.
func (m *Session) first(f *Folder, n int, readContent bool) ([]*store.Message, error) {
	count, err := f.folder.MessageCount()
	if err != nil {
		return nil, retrievalError(fmt.Sprintf("count messages in [%s]", f.Name()), err)
	}
	n = min(n, count)
	if n < 1 {
		return []*store.Message{}, nil
	}

	messages, err := f.folder.Messages(1, n, readContent)
	if err != nil {
		return nil, retrievalError(fmt.Sprintf("retrieve messages from [%s]", f.Name()), err)
	}
	return messages, nil
}

// Search returns the messages of f matching every term, in the server's result order.
// Without terms every message matches.
func (m *Session) Search(f *Folder, readContent bool, terms ...search.Term) ([]*email.Stored, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireOpen(f); err != nil {
		return nil, err
	}
	messages, err := m.search(f, readContent, terms)
	if err != nil {
		return nil, err
	}
	return m.materializeAll(f, messages, readContent)
}

// SearchReceived returns the messages of f received after newerThan and before olderThan.
func (m *Session) SearchReceived(f *Folder, readContent bool, olderThan, newerThan time.Time) ([]*email.Stored, error) {
	return m.Search(f, readContent, search.ReceivedBetween(olderThan, newerThan))
}

func (m *Session) search(f *Folder, readContent bool, terms []search.Term) ([]*store.Message, error) {
	s, ok := f.folder.(store.Searcher)
	if !ok {
		return nil, email.Errorf(email.ErrRetrieval, "%v has no server-side search", m.protocol)
	}

	term := search.All(terms...)
	if len(terms) == 0 {
		term = search.And{}
	}

	messages, err := s.Search(term, readContent)
	if err != nil {
		return nil, retrievalError(fmt.Sprintf("search [%s]", f.Name()), err)
	}
	return messages, nil
}

// RetrieveAndMove retrieves the first n messages of from and moves them to the folder named to.
// The source folder must be open READ_WRITE.
func (m *Session) RetrieveAndMove(from *Folder, readContent bool, n int, to string) ([]*email.Stored, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireWritable(from); err != nil {
		return nil, err
	}
	messages, err := m.first(from, n, readContent)
	if err != nil {
		return nil, err
	}
	return m.materializeAndMove(from, messages, readContent, to)
}

// SearchAndMove searches from and moves the matches to the folder named to.
func (m *Session) SearchAndMove(from *Folder, readContent bool, to string, terms ...search.Term) ([]*email.Stored, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireWritable(from); err != nil {
		return nil, err
	}
	messages, err := m.search(from, readContent, terms)
	if err != nil {
		return nil, err
	}
	return m.materializeAndMove(from, messages, readContent, to)
}

// SearchReceivedAndMove moves the messages received between newerThan and olderThan.
func (m *Session) SearchReceivedAndMove(from *Folder, readContent bool, to string, olderThan, newerThan time.Time) ([]*email.Stored, error) {
	return m.SearchAndMove(from, readContent, to, search.ReceivedBetween(olderThan, newerThan))
}

func (m *Session) materializeAndMove(from *Folder, messages []*store.Message, readContent bool, to string) ([]*email.Stored, error) {
	result, err := m.materializeAll(from, messages, readContent)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return result, nil
	}
	if err := m.move(from, refsOf(messages), to); err != nil {
		return nil, err
	}
	return result, nil
}

// Move moves messages, which must have been read from from, to the folder named to.
func (m *Session) Move(from *Folder, messages []*email.Stored, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(messages) == 0 {
		return email.Errorf(email.ErrInvariantViolation, "no messages to move")
	}
	if err := m.requireWritable(from); err != nil {
		return err
	}
	refs, err := refsFrom(from, messages)
	if err != nil {
		return err
	}
	return m.move(from, refs, to)
}

// MoveFirst moves the first n messages of from to the folder named to without reading them.
func (m *Session) MoveFirst(from *Folder, n int, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireWritable(from); err != nil {
		return err
	}
	count, err := from.folder.MessageCount()
	if err != nil {
		return retrievalError(fmt.Sprintf("count messages in [%s]", from.Name()), err)
	}
	n = min(n, count)
	if n < 1 {
		return nil
	}

	refs := make([]store.Ref, n)
	for i := range refs {
		refs[i] = store.Ref{Number: i + 1, UID: email.NoID}
	}
	return m.move(from, refs, to)
}

// move uses the native MOVE of the folder and otherwise copies, flags deleted and expunges.
func (m *Session) move(from *Folder, refs []store.Ref, to string) error {
	op := fmt.Sprintf("move %d messages from [%s] to [%s]", len(refs), from.Name(), to)
	log := m.logger.WithFields(logrus.Fields{"folder": from.Name(), "destination": to, "count": len(refs)})

	if mover, ok := from.folder.(store.Mover); ok {
		if err := mover.Move(refs, to); err != nil {
			return mailboxError(op, err)
		}
		log.Debug("Moved messages")
		return nil
	}

	if err := from.folder.Copy(refs, to); err != nil {
		return mailboxError(op, err)
	}
	if err := from.folder.SetFlag(refs, email.FlagDeleted, true); err != nil {
		return mailboxError(op, err)
	}
	if err := from.folder.Expunge(); err != nil {
		return mailboxError(op, err)
	}
	log.Debug("Moved messages with copy and expunge")
	return nil
}

// MarkByID sets flag on the message with UID uid. f must be open READ_WRITE.
func (m *Session) MarkByID(f *Folder, flag email.Flag, uid int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireWritable(f); err != nil {
		return err
	}
	ref, err := m.refByID(f, uid)
	if err != nil {
		return err
	}
	return m.setFlag(f, []store.Ref{ref}, flag, true)
}

// Mark sets flag on messages. They must come from one folder, open READ_WRITE in this session.
func (m *Session) Mark(flag email.Flag, messages ...*email.Stored) error {
	return m.mark(flag, true, messages)
}

// Unmark clears flag on messages, under the same conditions as Mark.
func (m *Session) Unmark(flag email.Flag, messages ...*email.Stored) error {
	return m.mark(flag, false, messages)
}

func (m *Session) mark(flag email.Flag, set bool, messages []*email.Stored) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, refs, err := m.hostFolder(messages)
	if err != nil {
		return err
	}
	return m.setFlag(f, refs, flag, set)
}

// hostFolder resolves the open READ_WRITE folder that messages were read from.
func (m *Session) hostFolder(messages []*email.Stored) (*Folder, []store.Ref, error) {
	if err := m.ensureConnected(); err != nil {
		return nil, nil, err
	}
	if len(messages) == 0 {
		return nil, nil, email.Errorf(email.ErrInvariantViolation, "no messages given")
	}
	if messages[0] == nil {
		return nil, nil, email.Errorf(email.ErrInvariantViolation, "nil message")
	}

	name := messages[0].Folder()
	c := m.current
	if c == nil || !strings.EqualFold(c.Name(), name) || !c.isOpen() {
		return nil, nil, email.Errorf(email.ErrInvariantViolation, "folder [%s] is not open", name)
	}
	if err := m.requireWritable(c); err != nil {
		return nil, nil, err
	}

	refs, err := refsFrom(c, messages)
	if err != nil {
		return nil, nil, err
	}
	return c, refs, nil
}

func (m *Session) setFlag(f *Folder, refs []store.Ref, flag email.Flag, set bool) error {
	if err := f.folder.SetFlag(refs, flag, set); err != nil {
		return mailboxError(fmt.Sprintf("set %v on %d messages in [%s]", flag, len(refs), f.Name()), err)
	}
	return nil
}

// Delete flags messages deleted and expunges their folder.
func (m *Session) Delete(messages ...*email.Stored) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, refs, err := m.hostFolder(messages)
	if err != nil {
		return err
	}
	return m.delete(f, refs)
}

// DeleteByID deletes the message with UID uid.
func (m *Session) DeleteByID(f *Folder, uid int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireWritable(f); err != nil {
		return err
	}
	ref, err := m.refByID(f, uid)
	if err != nil {
		return err
	}
	return m.delete(f, []store.Ref{ref})
}

// DeleteByNumber deletes the message at position number.
func (m *Session) DeleteByNumber(f *Folder, number int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireWritable(f); err != nil {
		return err
	}
	if number < 1 {
		return email.Errorf(email.ErrInvariantViolation, "invalid message number %d", number)
	}
	return m.delete(f, []store.Ref{{Number: number, UID: email.NoID}})
}

func (m *Session) delete(f *Folder, refs []store.Ref) error {
	if err := m.setFlag(f, refs, email.FlagDeleted, true); err != nil {
		return err
	}
	if err := f.folder.Expunge(); err != nil {
		return mailboxError(fmt.Sprintf("expunge [%s]", f.Name()), err)
	}
	return nil
}

// Expunge removes the messages of f flagged deleted. On POP3 the removal happens when the
// folder is closed or the session disconnects.
func (m *Session) Expunge(f *Folder) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireWritable(f); err != nil {
		return err
	}
	if err := f.folder.Expunge(); err != nil {
		return mailboxError(fmt.Sprintf("expunge [%s]", f.Name()), err)
	}
	return nil
}

// MessageCount returns the number of messages in f.
func (m *Session) MessageCount(f *Folder) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireOpen(f); err != nil {
		return 0, err
	}
	count, err := f.folder.MessageCount()
	if err != nil {
		return 0, retrievalError(fmt.Sprintf("count messages in [%s]", f.Name()), err)
	}
	return count, nil
}

// refByID checks that a message with UID uid exists and returns its reference.
func (m *Session) refByID(f *Folder, uid int64) (store.Ref, error) {
	uf, ok := f.folder.(store.UIDFolder)
	if !ok {
		return store.Ref{}, email.Errorf(email.ErrRetrieval, "folder [%s] does not support UID addressing over %v", f.Name(), m.protocol)
	}
	msg, err := uf.MessageByUID(uid, false)
	if err != nil {
		return store.Ref{}, retrievalError(fmt.Sprintf("look up message %d in [%s]", uid, f.Name()), err)
	}
	if msg == nil {
		return store.Ref{}, email.Errorf(email.ErrRetrieval, "no message with UID %d in [%s]", uid, f.Name())
	}
	return store.Ref{Number: msg.Number, UID: msg.UID}, nil
}

func refsOf(messages []*store.Message) []store.Ref {
	refs := make([]store.Ref, len(messages))
	for i, msg := range messages {
		refs[i] = store.Ref{Number: msg.Number, UID: msg.UID}
	}
	return refs
}

// refsFrom builds references for stored emails, which must all have been read from f.
func refsFrom(f *Folder, messages []*email.Stored) ([]store.Ref, error) {
	refs := make([]store.Ref, 0, len(messages))
	for _, msg := range messages {
		if msg == nil {
			return nil, email.Errorf(email.ErrInvariantViolation, "nil message")
		}
		if !strings.EqualFold(msg.Folder(), f.Name()) {
			return nil, email.Errorf(email.ErrInvariantViolation, "message %d is from [%s], not [%s]", msg.Number(), msg.Folder(), f.Name())
		}
		refs = append(refs, store.Ref{Number: msg.Number(), UID: msg.ID()})
	}
	return refs, nil
}
