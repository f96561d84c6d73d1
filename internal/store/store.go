// Package store is the transport boundary of the mailbox session: an authenticated store
// hands out folders, and a folder lists, fetches, flags, copies and expunges messages.
// IMAP implements every capability; POP3 implements only the base Folder.
package store

import (
	"errors"
	"time"

	"github.com/vdavid/mailkit/email"
	"github.com/vdavid/mailkit/search"
)

var (
	// ErrFolderNotOpen is returned by operations that need an open folder.
	ErrFolderNotOpen = errors.New("folder is not open")
	// ErrFolderNotFound is returned when opening a folder the server does not have.
	ErrFolderNotFound = errors.New("folder not found")
	// ErrNotSupported is returned when the protocol cannot perform an operation.
	ErrNotSupported = errors.New("operation not supported by protocol")
)

// Message is a message as read from a folder.
type Message struct {
	// Number is the 1-based position in the folder.
	Number int
	// UID is the server identifier, or email.NoID when the protocol has none.
	UID int64
	// Raw holds the RFC 5322 message. It may hold only the header when content was not requested.
	Raw          []byte
	Flags        email.Flags
	InternalDate time.Time
}

// Ref addresses a message in an open folder. UID is used when it is not email.NoID.
type Ref struct {
	Number int
	UID    int64
}

// Store is an authenticated connection to a mail server.
type Store interface {
	// Folder returns a handle for name without opening it.
	Folder(name string) (Folder, error)
	// Close logs out. Open folders are closed without expunge.
	Close() error
}

// Lister is a store that can list its folders.
type Lister interface {
	ListFolders() ([]string, error)
}

// Folder is a handle on one server folder. At most one folder of a store is open at a time.
type Folder interface {
	Name() string
	Open(mode email.FolderMode) error
	IsOpen() bool
	// Mode returns the mode the folder was last opened in.
	Mode() email.FolderMode
	// Close closes the folder, removing messages marked deleted only if expunge is set.
	Close(expunge bool) error
	MessageCount() (int, error)
	// Messages returns the messages numbered from..to inclusive, in folder order.
	Messages(from, to int, readContent bool) ([]*Message, error)
	// SetFlag sets or clears flag on the referenced messages.
	SetFlag(refs []Ref, flag email.Flag, set bool) error
	Expunge() error
	Copy(refs []Ref, dest string) error
}

// UIDFolder is a folder that can address messages by UID.
type UIDFolder interface {
	Folder
	// MessageByUID returns nil and no error when no message has the UID.
	MessageByUID(uid int64, readContent bool) (*Message, error)
}

// Searcher is a folder with server-side search.
type Searcher interface {
	Folder
	// Search returns the matching messages in the server's result order.
	Search(term search.Term, readContent bool) ([]*Message, error)
}

// Mover is a folder that moves messages in a single command.
type Mover interface {
	Folder
	Move(refs []Ref, dest string) error
}
