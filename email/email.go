// Package email holds the protocol-agnostic message model shared by the sending and
// retrieving sides: the Email interface with its Outgoing and Stored variants, bodies,
// attachments, flags, the outgoing Builder and the error taxonomy.
package email

import (
	"math"
	"time"
)

const (
	// Inbox is the name of the primary folder.
	Inbox = "INBOX"
	// NoSubject replaces an absent subject.
	NoSubject = "[No Subject]"
	// AllMessages asks a retrieve operation for every message currently in the folder.
	AllMessages = math.MaxInt32
	// NoID is the id of a stored message whose protocol cannot provide a UID.
	NoID int64 = -1
)

// Email is the part of a message that is defined for both outgoing and stored messages.
// Every accessor returns a copy; implementations never change after construction.
type Email interface {
	Subject() string
	From() []string
	ReplyTo() []string
	To() []string
	Cc() []string
	Bcc() []string
	// SentDate returns the date the message was sent, if known.
	SentDate() (time.Time, bool)
	Body() Body
	Attachments() []Attachment
	Headers() []Header
}

// envelope carries the attributes common to both variants.
type envelope struct {
	subject     string
	from        []string
	replyTo     []string
	to          []string
	cc          []string
	bcc         []string
	sentDate    time.Time
	body        Body
	attachments []Attachment
	headers     []Header
}

func (e *envelope) Subject() string { return e.subject }
func (e *envelope) From() []string { return copyStrings(e.from) }
func (e *envelope) ReplyTo() []string { return copyStrings(e.replyTo) }
func (e *envelope) To() []string { return copyStrings(e.to) }
func (e *envelope) Cc() []string { return copyStrings(e.cc) }
func (e *envelope) Bcc() []string { return copyStrings(e.bcc) }
func (e *envelope) Body() Body { return e.body }
func (e *envelope) Headers() []Header { return append([]Header(nil), e.headers...) }
func (e *envelope) SentDate() (time.Time, bool) {
	return e.sentDate, !e.sentDate.IsZero()
}

func (e *envelope) Attachments() []Attachment {
	return copyAttachments(e.attachments)
}

func normalizeSubject(subject string) string {
	if subject == "" {
		return NoSubject
	}
	return subject
}

func copyStrings(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	return append([]string(nil), in...)
}

// Outgoing is an email composed locally for sending. Create it with a Builder.
type Outgoing struct {
	envelope
}

var _ Email = (*Outgoing)(nil)

// Stored is an email materialized from a remote folder.
type Stored struct {
	envelope
	id           int64
	number       int
	folder       string
	receivedDate time.Time
	flags        Flags
}

var _ Email = (*Stored)(nil)

// StoredFields holds the attributes of a stored email as read from the server.
type StoredFields struct {
	Subject      string
	From         []string
	ReplyTo      []string
	To           []string
	Cc           []string
	SentDate     time.Time
	ReceivedDate time.Time
	Body         Body
	Attachments  []Attachment
	Headers      []Header
	Flags        Flags
	// Number is the 1-based position in the folder.
	Number int
	// ID is the server UID, or NoID.
	ID int64
	// Folder is the name of the folder the message was read from.
	Folder string
}

// NewStored creates a stored email. Bcc is always empty: a recipient never sees the
// Bcc list that targeted it.
func NewStored(f StoredFields) *Stored {
	return &Stored{
		envelope: envelope{
			subject:     normalizeSubject(f.Subject),
			from:        copyStrings(f.From),
			replyTo:     copyStrings(f.ReplyTo),
			to:          copyStrings(f.To),
			cc:          copyStrings(f.Cc),
			bcc:         []string{},
			sentDate:    f.SentDate,
			body:        f.Body,
			attachments: copyAttachments(f.Attachments),
			headers:     append([]Header(nil), f.Headers...),
		},
		id:           f.ID,
		number:       f.Number,
		folder:       f.Folder,
		receivedDate: f.ReceivedDate,
		flags:        f.Flags,
	}
}

// ID returns the server UID, or NoID when the protocol cannot provide one.
func (s *Stored) ID() int64 { return s.id }

// Number returns the 1-based position of the message in its folder.
func (s *Stored) Number() int { return s.number }

// Folder returns the name of the folder the message was read from.
func (s *Stored) Folder() string { return s.folder }

// Flags returns the flags as they were when the message was read.
func (s *Stored) Flags() Flags { return s.flags }

// ReceivedDate returns the date the server received the message, if known.
func (s *Stored) ReceivedDate() (time.Time, bool) {
	return s.receivedDate, !s.receivedDate.IsZero()
}

func unsupported(attr string) error {
	return Errorf(ErrUnsupportedOperation, "outgoing email has no %s", attr)
}

// IDOf returns the id of a stored email and ErrUnsupportedOperation for any other email.
func IDOf(e Email) (int64, error) {
	if s, ok := e.(*Stored); ok {
		return s.id, nil
	}
	return 0, unsupported("id")
}

// NumberOf returns the folder position of a stored email and ErrUnsupportedOperation for any other email.
func NumberOf(e Email) (int, error) {
	if s, ok := e.(*Stored); ok {
		return s.number, nil
	}
	return 0, unsupported("number")
}

// ReceivedDateOf returns the received date of a stored email and ErrUnsupportedOperation for any other email.
func ReceivedDateOf(e Email) (time.Time, error) {
	if s, ok := e.(*Stored); ok {
		return s.receivedDate, nil
	}
	return time.Time{}, unsupported("received date")
}

// FlagsOf returns the flags of a stored email and ErrUnsupportedOperation for any other email.
func FlagsOf(e Email) (Flags, error) {
	if s, ok := e.(*Stored); ok {
		return s.flags, nil
	}
	return Flags{}, unsupported("flags")
}
