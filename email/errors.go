package email

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this module matches exactly one of these with errors.Is.
var (
	// ErrInvariantViolation means the caller violated a precondition.
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrConnection means a session could not be established or maintained.
	ErrConnection = errors.New("connection error")
	// ErrMailbox means a folder could not be opened, closed or addressed.
	ErrMailbox = errors.New("mailbox error")
	// ErrRetrieval means a fetch, list, search or UID lookup failed.
	ErrRetrieval = errors.New("retrieval error")
	// ErrSend means an outgoing message could not be assembled or transmitted.
	ErrSend = errors.New("send error")
	// ErrContentProcessing means a MIME tree could not be parsed.
	ErrContentProcessing = errors.New("content processing error")
	// ErrUnsupportedOperation is returned when a stored-only attribute is requested from an outgoing email.
	ErrUnsupportedOperation = errors.New("unsupported operation")
)

// Error is the concrete error type used across the module.
type Error struct {
	// Kind is one of the sentinel errors above.
	Kind error
	// Op describes what was being done, e.g. "open folder [INBOX]".
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the kind of this error.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// NewError builds an *Error of the given kind.
func NewError(kind error, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Errorf builds an *Error of the given kind with a formatted operation and no cause.
func Errorf(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: fmt.Sprintf(format, args...)}
}

// Attribute names an attribute whose absence makes an outgoing email invalid.
type Attribute string

const (
	AttrFrom       Attribute = "FROM"
	AttrBody       Attribute = "BODY"
	AttrRecipients Attribute = "RECIPIENTS"
)

// InvariantError is returned by Builder.Build when a required attribute is missing.
type InvariantError struct {
	Missing Attribute
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation: email has no %s", e.Missing)
}

// Is matches ErrInvariantViolation.
func (e *InvariantError) Is(target error) bool {
	return target == ErrInvariantViolation
}
