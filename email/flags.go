package email

import (
	"fmt"
	"strings"
)

// Flags is the set of standard flags of a stored message.
type Flags struct {
	Answered bool
	Deleted  bool
	Draft    bool
	// Recent is set by the server for messages that arrived since the folder was last opened.
	Recent bool
	// Seen is set once the content was delivered to a client.
	Seen bool
}

// Has reports whether flag is set.
func (f Flags) Has(flag Flag) bool {
	switch flag {
	case FlagAnswered:
		return f.Answered
	case FlagDeleted:
		return f.Deleted
	case FlagDraft:
		return f.Draft
	case FlagRecent:
		return f.Recent
	case FlagSeen:
		return f.Seen
	}
	return false
}

// Flag names one of the five standard flags.
type Flag int

const (
	FlagAnswered Flag = iota + 1
	FlagDeleted
	FlagDraft
	FlagRecent
	FlagSeen
)

// AllFlags lists every flag in declaration order.
var AllFlags = []Flag{FlagAnswered, FlagDeleted, FlagDraft, FlagRecent, FlagSeen}

func (f Flag) String() string {
	switch f {
	case FlagAnswered:
		return "ANSWERED"
	case FlagDeleted:
		return "DELETED"
	case FlagDraft:
		return "DRAFT"
	case FlagRecent:
		return "RECENT"
	case FlagSeen:
		return "SEEN"
	}
	return fmt.Sprintf("Flag(%d)", int(f))
}

// ParseFlag parses a flag name as produced by Flag.String, case-insensitively.
func ParseFlag(name string) (Flag, error) {
	for _, f := range AllFlags {
		if strings.EqualFold(f.String(), name) {
			return f, nil
		}
	}
	return 0, Errorf(ErrInvariantViolation, "unknown flag %q", name)
}

// FolderMode is the access mode a folder is opened with.
type FolderMode int

const (
	// ReadOnly forbids mutations; the server does not change the seen flag.
	ReadOnly FolderMode = iota + 1
	// ReadWrite permits flag changes, moves and expunge.
	ReadWrite
)

func (m FolderMode) String() string {
	switch m {
	case ReadOnly:
		return "READ_ONLY"
	case ReadWrite:
		return "READ_WRITE"
	}
	return fmt.Sprintf("FolderMode(%d)", int(m))
}
