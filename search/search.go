// Package search describes server-side search predicates as a boolean term tree.
// Stores translate the tree into their own wire criteria; a store without server-side
// search rejects it.
package search

import (
	"time"

	"github.com/vdavid/mailkit/email"
)

// Term is one node of a search tree.
type Term interface {
	isTerm()
}

// Comparison is the relation a date term checks.
type Comparison int

const (
	LT Comparison = iota + 1
	LE
	EQ
	NE
	GT
	GE
)

func (c Comparison) String() string {
	switch c {
	case LT:
		return "<"
	case LE:
		return "<="
	case EQ:
		return "="
	case NE:
		return "!="
	case GT:
		return ">"
	case GE:
		return ">="
	}
	return "?"
}

// ReceivedDate matches messages whose received (internal) date compares to Date.
type ReceivedDate struct {
	Op   Comparison
	Date time.Time
}

// SentDate matches messages whose Date header compares to Date.
type SentDate struct {
	Op   Comparison
	Date time.Time
}

// Header matches messages whose header Name contains Pattern, case-insensitively.
type Header struct {
	Name    string
	Pattern string
}

// Body matches messages whose body contains Pattern.
type Body struct {
	Pattern string
}

// Text matches messages whose header or body contains Pattern.
type Text struct {
	Pattern string
}

// Flag matches messages on which Flag is set (or unset when Set is false).
type Flag struct {
	Flag email.Flag
	Set  bool
}

// And matches messages that match every term. An empty And matches everything.
type And []Term

// Or matches messages that match at least one term.
type Or []Term

// Not negates a term.
type Not struct {
	Term Term
}

func (ReceivedDate) isTerm() {}
func (SentDate) isTerm() {}
func (Header) isTerm() {}
func (Body) isTerm() {}
func (Text) isTerm() {}
func (Flag) isTerm() {}
func (And) isTerm() {}
func (Or) isTerm() {}
func (Not) isTerm() {}

// All combines terms conjunctively. A single term is returned as is.
func All(terms ...Term) Term {
	if len(terms) == 1 {
		return terms[0]
	}
	return And(terms)
}

// ReceivedBefore matches messages received strictly before t. IMAP compares whole days, so
// there it matches messages received before the day of t.
func ReceivedBefore(t time.Time) Term {
	return ReceivedDate{Op: LT, Date: t}
}

// ReceivedAfter matches messages received strictly after t. IMAP compares whole days, so
// there it matches messages received after the day of t.
func ReceivedAfter(t time.Time) Term {
	return ReceivedDate{Op: GT, Date: t}
}

// ReceivedBetween matches messages received after newerThan and before olderThan.
func ReceivedBetween(olderThan, newerThan time.Time) Term {
	return And{ReceivedBefore(olderThan), ReceivedAfter(newerThan)}
}

func Subject(pattern string) Term { return Header{Name: "Subject", Pattern: pattern} }
func From(pattern string) Term { return Header{Name: "From", Pattern: pattern} }
func To(pattern string) Term { return Header{Name: "To", Pattern: pattern} }
func Cc(pattern string) Term { return Header{Name: "Cc", Pattern: pattern} }

// Flagged matches messages with flag set.
func Flagged(flag email.Flag) Term { return Flag{Flag: flag, Set: true} }

// Unflagged matches messages with flag unset.
func Unflagged(flag email.Flag) Term { return Flag{Flag: flag, Set: false} }
