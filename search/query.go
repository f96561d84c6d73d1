package search

import (
	"fmt"
	"strings"
	"time"

	"github.com/vdavid/mailkit/email"
)

// QueryDateLayout is the date format accepted by the before:/after: query operators.
const QueryDateLayout = "2006-01-02"

// ParseQuery turns a query such as "folder:Archive from:bob subject:report after:2024-01-01 invoice"
// into a folder name and a term. Recognized operators are folder:, from:, to:, cc:, subject:,
// body:, before:, after:, is:<flag> and -is:<flag>. Remaining words become one Text term.
// The folder defaults to INBOX. An empty query yields an empty And.
func ParseQuery(query string) (string, Term, error) {
	folder := email.Inbox
	var terms []Term
	var free []string

	for _, part := range strings.Fields(query) {
		key, value, ok := strings.Cut(part, ":")
		if !ok || value == "" {
			free = append(free, part)
			continue
		}

		key = strings.ToLower(key)
		switch key {
		case "folder":
			folder = value
		case "from":
			terms = append(terms, From(value))
		case "to":
			terms = append(terms, To(value))
		case "cc":
			terms = append(terms, Cc(value))
		case "subject":
			terms = append(terms, Subject(value))
		case "body":
			terms = append(terms, Body{Pattern: value})
		case "before", "after":
			date, err := time.ParseInLocation(QueryDateLayout, value, time.Local)
			if err != nil {
				return "", nil, fmt.Errorf("invalid date in %q: %w", part, err)
			}
			if key == "before" {
				terms = append(terms, ReceivedBefore(date))
			} else {
				terms = append(terms, ReceivedAfter(date))
			}
		case "is", "-is":
			flag, err := email.ParseFlag(value)
			if err != nil {
				return "", nil, err
			}
			terms = append(terms, Flag{Flag: flag, Set: key == "is"})
		default:
			free = append(free, part)
		}
	}

	if len(free) > 0 {
		terms = append(terms, Text{Pattern: strings.Join(free, " ")})
	}
	if len(terms) == 0 {
		return folder, And{}, nil
	}
	return folder, All(terms...), nil
}
