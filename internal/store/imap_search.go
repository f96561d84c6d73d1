package store

import (
	"fmt"
	"time"

	"github.com/emersion/go-imap"

	"github.com/vdavid/mailkit/search"
)

// criteria translates a search tree into IMAP SEARCH criteria. IMAP compares dates by day,
// so date terms match at day granularity.
func criteria(term search.Term) (*imap.SearchCriteria, error) {
	c := imap.NewSearchCriteria()
	if err := addTerm(c, term); err != nil {
		return nil, err
	}
	return c, nil
}

func addTerm(c *imap.SearchCriteria, term search.Term) error {
	switch t := term.(type) {
	case nil:
		return nil
	case search.And:
		for _, sub := range t {
			if err := addTerm(c, sub); err != nil {
				return err
			}
		}
	case search.Or:
		or, err := orCriteria(t)
		if err != nil {
			return err
		}
		c.Or = append(c.Or, or.Or...)
		c.Not = append(c.Not, or.Not...)
		mergeCriteria(c, or)
	case search.Not:
		sub, err := criteria(t.Term)
		if err != nil {
			return err
		}
		c.Not = append(c.Not, sub)
	case search.ReceivedDate:
		return addDate(c, t.Op, t.Date, &c.Since, &c.Before)
	case search.SentDate:
		return addDate(c, t.Op, t.Date, &c.SentSince, &c.SentBefore)
	case search.Header:
		c.Header.Add(t.Name, t.Pattern)
	case search.Body:
		c.Body = append(c.Body, t.Pattern)
	case search.Text:
		c.Text = append(c.Text, t.Pattern)
	case search.Flag:
		name, ok := imapFlags[t.Flag]
		if !ok {
			return fmt.Errorf("unknown flag %v", t.Flag)
		}
		if t.Set {
			c.WithFlags = append(c.WithFlags, name)
		} else {
			c.WithoutFlags = append(c.WithoutFlags, name)
		}
	default:
		return fmt.Errorf("unsupported search term %T", term)
	}
	return nil
}

// orCriteria folds the terms of an OR into nested binary ORs.
func orCriteria(terms search.Or) (*imap.SearchCriteria, error) {
	switch len(terms) {
	case 0:
		return nil, fmt.Errorf("empty OR term")
	case 1:
		return criteria(terms[0])
	}

	left, err := criteria(terms[0])
	if err != nil {
		return nil, err
	}
	right, err := orCriteria(terms[1:])
	if err != nil {
		return nil, err
	}

	c := imap.NewSearchCriteria()
	c.Or = [][2]*imap.SearchCriteria{{left, right}}
	return c, nil
}

// mergeCriteria adds the conjunctive keys of src, other than Or and Not, to dst.
func mergeCriteria(dst, src *imap.SearchCriteria) {
	if !src.Since.IsZero() && src.Since.After(dst.Since) {
		dst.Since = src.Since
	}
	if !src.Before.IsZero() && (dst.Before.IsZero() || src.Before.Before(dst.Before)) {
		dst.Before = src.Before
	}
	if !src.SentSince.IsZero() && src.SentSince.After(dst.SentSince) {
		dst.SentSince = src.SentSince
	}
	if !src.SentBefore.IsZero() && (dst.SentBefore.IsZero() || src.SentBefore.Before(dst.SentBefore)) {
		dst.SentBefore = src.SentBefore
	}
	for name, values := range src.Header {
		for _, v := range values {
			dst.Header.Add(name, v)
		}
	}
	dst.Body = append(dst.Body, src.Body...)
	dst.Text = append(dst.Text, src.Text...)
	dst.WithFlags = append(dst.WithFlags, src.WithFlags...)
	dst.WithoutFlags = append(dst.WithoutFlags, src.WithoutFlags...)
}

// addDate narrows [since, before) for one comparison. IMAP dates have day granularity, so
// GT excludes the whole day of t, like LT. NE becomes NOT of the EQ day range.
func addDate(c *imap.SearchCriteria, op search.Comparison, t time.Time, since, before *time.Time) error {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	next := day.AddDate(0, 0, 1)

	narrowSince := func(v time.Time) {
		if since.IsZero() || v.After(*since) {
			*since = v
		}
	}
	narrowBefore := func(v time.Time) {
		if before.IsZero() || v.Before(*before) {
			*before = v
		}
	}

	switch op {
	case search.LT:
		narrowBefore(day)
	case search.LE:
		narrowBefore(next)
	case search.GT:
		narrowSince(next)
	case search.GE:
		narrowSince(day)
	case search.EQ:
		narrowSince(day)
		narrowBefore(next)
	case search.NE:
		eq := imap.NewSearchCriteria()
		eqSince, eqBefore := fieldFor(eq, since == &c.Since)
		if err := addDate(eq, search.EQ, t, eqSince, eqBefore); err != nil {
			return err
		}
		c.Not = append(c.Not, eq)
	default:
		return fmt.Errorf("unknown comparison %v", op)
	}
	return nil
}

// fieldFor returns the received or sent date range fields of c.
func fieldFor(c *imap.SearchCriteria, received bool) (*time.Time, *time.Time) {
	if received {
		return &c.Since, &c.Before
	}
	return &c.SentSince, &c.SentBefore
}
