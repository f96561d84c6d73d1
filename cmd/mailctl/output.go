package main

import (
	"encoding/json"
	"time"

	"github.com/vdavid/mailkit/email"
)

type result struct {
	Sent    int `json:"sent,omitempty"`
	Moved   int `json:"moved,omitempty"`
	Marked  int `json:"marked,omitempty"`
	Deleted int `json:"deleted,omitempty"`
}

type folderInfo struct {
	Name     string `json:"name"`
	Messages *int   `json:"messages,omitempty"`
}

type messageInfo struct {
	ID          int64      `json:"id,omitempty"`
	Number      int        `json:"number"`
	Folder      string     `json:"folder"`
	Subject     string     `json:"subject"`
	From        []string   `json:"from"`
	To          []string   `json:"to,omitempty"`
	Cc          []string   `json:"cc,omitempty"`
	Sent        *time.Time `json:"sent,omitempty"`
	Received    *time.Time `json:"received,omitempty"`
	Flags       []string   `json:"flags,omitempty"`
	ContentType string     `json:"contentType,omitempty"`
	Body        string     `json:"body,omitempty"`
	Attachments []string   `json:"attachments,omitempty"`
}

func newMessageInfo(e *email.Stored, withContent bool) messageInfo {
	info := messageInfo{
		Number:  e.Number(),
		Folder:  e.Folder(),
		Subject: e.Subject(),
		From:    e.From(),
		To:      e.To(),
		Cc:      e.Cc(),
	}
	if e.ID() != email.NoID {
		info.ID = e.ID()
	}
	if t, ok := e.SentDate(); ok {
		info.Sent = &t
	}
	if t, ok := e.ReceivedDate(); ok {
		info.Received = &t
	}
	for _, flag := range email.AllFlags {
		if e.Flags().Has(flag) {
			info.Flags = append(info.Flags, flag.String())
		}
	}

	if withContent {
		info.ContentType = e.Body().ContentType()
		info.Body = e.Body().Content()
		for _, a := range e.Attachments() {
			info.Attachments = append(info.Attachments, a.ID())
		}
	}
	return info
}

// print writes v as one line of JSON.
func (m *mailctl) print(v any) error {
	return json.NewEncoder(m.out).Encode(v)
}

func (m *mailctl) printMessages(messages []*email.Stored, withContent bool) error {
	for _, e := range messages {
		if err := m.print(newMessageInfo(e, withContent)); err != nil {
			return err
		}
	}
	return nil
}
