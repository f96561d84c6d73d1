package client

import (
	"github.com/vdavid/mailkit/email"
	"github.com/vdavid/mailkit/mailbox"
	"github.com/vdavid/mailkit/protocol"
)

// POP3Client is a connected POP3 mailbox session. POP3 has a single folder, INBOX.
type POP3Client struct {
	*mailbox.Session
}

// NewPOP3Client connects and logs in to a POP3 server. A zero port selects 110, or 995 when
// cfg has TLS. Call Disconnect when done.
func NewPOP3Client(username, password, host string, port int, cfg *Configuration) (*POP3Client, error) {
	s, err := newSession(protocol.POP3, username, password, host, port, cfg)
	if err != nil {
		return nil, err
	}

	m, err := mailbox.Connect(s)
	if err != nil {
		return nil, err
	}
	return &POP3Client{Session: m}, nil
}

// FetchAll retrieves every message of folder with content. With deleteAfterRetrieve the
// retrieved messages are deleted and the folder is closed, which commits the deletions.
func (c *POP3Client) FetchAll(folder string, deleteAfterRetrieve bool) ([]*email.Stored, error) {
	mode := email.ReadOnly
	if deleteAfterRetrieve {
		mode = email.ReadWrite
	}

	f, err := c.OpenFolder(folder, mode)
	if err != nil {
		return nil, err
	}

	messages, err := c.Retrieve(f, true, email.AllMessages)
	if err != nil {
		return nil, err
	}
	if !deleteAfterRetrieve || len(messages) == 0 {
		return messages, nil
	}

	if err := c.Delete(messages...); err != nil {
		return nil, err
	}
	if err := c.CloseFolder(true); err != nil {
		return nil, err
	}
	return messages, nil
}
