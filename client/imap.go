package client

import (
	"github.com/vdavid/mailkit/email"
	"github.com/vdavid/mailkit/mailbox"
	"github.com/vdavid/mailkit/protocol"
)

// IMAPClient is a connected IMAP mailbox session.
type IMAPClient struct {
	*mailbox.Session
}

// NewIMAPClient connects and logs in to an IMAP server. A zero port selects 143, or 993 when
// cfg has TLS. Call Disconnect when done.
func NewIMAPClient(username, password, host string, port int, cfg *Configuration) (*IMAPClient, error) {
	s, err := newSession(protocol.IMAP, username, password, host, port, cfg)
	if err != nil {
		return nil, err
	}

	m, err := mailbox.Connect(s)
	if err != nil {
		return nil, err
	}
	return &IMAPClient{Session: m}, nil
}

// UIDFolder opens name in mode and fails with ErrMailbox if its messages cannot be
// addressed by id.
func (c *IMAPClient) UIDFolder(name string, mode email.FolderMode) (*mailbox.Folder, error) {
	f, err := c.OpenFolder(name, mode)
	if err != nil {
		return nil, err
	}
	if !f.SupportsUID() {
		return nil, email.Errorf(email.ErrMailbox, "folder [%s] does not support ids", name)
	}
	return f, nil
}
