package main

import (
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vdavid/mailkit/client"
	"github.com/vdavid/mailkit/email"
	"github.com/vdavid/mailkit/internal/config"
)

func startTestServers(t *testing.T) *servers {
	t.Helper()

	logger, _ := test.NewNullLogger()
	s, err := startServers("127.0.0.1:0", "127.0.0.1:0", "127.0.0.1:0", logger)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	require.NoError(t, s.seed(time.Now()))
	return s
}

func TestSeed(t *testing.T) {
	s := startTestServers(t)

	// The memory backend starts with one message in the INBOX.
	assert.Equal(t, 4, s.imap.Count(t, email.Inbox))
	assert.Equal(t, 1, s.imap.Count(t, "Archive"))
	assert.Equal(t, 0, s.imap.Count(t, "Trash"))
	assert.Len(t, s.pop3.Messages(), 3)
}

func TestEnv(t *testing.T) {
	s := startTestServers(t)

	tests := []struct {
		store       string
		wantStore   string
		wantFolders []string
	}{
		{store: "imap", wantStore: s.imap.Address, wantFolders: []string{"Archive", "Drafts", email.Inbox, "Sent", "Trash"}},
		{store: "pop3", wantStore: s.pop3.Address, wantFolders: []string{email.Inbox}},
	}

	for _, tt := range tests {
		t.Run(tt.store, func(t *testing.T) {
			t.Setenv("MAILKIT_ENV", "test")
			for k, v := range s.env(tt.store) {
				t.Setenv(k, v)
			}

			cfg, err := config.NewConfig("")
			require.NoError(t, err)
			assert.Equal(t, tt.wantStore, cfg.Store.Host+":"+strconv.Itoa(cfg.Store.Port))

			var folders []string
			if tt.store == "pop3" {
				c, err := client.NewPOP3Client(cfg.Store.Username, cfg.Store.Password, cfg.Store.Host, cfg.Store.Port, cfg.Client(cfg.Store, logrus.StandardLogger()))
				require.NoError(t, err)
				defer c.Disconnect()
				folders, err = c.ListFolders()
				require.NoError(t, err)
			} else {
				c, err := client.NewIMAPClient(cfg.Store.Username, cfg.Store.Password, cfg.Store.Host, cfg.Store.Port, cfg.Client(cfg.Store, logrus.StandardLogger()))
				require.NoError(t, err)
				defer c.Disconnect()
				folders, err = c.ListFolders()
				require.NoError(t, err)
			}
			assert.ElementsMatch(t, tt.wantFolders, folders)
		})
	}
}

func TestDeliver(t *testing.T) {
	s := startTestServers(t)

	c, err := client.NewSMTPClient(username, password, s.smtp.Host(), s.smtp.Port(), nil)
	require.NoError(t, err)

	e, err := email.NewBuilder().
		From("me@example.com").
		To("username@example.com").
		Subject("Hello").
		Text("Delivered locally.").
		Build()
	require.NoError(t, err)
	require.NoError(t, c.Send(e))

	assert.Equal(t, 5, s.imap.Count(t, email.Inbox))
	messages := s.pop3.Messages()
	require.Len(t, messages, 4)
	assert.Contains(t, string(messages[3].Data), "Delivered locally.")
}
