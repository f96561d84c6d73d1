// Command test-server runs local IMAP, POP3 and SMTP servers with seeded mailboxes, for
// trying out mailctl without a real account. Mail sent through the SMTP server lands in the
// INBOX of both stores.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/vdavid/mailkit/email"
	"github.com/vdavid/mailkit/internal/mime"
	"github.com/vdavid/mailkit/internal/testutil"
)

// The IMAP memory backend only knows this user, so the other servers use it too.
const (
	username = "username"
	password = "password"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app(logger).RunContext(ctx, os.Args); err != nil {
		logger.WithError(err).Fatal("Test server failed")
	}
}

func app(logger *logrus.Logger) *cli.App {
	return &cli.App{
		Name:  "test-server",
		Usage: "run local mail servers with seeded mailboxes",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "imap", Value: "127.0.0.1:1143", Usage: "IMAP listen address"},
			&cli.StringFlag{Name: "pop3", Value: "127.0.0.1:1110", Usage: "POP3 listen address"},
			&cli.StringFlag{Name: "smtp", Value: "127.0.0.1:1025", Usage: "SMTP listen address"},
			&cli.StringFlag{Name: "store", Value: "imap", Usage: "store the printed settings point at, imap or pop3"},
			&cli.StringFlag{Name: "env-file", Usage: "also write the settings to this file, for example .env"},
		},
		Action: func(ctx *cli.Context) error {
			return run(ctx, logger)
		},
	}
}

func run(ctx *cli.Context, logger *logrus.Logger) error {
	store := ctx.String("store")
	if store != "imap" && store != "pop3" {
		return fmt.Errorf("store must be imap or pop3, got %q", store)
	}

	s, err := startServers(ctx.String("imap"), ctx.String("pop3"), ctx.String("smtp"), logger)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.seed(time.Now()); err != nil {
		return fmt.Errorf("failed to seed mailboxes: %w", err)
	}
	logger.Info("Seeded mailboxes")

	env := s.env(store)
	content, err := godotenv.Marshal(env)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(ctx.App.Writer, content); err != nil {
		return err
	}
	if path := ctx.String("env-file"); path != "" {
		if err := godotenv.Write(env, path); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		logger.WithField("path", path).Info("Wrote settings")
	}

	logger.Info("Servers ready. Press Ctrl+C to stop.")
	<-ctx.Done()
	logger.Info("Shutting down")
	return nil
}

type servers struct {
	imap   *testutil.TestIMAPServer
	pop3   *testutil.TestPOP3Server
	smtp   *testutil.TestSMTPServer
	logger logrus.FieldLogger

	// mu serializes deliveries, since the IMAP memory backend is not safe for concurrent
	// writes.
	mu sync.Mutex
}

// startServers starts the three servers and wires SMTP deliveries into both stores.
func startServers(imapAddr, pop3Addr, smtpAddr string, logger logrus.FieldLogger) (*servers, error) {
	s := &servers{logger: logger}

	var err error
	s.imap, err = testutil.StartTestIMAPServer(imapAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to start IMAP server: %w", err)
	}
	logger.WithField("address", s.imap.Address).Info("IMAP server started")

	s.pop3, err = testutil.StartTestPOP3Server(pop3Addr, username, password)
	if err != nil {
		s.imap.Close()
		return nil, fmt.Errorf("failed to start POP3 server: %w", err)
	}
	logger.WithField("address", s.pop3.Address).Info("POP3 server started")

	s.smtp, err = testutil.StartTestSMTPServer(smtpAddr, username, password)
	if err != nil {
		s.imap.Close()
		s.pop3.Close()
		return nil, fmt.Errorf("failed to start SMTP server: %w", err)
	}
	s.smtp.Backend.OnDeliver(s.deliver)
	logger.WithField("address", s.smtp.Address).Info("SMTP server started")

	return s, nil
}

func (s *servers) Close() {
	s.smtp.Close()
	s.pop3.Close()
	s.imap.Close()
}

// deliver files one delivered copy into the INBOX of both stores.
func (s *servers) deliver(msg *testutil.ReceivedMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logger.WithFields(logrus.Fields{"from": msg.From, "recipient": msg.Recipient})
	if err := s.imap.Append(email.Inbox, string(msg.Data), nil, time.Now()); err != nil {
		log.WithError(err).Warn("Failed to deliver to IMAP")
	}
	uid := s.pop3.AddMessage(string(msg.Data))
	log.WithField("uidl", uid).Info("Delivered message")
}

// seedFolders are created next to the INBOX of the IMAP store.
var seedFolders = []string{"Archive", "Drafts", "Sent", "Trash"}

var seedMessages = []struct {
	folder  string
	from    string
	subject string
	text    string
	age     time.Duration
}{
	{email.Inbox, "Sender <sender@example.com>", "Welcome to mailkit", "This is a test message.", 2 * time.Hour},
	{email.Inbox, "colleague@example.com", "Meeting Tomorrow", "Don't forget about the meeting tomorrow at 2 PM.", time.Hour},
	{email.Inbox, "reports@example.com", "Special Report Q3", "Here is the Q3 report you requested.", 0},
	{"Archive", "Sender <sender@example.com>", "Old news", "Filed away.", 24 * time.Hour},
}

// seed creates the folders and adds the messages. POP3 has no folders, so it only gets the
// INBOX messages.
func (s *servers) seed(now time.Time) error {
	for _, name := range seedFolders {
		if err := s.imap.Create(name); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range seedMessages {
		e, err := email.NewBuilder().
			From(m.from).
			To(username + "@example.com").
			Subject(m.subject).
			Text(m.text).
			Build()
		if err != nil {
			return err
		}
		sent := now.Add(-m.age)
		msg, err := mime.Assemble(e, sent)
		if err != nil {
			return err
		}

		if err := s.imap.Append(m.folder, string(msg.Data), nil, sent); err != nil {
			return err
		}
		if m.folder == email.Inbox {
			s.pop3.AddMessage(string(msg.Data))
		}
	}
	return nil
}

// env returns the MAILKIT_* settings that point mailctl at the servers.
func (s *servers) env(store string) map[string]string {
	env := map[string]string{
		"MAILKIT_SMTP_HOST":      s.smtp.Host(),
		"MAILKIT_SMTP_PORT":      strconv.Itoa(s.smtp.Port()),
		"MAILKIT_SMTP_USERNAME":  s.smtp.Username(),
		"MAILKIT_SMTP_PASSWORD":  s.smtp.Password(),
		"MAILKIT_STORE_PROTOCOL": store,
	}
	if store == "pop3" {
		env["MAILKIT_STORE_HOST"] = s.pop3.Host()
		env["MAILKIT_STORE_PORT"] = strconv.Itoa(s.pop3.Port())
		env["MAILKIT_STORE_USERNAME"] = s.pop3.Username()
		env["MAILKIT_STORE_PASSWORD"] = s.pop3.Password()
	} else {
		env["MAILKIT_STORE_HOST"] = s.imap.Host()
		env["MAILKIT_STORE_PORT"] = strconv.Itoa(s.imap.Port())
		env["MAILKIT_STORE_USERNAME"] = s.imap.Username()
		env["MAILKIT_STORE_PASSWORD"] = s.imap.Password()
	}
	return env
}
