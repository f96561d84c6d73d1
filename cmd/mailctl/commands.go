package main

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/vdavid/mailkit/client"
	"github.com/vdavid/mailkit/email"
	"github.com/vdavid/mailkit/internal/config"
	"github.com/vdavid/mailkit/internal/crypto"
	"github.com/vdavid/mailkit/mailbox"
	"github.com/vdavid/mailkit/search"
)

func (m *mailctl) config(ctx *cli.Context) (*config.Config, error) {
	if m.cfg != nil {
		return m.cfg, nil
	}

	cfg, err := config.NewConfig(ctx.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if !ctx.Bool("verbose") {
		m.logger.SetLevel(cfg.LogLevel)
	}

	m.cfg = cfg
	return cfg, nil
}

func storeAccount(cfg *config.Config) (config.Account, error) {
	if !cfg.Store.Configured() {
		return config.Account{}, errors.New("no store account configured, set MAILKIT_STORE_HOST")
	}
	return cfg.Store, nil
}

// connect opens a mailbox session on the configured store account.
func (m *mailctl) connect(ctx *cli.Context) (*mailbox.Session, error) {
	cfg, err := m.config(ctx)
	if err != nil {
		return nil, err
	}
	a, err := storeAccount(cfg)
	if err != nil {
		return nil, err
	}

	if a.Protocol.IsPOP3() {
		c, err := client.NewPOP3Client(a.Username, a.Password, a.Host, a.Port, cfg.Client(a, m.logger))
		if err != nil {
			return nil, err
		}
		return c.Session, nil
	}

	c, err := client.NewIMAPClient(a.Username, a.Password, a.Host, a.Port, cfg.Client(a, m.logger))
	if err != nil {
		return nil, err
	}
	return c.Session, nil
}

func (m *mailctl) send(ctx *cli.Context) error {
	cfg, err := m.config(ctx)
	if err != nil {
		return err
	}
	a := cfg.SMTP
	if !a.Configured() {
		return errors.New("no SMTP account configured, set MAILKIT_SMTP_HOST")
	}

	b := email.NewBuilder().
		From(ctx.String("from")).
		To(ctx.StringSlice("to")...).
		Cc(ctx.StringSlice("cc")...).
		Bcc(ctx.StringSlice("bcc")...).
		ReplyTo(ctx.StringSlice("reply-to")...).
		Subject(ctx.String("subject"))

	text := ctx.String("body")
	if path := ctx.String("body-file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read body: %w", err)
		}
		text = string(data)
	}
	if ctx.Bool("html") {
		b.Body(email.HTMLBody(text))
	} else {
		b.Body(email.NewBody(text, "text/plain", email.UTF8))
	}

	for _, h := range ctx.StringSlice("header") {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return fmt.Errorf("header %q is not in the form \"Name: value\"", h)
		}
		b.Header(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	for _, path := range ctx.StringSlice("attach") {
		attachment, err := readAttachment(path)
		if err != nil {
			return err
		}
		b.Attachment(attachment)
	}

	e, err := b.Build()
	if err != nil {
		return err
	}

	c, err := client.NewSMTPClient(a.Username, a.Password, a.Host, a.Port, cfg.Client(a, m.logger))
	if err != nil {
		return err
	}
	if err := c.Send(e); err != nil {
		return err
	}

	return m.print(result{Sent: 1})
}

func readAttachment(path string) (email.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return email.Attachment{}, fmt.Errorf("failed to read attachment: %w", err)
	}

	name := filepath.Base(path)
	format := mime.TypeByExtension(filepath.Ext(name))
	if format == "" {
		format = "application/octet-stream"
	}
	format, _, _ = strings.Cut(format, ";")
	return email.NewAttachment(name, data, format, ""), nil
}

func (m *mailctl) folders(ctx *cli.Context) error {
	s, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer s.Disconnect()

	names, err := s.ListFolders()
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := m.print(folderInfo{Name: name}); err != nil {
			return err
		}
	}
	return nil
}

func (m *mailctl) count(ctx *cli.Context) error {
	s, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer s.Disconnect()

	f, err := s.OpenFolder(ctx.String("folder"), email.ReadOnly)
	if err != nil {
		return err
	}
	n, err := s.MessageCount(f)
	if err != nil {
		return err
	}
	return m.print(folderInfo{Name: f.Name(), Messages: &n})
}

func (m *mailctl) list(ctx *cli.Context) error {
	s, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer s.Disconnect()

	f, err := s.OpenFolder(ctx.String("folder"), email.ReadOnly)
	if err != nil {
		return err
	}

	limit := ctx.Int("limit")
	if limit <= 0 {
		limit = email.AllMessages
	}
	messages, err := s.Retrieve(f, ctx.Bool("content"), limit)
	if err != nil {
		return err
	}
	return m.printMessages(messages, ctx.Bool("content"))
}

func (m *mailctl) fetch(ctx *cli.Context) error {
	cfg, err := m.config(ctx)
	if err != nil {
		return err
	}
	folder := ctx.String("folder")
	remove := ctx.Bool("delete")

	a, err := storeAccount(cfg)
	if err != nil {
		return err
	}

	if a.Protocol.IsPOP3() {
		c, err := client.NewPOP3Client(a.Username, a.Password, a.Host, a.Port, cfg.Client(a, m.logger))
		if err != nil {
			return err
		}
		defer c.Disconnect()

		messages, err := c.FetchAll(folder, remove)
		if err != nil {
			return err
		}
		return m.printMessages(messages, true)
	}

	s, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer s.Disconnect()

	mode := email.ReadOnly
	if remove {
		mode = email.ReadWrite
	}
	f, err := s.OpenFolder(folder, mode)
	if err != nil {
		return err
	}
	messages, err := s.Retrieve(f, true, email.AllMessages)
	if err != nil {
		return err
	}
	if remove && len(messages) > 0 {
		if err := s.Delete(messages...); err != nil {
			return err
		}
	}
	return m.printMessages(messages, true)
}

func (m *mailctl) search(ctx *cli.Context) error {
	folder, term, err := search.ParseQuery(strings.Join(ctx.Args().Slice(), " "))
	if err != nil {
		return err
	}

	s, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer s.Disconnect()

	readContent := ctx.Bool("content")
	var messages []*email.Stored
	if to := ctx.String("move-to"); to != "" {
		f, err := s.OpenFolder(folder, email.ReadWrite)
		if err != nil {
			return err
		}
		messages, err = s.SearchAndMove(f, readContent, to, term)
		if err != nil {
			return err
		}
	} else {
		f, err := s.OpenFolder(folder, email.ReadOnly)
		if err != nil {
			return err
		}
		messages, err = s.Search(f, readContent, term)
		if err != nil {
			return err
		}
	}
	return m.printMessages(messages, readContent)
}

func (m *mailctl) move(ctx *cli.Context) error {
	s, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer s.Disconnect()

	f, err := s.OpenFolder(ctx.String("folder"), email.ReadWrite)
	if err != nil {
		return err
	}
	to := ctx.String("to")

	if n := ctx.Int("first"); n > 0 {
		if err := s.MoveFirst(f, n, to); err != nil {
			return err
		}
		return m.print(result{Moved: n})
	}

	messages, err := m.retrieveArgs(ctx, s, f)
	if err != nil {
		return err
	}
	if err := s.Move(f, messages, to); err != nil {
		return err
	}
	return m.print(result{Moved: len(messages)})
}

func (m *mailctl) mark(ctx *cli.Context) error {
	flag, err := email.ParseFlag(ctx.String("flag"))
	if err != nil {
		return err
	}

	s, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer s.Disconnect()

	f, err := s.OpenFolder(ctx.String("folder"), email.ReadWrite)
	if err != nil {
		return err
	}

	if !ctx.Bool("clear") {
		ids, err := parseIDs(ctx.Args().Slice())
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := s.MarkByID(f, flag, id); err != nil {
				return err
			}
		}
		return m.print(result{Marked: len(ids)})
	}

	messages, err := m.retrieveArgs(ctx, s, f)
	if err != nil {
		return err
	}
	if err := s.Unmark(flag, messages...); err != nil {
		return err
	}
	return m.print(result{Marked: len(messages)})
}

func (m *mailctl) delete(ctx *cli.Context) error {
	s, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer s.Disconnect()

	f, err := s.OpenFolder(ctx.String("folder"), email.ReadWrite)
	if err != nil {
		return err
	}

	if n := ctx.Int("number"); n > 0 {
		if err := s.DeleteByNumber(f, n); err != nil {
			return err
		}
		// POP3 commits deletions when the folder is closed with expunge.
		if err := s.CloseFolder(true); err != nil {
			return err
		}
		return m.print(result{Deleted: 1})
	}

	ids, err := parseIDs(ctx.Args().Slice())
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.DeleteByID(f, id); err != nil {
			return err
		}
	}
	return m.print(result{Deleted: len(ids)})
}

func (m *mailctl) encryptPassword(ctx *cli.Context) error {
	if ctx.Args().Len() != 1 {
		return errors.New("expected exactly one PASSWORD argument")
	}

	sealer, err := crypto.NewPasswordSealer(ctx.String("key"))
	if err != nil {
		return err
	}
	sealed, err := sealer.Seal(ctx.Args().First())
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(m.out, sealed)
	return err
}

// retrieveArgs retrieves the headers of the messages whose ids are the command arguments.
func (m *mailctl) retrieveArgs(ctx *cli.Context, s *mailbox.Session, f *mailbox.Folder) ([]*email.Stored, error) {
	ids, err := parseIDs(ctx.Args().Slice())
	if err != nil {
		return nil, err
	}

	messages := make([]*email.Stored, 0, len(ids))
	for _, id := range ids {
		msg, err := s.RetrieveByID(f, id, false)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func parseIDs(args []string) ([]int64, error) {
	if len(args) == 0 {
		return nil, errors.New("no message ids given")
	}

	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id < 1 {
			return nil, fmt.Errorf("invalid message id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
