// Command mailctl sends and manages email from the command line using the account configured
// in .env, an optional config file and MAILKIT_* environment variables.
package main

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/vdavid/mailkit/email"
	"github.com/vdavid/mailkit/internal/config"
)

func main() {
	m := &mailctl{out: os.Stdout, errOut: os.Stderr, logger: logrus.New()}
	if err := m.app().Run(os.Args); err != nil {
		m.logger.WithError(err).Fatal("mailctl failed")
	}
}

type mailctl struct {
	out    io.Writer
	errOut io.Writer
	logger *logrus.Logger
	cfg    *config.Config
}

func (m *mailctl) app() *cli.App {
	return &cli.App{
		Name:      "mailctl",
		Usage:     "send, retrieve and organize email over SMTP, IMAP and POP3",
		Writer:    m.out,
		ErrWriter: m.errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				EnvVars: []string{"MAILKIT_CONFIG"},
				Usage:   "optional config file (yaml, json or toml)",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log at debug level",
			},
		},
		Before: func(ctx *cli.Context) error {
			m.logger.SetOutput(ctx.App.ErrWriter)
			m.logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
			if ctx.Bool("verbose") {
				m.logger.SetLevel(logrus.DebugLevel)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "send",
				Usage:     "Send an email",
				ArgsUsage: " ",
				Action:    m.send,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "from", Required: true},
					&cli.StringSliceFlag{Name: "to"},
					&cli.StringSliceFlag{Name: "cc"},
					&cli.StringSliceFlag{Name: "bcc"},
					&cli.StringSliceFlag{Name: "reply-to"},
					&cli.StringFlag{Name: "subject", Aliases: []string{"s"}},
					&cli.StringFlag{Name: "body", Aliases: []string{"b"}, Usage: "body text"},
					&cli.StringFlag{Name: "body-file", Usage: "read the body from a file"},
					&cli.BoolFlag{Name: "html", Usage: "send the body as text/html"},
					&cli.StringSliceFlag{Name: "attach", Aliases: []string{"a"}, Usage: "attach a file"},
					&cli.StringSliceFlag{Name: "header", Aliases: []string{"H"}, Usage: `extra header as "Name: value"`},
				},
			},
			{
				Name:   "folders",
				Usage:  "List folders",
				Action: m.folders,
			},
			{
				Name:   "count",
				Usage:  "Count the messages of a folder",
				Action: m.count,
				Flags:  []cli.Flag{folderFlag()},
			},
			{
				Name:   "list",
				Usage:  "List the first messages of a folder",
				Action: m.list,
				Flags: []cli.Flag{
					folderFlag(),
					contentFlag(),
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "number of messages, 0 for all"},
				},
			},
			{
				Name:   "fetch",
				Usage:  "Download all messages of a folder",
				Action: m.fetch,
				Flags: []cli.Flag{
					folderFlag(),
					&cli.BoolFlag{Name: "delete", Usage: "delete the messages after downloading them"},
				},
			},
			{
				Name:      "search",
				Usage:     "Search a folder",
				ArgsUsage: "QUERY",
				Description: "QUERY supports folder:, from:, to:, cc:, subject:, body:, before:YYYY-MM-DD,\n" +
					"after:YYYY-MM-DD, is:FLAG and -is:FLAG. Other words match anywhere in the message.",
				Action: m.search,
				Flags: []cli.Flag{
					contentFlag(),
					&cli.StringFlag{Name: "move-to", Usage: "move the matching messages to this folder"},
				},
			},
			{
				Name:      "move",
				Usage:     "Move messages to another folder",
				ArgsUsage: "ID...",
				Action:    m.move,
				Flags: []cli.Flag{
					folderFlag(),
					&cli.StringFlag{Name: "to", Required: true, Usage: "destination folder"},
					&cli.IntFlag{Name: "first", Usage: "move the first N messages instead of the given ids"},
				},
			},
			{
				Name:      "mark",
				Usage:     "Set or clear a flag",
				ArgsUsage: "ID...",
				Action:    m.mark,
				Flags: []cli.Flag{
					folderFlag(),
					&cli.StringFlag{Name: "flag", Required: true, Usage: "answered, deleted, draft, recent or seen"},
					&cli.BoolFlag{Name: "clear", Usage: "clear the flag instead of setting it"},
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete messages",
				ArgsUsage: "ID...",
				Action:    m.delete,
				Flags: []cli.Flag{
					folderFlag(),
					&cli.IntFlag{Name: "number", Usage: "delete the message at this position instead of the given ids"},
				},
			},
			{
				Name:      "encrypt-password",
				Usage:     "Seal a password for a *_PASSWORD_ENCRYPTED setting",
				ArgsUsage: "PASSWORD",
				Action:    m.encryptPassword,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "key", EnvVars: []string{"MAILKIT_ENCRYPTION_KEY_BASE64"}, Required: true},
				},
			},
		},
	}
}

func folderFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "folder",
		Aliases: []string{"f"},
		Value:   email.Inbox,
		Usage:   "folder to work on",
	}
}

func contentFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "content",
		Usage: "download bodies and attachments",
	}
}
