// Package mime converts between RFC 5322 wire messages and the email model. Process walks
// an incoming MIME tree into a body and attachments; Assemble writes an outgoing email.
package mime

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"

	"github.com/vdavid/mailkit/email"
)

// Options controls how a MIME tree is processed.
type Options struct {
	// ReadContent enables the traversal. When false, Process returns an empty body and no
	// attachments, so that a caller can avoid downloading (and marking as seen) the content.
	ReadContent bool
	// DefaultCharset decodes text parts without a usable charset parameter.
	// Empty means US-ASCII.
	DefaultCharset string
}

// Content is the result of processing a MIME tree.
type Content struct {
	Body        email.Body
	Attachments []email.Attachment
}

// Process walks the MIME tree rooted at e depth-first. Text leaves that are not
// attachments are joined with a line feed into the body, which is then trimmed. Leaves
// that carry a file name and either no disposition or an attachment disposition become
// attachments, in document order. Anything else is skipped.
func Process(e *message.Entity, opts Options) (Content, error) {
	return process(e, nil, opts)
}

func process(e *message.Entity, entityErr error, opts Options) (Content, error) {
	if !opts.ReadContent {
		return Content{Body: email.NewBody("", email.TextPlain, "")}, nil
	}

	p := &processor{fallback: opts.DefaultCharset}
	if p.fallback == "" {
		p.fallback = email.DefaultCharset
	}

	if err := p.walk(e, entityErr); err != nil {
		return Content{}, email.NewError(email.ErrContentProcessing, "process message content", err)
	}

	return p.content(), nil
}

// Read parses a raw message and processes it. With ReadContent unset only the header is read,
// so raw may hold just the header block.
func Read(raw []byte, opts Options) (Envelope, Content, error) {
	e, err := message.Read(bytes.NewReader(raw))
	if err != nil && !isRecoverable(err) {
		return Envelope{}, Content{}, email.NewError(email.ErrContentProcessing, "read message", err)
	}

	content, err := process(e, err, opts)
	if err != nil {
		return Envelope{}, Content{}, err
	}

	return ParseHeader(e.Header), content, nil
}

// isRecoverable reports whether go-message returned a readable entity despite err.
func isRecoverable(err error) bool {
	return message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)
}

type processor struct {
	fallback    string
	body        []string
	format      string
	charset     string
	attachments []email.Attachment
}

func (p *processor) content() Content {
	format := p.format
	if format == "" {
		format = email.TextPlain
	}
	return Content{
		Body:        email.NewBody(strings.TrimSpace(strings.Join(p.body, "\n")), format, p.charset),
		Attachments: p.attachments,
	}
}

func (p *processor) walk(e *message.Entity, entityErr error) error {
	if mr := e.MultipartReader(); mr != nil {
		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil && !isRecoverable(err) {
				return fmt.Errorf("failed to read part: %w", err)
			}
			if err := p.walk(part, err); err != nil {
				return err
			}
		}
	}

	mediaType, params, ctErr := e.Header.ContentType()
	if ctErr != nil || mediaType == "" {
		// RFC 2045 default for parts without a usable Content-Type.
		mediaType = email.TextPlain
		params = map[string]string{}
	}

	disposition, _, _ := e.Header.ContentDisposition()
	filename := partFilename(e.Header)

	if isAttachment(filename, disposition) {
		content, err := io.ReadAll(e.Body)
		if err != nil {
			return fmt.Errorf("failed to read attachment %q: %w", filename, err)
		}
		charsetName, _, _ := resolveCharset(params["charset"], p.fallback)
		p.attachments = append(p.attachments, email.NewAttachment(filename, content, mediaType, charsetName, headerList(e.Header)...))
		return nil
	}

	if !strings.HasPrefix(mediaType, "text/") {
		return nil
	}

	raw, err := io.ReadAll(e.Body)
	if err != nil {
		return fmt.Errorf("failed to read text part: %w", err)
	}
	text, charsetName, err := decodeText(raw, mediaType, params, entityErr, p.fallback)
	if err != nil {
		return fmt.Errorf("failed to decode text part: %w", err)
	}

	if p.format == "" {
		p.format = mediaType
		p.charset = charsetName
	}
	p.body = append(p.body, text)
	return nil
}

// isAttachment reports whether a part with the given file name and disposition is an attachment.
func isAttachment(filename, disposition string) bool {
	return filename != "" && (disposition == "" || strings.EqualFold(disposition, "attachment"))
}

// partFilename returns the file name of a part from its Content-Disposition or, failing that,
// its Content-Type name parameter. RFC 2047 encoded names are decoded.
func partFilename(h message.Header) string {
	ah := mail.AttachmentHeader{Header: h}
	filename, _ := ah.Filename()
	if strings.Contains(filename, "=?") {
		if decoded, err := wordDecoder.DecodeHeader(filename); err == nil {
			filename = decoded
		}
	}
	return filename
}
