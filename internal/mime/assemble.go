package mime

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/emersion/go-message/mail"

	"github.com/vdavid/mailkit/email"
)

// Message is an assembled outgoing message.
type Message struct {
	// From is the envelope sender: the first from-address.
	From string
	// Recipients lists the envelope recipients across To, Cc and Bcc, in that order.
	Recipients []string
	// Data is the RFC 5322 wire message. It never carries a Bcc field.
	Data []byte
}

// Assemble converts an email into a wire message dated now. A message without attachments
// is a single inline part; otherwise it is multipart/mixed with the inline body first and
// one attachment part per attachment. Invalid addresses fail with ErrSend.
func Assemble(e email.Email, now time.Time) (*Message, error) {
	from := e.From()
	if len(from) == 0 {
		return nil, &email.InvariantError{Missing: email.AttrFrom}
	}

	sender, err := parseAddress(from[0])
	if err != nil {
		return nil, err
	}
	to, err := parseAddresses(e.To())
	if err != nil {
		return nil, err
	}
	cc, err := parseAddresses(e.Cc())
	if err != nil {
		return nil, err
	}
	bcc, err := parseAddresses(e.Bcc())
	if err != nil {
		return nil, err
	}
	replyTo, err := parseAddresses(e.ReplyTo())
	if err != nil {
		return nil, err
	}

	var h mail.Header
	// Fields added later are written first, so custom headers go in reverse to keep their order.
	headers := e.Headers()
	for i := len(headers) - 1; i >= 0; i-- {
		h.Add(headers[i].Name, headers[i].Value)
	}
	h.SetAddressList("Reply-To", replyTo)
	h.SetSubject(e.Subject())
	h.SetDate(now)
	h.SetAddressList("Cc", cc)
	h.SetAddressList("To", to)
	h.SetAddressList("From", []*mail.Address{sender})

	var buf bytes.Buffer
	if len(e.Attachments()) == 0 {
		err = writeSinglePart(&buf, h, e.Body())
	} else {
		err = writeMultipart(&buf, h, e.Body(), e.Attachments())
	}
	if err != nil {
		return nil, email.NewError(email.ErrSend, "assemble message", err)
	}

	recipients := make([]string, 0, len(to)+len(cc)+len(bcc))
	for _, list := range [][]*mail.Address{to, cc, bcc} {
		for _, a := range list {
			recipients = append(recipients, a.Address)
		}
	}

	return &Message{From: sender.Address, Recipients: recipients, Data: buf.Bytes()}, nil
}

func writeSinglePart(w io.Writer, h mail.Header, body email.Body) error {
	h.Set("Content-Disposition", "inline")
	h.SetContentType(body.Format(), bodyParams(body))

	bw, err := mail.CreateSingleInlineWriter(w, h)
	if err != nil {
		return fmt.Errorf("failed to create inline writer: %w", err)
	}
	if _, err := io.WriteString(bw, body.Content()); err != nil {
		return fmt.Errorf("failed to write body: %w", err)
	}
	return bw.Close()
}

func writeMultipart(w io.Writer, h mail.Header, body email.Body, attachments []email.Attachment) error {
	mw, err := mail.CreateWriter(w, h)
	if err != nil {
		return fmt.Errorf("failed to create multipart writer: %w", err)
	}

	var ih mail.InlineHeader
	ih.SetContentType(body.Format(), bodyParams(body))
	bw, err := mw.CreateSingleInline(ih)
	if err != nil {
		return fmt.Errorf("failed to create body part: %w", err)
	}
	if _, err := io.WriteString(bw, body.Content()); err != nil {
		return fmt.Errorf("failed to write body: %w", err)
	}
	if err := bw.Close(); err != nil {
		return err
	}

	for _, a := range attachments {
		var ah mail.AttachmentHeader
		params := map[string]string{}
		if cs := writableCharset(a.Charset()); cs != "" {
			params["charset"] = cs
		}
		format := a.Format()
		if format == "" {
			format = "application/octet-stream"
		}
		ah.SetContentType(format, params)
		ah.SetFilename(a.ID())

		aw, err := mw.CreateAttachment(ah)
		if err != nil {
			return fmt.Errorf("failed to create attachment %q: %w", a.ID(), err)
		}
		if _, err := aw.Write(a.Content()); err != nil {
			return fmt.Errorf("failed to write attachment %q: %w", a.ID(), err)
		}
		if err := aw.Close(); err != nil {
			return err
		}
	}

	return mw.Close()
}

// bodyParams returns the Content-Type parameters of a body part. Go strings are UTF-8, so
// a body that is not representable in its declared charset is sent as UTF-8.
func bodyParams(body email.Body) map[string]string {
	switch cs := writableCharset(body.Charset()); {
	case cs == email.UTF8, cs == email.DefaultCharset && isASCII(body.Content()):
		return map[string]string{"charset": cs}
	case body.Charset() == "" && isASCII(body.Content()):
		return map[string]string{}
	default:
		return map[string]string{"charset": email.UTF8}
	}
}

// writableCharset returns the charset name if the message writer accepts it, or "".
func writableCharset(cs string) string {
	switch strings.ToLower(cs) {
	case "us-ascii":
		return email.DefaultCharset
	case "utf-8":
		return email.UTF8
	}
	return ""
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func parseAddress(address string) (*mail.Address, error) {
	parsed, err := mail.ParseAddress(address)
	if err != nil {
		return nil, email.NewError(email.ErrSend, fmt.Sprintf("invalid address %q", address), err)
	}
	return parsed, nil
}

func parseAddresses(addresses []string) ([]*mail.Address, error) {
	result := make([]*mail.Address, 0, len(addresses))
	for _, address := range addresses {
		parsed, err := parseAddress(address)
		if err != nil {
			return nil, err
		}
		result = append(result, parsed)
	}
	return result, nil
}
