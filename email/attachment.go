package email

import (
	"fmt"
	"strings"
)

// Header is one header field. The same name may appear more than once in a header list.
type Header struct {
	Name  string
	Value string
}

// HeaderValues returns the values of every header named name, compared case-insensitively, in order.
func HeaderValues(headers []Header, name string) []string {
	var values []string
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			values = append(values, h.Value)
		}
	}
	return values
}

// Attachment is a file attached to an email.
type Attachment struct {
	id      string
	content []byte
	format  string
	charset string
	headers []Header
}

// NewAttachment creates an attachment named id.
func NewAttachment(id string, content []byte, format, charset string, headers ...Header) Attachment {
	return Attachment{
		id:      id,
		content: append([]byte(nil), content...),
		format:  strings.ToLower(strings.TrimSpace(format)),
		charset: charset,
		headers: append([]Header(nil), headers...),
	}
}

// TextAttachment creates a text/plain attachment.
func TextAttachment(id, text string) Attachment {
	return NewAttachment(id, []byte(text), TextPlain, DefaultCharset)
}

// ID returns the file name.
func (a Attachment) ID() string {
	return a.id
}

// Content returns a copy of the raw octets.
func (a Attachment) Content() []byte {
	return append([]byte(nil), a.content...)
}

// Format returns the lowercased media type.
func (a Attachment) Format() string {
	return a.format
}

// Charset returns the charset name, or "" when unknown.
func (a Attachment) Charset() string {
	return a.charset
}

// ContentType returns "{format}; charset={charset}", omitting the charset clause when unknown.
func (a Attachment) ContentType() string {
	format := a.format
	if format == "" {
		format = "application/octet-stream"
	}
	if a.charset == "" {
		return format
	}
	return fmt.Sprintf("%s; charset=%s", format, a.charset)
}

// Headers returns a copy of the part headers, typically Content-Type and Content-Disposition.
func (a Attachment) Headers() []Header {
	return append([]Header(nil), a.headers...)
}

func copyAttachments(in []Attachment) []Attachment {
	if len(in) == 0 {
		return nil
	}
	out := make([]Attachment, len(in))
	for i, a := range in {
		out[i] = NewAttachment(a.id, a.content, a.format, a.charset, a.headers...)
	}
	return out
}
