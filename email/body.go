package email

import (
	"fmt"
	"strings"
)

const (
	// DefaultCharset is used whenever a charset is absent or cannot be decoded.
	DefaultCharset = "US-ASCII"
	// UTF8 is the canonical name of the UTF-8 charset.
	UTF8 = "UTF-8"

	TextPlain = "text/plain"
	TextHTML  = "text/html"
)

// Body is the text content of an email.
type Body struct {
	content string
	format  string
	charset string
}

// NewBody creates a body with the given media type and charset.
// The media type is lowercased. An empty charset leaves the charset unknown.
func NewBody(content, format, charset string) Body {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = TextPlain
	}
	return Body{content: content, format: format, charset: charset}
}

// TextBody creates a text/plain body in the default charset.
func TextBody(content string) Body {
	return NewBody(content, TextPlain, DefaultCharset)
}

// HTMLBody creates a text/html body encoded as UTF-8.
func HTMLBody(content string) Body {
	return NewBody(content, TextHTML, UTF8)
}

// Content returns the decoded text.
func (b Body) Content() string {
	return b.content
}

// Format returns the lowercased media type, e.g. "text/plain".
func (b Body) Format() string {
	return b.format
}

// Charset returns the charset name, or "" when unknown.
func (b Body) Charset() string {
	return b.charset
}

// ContentType returns "{format}; charset={charset}", omitting the charset clause when unknown.
func (b Body) ContentType() string {
	if b.charset == "" {
		return b.format
	}
	return fmt.Sprintf("%s; charset=%s", b.format, b.charset)
}

// IsZero reports whether the body was never set.
func (b Body) IsZero() bool {
	return b.format == ""
}
