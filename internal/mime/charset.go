package mime

import (
	stdmime "mime"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"

	"github.com/vdavid/mailkit/email"
)

var wordDecoder = stdmime.WordDecoder{CharsetReader: charset.Reader}

// lookupCharset returns the canonical MIME name and the decoder of a charset label.
// ok is false when the label is unknown or has no decoder.
func lookupCharset(label string) (string, encoding.Encoding, bool) {
	label = strings.Trim(strings.TrimSpace(label), `"'`)
	if label == "" {
		return "", nil, false
	}
	enc, err := ianaindex.MIME.Encoding(label)
	if err != nil || enc == nil {
		return "", nil, false
	}
	name, err := ianaindex.MIME.Name(enc)
	if err != nil {
		name = strings.ToUpper(label)
	}
	return name, enc, true
}

// resolveCharset turns a Content-Type charset parameter into a canonical name and decoder.
// An RFC 2047 encoded parameter is decoded first. An absent or unknown parameter resolves
// to fallback, and an unknown fallback to US-ASCII.
func resolveCharset(param, fallback string) (string, encoding.Encoding, bool) {
	if strings.Contains(param, "=?") {
		if decoded, err := wordDecoder.DecodeHeader(param); err == nil {
			param = decoded
		}
	}
	if name, enc, ok := lookupCharset(param); ok {
		return name, enc, true
	}
	if name, enc, ok := lookupCharset(fallback); ok {
		return name, enc, false
	}
	name, enc, _ := lookupCharset(email.DefaultCharset)
	return name, enc, false
}

// convertedByReader reports whether go-message already decoded the body of a leaf entity to UTF-8.
// It does so for text parts with a declared charset other than UTF-8 and US-ASCII, unless the
// charset was unknown to it.
func convertedByReader(mediaType, declared string, entityErr error) bool {
	if !strings.HasPrefix(mediaType, "text/") || declared == "" {
		return false
	}
	switch strings.ToLower(declared) {
	case "utf-8", "us-ascii":
		return false
	}
	return !message.IsUnknownCharset(entityErr)
}

// decodeText decodes the body of a text leaf to a UTF-8 string and reports the charset name.
func decodeText(raw []byte, mediaType string, params map[string]string, entityErr error, fallback string) (string, string, error) {
	declared := params["charset"]
	name, enc, known := resolveCharset(declared, fallback)

	if convertedByReader(mediaType, declared, entityErr) {
		if !known {
			name = declared
		}
		return string(raw), name, nil
	}

	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", "", err
	}
	return string(decoded), name, nil
}
