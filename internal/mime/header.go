package mime

import (
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"

	"github.com/vdavid/mailkit/email"
)

// Envelope holds the header-level attributes of a message.
type Envelope struct {
	Subject  string
	From     []string
	ReplyTo  []string
	To       []string
	Cc       []string
	SentDate time.Time
	// Headers lists every header field in document order.
	Headers []email.Header
}

// ParseHeader extracts the envelope of a message from its header. Malformed address or
// date fields do not fail the parse: an unparsable address list is kept as the raw value
// and an unparsable date is left zero.
func ParseHeader(h message.Header) Envelope {
	mh := mail.Header{Header: h}

	subject, err := mh.Subject()
	if err != nil {
		subject = mh.Get("Subject")
	}

	env := Envelope{
		Subject: subject,
		From:    addressList(mh, "From"),
		ReplyTo: addressList(mh, "Reply-To"),
		To:      addressList(mh, "To"),
		Cc:      addressList(mh, "Cc"),
		Headers: headerList(h),
	}

	if date, err := mh.Date(); err == nil {
		env.SentDate = date
	}

	return env
}

func headerList(h message.Header) []email.Header {
	var headers []email.Header
	fields := h.Fields()
	for fields.Next() {
		value, err := fields.Text()
		if err != nil {
			value = fields.Value()
		}
		headers = append(headers, email.Header{Name: fields.Key(), Value: value})
	}
	return headers
}

func addressList(h mail.Header, key string) []string {
	raw := strings.TrimSpace(h.Get(key))
	if raw == "" {
		return nil
	}

	addresses, err := h.AddressList(key)
	if err != nil {
		return []string{raw}
	}

	result := make([]string, 0, len(addresses))
	for _, address := range addresses {
		if formatted := formatAddress(address); formatted != "" {
			result = append(result, formatted)
		}
	}
	return result
}

// formatAddress formats an address as "Name <user@host>", or "user@host" when it has no name.
func formatAddress(address *mail.Address) string {
	if address == nil || address.Address == "" {
		return ""
	}

	if address.Name != "" {
		return fmt.Sprintf("%s <%s>", address.Name, address.Address)
	}

	return address.Address
}
