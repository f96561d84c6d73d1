package email

import "time"

// Builder accumulates the attributes of an outgoing email. All address and header
// methods are additive. A Builder is not safe for concurrent use.
type Builder struct {
	subject     string
	from        []string
	replyTo     []string
	to          []string
	cc          []string
	bcc         []string
	headers     []Header
	body        Body
	attachments []Attachment
	now         func() time.Time
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{now: time.Now}
}

func (b *Builder) Subject(subject string) *Builder {
	b.subject = subject
	return b
}

func (b *Builder) From(addresses ...string) *Builder {
	b.from = append(b.from, addresses...)
	return b
}

func (b *Builder) ReplyTo(addresses ...string) *Builder {
	b.replyTo = append(b.replyTo, addresses...)
	return b
}

func (b *Builder) To(addresses ...string) *Builder {
	b.to = append(b.to, addresses...)
	return b
}

func (b *Builder) Cc(addresses ...string) *Builder {
	b.cc = append(b.cc, addresses...)
	return b
}

func (b *Builder) Bcc(addresses ...string) *Builder {
	b.bcc = append(b.bcc, addresses...)
	return b
}

// Header appends a header field. Duplicate names are kept.
func (b *Builder) Header(name, value string) *Builder {
	b.headers = append(b.headers, Header{Name: name, Value: value})
	return b
}

func (b *Builder) Body(body Body) *Builder {
	b.body = body
	return b
}

// Text sets a text/plain body in the default charset.
func (b *Builder) Text(content string) *Builder {
	return b.Body(TextBody(content))
}

func (b *Builder) Attachment(attachments ...Attachment) *Builder {
	b.attachments = append(b.attachments, attachments...)
	return b
}

// Build validates the accumulated attributes and returns a frozen Outgoing email
// stamped with the current time as its sent date.
func (b *Builder) Build() (*Outgoing, error) {
	if len(b.from) == 0 {
		return nil, &InvariantError{Missing: AttrFrom}
	}
	if b.body.IsZero() {
		return nil, &InvariantError{Missing: AttrBody}
	}
	if len(b.to) == 0 && len(b.cc) == 0 && len(b.bcc) == 0 {
		return nil, &InvariantError{Missing: AttrRecipients}
	}

	now := time.Now
	if b.now != nil {
		now = b.now
	}

	return &Outgoing{envelope: envelope{
		subject:     normalizeSubject(b.subject),
		from:        copyStrings(b.from),
		replyTo:     copyStrings(b.replyTo),
		to:          copyStrings(b.to),
		cc:          copyStrings(b.cc),
		bcc:         copyStrings(b.bcc),
		sentDate:    now(),
		body:        b.body,
		attachments: copyAttachments(b.attachments),
		headers:     append([]Header(nil), b.headers...),
	}}, nil
}
