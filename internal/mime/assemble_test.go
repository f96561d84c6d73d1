package mime

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vdavid/mailkit/email"
)

func buildEmail(t *testing.T, configure func(b *email.Builder)) *email.Outgoing {
	t.Helper()

	b := email.NewBuilder().
		Subject("Test subject").
		From("Sender <sender@test.com>").
		To("to1@test.com", "to2@test.com").
		Cc("cc@test.com").
		Bcc("hidden@test.com").
		Text("Test content")
	if configure != nil {
		configure(b)
	}

	e, err := b.Build()
	require.NoError(t, err)
	return e
}

func TestAssemble_SinglePart(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 30, 45, 0, time.UTC)
	e := buildEmail(t, func(b *email.Builder) {
		b.Header("X-Trace", "one").Header("X-Trace", "two")
	})

	msg, err := Assemble(e, now)
	require.NoError(t, err)

	t.Run("envelope", func(t *testing.T) {
		assert.Equal(t, "sender@test.com", msg.From)
		assert.Equal(t, []string{"to1@test.com", "to2@test.com", "cc@test.com", "hidden@test.com"}, msg.Recipients)
	})

	t.Run("data never carries Bcc", func(t *testing.T) {
		assert.NotContains(t, string(msg.Data), "hidden@test.com")
		assert.NotContains(t, strings.ToLower(string(msg.Data)), "\nbcc:")
	})

	t.Run("round trip", func(t *testing.T) {
		env, content, err := Read(msg.Data, Options{ReadContent: true})
		require.NoError(t, err)

		assert.Equal(t, "Test subject", env.Subject)
		assert.Equal(t, []string{"Sender <sender@test.com>"}, env.From)
		assert.Equal(t, []string{"to1@test.com", "to2@test.com"}, env.To)
		assert.Equal(t, []string{"cc@test.com"}, env.Cc)
		assert.True(t, now.Equal(env.SentDate), "got %v", env.SentDate)
		assert.Equal(t, []string{"one", "two"}, email.HeaderValues(env.Headers, "X-Trace"))
		assert.Equal(t, []string{"inline"}, email.HeaderValues(env.Headers, "Content-Disposition"))

		assert.Equal(t, "Test content", content.Body.Content())
		assert.Equal(t, email.TextPlain, content.Body.Format())
		assert.Empty(t, content.Attachments)
	})
}

func TestAssemble_Multipart(t *testing.T) {
	e := buildEmail(t, func(b *email.Builder) {
		b.Attachment(email.TextAttachment("notes.txt", "some notes"))
		b.Attachment(email.NewAttachment("image.png", []byte{0x89, 'P', 'N', 'G'}, "image/png", ""))
	})

	msg, err := Assemble(e, time.Now())
	require.NoError(t, err)

	assert.Contains(t, string(msg.Data), "multipart/mixed")

	_, content, err := Read(msg.Data, Options{ReadContent: true})
	require.NoError(t, err)

	assert.Equal(t, "Test content", content.Body.Content())
	require.Len(t, content.Attachments, 2)
	assert.Equal(t, "notes.txt", content.Attachments[0].ID())
	assert.Equal(t, []byte("some notes"), content.Attachments[0].Content())
	assert.Equal(t, "text/plain", content.Attachments[0].Format())
	assert.Equal(t, "image.png", content.Attachments[1].ID())
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, content.Attachments[1].Content())
	assert.Equal(t, "image/png", content.Attachments[1].Format())
}

func TestAssemble_NonASCIIBodyIsSentAsUTF8(t *testing.T) {
	e := buildEmail(t, func(b *email.Builder) {
		b.Body(email.NewBody("Grüße", email.TextPlain, "ISO-8859-1"))
	})

	msg, err := Assemble(e, time.Now())
	require.NoError(t, err)

	_, content, err := Read(msg.Data, Options{ReadContent: true})
	require.NoError(t, err)
	assert.Equal(t, "Grüße", content.Body.Content())
	assert.Equal(t, email.UTF8, content.Body.Charset())
}

func TestAssemble_InvalidAddress(t *testing.T) {
	tests := []struct {
		name      string
		configure func(b *email.Builder)
	}{
		{name: "to", configure: func(b *email.Builder) { b.To("not an address") }},
		{name: "cc", configure: func(b *email.Builder) { b.Cc("@@") }},
		{name: "bcc", configure: func(b *email.Builder) { b.Bcc("missing-at.test.com") }},
		{name: "reply-to", configure: func(b *email.Builder) { b.ReplyTo("<>") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := buildEmail(t, tt.configure)

			_, err := Assemble(e, time.Now())
			assert.ErrorIs(t, err, email.ErrSend)
		})
	}
}

func TestBodyParams(t *testing.T) {
	tests := []struct {
		name string
		body email.Body
		want map[string]string
	}{
		{name: "ascii without charset", body: email.NewBody("hi", email.TextPlain, ""), want: map[string]string{}},
		{name: "ascii declared", body: email.NewBody("hi", email.TextPlain, "us-ascii"), want: map[string]string{"charset": "US-ASCII"}},
		{name: "utf-8 declared", body: email.NewBody("hé", email.TextPlain, "utf-8"), want: map[string]string{"charset": "UTF-8"}},
		{name: "non-ascii without charset", body: email.NewBody("hé", email.TextPlain, ""), want: map[string]string{"charset": "UTF-8"}},
		{name: "non-ascii in ascii", body: email.NewBody("hé", email.TextPlain, "US-ASCII"), want: map[string]string{"charset": "UTF-8"}},
		{name: "other charset", body: email.NewBody("hi", email.TextPlain, "ISO-8859-1"), want: map[string]string{"charset": "UTF-8"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, bodyParams(tt.body))
		})
	}
}
