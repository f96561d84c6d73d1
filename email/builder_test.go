package email

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_Build(t *testing.T) {
	t.Run("round-trips every attribute", func(t *testing.T) {
		e, err := NewBuilder().
			Subject("Test subject").
			From("person4@test.com").
			To("person1@test.com").
			Cc("person2@test.com").
			Cc("person3@test.com").
			Bcc("person5@test.com").
			ReplyTo("reply@test.com").
			Header("H", "V").
			Header("H", "W").
			Text("Test content").
			Build()
		require.NoError(t, err)

		assert.Equal(t, "Test subject", e.Subject())
		assert.Equal(t, []string{"person4@test.com"}, e.From())
		assert.Equal(t, []string{"person1@test.com"}, e.To())
		assert.Equal(t, []string{"person2@test.com", "person3@test.com"}, e.Cc())
		assert.Equal(t, []string{"person5@test.com"}, e.Bcc())
		assert.Equal(t, []string{"reply@test.com"}, e.ReplyTo())
		assert.Equal(t, "Test content", e.Body().Content())
		assert.Equal(t, "text/plain; charset=US-ASCII", e.Body().ContentType())
		assert.Equal(t, []Header{{Name: "H", Value: "V"}, {Name: "H", Value: "W"}}, e.Headers())
		assert.Empty(t, e.Attachments())
	})

	t.Run("empty subject becomes the placeholder", func(t *testing.T) {
		e, err := NewBuilder().From("a@test.com").To("b@test.com").Text("x").Build()
		require.NoError(t, err)
		assert.Equal(t, NoSubject, e.Subject())
	})

	t.Run("stamps the sent date", func(t *testing.T) {
		fixed := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
		b := NewBuilder().From("a@test.com").Bcc("b@test.com").Text("x")
		b.now = func() time.Time { return fixed }

		e, err := b.Build()
		require.NoError(t, err)
		sent, ok := e.SentDate()
		assert.True(t, ok)
		assert.Equal(t, fixed, sent)
	})

	t.Run("keeps attachments in order", func(t *testing.T) {
		e, err := NewBuilder().
			From("a@test.com").
			To("b@test.com").
			Text("x").
			Attachment(TextAttachment("id1", "one")).
			Attachment(TextAttachment("id2", "two"), TextAttachment("id3", "three")).
			Build()
		require.NoError(t, err)

		atts := e.Attachments()
		require.Len(t, atts, 3)
		assert.Equal(t, "id1", atts[0].ID())
		assert.Equal(t, "id2", atts[1].ID())
		assert.Equal(t, []byte("three"), atts[2].Content())
	})
}

func TestBuilder_BuildInvariants(t *testing.T) {
	tests := []struct {
		name    string
		builder *Builder
		missing Attribute
	}{
		{
			name:    "without from",
			builder: NewBuilder().To("b@test.com").Text("x"),
			missing: AttrFrom,
		},
		{
			name:    "without body",
			builder: NewBuilder().From("a@test.com").To("b@test.com"),
			missing: AttrBody,
		},
		{
			name:    "without recipients",
			builder: NewBuilder().From("a@test.com").Text("x"),
			missing: AttrRecipients,
		},
		{
			name:    "from is checked first",
			builder: NewBuilder(),
			missing: AttrFrom,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := tt.builder.Build()
			assert.Nil(t, e)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvariantViolation)

			var inv *InvariantError
			require.True(t, errors.As(err, &inv))
			assert.Equal(t, tt.missing, inv.Missing)
		})
	}
}

func TestOutgoing_IsFrozen(t *testing.T) {
	b := NewBuilder().From("a@test.com").To("b@test.com").Text("x").Header("H", "V")
	e, err := b.Build()
	require.NoError(t, err)

	b.To("c@test.com").Header("K", "W")
	assert.Equal(t, []string{"b@test.com"}, e.To())
	assert.Len(t, e.Headers(), 1)

	to := e.To()
	to[0] = "mutated@test.com"
	assert.Equal(t, []string{"b@test.com"}, e.To())
}
