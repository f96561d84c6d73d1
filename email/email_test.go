package email

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoredOnlyAccessors(t *testing.T) {
	outgoing, err := NewBuilder().From("a@test.com").To("b@test.com").Text("x").Build()
	require.NoError(t, err)

	received := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	stored := NewStored(StoredFields{
		ID:           42,
		Number:       3,
		ReceivedDate: received,
		Flags:        Flags{Seen: true},
	})

	t.Run("outgoing fails with unsupported operation", func(t *testing.T) {
		_, err := IDOf(outgoing)
		assert.ErrorIs(t, err, ErrUnsupportedOperation)
		_, err = NumberOf(outgoing)
		assert.ErrorIs(t, err, ErrUnsupportedOperation)
		_, err = ReceivedDateOf(outgoing)
		assert.ErrorIs(t, err, ErrUnsupportedOperation)
		_, err = FlagsOf(outgoing)
		assert.ErrorIs(t, err, ErrUnsupportedOperation)
	})

	t.Run("stored returns its fields", func(t *testing.T) {
		id, err := IDOf(stored)
		require.NoError(t, err)
		assert.Equal(t, int64(42), id)

		number, err := NumberOf(stored)
		require.NoError(t, err)
		assert.Equal(t, 3, number)

		date, err := ReceivedDateOf(stored)
		require.NoError(t, err)
		assert.Equal(t, received, date)

		flags, err := FlagsOf(stored)
		require.NoError(t, err)
		assert.True(t, flags.Seen)
	})
}

func TestNewStored(t *testing.T) {
	t.Run("bcc is always empty", func(t *testing.T) {
		s := NewStored(StoredFields{To: []string{"a@test.com"}})
		assert.NotNil(t, s.Bcc())
		assert.Empty(t, s.Bcc())
	})

	t.Run("missing subject becomes the placeholder", func(t *testing.T) {
		s := NewStored(StoredFields{})
		assert.Equal(t, NoSubject, s.Subject())
	})

	t.Run("copies input slices", func(t *testing.T) {
		from := []string{"a@test.com"}
		s := NewStored(StoredFields{From: from})
		from[0] = "mutated@test.com"
		assert.Equal(t, []string{"a@test.com"}, s.From())
	})

	t.Run("unknown dates report absence", func(t *testing.T) {
		s := NewStored(StoredFields{ID: NoID})
		_, ok := s.SentDate()
		assert.False(t, ok)
		_, ok = s.ReceivedDate()
		assert.False(t, ok)
		assert.Equal(t, int64(-1), s.ID())
	})
}

func TestFlags(t *testing.T) {
	f := Flags{Answered: true, Recent: true}
	for _, flag := range AllFlags {
		t.Run(flag.String(), func(t *testing.T) {
			want := flag == FlagAnswered || flag == FlagRecent
			assert.Equal(t, want, f.Has(flag))

			parsed, err := ParseFlag(flag.String())
			require.NoError(t, err)
			assert.Equal(t, flag, parsed)
		})
	}

	t.Run("parse is case-insensitive", func(t *testing.T) {
		flag, err := ParseFlag("seen")
		require.NoError(t, err)
		assert.Equal(t, FlagSeen, flag)
	})

	t.Run("parse rejects unknown names", func(t *testing.T) {
		_, err := ParseFlag("flagged")
		assert.ErrorIs(t, err, ErrInvariantViolation)
	})
}

func TestBodyAndAttachment(t *testing.T) {
	t.Run("format is lowercased", func(t *testing.T) {
		b := NewBody("<p>x</p>", "Text/HTML", "UTF-8")
		assert.Equal(t, "text/html; charset=UTF-8", b.ContentType())
	})

	t.Run("unknown charset omits the clause", func(t *testing.T) {
		b := NewBody("x", "text/plain", "")
		assert.Equal(t, "text/plain", b.ContentType())
	})

	t.Run("zero body", func(t *testing.T) {
		assert.True(t, Body{}.IsZero())
		assert.False(t, TextBody("").IsZero())
	})

	t.Run("attachment content is copied", func(t *testing.T) {
		raw := []byte("abc")
		a := NewAttachment("f.bin", raw, "application/octet-stream", "")
		raw[0] = 'z'
		content := a.Content()
		assert.Equal(t, []byte("abc"), content)
		content[1] = 'z'
		assert.Equal(t, []byte("abc"), a.Content())
	})

	t.Run("header values are case-insensitive", func(t *testing.T) {
		headers := []Header{{"X-A", "1"}, {"x-a", "2"}, {"X-B", "3"}}
		assert.Equal(t, []string{"1", "2"}, HeaderValues(headers, "X-A"))
		assert.Nil(t, HeaderValues(headers, "X-C"))
	})
}

func TestError(t *testing.T) {
	cause := assert.AnError
	err := NewError(ErrMailbox, "open folder [INBOX]", cause)
	assert.ErrorIs(t, err, ErrMailbox)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrRetrieval)
	assert.Equal(t, "mailbox error: open folder [INBOX]: "+cause.Error(), err.Error())
}
