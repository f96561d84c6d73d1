package session

import (
	"strconv"
	"strings"
	"time"
)

// Properties is the string-keyed configuration table of a session.
type Properties map[string]string

// Get returns the trimmed value of key, or "" when unset.
func (p Properties) Get(key string) string {
	return strings.TrimSpace(p[key])
}

// Bool reports whether key is set to "true", case-insensitively.
func (p Properties) Bool(key string) bool {
	return strings.EqualFold(p.Get(key), "true")
}

// Int returns the integer value of key. ok is false when the key is unset or not a number.
func (p Properties) Int(key string) (int, bool) {
	v, err := strconv.Atoi(p.Get(key))
	if err != nil {
		return 0, false
	}
	return v, true
}

// Millis returns the value of key read as a number of milliseconds.
// Unset, malformed and non-positive values yield zero, which means no timeout.
func (p Properties) Millis(key string) time.Duration {
	v, ok := p.Int(key)
	if !ok || v <= 0 {
		return 0
	}
	return time.Duration(v) * time.Millisecond
}

// List splits the value of key on spaces and commas.
func (p Properties) List(key string) []string {
	return strings.FieldsFunc(p.Get(key), func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t'
	})
}

// Clone returns a copy of the table.
func (p Properties) Clone() Properties {
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func millis(seconds int) string {
	return strconv.FormatInt((time.Duration(seconds) * time.Second).Milliseconds(), 10)
}
