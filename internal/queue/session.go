package queue

import (
	"fmt"

	"github.com/google/uuid"
)

// SessionToken correlates one request with its reply. Tokens are opaque:
// callers generate, compare and print them, nothing else.
type SessionToken struct {
	id uuid.UUID
}

// NewSessionToken returns a fresh random token.
func NewSessionToken() SessionToken {
	return SessionToken{id: uuid.New()}
}

// ParseSessionToken restores a token from its String form.
func ParseSessionToken(s string) (SessionToken, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return SessionToken{}, fmt.Errorf("queue: invalid session token %q: %w", s, err)
	}
	return SessionToken{id: id}, nil
}

// String returns the wire form, or "" for the zero token.
func (t SessionToken) String() string {
	if t.IsZero() {
		return ""
	}
	return t.id.String()
}

// IsZero reports whether t was never assigned.
func (t SessionToken) IsZero() bool {
	return t.id == uuid.Nil
}

// Equal reports whether two tokens identify the same session.
func (t SessionToken) Equal(other SessionToken) bool {
	return t.id == other.id
}
