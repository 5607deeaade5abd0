// Package bus carries the platform event contract: the envelope every
// producer publishes, subject wildcard matching, and two interchangeable
// transports (NATS for deployment, in-memory for tests and single-process
// runs). Consumers must be idempotent; delivery is at-least-once.
package bus

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event is the platform envelope. It is immutable after publication; the
// bus itself is oblivious to its contents.
type Event struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"` // dotted subject, e.g. user.registered
	Source    string            `json:"source"`
	Timestamp time.Time         `json:"timestamp"`
	Data      map[string]any    `json:"data,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewEvent builds an envelope with a fresh id and UTC timestamp.
func NewEvent(eventType, source string, data map[string]any) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// WithMetadata returns a copy of the event with the metadata entry set.
func (e Event) WithMetadata(key, value string) Event {
	md := make(map[string]string, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		md[k] = v
	}
	md[key] = value
	e.Metadata = md
	return e
}

// StringData returns the string value under key in Data, or "" when absent
// or not a string.
func (e Event) StringData(key string) string {
	if e.Data == nil {
		return ""
	}
	s, _ := e.Data[key].(string)
	return s
}

// Domain returns the first token of the subject ("user" for
// "user.registered"), or the whole subject when it has no dot.
func (e Event) Domain() string {
	if i := strings.Index(e.Type, "."); i >= 0 {
		return e.Type[:i]
	}
	return e.Type
}

// Action returns the token after the first dot, or "" when there is none.
func (e Event) Action() string {
	if i := strings.Index(e.Type, "."); i >= 0 {
		return e.Type[i+1:]
	}
	return ""
}

// MatchSubject reports whether subject matches pattern. "*" matches exactly
// one token, so "*.*" matches any two-token subject. Token counts must be
// equal; there is no multi-token wildcard in the platform contract.
func MatchSubject(pattern, subject string) bool {
	if pattern == subject {
		return true
	}
	pTokens := strings.Split(pattern, ".")
	sTokens := strings.Split(subject, ".")
	if len(pTokens) != len(sTokens) {
		return false
	}
	for i, pt := range pTokens {
		if pt == "*" {
			continue
		}
		if pt != sTokens[i] {
			return false
		}
	}
	return true
}
