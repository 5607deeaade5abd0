package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchSubject(t *testing.T) {
	cases := []struct {
		pattern string
		subject string
		want    bool
	}{
		{"user.registered", "user.registered", true},
		{"user.registered", "user.deleted", false},
		{"*.*", "user.registered", true},
		{"*.*", "payment.completed", true},
		{"*.*", "user", false},
		{"*.*", "a.b.c", false},
		{"user.*", "user.deleted", true},
		{"user.*", "file.deleted", false},
		{"*.deleted", "file.deleted", true},
		{"*.deleted", "file.updated", false},
		{"*", "user", true},
		{"*", "user.registered", false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, MatchSubject(tc.pattern, tc.subject),
			"pattern %q subject %q", tc.pattern, tc.subject)
	}
}

func TestEventDomainAction(t *testing.T) {
	e := NewEvent("user.registered", "test", nil)
	assert.Equal(t, "user", e.Domain())
	assert.Equal(t, "registered", e.Action())

	bare := NewEvent("heartbeat", "test", nil)
	assert.Equal(t, "heartbeat", bare.Domain())
	assert.Equal(t, "", bare.Action())
}

func TestNewEventFillsEnvelope(t *testing.T) {
	e := NewEvent("user.registered", "test", map[string]any{"user_id": "u1"})
	require.NotEmpty(t, e.ID)
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, "test", e.Source)
	assert.Equal(t, "u1", e.StringData("user_id"))
	assert.Equal(t, "", e.StringData("missing"))
}

func TestWithMetadataCopies(t *testing.T) {
	e := NewEvent("user.registered", "test", nil)
	e2 := e.WithMetadata("correlation_id", "c1")

	assert.Empty(t, e.Metadata)
	assert.Equal(t, "c1", e2.Metadata["correlation_id"])
}
