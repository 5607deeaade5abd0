package channels

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetriableClassification(t *testing.T) {
	assert.True(t, Retriable(transient("provider 503")))
	assert.False(t, Retriable(fatal("invalid recipient")))

	// Wrapped classification survives.
	wrapped := errors.Join(errors.New("send failed"), fatal("template rejected"))
	assert.False(t, Retriable(wrapped))

	// Unknown errors (timeouts, transport failures) default to retriable.
	assert.True(t, Retriable(context.DeadlineExceeded))
	assert.True(t, Retriable(errors.New("connection reset")))
}

func TestSendErrorMessage(t *testing.T) {
	err := &SendError{Message: "provider 429", Retriable: true}
	assert.Equal(t, "provider 429", err.Error())
}
