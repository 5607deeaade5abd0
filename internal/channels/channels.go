// Package channels holds the delivery adapters. Each adapter turns a
// Notification into a send against one transport and reports the outcome;
// retry policy lives in the pipeline, not here.
package channels

import (
	"context"
	"errors"

	"github.com/justinndidit/eventPipeline/internal/models"
)

// Adapter is a black-box sender for one notification type.
type Adapter interface {
	Type() models.NotificationType
	// Send returns the provider message id on success. Failures are
	// *SendError values so the pipeline can tell retriable from fatal.
	Send(ctx context.Context, n *models.Notification) (string, error)
}

// SendError classifies a delivery failure.
type SendError struct {
	Message   string
	Retriable bool
}

func (e *SendError) Error() string { return e.Message }

// Retriable reports whether the pipeline should retry after err. Unknown
// error types (timeouts, transport failures) count as retriable.
func Retriable(err error) bool {
	var se *SendError
	if errors.As(err, &se) {
		return se.Retriable
	}
	return true
}

func fatal(msg string) *SendError     { return &SendError{Message: msg, Retriable: false} }
func transient(msg string) *SendError { return &SendError{Message: msg, Retriable: true} }
