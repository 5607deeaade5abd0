package channels

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/justinndidit/eventPipeline/internal/models"
	"github.com/rs/zerolog"
)

// InboxWriter persists inbox rows; the repositories package implements it.
type InboxWriter interface {
	InsertInApp(ctx context.Context, n *models.InAppNotification) error
}

// InAppAdapter is the one local adapter: delivery is an inbox insert, not
// an external call, so a successful send is also a delivery.
type InAppAdapter struct {
	inbox  InboxWriter
	logger *zerolog.Logger
}

func NewInAppAdapter(inbox InboxWriter, logger *zerolog.Logger) *InAppAdapter {
	return &InAppAdapter{inbox: inbox, logger: logger}
}

func (a *InAppAdapter) Type() models.NotificationType { return models.TypeInApp }

func (a *InAppAdapter) Send(ctx context.Context, n *models.Notification) (string, error) {
	if n.Recipient == "" {
		return "", fatal("empty in-app recipient user id")
	}

	category, _ := n.Metadata["category"].(string)
	row := &models.InAppNotification{
		ID:        uuid.New(),
		UserID:    n.Recipient,
		Title:     n.Subject,
		Message:   n.Content,
		Type:      "info",
		Category:  category,
		Priority:  n.Priority,
		ExpiresAt: n.ExpiresAt,
		CreatedAt: time.Now().UTC(),
	}
	if t, ok := n.Metadata["in_app_type"].(string); ok && t != "" {
		row.Type = t
	}
	if u, ok := n.Metadata["action_url"].(string); ok && u != "" {
		row.ActionURL = u
		row.ActionType = "link"
	}

	if err := a.inbox.InsertInApp(ctx, row); err != nil {
		return "", transient(fmt.Sprintf("failed to insert inbox row: %v", err))
	}

	a.logger.Debug().
		Str("notification_id", n.ID.String()).
		Str("user_id", n.Recipient).
		Msg("In-app notification written to inbox")

	return row.ID.String(), nil
}
