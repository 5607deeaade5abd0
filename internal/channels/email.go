package channels

import (
	"context"
	"strings"
	"time"

	"github.com/justinndidit/eventPipeline/internal/config"
	"github.com/justinndidit/eventPipeline/internal/models"
	"github.com/rs/zerolog"
)

// EmailAdapter posts to a Resend-shaped transactional email API.
type EmailAdapter struct {
	cfg    config.EmailProviderConfig
	client *providerClient
	logger *zerolog.Logger
}

func NewEmailAdapter(cfg config.EmailProviderConfig, timeout time.Duration, logger *zerolog.Logger) *EmailAdapter {
	return &EmailAdapter{
		cfg:    cfg,
		client: newProviderClient(logger, timeout),
		logger: logger,
	}
}

func (a *EmailAdapter) Type() models.NotificationType { return models.TypeEmail }

type emailPayload struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html,omitempty"`
}

func (a *EmailAdapter) Send(ctx context.Context, n *models.Notification) (string, error) {
	if !strings.Contains(n.Recipient, "@") {
		return "", fatal("invalid email recipient: " + n.Recipient)
	}

	providerID, err := a.client.post(ctx, a.cfg.Endpoint, a.cfg.APIKey, emailPayload{
		From:    a.cfg.From,
		To:      n.Recipient,
		Subject: n.Subject,
		Text:    n.Content,
		HTML:    n.HTMLContent,
	})
	if err != nil {
		return "", err
	}

	a.logger.Debug().
		Str("notification_id", n.ID.String()).
		Str("provider_id", providerID).
		Msg("Email handed to provider")

	return providerID, nil
}
