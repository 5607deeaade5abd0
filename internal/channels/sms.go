package channels

import (
	"context"
	"strings"
	"time"

	"github.com/justinndidit/eventPipeline/internal/config"
	"github.com/justinndidit/eventPipeline/internal/models"
	"github.com/rs/zerolog"
)

// SMSAdapter posts to a generic SMS gateway API.
type SMSAdapter struct {
	cfg    config.SMSProviderConfig
	client *providerClient
	logger *zerolog.Logger
}

func NewSMSAdapter(cfg config.SMSProviderConfig, timeout time.Duration, logger *zerolog.Logger) *SMSAdapter {
	return &SMSAdapter{
		cfg:    cfg,
		client: newProviderClient(logger, timeout),
		logger: logger,
	}
}

func (a *SMSAdapter) Type() models.NotificationType { return models.TypeSMS }

type smsPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
	Body string `json:"body"`
}

func (a *SMSAdapter) Send(ctx context.Context, n *models.Notification) (string, error) {
	number := strings.TrimSpace(n.Recipient)
	if number == "" {
		return "", fatal("empty sms recipient")
	}

	providerID, err := a.client.post(ctx, a.cfg.Endpoint, a.cfg.APIKey, smsPayload{
		From: a.cfg.From,
		To:   number,
		Body: n.Content,
	})
	if err != nil {
		return "", err
	}

	a.logger.Debug().
		Str("notification_id", n.ID.String()).
		Str("provider_id", providerID).
		Msg("SMS handed to gateway")

	return providerID, nil
}
