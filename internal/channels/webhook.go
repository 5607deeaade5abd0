package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/justinndidit/eventPipeline/internal/models"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// WebhookAdapter POSTs the notification body to the recipient URL. A
// circuit breaker guards against hammering an endpoint that is down;
// while the breaker is open deliveries fail retriable so the pipeline's
// backoff spaces out the probes.
type WebhookAdapter struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *zerolog.Logger
}

func NewWebhookAdapter(timeout time.Duration, logger *zerolog.Logger) *WebhookAdapter {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "webhook",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Webhook circuit breaker state changed")
		},
	})

	return &WebhookAdapter{
		httpClient: &http.Client{Timeout: timeout},
		breaker:    breaker,
		logger:     logger,
	}
}

func (a *WebhookAdapter) Type() models.NotificationType { return models.TypeWebhook }

type webhookPayload struct {
	ID       string         `json:"id"`
	Subject  string         `json:"subject,omitempty"`
	Content  string         `json:"content"`
	Priority string         `json:"priority"`
	Metadata map[string]any `json:"metadata,omitempty"`
	SentAt   time.Time      `json:"sent_at"`
}

func (a *WebhookAdapter) Send(ctx context.Context, n *models.Notification) (string, error) {
	target, err := url.Parse(n.Recipient)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") {
		return "", fatal("invalid webhook URL: " + n.Recipient)
	}

	body, err := json.Marshal(webhookPayload{
		ID:       n.ID.String(),
		Subject:  n.Subject,
		Content:  n.Content,
		Priority: string(n.Priority),
		Metadata: n.Metadata,
		SentAt:   time.Now().UTC(),
	})
	if err != nil {
		return "", fatal(fmt.Sprintf("failed to marshal webhook payload: %v", err))
	}

	_, err = a.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.Recipient, bytes.NewReader(body))
		if err != nil {
			return nil, fatal(fmt.Sprintf("failed to build webhook request: %v", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Notification-ID", n.ID.String())

		resp, err := a.httpClient.Do(req)
		if err != nil {
			return nil, transient(err.Error())
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil, nil
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return nil, fatal(fmt.Sprintf("webhook endpoint rejected delivery: %d", resp.StatusCode))
		default:
			return nil, transient(fmt.Sprintf("webhook endpoint error: %d", resp.StatusCode))
		}
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", transient("webhook circuit breaker open")
		}
		return "", err
	}

	return n.ID.String(), nil
}
