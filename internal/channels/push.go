package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/justinndidit/eventPipeline/internal/config"
	"github.com/justinndidit/eventPipeline/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
)

const fcmV1URLTemplate = "https://fcm.googleapis.com/v1/projects/%s/messages:send"

// SubscriptionSource resolves a user's active device registrations.
type SubscriptionSource interface {
	ActiveSubscriptions(ctx context.Context, userID string) ([]models.PushSubscription, error)
}

// PushAdapter fans one notification out to every active device of the
// recipient user through the FCM v1 API.
type PushAdapter struct {
	cfg         config.PushProviderConfig
	subs        SubscriptionSource
	httpClient  *http.Client
	credentials *google.Credentials
	logger      *zerolog.Logger
}

func NewPushAdapter(cfg config.PushProviderConfig, subs SubscriptionSource, timeout time.Duration, logger *zerolog.Logger) (*PushAdapter, error) {
	adapter := &PushAdapter{
		cfg:        cfg,
		subs:       subs,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}

	if cfg.Enabled {
		credentials, err := google.CredentialsFromJSON(
			context.Background(),
			[]byte(cfg.ServiceAccountJSON),
			"https://www.googleapis.com/auth/firebase.messaging",
		)
		if err != nil {
			return nil, fmt.Errorf("failed to load FCM credentials: %w", err)
		}
		adapter.credentials = credentials
	}

	return adapter, nil
}

func (a *PushAdapter) Type() models.NotificationType { return models.TypePush }

type fcmV1Message struct {
	Message fcmV1MessagePayload `json:"message"`
}

type fcmV1MessagePayload struct {
	Token        string             `json:"token"`
	Notification *fcmV1Notification `json:"notification,omitempty"`
	Data         map[string]string  `json:"data,omitempty"`
}

type fcmV1Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmV1Response struct {
	Name  string `json:"name"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

func (a *PushAdapter) Send(ctx context.Context, n *models.Notification) (string, error) {
	if !a.cfg.Enabled {
		return "", fatal("push provider disabled")
	}

	subscriptions, err := a.subs.ActiveSubscriptions(ctx, n.Recipient)
	if err != nil {
		return "", transient(fmt.Sprintf("failed to load push subscriptions: %v", err))
	}
	if len(subscriptions) == 0 {
		return "", fatal("no active push subscriptions for user " + n.Recipient)
	}

	accessToken, err := a.credentials.TokenSource.Token()
	if err != nil {
		return "", transient(fmt.Sprintf("failed to get FCM access token: %v", err))
	}

	var firstMessageID string
	successes := 0
	var lastErr error
	for _, sub := range subscriptions {
		messageID, err := a.sendToToken(ctx, n, sub.DeviceToken, accessToken.AccessToken)
		if err != nil {
			lastErr = err
			a.logger.Warn().Err(err).
				Str("notification_id", n.ID.String()).
				Str("platform", sub.Platform).
				Msg("Push delivery to device failed")
			continue
		}
		successes++
		if firstMessageID == "" {
			firstMessageID = messageID
		}
	}

	if successes == 0 {
		if lastErr != nil {
			if se, ok := lastErr.(*SendError); ok {
				return "", se
			}
			return "", transient(lastErr.Error())
		}
		return "", transient("no push deliveries succeeded")
	}

	return firstMessageID, nil
}

func (a *PushAdapter) sendToToken(ctx context.Context, n *models.Notification, token, accessToken string) (string, error) {
	payload := fcmV1Message{
		Message: fcmV1MessagePayload{
			Token: token,
			Notification: &fcmV1Notification{
				Title: n.Subject,
				Body:  n.Content,
			},
		},
	}
	if n.Metadata != nil {
		data := make(map[string]string, len(n.Metadata))
		for k, v := range n.Metadata {
			data[k] = fmt.Sprintf("%v", v)
		}
		payload.Message.Data = data
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fatal(fmt.Sprintf("failed to marshal FCM message: %v", err))
	}

	url := fmt.Sprintf(fcmV1URLTemplate, a.cfg.ProjectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fatal(fmt.Sprintf("failed to build FCM request: %v", err))
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", transient(err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8192))
	if err != nil {
		return "", transient(err.Error())
	}

	var fcmResp fcmV1Response
	if err := json.Unmarshal(respBody, &fcmResp); err != nil {
		return "", transient(fmt.Sprintf("failed to parse FCM response: %v", err))
	}

	if fcmResp.Error != nil {
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return "", fatal(fcmResp.Error.Message)
		}
		return "", transient(fcmResp.Error.Message)
	}

	return fcmResp.Name, nil
}
