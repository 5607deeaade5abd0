package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// providerClient is the shared HTTP sender for provider-backed adapters.
// A single delivery attempt retries transient transport errors briefly
// with exponential backoff; 4xx responses abort immediately because the
// provider has rejected the payload.
type providerClient struct {
	logger     *zerolog.Logger
	httpClient *http.Client
}

func newProviderClient(logger *zerolog.Logger, timeout time.Duration) *providerClient {
	return &providerClient{
		logger: logger,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type providerResponse struct {
	ID string `json:"id"`
}

// post sends payload and returns the provider message id. The returned
// error is always a *SendError.
func (c *providerClient) post(ctx context.Context, url, apiKey string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fatal(fmt.Sprintf("failed to marshal provider payload: %v", err))
	}

	var providerID string
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fatal(fmt.Sprintf("failed to build provider request: %v", err)))
		}
		req.Header.Set("Content-Type", "application/json")
		if apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(fatal(fmt.Sprintf("provider rejected request: %d %s", resp.StatusCode, respBody)))
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("provider error: %d", resp.StatusCode)
		}

		var parsed providerResponse
		if err := json.Unmarshal(respBody, &parsed); err == nil {
			providerID = parsed.ID
		}
		return nil
	}

	backOff := backoff.NewExponentialBackOff()
	backOff.MaxElapsedTime = 10 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(backOff, ctx)); err != nil {
		// Retry unwraps backoff.Permanent, so fatal SendErrors surface as-is.
		var se *SendError
		if errors.As(err, &se) {
			return "", se
		}
		return "", transient(err.Error())
	}

	return providerID, nil
}
