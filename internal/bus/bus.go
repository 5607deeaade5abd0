package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Handler consumes one event. Handlers may be called concurrently with
// each other and must be idempotent per event id.
type Handler func(ctx context.Context, event Event)

// Subscription is a live pattern subscription.
type Subscription interface {
	Unsubscribe() error
}

// Bus is the publish/subscribe substrate the two services depend on.
// At-least-once delivery, no cross-subject ordering.
type Bus interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(pattern string, handler Handler) (Subscription, error)
	Close() error
}

// NATSBus is the production Bus over core NATS. Subscriptions join the
// configured queue group so service replicas compete for each message.
type NATSBus struct {
	conn       *nats.Conn
	queueGroup string
	logger     *zerolog.Logger
}

// ConnectNATS dials the NATS server and returns a Bus bound to the given
// queue group. An empty queueGroup yields plain (fan-out) subscriptions.
func ConnectNATS(url, queueGroup string, logger *zerolog.Logger) (*NATSBus, error) {
	conn, err := nats.Connect(url,
		nats.Name("event-pipeline"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	logger.Info().Str("url", url).Str("queue_group", queueGroup).Msg("Connected to NATS")

	return &NATSBus{
		conn:       conn,
		queueGroup: queueGroup,
		logger:     logger,
	}, nil
}

func (b *NATSBus) Publish(_ context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.ID, err)
	}

	if err := b.conn.Publish(event.Type, payload); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}

	b.logger.Debug().
		Str("subject", event.Type).
		Str("event_id", event.ID).
		Msg("Published event")

	return nil
}

func (b *NATSBus) Subscribe(pattern string, handler Handler) (Subscription, error) {
	cb := func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			b.logger.Error().Err(err).
				Str("subject", msg.Subject).
				Msg("Dropping malformed event payload")
			return
		}
		handler(context.Background(), event)
	}

	var sub *nats.Subscription
	var err error
	if b.queueGroup != "" {
		sub, err = b.conn.QueueSubscribe(pattern, b.queueGroup, cb)
	} else {
		sub, err = b.conn.Subscribe(pattern, cb)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", pattern, err)
	}

	b.logger.Info().Str("pattern", pattern).Msg("Subscribed to bus pattern")
	return sub, nil
}

func (b *NATSBus) Close() error {
	b.logger.Info().Msg("Draining NATS connection...")
	if err := b.conn.Drain(); err != nil {
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	return nil
}
