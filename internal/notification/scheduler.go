package notification

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/justinndidit/eventPipeline/internal/bus"
	"github.com/justinndidit/eventPipeline/internal/channels"
	"github.com/justinndidit/eventPipeline/internal/config"
	"github.com/justinndidit/eventPipeline/internal/models"
	"github.com/rs/zerolog"
)

// Backoff computes the wait before the given retry attempt:
// min(cap, base * 2^retry_count) scaled by a uniform jitter factor in
// [1-jitter, 1+jitter].
func Backoff(cfg config.BackoffConfig, retryCount int) time.Duration {
	base := float64(cfg.Base) * math.Pow(2, float64(retryCount))
	if capped := float64(cfg.Cap); base > capped {
		base = capped
	}
	factor := 1 + (rand.Float64()*2-1)*cfg.Jitter
	return time.Duration(base * factor)
}

// Scheduler owns the dispatch pipeline: a timer loop that claims due
// pending rows and a bounded worker pool that calls channel adapters.
type Scheduler struct {
	svc      *Service
	adapters map[models.NotificationType]channels.Adapter
	cfg      config.DeliveryConfig
	logger   *zerolog.Logger

	jobs   chan models.Notification
	wg     sync.WaitGroup
	loopWg sync.WaitGroup
	stop   chan struct{}
	once   sync.Once
}

func NewScheduler(svc *Service, adapters []channels.Adapter, cfg config.DeliveryConfig, logger *zerolog.Logger) *Scheduler {
	byType := make(map[models.NotificationType]channels.Adapter, len(adapters))
	for _, a := range adapters {
		byType[a.Type()] = a
	}

	return &Scheduler{
		svc:      svc,
		adapters: byType,
		cfg:      cfg,
		logger:   logger,
		jobs:     make(chan models.Notification, cfg.Workers*2),
		stop:     make(chan struct{}),
	}
}

// Start launches the worker pool and the timer loop. It returns
// immediately; Shutdown stops everything.
func (s *Scheduler) Start(ctx context.Context) {
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}

	s.loopWg.Add(1)
	go s.run(ctx)

	s.logger.Info().
		Int("workers", s.cfg.Workers).
		Dur("interval", s.cfg.SchedulerInterval).
		Msg("Delivery scheduler started")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.loopWg.Done()

	ticker := time.NewTicker(s.cfg.SchedulerInterval)
	defer ticker.Stop()

	// First pass immediately so restarts do not delay overdue work.
	s.tick(ctx)

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now().UTC()

	if expired, err := s.svc.store.ExpireOverdue(ctx, now); err != nil {
		s.logger.Error().Err(err).Msg("Failed to expire overdue notifications")
	} else if expired > 0 {
		s.logger.Info().Int64("expired", expired).Msg("Expired overdue notifications")
	}

	claimed, err := s.svc.store.ClaimDue(ctx, now, s.cfg.Workers*4)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to claim due notifications")
		return
	}
	if len(claimed) == 0 {
		return
	}

	s.logger.Debug().Int("claimed", len(claimed)).Msg("Claimed due notifications")
	for _, n := range claimed {
		s.svc.metrics.QueueDepth.Inc()
		select {
		case s.jobs <- n:
		case <-s.stop:
			s.svc.metrics.QueueDepth.Dec()
			return
		case <-ctx.Done():
			s.svc.metrics.QueueDepth.Dec()
			return
		}
	}
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()

	for n := range s.jobs {
		s.svc.metrics.QueueDepth.Dec()
		s.deliver(ctx, &n)
	}
}

// deliver runs one adapter call and applies the outcome to the row, the
// owning batch, the status cache and the bus.
func (s *Scheduler) deliver(ctx context.Context, n *models.Notification) {
	adapter, ok := s.adapters[n.Type]
	if !ok {
		s.fail(ctx, n, "no adapter for type "+string(n.Type))
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	start := time.Now()
	providerID, err := adapter.Send(callCtx, n)
	cancel()
	s.svc.metrics.SendDuration.WithLabelValues(string(n.Type)).Observe(time.Since(start).Seconds())

	if err == nil {
		s.succeed(ctx, n, providerID)
		return
	}

	if channels.Retriable(err) && n.RetryCount < n.MaxRetries {
		s.retry(ctx, n, err.Error())
		return
	}
	s.fail(ctx, n, err.Error())
}

func (s *Scheduler) succeed(ctx context.Context, n *models.Notification, providerID string) {
	now := time.Now().UTC()
	if err := s.svc.store.MarkSent(ctx, n.ID, providerID, now); err != nil {
		s.logger.Error().Err(err).Str("notification_id", n.ID.String()).Msg("Failed to mark notification sent")
		return
	}

	n.Status = models.StatusSent
	s.svc.metrics.Sent.WithLabelValues(string(n.Type)).Inc()
	s.svc.snapshotStatus(ctx, n.ID, models.StatusSent)
	s.svc.publishLifecycle(ctx, "notification.sent", n, "")
	s.recordBatchOutcome(ctx, n, models.StatusSent)

	s.logger.Info().
		Str("notification_id", n.ID.String()).
		Str("type", string(n.Type)).
		Str("provider_id", providerID).
		Msg("Notification sent")

	// In-app delivery is the inbox insert itself, so the row moves
	// straight to delivered when synchronous delivery is on.
	if n.Type == models.TypeInApp && s.cfg.InAppSyncDelivery {
		if err := s.svc.store.MarkDelivered(ctx, n.ID, now); err != nil {
			s.logger.Warn().Err(err).Str("notification_id", n.ID.String()).Msg("Failed to mark in-app delivered")
			return
		}
		n.Status = models.StatusDelivered
		s.svc.snapshotStatus(ctx, n.ID, models.StatusDelivered)
		s.svc.publishLifecycle(ctx, "notification.delivered", n, "")
	}
}

func (s *Scheduler) retry(ctx context.Context, n *models.Notification, reason string) {
	// The requeue increments retry_count, so the wait is computed for
	// the attempt the row is about to record.
	next := time.Now().UTC().Add(Backoff(s.cfg.Backoff, n.RetryCount+1))
	if err := s.svc.store.Requeue(ctx, n.ID, reason, next); err != nil {
		s.logger.Error().Err(err).Str("notification_id", n.ID.String()).Msg("Failed to requeue notification")
		s.fail(ctx, n, reason)
		return
	}

	s.svc.metrics.Retried.WithLabelValues(string(n.Type)).Inc()
	s.svc.snapshotStatus(ctx, n.ID, models.StatusPending)
	s.logger.Warn().
		Str("notification_id", n.ID.String()).
		Int("retry_count", n.RetryCount+1).
		Time("next_attempt", next).
		Str("reason", reason).
		Msg("Notification requeued for retry")
}

func (s *Scheduler) fail(ctx context.Context, n *models.Notification, reason string) {
	if err := s.svc.store.MarkFailed(ctx, n.ID, reason, time.Now().UTC()); err != nil {
		s.logger.Error().Err(err).Str("notification_id", n.ID.String()).Msg("Failed to mark notification failed")
		return
	}

	n.Status = models.StatusFailed
	s.svc.metrics.Failed.WithLabelValues(string(n.Type)).Inc()
	s.svc.snapshotStatus(ctx, n.ID, models.StatusFailed)
	s.svc.publishLifecycle(ctx, "notification.failed", n, reason)
	s.recordBatchOutcome(ctx, n, models.StatusFailed)

	s.logger.Error().
		Str("notification_id", n.ID.String()).
		Str("type", string(n.Type)).
		Str("reason", reason).
		Msg("Notification failed")
}

func (s *Scheduler) recordBatchOutcome(ctx context.Context, n *models.Notification, outcome string) {
	if n.BatchID == nil {
		return
	}

	completed, err := s.svc.batches.RecordOutcome(ctx, *n.BatchID, outcome)
	if err != nil {
		s.logger.Warn().Err(err).Str("batch_id", n.BatchID.String()).Msg("Failed to record batch outcome")
		return
	}
	if completed == nil {
		return
	}

	event := bus.NewEvent("notification.batch_completed", "notification-service", map[string]any{
		"batch_id": completed.ID.String(),
		"sent":     completed.Sent,
		"failed":   completed.Failed,
	})
	if err := s.svc.bus.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("batch_id", completed.ID.String()).Msg("Failed to publish batch completion")
	}
}

// Shutdown stops claiming, then drains in-flight deliveries up to the
// configured bound. The timer loop must be down before the job channel
// closes so an in-progress enqueue cannot hit a closed channel.
func (s *Scheduler) Shutdown() {
	s.once.Do(func() {
		close(s.stop)
		s.loopWg.Wait()
		close(s.jobs)
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("Delivery scheduler drained")
	case <-time.After(s.cfg.DrainTimeout):
		s.logger.Warn().Dur("timeout", s.cfg.DrainTimeout).Msg("Delivery scheduler drain timed out")
	}
}
