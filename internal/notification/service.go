// Package notification holds the delivery engine: admission, template
// rendering, the scheduler and worker pool, and the domain-event triggers
// that synthesize notifications from the bus.
package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/justinndidit/eventPipeline/internal/bus"
	"github.com/justinndidit/eventPipeline/internal/config"
	"github.com/justinndidit/eventPipeline/internal/dtos"
	"github.com/justinndidit/eventPipeline/internal/metrics"
	"github.com/justinndidit/eventPipeline/internal/models"
	"github.com/justinndidit/eventPipeline/internal/repositories"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrInvalid marks admission-time validation failures; handlers map it to
// 422.
var ErrInvalid = errors.New("invalid request")

const statusSnapshotTTL = 24 * time.Hour

// Store interfaces are satisfied by the repositories package; tests swap
// in fakes.

type NotificationStore interface {
	Insert(ctx context.Context, n *models.Notification) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Notification, error)
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]models.Notification, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
	MarkSent(ctx context.Context, id uuid.UUID, providerID string, at time.Time) error
	MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, at time.Time) error
	Requeue(ctx context.Context, id uuid.UUID, reason string, nextAttempt time.Time) error
	Cancel(ctx context.Context, id uuid.UUID) error
	StatsForRecipient(ctx context.Context, recipient string, since time.Time) (*models.NotificationStats, error)
}

type TemplateStore interface {
	Insert(ctx context.Context, t *models.Template) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Template, error)
	List(ctx context.Context, limit, offset int) ([]models.Template, int, error)
}

type BatchStore interface {
	Insert(ctx context.Context, b *models.Batch) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Batch, error)
	RecordOutcome(ctx context.Context, id uuid.UUID, outcome string) (*models.Batch, error)
}

type InboxStore interface {
	InsertInApp(ctx context.Context, n *models.InAppNotification) error
	ListForUser(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]models.InAppNotification, int, error)
	MarkRead(ctx context.Context, userID string, id uuid.UUID) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Archive(ctx context.Context, userID string, id uuid.UUID) error
	UnreadCount(ctx context.Context, userID string) (int64, error)
}

type PushStore interface {
	Upsert(ctx context.Context, s *models.PushSubscription) error
	Deactivate(ctx context.Context, userID, deviceToken string) error
	ActiveSubscriptions(ctx context.Context, userID string) ([]models.PushSubscription, error)
}

type Service struct {
	store     NotificationStore
	templates TemplateStore
	batches   BatchStore
	inbox     InboxStore
	pushSubs  PushStore
	bus       bus.Bus
	redis     *redis.Client
	metrics   *metrics.NotificationMetrics
	cfg       *config.Config
	validate  *validator.Validate
	logger    *zerolog.Logger
}

func NewService(
	store NotificationStore,
	templates TemplateStore,
	batches BatchStore,
	inbox InboxStore,
	pushSubs PushStore,
	eventBus bus.Bus,
	redisClient *redis.Client,
	m *metrics.NotificationMetrics,
	cfg *config.Config,
	logger *zerolog.Logger,
) *Service {
	return &Service{
		store:     store,
		templates: templates,
		batches:   batches,
		inbox:     inbox,
		pushSubs:  pushSubs,
		bus:       eventBus,
		redis:     redisClient,
		metrics:   m,
		cfg:       cfg,
		validate:  validator.New(),
		logger:    logger,
	}
}

// Send admits one notification. Bodies are rendered at admission so
// retries stay deterministic; the row lands pending and the scheduler
// picks it up.
func (s *Service) Send(ctx context.Context, req *dtos.SendNotificationRequest) (*models.Notification, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown notification type %q", ErrInvalid, req.Type)
	}
	if req.Priority == "" {
		req.Priority = models.PriorityNormal
	}
	if !req.Priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalid, req.Priority)
	}
	if req.Content == "" && req.TemplateID == nil {
		return nil, fmt.Errorf("%w: content or template_id is required", ErrInvalid)
	}

	now := time.Now().UTC()
	if req.ScheduledAt != nil && req.ScheduledAt.Before(now.Add(-time.Minute)) {
		return nil, fmt.Errorf("%w: scheduled_at must not be in the past", ErrInvalid)
	}

	n := &models.Notification{
		ID:          uuid.New(),
		Type:        req.Type,
		Priority:    req.Priority,
		Recipient:   req.Recipient,
		TemplateID:  req.TemplateID,
		Subject:     req.Subject,
		Content:     req.Content,
		HTMLContent: req.HTMLContent,
		Variables:   req.Variables,
		Metadata:    req.Metadata,
		Status:      models.StatusPending,
		ScheduledAt: req.ScheduledAt,
		ExpiresAt:   req.ExpiresAt,
		MaxRetries:  s.cfg.Delivery.MaxRetries,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.MaxRetries != nil && *req.MaxRetries >= 0 {
		n.MaxRetries = *req.MaxRetries
	}

	if req.TemplateID != nil {
		template, err := s.templates.GetByID(ctx, *req.TemplateID)
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("template %s: %w", req.TemplateID, repositories.ErrNotFound)
		}
		if err != nil {
			return nil, err
		}
		if template.Type != n.Type {
			return nil, fmt.Errorf("%w: template %s is for type %s", ErrInvalid, template.ID, template.Type)
		}
		s.applyTemplate(n, template)
	}

	if err := s.store.Insert(ctx, n); err != nil {
		return nil, err
	}

	s.metrics.Admitted.WithLabelValues(string(n.Type)).Inc()
	s.snapshotStatus(ctx, n.ID, n.Status)
	s.logger.Info().
		Str("notification_id", n.ID.String()).
		Str("type", string(n.Type)).
		Str("priority", string(n.Priority)).
		Msg("Notification admitted")

	return n, nil
}

func (s *Service) applyTemplate(n *models.Notification, t *models.Template) {
	if n.Subject == "" {
		n.Subject = t.Subject
	}
	if n.Content == "" {
		n.Content = t.Content
	}
	if n.HTMLContent == "" {
		n.HTMLContent = t.HTMLContent
	}
	n.Subject = RenderTokens(n.Subject, n.Variables)
	n.Content = RenderTokens(n.Content, n.Variables)
	n.HTMLContent = RenderTokens(n.HTMLContent, n.Variables)
}

// SendBatch fans one template out to up to the configured recipient cap.
// Per-recipient admission failures are recorded, not fatal to the batch.
func (s *Service) SendBatch(ctx context.Context, req *dtos.SendBatchRequest) (*dtos.BatchStatus, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if len(req.Recipients) > s.cfg.Batch.MaxRecipients {
		return nil, fmt.Errorf("%w: batch exceeds %d recipients", ErrInvalid, s.cfg.Batch.MaxRecipients)
	}
	if req.Priority == "" {
		req.Priority = models.PriorityNormal
	}

	template, err := s.templates.GetByID(ctx, req.TemplateID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("template %s: %w", req.TemplateID, repositories.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if template.Type != req.Type {
		return nil, fmt.Errorf("%w: template %s is for type %s", ErrInvalid, template.ID, template.Type)
	}

	now := time.Now().UTC()
	batch := &models.Batch{
		ID:          uuid.New(),
		TemplateID:  &template.ID,
		Type:        req.Type,
		Total:       len(req.Recipients),
		Status:      models.BatchStatusPending,
		ScheduledAt: req.ScheduledAt,
		CreatedAt:   now,
	}
	if err := s.batches.Insert(ctx, batch); err != nil {
		return nil, err
	}

	status := &dtos.BatchStatus{Batch: batch}
	for _, recipient := range req.Recipients {
		n := &models.Notification{
			ID:          uuid.New(),
			Type:        req.Type,
			Priority:    req.Priority,
			Recipient:   recipient,
			TemplateID:  &template.ID,
			Variables:   req.Variables,
			Status:      models.StatusPending,
			ScheduledAt: req.ScheduledAt,
			MaxRetries:  s.cfg.Delivery.MaxRetries,
			BatchID:     &batch.ID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		s.applyTemplate(n, template)

		if err := s.store.Insert(ctx, n); err != nil {
			status.Rejected++
			status.Errors = append(status.Errors, fmt.Sprintf("%s: %v", recipient, err))
			continue
		}
		status.Admitted++
		s.metrics.Admitted.WithLabelValues(string(n.Type)).Inc()
	}

	s.logger.Info().
		Str("batch_id", batch.ID.String()).
		Int("admitted", status.Admitted).
		Int("rejected", status.Rejected).
		Msg("Batch admitted")

	return status, nil
}

func (s *Service) CreateTemplate(ctx context.Context, req *dtos.CreateTemplateRequest) (*models.Template, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown notification type %q", ErrInvalid, req.Type)
	}

	variables := req.Variables
	if len(variables) == 0 {
		variables = ExtractTokens(req.Subject, req.Content, req.HTMLContent)
	}

	now := time.Now().UTC()
	template := &models.Template{
		ID:          uuid.New(),
		Name:        req.Name,
		Type:        req.Type,
		Subject:     req.Subject,
		Content:     req.Content,
		HTMLContent: req.HTMLContent,
		Variables:   variables,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.templates.Insert(ctx, template); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, fmt.Errorf("%w: template name %q already exists", ErrInvalid, req.Name)
		}
		return nil, err
	}

	return template, nil
}

func (s *Service) GetNotification(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	return s.store.GetByID(ctx, id)
}

// CancelNotification aborts a pending notification and publishes nothing:
// cancellation is an admission-side act, not a delivery outcome.
func (s *Service) CancelNotification(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Cancel(ctx, id); err != nil {
		return err
	}
	s.metrics.Cancelled.Inc()
	s.snapshotStatus(ctx, id, models.StatusCancelled)
	return nil
}

// RecordClick publishes the user interaction callback. The notification
// must exist; click tracking does not change its lifecycle state.
func (s *Service) RecordClick(ctx context.Context, id uuid.UUID, userID string) error {
	n, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}

	event := bus.NewEvent("notification.clicked", "notification-service", map[string]any{
		"id":      n.ID.String(),
		"user_id": userID,
	})
	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("notification_id", id.String()).Msg("Failed to publish click event")
	}
	return nil
}

// ConfirmDelivery applies a provider delivery receipt.
func (s *Service) ConfirmDelivery(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	if err := s.store.MarkDelivered(ctx, id, now); err != nil {
		return err
	}
	s.snapshotStatus(ctx, id, models.StatusDelivered)

	n, err := s.store.GetByID(ctx, id)
	if err == nil {
		s.publishLifecycle(ctx, "notification.delivered", n, "")
		if n.BatchID != nil {
			if _, err := s.batches.RecordOutcome(ctx, *n.BatchID, models.StatusDelivered); err != nil {
				s.logger.Warn().Err(err).Str("batch_id", n.BatchID.String()).Msg("Failed to record batch delivery")
			}
		}
	}
	return nil
}

func (s *Service) RegisterPushSubscription(ctx context.Context, req *dtos.RegisterPushSubscriptionRequest) (*models.PushSubscription, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !models.ValidPlatform(req.Platform) {
		return nil, fmt.Errorf("%w: unknown platform %q", ErrInvalid, req.Platform)
	}

	sub := &models.PushSubscription{
		ID:          uuid.New(),
		UserID:      req.UserID,
		Platform:    req.Platform,
		DeviceToken: req.DeviceToken,
		Endpoint:    req.Endpoint,
		P256dhKey:   req.P256dhKey,
		AuthKey:     req.AuthKey,
		Topics:      req.Topics,
		IsActive:    true,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.pushSubs.Upsert(ctx, sub); err != nil {
		return nil, err
	}

	return sub, nil
}

func (s *Service) UnsubscribePush(ctx context.Context, userID, deviceToken string) error {
	if userID == "" || deviceToken == "" {
		return fmt.Errorf("%w: user_id and device_token are required", ErrInvalid)
	}
	return s.pushSubs.Deactivate(ctx, userID, deviceToken)
}

func (s *Service) ListInApp(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]models.InAppNotification, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.inbox.ListForUser(ctx, userID, unreadOnly, limit, offset)
}

func (s *Service) MarkInAppRead(ctx context.Context, userID string, id uuid.UUID) error {
	return s.inbox.MarkRead(ctx, userID, id)
}

func (s *Service) MarkAllInAppRead(ctx context.Context, userID string) (int64, error) {
	return s.inbox.MarkAllRead(ctx, userID)
}

func (s *Service) ArchiveInApp(ctx context.Context, userID string, id uuid.UUID) error {
	return s.inbox.Archive(ctx, userID, id)
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.inbox.UnreadCount(ctx, userID)
}

// GetStats aggregates over period: today, 7d, 30d or all.
func (s *Service) GetStats(ctx context.Context, userID, period string) (*models.NotificationStats, error) {
	var since time.Time
	now := time.Now().UTC()
	switch period {
	case "today":
		since = now.Truncate(24 * time.Hour)
	case "7d":
		since = now.AddDate(0, 0, -7)
	case "30d":
		since = now.AddDate(0, 0, -30)
	case "all", "":
	default:
		return nil, fmt.Errorf("%w: unknown period %q", ErrInvalid, period)
	}

	stats, err := s.store.StatsForRecipient(ctx, userID, since)
	if err != nil {
		return nil, err
	}

	unread, err := s.inbox.UnreadCount(ctx, userID)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("Failed to count unread inbox rows")
	} else {
		stats.UnreadInApp = unread
	}

	return stats, nil
}

// publishLifecycle emits a delivery lifecycle event. Best-effort: the row
// is authoritative, a publish failure is only logged.
func (s *Service) publishLifecycle(ctx context.Context, subject string, n *models.Notification, errMsg string) {
	data := map[string]any{
		"id":        n.ID.String(),
		"type":      string(n.Type),
		"recipient": n.Recipient,
		"status":    n.Status,
		"priority":  string(n.Priority),
	}
	if errMsg != "" {
		data["error"] = errMsg
	}

	if err := s.bus.Publish(ctx, bus.NewEvent(subject, "notification-service", data)); err != nil {
		s.logger.Warn().Err(err).
			Str("subject", subject).
			Str("notification_id", n.ID.String()).
			Msg("Failed to publish lifecycle event")
	}
}

// snapshotStatus caches the latest status for cheap status polling.
func (s *Service) snapshotStatus(ctx context.Context, id uuid.UUID, status string) {
	if s.redis == nil {
		return
	}
	key := "notification:status:" + id.String()
	if err := s.redis.Set(ctx, key, status, statusSnapshotTTL).Err(); err != nil {
		s.logger.Debug().Err(err).Str("notification_id", id.String()).Msg("Failed to snapshot status")
	}
}
