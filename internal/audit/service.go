// Package audit implements the universal audit subscriber: wildcard bus
// intake with dedup and classification, a direct write API, queries,
// security investigations and compliance reporting.
package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/justinndidit/eventPipeline/internal/bus"
	"github.com/justinndidit/eventPipeline/internal/config"
	"github.com/justinndidit/eventPipeline/internal/dtos"
	"github.com/justinndidit/eventPipeline/internal/metrics"
	"github.com/justinndidit/eventPipeline/internal/models"
	"github.com/justinndidit/eventPipeline/internal/repositories"
	"github.com/rs/zerolog"
)

// ErrInvalid marks validation failures; handlers map it to 422.
var ErrInvalid = errors.New("invalid request")

// alertSubject is the service's own outbound subject; intake skips it to
// avoid a feedback loop.
const alertSubject = "audit.event_recorded"

// Store is satisfied by repositories.AuditRepo; tests swap in fakes.
type Store interface {
	Insert(ctx context.Context, e *models.AuditEvent) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.AuditEvent, error)
	Query(ctx context.Context, f repositories.AuditFilter) ([]models.AuditEvent, int, error)
	UserActivity(ctx context.Context, userID string, start, end time.Time) (*models.UserActivitySummary, error)
	EventsForStandard(ctx context.Context, standard string, start, end time.Time) ([]models.AuditEvent, error)
	Cleanup(ctx context.Context, cutoff, now time.Time) (int64, int64, error)
	InsertSecurityEvent(ctx context.Context, e *models.SecurityEvent) error
	GetSecurityEvent(ctx context.Context, id uuid.UUID) (*models.SecurityEvent, error)
	ListSecurityEvents(ctx context.Context, status string, since time.Time, limit, offset int) ([]models.SecurityEvent, int, error)
	TransitionSecurityEvent(ctx context.Context, id uuid.UUID, to string) (*models.SecurityEvent, error)
}

type Service struct {
	store    Store
	bus      bus.Bus
	seen     *lru.Cache[string, struct{}]
	metrics  *metrics.AuditMetrics
	cfg      *config.Config
	validate *validator.Validate
	logger   *zerolog.Logger

	sub bus.Subscription
}

func NewService(store Store, eventBus bus.Bus, m *metrics.AuditMetrics, cfg *config.Config, logger *zerolog.Logger) (*Service, error) {
	seen, err := lru.New[string, struct{}](cfg.Dedup.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to build dedup cache: %w", err)
	}

	return &Service{
		store:    store,
		bus:      eventBus,
		seen:     seen,
		metrics:  m,
		cfg:      cfg,
		validate: validator.New(),
		logger:   logger,
	}, nil
}

// Start subscribes the wildcard intake.
func (s *Service) Start() error {
	sub, err := s.bus.Subscribe("*.*", s.Capture)
	if err != nil {
		return fmt.Errorf("failed to subscribe audit intake: %w", err)
	}
	s.sub = sub
	s.logger.Info().Msg("Audit intake subscribed to *.*")
	return nil
}

func (s *Service) Stop() {
	if s.sub == nil {
		return
	}
	if err := s.sub.Unsubscribe(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to unsubscribe audit intake")
	}
	s.sub = nil
}

// Capture is the intake handler for every bus event. Failures log and
// drop; intake must never back-pressure the bus.
func (s *Service) Capture(ctx context.Context, event bus.Event) {
	// Only our own alert subject is skipped; audit.* events published by
	// other services are a trail like any other.
	if event.Type == alertSubject {
		return
	}

	if event.ID != "" {
		if _, dup := s.seen.Get(event.ID); dup {
			s.metrics.Deduplicated.Inc()
			return
		}
		if s.seen.Len() >= s.cfg.Dedup.Size {
			// At capacity, drop the oldest entries in one batch.
			for i := 0; i < s.cfg.Dedup.Evict; i++ {
				if _, _, ok := s.seen.RemoveOldest(); !ok {
					break
				}
			}
		}
		s.seen.Add(event.ID, struct{}{})
	}

	record := MapEvent(event)
	if err := validateRecord(record); err != nil {
		s.metrics.Dropped.WithLabelValues("invalid").Inc()
		s.logger.Warn().Err(err).
			Str("event_id", event.ID).
			Str("subject", event.Type).
			Msg("Dropping unmappable bus event")
		return
	}

	inserted, err := s.store.Insert(ctx, record)
	if err != nil {
		s.metrics.Dropped.WithLabelValues("store").Inc()
		s.logger.Error().Err(err).
			Str("event_id", event.ID).
			Str("subject", event.Type).
			Msg("Failed to persist audit event")
		return
	}
	if !inserted {
		// The seen-set missed a redelivery; the unique index did not.
		s.metrics.Deduplicated.Inc()
		return
	}

	s.metrics.Captured.WithLabelValues(string(record.Category)).Inc()
	s.logger.Debug().
		Str("audit_id", record.ID.String()).
		Str("subject", event.Type).
		Str("severity", string(record.Severity)).
		Msg("Audit event captured")

	if record.Severity == models.SeverityHigh || record.Severity == models.SeverityCritical {
		s.publishRecorded(ctx, record)
	}
}

// publishRecorded is the service's single outbound event, raised for
// high-severity activity. Best-effort.
func (s *Service) publishRecorded(ctx context.Context, record *models.AuditEvent) {
	event := bus.NewEvent(alertSubject, "audit-service", map[string]any{
		"audit_id":   record.ID.String(),
		"event_type": string(record.EventType),
		"category":   string(record.Category),
		"severity":   string(record.Severity),
		"user_id":    record.UserID,
	})
	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("audit_id", record.ID.String()).Msg("Failed to publish audit alert")
		return
	}
	s.metrics.Alerts.Inc()
}

// Log is the direct write API, for trails the bus cannot carry (e.g.
// failed authentication attempts).
func (s *Service) Log(ctx context.Context, req *dtos.LogEventRequest) (*models.AuditEvent, error) {
	record, err := s.buildRecord(req)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.Insert(ctx, record); err != nil {
		return nil, err
	}

	s.metrics.Captured.WithLabelValues(string(record.Category)).Inc()
	if record.Severity == models.SeverityHigh || record.Severity == models.SeverityCritical {
		s.publishRecorded(ctx, record)
	}

	return record, nil
}

// BatchLog validates and persists each event independently; results line
// up positionally with the submitted events.
func (s *Service) BatchLog(ctx context.Context, req *dtos.BatchLogRequest) (*dtos.BatchLogResponse, error) {
	if len(req.Events) == 0 || len(req.Events) > 100 {
		return nil, fmt.Errorf("%w: batch size must be between 1 and 100", ErrInvalid)
	}

	resp := &dtos.BatchLogResponse{Results: make([]dtos.BatchLogResult, len(req.Events))}
	for i := range req.Events {
		record, err := s.Log(ctx, &req.Events[i])
		if err != nil {
			resp.FailedCount++
			resp.Results[i] = dtos.BatchLogResult{Error: err.Error()}
			continue
		}
		resp.SuccessfulCount++
		id := record.ID
		resp.Results[i] = dtos.BatchLogResult{ID: &id, Success: true}
	}

	return resp, nil
}

func (s *Service) buildRecord(req *dtos.LogEventRequest) (*models.AuditEvent, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	action := strings.TrimSpace(req.Action)
	if action == "" || len(action) > 255 {
		return nil, fmt.Errorf("%w: action must be non-empty and at most 255 characters", ErrInvalid)
	}
	if !req.EventType.Valid() {
		return nil, fmt.Errorf("%w: unknown event type %q", ErrInvalid, req.EventType)
	}
	if !req.Category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalid, req.Category)
	}
	severity := req.Severity
	if severity == "" {
		severity = models.SeverityLow
	}
	if !severity.Valid() {
		return nil, fmt.Errorf("%w: unknown severity %q", ErrInvalid, severity)
	}

	userID := req.UserID
	if userID == "" {
		userID = "system"
	}
	status := req.Status
	if status == "" {
		status = "success"
	}
	metadata := models.JSONMap(req.Metadata)
	if metadata == nil {
		metadata = models.JSONMap{}
	}
	timestamp := time.Now().UTC()
	if req.Timestamp != nil {
		timestamp = req.Timestamp.UTC()
	}

	now := time.Now().UTC()
	return &models.AuditEvent{
		ID:              uuid.New(),
		EventType:       req.EventType,
		Category:        req.Category,
		Severity:        severity,
		Status:          status,
		Action:          action,
		UserID:          userID,
		OrganizationID:  req.OrganizationID,
		ResourceType:    req.ResourceType,
		ResourceID:      req.ResourceID,
		ResourceName:    req.ResourceName,
		Metadata:        metadata,
		Tags:            req.Tags,
		ComplianceFlags: ComplianceFlags(req.EventType, req.ResourceType, req.ResourceName),
		RetentionPolicy: models.RetentionForCategory(req.Category),
		Timestamp:       timestamp,
		CreatedAt:       now,
	}, nil
}

func validateRecord(e *models.AuditEvent) error {
	action := strings.TrimSpace(e.Action)
	if action == "" || len(action) > 255 {
		return fmt.Errorf("action must be non-empty and at most 255 characters")
	}
	if !e.EventType.Valid() {
		return fmt.Errorf("unknown event type %q", e.EventType)
	}
	if !e.Category.Valid() {
		return fmt.Errorf("unknown category %q", e.Category)
	}
	if !e.Severity.Valid() {
		return fmt.Errorf("unknown severity %q", e.Severity)
	}
	return nil
}

func (s *Service) GetEvent(ctx context.Context, id uuid.UUID) (*models.AuditEvent, error) {
	return s.store.GetByID(ctx, id)
}

// Query lists events newest-first. Limit is clamped into [1,1000] with a
// default of 100; a time range must be ordered and span at most 365 days.
func (s *Service) Query(ctx context.Context, req *dtos.QueryEventsRequest) ([]models.AuditEvent, int, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}

	if req.StartTime != nil && req.EndTime != nil {
		if !req.StartTime.Before(*req.EndTime) {
			return nil, 0, fmt.Errorf("%w: start_time must be before end_time", ErrInvalid)
		}
		if req.EndTime.Sub(*req.StartTime) > 365*24*time.Hour {
			return nil, 0, fmt.Errorf("%w: time range must not exceed 365 days", ErrInvalid)
		}
	}

	return s.store.Query(ctx, repositories.AuditFilter{
		UserID:    req.UserID,
		EventType: req.EventType,
		Category:  req.Category,
		Severity:  req.Severity,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Limit:     limit,
		Offset:    offset,
	})
}

// UserActivity summarizes one user's trail over the trailing window.
func (s *Service) UserActivity(ctx context.Context, userID string, days int) (*models.UserActivitySummary, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalid)
	}
	if days < 1 || days > 365 {
		return nil, fmt.Errorf("%w: days must be between 1 and 365", ErrInvalid)
	}

	end := time.Now().UTC()
	summary, err := s.store.UserActivity(ctx, userID, end.AddDate(0, 0, -days), end)
	if err != nil {
		return nil, err
	}
	summary.RiskScore = riskScore(summary)
	return summary, nil
}

// riskScore weighs severity counts into a coarse 0-100 score.
func riskScore(s *models.UserActivitySummary) float64 {
	if s.TotalEvents == 0 {
		return 0
	}
	weighted := float64(s.BySeverity[string(models.SeverityCritical)])*1.0 +
		float64(s.BySeverity[string(models.SeverityHigh)])*0.6 +
		float64(s.BySeverity[string(models.SeverityMedium)])*0.3
	score := 100 * weighted / float64(s.TotalEvents)
	if score > 100 {
		score = 100
	}
	return score
}

// CreateSecurityAlert opens a new investigation.
func (s *Service) CreateSecurityAlert(ctx context.Context, req *dtos.CreateSecurityAlertRequest) (*models.SecurityEvent, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !req.Severity.Valid() {
		return nil, fmt.Errorf("%w: unknown severity %q", ErrInvalid, req.Severity)
	}

	now := time.Now().UTC()
	event := &models.SecurityEvent{
		ID:           uuid.New(),
		Title:        req.Title,
		Description:  req.Description,
		Severity:     req.Severity,
		Status:       models.SecurityOpen,
		UserID:       req.UserID,
		AuditEventID: req.AuditEventID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.InsertSecurityEvent(ctx, event); err != nil {
		return nil, err
	}

	s.metrics.Alerts.Inc()
	return event, nil
}

// ListSecurityEvents lists investigations, optionally by state, within
// the trailing window.
func (s *Service) ListSecurityEvents(ctx context.Context, status string, days, limit, offset int) ([]models.SecurityEvent, int, error) {
	if days < 1 || days > 90 {
		return nil, 0, fmt.Errorf("%w: days must be between 1 and 90", ErrInvalid)
	}
	if status != "" && status != models.SecurityOpen && status != models.SecurityInvestigating &&
		status != models.SecurityResolved && status != models.SecurityFalsePositive {
		return nil, 0, fmt.Errorf("%w: unknown security status %q", ErrInvalid, status)
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	since := time.Now().UTC().AddDate(0, 0, -days)
	return s.store.ListSecurityEvents(ctx, status, since, limit, offset)
}

// TransitionSecurityEvent advances an investigation through its state
// machine.
func (s *Service) TransitionSecurityEvent(ctx context.Context, id uuid.UUID, to string) (*models.SecurityEvent, error) {
	return s.store.TransitionSecurityEvent(ctx, id, to)
}

// Cleanup deletes events older than retention_days, never touching rows
// inside their derived retention window. There is no admin override.
func (s *Service) Cleanup(ctx context.Context, req *dtos.CleanupRequest) (*dtos.CleanupResult, error) {
	if req.RetentionDays < 30 || req.RetentionDays > 2555 {
		return nil, fmt.Errorf("%w: retention_days must be between 30 and 2555", ErrInvalid)
	}

	now := time.Now().UTC()
	cutoff := now.AddDate(0, 0, -req.RetentionDays)
	deleted, retained, err := s.store.Cleanup(ctx, cutoff, now)
	if err != nil {
		return nil, err
	}

	return &dtos.CleanupResult{Deleted: deleted, Retained: retained, CutoffUTC: cutoff}, nil
}
