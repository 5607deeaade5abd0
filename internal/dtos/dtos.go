package dtos

import (
	"time"

	"github.com/google/uuid"
	"github.com/justinndidit/eventPipeline/internal/models"
)

// HTTPResponse is the shared response envelope for both services.
type HTTPResponse struct {
	Success bool            `json:"success"`
	Data    interface{}     `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message"`
	Meta    *PaginationMeta `json:"meta,omitempty"`
}

type PaginationMeta struct {
	Total       int  `json:"total"`
	Limit       int  `json:"limit"`
	Offset      int  `json:"offset"`
	HasNext     bool `json:"has_next"`
	HasPrevious bool `json:"has_previous"`
}

// ── notification service ──────────────────────────────────────────────

// SendNotificationRequest admits one notification. Content may be given
// directly or via template_id + variables.
type SendNotificationRequest struct {
	Type        models.NotificationType `json:"type" validate:"required"`
	Priority    models.Priority         `json:"priority"`
	Recipient   string                  `json:"recipient" validate:"required"`
	TemplateID  *uuid.UUID              `json:"template_id,omitempty"`
	Subject     string                  `json:"subject,omitempty"`
	Content     string                  `json:"content,omitempty"`
	HTMLContent string                  `json:"html_content,omitempty"`
	Variables   map[string]any          `json:"variables,omitempty"`
	ScheduledAt *time.Time              `json:"scheduled_at,omitempty"`
	ExpiresAt   *time.Time              `json:"expires_at,omitempty"`
	MaxRetries  *int                    `json:"max_retries,omitempty"`
	Metadata    map[string]any          `json:"metadata,omitempty"`
}

// SendBatchRequest admits one notification per recipient; every recipient
// shares the template and type.
type SendBatchRequest struct {
	Type        models.NotificationType `json:"type" validate:"required"`
	TemplateID  uuid.UUID               `json:"template_id" validate:"required"`
	Recipients  []string                `json:"recipients" validate:"required,min=1"`
	Priority    models.Priority         `json:"priority"`
	Variables   map[string]any          `json:"variables,omitempty"`
	ScheduledAt *time.Time              `json:"scheduled_at,omitempty"`
}

type CreateTemplateRequest struct {
	Name        string                  `json:"name" validate:"required"`
	Type        models.NotificationType `json:"type" validate:"required"`
	Subject     string                  `json:"subject,omitempty"`
	Content     string                  `json:"content" validate:"required"`
	HTMLContent string                  `json:"html_content,omitempty"`
	Variables   []string                `json:"variables,omitempty"`
}

type RegisterPushSubscriptionRequest struct {
	UserID      string   `json:"user_id" validate:"required"`
	Platform    string   `json:"platform" validate:"required"`
	DeviceToken string   `json:"device_token" validate:"required"`
	Endpoint    string   `json:"endpoint,omitempty"`
	P256dhKey   string   `json:"p256dh_key,omitempty"`
	AuthKey     string   `json:"auth_key,omitempty"`
	Topics      []string `json:"topics,omitempty"`
}

// BatchStatus is returned from the batch admission endpoint.
type BatchStatus struct {
	Batch    *models.Batch `json:"batch"`
	Admitted int           `json:"admitted"`
	Rejected int           `json:"rejected"`
	Errors   []string      `json:"errors,omitempty"`
}

// ── audit service ─────────────────────────────────────────────────────

type LogEventRequest struct {
	EventType      models.AuditEventType `json:"event_type" validate:"required"`
	Category       models.AuditCategory  `json:"category" validate:"required"`
	Severity       models.Severity       `json:"severity,omitempty"`
	Status         string                `json:"status,omitempty"`
	Action         string                `json:"action" validate:"required"`
	UserID         string                `json:"user_id,omitempty"`
	OrganizationID string                `json:"organization_id,omitempty"`
	ResourceType   string                `json:"resource_type,omitempty"`
	ResourceID     string                `json:"resource_id,omitempty"`
	ResourceName   string                `json:"resource_name,omitempty"`
	Metadata       map[string]any        `json:"metadata,omitempty"`
	Tags           []string              `json:"tags,omitempty"`
	Timestamp      *time.Time            `json:"timestamp,omitempty"`
}

type BatchLogRequest struct {
	Events []LogEventRequest `json:"events" validate:"required,min=1"`
}

// BatchLogResult corresponds positionally to the submitted event.
type BatchLogResult struct {
	ID      *uuid.UUID `json:"id,omitempty"`
	Success bool       `json:"success"`
	Error   string     `json:"error,omitempty"`
}

type BatchLogResponse struct {
	SuccessfulCount int              `json:"successful_count"`
	FailedCount     int              `json:"failed_count"`
	Results         []BatchLogResult `json:"results"`
}

type QueryEventsRequest struct {
	UserID    string     `json:"user_id,omitempty"`
	EventType string     `json:"event_type,omitempty"`
	Category  string     `json:"category,omitempty"`
	Severity  string     `json:"severity,omitempty"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Limit     int        `json:"limit,omitempty"`
	Offset    int        `json:"offset,omitempty"`
}

type CreateSecurityAlertRequest struct {
	Title        string          `json:"title" validate:"required"`
	Description  string          `json:"description,omitempty"`
	Severity     models.Severity `json:"severity" validate:"required"`
	UserID       string          `json:"user_id,omitempty"`
	AuditEventID *uuid.UUID      `json:"audit_event_id,omitempty"`
}

type ComplianceReportRequest struct {
	Standard    string    `json:"standard" validate:"required"`
	PeriodStart time.Time `json:"period_start" validate:"required"`
	PeriodEnd   time.Time `json:"period_end" validate:"required"`
}

// ComplianceFinding references one non-compliant event.
type ComplianceFinding struct {
	EventID   uuid.UUID `json:"event_id"`
	EventType string    `json:"event_type"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

type ComplianceReport struct {
	Standard        string              `json:"standard"`
	PeriodStart     time.Time           `json:"period_start"`
	PeriodEnd       time.Time           `json:"period_end"`
	TotalEvents     int                 `json:"total_events"`
	CompliantEvents int                 `json:"compliant_events"`
	ComplianceScore float64             `json:"compliance_score"`
	RiskLevel       string              `json:"risk_level"`
	Findings        []ComplianceFinding `json:"findings"`
	Summary         string              `json:"summary"`
	GeneratedAt     time.Time           `json:"generated_at"`
}

type CleanupRequest struct {
	RetentionDays int `json:"retention_days" validate:"required"`
}

type CleanupResult struct {
	Deleted   int64     `json:"deleted"`
	Retained  int64     `json:"retained"`
	CutoffUTC time.Time `json:"cutoff_utc"`
}
