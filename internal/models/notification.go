package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	TypeEmail   NotificationType = "email"
	TypePush    NotificationType = "push"
	TypeInApp   NotificationType = "in_app"
	TypeWebhook NotificationType = "webhook"
	TypeSMS     NotificationType = "sms"
)

func (n NotificationType) Valid() bool {
	switch n {
	case TypeEmail, TypePush, TypeInApp, TypeWebhook, TypeSMS:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Rank orders priorities for scheduling: urgent before high before normal
// before low.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

func (p Priority) Valid() bool {
	return p.Rank() > 0
}

// Status constants for the notification lifecycle.
const (
	StatusPending   = "pending"
	StatusSending   = "sending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// statusEdges encodes the lifecycle state machine. A retriable failure
// returns sending to pending after backoff; delivered, failed and
// cancelled are terminal.
var statusEdges = map[string][]string{
	StatusPending: {StatusSending, StatusCancelled},
	StatusSending: {StatusSent, StatusFailed, StatusPending},
	StatusSent:    {StatusDelivered, StatusFailed},
}

// CanTransition reports whether the lifecycle allows moving from one
// status to the next.
func CanTransition(from, to string) bool {
	for _, next := range statusEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether the status ends the lifecycle.
func IsTerminalStatus(status string) bool {
	return status == StatusDelivered || status == StatusFailed || status == StatusCancelled
}

// JSONMap handles map[string]any for JSONB columns.
type JSONMap map[string]any

func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to unmarshal JSONMap: %v", value)
	}

	return json.Unmarshal(bytes, j)
}

// Notification is one deliverable message moving through the pipeline.
// Subject and Content hold the rendered bodies once a template has been
// applied, so retries stay deterministic even if the template changes.
type Notification struct {
	ID           uuid.UUID        `db:"id" json:"id"`
	Type         NotificationType `db:"type" json:"type"`
	Priority     Priority         `db:"priority" json:"priority"`
	Recipient    string           `db:"recipient" json:"recipient"`
	TemplateID   *uuid.UUID       `db:"template_id" json:"template_id,omitempty"`
	Subject      string           `db:"subject" json:"subject"`
	Content      string           `db:"content" json:"content"`
	HTMLContent  string           `db:"html_content" json:"html_content,omitempty"`
	Variables    JSONMap          `db:"variables" json:"variables,omitempty"`
	Metadata     JSONMap          `db:"metadata" json:"metadata,omitempty"`
	Status       string           `db:"status" json:"status"`
	ScheduledAt  *time.Time       `db:"scheduled_at" json:"scheduled_at,omitempty"`
	ExpiresAt    *time.Time       `db:"expires_at" json:"expires_at,omitempty"`
	RetryCount   int              `db:"retry_count" json:"retry_count"`
	MaxRetries   int              `db:"max_retries" json:"max_retries"`
	ErrorMessage *string          `db:"error_message" json:"error_message,omitempty"`
	BatchID      *uuid.UUID       `db:"batch_id" json:"batch_id,omitempty"`
	ProviderID   *string          `db:"provider_id" json:"provider_id,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
	SentAt       *time.Time       `db:"sent_at" json:"sent_at,omitempty"`
	DeliveredAt  *time.Time       `db:"delivered_at" json:"delivered_at,omitempty"`
	FailedAt     *time.Time       `db:"failed_at" json:"failed_at,omitempty"`
}

// Template is a reusable message body. The variable list is declarative:
// the set of {{name}} tokens the bodies may interpolate.
type Template struct {
	ID          uuid.UUID        `db:"id" json:"id"`
	Name        string           `db:"name" json:"name"`
	Type        NotificationType `db:"type" json:"type"`
	Subject     string           `db:"subject" json:"subject"`
	Content     string           `db:"content" json:"content"`
	HTMLContent string           `db:"html_content" json:"html_content,omitempty"`
	Variables   []string         `db:"variables" json:"variables"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updated_at"`
}

// Batch statuses.
const (
	BatchStatusPending    = "pending"
	BatchStatusProcessing = "processing"
	BatchStatusCompleted  = "completed"
	BatchStatusFailed     = "failed"
)

// Batch tracks a multi-recipient send. Counters are monotonically
// non-decreasing.
type Batch struct {
	ID          uuid.UUID        `db:"id" json:"id"`
	TemplateID  *uuid.UUID       `db:"template_id" json:"template_id,omitempty"`
	Type        NotificationType `db:"type" json:"type"`
	Total       int              `db:"total" json:"total"`
	Sent        int              `db:"sent" json:"sent"`
	Delivered   int              `db:"delivered" json:"delivered"`
	Failed      int              `db:"failed" json:"failed"`
	Status      string           `db:"status" json:"status"`
	ScheduledAt *time.Time       `db:"scheduled_at" json:"scheduled_at,omitempty"`
	StartedAt   *time.Time       `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
}

// InAppNotification is one inbox row produced by in-app fan-out.
type InAppNotification struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	UserID     string     `db:"user_id" json:"user_id"`
	Title      string     `db:"title" json:"title"`
	Message    string     `db:"message" json:"message"`
	Type       string     `db:"type" json:"type"`
	Category   string     `db:"category" json:"category,omitempty"`
	Priority   Priority   `db:"priority" json:"priority"`
	ActionType string     `db:"action_type" json:"action_type,omitempty"`
	ActionURL  string     `db:"action_url" json:"action_url,omitempty"`
	ActionData JSONMap    `db:"action_data" json:"action_data,omitempty"`
	IsRead     bool       `db:"is_read" json:"is_read"`
	IsArchived bool       `db:"is_archived" json:"is_archived"`
	ExpiresAt  *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	ReadAt     *time.Time `db:"read_at" json:"read_at,omitempty"`
}

// Push subscription platforms.
const (
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
	PlatformWeb     = "web"
)

func ValidPlatform(p string) bool {
	return p == PlatformIOS || p == PlatformAndroid || p == PlatformWeb
}

// PushSubscription is one registered device. Uniqueness key:
// (user_id, device_token, platform).
type PushSubscription struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	UserID      string     `db:"user_id" json:"user_id"`
	Platform    string     `db:"platform" json:"platform"`
	DeviceToken string     `db:"device_token" json:"device_token"`
	Endpoint    string     `db:"endpoint" json:"endpoint,omitempty"`
	P256dhKey   string     `db:"p256dh_key" json:"p256dh_key,omitempty"`
	AuthKey     string     `db:"auth_key" json:"auth_key,omitempty"`
	Topics      []string   `db:"topics" json:"topics,omitempty"`
	IsActive    bool       `db:"is_active" json:"is_active"`
	LastUsedAt  *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// NotificationStats aggregates one user's notifications over a window.
type NotificationStats struct {
	Total       int64            `json:"total"`
	Sent        int64            `json:"sent"`
	Delivered   int64            `json:"delivered"`
	Failed      int64            `json:"failed"`
	Pending     int64            `json:"pending"`
	UnreadInApp int64            `json:"unread_in_app"`
	ByType      map[string]int64 `json:"by_type"`
}
