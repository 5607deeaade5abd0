package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit event types. Enumerations are stored lowercase; compliance flags
// are the one uppercase exception.
type AuditEventType string

const (
	AuditUserRegister     AuditEventType = "user_register"
	AuditUserLogin        AuditEventType = "user_login"
	AuditUserLogout       AuditEventType = "user_logout"
	AuditUserUpdate       AuditEventType = "user_update"
	AuditUserDelete       AuditEventType = "user_delete"
	AuditPermissionGrant  AuditEventType = "permission_grant"
	AuditPermissionRevoke AuditEventType = "permission_revoke"
	AuditPermissionUpdate AuditEventType = "permission_update"
	AuditResourceCreate   AuditEventType = "resource_create"
	AuditResourceRead     AuditEventType = "resource_read"
	AuditResourceUpdate   AuditEventType = "resource_update"
	AuditResourceDelete   AuditEventType = "resource_delete"
	AuditAuthSuccess      AuditEventType = "auth_success"
	AuditAuthFailure      AuditEventType = "auth_failure"
	AuditConfigChange     AuditEventType = "config_change"
	AuditSystemEvent      AuditEventType = "system_event"
	AuditSecurityAlert    AuditEventType = "security_alert"
)

var auditEventTypes = map[AuditEventType]struct{}{
	AuditUserRegister: {}, AuditUserLogin: {}, AuditUserLogout: {},
	AuditUserUpdate: {}, AuditUserDelete: {},
	AuditPermissionGrant: {}, AuditPermissionRevoke: {}, AuditPermissionUpdate: {},
	AuditResourceCreate: {}, AuditResourceRead: {}, AuditResourceUpdate: {}, AuditResourceDelete: {},
	AuditAuthSuccess: {}, AuditAuthFailure: {},
	AuditConfigChange: {}, AuditSystemEvent: {}, AuditSecurityAlert: {},
}

func (t AuditEventType) Valid() bool {
	_, ok := auditEventTypes[t]
	return ok
}

type AuditCategory string

const (
	CategoryAuthentication AuditCategory = "authentication"
	CategoryAuthorization  AuditCategory = "authorization"
	CategoryDataAccess     AuditCategory = "data_access"
	CategoryConfiguration  AuditCategory = "configuration"
	CategorySystem         AuditCategory = "system"
	CategorySecurity       AuditCategory = "security"
	CategoryCompliance     AuditCategory = "compliance"
)

func (c AuditCategory) Valid() bool {
	switch c {
	case CategoryAuthentication, CategoryAuthorization, CategoryDataAccess,
		CategoryConfiguration, CategorySystem, CategorySecurity, CategoryCompliance:
		return true
	}
	return false
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Compliance flags are stored uppercase.
const (
	ComplianceGDPR  = "GDPR"
	ComplianceSOX   = "SOX"
	ComplianceHIPAA = "HIPAA"
)

// Retention policies, derived from category.
const (
	Retention1Year  = "1_year"
	Retention3Years = "3_years"
	Retention7Years = "7_years"
)

// RetentionForCategory derives the retention policy from the category:
// security and compliance keep 7 years, authentication and authorization
// 3 years, everything else 1 year.
func RetentionForCategory(category AuditCategory) string {
	switch category {
	case CategorySecurity, CategoryCompliance:
		return Retention7Years
	case CategoryAuthentication, CategoryAuthorization:
		return Retention3Years
	default:
		return Retention1Year
	}
}

// RetentionDuration converts a retention policy to its minimum duration.
func RetentionDuration(policy string) time.Duration {
	switch policy {
	case Retention7Years:
		return 7 * 365 * 24 * time.Hour
	case Retention3Years:
		return 3 * 365 * 24 * time.Hour
	default:
		return 365 * 24 * time.Hour
	}
}

// AuditEvent is one immutable audit trail row. No updates, no deletes
// except retention cleanup.
type AuditEvent struct {
	ID              uuid.UUID      `db:"id" json:"id"`
	EventType       AuditEventType `db:"event_type" json:"event_type"`
	Category        AuditCategory  `db:"category" json:"category"`
	Severity        Severity       `db:"severity" json:"severity"`
	Status          string         `db:"status" json:"status"`
	Action          string         `db:"action" json:"action"`
	UserID          string         `db:"user_id" json:"user_id"`
	OrganizationID  string         `db:"organization_id" json:"organization_id,omitempty"`
	ResourceType    string         `db:"resource_type" json:"resource_type,omitempty"`
	ResourceID      string         `db:"resource_id" json:"resource_id,omitempty"`
	ResourceName    string         `db:"resource_name" json:"resource_name,omitempty"`
	Metadata        JSONMap        `db:"metadata" json:"metadata"`
	Tags            []string       `db:"tags" json:"tags,omitempty"`
	ComplianceFlags []string       `db:"compliance_flags" json:"compliance_flags"`
	RetentionPolicy string         `db:"retention_policy" json:"retention_policy"`
	SourceEventID   string         `db:"source_event_id" json:"source_event_id,omitempty"`
	Timestamp       time.Time      `db:"timestamp" json:"timestamp"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
}

// Security event investigation states.
const (
	SecurityOpen          = "open"
	SecurityInvestigating = "investigating"
	SecurityResolved      = "resolved"
	SecurityFalsePositive = "false_positive"
)

var securityEdges = map[string][]string{
	SecurityOpen:          {SecurityInvestigating},
	SecurityInvestigating: {SecurityResolved, SecurityFalsePositive},
	SecurityFalsePositive: {SecurityOpen},
}

// CanTransitionSecurity reports whether the investigation state machine
// allows the move. resolved is terminal; false_positive may reopen.
func CanTransitionSecurity(from, to string) bool {
	for _, next := range securityEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SecurityEvent is the auxiliary investigation entity raised for
// high-severity activity.
type SecurityEvent struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Title        string    `db:"title" json:"title"`
	Description  string    `db:"description" json:"description,omitempty"`
	Severity     Severity  `db:"severity" json:"severity"`
	Status       string    `db:"status" json:"status"`
	UserID       string    `db:"user_id" json:"user_id,omitempty"`
	AuditEventID *uuid.UUID `db:"audit_event_id" json:"audit_event_id,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// UserActivitySummary aggregates a user's audit trail with a coarse risk
// score for the summary endpoint.
type UserActivitySummary struct {
	UserID        string           `json:"user_id"`
	TotalEvents   int64            `json:"total_events"`
	BySeverity    map[string]int64 `json:"by_severity"`
	ByCategory    map[string]int64 `json:"by_category"`
	FirstActivity *time.Time       `json:"first_activity,omitempty"`
	LastActivity  *time.Time       `json:"last_activity,omitempty"`
	RiskScore     float64          `json:"risk_score"`
}
