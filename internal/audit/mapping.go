package audit

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/justinndidit/eventPipeline/internal/bus"
	"github.com/justinndidit/eventPipeline/internal/models"
)

// MapEvent classifies one bus envelope into the canonical audit record.
// The rules are positional on the dotted subject: domain drives category
// and resource type, action keywords drive event type and severity.
func MapEvent(event bus.Event) *models.AuditEvent {
	eventType := mapEventType(event)
	category := mapCategory(event)
	severity := mapSeverity(event.Type)

	userID := event.StringData("user_id")
	if userID == "" {
		userID = event.StringData("shared_by")
	}
	if userID == "" {
		userID = "system"
	}

	metadata := models.JSONMap{}
	for k, v := range event.Data {
		metadata[k] = v
	}
	for k, v := range event.Metadata {
		metadata["bus_"+k] = v
	}

	resourceType := event.Domain()
	resourceID := firstString(event, "resource_id", "file_id", "order_id", "device_id", "id")
	resourceName := firstString(event, "resource_name", "file_name", "device_name", "name")

	timestamp := event.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	return &models.AuditEvent{
		ID:              uuid.New(),
		EventType:       eventType,
		Category:        category,
		Severity:        severity,
		Status:          mapStatus(event.Type),
		Action:          event.Type,
		UserID:          userID,
		OrganizationID:  event.StringData("organization_id"),
		ResourceType:    resourceType,
		ResourceID:      resourceID,
		ResourceName:    resourceName,
		Metadata:        metadata,
		ComplianceFlags: ComplianceFlags(eventType, resourceType, resourceName),
		RetentionPolicy: models.RetentionForCategory(category),
		SourceEventID:   event.ID,
		Timestamp:       timestamp.UTC(),
		CreatedAt:       time.Now().UTC(),
	}
}

func firstString(event bus.Event, keys ...string) string {
	for _, key := range keys {
		if v := event.StringData(key); v != "" {
			return v
		}
	}
	return ""
}

func mapEventType(event bus.Event) models.AuditEventType {
	domain, action := event.Domain(), event.Action()

	switch domain {
	case "user":
		switch {
		case strings.Contains(action, "register"):
			return models.AuditUserRegister
		case strings.Contains(action, "logged_in"), strings.Contains(action, "login"):
			return models.AuditUserLogin
		case strings.Contains(action, "logged_out"), strings.Contains(action, "logout"):
			return models.AuditUserLogout
		case strings.Contains(action, "deleted"):
			return models.AuditUserDelete
		case strings.Contains(action, "updated"):
			return models.AuditUserUpdate
		}
	case "permission":
		switch {
		case strings.Contains(action, "grant"):
			return models.AuditPermissionGrant
		case strings.Contains(action, "revoke"):
			return models.AuditPermissionRevoke
		default:
			return models.AuditPermissionUpdate
		}
	case "auth":
		if strings.Contains(action, "fail") {
			return models.AuditAuthFailure
		}
		return models.AuditAuthSuccess
	case "security":
		return models.AuditSecurityAlert
	case "config", "settings":
		return models.AuditConfigChange
	}

	// Sharing and membership changes are permission grants/revocations.
	if strings.Contains(action, "shared") || strings.Contains(action, "member_added") {
		return models.AuditPermissionGrant
	}
	if strings.Contains(action, "member_removed") {
		return models.AuditPermissionRevoke
	}

	switch {
	case strings.Contains(action, "created"), strings.Contains(action, "uploaded"):
		return models.AuditResourceCreate
	case strings.Contains(action, "viewed"), strings.Contains(action, "downloaded"), strings.Contains(action, "read"):
		return models.AuditResourceRead
	case strings.Contains(action, "updated"):
		return models.AuditResourceUpdate
	case strings.Contains(action, "deleted"), strings.Contains(action, "removed"):
		return models.AuditResourceDelete
	}

	return models.AuditSystemEvent
}

func mapCategory(event bus.Event) models.AuditCategory {
	domain := event.Domain()

	if strings.Contains(event.Action(), "member_") {
		return models.CategoryAuthorization
	}

	switch domain {
	case "user", "auth":
		return models.CategoryAuthentication
	case "permission":
		return models.CategoryAuthorization
	case "payment", "subscription":
		return models.CategoryConfiguration
	case "file", "device":
		return models.CategoryDataAccess
	case "security":
		return models.CategorySecurity
	default:
		return models.CategorySystem
	}
}

var highSeverityMarkers = []string{"deleted", "removed", "failed", "offline"}
var mediumSeverityMarkers = []string{"updated", "shared", "member_added"}

func mapSeverity(subject string) models.Severity {
	for _, marker := range highSeverityMarkers {
		if strings.Contains(subject, marker) {
			return models.SeverityHigh
		}
	}
	for _, marker := range mediumSeverityMarkers {
		if strings.Contains(subject, marker) {
			return models.SeverityMedium
		}
	}
	return models.SeverityLow
}

func mapStatus(subject string) string {
	if strings.Contains(subject, "failed") {
		return "failure"
	}
	return "success"
}

var healthMarkers = []string{"health", "medical", "patient", "clinical"}

// ComplianceFlags derives the regulatory flags: personal-data changes are
// GDPR, permission and resource mutations are SOX, health-related resource
// context is HIPAA.
func ComplianceFlags(eventType models.AuditEventType, resourceType, resourceName string) []string {
	var flags []string

	if eventType == models.AuditUserDelete || eventType == models.AuditUserUpdate {
		flags = append(flags, models.ComplianceGDPR)
	}
	if strings.HasPrefix(string(eventType), "permission_") || eventType == models.AuditResourceUpdate {
		flags = append(flags, models.ComplianceSOX)
	}

	context := strings.ToLower(resourceType + " " + resourceName)
	for _, marker := range healthMarkers {
		if strings.Contains(context, marker) {
			flags = append(flags, models.ComplianceHIPAA)
			break
		}
	}

	return flags
}
