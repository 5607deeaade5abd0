package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/justinndidit/eventPipeline/internal/dtos"
	"github.com/justinndidit/eventPipeline/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func complianceEvent(eventType models.AuditEventType, metadata models.JSONMap) models.AuditEvent {
	return models.AuditEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Category:  models.CategoryAuthentication,
		Severity:  models.SeverityLow,
		Status:    "success",
		Action:    "user.deleted",
		UserID:    "u1",
		Metadata:  metadata,
		Timestamp: time.Now().UTC(),
	}
}

func reportPeriod() (time.Time, time.Time) {
	end := time.Now().UTC()
	return end.AddDate(0, -1, 0), end
}

func TestComplianceReportUnknownStandard(t *testing.T) {
	svc, _, _ := newTestAuditService(t, newFakeAuditStore())
	start, end := reportPeriod()

	_, err := svc.GenerateComplianceReport(context.Background(), &dtos.ComplianceReportRequest{
		Standard:    "PCI",
		PeriodStart: start,
		PeriodEnd:   end,
	})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestComplianceReportRejectsInvertedPeriod(t *testing.T) {
	svc, _, _ := newTestAuditService(t, newFakeAuditStore())
	start, end := reportPeriod()

	_, err := svc.GenerateComplianceReport(context.Background(), &dtos.ComplianceReportRequest{
		Standard:    models.ComplianceGDPR,
		PeriodStart: end,
		PeriodEnd:   start,
	})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestComplianceReportEmptyPeriodIsClean(t *testing.T) {
	store := newFakeAuditStore()
	svc, _, _ := newTestAuditService(t, store)
	start, end := reportPeriod()

	report, err := svc.GenerateComplianceReport(context.Background(), &dtos.ComplianceReportRequest{
		Standard:    models.ComplianceGDPR,
		PeriodStart: start,
		PeriodEnd:   end,
	})
	require.NoError(t, err)

	assert.Equal(t, 0, report.TotalEvents)
	assert.Equal(t, 100.0, report.ComplianceScore)
	assert.Equal(t, "low", report.RiskLevel)

	// Report generation audits itself.
	require.Equal(t, 1, store.count())
	assert.Equal(t, "compliance.report_generated", store.events[0].Action)
	assert.Equal(t, models.CategoryCompliance, store.events[0].Category)
}

func TestComplianceReportFindsUnjustifiedSensitiveEvents(t *testing.T) {
	store := newFakeAuditStore()
	store.standard = []models.AuditEvent{
		complianceEvent(models.AuditUserDelete, models.JSONMap{"legal_basis": "user request", "ip_address": "203.0.113.9"}),
		complianceEvent(models.AuditUserDelete, models.JSONMap{"ip_address": "203.0.113.9"}),
	}
	svc, _, _ := newTestAuditService(t, store)
	start, end := reportPeriod()

	report, err := svc.GenerateComplianceReport(context.Background(), &dtos.ComplianceReportRequest{
		Standard:    models.ComplianceGDPR,
		PeriodStart: start,
		PeriodEnd:   end,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, report.TotalEvents)
	assert.Equal(t, 1, report.CompliantEvents)
	assert.InDelta(t, 50.0, report.ComplianceScore, 0.001)
	assert.Equal(t, "high", report.RiskLevel)
	require.Len(t, report.Findings, 1)
	assert.Contains(t, report.Findings[0].Reason, "legal_basis")
	assert.NotEmpty(t, report.Summary)
}

func TestComplianceRiskBands(t *testing.T) {
	store := newFakeAuditStore()
	svc, _, _ := newTestAuditService(t, store)
	start, end := reportPeriod()

	// 9 of 10 compliant lands at 90: low risk.
	events := make([]models.AuditEvent, 0, 10)
	for i := 0; i < 9; i++ {
		events = append(events, complianceEvent(models.AuditUserDelete, models.JSONMap{"legal_basis": "consent", "ip_address": "203.0.113.9"}))
	}
	events = append(events, complianceEvent(models.AuditUserDelete, nil))
	store.standard = events

	report, err := svc.GenerateComplianceReport(context.Background(), &dtos.ComplianceReportRequest{
		Standard:    models.ComplianceGDPR,
		PeriodStart: start,
		PeriodEnd:   end,
	})
	require.NoError(t, err)
	assert.Equal(t, "low", report.RiskLevel)

	// 17 of 20 compliant lands at 85: medium risk.
	events = events[:0]
	for i := 0; i < 17; i++ {
		events = append(events, complianceEvent(models.AuditUserDelete, models.JSONMap{"legal_basis": "consent", "ip_address": "203.0.113.9"}))
	}
	for i := 0; i < 3; i++ {
		events = append(events, complianceEvent(models.AuditUserDelete, nil))
	}
	store.standard = events

	report, err = svc.GenerateComplianceReport(context.Background(), &dtos.ComplianceReportRequest{
		Standard:    models.ComplianceGDPR,
		PeriodStart: start,
		PeriodEnd:   end,
	})
	require.NoError(t, err)
	assert.Equal(t, "medium", report.RiskLevel)
}

func TestGDPRRequiresIPAddress(t *testing.T) {
	store := newFakeAuditStore()
	events := make([]models.AuditEvent, 0, 10)
	for i := 0; i < 9; i++ {
		events = append(events, complianceEvent(models.AuditUserDelete, models.JSONMap{"legal_basis": "consent", "ip_address": "203.0.113.9"}))
	}
	// Justified but missing the source address.
	events = append(events, complianceEvent(models.AuditUserDelete, models.JSONMap{"legal_basis": "consent"}))
	store.standard = events
	svc, _, _ := newTestAuditService(t, store)
	start, end := reportPeriod()

	report, err := svc.GenerateComplianceReport(context.Background(), &dtos.ComplianceReportRequest{
		Standard:    models.ComplianceGDPR,
		PeriodStart: start,
		PeriodEnd:   end,
	})
	require.NoError(t, err)

	assert.Equal(t, 10, report.TotalEvents)
	assert.Equal(t, 9, report.CompliantEvents)
	require.Len(t, report.Findings, 1)
	assert.Contains(t, report.Findings[0].Reason, "ip_address")
}

func TestCheckComplianceMissingFields(t *testing.T) {
	rule := complianceRules[models.ComplianceHIPAA]

	event := complianceEvent(models.AuditResourceRead, models.JSONMap{"access_reason": "treatment"})
	event.ResourceID = ""
	assert.Equal(t, "missing resource_id", checkCompliance(&event, rule))

	event.ResourceID = "chart-42"
	assert.Empty(t, checkCompliance(&event, rule))

	event.Metadata = nil
	assert.Contains(t, checkCompliance(&event, rule), "access_reason")
}
