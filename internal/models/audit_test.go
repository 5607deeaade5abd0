package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetentionForCategory(t *testing.T) {
	assert.Equal(t, Retention7Years, RetentionForCategory(CategorySecurity))
	assert.Equal(t, Retention7Years, RetentionForCategory(CategoryCompliance))
	assert.Equal(t, Retention3Years, RetentionForCategory(CategoryAuthentication))
	assert.Equal(t, Retention3Years, RetentionForCategory(CategoryAuthorization))
	assert.Equal(t, Retention1Year, RetentionForCategory(CategoryDataAccess))
	assert.Equal(t, Retention1Year, RetentionForCategory(CategoryConfiguration))
	assert.Equal(t, Retention1Year, RetentionForCategory(CategorySystem))
}

func TestRetentionDuration(t *testing.T) {
	assert.Equal(t, 7*365*24*time.Hour, RetentionDuration(Retention7Years))
	assert.Equal(t, 3*365*24*time.Hour, RetentionDuration(Retention3Years))
	assert.Equal(t, 365*24*time.Hour, RetentionDuration(Retention1Year))
	assert.Equal(t, 365*24*time.Hour, RetentionDuration("unknown"))
}

func TestCanTransitionSecurity(t *testing.T) {
	assert.True(t, CanTransitionSecurity(SecurityOpen, SecurityInvestigating))
	assert.True(t, CanTransitionSecurity(SecurityInvestigating, SecurityResolved))
	assert.True(t, CanTransitionSecurity(SecurityInvestigating, SecurityFalsePositive))
	assert.True(t, CanTransitionSecurity(SecurityFalsePositive, SecurityOpen))

	assert.False(t, CanTransitionSecurity(SecurityOpen, SecurityResolved))
	assert.False(t, CanTransitionSecurity(SecurityResolved, SecurityOpen))
	assert.False(t, CanTransitionSecurity(SecurityResolved, SecurityInvestigating))
	assert.False(t, CanTransitionSecurity(SecurityOpen, SecurityFalsePositive))
}

func TestAuditEventTypeValid(t *testing.T) {
	assert.True(t, AuditUserDelete.Valid())
	assert.True(t, AuditSecurityAlert.Valid())
	assert.False(t, AuditEventType("made_up").Valid())
}
