package notification

import (
	"context"
	"testing"

	"github.com/justinndidit/eventPipeline/internal/bus"
	"github.com/justinndidit/eventPipeline/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTriggers(t *testing.T, svc *Service, eventBus *bus.MemoryBus) *Triggers {
	t.Helper()
	log := zerolog.Nop()
	triggers := NewTriggers(svc, &log)
	require.NoError(t, triggers.Start(eventBus))
	t.Cleanup(triggers.Stop)
	return triggers
}

func storedByType(store *fakeNotifStore) map[models.NotificationType][]*models.Notification {
	store.mu.Lock()
	defer store.mu.Unlock()
	byType := make(map[models.NotificationType][]*models.Notification)
	for _, n := range store.byID {
		byType[n.Type] = append(byType[n.Type], n)
	}
	return byType
}

func TestUserRegisteredTriggersWelcomeEmail(t *testing.T) {
	store := newFakeNotifStore()
	svc, eventBus := newTestService(t, store, newFakeTemplateStore(), newFakeBatchStore())
	startTriggers(t, svc, eventBus)

	event := bus.NewEvent("user.registered", "user-service", map[string]any{
		"email": "ada@example.com",
		"name":  "Ada",
	})
	require.NoError(t, eventBus.Publish(context.Background(), event))
	eventBus.Flush()

	byType := storedByType(store)
	require.Len(t, byType[models.TypeEmail], 1)
	n := byType[models.TypeEmail][0]
	assert.Equal(t, "ada@example.com", n.Recipient)
	assert.Contains(t, n.Content, "Ada")
	assert.Equal(t, event.ID, n.Metadata["source_event_id"])
}

func TestPaymentCompletedTriggersEmailAndInbox(t *testing.T) {
	store := newFakeNotifStore()
	svc, eventBus := newTestService(t, store, newFakeTemplateStore(), newFakeBatchStore())
	startTriggers(t, svc, eventBus)

	require.NoError(t, eventBus.Publish(context.Background(), bus.NewEvent("payment.completed", "billing", map[string]any{
		"email":   "ada@example.com",
		"user_id": "u1",
		"amount":  "$12.00",
	})))
	eventBus.Flush()

	byType := storedByType(store)
	require.Len(t, byType[models.TypeEmail], 1)
	require.Len(t, byType[models.TypeInApp], 1)
	assert.Contains(t, byType[models.TypeEmail][0].Content, "$12.00")
	assert.Equal(t, "u1", byType[models.TypeInApp][0].Recipient)
}

func TestFileSharedSkipsEmailWithoutAddress(t *testing.T) {
	store := newFakeNotifStore()
	svc, eventBus := newTestService(t, store, newFakeTemplateStore(), newFakeBatchStore())
	startTriggers(t, svc, eventBus)

	require.NoError(t, eventBus.Publish(context.Background(), bus.NewEvent("file.shared", "file-service", map[string]any{
		"user_id":   "u1",
		"file_name": "report.pdf",
		"shared_by": "Grace",
	})))
	eventBus.Flush()

	byType := storedByType(store)
	require.Len(t, byType[models.TypeInApp], 1)
	assert.Empty(t, byType[models.TypeEmail])
	assert.Contains(t, byType[models.TypeInApp][0].Content, "report.pdf")
}

func TestDeviceOfflineTriggersHighPriority(t *testing.T) {
	store := newFakeNotifStore()
	svc, eventBus := newTestService(t, store, newFakeTemplateStore(), newFakeBatchStore())
	startTriggers(t, svc, eventBus)

	require.NoError(t, eventBus.Publish(context.Background(), bus.NewEvent("device.offline", "device-service", map[string]any{
		"user_id":     "u1",
		"device_name": "thermostat",
	})))
	eventBus.Flush()

	byType := storedByType(store)
	require.Len(t, byType[models.TypeInApp], 1)
	assert.Equal(t, models.PriorityHigh, byType[models.TypeInApp][0].Priority)
}

func TestTriggerSkipsEventsWithoutRecipient(t *testing.T) {
	store := newFakeNotifStore()
	svc, eventBus := newTestService(t, store, newFakeTemplateStore(), newFakeBatchStore())
	startTriggers(t, svc, eventBus)

	// No email in the payload: nothing to admit, nothing to log as error.
	require.NoError(t, eventBus.Publish(context.Background(), bus.NewEvent("order.created", "orders", map[string]any{
		"order_id": "o1",
	})))
	eventBus.Flush()

	assert.Empty(t, store.byID)
}

func TestUnrelatedSubjectsDoNotTrigger(t *testing.T) {
	store := newFakeNotifStore()
	svc, eventBus := newTestService(t, store, newFakeTemplateStore(), newFakeBatchStore())
	startTriggers(t, svc, eventBus)

	require.NoError(t, eventBus.Publish(context.Background(), bus.NewEvent("user.deleted", "user-service", map[string]any{
		"email": "ada@example.com",
	})))
	eventBus.Flush()

	assert.Empty(t, store.byID)
}
