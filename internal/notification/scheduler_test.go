package notification

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/justinndidit/eventPipeline/internal/channels"
	"github.com/justinndidit/eventPipeline/internal/config"
	"github.com/justinndidit/eventPipeline/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	typ        models.NotificationType
	providerID string
	err        error
}

func (a *fakeAdapter) Type() models.NotificationType { return a.typ }

func (a *fakeAdapter) Send(_ context.Context, _ *models.Notification) (string, error) {
	return a.providerID, a.err
}

func newTestScheduler(t *testing.T, svc *Service, adapters ...channels.Adapter) *Scheduler {
	t.Helper()
	log := zerolog.Nop()
	return NewScheduler(svc, adapters, svc.cfg.Delivery, &log)
}

func pendingNotification(typ models.NotificationType) *models.Notification {
	return &models.Notification{
		ID:         uuid.New(),
		Type:       typ,
		Priority:   models.PriorityNormal,
		Recipient:  "user@example.com",
		Content:    "hi",
		Status:     models.StatusSending,
		MaxRetries: 3,
	}
}

// ── backoff ───────────────────────────────────────────────────────────

func TestBackoffWithoutJitterIsExact(t *testing.T) {
	cfg := config.BackoffConfig{Base: 30 * time.Second, Cap: time.Hour, Jitter: 0}

	assert.Equal(t, 30*time.Second, Backoff(cfg, 0))
	assert.Equal(t, time.Minute, Backoff(cfg, 1))
	assert.Equal(t, 2*time.Minute, Backoff(cfg, 2))
	// 30s * 2^10 exceeds the cap.
	assert.Equal(t, time.Hour, Backoff(cfg, 10))
}

func TestBackoffJitterBounds(t *testing.T) {
	cfg := config.BackoffConfig{Base: 30 * time.Second, Cap: time.Hour, Jitter: 0.5}

	for retryCount := 0; retryCount < 12; retryCount++ {
		ideal := float64(cfg.Base) * float64(int(1)<<uint(retryCount))
		if capped := float64(cfg.Cap); ideal > capped {
			ideal = capped
		}
		for i := 0; i < 50; i++ {
			d := float64(Backoff(cfg, retryCount))
			assert.GreaterOrEqual(t, d, 0.5*ideal, "retry %d", retryCount)
			assert.LessOrEqual(t, d, 1.5*ideal, "retry %d", retryCount)
		}
	}
}

// ── dispatch outcomes ─────────────────────────────────────────────────

func TestDeliverSuccess(t *testing.T) {
	store := newFakeNotifStore()
	svc, eventBus := newTestService(t, store, newFakeTemplateStore(), newFakeBatchStore())
	drain := collectEvents(t, eventBus)

	sched := newTestScheduler(t, svc, &fakeAdapter{typ: models.TypeEmail, providerID: "msg-1"})
	n := pendingNotification(models.TypeEmail)
	require.NoError(t, store.Insert(context.Background(), n))

	sched.deliver(context.Background(), n)

	assert.Equal(t, "msg-1", store.sent[n.ID])
	assert.Empty(t, store.failed)
	assert.Contains(t, eventTypes(drain()), "notification.sent")
}

func TestDeliverInAppMovesToDelivered(t *testing.T) {
	store := newFakeNotifStore()
	svc, eventBus := newTestService(t, store, newFakeTemplateStore(), newFakeBatchStore())
	drain := collectEvents(t, eventBus)

	sched := newTestScheduler(t, svc, &fakeAdapter{typ: models.TypeInApp, providerID: "inbox-1"})
	n := pendingNotification(models.TypeInApp)
	require.NoError(t, store.Insert(context.Background(), n))

	sched.deliver(context.Background(), n)

	assert.True(t, store.delivered[n.ID])
	types := eventTypes(drain())
	assert.Contains(t, types, "notification.sent")
	assert.Contains(t, types, "notification.delivered")
}

func TestDeliverRetriableFailureRequeues(t *testing.T) {
	store := newFakeNotifStore()
	svc, _ := newTestService(t, store, newFakeTemplateStore(), newFakeBatchStore())

	sched := newTestScheduler(t, svc, &fakeAdapter{
		typ: models.TypeEmail,
		err: &channels.SendError{Message: "provider 503", Retriable: true},
	})
	n := pendingNotification(models.TypeEmail)
	require.NoError(t, store.Insert(context.Background(), n))

	before := time.Now().UTC()
	sched.deliver(context.Background(), n)

	next, ok := store.requeued[n.ID]
	require.True(t, ok, "expected a requeue")
	assert.Empty(t, store.failed)
	// A first failure becomes retry 1, so the wait is 60s scaled by
	// jitter in [0.5, 1.5].
	assert.True(t, next.After(before.Add(29*time.Second)), "next attempt %v too soon", next)
	assert.True(t, next.Before(before.Add(92*time.Second)), "next attempt %v too late", next)
}

func TestRetryDelayUsesIncrementedCount(t *testing.T) {
	store := newFakeNotifStore()
	svc, _ := newTestService(t, store, newFakeTemplateStore(), newFakeBatchStore())
	svc.cfg.Delivery.Backoff.Jitter = 0

	sched := newTestScheduler(t, svc, &fakeAdapter{
		typ: models.TypeEmail,
		err: &channels.SendError{Message: "provider 503", Retriable: true},
	})
	n := pendingNotification(models.TypeEmail)
	require.NoError(t, store.Insert(context.Background(), n))

	before := time.Now().UTC()
	sched.deliver(context.Background(), n)

	next, ok := store.requeued[n.ID]
	require.True(t, ok, "expected a requeue")
	// retry_count goes 0 -> 1, so the delay is base*2^1, not the base.
	assert.WithinDuration(t, before.Add(time.Minute), next, 2*time.Second)
}

func TestDeliverFatalFailure(t *testing.T) {
	store := newFakeNotifStore()
	svc, eventBus := newTestService(t, store, newFakeTemplateStore(), newFakeBatchStore())
	drain := collectEvents(t, eventBus)

	sched := newTestScheduler(t, svc, &fakeAdapter{
		typ: models.TypeEmail,
		err: &channels.SendError{Message: "invalid recipient", Retriable: false},
	})
	n := pendingNotification(models.TypeEmail)
	require.NoError(t, store.Insert(context.Background(), n))

	sched.deliver(context.Background(), n)

	assert.Equal(t, "invalid recipient", store.failed[n.ID])
	assert.Empty(t, store.requeued)
	assert.Contains(t, eventTypes(drain()), "notification.failed")
}

func TestDeliverExhaustedRetriesFails(t *testing.T) {
	store := newFakeNotifStore()
	svc, _ := newTestService(t, store, newFakeTemplateStore(), newFakeBatchStore())

	sched := newTestScheduler(t, svc, &fakeAdapter{
		typ: models.TypeEmail,
		err: &channels.SendError{Message: "provider 503", Retriable: true},
	})
	n := pendingNotification(models.TypeEmail)
	n.RetryCount = n.MaxRetries
	require.NoError(t, store.Insert(context.Background(), n))

	sched.deliver(context.Background(), n)

	assert.NotEmpty(t, store.failed[n.ID])
	assert.Empty(t, store.requeued)
}

func TestDeliverWithoutAdapterFails(t *testing.T) {
	store := newFakeNotifStore()
	svc, _ := newTestService(t, store, newFakeTemplateStore(), newFakeBatchStore())

	sched := newTestScheduler(t, svc)
	n := pendingNotification(models.TypeSMS)
	require.NoError(t, store.Insert(context.Background(), n))

	sched.deliver(context.Background(), n)

	assert.Contains(t, store.failed[n.ID], "no adapter")
}

func TestBatchCompletionPublished(t *testing.T) {
	store := newFakeNotifStore()
	batches := newFakeBatchStore()
	svc, eventBus := newTestService(t, store, newFakeTemplateStore(), batches)
	drain := collectEvents(t, eventBus)

	batch := &models.Batch{ID: uuid.New(), Type: models.TypeEmail, Total: 2, Status: models.BatchStatusProcessing}
	require.NoError(t, batches.Insert(context.Background(), batch))

	good := &fakeAdapter{typ: models.TypeEmail, providerID: "msg-1"}
	sched := newTestScheduler(t, svc, good)

	first := pendingNotification(models.TypeEmail)
	first.BatchID = &batch.ID
	require.NoError(t, store.Insert(context.Background(), first))
	sched.deliver(context.Background(), first)

	// No completion until the last outcome lands.
	assert.NotContains(t, eventTypes(drain()), "notification.batch_completed")

	good.err = &channels.SendError{Message: "invalid recipient", Retriable: false}
	second := pendingNotification(models.TypeEmail)
	second.BatchID = &batch.ID
	require.NoError(t, store.Insert(context.Background(), second))
	sched.deliver(context.Background(), second)

	var completion *struct{ sent, failed int }
	for _, e := range drain() {
		if e.Type == "notification.batch_completed" {
			completion = &struct{ sent, failed int }{
				sent:   int(e.Data["sent"].(int)),
				failed: int(e.Data["failed"].(int)),
			}
		}
	}
	require.NotNil(t, completion, "expected a batch completion event")
	assert.Equal(t, 1, completion.sent)
	assert.Equal(t, 1, completion.failed)
}

func TestSchedulerDrainsOnShutdown(t *testing.T) {
	store := newFakeNotifStore()
	svc, _ := newTestService(t, store, newFakeTemplateStore(), newFakeBatchStore())

	n := pendingNotification(models.TypeEmail)
	require.NoError(t, store.Insert(context.Background(), n))
	store.due = []models.Notification{*n}

	sched := newTestScheduler(t, svc, &fakeAdapter{typ: models.TypeEmail, providerID: "msg-1"})
	sched.Start(context.Background())

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		_, ok := store.sent[n.ID]
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	sched.Shutdown()
	// Idempotent.
	sched.Shutdown()
}
