package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/justinndidit/eventPipeline/internal/bus"
	"github.com/justinndidit/eventPipeline/internal/config"
	"github.com/justinndidit/eventPipeline/internal/dtos"
	"github.com/justinndidit/eventPipeline/internal/metrics"
	"github.com/justinndidit/eventPipeline/internal/models"
	"github.com/justinndidit/eventPipeline/internal/repositories"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ── fakes ─────────────────────────────────────────────────────────────

type fakeNotifStore struct {
	mu        sync.Mutex
	byID      map[uuid.UUID]*models.Notification
	insertErr map[string]error
	due       []models.Notification
	sent      map[uuid.UUID]string
	delivered map[uuid.UUID]bool
	failed    map[uuid.UUID]string
	requeued  map[uuid.UUID]time.Time
	cancelled map[uuid.UUID]bool
}

func newFakeNotifStore() *fakeNotifStore {
	return &fakeNotifStore{
		byID:      make(map[uuid.UUID]*models.Notification),
		insertErr: make(map[string]error),
		sent:      make(map[uuid.UUID]string),
		delivered: make(map[uuid.UUID]bool),
		failed:    make(map[uuid.UUID]string),
		requeued:  make(map[uuid.UUID]time.Time),
		cancelled: make(map[uuid.UUID]bool),
	}
}

func (f *fakeNotifStore) Insert(_ context.Context, n *models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.insertErr[n.Recipient]; err != nil {
		return err
	}
	cp := *n
	f.byID[n.ID] = &cp
	return nil
}

func (f *fakeNotifStore) GetByID(_ context.Context, id uuid.UUID) (*models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.byID[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (f *fakeNotifStore) ClaimDue(_ context.Context, _ time.Time, _ int) ([]models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	claimed := f.due
	f.due = nil
	return claimed, nil
}

func (f *fakeNotifStore) ExpireOverdue(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeNotifStore) MarkSent(_ context.Context, id uuid.UUID, providerID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[id] = providerID
	return nil
}

func (f *fakeNotifStore) MarkDelivered(_ context.Context, id uuid.UUID, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered[id] = true
	return nil
}

func (f *fakeNotifStore) MarkFailed(_ context.Context, id uuid.UUID, reason string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = reason
	return nil
}

func (f *fakeNotifStore) Requeue(_ context.Context, id uuid.UUID, _ string, nextAttempt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requeued[id] = nextAttempt
	return nil
}

func (f *fakeNotifStore) Cancel(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return repositories.ErrNotFound
	}
	f.cancelled[id] = true
	return nil
}

func (f *fakeNotifStore) StatsForRecipient(_ context.Context, _ string, _ time.Time) (*models.NotificationStats, error) {
	return &models.NotificationStats{ByType: map[string]int64{}}, nil
}

type fakeTemplateStore struct {
	mu        sync.Mutex
	byID      map[uuid.UUID]*models.Template
	insertErr error
}

func newFakeTemplateStore() *fakeTemplateStore {
	return &fakeTemplateStore{byID: make(map[uuid.UUID]*models.Template)}
}

func (f *fakeTemplateStore) Insert(_ context.Context, t *models.Template) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	cp := *t
	f.byID[t.ID] = &cp
	return nil
}

func (f *fakeTemplateStore) GetByID(_ context.Context, id uuid.UUID) (*models.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTemplateStore) List(_ context.Context, _, _ int) ([]models.Template, int, error) {
	return nil, 0, nil
}

type fakeBatchStore struct {
	mu      sync.Mutex
	batches map[uuid.UUID]*models.Batch
}

func newFakeBatchStore() *fakeBatchStore {
	return &fakeBatchStore{batches: make(map[uuid.UUID]*models.Batch)}
}

func (f *fakeBatchStore) Insert(_ context.Context, b *models.Batch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *b
	f.batches[b.ID] = &cp
	return nil
}

func (f *fakeBatchStore) GetByID(_ context.Context, id uuid.UUID) (*models.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBatchStore) RecordOutcome(_ context.Context, id uuid.UUID, outcome string) (*models.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	switch outcome {
	case models.StatusSent:
		b.Sent++
	case models.StatusDelivered:
		b.Delivered++
	case models.StatusFailed:
		b.Failed++
	}
	if b.Status != models.BatchStatusCompleted && b.Sent+b.Failed >= b.Total {
		b.Status = models.BatchStatusCompleted
		cp := *b
		return &cp, nil
	}
	return nil, nil
}

type fakeInboxStore struct {
	mu       sync.Mutex
	inserted []models.InAppNotification
	read     []uuid.UUID
}

func (f *fakeInboxStore) InsertInApp(_ context.Context, n *models.InAppNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, *n)
	return nil
}

func (f *fakeInboxStore) ListForUser(_ context.Context, _ string, _ bool, _, _ int) ([]models.InAppNotification, int, error) {
	return nil, 0, nil
}

func (f *fakeInboxStore) MarkRead(_ context.Context, _ string, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.read = append(f.read, id)
	return nil
}

func (f *fakeInboxStore) MarkAllRead(_ context.Context, _ string) (int64, error) { return 0, nil }
func (f *fakeInboxStore) Archive(_ context.Context, _ string, _ uuid.UUID) error { return nil }
func (f *fakeInboxStore) UnreadCount(_ context.Context, _ string) (int64, error) { return 0, nil }

type fakePushStore struct {
	mu          sync.Mutex
	upserted    []models.PushSubscription
	deactivated []string
}

func (f *fakePushStore) Upsert(_ context.Context, s *models.PushSubscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, *s)
	return nil
}

func (f *fakePushStore) Deactivate(_ context.Context, userID, deviceToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivated = append(f.deactivated, userID+"/"+deviceToken)
	return nil
}

func (f *fakePushStore) ActiveSubscriptions(_ context.Context, _ string) ([]models.PushSubscription, error) {
	return nil, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Delivery.MaxRetries = 3
	cfg.Delivery.Workers = 2
	cfg.Delivery.SchedulerInterval = time.Hour
	cfg.Delivery.ProviderTimeout = 5 * time.Second
	cfg.Delivery.DrainTimeout = 5 * time.Second
	cfg.Delivery.InAppSyncDelivery = true
	cfg.Delivery.Backoff = config.BackoffConfig{Base: 30 * time.Second, Cap: time.Hour, Jitter: 0.5}
	cfg.Batch.MaxRecipients = 1000
	return cfg
}

func newTestService(t *testing.T, store *fakeNotifStore, templates *fakeTemplateStore, batches *fakeBatchStore) (*Service, *bus.MemoryBus) {
	t.Helper()
	eventBus := bus.NewMemoryBus()
	t.Cleanup(func() { _ = eventBus.Close() })

	log := zerolog.Nop()
	m := metrics.NewNotificationMetrics(prometheus.NewRegistry())
	svc := NewService(store, templates, batches, &fakeInboxStore{}, &fakePushStore{},
		eventBus, nil, m, testConfig(), &log)
	return svc, eventBus
}

// collectEvents subscribes to every subject and returns a drain function.
func collectEvents(t *testing.T, b *bus.MemoryBus) func() []bus.Event {
	t.Helper()
	var mu sync.Mutex
	var events []bus.Event
	_, err := b.Subscribe("*.*", func(_ context.Context, e bus.Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})
	require.NoError(t, err)
	return func() []bus.Event {
		b.Flush()
		mu.Lock()
		defer mu.Unlock()
		return append([]bus.Event(nil), events...)
	}
}

func eventTypes(events []bus.Event) []string {
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}

// ── admission ─────────────────────────────────────────────────────────

func TestSendRequiresContentOrTemplate(t *testing.T) {
	svc, _ := newTestService(t, newFakeNotifStore(), newFakeTemplateStore(), newFakeBatchStore())

	_, err := svc.Send(context.Background(), &dtos.SendNotificationRequest{
		Type:      models.TypeEmail,
		Recipient: "user@example.com",
	})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestSendRejectsUnknownType(t *testing.T) {
	svc, _ := newTestService(t, newFakeNotifStore(), newFakeTemplateStore(), newFakeBatchStore())

	_, err := svc.Send(context.Background(), &dtos.SendNotificationRequest{
		Type:      models.NotificationType("carrier_pigeon"),
		Recipient: "user@example.com",
		Content:   "hi",
	})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestSendRejectsPastSchedule(t *testing.T) {
	svc, _ := newTestService(t, newFakeNotifStore(), newFakeTemplateStore(), newFakeBatchStore())

	past := time.Now().UTC().Add(-time.Hour)
	_, err := svc.Send(context.Background(), &dtos.SendNotificationRequest{
		Type:        models.TypeEmail,
		Recipient:   "user@example.com",
		Content:     "hi",
		ScheduledAt: &past,
	})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestSendDefaultsPriorityAndStatus(t *testing.T) {
	store := newFakeNotifStore()
	svc, _ := newTestService(t, store, newFakeTemplateStore(), newFakeBatchStore())

	n, err := svc.Send(context.Background(), &dtos.SendNotificationRequest{
		Type:      models.TypeEmail,
		Recipient: "user@example.com",
		Content:   "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, models.PriorityNormal, n.Priority)
	assert.Equal(t, models.StatusPending, n.Status)
	assert.Equal(t, 3, n.MaxRetries)

	stored, err := store.GetByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, n.ID, stored.ID)
}

func TestSendRendersTemplateAtAdmission(t *testing.T) {
	store := newFakeNotifStore()
	templates := newFakeTemplateStore()
	svc, _ := newTestService(t, store, templates, newFakeBatchStore())

	tpl := &models.Template{
		ID:      uuid.New(),
		Name:    "welcome",
		Type:    models.TypeEmail,
		Subject: "Welcome {{name}}",
		Content: "Hi {{name}}, your plan is {{plan}}",
	}
	require.NoError(t, templates.Insert(context.Background(), tpl))

	n, err := svc.Send(context.Background(), &dtos.SendNotificationRequest{
		Type:       models.TypeEmail,
		Recipient:  "user@example.com",
		TemplateID: &tpl.ID,
		Variables:  map[string]any{"name": "Ada"},
	})
	require.NoError(t, err)

	// Rendering happens once at admission; missing variables stay literal.
	assert.Equal(t, "Welcome Ada", n.Subject)
	assert.Equal(t, "Hi Ada, your plan is {{plan}}", n.Content)
}

func TestSendUnknownTemplate(t *testing.T) {
	svc, _ := newTestService(t, newFakeNotifStore(), newFakeTemplateStore(), newFakeBatchStore())

	missing := uuid.New()
	_, err := svc.Send(context.Background(), &dtos.SendNotificationRequest{
		Type:       models.TypeEmail,
		Recipient:  "user@example.com",
		TemplateID: &missing,
	})
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestSendTemplateTypeMismatch(t *testing.T) {
	templates := newFakeTemplateStore()
	svc, _ := newTestService(t, newFakeNotifStore(), templates, newFakeBatchStore())

	tpl := &models.Template{ID: uuid.New(), Name: "sms-alert", Type: models.TypeSMS, Content: "{{code}}"}
	require.NoError(t, templates.Insert(context.Background(), tpl))

	_, err := svc.Send(context.Background(), &dtos.SendNotificationRequest{
		Type:       models.TypeEmail,
		Recipient:  "user@example.com",
		TemplateID: &tpl.ID,
	})
	assert.ErrorIs(t, err, ErrInvalid)
}

// ── batch admission ───────────────────────────────────────────────────

func TestSendBatchRecipientCap(t *testing.T) {
	templates := newFakeTemplateStore()
	svc, _ := newTestService(t, newFakeNotifStore(), templates, newFakeBatchStore())
	svc.cfg.Batch.MaxRecipients = 2

	tpl := &models.Template{ID: uuid.New(), Name: "promo", Type: models.TypeEmail, Content: "hi"}
	require.NoError(t, templates.Insert(context.Background(), tpl))

	_, err := svc.SendBatch(context.Background(), &dtos.SendBatchRequest{
		Type:       models.TypeEmail,
		TemplateID: tpl.ID,
		Recipients: []string{"a@example.com", "b@example.com", "c@example.com"},
	})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestSendBatchPartialFailure(t *testing.T) {
	store := newFakeNotifStore()
	templates := newFakeTemplateStore()
	batches := newFakeBatchStore()
	svc, _ := newTestService(t, store, templates, batches)

	tpl := &models.Template{ID: uuid.New(), Name: "promo", Type: models.TypeEmail, Content: "hi {{name}}"}
	require.NoError(t, templates.Insert(context.Background(), tpl))

	store.insertErr["bad@example.com"] = errors.New("row too wide")

	status, err := svc.SendBatch(context.Background(), &dtos.SendBatchRequest{
		Type:       models.TypeEmail,
		TemplateID: tpl.ID,
		Recipients: []string{"a@example.com", "bad@example.com", "c@example.com"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, status.Admitted)
	assert.Equal(t, 1, status.Rejected)
	assert.Len(t, status.Errors, 1)
	assert.Equal(t, 3, status.Batch.Total)

	for _, n := range store.byID {
		require.NotNil(t, n.BatchID)
		assert.Equal(t, status.Batch.ID, *n.BatchID)
	}
}

// ── templates ─────────────────────────────────────────────────────────

func TestCreateTemplateExtractsVariables(t *testing.T) {
	svc, _ := newTestService(t, newFakeNotifStore(), newFakeTemplateStore(), newFakeBatchStore())

	tpl, err := svc.CreateTemplate(context.Background(), &dtos.CreateTemplateRequest{
		Name:    "welcome",
		Type:    models.TypeEmail,
		Subject: "Hi {{name}}",
		Content: "Your code is {{code}}, {{name}}",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"code", "name"}, tpl.Variables)
}

func TestCreateTemplateDuplicateName(t *testing.T) {
	templates := newFakeTemplateStore()
	templates.insertErr = repositories.ErrDuplicate
	svc, _ := newTestService(t, newFakeNotifStore(), templates, newFakeBatchStore())

	_, err := svc.CreateTemplate(context.Background(), &dtos.CreateTemplateRequest{
		Name:    "welcome",
		Type:    models.TypeEmail,
		Content: "hi",
	})
	assert.ErrorIs(t, err, ErrInvalid)
}

// ── lifecycle operations ──────────────────────────────────────────────

func TestCancelNotification(t *testing.T) {
	store := newFakeNotifStore()
	svc, _ := newTestService(t, store, newFakeTemplateStore(), newFakeBatchStore())

	n, err := svc.Send(context.Background(), &dtos.SendNotificationRequest{
		Type:      models.TypeEmail,
		Recipient: "user@example.com",
		Content:   "hi",
	})
	require.NoError(t, err)

	require.NoError(t, svc.CancelNotification(context.Background(), n.ID))
	assert.True(t, store.cancelled[n.ID])

	err = svc.CancelNotification(context.Background(), uuid.New())
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestConfirmDeliveryPublishesAndClosesBatch(t *testing.T) {
	store := newFakeNotifStore()
	batches := newFakeBatchStore()
	svc, eventBus := newTestService(t, store, newFakeTemplateStore(), batches)
	drain := collectEvents(t, eventBus)

	batch := &models.Batch{ID: uuid.New(), Type: models.TypeEmail, Total: 1, Sent: 1, Status: models.BatchStatusProcessing}
	require.NoError(t, batches.Insert(context.Background(), batch))

	n := &models.Notification{
		ID: uuid.New(), Type: models.TypeEmail, Priority: models.PriorityNormal,
		Recipient: "user@example.com", Status: models.StatusSent, BatchID: &batch.ID,
	}
	require.NoError(t, store.Insert(context.Background(), n))

	require.NoError(t, svc.ConfirmDelivery(context.Background(), n.ID))
	assert.True(t, store.delivered[n.ID])
	assert.Contains(t, eventTypes(drain()), "notification.delivered")
}

func TestRecordClickPublishes(t *testing.T) {
	store := newFakeNotifStore()
	svc, eventBus := newTestService(t, store, newFakeTemplateStore(), newFakeBatchStore())
	drain := collectEvents(t, eventBus)

	n, err := svc.Send(context.Background(), &dtos.SendNotificationRequest{
		Type:      models.TypeEmail,
		Recipient: "user@example.com",
		Content:   "hi",
	})
	require.NoError(t, err)

	require.NoError(t, svc.RecordClick(context.Background(), n.ID, "u1"))
	events := drain()
	require.Len(t, events, 1)
	assert.Equal(t, "notification.clicked", events[0].Type)
	assert.Equal(t, "u1", events[0].StringData("user_id"))

	err = svc.RecordClick(context.Background(), uuid.New(), "u1")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestGetStatsUnknownPeriod(t *testing.T) {
	svc, _ := newTestService(t, newFakeNotifStore(), newFakeTemplateStore(), newFakeBatchStore())

	_, err := svc.GetStats(context.Background(), "u1", "fortnight")
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = svc.GetStats(context.Background(), "u1", "7d")
	assert.NoError(t, err)
}

func TestUnsubscribePushRequiresIdentity(t *testing.T) {
	svc, _ := newTestService(t, newFakeNotifStore(), newFakeTemplateStore(), newFakeBatchStore())

	err := svc.UnsubscribePush(context.Background(), "", "tok")
	assert.ErrorIs(t, err, ErrInvalid)

	err = svc.UnsubscribePush(context.Background(), "u1", "tok")
	assert.NoError(t, err)
}

func TestRegisterPushSubscriptionValidatesPlatform(t *testing.T) {
	svc, _ := newTestService(t, newFakeNotifStore(), newFakeTemplateStore(), newFakeBatchStore())

	_, err := svc.RegisterPushSubscription(context.Background(), &dtos.RegisterPushSubscriptionRequest{
		UserID:      "u1",
		Platform:    "blackberry",
		DeviceToken: "tok",
	})
	assert.ErrorIs(t, err, ErrInvalid)

	sub, err := svc.RegisterPushSubscription(context.Background(), &dtos.RegisterPushSubscriptionRequest{
		UserID:      "u1",
		Platform:    models.PlatformIOS,
		DeviceToken: "tok",
	})
	require.NoError(t, err)
	assert.True(t, sub.IsActive)
}
