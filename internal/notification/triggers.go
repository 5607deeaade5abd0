package notification

import (
	"context"
	"time"

	"github.com/justinndidit/eventPipeline/internal/bus"
	"github.com/justinndidit/eventPipeline/internal/dtos"
	"github.com/justinndidit/eventPipeline/internal/models"
	"github.com/rs/zerolog"
)

const triggerDedupTTL = 24 * time.Hour

// triggerRule maps one domain event to the notifications it synthesizes.
type triggerRule struct {
	subject string
	build   func(event bus.Event) []*dtos.SendNotificationRequest
}

// Triggers subscribes to an enumerated set of domain events and admits
// notifications for them. Handlers are idempotent per event id: a Redis
// SETNX gate absorbs at-least-once redelivery.
type Triggers struct {
	svc    *Service
	logger *zerolog.Logger
	subs   []bus.Subscription
	rules  []triggerRule
}

func NewTriggers(svc *Service, logger *zerolog.Logger) *Triggers {
	t := &Triggers{svc: svc, logger: logger}
	t.rules = []triggerRule{
		{"user.registered", t.onUserRegistered},
		{"user.logged_in", t.onUserLoggedIn},
		{"payment.completed", t.onPaymentCompleted},
		{"file.shared", t.onFileShared},
		{"file.uploaded", t.onFileUploaded},
		{"order.created", t.onOrderCreated},
		{"task.assigned", t.onTaskAssigned},
		{"invitation.created", t.onInvitationCreated},
		{"wallet.balance_low", t.onWalletBalanceLow},
		{"organization.member_added", t.onMemberAdded},
		{"device.offline", t.onDeviceOffline},
	}
	return t
}

// Start registers one bus subscription per trigger subject.
func (t *Triggers) Start(eventBus bus.Bus) error {
	for _, rule := range t.rules {
		rule := rule
		sub, err := eventBus.Subscribe(rule.subject, func(ctx context.Context, event bus.Event) {
			t.handle(ctx, rule, event)
		})
		if err != nil {
			t.Stop()
			return err
		}
		t.subs = append(t.subs, sub)
	}

	t.logger.Info().Int("subjects", len(t.rules)).Msg("Notification triggers subscribed")
	return nil
}

func (t *Triggers) Stop() {
	for _, sub := range t.subs {
		if err := sub.Unsubscribe(); err != nil {
			t.logger.Warn().Err(err).Msg("Failed to unsubscribe trigger")
		}
	}
	t.subs = nil
}

func (t *Triggers) handle(ctx context.Context, rule triggerRule, event bus.Event) {
	if !t.claimEvent(ctx, event.ID) {
		t.logger.Debug().Str("event_id", event.ID).Str("subject", event.Type).Msg("Skipping redelivered trigger event")
		return
	}

	for _, req := range rule.build(event) {
		if req == nil || req.Recipient == "" {
			continue
		}
		if _, err := t.svc.Send(ctx, req); err != nil {
			t.logger.Error().Err(err).
				Str("event_id", event.ID).
				Str("subject", event.Type).
				Msg("Failed to admit triggered notification")
		}
	}
}

// claimEvent returns true exactly once per event id within the dedup TTL.
// Without Redis the gate is open; the admission path stays correct, just
// not redelivery-proof.
func (t *Triggers) claimEvent(ctx context.Context, eventID string) bool {
	if t.svc.redis == nil || eventID == "" {
		return true
	}
	ok, err := t.svc.redis.SetNX(ctx, "trigger:event:"+eventID, 1, triggerDedupTTL).Result()
	if err != nil {
		t.logger.Warn().Err(err).Str("event_id", eventID).Msg("Trigger dedup check failed, processing anyway")
		return true
	}
	return ok
}

func eventMeta(event bus.Event) map[string]any {
	return map[string]any{"source_event_id": event.ID, "source": event.Source}
}

func (t *Triggers) onUserRegistered(event bus.Event) []*dtos.SendNotificationRequest {
	name := event.StringData("name")
	if name == "" {
		name = "there"
	}
	return []*dtos.SendNotificationRequest{{
		Type:      models.TypeEmail,
		Recipient: event.StringData("email"),
		Subject:   "Welcome!",
		Content:   "Hi " + name + ", your account is ready.",
		Metadata:  eventMeta(event),
	}}
}

func (t *Triggers) onUserLoggedIn(event bus.Event) []*dtos.SendNotificationRequest {
	return []*dtos.SendNotificationRequest{{
		Type:      models.TypeInApp,
		Recipient: event.StringData("user_id"),
		Subject:   "Welcome back",
		Content:   "You signed in on a new session.",
		Metadata:  eventMeta(event),
	}}
}

func (t *Triggers) onPaymentCompleted(event bus.Event) []*dtos.SendNotificationRequest {
	amount := event.StringData("amount")
	content := "Your payment was processed."
	if amount != "" {
		content = "Your payment of " + amount + " was processed."
	}
	return []*dtos.SendNotificationRequest{
		{
			Type:      models.TypeEmail,
			Recipient: event.StringData("email"),
			Subject:   "Payment receipt",
			Content:   content,
			Metadata:  eventMeta(event),
		},
		{
			Type:      models.TypeInApp,
			Recipient: event.StringData("user_id"),
			Subject:   "Payment received",
			Content:   content,
			Metadata:  eventMeta(event),
		},
	}
}

func (t *Triggers) onFileShared(event bus.Event) []*dtos.SendNotificationRequest {
	fileName := event.StringData("file_name")
	sharedBy := event.StringData("shared_by")
	content := "A file was shared with you."
	if fileName != "" && sharedBy != "" {
		content = sharedBy + " shared " + fileName + " with you."
	}

	reqs := []*dtos.SendNotificationRequest{{
		Type:      models.TypeInApp,
		Recipient: event.StringData("user_id"),
		Subject:   "File shared with you",
		Content:   content,
		Metadata:  eventMeta(event),
	}}
	if email := event.StringData("email"); email != "" {
		reqs = append(reqs, &dtos.SendNotificationRequest{
			Type:      models.TypeEmail,
			Recipient: email,
			Subject:   "File shared with you",
			Content:   content,
			Metadata:  eventMeta(event),
		})
	}
	return reqs
}

func (t *Triggers) onFileUploaded(event bus.Event) []*dtos.SendNotificationRequest {
	fileName := event.StringData("file_name")
	content := "Your file was uploaded."
	if fileName != "" {
		content = fileName + " was uploaded."
	}
	return []*dtos.SendNotificationRequest{{
		Type:      models.TypeInApp,
		Recipient: event.StringData("user_id"),
		Subject:   "Upload complete",
		Content:   content,
		Metadata:  eventMeta(event),
	}}
}

func (t *Triggers) onOrderCreated(event bus.Event) []*dtos.SendNotificationRequest {
	orderID := event.StringData("order_id")
	content := "Your order was received."
	if orderID != "" {
		content = "Your order " + orderID + " was received."
	}
	return []*dtos.SendNotificationRequest{{
		Type:      models.TypeEmail,
		Recipient: event.StringData("email"),
		Subject:   "Order confirmation",
		Content:   content,
		Metadata:  eventMeta(event),
	}}
}

func (t *Triggers) onTaskAssigned(event bus.Event) []*dtos.SendNotificationRequest {
	task := event.StringData("task_title")
	content := "A task was assigned to you."
	if task != "" {
		content = "Task assigned to you: " + task
	}
	return []*dtos.SendNotificationRequest{{
		Type:      models.TypeInApp,
		Recipient: event.StringData("user_id"),
		Subject:   "New task",
		Content:   content,
		Metadata:  eventMeta(event),
	}}
}

func (t *Triggers) onInvitationCreated(event bus.Event) []*dtos.SendNotificationRequest {
	org := event.StringData("organization_name")
	content := "You have been invited."
	if org != "" {
		content = "You have been invited to join " + org + "."
	}
	return []*dtos.SendNotificationRequest{{
		Type:      models.TypeEmail,
		Recipient: event.StringData("email"),
		Subject:   "You're invited",
		Content:   content,
		Metadata:  eventMeta(event),
	}}
}

func (t *Triggers) onWalletBalanceLow(event bus.Event) []*dtos.SendNotificationRequest {
	return []*dtos.SendNotificationRequest{{
		Type:      models.TypeInApp,
		Priority:  models.PriorityHigh,
		Recipient: event.StringData("user_id"),
		Subject:   "Low balance",
		Content:   "Your wallet balance is running low.",
		Metadata:  eventMeta(event),
	}}
}

func (t *Triggers) onMemberAdded(event bus.Event) []*dtos.SendNotificationRequest {
	org := event.StringData("organization_name")
	content := "You were added to an organization."
	if org != "" {
		content = "You were added to " + org + "."
	}
	return []*dtos.SendNotificationRequest{{
		Type:      models.TypeInApp,
		Recipient: event.StringData("user_id"),
		Subject:   "Organization membership",
		Content:   content,
		Metadata:  eventMeta(event),
	}}
}

func (t *Triggers) onDeviceOffline(event bus.Event) []*dtos.SendNotificationRequest {
	device := event.StringData("device_name")
	content := "One of your devices went offline."
	if device != "" {
		content = device + " went offline."
	}
	return []*dtos.SendNotificationRequest{{
		Type:      models.TypeInApp,
		Priority:  models.PriorityHigh,
		Recipient: event.StringData("user_id"),
		Subject:   "Device offline",
		Content:   content,
		Metadata:  eventMeta(event),
	}}
}
