package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Priya8975/ticket-webhooks/internal/domain"
	"github.com/google/uuid"
)

// Matcher finds the subscribers registered for an event type.
type Matcher interface {
	Match(ctx context.Context, tenantID string, eventType domain.EventType) ([]domain.Subscriber, error)
}

// DeliveryCreator persists new delivery records.
type DeliveryCreator interface {
	CreateDelivery(ctx context.Context, d *domain.Delivery) error
}

// Submitter hands a delivery id to the workers without blocking.
type Submitter interface {
	TrySubmit(deliveryID string) bool
}

// FanOutEngine turns domain events into PENDING delivery records, one per
// matching subscriber and derived event type, and queues them for delivery.
type FanOutEngine struct {
	matcher Matcher
	store   DeliveryCreator
	queue   Submitter
	logger  *slog.Logger
	now     func() time.Time
}

func NewFanOutEngine(matcher Matcher, st DeliveryCreator, queue Submitter, logger *slog.Logger) *FanOutEngine {
	return &FanOutEngine{
		matcher: matcher,
		store:   st,
		queue:   queue,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch creates and queues deliveries for event and returns how many
// records were created. Failures are logged and never reach the caller, so
// the business operation that raised the event is never affected.
func (f *FanOutEngine) Dispatch(ctx context.Context, event domain.Event) int {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = f.now()
	}

	created := 0
	for _, eventType := range DeriveEventTypes(event) {
		subscribers, err := f.matcher.Match(ctx, event.TenantID, eventType)
		if err != nil {
			f.logger.Error("failed to match subscribers",
				"error", err,
				"tenant_id", event.TenantID,
				"event_type", eventType,
			)
			continue
		}
		if len(subscribers) == 0 {
			f.logger.Debug("no matching subscribers", "tenant_id", event.TenantID, "event_type", eventType)
			continue
		}

		for i := range subscribers {
			if f.createDelivery(ctx, event, eventType, &subscribers[i]) {
				created++
			}
		}
	}

	if created > 0 {
		f.logger.Info("fan-out complete",
			"tenant_id", event.TenantID,
			"event_type", event.Type,
			"deliveries_queued", created,
		)
	}
	return created
}

func (f *FanOutEngine) createDelivery(ctx context.Context, event domain.Event, eventType domain.EventType, sub *domain.Subscriber) bool {
	id := uuid.NewString()
	body, err := buildPayload(id, event, eventType, sub.ID)
	if err != nil {
		f.logger.Error("failed to build payload", "error", err, "subscriber_id", sub.ID, "event_type", eventType)
		return false
	}

	corrID, corrRef := event.Correlation()
	d := &domain.Delivery{
		ID:                id,
		SubscriberID:      sub.ID,
		TenantID:          event.TenantID,
		SubscriberName:    sub.Name,
		SubscriberURL:     sub.URL,
		EventType:         eventType,
		CorrelationID:     corrID,
		CorrelationRef:    corrRef,
		Payload:           body,
		Status:            domain.DeliveryPending,
		MaxAttempts:       sub.MaxAttempts,
		RetryDelaySeconds: sub.RetryDelaySeconds,
		CreatedAt:         f.now(),
	}

	if err := f.store.CreateDelivery(ctx, d); err != nil {
		f.logger.Error("failed to create delivery", "error", err, "subscriber_id", sub.ID, "event_type", eventType)
		return false
	}

	if !f.queue.TrySubmit(id) {
		f.logger.Warn("delivery queue full, left for retry sweep", "delivery_id", id, "subscriber_id", sub.ID)
	}
	return true
}

// buildPayload serializes the body once; every attempt resends these bytes.
func buildPayload(id string, event domain.Event, eventType domain.EventType, webhookID string) (json.RawMessage, error) {
	body, err := json.Marshal(domain.Payload{
		ID:           id,
		Event:        eventType,
		Timestamp:    event.OccurredAt,
		WebhookID:    webhookID,
		Data:         event.Subject(),
		PreviousData: event.PreviousSubject(),
		TriggeredBy:  event.TriggeredBy,
		TenantID:     event.TenantID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}
	return body, nil
}
