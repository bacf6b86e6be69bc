// Package events decodes domain events from event sources and feeds them to
// the dispatcher.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Priya8975/ticket-webhooks/internal/domain"
)

// Dispatcher fans a domain event out to subscribers.
type Dispatcher interface {
	Dispatch(ctx context.Context, event domain.Event) int
}

// Message is the JSON form of a domain event, shared by the HTTP ingest
// endpoint and the Kafka topic.
type Message struct {
	Event       string         `json:"event"`
	TenantID    string         `json:"tenantId,omitempty"`
	TriggeredBy string         `json:"triggeredBy,omitempty"`
	Ticket      *domain.Ticket `json:"ticket,omitempty"`
	Previous    *domain.Ticket `json:"previous,omitempty"`
	User        *domain.User   `json:"user,omitempty"`
	OccurredAt  *time.Time     `json:"occurredAt,omitempty"`
}

// Decode parses raw JSON into a domain event. An absent tenant falls back to
// defaultTenant.
func Decode(raw []byte, defaultTenant string) (domain.Event, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return domain.Event{}, fmt.Errorf("decoding event: %w", err)
	}
	return msg.ToEvent(defaultTenant)
}

// ToEvent validates msg and converts it to a domain event.
func (m Message) ToEvent(defaultTenant string) (domain.Event, error) {
	eventType, err := domain.ParseEventType(m.Event)
	if err != nil {
		return domain.Event{}, err
	}

	if eventType.IsUserEvent() {
		if m.User == nil {
			return domain.Event{}, fmt.Errorf("%s requires a user snapshot", eventType)
		}
	} else if m.Ticket == nil {
		return domain.Event{}, fmt.Errorf("%s requires a ticket snapshot", eventType)
	}

	tenant := strings.TrimSpace(m.TenantID)
	if tenant == "" {
		tenant = defaultTenant
	}

	e := domain.Event{
		Type:        eventType,
		TenantID:    tenant,
		TriggeredBy: m.TriggeredBy,
		Ticket:      m.Ticket,
		Previous:    m.Previous,
		User:        m.User,
	}
	if eventType.IsUserEvent() {
		e.Ticket, e.Previous = nil, nil
	} else {
		e.User = nil
	}
	if m.OccurredAt != nil {
		e.OccurredAt = m.OccurredAt.UTC()
	}
	return e, nil
}
