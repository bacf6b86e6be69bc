package domain

import (
	"fmt"
	"time"
)

// EventType is a webhook event name. The set of valid values is closed; use
// ParseEventType to convert untrusted strings.
type EventType string

const (
	EventTicketCreated         EventType = "ticket.created"
	EventTicketUpdated         EventType = "ticket.updated"
	EventTicketDeleted         EventType = "ticket.deleted"
	EventTicketOpened          EventType = "ticket.opened"
	EventTicketInProgress      EventType = "ticket.in_progress"
	EventTicketResolved        EventType = "ticket.resolved"
	EventTicketClosed          EventType = "ticket.closed"
	EventTicketReopened        EventType = "ticket.reopened"
	EventTicketStatusChanged   EventType = "ticket.status_changed"
	EventTicketAssigned        EventType = "ticket.assigned"
	EventTicketUnassigned      EventType = "ticket.unassigned"
	EventTicketPriorityChanged EventType = "ticket.priority_changed"
	EventMessageAdded          EventType = "ticket.message.added"
	EventCommentAdded          EventType = "ticket.comment.added"
	EventInternalNoteAdded     EventType = "ticket.internal_note.added"
	EventMessageDeleted        EventType = "ticket.message.deleted"
	EventMessageUpdated        EventType = "ticket.message.updated"
	EventUserCreated           EventType = "user.created"
	EventUserUpdated           EventType = "user.updated"
	EventUserDeleted           EventType = "user.deleted"
)

var ticketEventTypes = []EventType{
	EventTicketCreated,
	EventTicketUpdated,
	EventTicketDeleted,
	EventTicketOpened,
	EventTicketInProgress,
	EventTicketResolved,
	EventTicketClosed,
	EventTicketReopened,
	EventTicketStatusChanged,
	EventTicketAssigned,
	EventTicketUnassigned,
	EventTicketPriorityChanged,
	EventMessageAdded,
	EventCommentAdded,
	EventInternalNoteAdded,
	EventMessageDeleted,
	EventMessageUpdated,
}

var userEventTypes = []EventType{
	EventUserCreated,
	EventUserUpdated,
	EventUserDeleted,
}

var knownEventTypes = func() map[EventType]struct{} {
	m := make(map[EventType]struct{}, len(ticketEventTypes)+len(userEventTypes))
	for _, t := range ticketEventTypes {
		m[t] = struct{}{}
	}
	for _, t := range userEventTypes {
		m[t] = struct{}{}
	}
	return m
}()

// AllEventTypes returns every event type a subscriber may register for.
func AllEventTypes() []EventType {
	all := make([]EventType, 0, len(ticketEventTypes)+len(userEventTypes))
	all = append(all, ticketEventTypes...)
	return append(all, userEventTypes...)
}

// Valid reports whether t is part of the event catalogue.
func (t EventType) Valid() bool {
	_, ok := knownEventTypes[t]
	return ok
}

// IsUserEvent reports whether t carries a user snapshot rather than a ticket.
func (t EventType) IsUserEvent() bool {
	switch t {
	case EventUserCreated, EventUserUpdated, EventUserDeleted:
		return true
	}
	return false
}

func ParseEventType(s string) (EventType, error) {
	t := EventType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown event type %q", s)
	}
	return t, nil
}

// StatusEventType maps a ticket status to its status-specific event.
func StatusEventType(s TicketStatus) EventType {
	switch s {
	case StatusOpen:
		return EventTicketOpened
	case StatusInProgress:
		return EventTicketInProgress
	case StatusResolved:
		return EventTicketResolved
	case StatusClosed:
		return EventTicketClosed
	}
	return EventTicketUpdated
}

// Event is a domain occurrence raised by the ticketing side of the
// application. Exactly one of Ticket or User is set.
type Event struct {
	Type        EventType
	TenantID    string
	TriggeredBy string
	Ticket      *Ticket
	Previous    *Ticket
	User        *User
	OccurredAt  time.Time
}

// Subject returns the current-state snapshot sent as payload data.
func (e Event) Subject() any {
	if e.Ticket != nil {
		return e.Ticket
	}
	if e.User != nil {
		return e.User
	}
	return nil
}

// PreviousSubject returns the previous snapshot, or nil when absent.
func (e Event) PreviousSubject() any {
	if e.Previous == nil {
		return nil
	}
	return e.Previous
}

// Correlation returns the id and human reference of the subject that raised
// the event, e.g. a ticket id and its ticket number.
func (e Event) Correlation() (id, ref string) {
	switch {
	case e.Ticket != nil:
		return e.Ticket.ID, e.Ticket.TicketNumber
	case e.User != nil:
		return e.User.ID, e.User.Email
	}
	return "", ""
}

// Payload is the JSON body POSTed to subscriber endpoints.
type Payload struct {
	ID           string    `json:"id"`
	Event        EventType `json:"event"`
	Timestamp    time.Time `json:"timestamp"`
	WebhookID    string    `json:"webhookId"`
	Data         any       `json:"data"`
	PreviousData any       `json:"previousData,omitempty"`
	TriggeredBy  string    `json:"triggeredBy,omitempty"`
	TenantID     string    `json:"tenantId"`
}
