package engine

import (
	"reflect"
	"testing"

	"github.com/Priya8975/ticket-webhooks/internal/domain"
)

func ticket(status domain.TicketStatus, priority domain.TicketPriority, assignee string) *domain.Ticket {
	return &domain.Ticket{ID: "t-1", TicketNumber: "TKT-1", Status: status, Priority: priority, AssignedToID: assignee}
}

func TestDeriveEventTypes(t *testing.T) {
	tests := []struct {
		name  string
		event domain.Event
		want  []domain.EventType
	}{
		{
			name:  "created without previous state",
			event: domain.Event{Type: domain.EventTicketCreated, Ticket: ticket(domain.StatusOpen, domain.PriorityLow, "")},
			want:  []domain.EventType{domain.EventTicketCreated},
		},
		{
			name: "priority only",
			event: domain.Event{
				Type:     domain.EventTicketUpdated,
				Ticket:   ticket(domain.StatusOpen, domain.PriorityHigh, ""),
				Previous: ticket(domain.StatusOpen, domain.PriorityLow, ""),
			},
			want: []domain.EventType{domain.EventTicketUpdated, domain.EventTicketPriorityChanged},
		},
		{
			name: "closed to open reopens",
			event: domain.Event{
				Type:     domain.EventTicketUpdated,
				Ticket:   ticket(domain.StatusOpen, domain.PriorityLow, ""),
				Previous: ticket(domain.StatusClosed, domain.PriorityLow, ""),
			},
			want: []domain.EventType{
				domain.EventTicketUpdated,
				domain.EventTicketOpened,
				domain.EventTicketStatusChanged,
				domain.EventTicketReopened,
			},
		},
		{
			name: "resolved to open is not a reopen",
			event: domain.Event{
				Type:     domain.EventTicketUpdated,
				Ticket:   ticket(domain.StatusOpen, domain.PriorityLow, ""),
				Previous: ticket(domain.StatusResolved, domain.PriorityLow, ""),
			},
			want: []domain.EventType{domain.EventTicketUpdated, domain.EventTicketOpened, domain.EventTicketStatusChanged},
		},
		{
			name: "assigned",
			event: domain.Event{
				Type:     domain.EventTicketUpdated,
				Ticket:   ticket(domain.StatusOpen, domain.PriorityLow, "agent-1"),
				Previous: ticket(domain.StatusOpen, domain.PriorityLow, ""),
			},
			want: []domain.EventType{domain.EventTicketUpdated, domain.EventTicketAssigned},
		},
		{
			name: "reassigned",
			event: domain.Event{
				Type:     domain.EventTicketUpdated,
				Ticket:   ticket(domain.StatusOpen, domain.PriorityLow, "agent-2"),
				Previous: ticket(domain.StatusOpen, domain.PriorityLow, "agent-1"),
			},
			want: []domain.EventType{domain.EventTicketUpdated, domain.EventTicketAssigned},
		},
		{
			name: "unassigned",
			event: domain.Event{
				Type:     domain.EventTicketUpdated,
				Ticket:   ticket(domain.StatusOpen, domain.PriorityLow, ""),
				Previous: ticket(domain.StatusOpen, domain.PriorityLow, "agent-1"),
			},
			want: []domain.EventType{domain.EventTicketUpdated, domain.EventTicketUnassigned},
		},
		{
			name: "primary duplicates a derived type",
			event: domain.Event{
				Type:     domain.EventTicketStatusChanged,
				Ticket:   ticket(domain.StatusClosed, domain.PriorityLow, ""),
				Previous: ticket(domain.StatusInProgress, domain.PriorityLow, ""),
			},
			want: []domain.EventType{domain.EventTicketStatusChanged, domain.EventTicketClosed},
		},
		{
			name:  "user event",
			event: domain.Event{Type: domain.EventUserCreated, User: &domain.User{ID: "u-1"}},
			want:  []domain.EventType{domain.EventUserCreated},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveEventTypes(tt.event)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
