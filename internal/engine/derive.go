package engine

import "github.com/Priya8975/ticket-webhooks/internal/domain"

// DeriveEventTypes expands an event into every type it should be delivered
// as. The primary type always comes first; when a previous ticket snapshot is
// present, status, priority and assignee changes add their own types. The
// result has no duplicates.
func DeriveEventTypes(e domain.Event) []domain.EventType {
	types := []domain.EventType{e.Type}

	if e.Ticket != nil && e.Previous != nil {
		cur, prev := e.Ticket, e.Previous

		if cur.Status != prev.Status {
			types = append(types, domain.StatusEventType(cur.Status), domain.EventTicketStatusChanged)
			if prev.Status == domain.StatusClosed && cur.Status == domain.StatusOpen {
				types = append(types, domain.EventTicketReopened)
			}
		}

		if cur.Priority != prev.Priority {
			types = append(types, domain.EventTicketPriorityChanged)
		}

		if cur.AssignedToID != prev.AssignedToID {
			if cur.AssignedToID != "" {
				types = append(types, domain.EventTicketAssigned)
			} else {
				types = append(types, domain.EventTicketUnassigned)
			}
		}
	}

	seen := make(map[domain.EventType]bool, len(types))
	out := types[:0]
	for _, t := range types {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
