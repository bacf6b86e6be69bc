package domain

import "time"

type TicketStatus string

const (
	StatusOpen       TicketStatus = "OPEN"
	StatusInProgress TicketStatus = "IN_PROGRESS"
	StatusResolved   TicketStatus = "RESOLVED"
	StatusClosed     TicketStatus = "CLOSED"
)

type TicketPriority string

const (
	PriorityLow    TicketPriority = "LOW"
	PriorityMedium TicketPriority = "MEDIUM"
	PriorityHigh   TicketPriority = "HIGH"
	PriorityUrgent TicketPriority = "URGENT"
)

// Ticket is the snapshot of a ticket carried by ticket events.
type Ticket struct {
	ID             string         `json:"id"`
	TicketNumber   string         `json:"ticketNumber"`
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	Status         TicketStatus   `json:"status"`
	Priority       TicketPriority `json:"priority"`
	Type           string         `json:"type,omitempty"`
	CustomerID     string         `json:"customerId,omitempty"`
	CustomerName   string         `json:"customerName,omitempty"`
	CustomerEmail  string         `json:"customerEmail,omitempty"`
	AssignedToID   string         `json:"assignedToId,omitempty"`
	AssignedToName string         `json:"assignedToName,omitempty"`
	Tags           []string       `json:"tags,omitempty"`
	MessageCount   int            `json:"messageCount"`
	CreatedAt      *time.Time     `json:"createdAt,omitempty"`
	UpdatedAt      *time.Time     `json:"updatedAt,omitempty"`
	LastMessageAt  *time.Time     `json:"lastMessageAt,omitempty"`
	LastMessageBy  string         `json:"lastMessageBy,omitempty"`
}

// User is the snapshot carried by user.* events.
type User struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Role      string     `json:"role,omitempty"`
	Active    bool       `json:"active"`
	TenantID  string     `json:"tenantId,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}
