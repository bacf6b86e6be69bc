package events

import (
	"testing"

	"github.com/Priya8975/ticket-webhooks/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_TicketEvent(t *testing.T) {
	raw := []byte(`{
		"event": "ticket.updated",
		"tenantId": "acme",
		"triggeredBy": "agent-1",
		"ticket": {"id": "t-1", "ticketNumber": "TKT-9", "status": "OPEN", "priority": "HIGH"},
		"previous": {"id": "t-1", "ticketNumber": "TKT-9", "status": "CLOSED", "priority": "HIGH"},
		"occurredAt": "2026-04-01T10:00:00+02:00"
	}`)

	e, err := Decode(raw, "default")
	require.NoError(t, err)

	assert.Equal(t, domain.EventTicketUpdated, e.Type)
	assert.Equal(t, "acme", e.TenantID)
	assert.Equal(t, "agent-1", e.TriggeredBy)
	require.NotNil(t, e.Previous)
	assert.Equal(t, domain.StatusClosed, e.Previous.Status)
	assert.Equal(t, 8, e.OccurredAt.Hour(), "timestamps are normalized to UTC")
}

func TestDecode_DefaultTenant(t *testing.T) {
	e, err := Decode([]byte(`{"event":"user.created","user":{"id":"u-1","email":"a@b.c"}}`), "default")
	require.NoError(t, err)
	assert.Equal(t, "default", e.TenantID)
	assert.Nil(t, e.Ticket)
}

func TestDecode_Rejects(t *testing.T) {
	tests := map[string]string{
		"not json":            `{`,
		"unknown type":        `{"event":"ticket.exploded","ticket":{"id":"t"}}`,
		"ticket without body": `{"event":"ticket.created"}`,
		"user without body":   `{"event":"user.deleted","ticket":{"id":"t"}}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(raw), "default")
			assert.Error(t, err)
		})
	}
}
