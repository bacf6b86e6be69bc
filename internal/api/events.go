package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Priya8975/ticket-webhooks/internal/domain"
	"github.com/Priya8975/ticket-webhooks/internal/events"
)

type EventHandler struct {
	dispatcher events.Dispatcher
	logger     *slog.Logger
}

func NewEventHandler(dispatcher events.Dispatcher, logger *slog.Logger) *EventHandler {
	return &EventHandler{dispatcher: dispatcher, logger: logger}
}

type ingestResponse struct {
	Event            domain.EventType `json:"event"`
	TenantID         string           `json:"tenant_id"`
	DeliveriesQueued int              `json:"deliveries_queued"`
}

// Create accepts a domain event and fans it out. A tenant in the body wins
// over the X-Tenant-ID header.
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var msg events.Message
	if err := decodeJSON(r, &msg); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	event, err := msg.ToEvent(tenantFrom(r.Context()))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Records are created even if the caller hangs up mid fan-out.
	queued := h.dispatcher.Dispatch(context.WithoutCancel(r.Context()), event)
	h.logger.Info("event ingested", "event_type", event.Type, "tenant_id", event.TenantID, "deliveries", queued)

	respondJSON(w, http.StatusAccepted, ingestResponse{
		Event:            event.Type,
		TenantID:         event.TenantID,
		DeliveriesQueued: queued,
	})
}

func EventTypesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, domain.AllEventTypes())
	}
}
