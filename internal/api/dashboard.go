package api

import (
	"log/slog"
	"net/http"

	"github.com/Priya8975/ticket-webhooks/internal/store"
)

// QueueDepther reports how many deliveries wait in the work queue.
type QueueDepther interface {
	Depth() int
}

// ClientCounter reports connected live-feed clients.
type ClientCounter interface {
	ClientCount() int
}

type DashboardHandler struct {
	store  store.Store
	queue  QueueDepther
	hub    ClientCounter
	logger *slog.Logger
}

func NewDashboardHandler(st store.Store, queue QueueDepther, hub ClientCounter, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{store: st, queue: queue, hub: hub, logger: logger}
}

type metricsResponse struct {
	store.DeliveryMetrics
	TenantID         string `json:"tenant_id"`
	QueueDepth       int    `json:"queue_depth"`
	WebSocketClients int    `json:"websocket_clients"`
}

// Metrics returns the tenant's delivery counts alongside process-wide gauges.
func (h *DashboardHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r.Context())
	metrics, err := h.store.DeliveryStats(r.Context(), tenant)
	if err != nil {
		respondDomainError(w, h.logger, err, "failed to get metrics")
		return
	}

	resp := metricsResponse{DeliveryMetrics: *metrics, TenantID: tenant}
	if h.queue != nil {
		resp.QueueDepth = h.queue.Depth()
	}
	if h.hub != nil {
		resp.WebSocketClients = h.hub.ClientCount()
	}
	respondJSON(w, http.StatusOK, resp)
}
