package api

import (
	"log/slog"
	"net/http"

	"github.com/Priya8975/ticket-webhooks/internal/domain"
	"github.com/Priya8975/ticket-webhooks/internal/store"
	"github.com/Priya8975/ticket-webhooks/internal/worker"
	"github.com/go-chi/chi/v5"
)

type DeliveryHandler struct {
	store     store.Store
	scheduler *worker.Scheduler
	logger    *slog.Logger
}

func NewDeliveryHandler(st store.Store, scheduler *worker.Scheduler, logger *slog.Logger) *DeliveryHandler {
	return &DeliveryHandler{store: st, scheduler: scheduler, logger: logger}
}

func (h *DeliveryHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.GetDelivery(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, h.logger, err, "failed to get delivery")
		return
	}
	if rec == nil {
		respondDomainError(w, h.logger, domain.ErrNotFound, "")
		return
	}
	if rec.TenantID != tenantFrom(r.Context()) {
		respondDomainError(w, h.logger, domain.ErrForbidden, "")
		return
	}

	respondJSON(w, http.StatusOK, rec)
}

// Retry performs the next attempt synchronously and returns the updated record.
func (h *DeliveryHandler) Retry(w http.ResponseWriter, r *http.Request) {
	rec, err := h.scheduler.RetryNow(r.Context(), tenantFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, h.logger, err, "failed to retry delivery")
		return
	}

	respondJSON(w, http.StatusOK, rec)
}
