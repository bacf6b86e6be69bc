package api

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/Priya8975/ticket-webhooks/internal/domain"
	"github.com/Priya8975/ticket-webhooks/internal/registry"
	"github.com/Priya8975/ticket-webhooks/internal/store"
	"github.com/go-chi/chi/v5"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type SubscriberHandler struct {
	registry *registry.Registry
	store    store.Store
	logger   *slog.Logger
}

func NewSubscriberHandler(reg *registry.Registry, st store.Store, logger *slog.Logger) *SubscriberHandler {
	return &SubscriberHandler{registry: reg, store: st, logger: logger}
}

func (h *SubscriberHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.SubscriberRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, err := h.registry.Create(r.Context(), tenantFrom(r.Context()), req)
	if err != nil {
		respondDomainError(w, h.logger, err, "failed to create webhook")
		return
	}

	respondJSON(w, http.StatusCreated, domain.NewSubscriberResponse(sub, true))
}

func (h *SubscriberHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	subs, err := h.registry.List(r.Context(), tenantFrom(r.Context()), activeOnly)
	if err != nil {
		respondDomainError(w, h.logger, err, "failed to list webhooks")
		return
	}

	resp := make([]domain.SubscriberResponse, 0, len(subs))
	for i := range subs {
		resp = append(resp, domain.NewSubscriberResponse(&subs[i], false))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *SubscriberHandler) Get(w http.ResponseWriter, r *http.Request) {
	sub, err := h.registry.Get(r.Context(), tenantFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, h.logger, err, "failed to get webhook")
		return
	}

	respondJSON(w, http.StatusOK, domain.NewSubscriberResponse(sub, false))
}

// Update replaces the subscriber's configuration. Statistics and secret are kept.
func (h *SubscriberHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.SubscriberRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, err := h.registry.Update(r.Context(), tenantFrom(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		respondDomainError(w, h.logger, err, "failed to update webhook")
		return
	}

	respondJSON(w, http.StatusOK, domain.NewSubscriberResponse(sub, false))
}

func (h *SubscriberHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Delete(r.Context(), tenantFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		respondDomainError(w, h.logger, err, "failed to delete webhook")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type activeRequest struct {
	Active *bool `json:"active"`
}

func (h *SubscriberHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	var req activeRequest
	if err := decodeJSON(r, &req); err != nil || req.Active == nil {
		respondError(w, http.StatusBadRequest, "body must be {\"active\": true|false}")
		return
	}

	sub, err := h.registry.SetActive(r.Context(), tenantFrom(r.Context()), chi.URLParam(r, "id"), *req.Active)
	if err != nil {
		respondDomainError(w, h.logger, err, "failed to change webhook state")
		return
	}

	respondJSON(w, http.StatusOK, domain.NewSubscriberResponse(sub, false))
}

func (h *SubscriberHandler) RotateSecret(w http.ResponseWriter, r *http.Request) {
	sub, err := h.registry.RotateSecret(r.Context(), tenantFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, h.logger, err, "failed to rotate secret")
		return
	}

	respondJSON(w, http.StatusOK, domain.NewSubscriberResponse(sub, true))
}

// Deliveries returns the subscriber's delivery history, newest first.
func (h *SubscriberHandler) Deliveries(w http.ResponseWriter, r *http.Request) {
	sub, err := h.registry.Get(r.Context(), tenantFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, h.logger, err, "failed to get webhook")
		return
	}

	page := queryInt(r, "page", 0)
	if page < 0 {
		page = 0
	}
	size := queryInt(r, "size", defaultPageSize)
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	if page > math.MaxInt32/size {
		respondError(w, http.StatusBadRequest, "page out of range")
		return
	}

	items, total, err := h.store.ListDeliveries(r.Context(), sub.ID, page, size)
	if err != nil {
		respondDomainError(w, h.logger, err, "failed to list deliveries")
		return
	}
	if items == nil {
		items = []domain.Delivery{}
	}

	respondJSON(w, http.StatusOK, domain.DeliveryPage{Items: items, Page: page, Size: size, Total: total})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
