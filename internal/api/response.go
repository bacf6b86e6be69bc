package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Priya8975/ticket-webhooks/internal/domain"
	"github.com/Priya8975/ticket-webhooks/internal/store"
)

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}

// respondDomainError maps service errors onto HTTP status codes.
func respondDomainError(w http.ResponseWriter, logger *slog.Logger, err error, fallback string) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Fields: verr.Fields})
	case errors.Is(err, store.ErrPageOutOfRange):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrDuplicateName), errors.Is(err, domain.ErrNotRetryable):
		respondError(w, http.StatusConflict, err.Error())
	default:
		logger.Error(fallback, "error", err)
		respondError(w, http.StatusInternalServerError, fallback)
	}
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
