package api

import (
	"log/slog"
	"net/http"

	"github.com/Priya8975/ticket-webhooks/internal/events"
	"github.com/Priya8975/ticket-webhooks/internal/registry"
	"github.com/Priya8975/ticket-webhooks/internal/store"
	ws "github.com/Priya8975/ticket-webhooks/internal/websocket"
	"github.com/Priya8975/ticket-webhooks/internal/worker"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Deps are the services the operator API is built on.
type Deps struct {
	Registry      *registry.Registry
	Store         store.Store
	Dispatcher    events.Dispatcher
	Scheduler     *worker.Scheduler
	Queue         QueueDepther
	Hub           *ws.Hub
	HealthChecks  map[string]Pinger
	DefaultTenant string
	Logger        *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(corsMiddleware)

	subHandler := NewSubscriberHandler(d.Registry, d.Store, logger)
	eventHandler := NewEventHandler(d.Dispatcher, logger)
	deliveryHandler := NewDeliveryHandler(d.Store, d.Scheduler, logger)
	var clients ClientCounter
	if d.Hub != nil {
		clients = d.Hub
	}
	dashHandler := NewDashboardHandler(d.Store, d.Queue, clients, logger)

	checks := d.HealthChecks
	if checks == nil {
		checks = map[string]Pinger{"store": d.Store}
	}

	if d.Hub != nil {
		r.Get("/ws", d.Hub.HandleWebSocket(d.DefaultTenant))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler(Version, checks))
		r.Get("/event-types", EventTypesHandler())

		r.Group(func(r chi.Router) {
			r.Use(tenantMiddleware(d.DefaultTenant))

			r.Route("/webhooks", func(r chi.Router) {
				r.Post("/", subHandler.Create)
				r.Get("/", subHandler.List)
				r.Get("/{id}", subHandler.Get)
				r.Put("/{id}", subHandler.Update)
				r.Delete("/{id}", subHandler.Delete)
				r.Put("/{id}/active", subHandler.SetActive)
				r.Post("/{id}/secret", subHandler.RotateSecret)
				r.Get("/{id}/deliveries", subHandler.Deliveries)
			})

			r.Route("/deliveries", func(r chi.Router) {
				r.Get("/{id}", deliveryHandler.Get)
				r.Post("/{id}/retry", deliveryHandler.Retry)
			})

			r.Post("/events", eventHandler.Create)
			r.Get("/metrics", dashHandler.Metrics)
		})
	})

	return r
}

// corsMiddleware adds CORS headers for browser-based operator tools.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+TenantHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
