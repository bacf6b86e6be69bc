package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Priya8975/ticket-webhooks/internal/domain"
	"github.com/Priya8975/ticket-webhooks/internal/engine"
	"github.com/Priya8975/ticket-webhooks/internal/registry"
	"github.com/Priya8975/ticket-webhooks/internal/store"
	ws "github.com/Priya8975/ticket-webhooks/internal/websocket"
	"github.com/Priya8975/ticket-webhooks/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureQueue struct {
	mu  sync.Mutex
	ids []string
}

func (q *captureQueue) TrySubmit(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, id)
	return true
}

func (q *captureQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids)
}

type brokenPinger struct{}

func (brokenPinger) Ping(context.Context) error { return errors.New("connection refused") }

type testEnv struct {
	server *httptest.Server
	store  *store.MemoryStore
	queue  *captureQueue
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st := store.NewMemory()
	q := &captureQueue{}
	reg := registry.New(st, logger)
	deliverer := worker.NewDeliverer(st, nil, worker.TransportConfig{}, logger)
	scheduler := worker.NewScheduler(st, q, deliverer, nil, worker.SchedulerConfig{}, logger)

	router := NewRouter(Deps{
		Registry:      reg,
		Store:         st,
		Dispatcher:    engine.NewFanOutEngine(reg, st, q, logger),
		Scheduler:     scheduler,
		Queue:         q,
		Hub:           ws.NewHub(logger),
		DefaultTenant: "acme",
		Logger:        logger,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, store: st, queue: q}
}

func (e *testEnv) do(t *testing.T, method, path, tenant string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = strings.NewReader(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(raw)
		}
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if tenant != "" {
		req.Header.Set(TenantHeader, tenant)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

type webhookView struct {
	ID          string   `json:"id"`
	TenantID    string   `json:"tenant_id"`
	Name        string   `json:"name"`
	URL         string   `json:"url"`
	Secret      string   `json:"secret"`
	IsActive    bool     `json:"is_active"`
	EventTypes  []string `json:"event_types"`
	MaxAttempts int      `json:"max_attempts"`
}

func (e *testEnv) createWebhook(t *testing.T, tenant, name, url string, types ...string) webhookView {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/api/v1/webhooks", tenant, map[string]any{
		"name":        name,
		"url":         url,
		"event_types": types,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var v webhookView
	require.NoError(t, json.Unmarshal(body, &v))
	return v
}

func ticketEvent(event string) map[string]any {
	return map[string]any{
		"event": event,
		"ticket": map[string]any{
			"id":           "t-1",
			"ticketNumber": "TKT-1",
			"title":        "Printer on fire",
			"status":       "OPEN",
			"priority":     "HIGH",
		},
	}
}

func TestWebhookLifecycle(t *testing.T) {
	env := setup(t)

	created := env.createWebhook(t, "", "crm", "http://crm.example.com/hook", "ticket.created")
	assert.Equal(t, "acme", created.TenantID, "missing header should use the default tenant")
	assert.True(t, strings.HasPrefix(created.Secret, "whsec_"))
	assert.True(t, created.IsActive)
	assert.Equal(t, domain.DefaultMaxAttempts, created.MaxAttempts)

	resp, body := env.do(t, http.MethodGet, "/api/v1/webhooks/"+created.ID, "acme", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fetched webhookView
	require.NoError(t, json.Unmarshal(body, &fetched))
	assert.Empty(t, fetched.Secret, "secret is only shown on create and rotation")

	resp, body = env.do(t, http.MethodPut, "/api/v1/webhooks/"+created.ID, "acme", map[string]any{
		"name":         "crm",
		"url":          "http://crm.example.com/v2",
		"event_types":  []string{"ticket.created", "ticket.closed"},
		"max_attempts": 5,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var updated webhookView
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, "http://crm.example.com/v2", updated.URL)
	assert.ElementsMatch(t, []string{"ticket.created", "ticket.closed"}, updated.EventTypes)
	assert.Equal(t, 5, updated.MaxAttempts)

	resp, body = env.do(t, http.MethodPut, "/api/v1/webhooks/"+created.ID+"/active", "acme", map[string]bool{"active": false})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var toggled webhookView
	require.NoError(t, json.Unmarshal(body, &toggled))
	assert.False(t, toggled.IsActive)

	resp, body = env.do(t, http.MethodGet, "/api/v1/webhooks?active=true", "acme", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))

	resp, body = env.do(t, http.MethodPost, "/api/v1/webhooks/"+created.ID+"/secret", "acme", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rotated webhookView
	require.NoError(t, json.Unmarshal(body, &rotated))
	assert.NotEmpty(t, rotated.Secret)
	assert.NotEqual(t, created.Secret, rotated.Secret)

	resp, _ = env.do(t, http.MethodDelete, "/api/v1/webhooks/"+created.ID, "acme", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/webhooks/"+created.ID, "acme", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebhookErrors(t *testing.T) {
	env := setup(t)
	existing := env.createWebhook(t, "acme", "crm", "http://crm.example.com/hook", "ticket.created")

	tests := []struct {
		name   string
		method string
		path   string
		tenant string
		body   any
		want   int
	}{
		{
			name:   "malformed body",
			method: http.MethodPost,
			path:   "/api/v1/webhooks",
			body:   "{not json",
			want:   http.StatusBadRequest,
		},
		{
			name:   "duplicate name ignores case",
			method: http.MethodPost,
			path:   "/api/v1/webhooks",
			tenant: "acme",
			body:   map[string]any{"name": "CRM", "url": "http://other.example.com", "event_types": []string{"ticket.created"}},
			want:   http.StatusConflict,
		},
		{
			name:   "other tenant is forbidden",
			method: http.MethodGet,
			path:   "/api/v1/webhooks/" + existing.ID,
			tenant: "globex",
			want:   http.StatusForbidden,
		},
		{
			name:   "unknown webhook",
			method: http.MethodGet,
			path:   "/api/v1/webhooks/does-not-exist",
			tenant: "acme",
			want:   http.StatusNotFound,
		},
		{
			name:   "active flag is required",
			method: http.MethodPut,
			path:   "/api/v1/webhooks/" + existing.ID + "/active",
			tenant: "acme",
			body:   map[string]any{},
			want:   http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, tt.method, tt.path, tt.tenant, tt.body)
			assert.Equal(t, tt.want, resp.StatusCode, string(body))
		})
	}
}

func TestWebhookValidationReportsFields(t *testing.T) {
	env := setup(t)

	resp, body := env.do(t, http.MethodPost, "/api/v1/webhooks", "acme", map[string]any{
		"name":        "crm",
		"url":         "not a url",
		"event_types": []string{"ticket.created", "ticket.exploded"},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var errResp errorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Contains(t, errResp.Fields, "url")
	assert.Contains(t, errResp.Fields, "event_types[1]")
}

func TestIngestEvent(t *testing.T) {
	env := setup(t)
	hook := env.createWebhook(t, "acme", "crm", "http://crm.example.com/hook", "ticket.created")
	env.createWebhook(t, "globex", "crm", "http://globex.example.com/hook", "ticket.created")

	resp, body := env.do(t, http.MethodPost, "/api/v1/events", "acme", ticketEvent("ticket.created"))
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))

	var ingest ingestResponse
	require.NoError(t, json.Unmarshal(body, &ingest))
	assert.Equal(t, 1, ingest.DeliveriesQueued, "only the acme subscriber matches")
	assert.Equal(t, "acme", ingest.TenantID)
	assert.Len(t, env.queue.ids, 1)

	resp, body = env.do(t, http.MethodGet, "/api/v1/webhooks/"+hook.ID+"/deliveries?page=0&size=500", "acme", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page domain.DeliveryPage
	require.NoError(t, json.Unmarshal(body, &page))
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, maxPageSize, page.Size)
	require.Len(t, page.Items, 1)
	assert.Equal(t, domain.DeliveryPending, page.Items[0].Status)
	assert.Equal(t, "TKT-1", page.Items[0].CorrelationRef)

	deliveryID := page.Items[0].ID
	resp, _ = env.do(t, http.MethodGet, "/api/v1/deliveries/"+deliveryID, "acme", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = env.do(t, http.MethodGet, "/api/v1/deliveries/"+deliveryID, "globex", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestIngestEventRejectsUnknownType(t *testing.T) {
	env := setup(t)

	resp, _ := env.do(t, http.MethodPost, "/api/v1/events", "acme", ticketEvent("ticket.exploded"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/v1/events", "acme", map[string]any{"event": "ticket.created"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "ticket events need a ticket snapshot")
}

func TestIngestWithoutSubscribersCreatesNothing(t *testing.T) {
	env := setup(t)

	resp, body := env.do(t, http.MethodPost, "/api/v1/events", "acme", ticketEvent("ticket.created"))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var ingest ingestResponse
	require.NoError(t, json.Unmarshal(body, &ingest))
	assert.Zero(t, ingest.DeliveriesQueued)
	assert.Empty(t, env.queue.ids)
}

func TestRetryDelivery(t *testing.T) {
	endpoint := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer endpoint.Close()

	env := setup(t)
	env.createWebhook(t, "acme", "crm", endpoint.URL, "ticket.created")
	env.do(t, http.MethodPost, "/api/v1/events", "acme", ticketEvent("ticket.created"))
	require.Len(t, env.queue.ids, 1)
	deliveryID := env.queue.ids[0]

	resp, body := env.do(t, http.MethodPost, "/api/v1/deliveries/"+deliveryID+"/retry", "acme", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var rec domain.Delivery
	require.NoError(t, json.Unmarshal(body, &rec))
	assert.Equal(t, domain.DeliverySuccess, rec.Status)
	assert.Equal(t, 1, rec.AttemptCount)

	resp, _ = env.do(t, http.MethodPost, "/api/v1/deliveries/"+deliveryID+"/retry", "acme", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "terminal deliveries cannot be retried")

	resp, _ = env.do(t, http.MethodPost, "/api/v1/deliveries/missing/retry", "acme", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/api/v1/metrics", "acme", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var metrics metricsResponse
	require.NoError(t, json.Unmarshal(body, &metrics))
	assert.Equal(t, 1, metrics.TotalDeliveries)
	assert.Equal(t, 1, metrics.SuccessCount)
	assert.Equal(t, 1, metrics.QueueDepth)
	assert.Equal(t, "acme", metrics.TenantID)
}

func TestEventTypes(t *testing.T) {
	env := setup(t)

	resp, body := env.do(t, http.MethodGet, "/api/v1/event-types", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var types []string
	require.NoError(t, json.Unmarshal(body, &types))
	assert.Contains(t, types, "ticket.reopened")
	assert.Contains(t, types, "user.created")
	assert.Len(t, types, len(domain.AllEventTypes()))
}

func TestHealthHandler(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		rec := httptest.NewRecorder()
		HealthHandler(Version, map[string]Pinger{"store": store.NewMemory()})(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"healthy"`)
	})

	t.Run("dependency down", func(t *testing.T) {
		rec := httptest.NewRecorder()
		HealthHandler(Version, map[string]Pinger{"redis": brokenPinger{}})(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "connection refused")
	})
}

func TestDeliveryHistoryPageOutOfRange(t *testing.T) {
	env := setup(t)
	hook := env.createWebhook(t, "acme", "crm", "http://crm.example.com/hook", "ticket.created")

	resp, body := env.do(t, http.MethodGet, "/api/v1/webhooks/"+hook.ID+"/deliveries?page=184467440737095516&size=100", "acme", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(body))

	resp, body = env.do(t, http.MethodGet, "/api/v1/webhooks/"+hook.ID+"/deliveries?page=5000", "acme", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var page domain.DeliveryPage
	require.NoError(t, json.Unmarshal(body, &page))
	assert.Empty(t, page.Items)
	assert.Zero(t, page.Total)
}
