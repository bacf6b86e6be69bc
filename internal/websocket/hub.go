package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Priya8975/ticket-webhooks/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// DeliveryEvent is a live delivery update sent to operator dashboards.
type DeliveryEvent struct {
	Type           string                `json:"type"` // delivery_success, delivery_retrying, delivery_failed
	DeliveryID     string                `json:"delivery_id"`
	SubscriberID   string                `json:"subscriber_id"`
	SubscriberName string                `json:"subscriber_name"`
	EventType      domain.EventType      `json:"event_type"`
	Status         domain.DeliveryStatus `json:"status"`
	Attempt        int                   `json:"attempt"`
	MaxAttempts    int                   `json:"max_attempts"`
	StatusCode     *int                  `json:"status_code,omitempty"`
	ResponseMs     *int64                `json:"response_ms,omitempty"`
	Error          string                `json:"error,omitempty"`
	NextRetryAt    *time.Time            `json:"next_retry_at,omitempty"`
	Timestamp      time.Time             `json:"timestamp"`
}

type message struct {
	tenantID string
	data     []byte
}

// Hub manages WebSocket connections and fans delivery events out to the
// clients of the tenant that owns them.
type Hub struct {
	clients    map[*client]struct{}
	mu         sync.RWMutex
	broadcast  chan message
	register   chan *client
	unregister chan *client
	done       chan struct{}
	logger     *slog.Logger
}

type client struct {
	hub      *Hub
	conn     *websocket.Conn
	tenantID string
	send     chan []byte
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan message, sendBuffer),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run is the hub's event loop. It returns when ctx is cancelled, closing
// every client connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("websocket client connected", "tenant_id", c.tenantID, "total_clients", total)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("websocket client disconnected", "total_clients", total)

		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

func (h *Hub) fanOut(msg message) {
	var slow []*client

	h.mu.RLock()
	for c := range h.clients {
		if c.tenantID != msg.tenantID {
			continue
		}
		select {
		case c.send <- msg.data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	if len(slow) == 0 {
		return
	}
	h.mu.Lock()
	for _, c := range slow {
		if _, ok := h.clients[c]; ok {
			delete(h.clients, c)
			close(c.send)
		}
	}
	h.mu.Unlock()
	h.logger.Warn("dropped slow websocket clients", "count", len(slow))
}

// Broadcast queues event for the clients of tenantID. It never blocks.
func (h *Hub) Broadcast(tenantID string, event DeliveryEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal websocket event", "error", err)
		return
	}

	select {
	case h.broadcast <- message{tenantID: tenantID, data: data}:
	default:
		h.logger.Warn("websocket broadcast channel full, dropping event", "delivery_id", event.DeliveryID)
	}
}

// DeliveryUpdated publishes the outcome of a delivery attempt.
func (h *Hub) DeliveryUpdated(d *domain.Delivery) {
	event := DeliveryEvent{
		DeliveryID:     d.ID,
		SubscriberID:   d.SubscriberID,
		SubscriberName: d.SubscriberName,
		EventType:      d.EventType,
		Status:         d.Status,
		Attempt:        d.AttemptCount,
		MaxAttempts:    d.MaxAttempts,
		StatusCode:     d.ResponseCode,
		ResponseMs:     d.ResponseTimeMs,
		NextRetryAt:    d.NextRetryAt,
		Timestamp:      d.UpdatedAt,
	}
	switch d.Status {
	case domain.DeliverySuccess:
		event.Type = "delivery_success"
	case domain.DeliveryRetrying:
		event.Type = "delivery_retrying"
	default:
		event.Type = "delivery_failed"
	}
	if d.ErrorMessage != nil {
		event.Error = *d.ErrorMessage
	}
	h.Broadcast(d.TenantID, event)
}

// HandleWebSocket upgrades the request and subscribes the connection to the
// tenant given by the tenant query parameter, falling back to defaultTenant.
func (h *Hub) HandleWebSocket(defaultTenant string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.URL.Query().Get("tenant")
		if tenantID == "" {
			tenantID = defaultTenant
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Error("websocket upgrade failed", "error", err)
			return
		}

		c := &client{
			hub:      h,
			conn:     conn,
			tenantID: tenantID,
			send:     make(chan []byte, sendBuffer),
		}

		select {
		case h.register <- c:
		case <-h.done:
			conn.Close()
			return
		}

		go c.writePump()
		go c.readPump()
	}
}

// readPump drains the connection so pongs and close frames are processed.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ClientCount returns the number of connected WebSocket clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
