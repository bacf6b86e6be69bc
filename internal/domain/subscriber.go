package domain

import (
	"time"
)

const (
	DefaultMaxAttempts       = 3
	DefaultRetryDelaySeconds = 60
)

// Subscriber is a tenant-registered webhook endpoint.
type Subscriber struct {
	ID                   string            `json:"id"`
	TenantID             string            `json:"tenant_id"`
	Name                 string            `json:"name"`
	Description          string            `json:"description,omitempty"`
	URL                  string            `json:"url"`
	Secret               string            `json:"-"`
	EventTypes           []EventType       `json:"event_types"`
	CustomHeaders        map[string]string `json:"custom_headers,omitempty"`
	IsActive             bool              `json:"is_active"`
	MaxAttempts          int               `json:"max_attempts"`
	RetryDelaySeconds    int               `json:"retry_delay_seconds"`
	TotalDeliveries      int64             `json:"total_deliveries"`
	SuccessfulDeliveries int64             `json:"successful_deliveries"`
	FailedDeliveries     int64             `json:"failed_deliveries"`
	LastDeliveryAt       *time.Time        `json:"last_delivery_at,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// Subscribes reports whether s wants deliveries of type t.
func (s *Subscriber) Subscribes(t EventType) bool {
	for _, et := range s.EventTypes {
		if et == t {
			return true
		}
	}
	return false
}

// SuccessRate is the percentage of finished deliveries that succeeded.
func (s *Subscriber) SuccessRate() float64 {
	if s.TotalDeliveries == 0 {
		return 0
	}
	return float64(s.SuccessfulDeliveries) / float64(s.TotalDeliveries) * 100
}

// Clone returns a deep copy so callers never share slices or maps with a store.
func (s *Subscriber) Clone() *Subscriber {
	c := *s
	c.EventTypes = append([]EventType(nil), s.EventTypes...)
	if s.CustomHeaders != nil {
		c.CustomHeaders = make(map[string]string, len(s.CustomHeaders))
		for k, v := range s.CustomHeaders {
			c.CustomHeaders[k] = v
		}
	}
	if s.LastDeliveryAt != nil {
		t := *s.LastDeliveryAt
		c.LastDeliveryAt = &t
	}
	return &c
}

// SubscriberRequest is the registration / full-update input.
type SubscriberRequest struct {
	Name              string            `json:"name" validate:"required,min=1,max=100"`
	Description       string            `json:"description,omitempty" validate:"max=500"`
	URL               string            `json:"url" validate:"required,http_url,max=2048"`
	EventTypes        []string          `json:"event_types" validate:"required,min=1,dive,event_type"`
	CustomHeaders     map[string]string `json:"custom_headers,omitempty" validate:"omitempty,max=20,dive,keys,required,max=100,endkeys,max=1000"`
	MaxAttempts       *int              `json:"max_attempts,omitempty" validate:"omitempty,min=1,max=10"`
	RetryDelaySeconds *int              `json:"retry_delay_seconds,omitempty" validate:"omitempty,min=1,max=86400"`
	Active            *bool             `json:"active,omitempty"`
}

// SubscriberResponse is the operator view of a subscriber. Secret is only
// populated on creation and rotation.
type SubscriberResponse struct {
	*Subscriber
	Secret      string  `json:"secret,omitempty"`
	SuccessRate float64 `json:"success_rate"`
}

func NewSubscriberResponse(s *Subscriber, withSecret bool) SubscriberResponse {
	resp := SubscriberResponse{Subscriber: s, SuccessRate: s.SuccessRate()}
	if withSecret {
		resp.Secret = s.Secret
	}
	return resp
}
