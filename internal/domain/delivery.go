package domain

import (
	"encoding/json"
	"time"
)

type DeliveryStatus string

const (
	DeliveryPending  DeliveryStatus = "PENDING"
	DeliverySuccess  DeliveryStatus = "SUCCESS"
	DeliveryRetrying DeliveryStatus = "RETRYING"
	DeliveryFailed   DeliveryStatus = "FAILED"
)

// Terminal reports whether no further transition is allowed from s.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliverySuccess || s == DeliveryFailed
}

// Delivery is the durable record of one event occurrence sent to one
// subscriber, updated after every attempt.
type Delivery struct {
	ID                string          `json:"id"`
	SubscriberID      string          `json:"subscriber_id"`
	TenantID          string          `json:"tenant_id"`
	SubscriberName    string          `json:"subscriber_name"`
	SubscriberURL     string          `json:"subscriber_url"`
	EventType         EventType       `json:"event_type"`
	CorrelationID     string          `json:"correlation_id,omitempty"`
	CorrelationRef    string          `json:"correlation_ref,omitempty"`
	Payload           json.RawMessage `json:"payload"`
	Status            DeliveryStatus  `json:"status"`
	AttemptCount      int             `json:"attempt_count"`
	MaxAttempts       int             `json:"max_attempts"`
	RetryDelaySeconds int             `json:"retry_delay_seconds"`
	ResponseCode      *int            `json:"response_code,omitempty"`
	ResponseBody      *string         `json:"response_body,omitempty"`
	ErrorMessage      *string         `json:"error_message,omitempty"`
	ResponseTimeMs    *int64          `json:"response_time_ms,omitempty"`
	NextRetryAt       *time.Time      `json:"next_retry_at,omitempty"`
	DeliveredAt       *time.Time      `json:"delivered_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// CanRetry reports whether another attempt may be made.
func (d *Delivery) CanRetry() bool {
	if d.AttemptCount >= d.MaxAttempts {
		return false
	}
	return d.Status == DeliveryPending || d.Status == DeliveryRetrying
}

// Due reports whether the record is waiting for an attempt at now.
func (d *Delivery) Due(now time.Time) bool {
	switch d.Status {
	case DeliveryPending:
		return true
	case DeliveryRetrying:
		return d.NextRetryAt == nil || !d.NextRetryAt.After(now)
	}
	return false
}

// Backoff returns the delay before the retry that follows attempt number
// attempt (1-based): base * 2^(attempt-1).
func Backoff(baseSeconds, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// 2^30 seconds is far beyond any configurable policy.
	shift := attempt - 1
	if shift > 30 {
		shift = 30
	}
	return time.Duration(baseSeconds) * time.Second * time.Duration(1<<shift)
}

// MarkSuccess records a 2xx outcome.
func (d *Delivery) MarkSuccess(code int, body string, elapsed time.Duration, now time.Time) {
	d.Status = DeliverySuccess
	d.ResponseCode = &code
	d.ResponseBody = &body
	ms := elapsed.Milliseconds()
	d.ResponseTimeMs = &ms
	d.ErrorMessage = nil
	d.NextRetryAt = nil
	d.DeliveredAt = &now
}

// MarkFailure records a failed attempt and moves the record to RETRYING or,
// when the budget is spent, FAILED. code and body are nil when no response
// arrived. It returns the new status.
func (d *Delivery) MarkFailure(code *int, body *string, errMsg string, elapsed time.Duration, now time.Time) DeliveryStatus {
	d.ResponseCode = code
	d.ResponseBody = body
	d.ErrorMessage = &errMsg
	ms := elapsed.Milliseconds()
	d.ResponseTimeMs = &ms

	if d.AttemptCount < d.MaxAttempts {
		next := now.Add(Backoff(d.RetryDelaySeconds, d.AttemptCount))
		d.Status = DeliveryRetrying
		d.NextRetryAt = &next
		return d.Status
	}
	d.Status = DeliveryFailed
	d.NextRetryAt = nil
	return d.Status
}

func (d *Delivery) Clone() *Delivery {
	c := *d
	c.Payload = append(json.RawMessage(nil), d.Payload...)
	if d.ResponseCode != nil {
		v := *d.ResponseCode
		c.ResponseCode = &v
	}
	if d.ResponseBody != nil {
		v := *d.ResponseBody
		c.ResponseBody = &v
	}
	if d.ErrorMessage != nil {
		v := *d.ErrorMessage
		c.ErrorMessage = &v
	}
	if d.ResponseTimeMs != nil {
		v := *d.ResponseTimeMs
		c.ResponseTimeMs = &v
	}
	if d.NextRetryAt != nil {
		v := *d.NextRetryAt
		c.NextRetryAt = &v
	}
	if d.DeliveredAt != nil {
		v := *d.DeliveredAt
		c.DeliveredAt = &v
	}
	return &c
}

// DeliveryPage is one page of a subscriber's delivery history.
type DeliveryPage struct {
	Items []Delivery `json:"items"`
	Page  int        `json:"page"`
	Size  int        `json:"size"`
	Total int        `json:"total"`
}
