package domain

import (
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	tests := []struct {
		base    int
		attempt int
		want    time.Duration
	}{
		{60, 1, 60 * time.Second},
		{60, 2, 120 * time.Second},
		{60, 3, 240 * time.Second},
		{5, 4, 40 * time.Second},
		{60, 0, 60 * time.Second},
	}
	for _, tt := range tests {
		if got := Backoff(tt.base, tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d, %d) = %v, want %v", tt.base, tt.attempt, got, tt.want)
		}
	}
}

func TestDelivery_CanRetry(t *testing.T) {
	tests := []struct {
		name   string
		status DeliveryStatus
		count  int
		want   bool
	}{
		{"pending fresh", DeliveryPending, 0, true},
		{"retrying with budget", DeliveryRetrying, 2, true},
		{"retrying exhausted", DeliveryRetrying, 3, false},
		{"success", DeliverySuccess, 1, false},
		{"failed", DeliveryFailed, 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Delivery{Status: tt.status, AttemptCount: tt.count, MaxAttempts: 3}
			if got := d.CanRetry(); got != tt.want {
				t.Errorf("CanRetry() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDelivery_MarkFailureWalksToFailed(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := &Delivery{Status: DeliveryPending, MaxAttempts: 3, RetryDelaySeconds: 60}
	code := 500

	d.AttemptCount = 1
	if st := d.MarkFailure(&code, nil, "HTTP 500", time.Millisecond, now); st != DeliveryRetrying {
		t.Fatalf("attempt 1: status %s", st)
	}
	if !d.NextRetryAt.Equal(now.Add(60 * time.Second)) {
		t.Errorf("attempt 1: next retry %v", d.NextRetryAt)
	}

	d.AttemptCount = 2
	if st := d.MarkFailure(&code, nil, "HTTP 500", time.Millisecond, now); st != DeliveryRetrying {
		t.Fatalf("attempt 2: status %s", st)
	}
	if !d.NextRetryAt.Equal(now.Add(120 * time.Second)) {
		t.Errorf("attempt 2: next retry %v", d.NextRetryAt)
	}

	d.AttemptCount = 3
	if st := d.MarkFailure(&code, nil, "HTTP 500", time.Millisecond, now); st != DeliveryFailed {
		t.Fatalf("attempt 3: status %s", st)
	}
	if d.NextRetryAt != nil {
		t.Error("FAILED record must not carry a next retry time")
	}
	if !d.Status.Terminal() || d.CanRetry() {
		t.Error("FAILED must be terminal")
	}
}

func TestDelivery_MarkSuccess(t *testing.T) {
	now := time.Now()
	msg := "old error"
	next := now.Add(time.Minute)
	d := &Delivery{Status: DeliveryRetrying, AttemptCount: 2, MaxAttempts: 3, ErrorMessage: &msg, NextRetryAt: &next}

	d.MarkSuccess(200, "ok", 15*time.Millisecond, now)

	if d.Status != DeliverySuccess {
		t.Fatalf("status %s", d.Status)
	}
	if d.ErrorMessage != nil || d.NextRetryAt != nil {
		t.Error("success should clear error and next retry")
	}
	if d.DeliveredAt == nil || !d.DeliveredAt.Equal(now) {
		t.Error("deliveredAt not set")
	}
	if *d.ResponseCode != 200 || *d.ResponseTimeMs != 15 {
		t.Errorf("code %d, time %d", *d.ResponseCode, *d.ResponseTimeMs)
	}
}

func TestDelivery_Due(t *testing.T) {
	now := time.Now()
	past, future := now.Add(-time.Second), now.Add(time.Second)

	if !(&Delivery{Status: DeliveryPending}).Due(now) {
		t.Error("pending should be due")
	}
	if !(&Delivery{Status: DeliveryRetrying, NextRetryAt: &past}).Due(now) {
		t.Error("past retry should be due")
	}
	if (&Delivery{Status: DeliveryRetrying, NextRetryAt: &future}).Due(now) {
		t.Error("future retry should not be due")
	}
	if (&Delivery{Status: DeliverySuccess}).Due(now) {
		t.Error("terminal record should never be due")
	}
}
