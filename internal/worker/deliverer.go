package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Priya8975/ticket-webhooks/internal/domain"
	"github.com/Priya8975/ticket-webhooks/internal/signature"
	"github.com/Priya8975/ticket-webhooks/internal/store"
)

const (
	// DefaultTimeout bounds a single delivery attempt, connect through body.
	DefaultTimeout = 30 * time.Second

	maxResponseBody = 1024
	errNoSubscriber = "subscriber no longer exists"
	errAbandoned    = "final attempt was never recorded"
)

// Notifier is told about every delivery attempt outcome.
type Notifier interface {
	DeliveryUpdated(d *domain.Delivery)
}

// TransportConfig sizes the outbound HTTP client shared by all workers.
type TransportConfig struct {
	Timeout         time.Duration
	MaxConnsPerHost int
	MaxIdleConns    int
}

// Deliverer performs delivery attempts: it claims an attempt on a record,
// POSTs the signed payload and persists the outcome.
type Deliverer struct {
	httpClient *http.Client
	store      store.Store
	notifier   Notifier
	logger     *slog.Logger
	lease      time.Duration
	now        func() time.Time
}

// NewDeliverer creates a deliverer with a configured HTTP client. notifier
// may be nil.
func NewDeliverer(st store.Store, notifier Notifier, cfg TransportConfig, logger *slog.Logger) *Deliverer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.MaxConnsPerHost > 0 {
		transport.MaxConnsPerHost = cfg.MaxConnsPerHost
		transport.MaxIdleConnsPerHost = cfg.MaxConnsPerHost
	}
	if cfg.MaxIdleConns > 0 {
		transport.MaxIdleConns = cfg.MaxIdleConns
	}

	return &Deliverer{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		store:    st,
		notifier: notifier,
		logger:   logger,
		lease:    2 * cfg.Timeout,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Deliver makes the next attempt for a queued delivery if it is due.
func (d *Deliverer) Deliver(ctx context.Context, deliveryID string) {
	if _, err := d.attempt(ctx, deliveryID, false); err != nil {
		d.logger.Error("delivery attempt failed to run", "error", err, "delivery_id", deliveryID)
	}
}

// DeliverNow makes the next attempt immediately, ignoring the retry
// schedule, and returns the record as it stands afterwards.
func (d *Deliverer) DeliverNow(ctx context.Context, deliveryID string) (*domain.Delivery, error) {
	return d.attempt(ctx, deliveryID, true)
}

func (d *Deliverer) attempt(ctx context.Context, deliveryID string, force bool) (*domain.Delivery, error) {
	rec, err := d.store.GetDelivery(ctx, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("loading delivery: %w", err)
	}
	if rec == nil {
		return nil, domain.ErrNotFound
	}

	now := d.now()
	if !rec.Status.Terminal() && rec.AttemptCount >= rec.MaxAttempts {
		return d.failAbandoned(ctx, rec.ID, now)
	}
	if !rec.CanRetry() {
		d.logger.Debug("delivery not retryable, skipping", "delivery_id", rec.ID, "status", rec.Status)
		return rec, nil
	}
	if !force && !d.due(rec, now) {
		d.logger.Debug("delivery not due, skipping", "delivery_id", rec.ID, "status", rec.Status)
		return rec, nil
	}

	sub, err := d.store.GetSubscriber(ctx, rec.SubscriberID)
	if err != nil {
		return nil, fmt.Errorf("loading subscriber: %w", err)
	}

	expected, previousRetry := rec.AttemptCount, rec.NextRetryAt
	won, err := d.store.ClaimDeliveryAttempt(ctx, rec.ID, expected, now.Add(d.lease))
	if err != nil {
		return nil, err
	}
	if !won {
		d.logger.Debug("delivery attempt claimed elsewhere", "delivery_id", rec.ID, "attempt", expected+1)
		return d.store.GetDelivery(ctx, rec.ID)
	}
	rec.AttemptCount = expected + 1

	var res result
	if sub == nil {
		res = result{errMsg: errNoSubscriber}
	} else {
		res = d.send(ctx, rec, sub)
	}

	// A caller that gave up says nothing about the endpoint, so the attempt
	// is handed back instead of being counted.
	if res.code == nil && ctx.Err() != nil {
		return d.release(context.WithoutCancel(ctx), rec, previousRetry, ctx.Err())
	}

	// The outcome is recorded even if ctx was cancelled after the response.
	return rec, d.record(context.WithoutCancel(ctx), rec, res)
}

func (d *Deliverer) release(ctx context.Context, rec *domain.Delivery, previousRetry *time.Time, cause error) (*domain.Delivery, error) {
	released, err := d.store.ReleaseDeliveryAttempt(ctx, rec.ID, rec.AttemptCount, previousRetry)
	if err != nil {
		return nil, fmt.Errorf("releasing interrupted attempt: %w", err)
	}
	d.logger.Warn("delivery attempt interrupted",
		"delivery_id", rec.ID,
		"attempt", rec.AttemptCount,
		"released", released,
		"error", cause,
	)

	current, err := d.store.GetDelivery(ctx, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("loading delivery: %w", err)
	}
	return current, fmt.Errorf("delivery attempt interrupted: %w", cause)
}

// FailAbandoned finalizes a delivery whose last attempt was claimed but never
// recorded, once the claim lease has run out. It is a no-op for any other
// record.
func (d *Deliverer) FailAbandoned(ctx context.Context, deliveryID string) (*domain.Delivery, error) {
	return d.failAbandoned(ctx, deliveryID, d.now())
}

func (d *Deliverer) failAbandoned(ctx context.Context, deliveryID string, now time.Time) (*domain.Delivery, error) {
	failed, err := d.store.FailAbandonedDelivery(ctx, deliveryID, now.Add(-d.lease), now, errAbandoned)
	if err != nil {
		return nil, err
	}

	rec, err := d.store.GetDelivery(ctx, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("loading delivery: %w", err)
	}
	if rec == nil {
		return nil, domain.ErrNotFound
	}
	if !failed {
		d.logger.Debug("exhausted delivery still in flight, skipping", "delivery_id", deliveryID, "status", rec.Status)
		return rec, nil
	}

	if err := d.store.IncrementSubscriberStats(ctx, rec.SubscriberID, false, now); err != nil {
		d.logger.Error("failed to update subscriber stats", "error", err, "subscriber_id", rec.SubscriberID)
	}
	if d.notifier != nil {
		d.notifier.DeliveryUpdated(rec.Clone())
	}
	d.logger.Warn("abandoned delivery marked failed",
		"delivery_id", rec.ID,
		"subscriber_id", rec.SubscriberID,
		"attempt", rec.AttemptCount,
	)
	return rec, nil
}

// due reports whether a non-forced attempt may run now. A PENDING record that
// already has an attempt claimed is in flight until the lease runs out.
func (d *Deliverer) due(rec *domain.Delivery, now time.Time) bool {
	if rec.Status == domain.DeliveryPending && rec.AttemptCount > 0 {
		return !rec.UpdatedAt.After(now.Add(-d.lease))
	}
	return rec.Due(now)
}

type result struct {
	code    *int
	body    *string
	errMsg  string
	elapsed time.Duration
}

func (r result) ok() bool {
	return r.errMsg == "" && r.code != nil && *r.code >= 200 && *r.code < 300
}

// send POSTs the stored payload to the subscriber's current URL.
func (d *Deliverer) send(ctx context.Context, rec *domain.Delivery, sub *domain.Subscriber) result {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(rec.Payload))
	if err != nil {
		return result{errMsg: fmt.Sprintf("failed to create request: %v", err), elapsed: time.Since(start)}
	}

	// Custom headers first so the protocol headers below always win.
	for k, v := range sub.CustomHeaders {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signature.HeaderName, signature.Header(sub.Secret, rec.Payload))
	req.Header.Set("X-Webhook-Id", sub.ID)
	req.Header.Set("X-Event-Type", string(rec.EventType))
	req.Header.Set("X-Webhook-Delivery", rec.ID)
	req.Header.Set("X-Webhook-Attempt", strconv.Itoa(rec.AttemptCount))

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return result{errMsg: fmt.Sprintf("request failed: %v", err), elapsed: time.Since(start)}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	code := resp.StatusCode
	text := string(body)
	res := result{code: &code, body: &text, elapsed: time.Since(start)}
	if code < 200 || code >= 300 {
		res.errMsg = fmt.Sprintf("HTTP %d", code)
	}
	return res
}

// record applies res to rec, persists it and updates subscriber stats once
// the record is final.
func (d *Deliverer) record(ctx context.Context, rec *domain.Delivery, res result) error {
	now := d.now()
	rec.UpdatedAt = now

	if res.ok() {
		rec.MarkSuccess(*res.code, *res.body, res.elapsed, now)
	} else {
		rec.MarkFailure(res.code, res.body, res.errMsg, res.elapsed, now)
	}

	saved, err := d.store.SaveDeliveryResult(ctx, rec)
	if err != nil {
		return fmt.Errorf("saving delivery result: %w", err)
	}
	if !saved {
		d.logger.Warn("delivery result superseded", "delivery_id", rec.ID, "attempt", rec.AttemptCount)
		return nil
	}

	if rec.Status.Terminal() {
		if err := d.store.IncrementSubscriberStats(ctx, rec.SubscriberID, rec.Status == domain.DeliverySuccess, now); err != nil {
			d.logger.Error("failed to update subscriber stats", "error", err, "subscriber_id", rec.SubscriberID)
		}
	}

	if d.notifier != nil {
		d.notifier.DeliveryUpdated(rec.Clone())
	}

	if rec.Status == domain.DeliverySuccess {
		d.logger.Info("delivery successful",
			"delivery_id", rec.ID,
			"subscriber_id", rec.SubscriberID,
			"attempt", rec.AttemptCount,
			"status_code", *res.code,
			"response_time_ms", res.elapsed.Milliseconds(),
		)
	} else {
		d.logger.Warn("delivery failed",
			"delivery_id", rec.ID,
			"subscriber_id", rec.SubscriberID,
			"attempt", rec.AttemptCount,
			"status", rec.Status,
			"error", res.errMsg,
			"next_retry_at", rec.NextRetryAt,
			"response_time_ms", res.elapsed.Milliseconds(),
		)
	}
	return nil
}
