package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Priya8975/ticket-webhooks/internal/domain"
	"github.com/Priya8975/ticket-webhooks/internal/store"
	"github.com/google/uuid"
)

const sweepLeaseKey = "ticket-webhooks:retry-sweep"

// Submitter queues delivery ids without blocking.
type Submitter interface {
	TrySubmit(deliveryID string) bool
}

// Locker grants a short exclusive lease so only one instance sweeps per tick.
type Locker interface {
	AcquireLease(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, key, owner string) error
}

type SchedulerConfig struct {
	Interval          time.Duration
	BatchSize         int
	StalePendingAfter time.Duration
}

// Scheduler periodically re-queues deliveries whose retry time has come and
// PENDING deliveries that were never picked up. It also serves manual
// retries.
type Scheduler struct {
	store     store.Store
	queue     Submitter
	deliverer *Deliverer
	locker    Locker
	owner     string
	cfg       SchedulerConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewScheduler creates a scheduler. locker may be nil for a single instance.
func NewScheduler(st store.Store, queue Submitter, deliverer *Deliverer, locker Locker, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.StalePendingAfter <= 0 {
		cfg.StalePendingAfter = 5 * time.Minute
	}
	return &Scheduler{
		store:     st,
		queue:     queue,
		deliverer: deliverer,
		locker:    locker,
		owner:     uuid.NewString(),
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start runs a sweep every interval until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("retry scheduler started", "interval", s.cfg.Interval)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("retry scheduler stopping")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep queues due retries and stale PENDING deliveries and returns how many
// ids were queued. Deliveries whose final attempt was claimed but never
// recorded are moved to FAILED.
func (s *Scheduler) Sweep(ctx context.Context) int {
	if s.locker != nil {
		ok, err := s.locker.AcquireLease(ctx, sweepLeaseKey, s.owner, s.cfg.Interval)
		if err != nil {
			s.logger.Error("failed to acquire sweep lease", "error", err)
			return 0
		}
		if !ok {
			s.logger.Debug("sweep lease held by another instance")
			return 0
		}
		defer func() {
			if err := s.locker.ReleaseLease(context.WithoutCancel(ctx), sweepLeaseKey, s.owner); err != nil {
				s.logger.Warn("failed to release sweep lease", "error", err)
			}
		}()
	}

	now := s.now()
	queued := 0

	due, err := s.store.ListDueRetries(ctx, now, s.cfg.BatchSize)
	if err != nil {
		s.logger.Error("failed to list due retries", "error", err)
	}
	queued += s.submit(due, "retry")

	stale, err := s.store.ListStalePending(ctx, now.Add(-s.cfg.StalePendingAfter), s.cfg.BatchSize)
	if err != nil {
		s.logger.Error("failed to list stale pending deliveries", "error", err)
	}
	queued += s.submit(stale, "stale_pending")

	abandoned, err := s.store.ListAbandoned(ctx, now.Add(-s.deliverer.lease), s.cfg.BatchSize)
	if err != nil {
		s.logger.Error("failed to list abandoned deliveries", "error", err)
	}
	for _, id := range abandoned {
		if _, err := s.deliverer.FailAbandoned(ctx, id); err != nil {
			s.logger.Error("failed to finalize abandoned delivery", "error", err, "delivery_id", id)
		}
	}

	if queued > 0 {
		s.logger.Info("retry sweep queued deliveries", "queued", queued, "due", len(due), "stale", len(stale))
	}
	return queued
}

func (s *Scheduler) submit(ids []string, reason string) int {
	n := 0
	for _, id := range ids {
		if !s.queue.TrySubmit(id) {
			s.logger.Warn("delivery queue full during sweep", "delivery_id", id, "reason", reason)
			continue
		}
		n++
	}
	return n
}

// RetryNow runs the next attempt of a delivery immediately on behalf of an
// operator and returns the updated record.
func (s *Scheduler) RetryNow(ctx context.Context, tenantID, deliveryID string) (*domain.Delivery, error) {
	rec, err := s.store.GetDelivery(ctx, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("loading delivery: %w", err)
	}
	if rec == nil {
		return nil, domain.ErrNotFound
	}
	if rec.TenantID != tenantID {
		return nil, domain.ErrForbidden
	}
	if !rec.CanRetry() {
		return nil, domain.ErrNotRetryable
	}

	sub, err := s.store.GetSubscriber(ctx, rec.SubscriberID)
	if err != nil {
		return nil, fmt.Errorf("loading subscriber: %w", err)
	}
	if sub == nil {
		return nil, fmt.Errorf("subscriber %s: %w", rec.SubscriberID, domain.ErrNotFound)
	}

	s.logger.Info("manual retry requested", "delivery_id", deliveryID, "tenant_id", tenantID)
	return s.deliverer.DeliverNow(ctx, deliveryID)
}
