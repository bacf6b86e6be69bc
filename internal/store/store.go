package store

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/Priya8975/ticket-webhooks/internal/domain"
)

// Store is the persistence surface shared by PostgresStore and MemoryStore.
// Getters return (nil, nil) when the row does not exist.
type Store interface {
	Ping(ctx context.Context) error

	CreateSubscriber(ctx context.Context, sub *domain.Subscriber) error
	GetSubscriber(ctx context.Context, id string) (*domain.Subscriber, error)
	FindSubscriberByName(ctx context.Context, tenantID, name string) (*domain.Subscriber, error)
	ListSubscribers(ctx context.Context, tenantID string, activeOnly bool) ([]domain.Subscriber, error)
	UpdateSubscriber(ctx context.Context, sub *domain.Subscriber) error
	RotateSubscriberSecret(ctx context.Context, id, secret string) error
	SetSubscriberActive(ctx context.Context, id string, active bool) error
	DeleteSubscriber(ctx context.Context, id string) error
	FindMatchingSubscribers(ctx context.Context, tenantID string, eventType domain.EventType) ([]domain.Subscriber, error)
	IncrementSubscriberStats(ctx context.Context, id string, success bool, at time.Time) error

	CreateDelivery(ctx context.Context, d *domain.Delivery) error
	GetDelivery(ctx context.Context, id string) (*domain.Delivery, error)
	ListDeliveries(ctx context.Context, subscriberID string, page, size int) ([]domain.Delivery, int, error)
	ClaimDeliveryAttempt(ctx context.Context, id string, expectedAttempt int, lease time.Time) (bool, error)
	SaveDeliveryResult(ctx context.Context, d *domain.Delivery) (bool, error)
	ReleaseDeliveryAttempt(ctx context.Context, id string, claimedAttempt int, nextRetryAt *time.Time) (bool, error)
	ListDueRetries(ctx context.Context, now time.Time, limit int) ([]string, error)
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]string, error)
	ListAbandoned(ctx context.Context, before time.Time, limit int) ([]string, error)
	FailAbandonedDelivery(ctx context.Context, id string, before, now time.Time, errMsg string) (bool, error)
	DeliveryStats(ctx context.Context, tenantID string) (*DeliveryMetrics, error)
}

// ErrPageOutOfRange is returned for a page whose offset cannot be represented.
var ErrPageOutOfRange = errors.New("page out of range")

// pageOffset returns page*size, or false when either is negative, size is
// zero or the product overflows.
func pageOffset(page, size int) (int, bool) {
	if page < 0 || size <= 0 || page > math.MaxInt/size {
		return 0, false
	}
	return page * size, true
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
