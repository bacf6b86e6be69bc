package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Priya8975/ticket-webhooks/internal/domain"
)

// MemoryStore keeps subscribers and deliveries in process memory. It backs
// STORE_DRIVER=memory and the tests. Every method copies values in and out
// so callers never share state with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	subscribers map[string]*domain.Subscriber
	deliveries  map[string]*domain.Delivery
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		subscribers: make(map[string]*domain.Subscriber),
		deliveries:  make(map[string]*domain.Delivery),
	}
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) nameTaken(tenantID, name, exceptID string) bool {
	for _, s := range m.subscribers {
		if s.ID != exceptID && s.TenantID == tenantID && strings.EqualFold(s.Name, name) {
			return true
		}
	}
	return false
}

func (m *MemoryStore) CreateSubscriber(_ context.Context, sub *domain.Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.nameTaken(sub.TenantID, sub.Name, "") {
		return domain.ErrDuplicateName
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	sub.UpdatedAt = sub.CreatedAt
	m.subscribers[sub.ID] = sub.Clone()
	return nil
}

func (m *MemoryStore) GetSubscriber(_ context.Context, id string) (*domain.Subscriber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.subscribers[id]
	if !ok {
		return nil, nil
	}
	return s.Clone(), nil
}

func (m *MemoryStore) FindSubscriberByName(_ context.Context, tenantID, name string) (*domain.Subscriber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.subscribers {
		if s.TenantID == tenantID && strings.EqualFold(s.Name, name) {
			return s.Clone(), nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) ListSubscribers(_ context.Context, tenantID string, activeOnly bool) ([]domain.Subscriber, error) {
	return m.filterSubscribers(func(s *domain.Subscriber) bool {
		return s.TenantID == tenantID && (!activeOnly || s.IsActive)
	}, true), nil
}

func (m *MemoryStore) FindMatchingSubscribers(_ context.Context, tenantID string, eventType domain.EventType) ([]domain.Subscriber, error) {
	return m.filterSubscribers(func(s *domain.Subscriber) bool {
		return s.TenantID == tenantID && s.IsActive && s.Subscribes(eventType)
	}, false), nil
}

func (m *MemoryStore) filterSubscribers(keep func(*domain.Subscriber) bool, newestFirst bool) []domain.Subscriber {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []domain.Subscriber{}
	for _, s := range m.subscribers {
		if keep(s) {
			out = append(out, *s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m *MemoryStore) UpdateSubscriber(_ context.Context, sub *domain.Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.subscribers[sub.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if m.nameTaken(cur.TenantID, sub.Name, sub.ID) {
		return domain.ErrDuplicateName
	}

	next := cur.Clone()
	next.Name = sub.Name
	next.Description = sub.Description
	next.URL = sub.URL
	next.EventTypes = append([]domain.EventType(nil), sub.EventTypes...)
	next.CustomHeaders = sub.Clone().CustomHeaders
	next.IsActive = sub.IsActive
	next.MaxAttempts = sub.MaxAttempts
	next.RetryDelaySeconds = sub.RetryDelaySeconds
	next.UpdatedAt = time.Now().UTC()
	m.subscribers[sub.ID] = next
	sub.UpdatedAt = next.UpdatedAt
	return nil
}

func (m *MemoryStore) mutateSubscriber(id string, fn func(*domain.Subscriber)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.subscribers[id]
	if !ok {
		return domain.ErrNotFound
	}
	fn(s)
	return nil
}

func (m *MemoryStore) RotateSubscriberSecret(_ context.Context, id, secret string) error {
	return m.mutateSubscriber(id, func(s *domain.Subscriber) {
		s.Secret = secret
		s.UpdatedAt = time.Now().UTC()
	})
}

func (m *MemoryStore) SetSubscriberActive(_ context.Context, id string, active bool) error {
	return m.mutateSubscriber(id, func(s *domain.Subscriber) {
		s.IsActive = active
		s.UpdatedAt = time.Now().UTC()
	})
}

func (m *MemoryStore) DeleteSubscriber(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.subscribers[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.subscribers, id)
	return nil
}

func (m *MemoryStore) IncrementSubscriberStats(_ context.Context, id string, success bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// A subscriber deleted mid-delivery has no counters left to update.
	s, ok := m.subscribers[id]
	if !ok {
		return nil
	}
	s.TotalDeliveries++
	if success {
		s.SuccessfulDeliveries++
	} else {
		s.FailedDeliveries++
	}
	t := at
	s.LastDeliveryAt = &t
	return nil
}

func (m *MemoryStore) CreateDelivery(_ context.Context, d *domain.Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	d.UpdatedAt = d.CreatedAt
	m.deliveries[d.ID] = d.Clone()
	return nil
}

func (m *MemoryStore) GetDelivery(_ context.Context, id string) (*domain.Delivery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.deliveries[id]
	if !ok {
		return nil, nil
	}
	return d.Clone(), nil
}

func (m *MemoryStore) ListDeliveries(_ context.Context, subscriberID string, page, size int) ([]domain.Delivery, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []*domain.Delivery
	for _, d := range m.deliveries {
		if d.SubscriberID == subscriberID {
			all = append(all, d)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	start, ok := pageOffset(page, size)
	if !ok {
		return nil, 0, fmt.Errorf("page %d of size %d: %w", page, size, ErrPageOutOfRange)
	}

	out := []domain.Delivery{}
	if start >= len(all) {
		return out, len(all), nil
	}
	end := len(all)
	if len(all)-start > size {
		end = start + size
	}
	for _, d := range all[start:end] {
		out = append(out, *d.Clone())
	}
	return out, len(all), nil
}

func (m *MemoryStore) ClaimDeliveryAttempt(_ context.Context, id string, expectedAttempt int, lease time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.deliveries[id]
	if !ok || d.AttemptCount != expectedAttempt || !d.CanRetry() {
		return false, nil
	}
	d.AttemptCount++
	if d.Status == domain.DeliveryRetrying {
		l := lease
		d.NextRetryAt = &l
	}
	d.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *MemoryStore) SaveDeliveryResult(_ context.Context, res *domain.Delivery) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.deliveries[res.ID]
	if !ok || d.AttemptCount != res.AttemptCount || d.Status.Terminal() {
		return false, nil
	}
	c := res.Clone()
	d.Status = c.Status
	d.ResponseCode = c.ResponseCode
	d.ResponseBody = c.ResponseBody
	d.ErrorMessage = c.ErrorMessage
	d.ResponseTimeMs = c.ResponseTimeMs
	d.NextRetryAt = c.NextRetryAt
	d.DeliveredAt = c.DeliveredAt
	d.UpdatedAt = c.UpdatedAt
	return true, nil
}

func (m *MemoryStore) ReleaseDeliveryAttempt(_ context.Context, id string, claimedAttempt int, nextRetryAt *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.deliveries[id]
	if !ok || d.AttemptCount != claimedAttempt || d.AttemptCount == 0 || d.Status.Terminal() {
		return false, nil
	}
	d.AttemptCount--
	if d.Status == domain.DeliveryRetrying {
		d.NextRetryAt = nil
		if nextRetryAt != nil {
			t := *nextRetryAt
			d.NextRetryAt = &t
		}
	}
	d.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *MemoryStore) ListDueRetries(_ context.Context, now time.Time, limit int) ([]string, error) {
	return m.collectIDs(limit, func(d *domain.Delivery) (time.Time, bool) {
		if d.Status != domain.DeliveryRetrying || d.NextRetryAt == nil || d.NextRetryAt.After(now) || exhausted(d) {
			return time.Time{}, false
		}
		return *d.NextRetryAt, true
	}), nil
}

func (m *MemoryStore) ListStalePending(_ context.Context, before time.Time, limit int) ([]string, error) {
	return m.collectIDs(limit, func(d *domain.Delivery) (time.Time, bool) {
		if d.Status != domain.DeliveryPending || d.UpdatedAt.After(before) || exhausted(d) {
			return time.Time{}, false
		}
		return d.CreatedAt, true
	}), nil
}

func (m *MemoryStore) ListAbandoned(_ context.Context, before time.Time, limit int) ([]string, error) {
	return m.collectIDs(limit, func(d *domain.Delivery) (time.Time, bool) {
		if !abandoned(d, before) {
			return time.Time{}, false
		}
		return d.UpdatedAt, true
	}), nil
}

func (m *MemoryStore) FailAbandonedDelivery(_ context.Context, id string, before, now time.Time, errMsg string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.deliveries[id]
	if !ok || !abandoned(d, before) {
		return false, nil
	}
	msg := errMsg
	d.Status = domain.DeliveryFailed
	d.ErrorMessage = &msg
	d.NextRetryAt = nil
	d.UpdatedAt = now
	return true, nil
}

// exhausted reports a non-terminal record whose every attempt is claimed.
func exhausted(d *domain.Delivery) bool {
	return !d.Status.Terminal() && d.AttemptCount >= d.MaxAttempts
}

func abandoned(d *domain.Delivery, before time.Time) bool {
	return exhausted(d) && !d.UpdatedAt.After(before)
}

// collectIDs returns up to limit ids selected by pick, ordered by the time
// pick returns for each.
func (m *MemoryStore) collectIDs(limit int, pick func(*domain.Delivery) (time.Time, bool)) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type entry struct {
		id string
		at time.Time
	}
	var found []entry
	for _, d := range m.deliveries {
		if at, ok := pick(d); ok {
			found = append(found, entry{d.ID, at})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].at.Before(found[j].at) })

	ids := []string{}
	for i := 0; i < len(found) && (limit <= 0 || i < limit); i++ {
		ids = append(ids, found[i].id)
	}
	return ids
}

func (m *MemoryStore) DeliveryStats(_ context.Context, tenantID string) (*DeliveryMetrics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		metrics  DeliveryMetrics
		respSum  int64
		respSeen int
	)
	for _, d := range m.deliveries {
		if d.TenantID != tenantID {
			continue
		}
		metrics.TotalDeliveries++
		switch d.Status {
		case domain.DeliveryPending:
			metrics.PendingCount++
		case domain.DeliveryRetrying:
			metrics.RetryingCount++
		case domain.DeliverySuccess:
			metrics.SuccessCount++
		case domain.DeliveryFailed:
			metrics.FailedCount++
		}
		if d.ResponseTimeMs != nil && *d.ResponseTimeMs > 0 {
			respSum += *d.ResponseTimeMs
			respSeen++
		}
	}
	if respSeen > 0 {
		metrics.AvgResponseMs = float64(respSum) / float64(respSeen)
	}
	for _, s := range m.subscribers {
		if s.TenantID == tenantID && s.IsActive {
			metrics.ActiveSubscribers++
		}
	}
	metrics.finish()
	return &metrics, nil
}
