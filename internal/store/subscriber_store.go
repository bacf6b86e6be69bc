package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Priya8975/ticket-webhooks/internal/domain"
	"github.com/jackc/pgx/v5"
)

const subscriberColumns = `id, tenant_id, name, description, url, secret, event_types, custom_headers,
	is_active, max_attempts, retry_delay_seconds, total_deliveries, successful_deliveries,
	failed_deliveries, last_delivery_at, created_at, updated_at`

func scanSubscriber(row pgx.Row) (*domain.Subscriber, error) {
	var (
		sub        domain.Subscriber
		eventTypes []string
	)
	err := row.Scan(
		&sub.ID, &sub.TenantID, &sub.Name, &sub.Description, &sub.URL, &sub.Secret,
		&eventTypes, &sub.CustomHeaders, &sub.IsActive, &sub.MaxAttempts, &sub.RetryDelaySeconds,
		&sub.TotalDeliveries, &sub.SuccessfulDeliveries, &sub.FailedDeliveries,
		&sub.LastDeliveryAt, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.EventTypes = make([]domain.EventType, len(eventTypes))
	for i, et := range eventTypes {
		sub.EventTypes[i] = domain.EventType(et)
	}
	return &sub, nil
}

func eventTypeStrings(types []domain.EventType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

func headersOrEmpty(h map[string]string) map[string]string {
	if h == nil {
		return map[string]string{}
	}
	return h
}

func (s *PostgresStore) CreateSubscriber(ctx context.Context, sub *domain.Subscriber) error {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO subscribers (id, tenant_id, name, description, url, secret, event_types,
			custom_headers, is_active, max_attempts, retry_delay_seconds, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		RETURNING created_at, updated_at
	`, sub.ID, sub.TenantID, sub.Name, sub.Description, sub.URL, sub.Secret,
		eventTypeStrings(sub.EventTypes), headersOrEmpty(sub.CustomHeaders), sub.IsActive,
		sub.MaxAttempts, sub.RetryDelaySeconds, sub.CreatedAt)
	if err := row.Scan(&sub.CreatedAt, &sub.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateName
		}
		return fmt.Errorf("inserting subscriber: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSubscriber(ctx context.Context, id string) (*domain.Subscriber, error) {
	sub, err := scanSubscriber(s.pool.QueryRow(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying subscriber: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) FindSubscriberByName(ctx context.Context, tenantID, name string) (*domain.Subscriber, error) {
	sub, err := scanSubscriber(s.pool.QueryRow(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE tenant_id = $1 AND LOWER(name) = LOWER($2)`,
		tenantID, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying subscriber by name: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) ListSubscribers(ctx context.Context, tenantID string, activeOnly bool) ([]domain.Subscriber, error) {
	query := `SELECT ` + subscriberColumns + ` FROM subscribers WHERE tenant_id = $1`
	if activeOnly {
		query += ` AND is_active = true`
	}
	query += ` ORDER BY created_at DESC`

	return s.querySubscribers(ctx, query, tenantID)
}

// FindMatchingSubscribers returns the tenant's active subscribers registered
// for eventType.
func (s *PostgresStore) FindMatchingSubscribers(ctx context.Context, tenantID string, eventType domain.EventType) ([]domain.Subscriber, error) {
	subs, err := s.querySubscribers(ctx, `
		SELECT `+subscriberColumns+`
		FROM subscribers
		WHERE tenant_id = $1 AND is_active = true AND $2 = ANY(event_types)
		ORDER BY created_at
	`, tenantID, string(eventType))
	if err != nil {
		return nil, fmt.Errorf("finding matching subscribers: %w", err)
	}
	return subs, nil
}

func (s *PostgresStore) querySubscribers(ctx context.Context, query string, args ...any) ([]domain.Subscriber, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying subscribers: %w", err)
	}
	defer rows.Close()

	subscribers := []domain.Subscriber{}
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning subscriber: %w", err)
		}
		subscribers = append(subscribers, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating subscribers: %w", err)
	}
	return subscribers, nil
}

// UpdateSubscriber replaces the mutable configuration of sub. Secret and
// stats are left untouched.
func (s *PostgresStore) UpdateSubscriber(ctx context.Context, sub *domain.Subscriber) error {
	err := s.pool.QueryRow(ctx, `
		UPDATE subscribers SET
			name = $2, description = $3, url = $4, event_types = $5, custom_headers = $6,
			is_active = $7, max_attempts = $8, retry_delay_seconds = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, sub.ID, sub.Name, sub.Description, sub.URL, eventTypeStrings(sub.EventTypes),
		headersOrEmpty(sub.CustomHeaders), sub.IsActive, sub.MaxAttempts, sub.RetryDelaySeconds,
	).Scan(&sub.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if isUniqueViolation(err) {
			return domain.ErrDuplicateName
		}
		return fmt.Errorf("updating subscriber: %w", err)
	}
	return nil
}

func (s *PostgresStore) RotateSubscriberSecret(ctx context.Context, id, secret string) error {
	return s.execSubscriber(ctx, "rotating subscriber secret",
		`UPDATE subscribers SET secret = $2, updated_at = NOW() WHERE id = $1`, id, secret)
}

func (s *PostgresStore) SetSubscriberActive(ctx context.Context, id string, active bool) error {
	return s.execSubscriber(ctx, "setting subscriber active",
		`UPDATE subscribers SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
}

func (s *PostgresStore) DeleteSubscriber(ctx context.Context, id string) error {
	return s.execSubscriber(ctx, "deleting subscriber", `DELETE FROM subscribers WHERE id = $1`, id)
}

// IncrementSubscriberStats bumps the delivery counters in a single statement
// so concurrent workers never lose an update.
func (s *PostgresStore) IncrementSubscriberStats(ctx context.Context, id string, success bool, at time.Time) error {
	query := `UPDATE subscribers SET total_deliveries = total_deliveries + 1,
		failed_deliveries = failed_deliveries + 1, last_delivery_at = $2 WHERE id = $1`
	if success {
		query = `UPDATE subscribers SET total_deliveries = total_deliveries + 1,
			successful_deliveries = successful_deliveries + 1, last_delivery_at = $2 WHERE id = $1`
	}
	if _, err := s.pool.Exec(ctx, query, id, at); err != nil {
		return fmt.Errorf("incrementing subscriber stats: %w", err)
	}
	return nil
}

func (s *PostgresStore) execSubscriber(ctx context.Context, op, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
