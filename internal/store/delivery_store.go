package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Priya8975/ticket-webhooks/internal/domain"
	"github.com/jackc/pgx/v5"
)

const deliveryColumns = `id, subscriber_id, tenant_id, subscriber_name, subscriber_url, event_type,
	correlation_id, correlation_ref, payload, status, attempt_count, max_attempts,
	retry_delay_seconds, response_code, response_body, error_message, response_time_ms,
	next_retry_at, delivered_at, created_at, updated_at`

func scanDelivery(row pgx.Row) (*domain.Delivery, error) {
	var (
		d       domain.Delivery
		payload []byte
	)
	err := row.Scan(
		&d.ID, &d.SubscriberID, &d.TenantID, &d.SubscriberName, &d.SubscriberURL, &d.EventType,
		&d.CorrelationID, &d.CorrelationRef, &payload, &d.Status, &d.AttemptCount, &d.MaxAttempts,
		&d.RetryDelaySeconds, &d.ResponseCode, &d.ResponseBody, &d.ErrorMessage, &d.ResponseTimeMs,
		&d.NextRetryAt, &d.DeliveredAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Payload = payload
	return &d, nil
}

func (s *PostgresStore) CreateDelivery(ctx context.Context, d *domain.Delivery) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO deliveries (id, subscriber_id, tenant_id, subscriber_name, subscriber_url,
			event_type, correlation_id, correlation_ref, payload, status, attempt_count,
			max_attempts, retry_delay_seconds, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
	`, d.ID, d.SubscriberID, d.TenantID, d.SubscriberName, d.SubscriberURL,
		string(d.EventType), d.CorrelationID, d.CorrelationRef, []byte(d.Payload), string(d.Status),
		d.AttemptCount, d.MaxAttempts, d.RetryDelaySeconds, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting delivery: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDelivery(ctx context.Context, id string) (*domain.Delivery, error) {
	d, err := scanDelivery(s.pool.QueryRow(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying delivery: %w", err)
	}
	return d, nil
}

// ListDeliveries returns one page (0-based) of a subscriber's deliveries,
// newest first, along with the total count.
func (s *PostgresStore) ListDeliveries(ctx context.Context, subscriberID string, page, size int) ([]domain.Delivery, int, error) {
	offset, ok := pageOffset(page, size)
	if !ok {
		return nil, 0, fmt.Errorf("page %d of size %d: %w", page, size, ErrPageOutOfRange)
	}

	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM deliveries WHERE subscriber_id = $1`, subscriberID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting deliveries: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+deliveryColumns+` FROM deliveries
		WHERE subscriber_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, subscriberID, size, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("querying deliveries: %w", err)
	}
	defer rows.Close()

	deliveries := []domain.Delivery{}
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning delivery: %w", err)
		}
		deliveries = append(deliveries, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating deliveries: %w", err)
	}
	return deliveries, total, nil
}

// ClaimDeliveryAttempt reserves attempt number expectedAttempt+1. Only one
// caller can win for a given expectedAttempt; a RETRYING record's
// next_retry_at is pushed to lease so retry sweeps skip it while in flight.
func (s *PostgresStore) ClaimDeliveryAttempt(ctx context.Context, id string, expectedAttempt int, lease time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE deliveries SET
			attempt_count = attempt_count + 1,
			next_retry_at = CASE WHEN status = 'RETRYING' THEN $3 ELSE next_retry_at END,
			updated_at = NOW()
		WHERE id = $1
		  AND attempt_count = $2
		  AND attempt_count < max_attempts
		  AND status IN ('PENDING', 'RETRYING')
	`, id, expectedAttempt, lease)
	if err != nil {
		return false, fmt.Errorf("claiming delivery attempt: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SaveDeliveryResult persists the outcome of the attempt numbered
// d.AttemptCount. It reports false if the record already reached a terminal
// state or moved on to a later attempt.
func (s *PostgresStore) SaveDeliveryResult(ctx context.Context, d *domain.Delivery) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE deliveries SET
			status = $3, response_code = $4, response_body = $5, error_message = $6,
			response_time_ms = $7, next_retry_at = $8, delivered_at = $9, updated_at = $10
		WHERE id = $1
		  AND attempt_count = $2
		  AND status IN ('PENDING', 'RETRYING')
	`, d.ID, d.AttemptCount, string(d.Status), d.ResponseCode, d.ResponseBody, d.ErrorMessage,
		d.ResponseTimeMs, d.NextRetryAt, d.DeliveredAt, d.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("saving delivery result: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseDeliveryAttempt undoes the claim of attempt claimedAttempt when the
// attempt was interrupted before it could reach the endpoint's answer. A
// RETRYING record gets nextRetryAt back.
func (s *PostgresStore) ReleaseDeliveryAttempt(ctx context.Context, id string, claimedAttempt int, nextRetryAt *time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE deliveries SET
			attempt_count = attempt_count - 1,
			next_retry_at = CASE WHEN status = 'RETRYING' THEN $3 ELSE next_retry_at END,
			updated_at = NOW()
		WHERE id = $1
		  AND attempt_count = $2
		  AND attempt_count > 0
		  AND status IN ('PENDING', 'RETRYING')
	`, id, claimedAttempt, nextRetryAt)
	if err != nil {
		return false, fmt.Errorf("releasing delivery attempt: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListDueRetries returns ids of RETRYING deliveries whose next retry is due.
func (s *PostgresStore) ListDueRetries(ctx context.Context, now time.Time, limit int) ([]string, error) {
	return s.queryIDs(ctx, `
		SELECT id FROM deliveries
		WHERE status = 'RETRYING' AND next_retry_at <= $1
		  AND attempt_count < max_attempts
		ORDER BY next_retry_at
		LIMIT $2
	`, now, limit)
}

// ListStalePending returns ids of PENDING deliveries untouched since before.
func (s *PostgresStore) ListStalePending(ctx context.Context, before time.Time, limit int) ([]string, error) {
	return s.queryIDs(ctx, `
		SELECT id FROM deliveries
		WHERE status = 'PENDING' AND updated_at <= $1
		  AND attempt_count < max_attempts
		ORDER BY created_at
		LIMIT $2
	`, before, limit)
}

// ListAbandoned returns ids of non-terminal deliveries whose last attempt was
// claimed before before but never recorded, with no attempts left.
func (s *PostgresStore) ListAbandoned(ctx context.Context, before time.Time, limit int) ([]string, error) {
	return s.queryIDs(ctx, `
		SELECT id FROM deliveries
		WHERE status IN ('PENDING', 'RETRYING')
		  AND attempt_count >= max_attempts
		  AND updated_at <= $1
		ORDER BY updated_at
		LIMIT $2
	`, before, limit)
}

// FailAbandonedDelivery moves an abandoned delivery to FAILED. It reports
// false if the record was recorded or finalized in the meantime.
func (s *PostgresStore) FailAbandonedDelivery(ctx context.Context, id string, before, now time.Time, errMsg string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE deliveries SET
			status = 'FAILED', error_message = $4, next_retry_at = NULL, updated_at = $3
		WHERE id = $1
		  AND status IN ('PENDING', 'RETRYING')
		  AND attempt_count >= max_attempts
		  AND updated_at <= $2
	`, id, before, now, errMsg)
	if err != nil {
		return false, fmt.Errorf("failing abandoned delivery: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying delivery ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collecting delivery ids: %w", err)
	}
	return ids, nil
}
