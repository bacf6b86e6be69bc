package store

import (
	"context"
	"fmt"
)

// DeliveryMetrics holds aggregated delivery statistics for one tenant.
type DeliveryMetrics struct {
	TotalDeliveries   int     `json:"total_deliveries"`
	PendingCount      int     `json:"pending_count"`
	RetryingCount     int     `json:"retrying_count"`
	SuccessCount      int     `json:"success_count"`
	FailedCount       int     `json:"failed_count"`
	SuccessRate       float64 `json:"success_rate"`
	AvgResponseMs     float64 `json:"avg_response_ms"`
	ActiveSubscribers int     `json:"active_subscribers"`
}

// finish derives the success rate from the terminal counts.
func (m *DeliveryMetrics) finish() {
	if done := m.SuccessCount + m.FailedCount; done > 0 {
		m.SuccessRate = float64(m.SuccessCount) / float64(done) * 100
	}
}

func (s *PostgresStore) DeliveryStats(ctx context.Context, tenantID string) (*DeliveryMetrics, error) {
	var m DeliveryMetrics

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'PENDING') AS pending,
			COUNT(*) FILTER (WHERE status = 'RETRYING') AS retrying,
			COUNT(*) FILTER (WHERE status = 'SUCCESS') AS success,
			COUNT(*) FILTER (WHERE status = 'FAILED') AS failed,
			COALESCE(AVG(response_time_ms) FILTER (WHERE response_time_ms > 0), 0) AS avg_response_ms
		FROM deliveries
		WHERE tenant_id = $1
	`, tenantID).Scan(&m.TotalDeliveries, &m.PendingCount, &m.RetryingCount,
		&m.SuccessCount, &m.FailedCount, &m.AvgResponseMs)
	if err != nil {
		return nil, fmt.Errorf("querying delivery metrics: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM subscribers WHERE tenant_id = $1 AND is_active = true
	`, tenantID).Scan(&m.ActiveSubscribers)
	if err != nil {
		return nil, fmt.Errorf("querying active subscribers: %w", err)
	}

	m.finish()
	return &m, nil
}
