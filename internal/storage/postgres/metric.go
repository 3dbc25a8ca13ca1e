package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"research_pipeline/internal/domain"
)

type MetricStore struct {
	db *sqlx.DB
}

func NewMetricStore(db *sqlx.DB) *MetricStore {
	return &MetricStore{db: db}
}

// Increment adds delta to the (name, day) counter, creating it if absent.
// Metadata replaces the stored metadata when non-nil.
func (s *MetricStore) Increment(ctx context.Context, name string, day time.Time, delta int64, metadata map[string]any) error {
	var meta []byte
	if metadata != nil {
		var err error
		meta, err = json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal metric metadata: %w", err)
		}
	}

	query := `
		INSERT INTO analytics_metrics (metric_name, metric_date, value, metadata)
		VALUES ($1, $2, $3, COALESCE($4::jsonb, '{}'::jsonb))
		ON CONFLICT (metric_name, metric_date) DO UPDATE SET
			value = analytics_metrics.value + EXCLUDED.value,
			metadata = COALESCE($4::jsonb, analytics_metrics.metadata)`

	_, err := s.db.ExecContext(ctx, query, name, dayOf(day), delta, nullableJSON(meta))
	return err
}

func (s *MetricStore) Get(ctx context.Context, name string, day time.Time) (*domain.Metric, error) {
	query := `
		SELECT metric_name, metric_date, value, metadata
		FROM analytics_metrics
		WHERE metric_name = $1 AND metric_date = $2`

	var m domain.Metric
	if err := s.db.GetContext(ctx, &m, query, name, dayOf(day)); err != nil {
		return nil, err
	}
	return &m, nil
}

func dayOf(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

func nullableJSON(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
