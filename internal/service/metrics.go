package service

import (
	"context"
	"log/slog"
	"time"
)

// metricsRecorder writes daily counters. Failures are logged and dropped.
type metricsRecorder struct {
	store  MetricStore
	logger *slog.Logger
	now    func() time.Time
}

func (r *metricsRecorder) incr(ctx context.Context, name string, delta int64, metadata map[string]any) {
	if r.store == nil || delta == 0 {
		return
	}
	if err := r.store.Increment(ctx, name, r.now().UTC(), delta, metadata); err != nil {
		r.logger.Warn("failed to record metric", "metric", name, "delta", delta, "error", err)
	}
}
