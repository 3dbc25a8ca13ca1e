package worker

import (
	"context"
	"log/slog"
	"time"
)

// Processor runs a single queued job. It reports false when the queue was empty.
type Processor interface {
	ProcessNext(ctx context.Context) (bool, error)
}

// Worker polls the job queue. Jobs run one at a time; the worker sleeps for
// the poll interval only when the queue is empty or the store failed.
type Worker struct {
	processor Processor
	interval  time.Duration
	logger    *slog.Logger
}

func New(processor Processor, interval time.Duration, logger *slog.Logger) *Worker {
	return &Worker{
		processor: processor,
		interval:  interval,
		logger:    logger.With("component", "worker"),
	}
}

// Start blocks until ctx is canceled. A job that is already running when
// ctx is canceled finishes before Start returns.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("worker started", "poll_interval", w.interval)

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		if err := ctx.Err(); err != nil {
			w.logger.Info("worker stopped")
			return err
		}

		if w.runOnce(ctx) {
			continue
		}

		timer.Reset(w.interval)
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// runOnce reports whether the worker should poll again without waiting.
func (w *Worker) runOnce(ctx context.Context) bool {
	processed, err := w.processor.ProcessNext(context.WithoutCancel(ctx))
	if err != nil {
		w.logger.Error("job processing failed", "error", err)
		return false
	}
	return processed
}
