package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Failover tries the primary provider and then a fixed fallback chain,
// returning the first successful completion.
type Failover struct {
	client     *Client
	candidates []Provider
	logger     *slog.Logger
}

func NewFailover(client *Client, fallback []Provider, logger *slog.Logger) *Failover {
	return &Failover{
		client:     client,
		candidates: dedupe(append([]Provider{client.Primary()}, fallback...)),
		logger:     logger,
	}
}

// Candidates returns the ordered, de-duplicated provider list.
func (f *Failover) Candidates() []Provider {
	return append([]Provider(nil), f.candidates...)
}

func (f *Failover) CompleteWithFailover(ctx context.Context, prompt string, opts Options) (*Completion, error) {
	var (
		lastErr   error
		attempted []Provider
	)

	for _, p := range f.candidates {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("failover canceled: %w", err)
		}

		if !f.client.IsEnabled(p) {
			f.logger.Debug("skipping provider without credentials", "provider", p)
			continue
		}

		t, err := f.client.Target(p, f.client.Tier())
		if err != nil {
			f.logger.Warn("provider target resolution failed", "provider", p, "error", err)
			lastErr = err
			continue
		}

		attempted = append(attempted, p)
		completion, err := f.client.Complete(ctx, t, prompt, opts)
		if err == nil {
			if len(attempted) > 1 {
				f.logger.Info("completed after failover", "provider", p, "attempts", len(attempted))
			}
			return completion, nil
		}

		f.logger.Warn("provider attempt failed", "provider", p, "model", t.Model, "error", err)
		lastErr = err
	}

	if lastErr == nil {
		lastErr = &ConfigurationError{Provider: f.client.Primary(), Reason: "no provider has credentials configured"}
	}
	return nil, &FailoverExhaustedError{Attempted: attempted, Last: lastErr}
}

// IsExhausted reports whether err came from an exhausted failover chain.
func IsExhausted(err error) bool {
	var exhausted *FailoverExhaustedError
	return errors.As(err, &exhausted)
}

func dedupe(providers []Provider) []Provider {
	seen := make(map[Provider]bool, len(providers))
	out := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
