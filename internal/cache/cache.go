package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"research_pipeline/internal/domain"
)

// Store is the authoritative, unbounded tier keyed by content hash.
type Store interface {
	Get(ctx context.Context, hash string) (*domain.FormattedResult, bool, error)
	Insert(ctx context.Context, res *domain.FormattedResult) (bool, error)
	Touch(ctx context.Context, hash string, at time.Time) error
}

// Front is an optional read-through tier in front of Store. It may drop
// entries; Store never does.
type Front interface {
	Get(ctx context.Context, hash string) (*domain.FormattedResult, bool, error)
	Set(ctx context.Context, res *domain.FormattedResult) error
}

// Cache maps content hashes to previously formatted output.
type Cache struct {
	store  Store
	front  Front
	logger *slog.Logger
	now    func() time.Time
}

func New(store Store, front Front, logger *slog.Logger) *Cache {
	return &Cache{
		store:  store,
		front:  front,
		logger: logger,
		now:    time.Now,
	}
}

// Lookup returns the entry for hash. found is false on a miss.
func (c *Cache) Lookup(ctx context.Context, hash string) (*domain.FormattedResult, bool, error) {
	if c.front != nil {
		res, ok, err := c.front.Get(ctx, hash)
		if err != nil {
			c.logger.Warn("cache front lookup failed", "content_hash", hash, "error", err)
		} else if ok {
			return res, true, nil
		}
	}

	res, ok, err := c.store.Get(ctx, hash)
	if err != nil {
		return nil, false, fmt.Errorf("lookup formatted result: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	c.fill(ctx, res)
	return res, true, nil
}

func (c *Cache) Store(ctx context.Context, hash, output, model string, tokens int) error {
	res := &domain.FormattedResult{
		ContentHash:     hash,
		FormattedOutput: output,
		ModelUsed:       model,
		TokenCount:      tokens,
		LastAccessedAt:  c.now().UTC(),
		CreatedAt:       c.now().UTC(),
	}
	inserted, err := c.store.Insert(ctx, res)
	if err != nil {
		return fmt.Errorf("store formatted result: %w", err)
	}
	if !inserted {
		// first writer wins; the stored payload for this hash is unchanged
		c.logger.Debug("formatted result already cached", "content_hash", hash)
		return nil
	}

	c.fill(ctx, res)
	return nil
}

// Touch records a hit on hash without changing its payload.
func (c *Cache) Touch(ctx context.Context, hash string) error {
	if err := c.store.Touch(ctx, hash, c.now().UTC()); err != nil {
		return fmt.Errorf("touch formatted result: %w", err)
	}
	return nil
}

func (c *Cache) fill(ctx context.Context, res *domain.FormattedResult) {
	if c.front == nil {
		return
	}
	if err := c.front.Set(ctx, res); err != nil {
		c.logger.Warn("cache front fill failed", "content_hash", res.ContentHash, "error", err)
	}
}
