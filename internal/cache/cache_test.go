package cache

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"research_pipeline/internal/domain"
)

type memoryStore struct {
	mu      sync.Mutex
	entries map[string]domain.FormattedResult
	getErr  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: make(map[string]domain.FormattedResult)}
}

func (m *memoryStore) Get(_ context.Context, hash string) (*domain.FormattedResult, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	res, ok := m.entries[hash]
	if !ok {
		return nil, false, nil
	}
	return &res, true, nil
}

func (m *memoryStore) Insert(_ context.Context, res *domain.FormattedResult) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[res.ContentHash]; ok {
		return false, nil
	}
	m.entries[res.ContentHash] = *res
	return true, nil
}

func (m *memoryStore) Touch(_ context.Context, hash string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.entries[hash]
	if !ok {
		return nil
	}
	res.AccessCount++
	res.LastAccessedAt = at
	m.entries[hash] = res
	return nil
}

type memoryFront struct {
	entries map[string]domain.FormattedResult
	gets    int
	setErr  error
	getErr  error
}

func (f *memoryFront) Get(_ context.Context, hash string) (*domain.FormattedResult, bool, error) {
	f.gets++
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	res, ok := f.entries[hash]
	if !ok {
		return nil, false, nil
	}
	return &res, true, nil
}

func (f *memoryFront) Set(_ context.Context, res *domain.FormattedResult) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.entries[res.ContentHash] = *res
	return nil
}

type CacheTestSuite struct {
	suite.Suite
	ctx    context.Context
	store  *memoryStore
	front  *memoryFront
	logger *slog.Logger
}

func (s *CacheTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = newMemoryStore()
	s.front = &memoryFront{entries: make(map[string]domain.FormattedResult)}
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestCacheTestSuite(t *testing.T) {
	suite.Run(t, new(CacheTestSuite))
}

func (s *CacheTestSuite) TestStoreThenLookup_RoundTrip() {
	c := New(s.store, nil, s.logger)

	inputs := map[string]string{
		"Hello world":    "# Hello\n\nworld",
		"":               "",
		"unicode ✓ text": "## unicode ✓ text",
	}
	for raw, out := range inputs {
		h := domain.ContentHash(raw)
		s.Require().NoError(c.Store(s.ctx, h, out, "gpt-4o", 42))

		res, ok, err := c.Lookup(s.ctx, h)
		s.Require().NoError(err)
		s.Require().True(ok)
		s.Equal(out, res.FormattedOutput)
		s.Equal("gpt-4o", res.ModelUsed)
		s.Equal(42, res.TokenCount)
	}
}

func (s *CacheTestSuite) TestLookup_Miss() {
	c := New(s.store, s.front, s.logger)

	res, ok, err := c.Lookup(s.ctx, domain.ContentHash("never stored"))
	s.NoError(err)
	s.False(ok)
	s.Nil(res)
}

func (s *CacheTestSuite) TestStore_FirstWriterWins() {
	c := New(s.store, s.front, s.logger)
	h := domain.ContentHash("same content")

	s.Require().NoError(c.Store(s.ctx, h, "first", "m1", 1))
	s.Require().NoError(c.Store(s.ctx, h, "second", "m2", 2))

	res, ok, err := c.Lookup(s.ctx, h)
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Equal("first", res.FormattedOutput)
	s.Equal("first", s.front.entries[h].FormattedOutput)
}

func (s *CacheTestSuite) TestTouch_UpdatesAccessMetadataOnly() {
	c := New(s.store, nil, s.logger)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c.now = func() time.Time { return fixed }
	h := domain.ContentHash("touch me")

	s.Require().NoError(c.Store(s.ctx, h, "out", "m", 3))
	s.Require().NoError(c.Touch(s.ctx, h))
	s.Require().NoError(c.Touch(s.ctx, h))

	entry := s.store.entries[h]
	s.Equal(int64(2), entry.AccessCount)
	s.Equal(fixed, entry.LastAccessedAt)
	s.Equal("out", entry.FormattedOutput)
}

func (s *CacheTestSuite) TestLookup_FrontHitSkipsStore() {
	c := New(s.store, s.front, s.logger)
	h := domain.ContentHash("front")
	s.front.entries[h] = domain.FormattedResult{ContentHash: h, FormattedOutput: "from front"}
	s.store.getErr = errors.New("store must not be called")

	res, ok, err := c.Lookup(s.ctx, h)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal("from front", res.FormattedOutput)
}

func (s *CacheTestSuite) TestLookup_StoreHitFillsFront() {
	c := New(s.store, s.front, s.logger)
	h := domain.ContentHash("fill")
	s.store.entries[h] = domain.FormattedResult{ContentHash: h, FormattedOutput: "from store"}

	res, ok, err := c.Lookup(s.ctx, h)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal("from store", res.FormattedOutput)
	s.Equal("from store", s.front.entries[h].FormattedOutput)
}

func (s *CacheTestSuite) TestFrontFailuresFallThrough() {
	s.front.getErr = errors.New("redis down")
	s.front.setErr = errors.New("redis down")
	c := New(s.store, s.front, s.logger)
	h := domain.ContentHash("resilient")

	s.Require().NoError(c.Store(s.ctx, h, "out", "m", 1))

	res, ok, err := c.Lookup(s.ctx, h)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal("out", res.FormattedOutput)
}

func (s *CacheTestSuite) TestStoreErrorIsReturned() {
	s.store.getErr = errors.New("db down")
	c := New(s.store, nil, s.logger)

	_, _, err := c.Lookup(s.ctx, "h")
	s.ErrorContains(err, "db down")
}
