package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"research_pipeline/internal/domain"
)

type FormattedResultStore struct {
	db *sqlx.DB
}

func NewFormattedResultStore(db *sqlx.DB) *FormattedResultStore {
	return &FormattedResultStore{db: db}
}

// Get returns the entry for hash; found is false on a miss.
func (s *FormattedResultStore) Get(ctx context.Context, hash string) (*domain.FormattedResult, bool, error) {
	query := `
		SELECT content_hash, formatted_output, model_used, token_count,
			access_count, last_accessed_at, created_at
		FROM formatted_results
		WHERE content_hash = $1`

	var res domain.FormattedResult
	err := sqlx.GetContext(ctx, s.db, &res, query, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &res, true, nil
}

// Insert stores a new entry and reports whether a row was written. An
// existing payload for the same hash is kept.
func (s *FormattedResultStore) Insert(ctx context.Context, res *domain.FormattedResult) (bool, error) {
	query := `
		INSERT INTO formatted_results (
			content_hash, formatted_output, model_used, token_count,
			access_count, last_accessed_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (content_hash) DO NOTHING`

	now := time.Now().UTC()
	if res.CreatedAt.IsZero() {
		res.CreatedAt = now
	}
	if res.LastAccessedAt.IsZero() {
		res.LastAccessedAt = res.CreatedAt
	}

	result, err := s.db.ExecContext(ctx, query,
		res.ContentHash,
		res.FormattedOutput,
		res.ModelUsed,
		res.TokenCount,
		res.AccessCount,
		res.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *FormattedResultStore) Touch(ctx context.Context, hash string, at time.Time) error {
	query := `
		UPDATE formatted_results
		SET access_count = access_count + 1, last_accessed_at = $2
		WHERE content_hash = $1`

	_, err := s.db.ExecContext(ctx, query, hash, at)
	return err
}
