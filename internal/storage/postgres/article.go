package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"research_pipeline/internal/domain"
)

type ArticleStore struct {
	db *sqlx.DB
}

func NewArticleStore(db *sqlx.DB) *ArticleStore {
	return &ArticleStore{db: db}
}

func (s *ArticleStore) Create(ctx context.Context, article *domain.Article) error {
	query := `
		INSERT INTO research_articles (
			id, title, category, template, raw_content, content_hash, abstract, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $8
		)`

	now := time.Now().UTC()
	if article.CreatedAt.IsZero() {
		article.CreatedAt = now
	}
	article.UpdatedAt = article.CreatedAt

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		article.ID,
		article.Title,
		article.Category,
		article.Template,
		article.RawContent,
		article.ContentHash,
		article.Abstract,
		article.CreatedAt,
	)
	return err
}

func (s *ArticleStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Article, error) {
	query := `
		SELECT id, title, category, template, raw_content, content_hash, abstract,
			formatted_content, formatted_at, created_at, updated_at
		FROM research_articles
		WHERE id = $1`

	var article domain.Article
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &article, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrArticleNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &article, nil
}

func (s *ArticleStore) UpdateFormatted(ctx context.Context, id uuid.UUID, content string) error {
	query := `
		UPDATE research_articles
		SET formatted_content = $2, formatted_at = $3, updated_at = $3
		WHERE id = $1`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, id, content, time.Now().UTC())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrArticleNotFound, id)
	}
	return nil
}
