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

const jobColumns = `id, article_id, status, retry_count, error_message, created_at, started_at, completed_at`

type JobStore struct {
	db *sqlx.DB
}

func NewJobStore(db *sqlx.DB) *JobStore {
	return &JobStore{db: db}
}

func (s *JobStore) Create(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO formatting_jobs (id, article_id, status, retry_count, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		job.ID,
		job.ArticleID,
		job.Status,
		job.RetryCount,
		job.CreatedAt,
	)
	return err
}

// NextQueued returns the oldest queued job, or nil when the queue is empty.
func (s *JobStore) NextQueued(ctx context.Context) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM formatting_jobs
		WHERE status = $1
		ORDER BY created_at ASC, id ASC
		LIMIT 1`

	var job domain.Job
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &job, query, domain.JobStatusQueued)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// MarkProcessing moves a queued job to processing. It reports false when the
// row was no longer queued.
func (s *JobStore) MarkProcessing(ctx context.Context, id uuid.UUID, startedAt time.Time) (bool, error) {
	query := `
		UPDATE formatting_jobs
		SET status = $2, started_at = $3
		WHERE id = $1 AND status = $4`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		id, domain.JobStatusProcessing, startedAt, domain.JobStatusQueued,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *JobStore) MarkCompleted(ctx context.Context, id uuid.UUID, completedAt time.Time) error {
	query := `
		UPDATE formatting_jobs
		SET status = $2, completed_at = $3, error_message = NULL
		WHERE id = $1`

	return s.update(ctx, id, query, id, domain.JobStatusCompleted, completedAt)
}

func (s *JobStore) MarkFailed(ctx context.Context, id uuid.UUID, retryCount int, message string, completedAt time.Time) error {
	query := `
		UPDATE formatting_jobs
		SET status = $2, retry_count = $3, error_message = $4, completed_at = $5
		WHERE id = $1`

	return s.update(ctx, id, query, id, domain.JobStatusFailed, retryCount, message, completedAt)
}

func (s *JobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM formatting_jobs WHERE id = $1`

	var job domain.Job
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &job, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ListByArticle returns every job row for an article, oldest first.
func (s *JobStore) ListByArticle(ctx context.Context, articleID uuid.UUID) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM formatting_jobs
		WHERE article_id = $1
		ORDER BY created_at ASC, id ASC`

	var jobs []domain.Job
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &jobs, query, articleID)
	return jobs, err
}

func (s *JobStore) update(ctx context.Context, id uuid.UUID, query string, args ...any) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	return nil
}
