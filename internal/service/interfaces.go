package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"github.com/google/uuid"

	"research_pipeline/internal/domain"
	"research_pipeline/internal/llm"
)

type ArticleStore interface {
	Create(ctx context.Context, article *domain.Article) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Article, error)
	UpdateFormatted(ctx context.Context, id uuid.UUID, content string) error
}

type JobStore interface {
	Create(ctx context.Context, job *domain.Job) error
	NextQueued(ctx context.Context) (*domain.Job, error)
	MarkProcessing(ctx context.Context, id uuid.UUID, startedAt time.Time) (bool, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, completedAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, retryCount int, message string, completedAt time.Time) error
	ListByArticle(ctx context.Context, articleID uuid.UUID) ([]domain.Job, error)
}

type ResultCache interface {
	Lookup(ctx context.Context, hash string) (*domain.FormattedResult, bool, error)
	Store(ctx context.Context, hash, output, model string, tokens int) error
	Touch(ctx context.Context, hash string) error
}

type MetricStore interface {
	Increment(ctx context.Context, name string, day time.Time, delta int64, metadata map[string]any) error
}

type Completer interface {
	CompleteWithFailover(ctx context.Context, prompt string, opts llm.Options) (*llm.Completion, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, event *domain.JobEvent) error
	Close() error
}
