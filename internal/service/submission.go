package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"research_pipeline/internal/domain"
)

var ErrInvalidArticle = errors.New("invalid article")

type ArticleInput struct {
	Title      string
	Category   string
	Template   string
	RawContent string
	Abstract   *string
}

// SubmissionService creates articles and the jobs that format them.
type SubmissionService struct {
	articles  ArticleStore
	jobs      JobStore
	txManager TransactionManager
	logger    *slog.Logger
}

func NewSubmissionService(
	articles ArticleStore,
	jobs JobStore,
	txManager TransactionManager,
	logger *slog.Logger,
) *SubmissionService {
	return &SubmissionService{
		articles:  articles,
		jobs:      jobs,
		txManager: txManager,
		logger:    logger.With("component", "submission"),
	}
}

// Submit stores a new article and its initial queued job atomically.
func (s *SubmissionService) Submit(ctx context.Context, in ArticleInput) (*domain.Article, *domain.Job, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, nil, fmt.Errorf("%w: title is required", ErrInvalidArticle)
	}
	if strings.TrimSpace(in.RawContent) == "" {
		return nil, nil, fmt.Errorf("%w: content is required", ErrInvalidArticle)
	}

	article := &domain.Article{
		ID:          uuid.New(),
		Title:       title,
		Category:    strings.TrimSpace(in.Category),
		Template:    strings.TrimSpace(in.Template),
		RawContent:  in.RawContent,
		ContentHash: domain.ContentHash(in.RawContent),
		Abstract:    in.Abstract,
	}
	job := domain.NewJob(article.ID, 0)

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.articles.Create(txCtx, article); err != nil {
			return fmt.Errorf("create article: %w", err)
		}
		if err := s.jobs.Create(txCtx, job); err != nil {
			return fmt.Errorf("create job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("article submitted",
		"article_id", article.ID,
		"job_id", job.ID,
		"content_hash", article.ContentHash,
	)
	return article, job, nil
}

// Enqueue creates a queued formatting job for an existing article.
func (s *SubmissionService) Enqueue(ctx context.Context, articleID uuid.UUID) (*domain.Job, error) {
	if _, err := s.articles.GetByID(ctx, articleID); err != nil {
		return nil, fmt.Errorf("load article: %w", err)
	}

	job := domain.NewJob(articleID, 0)
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	s.logger.Info("formatting job queued", "article_id", articleID, "job_id", job.ID)
	return job, nil
}

// History returns every job row recorded for an article, oldest first.
func (s *SubmissionService) History(ctx context.Context, articleID uuid.UUID) ([]domain.Job, error) {
	jobs, err := s.jobs.ListByArticle(ctx, articleID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}
