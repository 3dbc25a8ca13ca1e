package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"research_pipeline/internal/domain"
	"research_pipeline/internal/llm"
)

type FormatterConfig struct {
	MaxRetries int
}

// FormattingService runs one formatting job at a time: it resolves cache
// hits, calls the LLM on misses, writes the result back to the article and
// requeues failures while retry budget remains.
type FormattingService struct {
	articles  ArticleStore
	jobs      JobStore
	cache     ResultCache
	completer Completer
	publisher Publisher
	metrics   *metricsRecorder
	logger    *slog.Logger
	config    FormatterConfig
	now       func() time.Time
}

func NewFormattingService(
	articles ArticleStore,
	jobs JobStore,
	cache ResultCache,
	completer Completer,
	metrics MetricStore,
	publisher Publisher,
	logger *slog.Logger,
	cfg FormatterConfig,
) *FormattingService {
	logger = logger.With("component", "formatter")
	return &FormattingService{
		articles:  articles,
		jobs:      jobs,
		cache:     cache,
		completer: completer,
		publisher: publisher,
		metrics:   &metricsRecorder{store: metrics, logger: logger, now: time.Now},
		logger:    logger,
		config:    cfg,
		now:       time.Now,
	}
}

type formatOutcome struct {
	content  string
	model    string
	cacheHit bool
}

// ProcessNext picks the oldest queued job and runs it to completion or
// failure. It reports false when the queue was empty. Job failures are
// recorded on the job row and do not produce an error; the returned error
// covers queue bookkeeping only.
func (s *FormattingService) ProcessNext(ctx context.Context) (bool, error) {
	job, err := s.jobs.NextQueued(ctx)
	if err != nil {
		return false, fmt.Errorf("select next job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	logger := s.logger.With(
		"job_id", job.ID,
		"article_id", job.ArticleID,
		"retry_count", job.RetryCount,
	)

	claimed, err := s.jobs.MarkProcessing(ctx, job.ID, s.now().UTC())
	if err != nil {
		return true, fmt.Errorf("mark job processing: %w", err)
	}
	if !claimed {
		logger.Warn("job no longer queued, skipping")
		return true, nil
	}
	job.Status = domain.JobStatusProcessing

	logger.Info("processing formatting job")
	start := time.Now()

	outcome, err := s.format(ctx, job, logger)
	if err != nil {
		return true, s.fail(ctx, job, err, logger)
	}

	if err := s.jobs.MarkCompleted(ctx, job.ID, s.now().UTC()); err != nil {
		return true, fmt.Errorf("mark job completed: %w", err)
	}
	job.Status = domain.JobStatusCompleted

	logger.Info("formatting job completed",
		"cache_hit", outcome.cacheHit,
		"model", outcome.model,
		"duration", time.Since(start),
	)

	s.publish(ctx, job, outcome, logger)
	return true, nil
}

func (s *FormattingService) format(ctx context.Context, job *domain.Job, logger *slog.Logger) (*formatOutcome, error) {
	article, err := s.articles.GetByID(ctx, job.ArticleID)
	if err != nil {
		return nil, fmt.Errorf("load article: %w", err)
	}

	hash := article.ContentHash
	if hash == "" {
		hash = domain.ContentHash(article.RawContent)
	}
	logger = logger.With("content_hash", hash)

	outcome, err := s.resolve(ctx, article, hash, logger)
	if err != nil {
		return nil, err
	}

	if err := s.articles.UpdateFormatted(ctx, article.ID, outcome.content); err != nil {
		return nil, fmt.Errorf("update article: %w", err)
	}
	return outcome, nil
}

func (s *FormattingService) resolve(ctx context.Context, article *domain.Article, hash string, logger *slog.Logger) (*formatOutcome, error) {
	cached, hit, err := s.cache.Lookup(ctx, hash)
	if err != nil {
		logger.Warn("cache lookup failed, treating as miss", "error", err)
		hit = false
	}

	if hit {
		s.metrics.incr(ctx, domain.MetricCacheHits, 1, nil)
		if err := s.cache.Touch(ctx, hash); err != nil {
			logger.Warn("cache touch failed", "error", err)
		}
		logger.Debug("cache hit")
		return &formatOutcome{content: cached.FormattedOutput, model: cached.ModelUsed, cacheHit: true}, nil
	}

	s.metrics.incr(ctx, domain.MetricCacheMisses, 1, nil)

	completion, err := s.completer.CompleteWithFailover(ctx, BuildFormattingPrompt(article), llm.Options{})
	if err != nil {
		return nil, fmt.Errorf("format with llm: %w", err)
	}

	content, err := ParseFormattedResponse(completion.Content)
	if err != nil {
		var perr *ParseError
		if !errors.As(err, &perr) {
			return nil, err
		}
		logger.Debug("response was not a json envelope, using raw text", "reason", perr.Reason)
		content = completion.Content
	}

	if err := s.cache.Store(ctx, hash, content, completion.Model, completion.Usage.TotalTokens); err != nil {
		logger.Warn("cache store failed", "error", err)
	}

	meta := map[string]any{"provider": string(completion.Provider), "model": completion.Model}
	s.metrics.incr(ctx, domain.MetricLLMCalls, 1, meta)
	s.metrics.incr(ctx, domain.MetricTokensUsed, int64(completion.Usage.TotalTokens), meta)

	return &formatOutcome{content: content, model: completion.Model}, nil
}

// fail records the failure on the job row and enqueues a fresh job while the
// accumulated retry count stays below the maximum.
func (s *FormattingService) fail(ctx context.Context, job *domain.Job, cause error, logger *slog.Logger) error {
	retryCount := job.RetryCount + 1

	if err := s.jobs.MarkFailed(ctx, job.ID, retryCount, cause.Error(), s.now().UTC()); err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	job.Status = domain.JobStatusFailed
	job.RetryCount = retryCount

	s.metrics.incr(ctx, domain.MetricFormatFailures, 1, map[string]any{"article_id": job.ArticleID.String()})

	if retryCount >= s.config.MaxRetries {
		logger.Error("formatting job failed permanently",
			"error", cause,
			"retry_count", retryCount,
			"max_retries", s.config.MaxRetries,
		)
		return nil
	}

	next := domain.NewJob(job.ArticleID, retryCount)
	if err := s.jobs.Create(ctx, next); err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}

	logger.Warn("formatting job failed, requeued",
		"error", cause,
		"retry_count", retryCount,
		"next_job_id", next.ID,
	)
	return nil
}

func (s *FormattingService) publish(ctx context.Context, job *domain.Job, outcome *formatOutcome, logger *slog.Logger) {
	if s.publisher == nil {
		return
	}

	event := &domain.JobEvent{
		Action:     domain.JobEventCompleted,
		JobID:      job.ID,
		ArticleID:  job.ArticleID,
		RetryCount: job.RetryCount,
		CacheHit:   outcome.cacheHit,
		ModelUsed:  outcome.model,
		Timestamp:  s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		logger.Warn("failed to publish job event", "error", err)
	}
}
