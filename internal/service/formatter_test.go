package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"research_pipeline/internal/domain"
	"research_pipeline/internal/llm"
	"research_pipeline/internal/service/mocks"
)

type FormattingServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	articles  *mocks.MockArticleStore
	jobs      *mocks.MockJobStore
	cache     *mocks.MockResultCache
	completer *mocks.MockCompleter
	metrics   *mocks.MockMetricStore
	publisher *mocks.MockPublisher

	service *FormattingService
	logger  *slog.Logger

	ctx     context.Context
	article *domain.Article
	job     *domain.Job
}

func (s *FormattingServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.articles = mocks.NewMockArticleStore(s.ctrl)
	s.jobs = mocks.NewMockJobStore(s.ctrl)
	s.cache = mocks.NewMockResultCache(s.ctrl)
	s.completer = mocks.NewMockCompleter(s.ctrl)
	s.metrics = mocks.NewMockMetricStore(s.ctrl)
	s.publisher = mocks.NewMockPublisher(s.ctrl)

	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	s.service = NewFormattingService(
		s.articles,
		s.jobs,
		s.cache,
		s.completer,
		s.metrics,
		s.publisher,
		s.logger,
		FormatterConfig{MaxRetries: 3},
	)

	s.ctx = context.Background()
	s.article = &domain.Article{
		ID:          uuid.New(),
		Title:       "Tide pools",
		Category:    "science",
		RawContent:  "Hello world",
		ContentHash: domain.ContentHash("Hello world"),
	}
	s.job = domain.NewJob(s.article.ID, 0)
}

func (s *FormattingServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestFormattingServiceTestSuite(t *testing.T) {
	suite.Run(t, new(FormattingServiceTestSuite))
}

func (s *FormattingServiceTestSuite) expectClaim() {
	s.jobs.EXPECT().NextQueued(s.ctx).Return(s.job, nil)
	s.jobs.EXPECT().MarkProcessing(s.ctx, s.job.ID, gomock.Any()).Return(true, nil)
}

func (s *FormattingServiceTestSuite) expectMetric(name string, delta int64) *gomock.Call {
	return s.metrics.EXPECT().Increment(s.ctx, name, gomock.Any(), delta, gomock.Any()).Return(nil)
}

func (s *FormattingServiceTestSuite) completion(content string) *llm.Completion {
	return &llm.Completion{
		Content:  content,
		Usage:    llm.Usage{InputTokens: 12, OutputTokens: 8, TotalTokens: 20},
		Model:    "gpt-4o",
		Provider: llm.ProviderOpenAI,
	}
}

func (s *FormattingServiceTestSuite) TestProcessNext_EmptyQueue() {
	s.jobs.EXPECT().NextQueued(s.ctx).Return(nil, nil)

	processed, err := s.service.ProcessNext(s.ctx)

	s.NoError(err)
	s.False(processed)
}

func (s *FormattingServiceTestSuite) TestProcessNext_QueueError() {
	s.jobs.EXPECT().NextQueued(s.ctx).Return(nil, errors.New("connection refused"))

	processed, err := s.service.ProcessNext(s.ctx)

	s.Error(err)
	s.Contains(err.Error(), "connection refused")
	s.False(processed)
}

func (s *FormattingServiceTestSuite) TestProcessNext_ClaimLost() {
	s.jobs.EXPECT().NextQueued(s.ctx).Return(s.job, nil)
	s.jobs.EXPECT().MarkProcessing(s.ctx, s.job.ID, gomock.Any()).Return(false, nil)

	processed, err := s.service.ProcessNext(s.ctx)

	s.NoError(err)
	s.True(processed)
}

func (s *FormattingServiceTestSuite) TestProcessNext_CacheMiss() {
	s.expectClaim()
	s.articles.EXPECT().GetByID(s.ctx, s.article.ID).Return(s.article, nil)
	s.cache.EXPECT().Lookup(s.ctx, s.article.ContentHash).Return(nil, false, nil)
	s.expectMetric(domain.MetricCacheMisses, 1)

	s.completer.EXPECT().CompleteWithFailover(s.ctx, BuildFormattingPrompt(s.article), llm.Options{}).
		Return(s.completion(`{"formattedContent": "# Hello\n\nworld"}`), nil)

	s.cache.EXPECT().Store(s.ctx, s.article.ContentHash, "# Hello\n\nworld", "gpt-4o", 20).Return(nil)
	s.expectMetric(domain.MetricLLMCalls, 1)
	s.expectMetric(domain.MetricTokensUsed, 20)

	s.articles.EXPECT().UpdateFormatted(s.ctx, s.article.ID, "# Hello\n\nworld").Return(nil)
	s.jobs.EXPECT().MarkCompleted(s.ctx, s.job.ID, gomock.Any()).Return(nil)

	var event *domain.JobEvent
	s.publisher.EXPECT().Publish(s.ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, e *domain.JobEvent) error {
			event = e
			return nil
		},
	)

	processed, err := s.service.ProcessNext(s.ctx)

	s.NoError(err)
	s.True(processed)
	s.Require().NotNil(event)
	s.Equal(domain.JobEventCompleted, event.Action)
	s.Equal(s.job.ID, event.JobID)
	s.Equal(s.article.ID, event.ArticleID)
	s.False(event.CacheHit)
	s.Equal("gpt-4o", event.ModelUsed)
}

func (s *FormattingServiceTestSuite) TestProcessNext_CacheHit() {
	s.expectClaim()
	s.articles.EXPECT().GetByID(s.ctx, s.article.ID).Return(s.article, nil)
	s.cache.EXPECT().Lookup(s.ctx, s.article.ContentHash).Return(&domain.FormattedResult{
		ContentHash:     s.article.ContentHash,
		FormattedOutput: "# Hello\n\nworld",
		ModelUsed:       "gpt-4o",
		TokenCount:      20,
	}, true, nil)
	s.expectMetric(domain.MetricCacheHits, 1)
	s.cache.EXPECT().Touch(s.ctx, s.article.ContentHash).Return(nil)

	s.articles.EXPECT().UpdateFormatted(s.ctx, s.article.ID, "# Hello\n\nworld").Return(nil)
	s.jobs.EXPECT().MarkCompleted(s.ctx, s.job.ID, gomock.Any()).Return(nil)
	s.publisher.EXPECT().Publish(s.ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, e *domain.JobEvent) error {
			s.True(e.CacheHit)
			return nil
		},
	)

	processed, err := s.service.ProcessNext(s.ctx)

	s.NoError(err)
	s.True(processed)
}

func (s *FormattingServiceTestSuite) TestProcessNext_HashComputedWhenMissing() {
	s.article.ContentHash = ""
	hash := domain.ContentHash(s.article.RawContent)

	s.expectClaim()
	s.articles.EXPECT().GetByID(s.ctx, s.article.ID).Return(s.article, nil)
	s.cache.EXPECT().Lookup(s.ctx, hash).Return(&domain.FormattedResult{FormattedOutput: "cached"}, true, nil)
	s.expectMetric(domain.MetricCacheHits, 1)
	s.cache.EXPECT().Touch(s.ctx, hash).Return(nil)
	s.articles.EXPECT().UpdateFormatted(s.ctx, s.article.ID, "cached").Return(nil)
	s.jobs.EXPECT().MarkCompleted(s.ctx, s.job.ID, gomock.Any()).Return(nil)
	s.publisher.EXPECT().Publish(s.ctx, gomock.Any()).Return(nil)

	_, err := s.service.ProcessNext(s.ctx)

	s.NoError(err)
}

func (s *FormattingServiceTestSuite) TestProcessNext_ParseFallbackUsesRawText() {
	s.expectClaim()
	s.articles.EXPECT().GetByID(s.ctx, s.article.ID).Return(s.article, nil)
	s.cache.EXPECT().Lookup(s.ctx, s.article.ContentHash).Return(nil, false, nil)
	s.expectMetric(domain.MetricCacheMisses, 1)
	s.completer.EXPECT().CompleteWithFailover(s.ctx, gomock.Any(), llm.Options{}).
		Return(s.completion("# Hello\n\nworld"), nil)
	s.cache.EXPECT().Store(s.ctx, s.article.ContentHash, "# Hello\n\nworld", "gpt-4o", 20).Return(nil)
	s.expectMetric(domain.MetricLLMCalls, 1)
	s.expectMetric(domain.MetricTokensUsed, 20)
	s.articles.EXPECT().UpdateFormatted(s.ctx, s.article.ID, "# Hello\n\nworld").Return(nil)
	s.jobs.EXPECT().MarkCompleted(s.ctx, s.job.ID, gomock.Any()).Return(nil)
	s.publisher.EXPECT().Publish(s.ctx, gomock.Any()).Return(nil)

	processed, err := s.service.ProcessNext(s.ctx)

	s.NoError(err)
	s.True(processed)
}

func (s *FormattingServiceTestSuite) TestProcessNext_CacheAndMetricErrorsAreSwallowed() {
	s.expectClaim()
	s.articles.EXPECT().GetByID(s.ctx, s.article.ID).Return(s.article, nil)
	s.cache.EXPECT().Lookup(s.ctx, s.article.ContentHash).Return(nil, false, errors.New("cache down"))
	s.metrics.EXPECT().Increment(s.ctx, gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(errors.New("metrics down")).Times(3)
	s.completer.EXPECT().CompleteWithFailover(s.ctx, gomock.Any(), llm.Options{}).
		Return(s.completion(`{"formattedContent": "done"}`), nil)
	s.cache.EXPECT().Store(s.ctx, s.article.ContentHash, "done", "gpt-4o", 20).Return(errors.New("cache down"))
	s.articles.EXPECT().UpdateFormatted(s.ctx, s.article.ID, "done").Return(nil)
	s.jobs.EXPECT().MarkCompleted(s.ctx, s.job.ID, gomock.Any()).Return(nil)
	s.publisher.EXPECT().Publish(s.ctx, gomock.Any()).Return(errors.New("broker down"))

	processed, err := s.service.ProcessNext(s.ctx)

	s.NoError(err)
	s.True(processed)
}

func (s *FormattingServiceTestSuite) TestProcessNext_ArticleNotFoundRequeues() {
	s.expectClaim()
	s.articles.EXPECT().GetByID(s.ctx, s.article.ID).Return(nil, domain.ErrArticleNotFound)
	s.jobs.EXPECT().MarkFailed(s.ctx, s.job.ID, 1, gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ uuid.UUID, _ int, message string, _ time.Time) error {
			s.Contains(message, domain.ErrArticleNotFound.Error())
			return nil
		},
	)
	s.expectMetric(domain.MetricFormatFailures, 1)

	var requeued *domain.Job
	s.jobs.EXPECT().Create(s.ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, j *domain.Job) error {
			requeued = j
			return nil
		},
	)

	processed, err := s.service.ProcessNext(s.ctx)

	s.NoError(err)
	s.True(processed)
	s.Require().NotNil(requeued)
	s.NotEqual(s.job.ID, requeued.ID)
	s.Equal(s.article.ID, requeued.ArticleID)
	s.Equal(domain.JobStatusQueued, requeued.Status)
	s.Equal(1, requeued.RetryCount)
}

func (s *FormattingServiceTestSuite) TestProcessNext_TerminalFailure() {
	s.job.RetryCount = 2

	s.expectClaim()
	s.articles.EXPECT().GetByID(s.ctx, s.article.ID).Return(s.article, nil)
	s.cache.EXPECT().Lookup(s.ctx, s.article.ContentHash).Return(nil, false, nil)
	s.expectMetric(domain.MetricCacheMisses, 1)
	s.completer.EXPECT().CompleteWithFailover(s.ctx, gomock.Any(), llm.Options{}).Return(nil,
		&llm.FailoverExhaustedError{
			Attempted: []llm.Provider{llm.ProviderOpenAI},
			Last:      &llm.ProviderError{Provider: llm.ProviderOpenAI, StatusCode: 503, Message: "overloaded"},
		})
	s.jobs.EXPECT().MarkFailed(s.ctx, s.job.ID, 3, gomock.Any(), gomock.Any()).Return(nil)
	s.expectMetric(domain.MetricFormatFailures, 1)

	processed, err := s.service.ProcessNext(s.ctx)

	s.NoError(err)
	s.True(processed)
}

func (s *FormattingServiceTestSuite) TestProcessNext_UpdateFailureFailsJob() {
	s.expectClaim()
	s.articles.EXPECT().GetByID(s.ctx, s.article.ID).Return(s.article, nil)
	s.cache.EXPECT().Lookup(s.ctx, s.article.ContentHash).Return(&domain.FormattedResult{FormattedOutput: "x"}, true, nil)
	s.expectMetric(domain.MetricCacheHits, 1)
	s.cache.EXPECT().Touch(s.ctx, s.article.ContentHash).Return(nil)
	s.articles.EXPECT().UpdateFormatted(s.ctx, s.article.ID, "x").Return(errors.New("deadlock"))
	s.jobs.EXPECT().MarkFailed(s.ctx, s.job.ID, 1, gomock.Any(), gomock.Any()).Return(nil)
	s.expectMetric(domain.MetricFormatFailures, 1)
	s.jobs.EXPECT().Create(s.ctx, gomock.Any()).Return(nil)

	processed, err := s.service.ProcessNext(s.ctx)

	s.NoError(err)
	s.True(processed)
}

func (s *FormattingServiceTestSuite) TestProcessNext_MarkFailedErrorIsReturned() {
	s.expectClaim()
	s.articles.EXPECT().GetByID(s.ctx, s.article.ID).Return(nil, domain.ErrArticleNotFound)
	s.jobs.EXPECT().MarkFailed(s.ctx, s.job.ID, 1, gomock.Any(), gomock.Any()).Return(errors.New("db gone"))

	processed, err := s.service.ProcessNext(s.ctx)

	s.Error(err)
	s.Contains(err.Error(), "mark job failed")
	s.True(processed)
}

func (s *FormattingServiceTestSuite) TestProcessNext_NilPublisher() {
	svc := NewFormattingService(s.articles, s.jobs, s.cache, s.completer, s.metrics, nil, s.logger,
		FormatterConfig{MaxRetries: 3})

	s.expectClaim()
	s.articles.EXPECT().GetByID(s.ctx, s.article.ID).Return(s.article, nil)
	s.cache.EXPECT().Lookup(s.ctx, s.article.ContentHash).Return(&domain.FormattedResult{FormattedOutput: "x"}, true, nil)
	s.expectMetric(domain.MetricCacheHits, 1)
	s.cache.EXPECT().Touch(s.ctx, s.article.ContentHash).Return(nil)
	s.articles.EXPECT().UpdateFormatted(s.ctx, s.article.ID, "x").Return(nil)
	s.jobs.EXPECT().MarkCompleted(s.ctx, s.job.ID, gomock.Any()).Return(nil)

	processed, err := svc.ProcessNext(s.ctx)

	s.NoError(err)
	s.True(processed)
}
