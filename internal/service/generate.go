package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"research_pipeline/internal/domain"
	"research_pipeline/internal/llm"
)

var ErrEmptyPrompt = errors.New("prompt is required")

// Generator is the synchronous generation path used by interactive callers.
type Generator struct {
	completer Completer
	metrics   *metricsRecorder
	logger    *slog.Logger
}

func NewGenerator(completer Completer, metrics MetricStore, logger *slog.Logger) *Generator {
	logger = logger.With("component", "generator")
	return &Generator{
		completer: completer,
		metrics:   &metricsRecorder{store: metrics, logger: logger, now: time.Now},
		logger:    logger,
	}
}

func (g *Generator) Generate(ctx context.Context, prompt string, opts llm.Options) (*llm.Completion, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	start := time.Now()
	completion, err := g.completer.CompleteWithFailover(ctx, prompt, opts)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	meta := map[string]any{"provider": string(completion.Provider), "model": completion.Model}
	g.metrics.incr(ctx, domain.MetricLLMCalls, 1, meta)
	g.metrics.incr(ctx, domain.MetricTokensUsed, int64(completion.Usage.TotalTokens), meta)

	g.logger.Info("generation completed",
		"provider", completion.Provider,
		"model", completion.Model,
		"total_tokens", completion.Usage.TotalTokens,
		"duration", time.Since(start),
	)
	return completion, nil
}
