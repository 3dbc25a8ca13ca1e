package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// SystemInstruction is sent with every completion request.
const SystemInstruction = "You are a research formatting assistant. Preserve all original text exactly. " +
	"Do not summarize, shorten, paraphrase or omit any content. Only add structure and formatting."

const (
	healthPrompt    = "Say OK"
	healthMaxTokens = 5
	charsPerToken   = 4
)

// Credentials are the per-provider settings supplied by configuration.
type Credentials struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
}

type Config struct {
	Provider    Provider
	Tier        Tier
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	Providers   map[Provider]Credentials
}

// Target is an immutable, fully resolved per-call configuration.
type Target struct {
	Provider    Provider
	Tier        Tier
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64

	apiKey  string
	backend backend
}

// Options override target defaults for a single call. Zero values keep the default.
type Options struct {
	MaxTokens   int
	Temperature *float64
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type Completion struct {
	Content  string   `json:"content"`
	Usage    Usage    `json:"usage"`
	Model    string   `json:"model"`
	Provider Provider `json:"provider"`
}

// Client resolves targets and performs completions. It holds no mutable
// provider state: every call receives its Target explicitly.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

type ClientOption func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func NewClient(cfg Config, logger *slog.Logger, opts ...ClientOption) *Client {
	if cfg.Tier == "" {
		cfg.Tier = TierDefault
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	providers := make(map[Provider]Credentials, len(cfg.Providers))
	for p, creds := range cfg.Providers {
		creds.APIKey = strings.TrimSpace(creds.APIKey)
		creds.BaseURL = strings.TrimSpace(creds.BaseURL)
		creds.Model = strings.TrimSpace(creds.Model)
		providers[p] = creds
	}
	cfg.Providers = providers

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Primary returns the configured primary provider.
func (c *Client) Primary() Provider {
	return c.cfg.Provider
}

// Tier returns the configured model tier.
func (c *Client) Tier() Tier {
	return c.cfg.Tier
}

// IsEnabled reports whether a credential is configured for p.
func (c *Client) IsEnabled(p Provider) bool {
	return c.cfg.Providers[p].APIKey != ""
}

// Target resolves provider and tier into a call configuration. It fails with
// a ConfigurationError when p is unknown or has no credential.
func (c *Client) Target(p Provider, tier Tier) (Target, error) {
	entry, ok := registry[p]
	if !ok {
		return Target{}, &ConfigurationError{Provider: p, Reason: "unknown provider"}
	}
	model, err := ResolveModel(p, tier)
	if err != nil {
		return Target{}, err
	}

	creds := c.cfg.Providers[p]
	if creds.APIKey == "" {
		return Target{}, &ConfigurationError{Provider: p, Reason: "no api key configured"}
	}
	if creds.Model != "" && tier == TierDefault {
		model = creds.Model
	}

	t := Target{
		Provider:    p,
		Tier:        tier,
		Model:       model,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		apiKey:      creds.APIKey,
		backend:     entry.backend,
	}
	if creds.MaxTokens > 0 {
		t.MaxTokens = creds.MaxTokens
	}
	if creds.Temperature != 0 {
		t.Temperature = creds.Temperature
	}
	if b, ok := entry.backend.(openAICompatible); ok {
		t.BaseURL = b.baseURL
		if creds.BaseURL != "" {
			t.BaseURL = creds.BaseURL
			t.backend = openAICompatible{baseURL: creds.BaseURL}
		}
	}
	return t, nil
}

// PrimaryTarget resolves the configured primary provider and tier.
func (c *Client) PrimaryTarget() (Target, error) {
	return c.Target(c.cfg.Provider, c.cfg.Tier)
}

// Complete sends prompt as the user message to the target provider.
func (c *Client) Complete(ctx context.Context, t Target, prompt string, opts Options) (*Completion, error) {
	if t.apiKey == "" || t.backend == nil {
		return nil, &ConfigurationError{Provider: t.Provider, Reason: "no api key configured"}
	}

	switch b := t.backend.(type) {
	case openAICompatible:
		return c.completeOpenAI(ctx, b, t, prompt, opts)
	case unimplemented:
		return nil, &ProviderError{Provider: t.Provider, Message: b.reason}
	default:
		return nil, &ProviderError{Provider: t.Provider, Message: fmt.Sprintf("unsupported backend %T", b)}
	}
}

func (c *Client) completeOpenAI(ctx context.Context, b openAICompatible, t Target, prompt string, opts Options) (*Completion, error) {
	maxTokens := t.MaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}
	temperature := t.Temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}

	client := openai.NewClient(
		option.WithAPIKey(t.apiKey),
		option.WithBaseURL(b.baseURL),
		option.WithHTTPClient(c.httpClient),
		option.WithMaxRetries(0),
	)

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(t.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemInstruction),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(temperature),
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}

	c.logger.Debug("sending completion request",
		"provider", t.Provider,
		"model", t.Model,
		"max_tokens", maxTokens,
		"estimated_input_tokens", EstimateTokens(prompt),
	)

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		perr := &ProviderError{Provider: t.Provider, Message: err.Error(), Err: err}
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			perr.StatusCode = apiErr.StatusCode
		}
		return nil, perr
	}
	if len(resp.Choices) == 0 {
		return nil, &ProviderError{Provider: t.Provider, Message: "empty response: no choices"}
	}

	model := resp.Model
	if model == "" {
		model = t.Model
	}

	return &Completion{
		Content: resp.Choices[0].Message.Content,
		Usage: Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
		Model:    model,
		Provider: t.Provider,
	}, nil
}

// EstimateTokens is a character-count heuristic for pre-flight sizing only.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + charsPerToken - 1) / charsPerToken
}

type HealthState string

const (
	HealthHealthy      HealthState = "healthy"
	HealthUnhealthy    HealthState = "unhealthy"
	HealthUnconfigured HealthState = "unconfigured"
)

type HealthStatus struct {
	Provider Provider      `json:"provider"`
	Status   HealthState   `json:"status"`
	Model    string        `json:"model,omitempty"`
	Latency  time.Duration `json:"latency,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// HealthCheck issues a minimal completion against p using the configured tier.
func (c *Client) HealthCheck(ctx context.Context, p Provider) HealthStatus {
	status := HealthStatus{Provider: p}

	t, err := c.Target(p, c.cfg.Tier)
	if err != nil {
		var cfgErr *ConfigurationError
		if errors.As(err, &cfgErr) && c.cfg.Providers[p].APIKey == "" {
			status.Status = HealthUnconfigured
		} else {
			status.Status = HealthUnhealthy
		}
		status.Error = err.Error()
		return status
	}
	status.Model = t.Model

	start := time.Now()
	_, err = c.Complete(ctx, t, healthPrompt, Options{MaxTokens: healthMaxTokens})
	status.Latency = time.Since(start)
	if err != nil {
		status.Status = HealthUnhealthy
		status.Error = err.Error()
		return status
	}

	status.Status = HealthHealthy
	return status
}
