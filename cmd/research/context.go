package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"research_pipeline/internal/cache"
	"research_pipeline/internal/config"
	"research_pipeline/internal/llm"
	"research_pipeline/internal/publisher"
	"research_pipeline/internal/service"
	"research_pipeline/internal/storage/postgres"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
	logger     *slog.Logger
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		logger:     setupLogger("info"),
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		path := "config.yaml"
		if c.configFlag != nil && strings.TrimSpace(*c.configFlag) != "" {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = fmt.Errorf("load config: %w", err)
			return
		}
		c.config = cfg
		c.logger = setupLogger(cfg.LogLevel)
	})
	return c.config, c.configErr
}

func (c *commandContext) openDB(ctx context.Context) (*sqlx.DB, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	c.logger.Debug("connected to database", "host", cfg.Database.Host, "dbname", cfg.Database.DBName)
	return db, nil
}

func (c *commandContext) withDB(ctx context.Context, fn func(db *sqlx.DB) error) error {
	db, err := c.openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

func (c *commandContext) llmClient() (*llm.Client, *llm.Failover, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}

	llmCfg, fallback, err := buildLLMConfig(cfg.LLM)
	if err != nil {
		return nil, nil, err
	}

	logger := c.logger.With("component", "llm")
	client := llm.NewClient(llmCfg, logger)
	return client, llm.NewFailover(client, fallback, logger), nil
}

// buildLLMConfig maps the YAML section onto llm types, rejecting unknown
// provider names and tiers.
func buildLLMConfig(cfg config.LLMConfig) (llm.Config, []llm.Provider, error) {
	primary, err := llm.ParseProvider(cfg.Provider)
	if err != nil {
		return llm.Config{}, nil, err
	}
	tier, err := llm.ParseTier(cfg.Tier)
	if err != nil {
		return llm.Config{}, nil, err
	}

	fallback := make([]llm.Provider, 0, len(cfg.Fallback))
	for _, name := range cfg.Fallback {
		p, err := llm.ParseProvider(name)
		if err != nil {
			return llm.Config{}, nil, fmt.Errorf("fallback: %w", err)
		}
		fallback = append(fallback, p)
	}

	providers := make(map[llm.Provider]llm.Credentials, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		p, err := llm.ParseProvider(name)
		if err != nil {
			return llm.Config{}, nil, fmt.Errorf("providers: %w", err)
		}
		providers[p] = llm.Credentials{
			APIKey:      pc.APIKey,
			BaseURL:     pc.BaseURL,
			Model:       pc.Model,
			MaxTokens:   pc.MaxTokens,
			Temperature: pc.Temperature,
		}
	}

	return llm.Config{
		Provider:    primary,
		Tier:        tier,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout,
		Providers:   providers,
	}, fallback, nil
}

// resultCache builds the Postgres-backed cache, fronted by Redis when enabled.
// The returned close function releases the Redis client.
func (c *commandContext) resultCache(ctx context.Context, db *sqlx.DB) (*cache.Cache, func(), error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}

	logger := c.logger.With("component", "cache")
	store := postgres.NewFormattedResultStore(db)

	if !cfg.Redis.Enabled {
		return cache.New(store, nil, logger), func() {}, nil
	}

	front, err := cache.NewRedisFront(ctx, cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		TTL:      cfg.Redis.TTL,
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Info("redis cache front enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.TTL)
	return cache.New(store, front, logger), func() { _ = front.Close() }, nil
}

// publisher returns nil when the broker is disabled.
func (c *commandContext) publisher() (service.Publisher, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.RabbitMQ.Enabled {
		return nil, nil
	}

	pub, err := publisher.NewRabbitMQ(publisher.Config{
		URL:        cfg.RabbitMQ.URL,
		Exchange:   cfg.RabbitMQ.Exchange,
		RoutingKey: cfg.RabbitMQ.RoutingKey,
		QueueName:  cfg.RabbitMQ.QueueName,
	}, c.logger)
	if err != nil {
		return nil, err
	}
	return pub, nil
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stderr, opts)
	return slog.New(handler)
}
