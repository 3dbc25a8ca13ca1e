package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"research_pipeline/internal/domain"
)

const keyPrefix = "research:formatted:"

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisFront keeps recently used entries in Redis with a TTL.
type RedisFront struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisFront(ctx context.Context, cfg RedisConfig) (*RedisFront, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisFront{client: client, ttl: cfg.TTL}, nil
}

func (r *RedisFront) Get(ctx context.Context, hash string) (*domain.FormattedResult, bool, error) {
	data, err := r.client.Get(ctx, keyPrefix+hash).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var res domain.FormattedResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, false, fmt.Errorf("decode cached result: %w", err)
	}
	if res.ContentHash != hash {
		return nil, false, nil
	}
	return &res, true, nil
}

func (r *RedisFront) Set(ctx context.Context, res *domain.FormattedResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode cached result: %w", err)
	}
	if err := r.client.Set(ctx, keyPrefix+res.ContentHash, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *RedisFront) Close() error {
	return r.client.Close()
}
