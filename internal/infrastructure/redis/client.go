package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/checkout-reconciler/internal/infrastructure/config"
	"github.com/cassiomorais/checkout-reconciler/pkg/retry"
	"github.com/redis/go-redis/v9"
)

func clientOptions(cfg *config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:         cfg.RedisAddr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
	}
}

// NewClient connects to Redis and pings it with backoff until it answers
// or cfg.ConnectRetries attempts have failed.
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(clientOptions(cfg))

	attempts := uint(5)
	if cfg.ConnectRetries > 0 {
		attempts = uint(cfg.ConnectRetries)
	}
	delay := time.Second
	if cfg.ConnectRetryDelay > 0 {
		delay = cfg.ConnectRetryDelay
	}

	err := retry.Do(ctx, retry.Config{
		MaxAttempts:  attempts,
		InitialDelay: delay,
		MaxDelay:     10 * delay,
	}, func() error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("redis at %s unreachable after %d attempts: %w", cfg.RedisAddr(), attempts, err)
	}
	return client, nil
}
