// Package storage mirrors dashboard snapshots into Redis so other processes
// can read the latest one without touching the chain.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gtrade-dashboard/internal/config"
	"github.com/gtrade-dashboard/internal/logging"
	"github.com/gtrade-dashboard/internal/retry"
	"github.com/redis/go-redis/v9"
)

// RedisCache wraps the Redis client
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis, retrying the initial ping with backoff
func NewRedisCache(ctx context.Context, cfg *config.RedisConfig, retryCfg *retry.Config) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.MaxConnections,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	})

	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}
	if retryCfg.Retryable == nil {
		cp := *retryCfg
		cp.Retryable = isRetryableConnectError
		retryCfg = &cp
	}

	logger := logging.FromContext(ctx).WithComponent("redis")
	err := retry.Do(logging.WithLogger(ctx, logger), retryCfg, func(ctx context.Context, _ int) error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return client.Ping(pingCtx).Err()
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// NewRedisCacheFromClient wraps an existing client
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// isRetryableConnectError rejects auth and config errors that no retry will fix
func isRetryableConnectError(err error) bool {
	msg := err.Error()
	for _, fatal := range []string{"NOAUTH", "WRONGPASS", "invalid password", "ERR invalid DB index"} {
		if strings.Contains(msg, fatal) {
			return false
		}
	}
	return true
}

// Close closes the Redis connection
func (r *RedisCache) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Client returns the underlying Redis client
func (r *RedisCache) Client() *redis.Client {
	return r.client
}

// Ping checks if Redis is reachable
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
