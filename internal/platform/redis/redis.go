// Package redis builds the shared Redis clients. The broker and result
// backend share one logical DB; the cache gets its own so invalidation
// sweeps never touch queued work.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/taqastore/storefront/internal/config"
)

// NewClient connects to the configured Redis instance for broker and
// result backend use.
func NewClient(cfg config.RedisConfig) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return goredis.NewClient(opts), nil
}

// NewCacheClient connects to the cache's logical DB on the same
// instance.
func NewCacheClient(cfg config.RedisConfig) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DB = cfg.CacheDB
	return goredis.NewClient(opts), nil
}

// Ping verifies connectivity with a bounded timeout.
func Ping(ctx context.Context, client *goredis.Client) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}
