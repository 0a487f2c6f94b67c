// Package cache provides a fail-silent JSON cache. A broken or absent
// cache degrades to misses; it never takes a request or task down with
// it. Callers treat every lookup as optional.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/taqastore/storefront/pkg/logger"
)

// Store is the cache contract shared by the Redis and in-memory
// implementations. Get reports a hit; write and delete operations
// swallow backend errors after logging them.
type Store interface {
	// Get unmarshals the cached value into dest and reports a hit.
	Get(ctx context.Context, key string, dest interface{}) bool
	// Set stores the value. ttl <= 0 uses the configured default.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)
	// Delete removes the given keys.
	Delete(ctx context.Context, keys ...string)
	// DeletePattern removes keys matching a Redis-style glob pattern
	// and reports how many were removed.
	DeletePattern(ctx context.Context, pattern string) int
	// Ping probes the backend for readiness checks. This is the one
	// operation that surfaces errors.
	Ping(ctx context.Context) error
}

// Redis is the production Store backed by the cache's logical DB.
type Redis struct {
	client     *goredis.Client
	defaultTTL time.Duration
	log        *logger.Logger
}

// NewRedis wraps an existing Redis client. defaultTTL applies when
// callers pass a non-positive TTL.
func NewRedis(client *goredis.Client, defaultTTL time.Duration, log *logger.Logger) *Redis {
	if log == nil {
		log = logger.NewDefault("cache")
	}
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &Redis{client: client, defaultTTL: defaultTTL, log: log}
}

func (c *Redis) Get(ctx context.Context, key string, dest interface{}) bool {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.log.WithError(err).WithField("key", key).Debug("cache get failed")
		}
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache entry undecodable, dropping")
		c.Delete(ctx, key)
		return false
	}
	return true
}

func (c *Redis) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache value not serializable")
		return
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		c.log.WithError(err).WithField("key", key).Debug("cache set failed")
	}
}

func (c *Redis) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.log.WithError(err).Debug("cache delete failed")
	}
}

func (c *Redis) DeletePattern(ctx context.Context, pattern string) int {
	deleted := 0
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			c.log.WithError(err).WithField("pattern", pattern).Debug("cache pattern delete failed")
			return deleted
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		c.log.WithError(err).WithField("pattern", pattern).Debug("cache pattern scan failed")
	}
	return deleted
}

func (c *Redis) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
