// Package tasks holds the built-in background tasks every deployment
// ships with. Application-specific tasks register alongside these on
// the same worker registry.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/taqastore/storefront/internal/cache"
	"github.com/taqastore/storefront/internal/httputil"
	"github.com/taqastore/storefront/internal/queue"
	"github.com/taqastore/storefront/internal/worker"
	"github.com/taqastore/storefront/pkg/logger"
)

// Task names as they appear in envelopes and the beat schedule.
const (
	Heartbeat       = "maintenance.heartbeat"
	PruneResults    = "maintenance.prune_results"
	CacheInvalidate = "cache.invalidate"
	ProbeURL        = "probe.url"
)

// HeartbeatKey is the cache key the heartbeat beacon lands on.
const HeartbeatKey = "storefront:heartbeat"

// Deps carries what the built-in tasks need.
type Deps struct {
	Cache   cache.Store
	Results queue.ResultBackend
	// ResultTTL is the default retention horizon for prune runs.
	ResultTTL time.Duration
	// HTTP is the outbound client probe tasks use.
	HTTP *httputil.Client
	Log  *logger.Logger
}

// RegisterAll binds the built-in tasks to the registry.
func RegisterAll(registry *worker.Registry, deps Deps) error {
	if deps.Log == nil {
		deps.Log = logger.NewDefault("tasks")
	}
	if deps.HTTP == nil {
		deps.HTTP = httputil.NewClient(httputil.ClientConfig{})
	}
	if err := registry.Register(Heartbeat, heartbeatHandler(deps)); err != nil {
		return err
	}
	if err := registry.Register(PruneResults, pruneResultsHandler(deps)); err != nil {
		return err
	}
	if err := registry.Register(CacheInvalidate, cacheInvalidateHandler(deps)); err != nil {
		return err
	}
	if err := registry.Register(ProbeURL, probeURLHandler(deps)); err != nil {
		return err
	}
	return nil
}

// heartbeatHandler drops a liveness beacon into the cache so operators
// can tell a worker has recently processed work.
func heartbeatHandler(deps Deps) worker.Handler {
	return func(ctx context.Context, _ *queue.Task) (json.RawMessage, error) {
		host, _ := os.Hostname()
		beacon := struct {
			At   time.Time `json:"at"`
			Host string    `json:"host"`
		}{At: time.Now().UTC(), Host: host}

		if deps.Cache != nil {
			deps.Cache.Set(ctx, HeartbeatKey, beacon, 2*time.Minute)
		}
		return json.Marshal(beacon)
	}
}

// pruneResultsHandler removes terminal task results older than the
// retention horizon. The payload may override it with "older_than".
func pruneResultsHandler(deps Deps) worker.Handler {
	return func(ctx context.Context, task *queue.Task) (json.RawMessage, error) {
		if deps.Results == nil {
			return nil, fmt.Errorf("no result backend configured")
		}

		retention := deps.ResultTTL
		if retention <= 0 {
			retention = 24 * time.Hour
		}
		if raw := task.PayloadField("older_than"); raw != "" {
			parsed, err := time.ParseDuration(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid older_than %q: %w", raw, err)
			}
			retention = parsed
		}

		cutoff := time.Now().UTC().Add(-retention)
		pruned, err := deps.Results.PruneResults(ctx, cutoff)
		if err != nil {
			return nil, err
		}
		deps.Log.WithField("pruned", pruned).Info("result prune completed")
		return json.Marshal(map[string]int{"pruned": pruned})
	}
}

// cacheInvalidateHandler deletes cache keys matching the payload's
// pattern. Enqueued on demand through the ops API, never scheduled.
func cacheInvalidateHandler(deps Deps) worker.Handler {
	return func(ctx context.Context, task *queue.Task) (json.RawMessage, error) {
		pattern := task.PayloadField("pattern")
		if pattern == "" {
			return nil, fmt.Errorf("cache.invalidate requires a pattern field")
		}
		if deps.Cache == nil {
			return nil, fmt.Errorf("no cache configured")
		}

		deleted := deps.Cache.DeletePattern(ctx, pattern)
		deps.Log.WithFields(map[string]interface{}{
			"pattern": pattern,
			"deleted": deleted,
		}).Info("cache invalidation completed")
		return json.Marshal(map[string]int{"deleted": deleted})
	}
}

// probeURLHandler checks an external endpoint and fails the task when
// the answer is not what the payload expects, so uptime checks flow
// through the normal retry and result machinery.
func probeURLHandler(deps Deps) worker.Handler {
	return func(ctx context.Context, task *queue.Task) (json.RawMessage, error) {
		url := task.PayloadField("url")
		if url == "" {
			return nil, fmt.Errorf("probe.url requires a url field")
		}

		status, latency, err := deps.HTTP.Check(ctx, url)
		if err != nil {
			return nil, err
		}

		if want, ok := task.PayloadInt("expect_status"); ok {
			if status != int(want) {
				return nil, fmt.Errorf("probe %s returned %d, want %d", url, status, want)
			}
		} else if status >= 400 {
			return nil, fmt.Errorf("probe %s returned %d", url, status)
		}

		deps.Log.WithFields(map[string]interface{}{
			"url":     url,
			"status":  status,
			"latency": latency.String(),
		}).Info("url probe completed")
		return json.Marshal(map[string]interface{}{
			"url":        url,
			"status":     status,
			"latency_ms": latency.Milliseconds(),
		})
	}
}
