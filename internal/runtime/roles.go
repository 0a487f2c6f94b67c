package runtime

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/taqastore/storefront/internal/cache"
	"github.com/taqastore/storefront/internal/platform/database"
	redisplatform "github.com/taqastore/storefront/internal/platform/redis"
	"github.com/taqastore/storefront/internal/queue"
	"github.com/taqastore/storefront/internal/scheduler"
	"github.com/taqastore/storefront/internal/server"
	"github.com/taqastore/storefront/internal/tasks"
	"github.com/taqastore/storefront/internal/worker"
)

// stopTimeout bounds the drain of in-flight work after the run context
// is cancelled, matching the grace period container platforms give a
// terminating process.
const stopTimeout = 30 * time.Second

// backends bundles the Redis-backed collaborators every role shares.
type backends struct {
	client      *goredis.Client
	cacheClient *goredis.Client
	broker      queue.Broker
	results     queue.ResultBackend
	store       cache.Store
	registry    *worker.Registry
}

func (b *backends) Close() {
	if b.cacheClient != nil {
		b.cacheClient.Close()
	}
	if b.client != nil {
		b.client.Close()
	}
}

func (r *Runtime) openBackends() (*backends, error) {
	client, err := redisplatform.NewClient(r.cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("redis client: %w", err)
	}
	cacheClient, err := redisplatform.NewCacheClient(r.cfg.Redis)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("redis cache client: %w", err)
	}

	b := &backends{
		client:      client,
		cacheClient: cacheClient,
		broker:      queue.NewRedisBroker(client),
		results:     queue.NewRedisResults(client, r.cfg.Redis.ResultTTL),
		store:       cache.NewRedis(cacheClient, r.cfg.Redis.CacheTTL, r.log),
		registry:    worker.NewRegistry(),
	}
	if err := tasks.RegisterAll(b.registry, tasks.Deps{
		Cache:     b.store,
		Results:   b.results,
		ResultTTL: r.cfg.Redis.ResultTTL,
		Log:       r.log,
	}); err != nil {
		b.Close()
		return nil, fmt.Errorf("register tasks: %w", err)
	}
	return b, nil
}

// runWeb serves HTTP until the context is cancelled. The database is
// optional: when it is configured but unreachable the server still
// comes up and reports the failure through its readiness probe.
func (r *Runtime) runWeb(ctx context.Context) error {
	b, err := r.openBackends()
	if err != nil {
		return err
	}
	defer b.Close()

	probes := map[string]server.Probe{
		"redis": func(ctx context.Context) error {
			return redisplatform.Ping(ctx, b.client)
		},
	}
	if r.cfg.Database.Configured() {
		db, err := database.Open(ctx, r.cfg.Database)
		if err != nil {
			r.log.WithError(err).Warn("database unavailable, serving without it")
			openErr := err
			probes["database"] = func(context.Context) error { return openErr }
		} else {
			defer db.Close()
			probes["database"] = func(ctx context.Context) error {
				return database.Health(ctx, db)
			}
		}
	}

	router := server.NewRouter(server.Deps{
		Config:      r.cfg,
		Log:         r.log,
		Broker:      b.broker,
		Results:     b.results,
		Registry:    b.registry,
		Schedule:    scheduler.LoadScheduleOrDefault(r.cfg.Scheduler.SchedulePath),
		ReadyProbes: probes,
		StartedAt:   time.Now().UTC(),
	})
	srv := server.New(r.cfg.Server, r.log, router)
	return srv.Run(ctx)
}

// runWorker consumes the configured queue until the context is
// cancelled, then drains in-flight tasks.
func (r *Runtime) runWorker(ctx context.Context) error {
	b, err := r.openBackends()
	if err != nil {
		return err
	}
	defer b.Close()

	pool := worker.NewPool(b.broker, b.results, b.registry, r.cfg.Worker, r.log)
	if err := pool.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return pool.Stop(stopCtx)
}

// runBeat fires the schedule until the context is cancelled.
func (r *Runtime) runBeat(ctx context.Context) error {
	b, err := r.openBackends()
	if err != nil {
		return err
	}
	defer b.Close()

	schedule := scheduler.LoadScheduleOrDefault(r.cfg.Scheduler.SchedulePath)
	beat := scheduler.NewBeat(b.broker, b.results, schedule, r.cfg.Worker.Queue, r.log)
	if err := beat.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return beat.Stop(stopCtx)
}
