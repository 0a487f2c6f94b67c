// Package runtime dispatches one process into exactly one of the three
// deployable roles: web, worker or beat. A single image serves all
// three; the role is picked at deploy time through configuration.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/taqastore/storefront/internal/config"
	"github.com/taqastore/storefront/internal/metrics"
	"github.com/taqastore/storefront/internal/platform/database"
	"github.com/taqastore/storefront/pkg/logger"
)

// Role selects which long-running process this instance runs.
type Role string

const (
	RoleWeb    Role = "web"
	RoleWorker Role = "worker"
	RoleBeat   Role = "beat"
)

// ErrUnknownRole is returned for a role outside {web, worker, beat}.
var ErrUnknownRole = errors.New("unknown role")

// ParseRole validates a raw role value. Matching is exact: no trimming,
// no case folding, so a misspelled deployment fails loudly instead of
// guessing.
func ParseRole(raw string) (Role, error) {
	switch role := Role(raw); role {
	case RoleWeb, RoleWorker, RoleBeat:
		return role, nil
	}
	if raw == "" {
		return "", fmt.Errorf("%w: role not set", ErrUnknownRole)
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
}

// RunFunc runs one role until its context is cancelled or the role
// fails.
type RunFunc func(ctx context.Context) error

// Migrator applies pending schema migrations and reports what happened.
type Migrator func() database.MigrationResult

// Runtime holds the dispatch wiring for one process. All inputs are
// explicit: configuration is passed in by the caller and nothing here
// reads the environment, which keeps the launch decision testable.
type Runtime struct {
	cfg     *config.Config
	log     *logger.Logger
	out     io.Writer
	migrate Migrator
	web     RunFunc
	worker  RunFunc
	beat    RunFunc
}

// Option customizes a Runtime, mainly so tests can observe launch
// decisions without starting real servers.
type Option func(*Runtime)

// WithStatusWriter redirects the startup status lines.
func WithStatusWriter(w io.Writer) Option {
	return func(r *Runtime) {
		if w != nil {
			r.out = w
		}
	}
}

// WithMigrator replaces the migration step.
func WithMigrator(m Migrator) Option {
	return func(r *Runtime) {
		if m != nil {
			r.migrate = m
		}
	}
}

// WithWebRunner replaces the web role runner.
func WithWebRunner(run RunFunc) Option {
	return func(r *Runtime) {
		if run != nil {
			r.web = run
		}
	}
}

// WithWorkerRunner replaces the worker role runner.
func WithWorkerRunner(run RunFunc) Option {
	return func(r *Runtime) {
		if run != nil {
			r.worker = run
		}
	}
}

// WithBeatRunner replaces the beat role runner.
func WithBeatRunner(run RunFunc) Option {
	return func(r *Runtime) {
		if run != nil {
			r.beat = run
		}
	}
}

// New builds a Runtime with the real role runners wired in. The runners
// connect to their backends lazily, when Run selects them.
func New(cfg *config.Config, log *logger.Logger, opts ...Option) *Runtime {
	if log == nil {
		log = logger.NewDefault("runtime")
	}
	r := &Runtime{
		cfg: cfg,
		log: log,
		out: os.Stdout,
	}
	r.migrate = func() database.MigrationResult {
		return database.Migrate(cfg.Database)
	}
	r.web = r.runWeb
	r.worker = r.runWorker
	r.beat = r.runBeat
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run launches exactly one role and blocks until it returns. The web
// role attempts migrations strictly before its startup line; the other
// roles have no pre-launch step. Run keeps no state between calls, so
// the same role always produces the same launch decision.
func (r *Runtime) Run(ctx context.Context, role Role) error {
	switch role {
	case RoleWeb:
		r.runMigrations()
		fmt.Fprintf(r.out, "starting web server on %s (pool %d, request timeout %s)\n",
			r.cfg.Server.Addr(), r.cfg.Server.MaxInFlight, r.cfg.Server.RequestTimeout)
		return r.web(ctx)
	case RoleWorker:
		fmt.Fprintf(r.out, "starting worker on queue %q (concurrency %d)\n",
			r.cfg.Worker.Queue, r.cfg.Worker.Concurrency)
		return r.worker(ctx)
	case RoleBeat:
		fmt.Fprintf(r.out, "starting beat scheduler (schedule %s)\n",
			r.cfg.Scheduler.SchedulePath)
		return r.beat(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownRole, string(role))
	}
}

// runMigrations executes the best-effort migration step. Every outcome
// is logged and counted; none blocks startup.
func (r *Runtime) runMigrations() {
	res := r.migrate()
	metrics.RecordMigrationOutcome(string(res.Outcome))
	switch res.Outcome {
	case database.MigrationApplied:
		r.log.WithFields(map[string]interface{}{
			"version": res.Version,
			"dirty":   res.Dirty,
		}).Info("database migrations applied")
	case database.MigrationAbsent:
		r.log.WithField("reason", res.Reason).Info("database migrations skipped")
	case database.MigrationFailed:
		r.log.WithError(res.Err).Warn("database migration failed, continuing startup")
	}
}
