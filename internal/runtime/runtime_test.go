package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/taqastore/storefront/internal/config"
	"github.com/taqastore/storefront/internal/platform/database"
	"github.com/taqastore/storefront/pkg/logger"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.App.Name = "storefront"
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 8000
	cfg.Server.MaxInFlight = 64
	cfg.Server.RequestTimeout = 30 * time.Second
	cfg.Worker.Queue = "default"
	cfg.Worker.Concurrency = 4
	cfg.Scheduler.SchedulePath = "config/schedule.yaml"
	return cfg
}

func quietLogger() *logger.Logger {
	log := logger.NewDefault("runtime-test")
	log.SetOutput(io.Discard)
	return log
}

// dispatchRecorder captures what a Run invocation did: which runners
// fired, in what order, and how much status output existed when the
// migration step ran.
type dispatchRecorder struct {
	out          bytes.Buffer
	events       []string
	outAtMigrate int
}

func (d *dispatchRecorder) runner(name string, err error) RunFunc {
	return func(ctx context.Context) error {
		d.events = append(d.events, name)
		return err
	}
}

func (d *dispatchRecorder) migrator(res database.MigrationResult) Migrator {
	return func() database.MigrationResult {
		d.events = append(d.events, "migrate")
		d.outAtMigrate = d.out.Len()
		return res
	}
}

func newRecordedRuntime(rec *dispatchRecorder, res database.MigrationResult) *Runtime {
	return New(testConfig(), quietLogger(),
		WithStatusWriter(&rec.out),
		WithMigrator(rec.migrator(res)),
		WithWebRunner(rec.runner("web", nil)),
		WithWorkerRunner(rec.runner("worker", nil)),
		WithBeatRunner(rec.runner("beat", nil)),
	)
}

func TestParseRole(t *testing.T) {
	cases := []struct {
		raw  string
		want Role
		ok   bool
	}{
		{"web", RoleWeb, true},
		{"worker", RoleWorker, true},
		{"beat", RoleBeat, true},
		{"", "", false},
		{"WEB", "", false},
		{" web", "", false},
		{"webserver", "", false},
		{"cron", "", false},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%q", tc.raw), func(t *testing.T) {
			role, err := ParseRole(tc.raw)
			if tc.ok {
				if err != nil || role != tc.want {
					t.Errorf("ParseRole(%q) = %q, %v, want %q", tc.raw, role, err, tc.want)
				}
				return
			}
			if !errors.Is(err, ErrUnknownRole) {
				t.Errorf("ParseRole(%q) error = %v, want ErrUnknownRole", tc.raw, err)
			}
		})
	}
}

func TestWebMigratesBeforeStartupLine(t *testing.T) {
	outcomes := []database.MigrationResult{
		{Outcome: database.MigrationApplied, Version: 3},
		{Outcome: database.MigrationAbsent, Reason: "no database configured"},
		{Outcome: database.MigrationFailed, Err: errors.New("dial tcp: connection refused")},
	}
	for _, res := range outcomes {
		t.Run(string(res.Outcome), func(t *testing.T) {
			rec := &dispatchRecorder{}
			rt := newRecordedRuntime(rec, res)

			if err := rt.Run(context.Background(), RoleWeb); err != nil {
				t.Fatalf("Run(web) = %v", err)
			}
			if got := strings.Join(rec.events, ","); got != "migrate,web" {
				t.Fatalf("events = %s, want migrate,web", got)
			}
			if rec.outAtMigrate != 0 {
				t.Fatalf("status output before migration: %q", rec.out.String()[:rec.outAtMigrate])
			}
			out := rec.out.String()
			if strings.Count(out, "\n") != 1 || !strings.HasPrefix(out, "starting web server on 127.0.0.1:8000") {
				t.Fatalf("status output = %q", out)
			}
		})
	}
}

func TestWorkerLaunchesWithoutMigration(t *testing.T) {
	rec := &dispatchRecorder{}
	rt := newRecordedRuntime(rec, database.MigrationResult{Outcome: database.MigrationApplied})

	if err := rt.Run(context.Background(), RoleWorker); err != nil {
		t.Fatalf("Run(worker) = %v", err)
	}
	if got := strings.Join(rec.events, ","); got != "worker" {
		t.Fatalf("events = %s, want worker", got)
	}
	out := rec.out.String()
	if strings.Count(out, "\n") != 1 || !strings.HasPrefix(out, `starting worker on queue "default"`) {
		t.Fatalf("status output = %q", out)
	}
}

func TestBeatLaunchesWithoutMigration(t *testing.T) {
	rec := &dispatchRecorder{}
	rt := newRecordedRuntime(rec, database.MigrationResult{Outcome: database.MigrationApplied})

	if err := rt.Run(context.Background(), RoleBeat); err != nil {
		t.Fatalf("Run(beat) = %v", err)
	}
	if got := strings.Join(rec.events, ","); got != "beat" {
		t.Fatalf("events = %s, want beat", got)
	}
	out := rec.out.String()
	if strings.Count(out, "\n") != 1 || !strings.HasPrefix(out, "starting beat scheduler") {
		t.Fatalf("status output = %q", out)
	}
}

func TestUnknownRoleLaunchesNothing(t *testing.T) {
	rec := &dispatchRecorder{}
	rt := newRecordedRuntime(rec, database.MigrationResult{Outcome: database.MigrationApplied})

	err := rt.Run(context.Background(), Role("cron"))
	if !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("Run(cron) error = %v, want ErrUnknownRole", err)
	}
	if len(rec.events) != 0 {
		t.Fatalf("events = %v, want none", rec.events)
	}
	if rec.out.Len() != 0 {
		t.Fatalf("status output = %q, want none", rec.out.String())
	}
}

func TestSameRoleSameDecision(t *testing.T) {
	rec := &dispatchRecorder{}
	rt := newRecordedRuntime(rec, database.MigrationResult{Outcome: database.MigrationAbsent})

	for i := 0; i < 2; i++ {
		if err := rt.Run(context.Background(), RoleWorker); err != nil {
			t.Fatalf("Run %d = %v", i, err)
		}
	}
	if got := strings.Join(rec.events, ","); got != "worker,worker" {
		t.Fatalf("events = %s, want worker,worker", got)
	}
}

func TestRoleErrorPassesThrough(t *testing.T) {
	rec := &dispatchRecorder{}
	boom := errors.New("consumer crashed")
	rt := New(testConfig(), quietLogger(),
		WithStatusWriter(&rec.out),
		WithWorkerRunner(rec.runner("worker", boom)),
	)

	if err := rt.Run(context.Background(), RoleWorker); !errors.Is(err, boom) {
		t.Fatalf("Run(worker) error = %v, want the runner's own error", err)
	}
}
