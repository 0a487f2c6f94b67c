package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/taqastore/storefront/internal/queue"
	"github.com/taqastore/storefront/internal/tasks"
)

func writeSchedule(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schedule.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write schedule: %v", err)
	}
	return path
}

func TestLoadSchedule(t *testing.T) {
	path := writeSchedule(t, `
entries:
  - name: heartbeat
    spec: "@every 1m"
    task: maintenance.heartbeat
  - name: nightly-sweep
    spec: "0 3 * * *"
    task: maintenance.prune_results
    queue: cleanup
    payload:
      older_than: 72h
`)

	schedule, err := LoadSchedule(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(schedule.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(schedule.Entries))
	}

	sweep := schedule.Entries[1]
	if sweep.Queue != "cleanup" {
		t.Fatalf("unexpected queue %q", sweep.Queue)
	}
	payload, err := sweep.PayloadJSON()
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	if !strings.Contains(string(payload), "72h") {
		t.Fatalf("payload lost values: %s", payload)
	}
}

func TestLoadScheduleRejectsBadEntries(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantSub string
	}{
		{"empty", "entries: []", "no entries"},
		{"missing name", "entries:\n  - spec: \"@hourly\"\n    task: t\n", "name is required"},
		{"missing task", "entries:\n  - name: a\n    spec: \"@hourly\"\n", "task is required"},
		{"bad spec", "entries:\n  - name: a\n    spec: \"every minute\"\n    task: t\n", "invalid spec"},
		{"duplicate name", "entries:\n  - name: a\n    spec: \"@hourly\"\n    task: t\n  - name: a\n    spec: \"@hourly\"\n    task: t\n", "duplicate"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeSchedule(t, tc.content)
			_, err := LoadSchedule(path)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("error %q does not mention %q", err, tc.wantSub)
			}
		})
	}
}

func TestLoadScheduleOrDefaultFallsBack(t *testing.T) {
	schedule := LoadScheduleOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err := schedule.Validate(); err != nil {
		t.Fatalf("default schedule invalid: %v", err)
	}

	names := make(map[string]bool)
	for _, entry := range schedule.Entries {
		names[entry.Task] = true
	}
	if !names[tasks.Heartbeat] || !names[tasks.PruneResults] {
		t.Fatalf("default schedule missing maintenance tasks: %+v", schedule.Entries)
	}
}

func TestBeatEnqueuesOnFire(t *testing.T) {
	broker := queue.NewMemoryBroker()
	results := queue.NewMemoryResults()
	schedule := &Schedule{Entries: []Entry{
		{
			Name:    "fast-beacon",
			Spec:    "@every 10ms",
			Task:    tasks.Heartbeat,
			Payload: map[string]interface{}{"source": "beat"},
		},
	}}
	if err := schedule.Validate(); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	beat := NewBeat(broker, results, schedule, "default", nil)
	if err := beat.Start(context.Background()); err != nil {
		t.Fatalf("start beat: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := beat.Stop(stopCtx); err != nil {
			t.Errorf("stop beat: %v", err)
		}
	}()

	var task *queue.Task
	deadline := time.Now().Add(3 * time.Second)
	for task == nil && time.Now().Before(deadline) {
		var err error
		task, err = broker.Dequeue(context.Background(), "default", 50*time.Millisecond)
		if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
	}
	if task == nil {
		t.Fatal("beat never enqueued the entry's task")
	}
	if task.Name != tasks.Heartbeat {
		t.Fatalf("unexpected task %q", task.Name)
	}
	if got := task.PayloadField("source"); got != "beat" {
		t.Fatalf("payload not carried, got %q", got)
	}

	res, err := results.GetResult(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("pending result not recorded: %v", err)
	}
	if res.Status != queue.StatusPending {
		t.Fatalf("unexpected status %s", res.Status)
	}
}

func TestBeatRoutesEntryQueue(t *testing.T) {
	broker := queue.NewMemoryBroker()
	schedule := &Schedule{Entries: []Entry{
		{Name: "routed", Spec: "@every 10ms", Task: tasks.PruneResults, Queue: "cleanup"},
	}}
	if err := schedule.Validate(); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	beat := NewBeat(broker, queue.NewMemoryResults(), schedule, "default", nil)
	if err := beat.Start(context.Background()); err != nil {
		t.Fatalf("start beat: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		beat.Stop(stopCtx)
	}()

	task, err := broker.Dequeue(context.Background(), "cleanup", 2*time.Second)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if task == nil || task.Queue != "cleanup" {
		t.Fatalf("entry queue not honored: %+v", task)
	}
}

func TestBeatStartStopIdempotent(t *testing.T) {
	schedule := DefaultSchedule()
	beat := NewBeat(queue.NewMemoryBroker(), queue.NewMemoryResults(), schedule, "default", nil)

	ctx := context.Background()
	if err := beat.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := beat.Start(ctx); err != nil {
		t.Fatalf("second start: %v", err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := beat.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := beat.Stop(stopCtx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}
