package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestNewTaskDefaults(t *testing.T) {
	task, err := NewTask("maintenance.heartbeat", "", nil)
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if task.ID == "" {
		t.Fatal("task id not assigned")
	}
	if task.Queue != DefaultQueue {
		t.Fatalf("expected default queue, got %q", task.Queue)
	}
	if task.EnqueuedAt.IsZero() {
		t.Fatal("enqueued timestamp not set")
	}
	if task.Attempts != 0 {
		t.Fatalf("fresh task has attempts %d", task.Attempts)
	}
}

func TestNewTaskRejectsBadInput(t *testing.T) {
	if _, err := NewTask("  ", "default", nil); err == nil {
		t.Fatal("expected error for empty name")
	}
	if _, err := NewTask("cache.invalidate", "default", json.RawMessage(`"just a string"`)); err == nil {
		t.Fatal("expected error for non-object payload")
	}
	if _, err := NewTask("cache.invalidate", "default", json.RawMessage(`{"pattern":`)); err == nil {
		t.Fatal("expected error for malformed payload")
	}
	if _, err := NewTask("cache.invalidate", "default", json.RawMessage(`{"pattern":"product:*"}`)); err != nil {
		t.Fatalf("object payload rejected: %v", err)
	}
}

func TestPayloadField(t *testing.T) {
	task, err := NewTask("cache.invalidate", "", json.RawMessage(`{"pattern":"product:*","depth":3}`))
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if got := task.PayloadField("pattern"); got != "product:*" {
		t.Fatalf("unexpected pattern %q", got)
	}
	if got := task.PayloadField("missing"); got != "" {
		t.Fatalf("expected empty field, got %q", got)
	}
}

func TestMemoryBrokerFIFO(t *testing.T) {
	broker := NewMemoryBroker()
	ctx := context.Background()

	for _, name := range []string{"first", "second", "third"} {
		task, err := NewTask(name, "orders", nil)
		if err != nil {
			t.Fatalf("new task: %v", err)
		}
		if err := broker.Enqueue(ctx, task); err != nil {
			t.Fatalf("enqueue %s: %v", name, err)
		}
	}

	depth, err := broker.Depth(ctx, "orders")
	if err != nil || depth != 3 {
		t.Fatalf("depth = %d, err = %v", depth, err)
	}

	for _, want := range []string{"first", "second", "third"} {
		task, err := broker.Dequeue(ctx, "orders", time.Second)
		if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		if task == nil || task.Name != want {
			t.Fatalf("expected %q, got %+v", want, task)
		}
	}
}

func TestMemoryBrokerDequeueTimesOut(t *testing.T) {
	broker := NewMemoryBroker()

	start := time.Now()
	task, err := broker.Dequeue(context.Background(), "empty", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if task != nil {
		t.Fatalf("expected no task, got %+v", task)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("dequeue returned before the wait elapsed")
	}
}

func TestMemoryBrokerDequeueWakesOnEnqueue(t *testing.T) {
	broker := NewMemoryBroker()
	ctx := context.Background()

	got := make(chan *Task, 1)
	go func() {
		task, err := broker.Dequeue(ctx, "orders", 5*time.Second)
		if err != nil {
			t.Errorf("dequeue: %v", err)
		}
		got <- task
	}()

	time.Sleep(10 * time.Millisecond)
	task, err := NewTask("late", "orders", nil)
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if err := broker.Enqueue(ctx, task); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case received := <-got:
		if received == nil || received.Name != "late" {
			t.Fatalf("unexpected task %+v", received)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked dequeue never woke up")
	}
}

func TestMemoryBrokerDequeueHonorsContext(t *testing.T) {
	broker := NewMemoryBroker()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := broker.Dequeue(ctx, "empty", 0)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("dequeue did not observe cancellation")
	}
}

func TestMemoryBrokerPurge(t *testing.T) {
	broker := NewMemoryBroker()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		task, _ := NewTask("bulk", "cleanup", nil)
		if err := broker.Enqueue(ctx, task); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	n, err := broker.Purge(ctx, "cleanup")
	if err != nil || n != 4 {
		t.Fatalf("purge = %d, err = %v", n, err)
	}
	depth, err := broker.Depth(ctx, "cleanup")
	if err != nil || depth != 0 {
		t.Fatalf("depth after purge = %d, err = %v", depth, err)
	}
}

func TestMemoryResultsLifecycle(t *testing.T) {
	backend := NewMemoryResults()
	ctx := context.Background()

	task, _ := NewTask("maintenance.heartbeat", "", nil)
	res := NewPendingResult(task)
	if err := backend.SetResult(ctx, res); err != nil {
		t.Fatalf("set pending: %v", err)
	}

	loaded, err := backend.GetResult(ctx, task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Status != StatusPending || loaded.Name != task.Name {
		t.Fatalf("unexpected result %+v", loaded)
	}

	now := time.Now().UTC()
	loaded.Status = StatusSucceeded
	loaded.FinishedAt = &now
	if err := backend.SetResult(ctx, loaded); err != nil {
		t.Fatalf("set terminal: %v", err)
	}

	if _, err := backend.GetResult(ctx, "no-such-task"); !errors.Is(err, ErrResultNotFound) {
		t.Fatalf("expected ErrResultNotFound, got %v", err)
	}
}

func TestMemoryResultsPrune(t *testing.T) {
	backend := NewMemoryResults()
	ctx := context.Background()
	old := time.Now().UTC().Add(-48 * time.Hour)
	recent := time.Now().UTC()

	seed := []Result{
		{TaskID: "old-done", Status: StatusSucceeded, FinishedAt: &old},
		{TaskID: "old-failed", Status: StatusFailed, FinishedAt: &old},
		{TaskID: "fresh-done", Status: StatusSucceeded, FinishedAt: &recent},
		{TaskID: "still-running", Status: StatusRunning},
	}
	for _, res := range seed {
		if err := backend.SetResult(ctx, res); err != nil {
			t.Fatalf("seed %s: %v", res.TaskID, err)
		}
	}

	pruned, err := backend.PruneResults(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if pruned != 2 {
		t.Fatalf("expected 2 pruned, got %d", pruned)
	}
	if _, err := backend.GetResult(ctx, "old-done"); !errors.Is(err, ErrResultNotFound) {
		t.Fatal("old terminal result survived pruning")
	}
	if _, err := backend.GetResult(ctx, "still-running"); err != nil {
		t.Fatalf("running result must survive pruning: %v", err)
	}
	if _, err := backend.GetResult(ctx, "fresh-done"); err != nil {
		t.Fatalf("recent result must survive pruning: %v", err)
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusPending.Terminal() || StatusRunning.Terminal() {
		t.Fatal("pending/running must not be terminal")
	}
	if !StatusSucceeded.Terminal() || !StatusFailed.Terminal() {
		t.Fatal("succeeded/failed must be terminal")
	}
}
