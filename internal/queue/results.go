package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// Status tracks a task through its lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// ErrResultNotFound is returned when no result exists for a task ID.
var ErrResultNotFound = errors.New("task result not found")

// Result records the observed state of one task.
type Result struct {
	TaskID     string          `json:"task_id"`
	Name       string          `json:"name"`
	Queue      string          `json:"queue"`
	Status     Status          `json:"status"`
	Attempts   int             `json:"attempts"`
	Output     json.RawMessage `json:"output,omitempty"`
	Error      string          `json:"error,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// NewPendingResult is the record written when a task is accepted.
func NewPendingResult(task *Task) Result {
	return Result{
		TaskID:     task.ID,
		Name:       task.Name,
		Queue:      task.Queue,
		Status:     StatusPending,
		Attempts:   task.Attempts,
		EnqueuedAt: task.EnqueuedAt,
	}
}

// ResultBackend persists task results with a bounded retention.
type ResultBackend interface {
	SetResult(ctx context.Context, res Result) error
	GetResult(ctx context.Context, taskID string) (Result, error)
	DeleteResult(ctx context.Context, taskID string) error
	// PruneResults removes terminal results finished before the cutoff
	// and reports how many were removed.
	PruneResults(ctx context.Context, cutoff time.Time) (int, error)
}

const resultKeyPrefix = "storefront:result:"

func resultKey(taskID string) string {
	return resultKeyPrefix + taskID
}

// RedisResults stores results as JSON strings with a TTL, so abandoned
// records age out even without pruning.
type RedisResults struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewRedisResults wraps an existing Redis client. ttl <= 0 disables
// expiry.
func NewRedisResults(client *goredis.Client, ttl time.Duration) *RedisResults {
	return &RedisResults{client: client, ttl: ttl}
}

func (r *RedisResults) SetResult(ctx context.Context, res Result) error {
	if res.TaskID == "" {
		return fmt.Errorf("result without task id")
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result %s: %w", res.TaskID, err)
	}
	if err := r.client.Set(ctx, resultKey(res.TaskID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("store result %s: %w", res.TaskID, err)
	}
	return nil
}

func (r *RedisResults) GetResult(ctx context.Context, taskID string) (Result, error) {
	raw, err := r.client.Get(ctx, resultKey(taskID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return Result{}, ErrResultNotFound
		}
		return Result{}, fmt.Errorf("load result %s: %w", taskID, err)
	}
	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return Result{}, fmt.Errorf("decode result %s: %w", taskID, err)
	}
	return res, nil
}

func (r *RedisResults) DeleteResult(ctx context.Context, taskID string) error {
	if err := r.client.Del(ctx, resultKey(taskID)).Err(); err != nil {
		return fmt.Errorf("delete result %s: %w", taskID, err)
	}
	return nil
}

func (r *RedisResults) PruneResults(ctx context.Context, cutoff time.Time) (int, error) {
	pruned := 0
	iter := r.client.Scan(ctx, 0, resultKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := r.client.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				continue
			}
			return pruned, fmt.Errorf("prune results: %w", err)
		}
		var res Result
		if err := json.Unmarshal(raw, &res); err != nil {
			// Unreadable records are garbage; drop them.
			if err := r.client.Del(ctx, key).Err(); err != nil {
				return pruned, fmt.Errorf("prune results: %w", err)
			}
			pruned++
			continue
		}
		if !res.Status.Terminal() || res.FinishedAt == nil || res.FinishedAt.After(cutoff) {
			continue
		}
		if err := r.client.Del(ctx, key).Err(); err != nil {
			return pruned, fmt.Errorf("prune results: %w", err)
		}
		pruned++
	}
	if err := iter.Err(); err != nil {
		return pruned, fmt.Errorf("prune results: %w", err)
	}
	return pruned, nil
}

// MemoryResults is the in-process twin of RedisResults for tests.
type MemoryResults struct {
	mu      sync.RWMutex
	results map[string]Result
}

// NewMemoryResults creates an empty in-memory result backend.
func NewMemoryResults() *MemoryResults {
	return &MemoryResults{results: make(map[string]Result)}
}

func (m *MemoryResults) SetResult(_ context.Context, res Result) error {
	if res.TaskID == "" {
		return fmt.Errorf("result without task id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[res.TaskID] = res
	return nil
}

func (m *MemoryResults) GetResult(_ context.Context, taskID string) (Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res, ok := m.results[taskID]
	if !ok {
		return Result{}, ErrResultNotFound
	}
	return res, nil
}

func (m *MemoryResults) DeleteResult(_ context.Context, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.results, taskID)
	return nil
}

func (m *MemoryResults) PruneResults(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pruned := 0
	for id, res := range m.results {
		if res.Status.Terminal() && res.FinishedAt != nil && !res.FinishedAt.After(cutoff) {
			delete(m.results, id)
			pruned++
		}
	}
	return pruned, nil
}
