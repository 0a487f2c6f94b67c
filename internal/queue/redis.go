package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

const queueKeyPrefix = "storefront:queue:"

func queueKey(name string) string {
	return queueKeyPrefix + name
}

// RedisBroker stores queues as Redis lists. Producers LPUSH, consumers
// BRPOP, so each queue drains oldest first.
type RedisBroker struct {
	client *goredis.Client
}

// NewRedisBroker wraps an existing Redis client.
func NewRedisBroker(client *goredis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

// Enqueue appends the task envelope to its queue.
func (b *RedisBroker) Enqueue(ctx context.Context, task *Task) error {
	if task == nil {
		return fmt.Errorf("enqueue nil task")
	}
	if err := task.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", task.ID, err)
	}
	if err := b.client.LPush(ctx, queueKey(task.Queue), raw).Err(); err != nil {
		return fmt.Errorf("enqueue task %s on %s: %w", task.ID, task.Queue, err)
	}
	return nil
}

// Dequeue pops the oldest envelope, blocking up to wait.
func (b *RedisBroker) Dequeue(ctx context.Context, queue string, wait time.Duration) (*Task, error) {
	if wait < 0 {
		wait = 0
	}
	res, err := b.client.BRPop(ctx, wait, queueKey(queue)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("dequeue from %s: %w", queue, err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("dequeue from %s: unexpected reply of %d elements", queue, len(res))
	}

	var task Task
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		return nil, fmt.Errorf("decode task from %s: %w", queue, err)
	}
	if err := task.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task from %s: %w", queue, err)
	}
	return &task, nil
}

// Depth reports the queue length.
func (b *RedisBroker) Depth(ctx context.Context, queue string) (int64, error) {
	n, err := b.client.LLen(ctx, queueKey(queue)).Result()
	if err != nil {
		return 0, fmt.Errorf("depth of %s: %w", queue, err)
	}
	return n, nil
}

// Purge drops every waiting task on the queue.
func (b *RedisBroker) Purge(ctx context.Context, queue string) (int64, error) {
	key := queueKey(queue)
	n, err := b.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("purge %s: %w", queue, err)
	}
	if err := b.client.Del(ctx, key).Err(); err != nil {
		return 0, fmt.Errorf("purge %s: %w", queue, err)
	}
	return n, nil
}
