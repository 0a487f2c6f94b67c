package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryBroker is a thread-safe in-process broker implementing the same
// FIFO contract as the Redis one. It backs tests and prototyping.
type MemoryBroker struct {
	mu     sync.Mutex
	queues map[string][]Task
	wake   chan struct{}
}

// NewMemoryBroker creates an empty in-memory broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		queues: make(map[string][]Task),
		wake:   make(chan struct{}),
	}
}

// Enqueue appends the task and wakes blocked consumers.
func (b *MemoryBroker) Enqueue(_ context.Context, task *Task) error {
	if task == nil {
		return fmt.Errorf("enqueue nil task")
	}
	if err := task.Validate(); err != nil {
		return err
	}

	b.mu.Lock()
	b.queues[task.Queue] = append(b.queues[task.Queue], *task)
	close(b.wake)
	b.wake = make(chan struct{})
	b.mu.Unlock()
	return nil
}

// Dequeue pops the oldest task, blocking up to wait for one to arrive.
func (b *MemoryBroker) Dequeue(ctx context.Context, queue string, wait time.Duration) (*Task, error) {
	var timeout <-chan time.Time
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		b.mu.Lock()
		if items := b.queues[queue]; len(items) > 0 {
			task := items[0]
			b.queues[queue] = items[1:]
			b.mu.Unlock()
			return &task, nil
		}
		wake := b.wake
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout:
			return nil, nil
		case <-wake:
		}
	}
}

// Depth reports how many tasks wait on the queue.
func (b *MemoryBroker) Depth(_ context.Context, queue string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.queues[queue])), nil
}

// Purge drops all waiting tasks on the queue.
func (b *MemoryBroker) Purge(_ context.Context, queue string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := int64(len(b.queues[queue]))
	delete(b.queues, queue)
	return n, nil
}
