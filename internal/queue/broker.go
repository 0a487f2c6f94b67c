package queue

import (
	"context"
	"time"
)

// Broker moves task envelopes through named queues in FIFO order.
type Broker interface {
	// Enqueue appends the task to its queue.
	Enqueue(ctx context.Context, task *Task) error
	// Dequeue pops the oldest task from the queue, blocking up to wait
	// for one to arrive. wait <= 0 blocks until the context is done.
	// A nil task with a nil error means nothing arrived in time.
	Dequeue(ctx context.Context, queue string, wait time.Duration) (*Task, error)
	// Depth reports how many tasks are waiting on the queue.
	Depth(ctx context.Context, queue string) (int64, error)
	// Purge drops all waiting tasks and reports how many were dropped.
	Purge(ctx context.Context, queue string) (int64, error)
}
