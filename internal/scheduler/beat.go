package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/taqastore/storefront/internal/metrics"
	"github.com/taqastore/storefront/internal/queue"
	"github.com/taqastore/storefront/pkg/logger"
)

// Beat fires schedule entries and enqueues one task per firing.
type Beat struct {
	broker       queue.Broker
	results      queue.ResultBackend
	schedule     *Schedule
	defaultQueue string
	log          *logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	runCtx  context.Context
	cancel  context.CancelFunc
	running bool
}

// NewBeat creates a lifecycle-managed beat scheduler. Entries without
// an explicit queue land on defaultQueue.
func NewBeat(broker queue.Broker, results queue.ResultBackend, schedule *Schedule, defaultQueue string, log *logger.Logger) *Beat {
	if log == nil {
		log = logger.NewDefault("beat")
	}
	if defaultQueue == "" {
		defaultQueue = queue.DefaultQueue
	}
	return &Beat{
		broker:       broker,
		results:      results,
		schedule:     schedule,
		defaultQueue: defaultQueue,
		log:          log,
	}
}

func (b *Beat) Name() string { return "beat-scheduler" }

// Schedule returns the entries this beat fires.
func (b *Beat) Schedule() *Schedule { return b.schedule }

// Start registers every entry with cron and begins firing. Calling
// Start on a running beat is a no-op.
func (b *Beat) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New()
	for _, entry := range b.schedule.Entries {
		entry := entry
		if _, err := c.AddFunc(entry.Spec, func() { b.fire(entry) }); err != nil {
			cancel()
			return fmt.Errorf("register entry %s: %w", entry.Name, err)
		}
	}

	b.cron = c
	b.runCtx = runCtx
	b.cancel = cancel
	b.running = true
	c.Start()

	b.log.WithField("entries", len(b.schedule.Entries)).Info("beat scheduler started")
	return nil
}

// Stop halts firing and waits for in-flight firings to finish, bounded
// by the caller's context.
func (b *Beat) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	c := b.cron
	cancel := b.cancel
	b.cron = nil
	b.cancel = nil
	b.running = false
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	drained := c.Stop()
	select {
	case <-drained.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	b.log.Info("beat scheduler stopped")
	return nil
}

// fire enqueues the entry's task. A single failed firing is logged and
// dropped; the entry fires again on its next tick.
func (b *Beat) fire(entry Entry) {
	b.mu.Lock()
	runCtx := b.runCtx
	b.mu.Unlock()
	if runCtx == nil || runCtx.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(runCtx, 10*time.Second)
	defer cancel()

	log := b.log.WithField("entry", entry.Name).WithField("task", entry.Task)

	payload, err := entry.PayloadJSON()
	if err != nil {
		log.WithError(err).Error("entry payload unusable")
		metrics.RecordScheduleFire(entry.Name, false)
		return
	}

	queueName := entry.Queue
	if queueName == "" {
		queueName = b.defaultQueue
	}

	task, err := queue.NewTask(entry.Task, queueName, payload)
	if err != nil {
		log.WithError(err).Error("entry produced invalid task")
		metrics.RecordScheduleFire(entry.Name, false)
		return
	}

	if b.results != nil {
		if err := b.results.SetResult(ctx, queue.NewPendingResult(task)); err != nil {
			log.WithError(err).Warn("record pending status failed")
		}
	}
	if err := b.broker.Enqueue(ctx, task); err != nil {
		log.WithError(err).Error("enqueue failed")
		metrics.RecordScheduleFire(entry.Name, false)
		return
	}

	metrics.RecordScheduleFire(entry.Name, true)
	log.WithField("task_id", task.ID).WithField("queue", queueName).Info("entry fired")
}
