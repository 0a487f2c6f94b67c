package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/taqastore/storefront/internal/config"
	"github.com/taqastore/storefront/internal/metrics"
	"github.com/taqastore/storefront/internal/queue"
	"github.com/taqastore/storefront/pkg/logger"
)

// Pool runs a fixed number of consumer goroutines against one queue.
type Pool struct {
	broker   queue.Broker
	results  queue.ResultBackend
	registry *Registry
	cfg      config.WorkerConfig
	log      *logger.Logger

	dequeueWait time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewPool creates a lifecycle-managed consumer pool.
func NewPool(broker queue.Broker, results queue.ResultBackend, registry *Registry, cfg config.WorkerConfig, log *logger.Logger) *Pool {
	if log == nil {
		log = logger.NewDefault("worker")
	}
	return &Pool{
		broker:      broker,
		results:     results,
		registry:    registry,
		cfg:         cfg,
		log:         log,
		dequeueWait: 5 * time.Second,
	}
}

// WithDequeueWait overrides how long one dequeue blocks. Tests shorten
// it to keep shutdown fast.
func (p *Pool) WithDequeueWait(wait time.Duration) {
	p.mu.Lock()
	p.dequeueWait = wait
	p.mu.Unlock()
}

func (p *Pool) Name() string { return "worker-pool" }

// Start launches the consumer goroutines. Calling Start on a running
// pool is a no-op.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	wait := p.dequeueWait
	p.mu.Unlock()

	for i := 0; i < p.cfg.Concurrency; i++ {
		p.wg.Add(1)
		go func(consumer int) {
			defer p.wg.Done()
			p.consumeLoop(runCtx, consumer, wait)
		}(i)
	}

	p.log.WithFields(map[string]interface{}{
		"queue":       p.cfg.Queue,
		"concurrency": p.cfg.Concurrency,
	}).Info("worker pool started")
	return nil
}

// Stop cancels the consumers and waits for in-flight tasks to finish,
// bounded by the caller's context.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.log.Info("worker pool stopped")
	return nil
}

func (p *Pool) consumeLoop(ctx context.Context, consumer int, wait time.Duration) {
	log := p.log.WithField("consumer", consumer)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := p.broker.Dequeue(ctx, p.cfg.Queue, wait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Warn("dequeue failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if task == nil {
			continue
		}

		p.process(ctx, task, log)
	}
}

func (p *Pool) process(ctx context.Context, task *queue.Task, log *logger.Logger) {
	log = log.WithField("task", task.Name).WithField("task_id", task.ID)

	attempt := task.Attempts + 1
	started := time.Now().UTC()

	running := queue.NewPendingResult(task)
	running.Status = queue.StatusRunning
	running.Attempts = attempt
	running.StartedAt = &started
	if err := p.results.SetResult(ctx, running); err != nil {
		log.WithError(err).Warn("record running status failed")
	}

	handler, ok := p.registry.Resolve(task.Name)
	if !ok {
		log.Warn("no handler registered, failing task")
		p.finish(ctx, running, nil, fmt.Errorf("no handler registered for task %s", task.Name), log)
		metrics.RecordTaskExecution(task.Name, "failed", time.Since(started))
		return
	}

	taskCtx := ctx
	if p.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, p.cfg.TaskTimeout)
		defer cancel()
	}

	output, err := p.invoke(taskCtx, handler, task)
	duration := time.Since(started)

	if err == nil {
		p.finish(ctx, running, output, nil, log)
		metrics.RecordTaskExecution(task.Name, "succeeded", duration)
		log.WithField("duration", duration.String()).Info("task succeeded")
		return
	}

	maxRetries := task.MaxRetries
	if maxRetries == 0 {
		maxRetries = p.cfg.MaxRetries
	}
	if attempt <= maxRetries {
		p.retry(ctx, task, running, attempt, err, log)
		metrics.RecordTaskExecution(task.Name, "retried", duration)
		return
	}

	p.finish(ctx, running, nil, err, log)
	metrics.RecordTaskExecution(task.Name, "failed", duration)
	log.WithError(err).WithField("attempts", attempt).Warn("task failed permanently")
}

// invoke runs the handler with panic containment so one bad task cannot
// take the consumer down.
func (p *Pool) invoke(ctx context.Context, handler Handler, task *queue.Task) (output json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return handler(ctx, task)
}

func (p *Pool) finish(ctx context.Context, res queue.Result, output json.RawMessage, taskErr error, log *logger.Logger) {
	finished := time.Now().UTC()
	res.FinishedAt = &finished
	if taskErr != nil {
		res.Status = queue.StatusFailed
		res.Error = taskErr.Error()
	} else {
		res.Status = queue.StatusSucceeded
		res.Output = output
	}
	if err := p.results.SetResult(ctx, res); err != nil {
		log.WithError(err).Warn("record task outcome failed")
	}
}

// retry backs off, then puts the task back on its queue with the
// attempt recorded. The re-enqueue runs on a background context so a
// shutdown during backoff cannot drop the task.
func (p *Pool) retry(ctx context.Context, task *queue.Task, res queue.Result, attempt int, taskErr error, log *logger.Logger) {
	res.Status = queue.StatusPending
	res.Error = taskErr.Error()
	if err := p.results.SetResult(ctx, res); err != nil {
		log.WithError(err).Warn("record retry status failed")
	}

	if p.cfg.RetryBackoff > 0 {
		select {
		case <-time.After(p.cfg.RetryBackoff):
		case <-ctx.Done():
		}
	}

	requeued := *task
	requeued.Attempts = attempt

	enqueueCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.broker.Enqueue(enqueueCtx, &requeued); err != nil {
		log.WithError(err).Error("re-enqueue for retry failed")
		p.finish(enqueueCtx, res, nil, fmt.Errorf("retry enqueue failed after: %v", taskErr), log)
		return
	}
	log.WithError(taskErr).WithField("attempt", attempt).Info("task scheduled for retry")
}
