// Package pool runs fire-and-forget tasks on a fixed number of workers.
//
// A task gets a context detached from the caller (context.WithoutCancel), so
// it still runs after the HTTP request that queued it has finished. Panics
// and failures are counted and logged, never propagated. Stop drains what
// is already queued.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/user-avatar-service/internal/metrics"
)

var (
	ErrStopped     = errors.New("pool: stopped")
	ErrStopTimeout = errors.New("pool: stop timeout")
)

// Task is one unit of work. A returned error is logged and counted.
type Task func(ctx context.Context) error

type Options struct {
	Workers     int
	QueueSize   int
	TaskTimeout time.Duration // 0 = no per-task deadline
}

type Pool struct {
	queue chan message
	stopC chan struct{}
	wg    sync.WaitGroup

	// mu is held for reading while a task is sent and for writing while
	// stopping, so no send can land after the workers have drained.
	mu      sync.RWMutex
	stopped bool

	taskTimeout time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

type message struct {
	name string
	task Task
	ctx  context.Context
	inQ  time.Time
}

func New(opts Options, logger *slog.Logger, m *metrics.Metrics) *Pool {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1024
	}

	p := &Pool{
		queue:       make(chan message, opts.QueueSize),
		stopC:       make(chan struct{}),
		taskTimeout: opts.TaskTimeout,
		logger:      logger,
		metrics:     m,
	}

	for i := 0; i < opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case msg := <-p.queue:
			p.run(msg)
		case <-p.stopC:
			for {
				select {
				case msg := <-p.queue:
					p.run(msg)
				default:
					return
				}
			}
		}
	}
}

// Enqueue queues task under name (used in logs). It blocks only while the
// queue is full, and returns ctx.Err() if ctx ends first.
func (p *Pool) Enqueue(ctx context.Context, name string, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}

	select {
	case p.queue <- message{name: name, task: task, ctx: context.WithoutCancel(ctx), inQ: time.Now()}:
		p.metrics.QueueSize.Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop refuses new tasks, lets workers finish the queue and waits up to timeout.
func (p *Pool) Stop(timeout time.Duration) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.stopC)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return ErrStopTimeout
	}
}

func (p *Pool) run(msg message) {
	p.metrics.QueueSize.Dec()
	p.metrics.TaskWait.Observe(time.Since(msg.inQ).Seconds())

	ctx := msg.ctx
	if p.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.taskTimeout)
		defer cancel()
	}

	start := time.Now()
	err := safeRun(ctx, msg.task)
	p.metrics.TaskDuration.Observe(time.Since(start).Seconds())

	var pe *panicError
	switch {
	case err == nil:
		p.metrics.Tasks.WithLabelValues("success").Inc()
	case errors.As(err, &pe):
		p.metrics.Tasks.WithLabelValues("panic").Inc()
		p.logger.Error("task panicked", slog.String("task", msg.name), slog.Any("panic", pe.value))
	default:
		p.metrics.Tasks.WithLabelValues("failed").Inc()
		p.logger.Error("task failed", slog.String("task", msg.name), slog.String("error", err.Error()))
	}
}

type panicError struct {
	value any
}

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.value) }

// safeRun must recover in its own deferred func; a helper called from a
// defer does not stop the panic.
func safeRun(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return task(ctx)
}
