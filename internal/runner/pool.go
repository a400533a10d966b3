// Package runner provides a bounded worker pool for background note jobs.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"studynotes/internal/observability"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrQueueFull is returned when the pool's buffer is full and the task is refused.
	ErrQueueFull = errors.New("runner queue full, task refused")
	// ErrClosed is returned when scheduling on a pool that is shutting down.
	ErrClosed = errors.New("runner is closed")
)

// MetricsRecorder is an optional interface for recording pool metrics.
type MetricsRecorder interface {
	RecordRunnerQueueSize(ctx context.Context, size int64)
	RecordRunnerRejected(ctx context.Context)
	RecordRunnerPanic(ctx context.Context)
}

// Stats holds pool statistics.
type Stats struct {
	QueueDepth int   // current queue size
	Queued     int64 // total tasks accepted
	Completed  int64 // tasks that returned normally
	Panicked   int64 // tasks that panicked and were recovered
	Rejected   int64 // tasks refused (queue full or closed)
}

type task struct {
	name     string
	fn       func(ctx context.Context)
	queuedAt time.Time
}

// Pool runs tasks on a fixed set of workers fed by a bounded queue.
// Tasks run on a context detached from whoever scheduled them; it is only
// cancelled when Close gives up waiting.
type Pool struct {
	queue   chan task
	config  Config
	logger  *slog.Logger
	metrics MetricsRecorder

	ctx    context.Context
	cancel context.CancelFunc

	// Internal counters (for Stats())
	queued    atomic.Int64
	completed atomic.Int64
	panicked  atomic.Int64
	rejected  atomic.Int64

	mu       sync.RWMutex // orders Schedule against Close
	closed   bool
	wg       sync.WaitGroup
	shutdown chan struct{}
}

// New creates a pool and starts its workers.
func New(cfg Config, metrics MetricsRecorder) *Pool {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		queue:    make(chan task, cfg.BufferSize),
		config:   cfg,
		logger:   slog.With("component", "runner"),
		metrics:  metrics,
		ctx:      ctx,
		cancel:   cancel,
		shutdown: make(chan struct{}),
	}

	p.wg.Add(cfg.Workers)
	for range cfg.Workers {
		go p.worker()
	}

	if metrics != nil {
		go p.reportQueueSize()
	}

	p.logger.Info("Runner started", "workers", cfg.Workers, "buffer", cfg.BufferSize)
	return p
}

// reportQueueSize periodically reports the queue size metric.
func (p *Pool) reportQueueSize() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-p.shutdown:
			return
		case <-ticker.C:
			p.metrics.RecordRunnerQueueSize(context.Background(), int64(len(p.queue)))
		}
	}
}

// Schedule queues fn for execution. Non-blocking.
// Returns ErrQueueFull if the buffer is full and ErrClosed after Close.
func (p *Pool) Schedule(name string, fn func(ctx context.Context)) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.reject(name, "closed")
		return ErrClosed
	}

	select {
	case p.queue <- task{name: name, fn: fn, queuedAt: time.Now()}:
		p.queued.Add(1)
		return nil
	default:
		p.reject(name, "queue full")
		return ErrQueueFull
	}
}

func (p *Pool) reject(name, reason string) {
	p.rejected.Add(1)
	if p.metrics != nil {
		p.metrics.RecordRunnerRejected(context.Background())
	}
	p.logger.Warn("Task refused", "task", name, "reason", reason)
}

// Stats returns current pool statistics.
func (p *Pool) Stats() Stats {
	return Stats{
		QueueDepth: len(p.queue),
		Queued:     p.queued.Load(),
		Completed:  p.completed.Load(),
		Panicked:   p.panicked.Load(),
		Rejected:   p.rejected.Load(),
	}
}

// Close stops intake and waits for queued and running tasks.
// The context deadline controls how long to wait for drain; when it expires
// the task context is cancelled and ctx.Err() is returned.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil // already closed
	}
	p.closed = true
	p.mu.Unlock()

	p.logger.Info("Runner shutting down", "queued", len(p.queue))

	// Signal workers to stop
	close(p.shutdown)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Info("Runner shutdown complete",
			"completed", p.completed.Load(),
			"panicked", p.panicked.Load(),
			"rejected", p.rejected.Load(),
		)
		return nil
	case <-ctx.Done():
		p.cancel()
		p.logger.Warn("Runner shutdown timed out, cancelling tasks", "remaining", len(p.queue))
		return ctx.Err()
	}
}

// worker processes tasks from the queue.
func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.shutdown:
			// Drain remaining tasks before exiting
			p.drainQueue()
			return
		case t := <-p.queue:
			p.run(t)
		}
	}
}

// drainQueue runs remaining tasks after shutdown signal.
func (p *Pool) drainQueue() {
	for {
		select {
		case t := <-p.queue:
			p.run(t)
		default:
			return // queue empty
		}
	}
}

// run executes one task, containing any panic to that task.
func (p *Pool) run(t task) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			if p.metrics != nil {
				p.metrics.RecordRunnerPanic(context.Background())
			}
			p.logger.Error("Task panicked", "task", t.name, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			observability.CapturePanic(r, map[string]string{"component": "runner", "task": t.name})
		}
	}()

	p.logger.Debug("Task started", "task", t.name, "waited", time.Since(t.queuedAt))
	t.fn(p.ctx)
	p.completed.Add(1)
}
