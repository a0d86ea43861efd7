package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"recap/internal/logging"
)

// Kind names an execution resource.
type Kind string

const (
	KindIO  Kind = "io"
	KindCPU Kind = "cpu"
)

var (
	// ErrClosed is returned when submitting to a pool that is shutting down.
	ErrClosed = errors.New("pool closed")
	// ErrTimeout is returned by SubmitTimeout when the wait exceeds its limit.
	ErrTimeout = errors.New("pool task timed out")
	// ErrShutdownTimeout is returned when running work outlives the shutdown context.
	ErrShutdownTimeout = errors.New("pool shutdown timed out")
)

// Task is a unit of work executed by a pool worker.
type Task func(ctx context.Context) (any, error)

// Observer receives pool lifecycle events, typically for metrics.
type Observer interface {
	TaskQueued(pool string)
	TaskStarted(pool string, wait time.Duration)
	TaskFinished(pool string, elapsed time.Duration, err error)
}

// Option configures a Pool.
type Option func(*Pool)

// WithObserver attaches an Observer.
func WithObserver(o Observer) Option {
	return func(p *Pool) {
		p.observer = o
	}
}

// Stats is a point-in-time snapshot of pool activity.
type Stats struct {
	Name      string `json:"name"`
	Size      int    `json:"size"`
	Active    int64  `json:"active"`
	Queued    int64  `json:"queued"`
	Completed int64  `json:"completed"`
	Failed    int64  `json:"failed"`
}

type task struct {
	ctx      context.Context
	fn       Task
	future   *Future
	enqueued time.Time
}

// Pool runs tasks on a fixed set of worker goroutines.
type Pool struct {
	name     string
	size     int
	logger   *zap.Logger
	observer Observer

	tasks chan task

	mu      sync.RWMutex
	closed  bool
	closing chan struct{}
	senders sync.WaitGroup

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	active    atomic.Int64
	queued    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// New starts a pool with size workers and a task buffer of queueDepth.
// A non-positive queueDepth buffers one slot per worker.
func New(name string, size, queueDepth int, logger *zap.Logger, opts ...Option) *Pool {
	if size <= 0 {
		size = 1
	}
	if queueDepth <= 0 {
		queueDepth = size
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	base, cancel := context.WithCancel(context.Background())
	p := &Pool{
		name:   name,
		size:   size,
		logger: logger.With(logging.String(logging.FieldPool, name)),
		tasks:   make(chan task, queueDepth),
		closing: make(chan struct{}),
		base:    base,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	p.logger.Debug("pool started",
		logging.Int("workers", size),
		logging.Int("queue_depth", queueDepth))
	return p
}

// Name returns the pool name.
func (p *Pool) Name() string {
	return p.name
}

// Size returns the worker count.
func (p *Pool) Size() int {
	return p.size
}

// Go enqueues fn and returns immediately with a Future for its result. It
// blocks only while the task buffer is full, until ctx ends or the pool
// starts shutting down.
func (p *Pool) Go(ctx context.Context, fn Task) (*Future, error) {
	if fn == nil {
		return nil, errors.New("pool task is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, ErrClosed
	}
	p.senders.Add(1)
	p.mu.RUnlock()
	defer p.senders.Done()

	taskCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(p.base, cancel)
	future := newFuture(func() {
		stop()
		cancel()
	})
	t := task{ctx: taskCtx, fn: fn, future: future, enqueued: time.Now()}

	p.queued.Add(1)
	select {
	case p.tasks <- t:
		if p.observer != nil {
			p.observer.TaskQueued(p.name)
		}
		return future, nil
	case <-p.closing:
		p.queued.Add(-1)
		future.release()
		return nil, ErrClosed
	case <-ctx.Done():
		p.queued.Add(-1)
		future.release()
		return nil, ctx.Err()
	}
}

// Submit enqueues fn and waits for it to finish.
func (p *Pool) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	future, err := p.Go(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	if err != nil {
		return err
	}
	_, err = future.Wait(ctx)
	return err
}

// SubmitTimeout runs fn and waits at most d for it. On timeout the task's
// context is cancelled and ErrTimeout is returned; the task itself keeps its
// worker until it observes the cancellation.
func (p *Pool) SubmitTimeout(ctx context.Context, d time.Duration, fn Task) (any, error) {
	if d <= 0 {
		future, err := p.Go(ctx, fn)
		if err != nil {
			return nil, err
		}
		return future.Wait(ctx)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	future, err := p.Go(timeoutCtx, fn)
	if err == nil {
		var value any
		value, err = future.Wait(timeoutCtx)
		if err == nil {
			return value, nil
		}
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, fmt.Errorf("%w after %s", ErrTimeout, d)
	}
	return nil, err
}

// Call runs fn on p and returns its typed result.
func Call[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	future, err := p.Go(ctx, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	value, err := future.Wait(ctx)
	if err != nil {
		return zero, err
	}
	typed, ok := value.(T)
	if !ok && value != nil {
		return zero, fmt.Errorf("pool %s: unexpected result type %T", p.name, value)
	}
	return typed, nil
}

// Shutdown stops accepting work and waits for queued and running tasks to
// finish. Callers blocked in Go on a full buffer get ErrClosed. If ctx
// expires first, every task context is cancelled and ErrShutdownTimeout is
// returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.closing)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		// tasks closes only once no sender can still write to it.
		p.senders.Wait()
		close(p.tasks)
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Debug("pool stopped")
		return nil
	case <-ctx.Done():
		p.cancel()
		p.logger.Warn("pool shutdown deadline exceeded; cancelling running tasks",
			logging.Int64("active", p.active.Load()),
			logging.Int64("queued", p.queued.Load()),
			logging.String(logging.FieldEventType, "pool_shutdown_timeout"),
			logging.String(logging.FieldImpact, "in-flight stage work was cancelled"),
			logging.String(logging.FieldErrorHint, "Raise pools.shutdown_timeout if stages need longer to finish"))
		return fmt.Errorf("%w: %s", ErrShutdownTimeout, p.name)
	}
}

// Stats returns current counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Name:      p.name,
		Size:      p.size,
		Active:    p.active.Load(),
		Queued:    p.queued.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for t := range p.tasks {
		p.queued.Add(-1)
		p.run(t)
	}
}

func (p *Pool) run(t task) {
	defer t.future.release()

	if err := t.ctx.Err(); err != nil {
		p.failed.Add(1)
		t.future.resolve(nil, err)
		return
	}

	p.active.Add(1)
	started := time.Now()
	if p.observer != nil {
		p.observer.TaskStarted(p.name, started.Sub(t.enqueued))
	}

	value, err := p.invoke(t)

	p.active.Add(-1)
	elapsed := time.Since(started)
	if err != nil {
		p.failed.Add(1)
	} else {
		p.completed.Add(1)
	}
	if p.observer != nil {
		p.observer.TaskFinished(p.name, elapsed, err)
	}
	t.future.resolve(value, err)
}

func (p *Pool) invoke(t task) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pool task panicked",
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
				logging.String(logging.FieldEventType, "pool_task_panic"),
				logging.String(logging.FieldImpact, "the task failed; the worker keeps running"),
				logging.String(logging.FieldErrorHint, "Inspect the stack trace for the failing stage"))
			err = fmt.Errorf("pool %s: task panicked: %v", p.name, r)
		}
	}()
	return t.fn(t.ctx)
}
