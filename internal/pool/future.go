package pool

import (
	"context"
	"sync"
)

// Future is the pending result of a task submitted with Go.
type Future struct {
	done    chan struct{}
	value   any
	err     error
	cleanup func()
	once    sync.Once
}

func newFuture(cleanup func()) *Future {
	return &Future{done: make(chan struct{}), cleanup: cleanup}
}

func (f *Future) resolve(value any, err error) {
	f.value = value
	f.err = err
	close(f.done)
}

// release frees the task context. It runs once the task finished or was
// never enqueued.
func (f *Future) release() {
	f.once.Do(func() {
		if f.cleanup != nil {
			f.cleanup()
		}
	})
}

// Done is closed when the task has finished.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the task finishes or ctx is done. Cancelling ctx stops
// the wait only; the task observes cancellation through its own context when
// it was submitted with the same ctx.
func (f *Future) Wait(ctx context.Context) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Ready reports whether the task has finished.
func (f *Future) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}
