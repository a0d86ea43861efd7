package pool

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Set holds the IO and CPU pools shared by every stage executor.
type Set struct {
	IO  *Pool
	CPU *Pool
}

// NewSet starts both pools.
func NewSet(ioWorkers, cpuWorkers, queueDepth int, logger *zap.Logger, opts ...Option) *Set {
	return &Set{
		IO:  New(string(KindIO), ioWorkers, queueDepth, logger, opts...),
		CPU: New(string(KindCPU), cpuWorkers, queueDepth, logger, opts...),
	}
}

// For returns the pool serving kind. Unknown kinds route to the IO pool.
func (s *Set) For(kind Kind) *Pool {
	if kind == KindCPU {
		return s.CPU
	}
	return s.IO
}

// Shutdown drains both pools concurrently under the same deadline.
func (s *Set) Shutdown(ctx context.Context) error {
	errs := make(chan error, 2)
	for _, p := range []*Pool{s.IO, s.CPU} {
		go func(p *Pool) {
			errs <- p.Shutdown(ctx)
		}(p)
	}
	return errors.Join(<-errs, <-errs)
}

// Stats returns counters for both pools.
func (s *Set) Stats() []Stats {
	return []Stats{s.IO.Stats(), s.CPU.Stats()}
}
