// Package recovery returns jobs orphaned in intermediate stages to pending.
//
// A job sits in acquiring, extracting_audio, transcribing or summarizing only
// while an execution owns it. After a crash nothing owns it any more, so the
// scheduler sweeps every intermediate job once at startup, and a cron
// schedule periodically sweeps jobs whose last update is older than the
// configured age.
package recovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"recap/internal/logging"
	"recap/internal/queue"
)

// Store is the slice of the job store the sweeper needs.
type Store interface {
	ListStale(ctx context.Context, stages []queue.Stage, olderThan time.Duration) ([]*queue.Job, error)
	ResetToPending(ctx context.Context, stages []queue.Stage, olderThan time.Duration) (int64, error)
}

// Sweeper resets orphaned jobs.
type Sweeper struct {
	store   Store
	logger  *zap.Logger
	onReset func(count int64)
	after   []func(ctx context.Context)

	mu   sync.Mutex
	cron *cron.Cron
}

// Option customizes a Sweeper.
type Option func(*Sweeper)

// WithResetHook is called with the number of jobs each sweep reset.
func WithResetHook(fn func(count int64)) Option {
	return func(s *Sweeper) { s.onReset = fn }
}

// WithAfterSweep registers fn to run after every scheduled sweep, for
// housekeeping that shares the recovery schedule.
func WithAfterSweep(fn func(ctx context.Context)) Option {
	return func(s *Sweeper) {
		if fn != nil {
			s.after = append(s.after, fn)
		}
	}
}

// New builds a sweeper.
func New(store Store, logger *zap.Logger, opts ...Option) *Sweeper {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Sweeper{store: store, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep resets jobs in stages to pending. maxAge zero resets all of them;
// otherwise only those not updated within maxAge. Pending and terminal
// stages are rejected by the store.
func (s *Sweeper) Sweep(ctx context.Context, stages []queue.Stage, maxAge time.Duration) (int64, error) {
	if len(stages) == 0 {
		stages = queue.ProcessingStages()
	}
	for _, stage := range stages {
		if !stage.IsProcessing() {
			return 0, fmt.Errorf("recovery sweep: %q is not an intermediate stage", stage)
		}
	}
	stale, err := s.store.ListStale(ctx, stages, maxAge)
	if err != nil {
		return 0, fmt.Errorf("list stale jobs: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}
	count, err := s.store.ResetToPending(ctx, stages, maxAge)
	if err != nil {
		return 0, fmt.Errorf("reset stale jobs: %w", err)
	}
	ids := make([]int64, 0, len(stale))
	for _, job := range stale {
		ids = append(ids, job.ID)
	}
	s.logger.Info("reset orphaned jobs to pending",
		logging.Int64("count", count),
		logging.Int64s("job_ids", ids),
		logging.Duration("max_age", maxAge),
		logging.String(logging.FieldEventType, "recovery_sweep"),
	)
	if s.onReset != nil && count > 0 {
		s.onReset(count)
	}
	return count, nil
}

// Start schedules periodic sweeps of all intermediate stages older than
// maxAge. schedule uses standard cron syntax or descriptors like "@every 1h".
func (s *Sweeper) Start(ctx context.Context, schedule string, maxAge time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return fmt.Errorf("recovery sweeper already started")
	}
	c := cron.New(cron.WithLogger(cronLogger{s.logger.Sugar()}), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(schedule, func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.Sweep(ctx, queue.ProcessingStages(), maxAge); err != nil {
			logging.WarnWithContext(s.logger, "periodic recovery sweep failed", "recovery_sweep_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "orphaned jobs stay stuck until the next sweep"),
				logging.String(logging.FieldErrorHint, "check the queue database"),
			)
		}
		for _, fn := range s.after {
			fn(ctx)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule recovery %q: %w", schedule, err)
	}
	c.Start()
	s.cron = c
	s.logger.Info("recovery sweeper scheduled",
		logging.String("schedule", schedule),
		logging.Duration("max_age", maxAge),
	)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// cronLogger routes cron's own messages to zap at debug level.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.sugar.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.sugar.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
