package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"recap/internal/config"
	"recap/internal/dedup"
	"recap/internal/logging"
	"recap/internal/pool"
	"recap/internal/queue"
	"recap/internal/recovery"
	"recap/internal/stage"
)

// Observer receives scheduler events, typically for metrics.
type Observer interface {
	JobStarted()
	JobFinished(outcome string)
	StageObserved(stage queue.Stage, elapsed time.Duration, err error)
	DedupHit()
	RetryScheduled()
}

type nopObserver struct{}

func (nopObserver) JobStarted()                                    {}
func (nopObserver) JobFinished(string)                             {}
func (nopObserver) StageObserved(queue.Stage, time.Duration, error) {}
func (nopObserver) DedupHit()                                      {}
func (nopObserver) RetryScheduled()                                {}

// Deps bundles the collaborators a Scheduler drives. Gate and Observer are
// optional; Sweeper defaults to one over Store.
type Deps struct {
	Config   *config.Config
	Store    *queue.Store
	Pools    *pool.Set
	Pipeline *stage.Pipeline
	Gate     *dedup.Gate
	Sweeper  *recovery.Sweeper
	Observer Observer
	Logger   *zap.Logger
}

// Scheduler owns the run loop and the set of active executions.
type Scheduler struct {
	store    *queue.Store
	pools    *pool.Set
	pipeline *stage.Pipeline
	gate     *dedup.Gate
	sweeper  *recovery.Sweeper
	observer Observer
	logger   *zap.Logger
	now      func() time.Time

	maxConcurrent   int
	pollInterval    time.Duration
	errorRetryDelay time.Duration
	stageTimeout    time.Duration
	persistAttempts int
	persistBackoff  time.Duration

	recoverySchedule string
	recoveryMaxAge   time.Duration

	priority     bool
	maxRetries   int
	retryBackoff time.Duration
	maxBackoff   time.Duration

	wake chan struct{}

	// launchMu serializes claiming jobs against operator cancellation.
	launchMu sync.Mutex

	mu        sync.RWMutex
	running   bool
	cancel    context.CancelFunc
	loopWG    sync.WaitGroup
	jobsWG    sync.WaitGroup
	active    map[int64]*execution
	runnable  *runQueue
	lastErr   error
	lastJobID int64
}

// execution tracks one job owned by the scheduler.
type execution struct {
	jobID     int64
	started   time.Time
	cancel    context.CancelFunc
	cancelled atomic.Bool
	done      chan struct{}

	mu    sync.Mutex
	stage queue.Stage
	err   error

	// retry is the unit queued once the execution ends. Guarded by the
	// scheduler's mu.
	retry *QueuedUnit
}

func (e *execution) setStage(stage queue.Stage) {
	e.mu.Lock()
	e.stage = stage
	e.mu.Unlock()
}

func (e *execution) snapshot() (queue.Stage, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stage, e.err
}

func (e *execution) finish(err error) {
	e.mu.Lock()
	e.err = err
	e.mu.Unlock()
	close(e.done)
}

func (e *execution) finished() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// New validates deps and builds a scheduler. Nothing runs until Start.
func New(deps Deps) (*Scheduler, error) {
	if deps.Config == nil || deps.Store == nil || deps.Pools == nil || deps.Pipeline == nil {
		return nil, errors.New("workflow: config, store, pools and pipeline are required")
	}
	if len(deps.Pipeline.Steps()) == 0 {
		return nil, errors.New("workflow: pipeline has no steps")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "scheduler")
	observer := deps.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	sweeper := deps.Sweeper
	if sweeper == nil {
		sweeper = recovery.New(deps.Store, logger)
	}
	cfg := deps.Config
	attempts := cfg.Scheduler.PersistRetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	maxConcurrent := cfg.Scheduler.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	poll := cfg.PollInterval()
	if poll <= 0 {
		poll = time.Second
	}

	return &Scheduler{
		store:            deps.Store,
		pools:            deps.Pools,
		pipeline:         deps.Pipeline,
		gate:             deps.Gate,
		sweeper:          sweeper,
		observer:         observer,
		logger:           logger,
		now:              time.Now,
		maxConcurrent:    maxConcurrent,
		pollInterval:     poll,
		errorRetryDelay:  cfg.ErrorRetryDelay(),
		stageTimeout:     cfg.StageTimeout(),
		persistAttempts:  attempts,
		persistBackoff:   100 * time.Millisecond,
		recoverySchedule: cfg.Recovery.Schedule,
		recoveryMaxAge:   cfg.RecoveryMaxAge(),
		priority:         cfg.Priority.Enabled,
		maxRetries:       cfg.Priority.MaxRetries,
		retryBackoff:     time.Duration(cfg.Priority.RetryBackoff) * time.Second,
		maxBackoff:       time.Duration(cfg.Priority.MaxBackoff) * time.Second,
		wake:             make(chan struct{}, 1),
		active:           make(map[int64]*execution),
		runnable:         newRunQueue(),
	}, nil
}

// Start resets every job orphaned in an intermediate stage, schedules the
// periodic sweep and launches the run loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	s.mu.Unlock()

	reset, err := s.sweeper.Sweep(ctx, queue.ProcessingStages(), 0)
	if err != nil {
		return fmt.Errorf("startup recovery: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if s.recoverySchedule != "" {
		if err := s.sweeper.Start(runCtx, s.recoverySchedule, s.recoveryMaxAge); err != nil {
			cancel()
			return err
		}
	}

	s.mu.Lock()
	s.running = true
	s.cancel = cancel
	s.loopWG.Add(1)
	s.mu.Unlock()

	s.logger.Info("scheduler started",
		logging.Int("max_concurrent", s.maxConcurrent),
		logging.Duration("poll_interval", s.pollInterval),
		logging.Bool("priority", s.priority),
		logging.Int64("recovered_jobs", reset),
		logging.String(logging.FieldEventType, "scheduler_start"),
	)
	go s.loop(runCtx)
	return nil
}

// Stop halts the loop, cancels running executions and waits for them. Jobs
// interrupted mid-stage stay where they are for the next startup sweep.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.loopWG.Wait()
	s.jobsWG.Wait()
	s.sweeper.Stop()
	s.reap()
	s.logger.Info("scheduler stopped", logging.String(logging.FieldEventType, "scheduler_stop"))
}

// Wake asks the loop to poll now instead of at the next interval.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.loopWG.Done()
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-s.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		delay := s.pollInterval
		if err := s.tick(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.setLastError(err)
			logging.ErrorWithContext(s.logger, "failed to fetch runnable jobs", "queue_fetch_failed",
				logging.Error(err),
				logging.Duration("retry_in", s.errorRetryDelay),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
			if s.errorRetryDelay > 0 {
				delay = s.errorRetryDelay
			}
		}
		timer.Reset(delay)
	}
}

// tick reaps finished executions and launches jobs into free slots.
func (s *Scheduler) tick(ctx context.Context) error {
	s.reap()

	free := s.maxConcurrent - s.activeCount()
	if free <= 0 {
		return nil
	}

	var jobs []*queue.Job
	var err error
	if s.priority {
		jobs, err = s.nextFromQueue(ctx, free)
	} else {
		jobs, err = s.store.ListRunnable(ctx, s.activeIDs(), free)
	}
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if err := s.launch(ctx, job); err != nil {
			return err
		}
	}
	return nil
}

// nextFromQueue refreshes the heap from the store and pops up to n units.
func (s *Scheduler) nextFromQueue(ctx context.Context, n int) ([]*queue.Job, error) {
	s.mu.RLock()
	exclude := append(s.activeIDsLocked(), s.runnable.ids()...)
	s.mu.RUnlock()

	fresh, err := s.store.ListRunnable(ctx, exclude, max(n*4, 32))
	if err != nil {
		return nil, err
	}
	now := s.now()
	s.mu.Lock()
	for _, job := range fresh {
		s.runnable.push(QueuedUnit{
			JobID:      job.ID,
			Priority:   job.Priority,
			Retries:    max(job.Attempts-1, 0),
			EnqueuedAt: job.CreatedAt,
			NotBefore:  now,
		})
	}
	units := s.runnable.popReady(now, n)
	s.mu.Unlock()

	jobs := make([]*queue.Job, 0, len(units))
	for _, unit := range units {
		job, err := s.store.GetByID(ctx, unit.JobID)
		if err != nil {
			return nil, err
		}
		if job != nil && job.Stage == queue.StagePending {
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

// launch claims job and starts its execution. A job claimed by someone else
// or cancelled meanwhile is skipped.
func (s *Scheduler) launch(ctx context.Context, job *queue.Job) error {
	s.launchMu.Lock()
	defer s.launchMu.Unlock()

	claimed, err := s.store.Claim(ctx, job.ID)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}
	job.SetStage(queue.StageAcquiring)
	job.Attempts++
	job.Error = ""
	job.CompletedAt = nil
	job.Artifacts = nil

	execCtx, cancel := context.WithCancel(ctx)
	exec := &execution{
		jobID:   job.ID,
		started: s.now(),
		cancel:  cancel,
		done:    make(chan struct{}),
		stage:   job.Stage,
	}
	s.mu.Lock()
	s.active[job.ID] = exec
	s.lastJobID = job.ID
	s.mu.Unlock()

	s.observer.JobStarted()
	s.jobsWG.Add(1)
	go func() {
		defer s.jobsWG.Done()
		defer cancel()
		outcome, err := s.runJob(execCtx, exec, job)
		s.observer.JobFinished(outcome)
		s.settle(ctx, exec, err)
		s.Wake()
	}()
	return nil
}

// reap removes finished executions from the active set and logs the ones
// that stopped without reaching a terminal stage.
func (s *Scheduler) reap() {
	s.mu.Lock()
	var abandoned []*execution
	for id, exec := range s.active {
		if !exec.finished() {
			continue
		}
		delete(s.active, id)
		if _, err := exec.snapshot(); err != nil {
			abandoned = append(abandoned, exec)
		}
	}
	s.mu.Unlock()

	for _, exec := range abandoned {
		stage, err := exec.snapshot()
		if errors.Is(err, context.Canceled) {
			s.logger.Debug("execution interrupted by shutdown",
				logging.Int64(logging.FieldJobID, exec.jobID),
				logging.String(logging.FieldStage, string(stage)))
			continue
		}
		s.setLastError(err)
		logging.WarnWithContext(s.logger, "execution abandoned before a terminal stage", "execution_abandoned",
			logging.Int64(logging.FieldJobID, exec.jobID),
			logging.String(logging.FieldStage, string(stage)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "job stays in its current stage until the recovery sweeper resets it"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
	}
}

func (s *Scheduler) activeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active)
}

func (s *Scheduler) activeIDs() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeIDsLocked()
}

func (s *Scheduler) activeIDsLocked() []int64 {
	ids := make([]int64, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	return ids
}

// IsActive reports whether id is owned by a running execution.
func (s *Scheduler) IsActive(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exec, ok := s.active[id]
	return ok && !exec.finished()
}

func (s *Scheduler) setLastError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}
