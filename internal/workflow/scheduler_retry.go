package workflow

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"recap/internal/logging"
	"recap/internal/queue"
	"recap/internal/services"
)

// retryUnit reports the queue unit for an automatic retry of job after err.
// Retries need the priority scheduler, a transient error kind and budget left.
func (s *Scheduler) retryUnit(logger *zap.Logger, job *queue.Job, err error) (QueuedUnit, bool) {
	if !s.priority || !services.IsRetryable(err) {
		return QueuedUnit{}, false
	}
	retries := max(job.Attempts-1, 0)
	if retries >= s.maxRetries {
		logger.Info("retry budget exhausted",
			logging.Int("retries", retries),
			logging.Int("max_retries", s.maxRetries),
			logging.String(logging.FieldEventType, "retry_exhausted"),
		)
		return QueuedUnit{}, false
	}
	now := s.now()
	return QueuedUnit{
		JobID:      job.ID,
		Priority:   job.Priority,
		Retries:    retries + 1,
		EnqueuedAt: now,
		NotBefore:  now.Add(retryBackoff(retries+1, s.retryBackoff, s.maxBackoff)),
	}, true
}

// requeue parks job as pending with message as its last error. The unit
// enters the run queue when the execution settles and waits there until its
// backoff elapses. The job never passes through failed while a retry is
// outstanding.
func (s *Scheduler) requeue(ctx context.Context, exec *execution, logger *zap.Logger, job *queue.Job, unit QueuedUnit, message string) error {
	job.Stage = queue.StagePending
	job.Progress = 0
	job.Error = message
	job.CompletedAt = nil
	job.Artifacts = nil
	if err := s.persist(ctx, job); err != nil {
		return err
	}
	s.mu.Lock()
	exec.retry = &unit
	s.mu.Unlock()
	s.observer.RetryScheduled()
	logger.Info("retry scheduled",
		logging.Int("retry", unit.Retries),
		logging.Int("max_retries", s.maxRetries),
		logging.Duration("backoff", unit.NotBefore.Sub(unit.EnqueuedAt)),
		logging.String(logging.FieldEventType, "retry_scheduled"),
	)
	return nil
}

// settle marks exec finished and queues its retry. A retry cancelled by the
// operator before the execution ended fails the job instead.
func (s *Scheduler) settle(ctx context.Context, exec *execution, err error) {
	s.mu.Lock()
	unit := exec.retry
	if unit != nil && !exec.cancelled.Load() {
		s.runnable.remove(unit.JobID)
		s.runnable.push(*unit)
		exec.finish(err)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if unit != nil {
		if _, cerr := s.failPending(context.WithoutCancel(ctx), exec.jobID); cerr != nil {
			logging.WarnWithContext(s.logger, "failed to cancel queued retry", "retry_cancel_failed",
				logging.Int64(logging.FieldJobID, exec.jobID),
				logging.Error(cerr),
				logging.String(logging.FieldImpact, "the job stays pending and will run again"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
		}
	}
	exec.finish(err)
}

// Cancel stops job id. A running execution is cancelled and the job fails;
// a queued or pending job, including one backing off before a retry, is
// marked failed without running. It reports false when the job already
// finished.
func (s *Scheduler) Cancel(ctx context.Context, id int64) (bool, error) {
	s.launchMu.Lock()
	defer s.launchMu.Unlock()

	s.mu.Lock()
	if exec, ok := s.active[id]; ok && !exec.finished() {
		exec.cancelled.Store(true)
		exec.cancel()
		s.mu.Unlock()
		return true, nil
	}
	s.runnable.remove(id)
	s.mu.Unlock()

	return s.failPending(ctx, id)
}

// failPending marks a pending job failed as cancelled by the operator.
func (s *Scheduler) failPending(ctx context.Context, id int64) (bool, error) {
	job, err := s.store.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, services.Wrap(services.ErrNotFound, "", "cancel", fmt.Sprintf("job %d not found", id), nil)
	}
	if job.Stage != queue.StagePending {
		return false, nil
	}
	job.SetFailed(errCancelledByOperator.Error(), s.now())
	if err := s.store.Update(ctx, job); err != nil {
		return false, err
	}
	s.logger.Info("job cancelled",
		logging.Int64(logging.FieldJobID, id),
		logging.String(logging.FieldEventType, "job_cancelled"),
	)
	return true, nil
}

// PendingRetries returns the queued retries still backing off, ordered by
// due time.
func (s *Scheduler) PendingRetries() []QueuedUnit {
	now := s.now()
	s.mu.RLock()
	out := s.runnable.waiting(now)
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b QueuedUnit) int { return a.NotBefore.Compare(b.NotBefore) })
	return out
}
