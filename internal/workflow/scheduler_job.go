package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"recap/internal/dedup"
	"recap/internal/logging"
	"recap/internal/pool"
	"recap/internal/queue"
	"recap/internal/services"
	"recap/internal/stage"
)

const outcomeAbandoned = "abandoned"

// errCancelledByOperator marks executions stopped through Cancel.
var errCancelledByOperator = errors.New("cancelled by operator")

// runJob drives one claimed job through every step. It returns the outcome
// label and a non-nil error only when the job was left in a non-terminal
// stage.
func (s *Scheduler) runJob(ctx context.Context, exec *execution, job *queue.Job) (string, error) {
	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, s.logger)
	logger.Info("job started",
		logging.String("source", job.SourceRef),
		logging.Int("attempt", job.Attempts),
		logging.String("priority", job.Priority.String()),
		logging.String(logging.FieldEventType, "job_start"),
	)
	started := s.now()

	decision := dedup.Decision{}
	defer func() { decision.Release(ctx) }()

	for i, step := range s.pipeline.Steps() {
		exec.setStage(step.Stage)
		stageCtx := services.WithStage(ctx, string(step.Kind))
		stageLogger := logging.WithContext(stageCtx, s.logger).With(logging.String("backend", step.Backend))

		if i > 0 || job.Stage != step.Stage {
			job.SetStage(step.Stage)
			if err := s.persist(ctx, job); err != nil {
				return s.abandon(ctx, exec, logger, job, err)
			}
		}

		stageStart := s.now()
		stageLogger.Info("stage started",
			logging.Int("progress", job.Progress),
			logging.String(logging.FieldEventType, "stage_start"),
		)
		out, err := s.runStep(stageCtx, step, job)
		elapsed := s.now().Sub(stageStart)
		s.observer.StageObserved(step.Stage, elapsed, err)
		if err != nil {
			return s.handleStepError(ctx, exec, stageLogger, step, job, err)
		}

		job.Artifacts = mergeArtifacts(job.Artifacts, out.Artifacts)
		if step.Kind == stage.KindAcquire {
			if key := strings.TrimSpace(out.ContentKey); key != "" {
				job.ContentKey = key
			}
			if out.Metadata != nil {
				job.Metadata = *out.Metadata
			}
		}
		if p := step.Stage.DoneProgress(); p > job.Progress {
			job.Progress = p
		}
		if err := s.persist(ctx, job); err != nil {
			return s.abandon(ctx, exec, logger, job, err)
		}
		stageLogger.Info("stage completed",
			logging.Int("progress", job.Progress),
			logging.Duration("stage_duration", elapsed),
			logging.String(logging.FieldEventType, "stage_complete"),
		)

		if step.Kind == stage.KindAcquire && s.gate != nil {
			decision, err = s.gate.Check(ctx, job.ContentKey, job.ID)
			if err != nil {
				if ctx.Err() != nil {
					return s.interrupted(ctx, exec, logger, job)
				}
				logging.WarnWithContext(logger, "dedup lookup failed; processing job in full", "dedup_lookup_failed",
					logging.String(logging.FieldContentKey, job.ContentKey),
					logging.Error(err),
					logging.String(logging.FieldImpact, "work for this content may be repeated"),
					logging.String(logging.FieldErrorHint, "check queue database access"),
				)
			}
			if decision.Duplicate() {
				return s.completeFromDuplicate(ctx, logger, job, decision.Source, started)
			}
		}
	}

	job.SetCompleted(s.now())
	if err := s.persist(ctx, job); err != nil {
		return s.abandon(ctx, exec, logger, job, err)
	}
	if s.gate != nil {
		s.gate.Remember(job)
	}
	logger.Info("job completed",
		logging.String("title", job.Title()),
		logging.String(logging.FieldContentKey, job.ContentKey),
		logging.Duration("duration", s.now().Sub(started)),
		logging.String(logging.FieldEventType, "job_complete"),
	)
	s.publish(ctx, logger, job)
	return string(queue.StageCompleted), nil
}

func (s *Scheduler) completeFromDuplicate(ctx context.Context, logger *zap.Logger, job, source *queue.Job, started time.Time) (string, error) {
	s.gate.Apply(job, source)
	if err := s.persist(ctx, job); err != nil {
		return outcomeAbandoned, err
	}
	s.observer.DedupHit()
	logger.Info("job completed from earlier result",
		logging.Int64("source_job_id", source.ID),
		logging.String(logging.FieldContentKey, job.ContentKey),
		logging.Duration("duration", s.now().Sub(started)),
		logging.String(logging.FieldEventType, "dedup_hit"),
	)
	s.publish(ctx, logger, job)
	return string(queue.StageCompleted), nil
}

// runStep dispatches the executor to its pool under the stage timeout.
func (s *Scheduler) runStep(ctx context.Context, step stage.Step, job *queue.Job) (stage.Output, error) {
	in := stage.Input{
		JobID:      job.ID,
		SourceRef:  job.SourceRef,
		ContentKey: job.ContentKey,
		Artifacts:  job.Artifacts.Clone(),
		Metadata:   job.Metadata,
	}
	target := s.pools.For(stage.ResourceFor(step.Kind, step.Executor))
	value, err := target.SubmitTimeout(ctx, s.stageTimeout, func(ctx context.Context) (any, error) {
		return step.Executor.Run(ctx, in)
	})
	if err != nil {
		if errors.Is(err, pool.ErrTimeout) {
			return stage.Output{}, services.Wrap(services.ErrTimeout, string(step.Kind), "run",
				fmt.Sprintf("stage exceeded %s", s.stageTimeout), err)
		}
		return stage.Output{}, err
	}
	out, _ := value.(stage.Output)
	return out, nil
}

func (s *Scheduler) handleStepError(ctx context.Context, exec *execution, logger *zap.Logger, step stage.Step, job *queue.Job, err error) (string, error) {
	if ctx.Err() != nil || errors.Is(err, pool.ErrClosed) {
		return s.interrupted(ctx, exec, logger, job)
	}

	details := services.Details(err)
	message := strings.TrimSpace(details.Message)
	if message == "" {
		message = "failed without error detail"
	}
	message = fmt.Sprintf("%s: %s", step.Kind, message)

	fields := []logging.Field{
		logging.Alert("stage_failure"),
		logging.String(logging.FieldErrorKind, string(details.Kind)),
		logging.String("error_operation", details.Operation),
		logging.String("error_message", message),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, failureHint(details.Kind)),
	}
	logging.ErrorWithContext(logger, "stage failed", "stage_failure", fields...)
	s.setLastError(err)

	if unit, ok := s.retryUnit(logger, job, err); ok {
		if perr := s.requeue(ctx, exec, logger, job, unit, message); perr != nil {
			return outcomeAbandoned, perr
		}
		return "retrying", nil
	}

	job.SetFailed(message, s.now())
	if perr := s.persist(ctx, job); perr != nil {
		return outcomeAbandoned, perr
	}
	s.publish(ctx, logger, job)
	return string(queue.StageFailed), nil
}

// interrupted handles a cancelled execution. Operator cancellation fails the
// job; shutdown leaves it in place for the startup sweep.
func (s *Scheduler) interrupted(ctx context.Context, exec *execution, logger *zap.Logger, job *queue.Job) (string, error) {
	if !exec.cancelled.Load() {
		logger.Debug("stage interrupted by shutdown", logging.String(logging.FieldStage, string(job.Stage)))
		return outcomeAbandoned, context.Canceled
	}
	current := job.Stage
	job.SetFailed(errCancelledByOperator.Error(), s.now())
	if err := s.persist(context.WithoutCancel(ctx), job); err != nil {
		return outcomeAbandoned, err
	}
	logger.Info("job cancelled",
		logging.String(logging.FieldStage, string(current)),
		logging.String(logging.FieldEventType, "job_cancelled"),
	)
	return "cancelled", nil
}

// abandon leaves the job where it is unless the operator cancelled it.
func (s *Scheduler) abandon(ctx context.Context, exec *execution, logger *zap.Logger, job *queue.Job, err error) (string, error) {
	if exec.cancelled.Load() {
		return s.interrupted(ctx, exec, logger, job)
	}
	return outcomeAbandoned, err
}

// persist writes job, retrying transient store failures with backoff.
func (s *Scheduler) persist(ctx context.Context, job *queue.Job) error {
	var err error
	delay := s.persistBackoff
	for attempt := 1; attempt <= s.persistAttempts; attempt++ {
		if err = s.store.Update(ctx, job); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == s.persistAttempts {
			break
		}
		s.logger.Debug("job persist failed; retrying",
			logging.Int64(logging.FieldJobID, job.ID),
			logging.Int("attempt", attempt),
			logging.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("persist job %d after %d attempts: %w", job.ID, s.persistAttempts, err)
}

// publish hands a terminal job to the publisher on the IO pool. Failures are
// logged and never change the job.
func (s *Scheduler) publish(ctx context.Context, logger *zap.Logger, job *queue.Job) {
	publisher := s.pipeline.Publisher()
	if publisher == nil {
		return
	}
	snapshot := *job
	snapshot.Artifacts = job.Artifacts.Clone()
	pubCtx := services.WithStage(context.WithoutCancel(ctx), string(stage.KindPublish))
	err := s.pools.IO.Submit(pubCtx, func(ctx context.Context) error {
		return publisher.Publish(ctx, &snapshot)
	})
	if err != nil {
		logging.WarnWithContext(logger, "publish failed", "publish_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "job result was not delivered; the job keeps its outcome"),
			logging.String(logging.FieldErrorHint, "check notification and notes settings"),
		)
	}
}

func mergeArtifacts(current, produced queue.Artifacts) queue.Artifacts {
	out := current.Clone()
	for name, ref := range produced {
		if strings.TrimSpace(ref) != "" {
			out[name] = ref
		}
	}
	return out
}

func failureHint(kind services.Kind) string {
	switch kind {
	case services.KindConfiguration:
		return "fix the backend configuration, then retry the job"
	case services.KindValidation:
		return "the source produced unusable output; retrying will not help"
	case services.KindExternalTool:
		return "check the external tool output in the logs"
	case services.KindTimeout:
		return "raise pools.stage_timeout or check the backend"
	case services.KindNotFound:
		return "an expected artifact is missing; retry to regenerate it"
	default:
		return "retry the job once the cause is resolved"
	}
}
