package queue

import (
	"context"
	"fmt"
	"time"
)

// ListStale returns jobs in the given stages. When olderThan is positive only
// jobs whose updated_at precedes now-olderThan are returned.
func (s *Store) ListStale(ctx context.Context, stages []Stage, olderThan time.Duration) ([]*Job, error) {
	if len(stages) == 0 {
		return nil, nil
	}
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE stage IN (` + makePlaceholders(len(stages)) + `)`
	args := stageArgs(stages)
	if olderThan > 0 {
		query += ` AND updated_at < ?`
		args = append(args, formatTime(s.now().Add(-olderThan)))
	}
	query += ` ORDER BY id`
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list stale jobs: %w", err)
	}
	return scanJobs(rows)
}

// ResetToPending returns jobs in the given stages to pending with progress 0
// and no error. olderThan follows ListStale. Artifacts from the interrupted
// attempt are dropped so a re-run only shows what it produced itself.
func (s *Store) ResetToPending(ctx context.Context, stages []Stage, olderThan time.Duration) (int64, error) {
	for _, stage := range stages {
		if !stage.IsProcessing() {
			return 0, fmt.Errorf("reset to pending: stage %q is not an intermediate stage", stage)
		}
	}
	if len(stages) == 0 {
		return 0, nil
	}
	now := s.now()
	query := `UPDATE jobs
         SET stage = ?, progress = 0, artifacts_json = NULL, error_message = NULL,
             completed_at = NULL, updated_at = ?
         WHERE stage IN (` + makePlaceholders(len(stages)) + `)`
	args := []any{string(StagePending), formatTime(now)}
	args = append(args, stageArgs(stages)...)
	if olderThan > 0 {
		query += ` AND updated_at < ?`
		args = append(args, formatTime(now.Add(-olderThan)))
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("reset stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed moves failed jobs back to pending for reprocessing, dropping
// the artifacts of the failed attempt. With no ids every failed job is retried.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	const set = `UPDATE jobs
        SET stage = ?, progress = 0, artifacts_json = NULL, error_message = NULL,
            completed_at = NULL, updated_at = ?`
	if len(ids) == 0 {
		res, err := s.execWithRetry(ctx, set+` WHERE stage = ?`,
			StagePending,
			s.timestamp(),
			StageFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed jobs: %w", err)
		}
		return res.RowsAffected()
	}

	args := make([]any, 0, len(ids)+3)
	args = append(args, StagePending, s.timestamp())
	args = append(args, idArgs(ids)...)
	args = append(args, StageFailed)
	query := set + ` WHERE id IN (` + makePlaceholders(len(ids)) + `) AND stage = ?`
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected jobs: %w", err)
	}
	return res.RowsAffected()
}
