package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Create inserts a new pending job for sourceRef.
func (s *Store) Create(ctx context.Context, sourceRef string, priority Priority) (*Job, error) {
	sourceRef = strings.TrimSpace(sourceRef)
	if sourceRef == "" {
		return nil, errors.New("source reference is required")
	}
	if priority == 0 {
		priority = PriorityNormal
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("invalid priority %d", priority)
	}
	timestamp := s.timestamp()

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (
            source_ref, stage, progress, priority, attempts, created_at, updated_at
        ) VALUES (?, ?, 0, ?, 0, ?, ?)`,
		sourceRef,
		StagePending,
		int(priority),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a job by identifier. A missing job yields nil, nil.
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListRunnable returns up to limit pending jobs that are not in exclude,
// highest priority first and oldest first within a priority.
func (s *Store) ListRunnable(ctx context.Context, exclude []int64, limit int) ([]*Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE stage = ?`
	args := []any{string(StagePending)}
	if len(exclude) > 0 {
		query += ` AND id NOT IN (` + makePlaceholders(len(exclude)) + `)`
		args = append(args, idArgs(exclude)...)
	}
	query += ` ORDER BY priority DESC, created_at ASC, id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runnable jobs: %w", err)
	}
	return scanJobs(rows)
}

// Claim moves a pending job into the acquiring stage, clears any artifacts
// left from an earlier attempt and increments its attempt counter. It reports false when the job was no longer pending, so at
// most one execution owns a job.
func (s *Store) Claim(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET stage = ?, progress = ?, artifacts_json = NULL, attempts = attempts + 1,
             error_message = NULL, completed_at = NULL, updated_at = ?
         WHERE id = ? AND stage = ?`,
		StageAcquiring,
		StageAcquiring.StartProgress(),
		s.timestamp(),
		id,
		StagePending,
	)
	if err != nil {
		return false, fmt.Errorf("claim job %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim job %d: %w", id, err)
	}
	return affected == 1, nil
}

// Update persists every mutable field of a job owned by the caller.
func (s *Store) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	artifacts, err := encodeArtifacts(job.Artifacts)
	if err != nil {
		return err
	}
	metadata, err := encodeMetadata(job.Metadata)
	if err != nil {
		return err
	}
	job.UpdatedAt = s.now().UTC()
	_, err = s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET content_key = ?, stage = ?, progress = ?, artifacts_json = ?, metadata_json = ?,
             priority = ?, attempts = ?, error_message = ?, updated_at = ?, completed_at = ?
         WHERE id = ?`,
		nullableString(job.ContentKey),
		job.Stage,
		job.Progress,
		artifacts,
		metadata,
		int(job.Priority),
		job.Attempts,
		nullableString(job.Error),
		formatTime(job.UpdatedAt),
		nullableTime(job.CompletedAt),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job %d: %w", job.ID, err)
	}
	return nil
}

// Patch updates only the fields set in patch, plus updated_at.
func (s *Store) Patch(ctx context.Context, id int64, patch JobPatch) error {
	if patch.IsEmpty() {
		return nil
	}
	var (
		sets []string
		args []any
	)
	if patch.Stage != nil {
		sets = append(sets, "stage = ?")
		args = append(args, string(*patch.Stage))
	}
	if patch.Progress != nil {
		sets = append(sets, "progress = ?")
		args = append(args, *patch.Progress)
	}
	if patch.ContentKey != nil {
		sets = append(sets, "content_key = ?")
		args = append(args, nullableString(*patch.ContentKey))
	}
	if patch.Artifacts != nil {
		encoded, err := encodeArtifacts(patch.Artifacts)
		if err != nil {
			return err
		}
		sets = append(sets, "artifacts_json = ?")
		args = append(args, encoded)
	}
	if patch.Metadata != nil {
		encoded, err := encodeMetadata(*patch.Metadata)
		if err != nil {
			return err
		}
		sets = append(sets, "metadata_json = ?")
		args = append(args, encoded)
	}
	if patch.Error != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, nullableString(*patch.Error))
	}
	if patch.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, nullableTime(patch.CompletedAt))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, s.timestamp(), id)

	res, err := s.execWithRetry(ctx, `UPDATE jobs SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("patch job %d: %w", id, err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("patch job %d: %w", id, sql.ErrNoRows)
	}
	return nil
}

// FindCompletedByContentKey returns the most recently completed job with the
// given content key, ignoring excludeID. A miss yields nil, nil.
func (s *Store) FindCompletedByContentKey(ctx context.Context, key string, excludeID int64) (*Job, error) {
	if strings.TrimSpace(key) == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+jobColumns+` FROM jobs
         WHERE content_key = ? AND stage = ? AND id != ?
         ORDER BY completed_at DESC, id DESC LIMIT 1`,
		key,
		StageCompleted,
		excludeID,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find completed by content key: %w", err)
	}
	return job, nil
}

// List returns jobs ordered by id, optionally filtered to the given stages.
func (s *Store) List(ctx context.Context, stages ...Stage) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []any
	if len(stages) > 0 {
		query += ` WHERE stage IN (` + makePlaceholders(len(stages)) + `)`
		args = stageArgs(stages)
	}
	query += ` ORDER BY id`
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return scanJobs(rows)
}

// Remove deletes a job. It reports whether a row was removed.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("remove job %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
