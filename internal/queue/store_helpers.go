package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const jobColumns = "id, source_ref, content_key, stage, progress, artifacts_json, metadata_json, priority, attempts, error_message, created_at, updated_at, completed_at"

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id           int64
		sourceRef    string
		contentKey   sql.NullString
		stageStr     string
		progress     int
		artifactsRaw sql.NullString
		metadataRaw  sql.NullString
		priority     int
		attempts     int
		errorMessage sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
		completedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&sourceRef,
		&contentKey,
		&stageStr,
		&progress,
		&artifactsRaw,
		&metadataRaw,
		&priority,
		&attempts,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:         id,
		SourceRef:  sourceRef,
		ContentKey: contentKey.String,
		Stage:      Stage(stageStr),
		Progress:   progress,
		Artifacts:  Artifacts{},
		Priority:   Priority(priority),
		Attempts:   attempts,
		Error:      errorMessage.String,
	}
	if artifactsRaw.Valid && artifactsRaw.String != "" {
		if err := json.Unmarshal([]byte(artifactsRaw.String), &job.Artifacts); err != nil {
			return nil, fmt.Errorf("decode artifacts for job %d: %w", id, err)
		}
	}
	if metadataRaw.Valid && metadataRaw.String != "" {
		if err := json.Unmarshal([]byte(metadataRaw.String), &job.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for job %d: %w", id, err)
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			job.CompletedAt = &completed
		}
	}
	return job, nil
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	defer rows.Close()
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func encodeArtifacts(artifacts Artifacts) (any, error) {
	if len(artifacts) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(artifacts)
	if err != nil {
		return nil, fmt.Errorf("encode artifacts: %w", err)
	}
	return string(data), nil
}

func encodeMetadata(meta Metadata) (any, error) {
	if meta.IsZero() {
		return nil, nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return string(data), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func stageArgs(stages []Stage) []any {
	args := make([]any, 0, len(stages))
	for _, stage := range stages {
		args = append(args, string(stage))
	}
	return args
}

func idArgs(ids []int64) []any {
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	return args
}
