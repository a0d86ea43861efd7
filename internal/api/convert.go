package api

import (
	"time"

	"recap/internal/deps"
	"recap/internal/queue"
	"recap/internal/workflow"
)

// FromJob converts a queue job to its API representation.
func FromJob(job *queue.Job) Job {
	if job == nil {
		return Job{}
	}
	dto := Job{
		ID:           job.ID,
		SourceRef:    job.SourceRef,
		ContentKey:   job.ContentKey,
		Title:        job.Title(),
		Stage:        string(job.Stage),
		Progress:     job.Progress,
		Priority:     job.Priority.String(),
		Attempts:     job.Attempts,
		ErrorMessage: job.Error,
		CreatedAt:    FormatTime(job.CreatedAt),
		UpdatedAt:    FormatTime(job.UpdatedAt),
	}
	if len(job.Artifacts) > 0 {
		dto.Artifacts = job.Artifacts.Clone()
	}
	if !job.Metadata.IsZero() {
		dto.Metadata = &JobMetadata{
			Title:           job.Metadata.Title,
			Uploader:        job.Metadata.Uploader,
			Platform:        job.Metadata.Platform,
			DurationSeconds: job.Metadata.DurationSeconds,
		}
	}
	if job.CompletedAt != nil {
		dto.CompletedAt = FormatTime(*job.CompletedAt)
	}
	return dto
}

// FromJobs converts a slice of queue jobs into API DTOs.
func FromJobs(jobs []*queue.Job) []Job {
	if len(jobs) == 0 {
		return nil
	}
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		if job == nil {
			continue
		}
		out = append(out, FromJob(job))
	}
	return out
}

// FromStatusSummary converts a scheduler status summary to its API payload.
func FromStatusSummary(summary workflow.StatusSummary) SchedulerStatus {
	status := SchedulerStatus{
		Running:       summary.Running,
		MaxConcurrent: summary.MaxConcurrent,
		Priority:      summary.Priority,
		QueueDepth:    summary.QueueDepth,
		QueueStats:    MergeQueueStats(summary.QueueStats),
		LastError:     summary.LastError,
		LastJobID:     summary.LastJobID,
	}
	for _, active := range summary.Active {
		status.Active = append(status.Active, ActiveJob{
			ID:        active.ID,
			Stage:     string(active.Stage),
			StartedAt: FormatTime(active.Started),
		})
	}
	for _, unit := range summary.PendingRetries {
		status.PendingRetries = append(status.PendingRetries, PendingRetry{
			ID:        unit.JobID,
			Priority:  unit.Priority.String(),
			Retries:   unit.Retries,
			NotBefore: FormatTime(unit.NotBefore),
		})
	}
	for _, h := range summary.StageHealth {
		status.StageHealth = append(status.StageHealth, StageHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	for _, p := range summary.Pools {
		status.Pools = append(status.Pools, PoolStats{
			Name:      p.Name,
			Size:      p.Size,
			Active:    p.Active,
			Queued:    p.Queued,
			Completed: p.Completed,
			Failed:    p.Failed,
		})
	}
	return status
}

// FromDependencies converts dependency checks to their API payload.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, 0, len(statuses))
	for _, dep := range statuses {
		out = append(out, DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		})
	}
	return out
}

// MergeQueueStats produces a string-keyed representation of queue stats.
func MergeQueueStats(stats map[queue.Stage]int) map[string]int {
	out := make(map[string]int, len(stats))
	for stage, count := range stats {
		out[string(stage)] = count
	}
	return out
}

// FormatTime converts a time to RFC3339 or returns empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
