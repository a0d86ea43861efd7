package ipc

import "recap/internal/api"

// Job mirrors the HTTP API job DTO for IPC callers.
type Job = api.Job

// SchedulerStatus mirrors the HTTP API scheduler status.
type SchedulerStatus = api.SchedulerStatus

// DependencyStatus describes availability of an external dependency.
type DependencyStatus = api.DependencyStatus

// StartRequest triggers scheduler startup.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops the scheduler.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon and scheduler status.
type StatusResponse struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	LockPath     string             `json:"lock_path"`
	QueueDBPath  string             `json:"queue_db_path"`
	APIAddress   string             `json:"api_address,omitempty"`
	Scheduler    SchedulerStatus    `json:"scheduler"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// SubmitRequest enqueues a source reference.
type SubmitRequest struct {
	SourceRef string `json:"source_ref"`
	Priority  string `json:"priority"`
}

// SubmitResponse returns the created job.
type SubmitResponse struct {
	Job Job `json:"job"`
}

// ShowRequest fetches a single job by id.
type ShowRequest struct {
	ID int64 `json:"id"`
}

// ShowResponse contains a single job.
type ShowResponse struct {
	Job Job `json:"job"`
}

// QueueListRequest filters job listing by stage.
type QueueListRequest struct {
	Stages []string `json:"stages"`
}

// QueueListResponse contains jobs.
type QueueListResponse struct {
	Jobs []Job `json:"jobs"`
}

// QueueStatsRequest fetches per-stage counts.
type QueueStatsRequest struct{}

// QueueStatsResponse reports per-stage counts.
type QueueStatsResponse struct {
	Counts map[string]int `json:"counts"`
}

// QueueClearRequest removes jobs. Scope is "all", "completed", or "failed".
type QueueClearRequest struct {
	Scope string `json:"scope"`
}

// QueueClearResponse reports number of removed jobs.
type QueueClearResponse struct {
	Removed int64 `json:"removed"`
}

// QueueRetryRequest retries failed jobs. Empty list means all failed jobs.
type QueueRetryRequest struct {
	IDs []int64 `json:"ids"`
}

// QueueRetryResponse reports number of retried jobs.
type QueueRetryResponse struct {
	Updated int64 `json:"updated"`
}

// QueueCancelRequest cancels running or queued jobs. Empty list is invalid.
type QueueCancelRequest struct {
	IDs []int64 `json:"ids"`
}

// QueueCancelResponse reports number of cancelled jobs.
type QueueCancelResponse struct {
	Cancelled int64 `json:"cancelled"`
}

// QueueRemoveRequest removes specific jobs by ID.
type QueueRemoveRequest struct {
	IDs []int64 `json:"ids"`
}

// QueueRemoveResponse reports number of removed jobs.
type QueueRemoveResponse struct {
	Removed int64 `json:"removed"`
}

// QueueHealthRequest fetches aggregate diagnostics.
type QueueHealthRequest struct{}

// QueueHealthResponse reports queue health information.
type QueueHealthResponse struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Failed     int `json:"failed"`
	Completed  int `json:"completed"`
}

// DatabaseHealthRequest fetches detailed database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse reports database health information.
type DatabaseHealthResponse struct {
	DBPath           string `json:"db_path"`
	DatabaseExists   bool   `json:"database_exists"`
	DatabaseReadable bool   `json:"database_readable"`
	SchemaVersion    int    `json:"schema_version"`
	TableExists      bool   `json:"table_exists"`
	IntegrityCheck   bool   `json:"integrity_check"`
	TotalJobs        int    `json:"total_jobs"`
	Error            string `json:"error"`
}

// LogTailRequest fetches log lines based on offset and follow semantics.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	Follow     bool  `json:"follow"`
	WaitMillis int   `json:"wait_millis"`
	JobID      int64 `json:"job_id"`
}

// LogTailResponse returns log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
