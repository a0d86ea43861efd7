package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a queue job in a transport-friendly format.
type Job struct {
	ID           int64             `json:"id"`
	SourceRef    string            `json:"sourceRef"`
	ContentKey   string            `json:"contentKey,omitempty"`
	Title        string            `json:"title"`
	Stage        string            `json:"stage"`
	Progress     int               `json:"progress"`
	Priority     string            `json:"priority"`
	Attempts     int               `json:"attempts"`
	ErrorMessage string            `json:"errorMessage,omitempty"`
	Artifacts    map[string]string `json:"artifacts,omitempty"`
	Metadata     *JobMetadata      `json:"metadata,omitempty"`
	CreatedAt    string            `json:"createdAt,omitempty"`
	UpdatedAt    string            `json:"updatedAt,omitempty"`
	CompletedAt  string            `json:"completedAt,omitempty"`
}

// JobMetadata mirrors the descriptive fields captured while acquiring.
type JobMetadata struct {
	Title           string `json:"title,omitempty"`
	Uploader        string `json:"uploader,omitempty"`
	Platform        string `json:"platform,omitempty"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
}

// ActiveJob is one running execution.
type ActiveJob struct {
	ID        int64  `json:"id"`
	Stage     string `json:"stage"`
	StartedAt string `json:"startedAt"`
}

// PendingRetry is a failed job waiting for its backoff to elapse.
type PendingRetry struct {
	ID        int64  `json:"id"`
	Priority  string `json:"priority"`
	Retries   int    `json:"retries"`
	NotBefore string `json:"notBefore"`
}

// StageHealth mirrors readiness reporting for stage backends.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// PoolStats reports worker pool counters.
type PoolStats struct {
	Name      string `json:"name"`
	Size      int    `json:"size"`
	Active    int64  `json:"active"`
	Queued    int64  `json:"queued"`
	Completed int64  `json:"completed"`
	Failed    int64  `json:"failed"`
}

// SchedulerStatus summarizes scheduler execution state.
type SchedulerStatus struct {
	Running        bool           `json:"running"`
	MaxConcurrent  int            `json:"maxConcurrent"`
	Priority       bool           `json:"priority"`
	Active         []ActiveJob    `json:"active"`
	QueueDepth     int            `json:"queueDepth"`
	QueueStats     map[string]int `json:"queueStats"`
	PendingRetries []PendingRetry `json:"pendingRetries,omitempty"`
	LastError      string         `json:"lastError,omitempty"`
	LastJobID      int64          `json:"lastJobId,omitempty"`
	StageHealth    []StageHealth  `json:"stageHealth"`
	Pools          []PoolStats    `json:"pools"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	QueueDBPath  string             `json:"queueDbPath"`
	LockFilePath string             `json:"lockFilePath"`
	Scheduler    SchedulerStatus    `json:"scheduler"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// CreateJobRequest submits a source reference for processing.
type CreateJobRequest struct {
	SourceRef string `json:"sourceRef"`
	Priority  string `json:"priority,omitempty"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}

// RetryResponse reports how many failed jobs were reset to pending.
type RetryResponse struct {
	Updated int64 `json:"updated"`
}
