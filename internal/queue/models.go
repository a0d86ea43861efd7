package queue

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"
)

// Stage represents the lifecycle position of a job.
type Stage string

const (
	StagePending         Stage = "pending"
	StageAcquiring       Stage = "acquiring"
	StageExtractingAudio Stage = "extracting_audio"
	StageTranscribing    Stage = "transcribing"
	StageSummarizing     Stage = "summarizing"
	StageCompleted       Stage = "completed"
	StageFailed          Stage = "failed"
)

var allStages = []Stage{
	StagePending,
	StageAcquiring,
	StageExtractingAudio,
	StageTranscribing,
	StageSummarizing,
	StageCompleted,
	StageFailed,
}

var processingStages = []Stage{
	StageAcquiring,
	StageExtractingAudio,
	StageTranscribing,
	StageSummarizing,
}

// Progress milestones written when a stage starts and when it finishes.
var stageProgress = map[Stage][2]int{
	StageAcquiring:       {10, 30},
	StageExtractingAudio: {40, 50},
	StageTranscribing:    {60, 70},
	StageSummarizing:     {80, 90},
}

// AllStages returns the ordered list of known stages.
func AllStages() []Stage {
	cp := make([]Stage, len(allStages))
	copy(cp, allStages)
	return cp
}

// ProcessingStages returns the intermediate stages owned by a running execution.
func ProcessingStages() []Stage {
	cp := make([]Stage, len(processingStages))
	copy(cp, processingStages)
	return cp
}

// ParseStage converts a string into a known Stage.
func ParseStage(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	for _, s := range allStages {
		if s == normalized {
			return s, true
		}
	}
	return "", false
}

// IsProcessing reports whether the stage reflects an in-flight operation.
func (s Stage) IsProcessing() bool {
	_, ok := stageProgress[s]
	return ok
}

// IsTerminal reports whether the stage is completed or failed.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed
}

// StartProgress returns the progress recorded when the stage begins.
func (s Stage) StartProgress() int {
	if s == StageCompleted {
		return 100
	}
	return stageProgress[s][0]
}

// DoneProgress returns the progress recorded once the stage's executor succeeded.
func (s Stage) DoneProgress() int {
	if s == StageCompleted {
		return 100
	}
	return stageProgress[s][1]
}

// Artifact names stored in Job.Artifacts.
const (
	ArtifactMedia      = "media"
	ArtifactAudio      = "audio"
	ArtifactTranscript = "transcript"
	ArtifactSummary    = "summary"
)

// Artifacts maps artifact names to externally stored byproducts.
type Artifacts map[string]string

// Clone returns an independent copy.
func (a Artifacts) Clone() Artifacts {
	if a == nil {
		return Artifacts{}
	}
	return maps.Clone(a)
}

// Metadata holds descriptive fields captured while acquiring the source.
type Metadata struct {
	Title           string `json:"title,omitempty"`
	Uploader        string `json:"uploader,omitempty"`
	Platform        string `json:"platform,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	Description     string `json:"description,omitempty"`
}

// IsZero reports whether no metadata was captured.
func (m Metadata) IsZero() bool {
	return m == Metadata{}
}

// Priority orders runnable jobs when the priority scheduler is enabled.
type Priority int

const (
	PriorityLow    Priority = 1
	PriorityNormal Priority = 2
	PriorityHigh   Priority = 3
	PriorityUrgent Priority = 4
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return strconv.Itoa(int(p))
	}
}

// Valid reports whether p is one of the known priority classes.
func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityUrgent
}

// ParsePriority accepts a priority name or its numeric value.
func ParsePriority(value string) (Priority, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	switch value {
	case "", "normal":
		return PriorityNormal, nil
	case "low":
		return PriorityLow, nil
	case "high":
		return PriorityHigh, nil
	case "urgent":
		return PriorityUrgent, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || !Priority(n).Valid() {
		return 0, fmt.Errorf("unknown priority %q", value)
	}
	return Priority(n), nil
}

// Job represents a pipeline job persisted in SQLite.
type Job struct {
	ID          int64
	SourceRef   string
	ContentKey  string
	Stage       Stage
	Progress    int
	Artifacts   Artifacts
	Metadata    Metadata
	Priority    Priority
	Attempts    int
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// SetStage moves the job into stage and records its start milestone.
func (j *Job) SetStage(stage Stage) {
	j.Stage = stage
	if p := stage.StartProgress(); p > j.Progress {
		j.Progress = p
	}
}

// SetFailed marks the job failed with message. Progress is kept so the
// failure point stays visible.
func (j *Job) SetFailed(message string, at time.Time) {
	j.Stage = StageFailed
	j.Error = message
	at = at.UTC()
	j.CompletedAt = &at
}

// SetCompleted marks the job completed.
func (j *Job) SetCompleted(at time.Time) {
	j.Stage = StageCompleted
	j.Progress = 100
	j.Error = ""
	at = at.UTC()
	j.CompletedAt = &at
}

// Title returns the best display name for the job.
func (j *Job) Title() string {
	if j.Metadata.Title != "" {
		return j.Metadata.Title
	}
	return j.SourceRef
}

// JobPatch names the columns a partial update touches. Nil fields are left
// unchanged. Stage and Progress are written in the same statement.
type JobPatch struct {
	Stage       *Stage
	Progress    *int
	ContentKey  *string
	Artifacts   Artifacts
	Metadata    *Metadata
	Error       *string
	CompletedAt *time.Time
}

// IsEmpty reports whether the patch changes nothing.
func (p JobPatch) IsEmpty() bool {
	return p.Stage == nil && p.Progress == nil && p.ContentKey == nil &&
		p.Artifacts == nil && p.Metadata == nil && p.Error == nil && p.CompletedAt == nil
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	TableExists      bool
	IntegrityCheck   bool
	TotalJobs        int
	Error            string
}

// HealthSummary describes aggregated job counts per lifecycle group.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Failed     int
	Completed  int
}
