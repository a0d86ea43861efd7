package workflow

import (
	"cmp"
	"context"
	"slices"
	"time"

	"recap/internal/logging"
	"recap/internal/pool"
	"recap/internal/queue"
	"recap/internal/stage"
)

// ActiveJob describes one running execution.
type ActiveJob struct {
	ID      int64       `json:"id"`
	Stage   queue.Stage `json:"stage"`
	Started time.Time   `json:"started"`
}

// StatusSummary represents lightweight scheduler diagnostics.
type StatusSummary struct {
	Running        bool                `json:"running"`
	MaxConcurrent  int                 `json:"max_concurrent"`
	Priority       bool                `json:"priority"`
	Active         []ActiveJob         `json:"active"`
	QueueDepth     int                 `json:"queue_depth"`
	QueueStats     map[queue.Stage]int `json:"queue_stats"`
	PendingRetries []QueuedUnit        `json:"pending_retries,omitempty"`
	LastError      string              `json:"last_error,omitempty"`
	LastJobID      int64               `json:"last_job_id,omitempty"`
	StageHealth    []stage.Health      `json:"stage_health"`
	Pools          []pool.Stats        `json:"pools"`
}

// Status returns the latest scheduler information. Queue depth counts
// pending jobs in the store.
func (s *Scheduler) Status(ctx context.Context) StatusSummary {
	s.mu.RLock()
	summary := StatusSummary{
		Running:       s.running,
		MaxConcurrent: s.maxConcurrent,
		Priority:      s.priority,
		LastJobID:     s.lastJobID,
	}
	if s.lastErr != nil {
		summary.LastError = s.lastErr.Error()
	}
	for id, exec := range s.active {
		if exec.finished() {
			continue
		}
		current, _ := exec.snapshot()
		summary.Active = append(summary.Active, ActiveJob{ID: id, Stage: current, Started: exec.started})
	}
	s.mu.RUnlock()
	slices.SortFunc(summary.Active, func(a, b ActiveJob) int { return cmp.Compare(a.ID, b.ID) })

	stats, err := s.store.Stats(ctx)
	if err != nil {
		logging.WarnWithContext(s.logger, "failed to read queue stats", "queue_stats_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "status output omits queue counts"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
	}
	summary.QueueStats = stats
	summary.QueueDepth = stats[queue.StagePending]
	if s.priority {
		summary.PendingRetries = s.PendingRetries()
	}
	summary.StageHealth = s.pipeline.Health(ctx)
	summary.Pools = s.pools.Stats()
	return summary
}
