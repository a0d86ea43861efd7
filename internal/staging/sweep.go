package staging

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"recap/internal/artifacts"
	"recap/internal/queue"
)

// JobLister is the slice of the job store housekeeping needs.
type JobLister interface {
	List(ctx context.Context, stages ...queue.Stage) ([]*queue.Job, error)
}

// ActiveKeys returns the sanitized content keys referenced by jobs.
func ActiveKeys(jobs []*queue.Job) map[string]struct{} {
	keys := make(map[string]struct{}, len(jobs))
	for _, job := range jobs {
		if job == nil || job.ContentKey == "" {
			continue
		}
		keys[artifacts.SanitizeKey(job.ContentKey)] = struct{}{}
	}
	return keys
}

// Sweep removes stale scratch directories and unreferenced content key
// directories older than maxAge.
func Sweep(ctx context.Context, root string, store JobLister, maxAge time.Duration, logger *zap.Logger) (CleanResult, error) {
	jobs, err := store.List(ctx)
	if err != nil {
		return CleanResult{}, fmt.Errorf("list jobs for artifact cleanup: %w", err)
	}
	work := CleanStaleWorkDirs(ctx, root, maxAge, logger)
	orphaned := CleanOrphaned(ctx, root, ActiveKeys(jobs), maxAge, logger)
	return CleanResult{
		Removed: append(work.Removed, orphaned.Removed...),
		Errors:  append(work.Errors, orphaned.Errors...),
	}, nil
}
