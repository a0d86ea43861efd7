package testsupport

import (
	"context"
	"testing"
	"time"

	"recap/internal/config"
	"recap/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob creates a pending job with normal priority.
func NewJob(t testing.TB, store *queue.Store, sourceRef string) *queue.Job {
	t.Helper()

	job, err := store.Create(context.Background(), sourceRef, queue.PriorityNormal)
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return job
}

// SetStage forces a job into stage and persists it.
func SetStage(t testing.TB, store *queue.Store, job *queue.Job, stage queue.Stage) {
	t.Helper()

	job.Stage = stage
	job.Progress = stage.StartProgress()
	if stage == queue.StageCompleted || stage == queue.StageFailed {
		now := time.Now().UTC()
		job.CompletedAt = &now
	}
	if err := store.Update(context.Background(), job); err != nil {
		t.Fatalf("store.Update: %v", err)
	}
}

// WaitFor polls cond until it holds or timeout elapses.
func WaitFor(t testing.TB, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
