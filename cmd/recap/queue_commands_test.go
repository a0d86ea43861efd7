package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"recap/internal/queue"
	"recap/internal/testsupport"
)

func TestQueueStatusAndList(t *testing.T) {
	env := setupCLITestEnv(t)

	testsupport.NewJob(t, env.store, "https://example.com/alpha")
	beta := testsupport.NewJob(t, env.store, "https://example.com/beta")
	testsupport.SetStage(t, env.store, beta, queue.StageFailed)

	out, _, err := runCLI(t, []string{"queue", "status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	requireContains(t, out, "Pending")
	requireContains(t, out, "Failed")

	out, _, err = runCLI(t, []string{"queue", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "example.com/alpha")
	requireContains(t, out, "example.com/beta")

	out, _, err = runCLI(t, []string{"queue", "list", "--stage", "failed"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue list --stage: %v", err)
	}
	requireContains(t, out, "example.com/beta")
	if strings.Contains(out, "example.com/alpha") {
		t.Fatalf("stage filter leaked pending job:\n%s", out)
	}
}

func TestQueueListRejectsUnknownStage(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"queue", "list", "--stage", "ripping"}, env.socketPath, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "unknown stage") {
		t.Fatalf("expected unknown stage error, got %v", err)
	}
}

func TestQueueListJSON(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"queue", "list", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue list --json: %v", err)
	}
	if strings.TrimSpace(out) != "[]" {
		t.Fatalf("expected empty JSON array, got %q", out)
	}

	testsupport.NewJob(t, env.store, "https://example.com/alpha")
	testsupport.NewJob(t, env.store, "https://example.com/beta")

	out, _, err = runCLI(t, []string{"queue", "list", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue list --json: %v", err)
	}
	var jobs []map[string]any
	if err := json.Unmarshal([]byte(out), &jobs); err != nil {
		t.Fatalf("invalid JSON: %v\noutput: %s", err, out)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	for _, job := range jobs {
		if _, ok := job["id"]; !ok {
			t.Fatal("missing 'id' key in JSON job")
		}
		if job["stage"] != "pending" {
			t.Fatalf("expected pending stage, got %v", job["stage"])
		}
	}
}

func TestQueueRetryAndClear(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	alpha := testsupport.NewJob(t, env.store, "https://example.com/alpha")
	testsupport.SetStage(t, env.store, alpha, queue.StageFailed)

	out, _, err := runCLI(t, []string{"queue", "retry"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue retry: %v", err)
	}
	requireContains(t, out, "Retried 1 failed jobs")

	updated, err := env.store.GetByID(ctx, alpha.ID)
	if err != nil {
		t.Fatalf("lookup alpha: %v", err)
	}
	if updated.Stage != queue.StagePending {
		t.Fatalf("expected pending, got %s", updated.Stage)
	}

	testsupport.SetStage(t, env.store, updated, queue.StageFailed)
	out, _, err = runCLI(t, []string{"queue", "clear", "--failed"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue clear --failed: %v", err)
	}
	requireContains(t, out, "Cleared 1 failed jobs")

	testsupport.NewJob(t, env.store, "https://example.com/beta")
	out, _, err = runCLI(t, []string{"queue", "clear"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue clear: %v", err)
	}
	requireContains(t, out, "Cleared 1 jobs")

	_, _, err = runCLI(t, []string{"queue", "clear", "--failed", "--completed"}, env.socketPath, env.configPath)
	if err == nil {
		t.Fatal("expected error for conflicting clear flags")
	}
}

func TestQueueRetrySpecificIDs(t *testing.T) {
	env := setupCLITestEnv(t)

	failed := testsupport.NewJob(t, env.store, "https://example.com/alpha")
	testsupport.SetStage(t, env.store, failed, queue.StageFailed)
	pending := testsupport.NewJob(t, env.store, "https://example.com/beta")

	out, _, err := runCLI(t, []string{"queue", "retry", fmt.Sprint(failed.ID), fmt.Sprint(pending.ID), "999"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue retry ids: %v", err)
	}
	requireContains(t, out, fmt.Sprintf("Job %d reset for retry", failed.ID))
	requireContains(t, out, fmt.Sprintf("Job %d is not in failed state", pending.ID))
	requireContains(t, out, "Job 999 not found")
}

func TestQueueRetryInvalidID(t *testing.T) {
	env := setupCLITestEnv(t)

	for _, arg := range []string{"abc", "0", "-3"} {
		_, _, err := runCLI(t, []string{"queue", "retry", "--", arg}, env.socketPath, env.configPath)
		if err == nil || !strings.Contains(err.Error(), "invalid job id") {
			t.Fatalf("arg %q: expected invalid id error, got %v", arg, err)
		}
	}
}

func TestQueueCancelAndRemove(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	pending := testsupport.NewJob(t, env.store, "https://example.com/alpha")
	done := testsupport.NewJob(t, env.store, "https://example.com/beta")
	testsupport.SetStage(t, env.store, done, queue.StageCompleted)

	out, _, err := runCLI(t, []string{"queue", "cancel", fmt.Sprint(pending.ID), fmt.Sprint(done.ID)}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue cancel: %v", err)
	}
	requireContains(t, out, fmt.Sprintf("Job %d cancelled", pending.ID))
	requireContains(t, out, fmt.Sprintf("Job %d already completed", done.ID))

	cancelled, err := env.store.GetByID(ctx, pending.ID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if cancelled.Stage != queue.StageFailed || !strings.Contains(cancelled.Error, "cancelled") {
		t.Fatalf("expected cancelled failure, got stage=%s error=%q", cancelled.Stage, cancelled.Error)
	}

	out, _, err = runCLI(t, []string{"queue", "remove", fmt.Sprint(pending.ID), "999"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue remove: %v", err)
	}
	requireContains(t, out, fmt.Sprintf("Job %d removed", pending.ID))
	requireContains(t, out, "Job 999 not found")

	if job, err := env.store.GetByID(ctx, pending.ID); err != nil || job != nil {
		t.Fatalf("expected job removed, got %+v err=%v", job, err)
	}

	if _, _, err := runCLI(t, []string{"queue", "cancel"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected cancel without ids to fail")
	}
}

func TestQueueRemoveRefusesProcessingJob(t *testing.T) {
	env := setupCLITestEnv(t)

	job := testsupport.NewJob(t, env.store, "https://example.com/alpha")
	testsupport.SetStage(t, env.store, job, queue.StageTranscribing)

	out, _, err := runCLI(t, []string{"queue", "remove", fmt.Sprint(job.ID)}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue remove: %v", err)
	}
	requireContains(t, out, "cancel it first")
}

func TestQueueCommandsWithoutDaemon(t *testing.T) {
	cfg, configPath := newTestConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	pending := testsupport.NewJob(t, store, "https://example.com/offline")
	running := testsupport.NewJob(t, store, "https://example.com/running")
	testsupport.SetStage(t, store, running, queue.StageSummarizing)

	missingSocket := filepath.Join(testsupport.BaseDir(cfg), "missing.sock")

	out, _, err := runCLI(t, []string{"queue", "list"}, missingSocket, configPath)
	if err != nil {
		t.Fatalf("offline queue list: %v", err)
	}
	requireContains(t, out, "example.com/offline")
	requireContains(t, out, "Summarizing")

	out, _, err = runCLI(t, []string{"queue", "cancel", fmt.Sprint(pending.ID), fmt.Sprint(running.ID)}, missingSocket, configPath)
	if err != nil {
		t.Fatalf("offline queue cancel: %v", err)
	}
	requireContains(t, out, fmt.Sprintf("Job %d cancelled", pending.ID))
	requireContains(t, out, "start the daemon to cancel it")

	updated, err := store.GetByID(ctx, pending.ID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if updated.Stage != queue.StageFailed {
		t.Fatalf("expected failed after offline cancel, got %s", updated.Stage)
	}

	out, _, err = runCLI(t, []string{"queue", "health"}, missingSocket, configPath)
	if err != nil {
		t.Fatalf("offline queue health: %v", err)
	}
	requireContains(t, out, "Total: 2")
	requireContains(t, out, "Processing: 1")
	requireContains(t, out, "Failed: 1")
}

func TestQueueHealthCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.NewJob(t, env.store, "https://example.com/alpha")

	out, _, err := runCLI(t, []string{"queue-health"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue-health: %v", err)
	}
	requireContains(t, out, "Database path:")
	requireContains(t, out, "jobs table present: yes")
	requireContains(t, out, "Total jobs: 1")

	out, _, err = runCLI(t, []string{"queue", "health", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue health --json: %v", err)
	}
	var health map[string]int
	if err := json.Unmarshal([]byte(out), &health); err != nil {
		t.Fatalf("invalid JSON: %v\noutput: %s", err, out)
	}
	if health["total"] != 1 || health["pending"] != 1 {
		t.Fatalf("unexpected health %v", health)
	}
}
