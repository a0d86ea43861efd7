package queueaccess_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"recap/internal/ipc"
	"recap/internal/queue"
	"recap/internal/queueaccess"
	"recap/internal/testsupport"
)

func TestOpenWithFallbackUsesStore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	session, err := queueaccess.OpenWithFallback(
		func() (*ipc.Client, error) { return nil, errors.New("daemon offline") },
		func() (*queue.Store, error) { return queue.OpenPath(store.Path()) },
	)
	if err != nil {
		t.Fatalf("OpenWithFallback: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })

	if session.Access.Online() {
		t.Fatal("expected offline access")
	}
	if session.DialErr == nil || !strings.Contains(session.DialErr.Error(), "daemon offline") {
		t.Fatalf("expected dial error to be kept, got %v", session.DialErr)
	}
}

func TestOpenWithFallbackReportsBothFailures(t *testing.T) {
	_, err := queueaccess.OpenWithFallback(
		func() (*ipc.Client, error) { return nil, errors.New("socket missing") },
		func() (*queue.Store, error) { return nil, errors.New("disk gone") },
	)
	if err == nil || !strings.Contains(err.Error(), "disk gone") || !strings.Contains(err.Error(), "socket missing") {
		t.Fatalf("expected combined error, got %v", err)
	}
}

func TestOpenWithFallbackRequiresOpener(t *testing.T) {
	_, err := queueaccess.OpenWithFallback(nil, nil)
	if err == nil || !strings.Contains(err.Error(), "no store opener") {
		t.Fatalf("expected opener error, got %v", err)
	}
}

func TestStoreAccessOperations(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	access := queueaccess.NewStoreAccess(store)

	pending := testsupport.NewJob(t, store, "https://example.com/a")
	running := testsupport.NewJob(t, store, "https://example.com/b")
	testsupport.SetStage(t, store, running, queue.StageTranscribing)
	done := testsupport.NewJob(t, store, "https://example.com/c")
	testsupport.SetStage(t, store, done, queue.StageCompleted)

	jobs, err := access.List(ctx, nil)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 3 || jobs[0].ID != done.ID {
		t.Fatalf("expected newest first, got %+v", jobs)
	}

	cancelled, err := access.Cancel(ctx, []int64{pending.ID, running.ID})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled != 1 {
		t.Fatalf("expected only the pending job cancelled, got %d", cancelled)
	}
	job, err := access.Describe(ctx, pending.ID)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if job.Stage != string(queue.StageFailed) || job.ErrorMessage != "cancelled by operator" {
		t.Fatalf("unexpected cancelled job: %+v", job)
	}
	if _, err := access.Describe(ctx, 404); err == nil {
		t.Fatal("expected error for missing job")
	}

	retried, err := access.Retry(ctx, nil)
	if err != nil || retried != 1 {
		t.Fatalf("Retry = %d, %v", retried, err)
	}

	stats, err := access.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats["pending"] != 1 || stats["transcribing"] != 1 || stats["completed"] != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	removed, err := access.ClearCompleted(ctx)
	if err != nil || removed != 1 {
		t.Fatalf("ClearCompleted = %d, %v", removed, err)
	}
	removed, err = access.Remove(ctx, []int64{pending.ID, 999})
	if err != nil || removed != 1 {
		t.Fatalf("Remove = %d, %v", removed, err)
	}
}
