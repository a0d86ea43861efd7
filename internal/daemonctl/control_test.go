package daemonctl

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"recap/internal/ipc"
	"recap/internal/testsupport"
)

func TestBuildDependencySummary(t *testing.T) {
	tests := []struct {
		name     string
		statuses []ipc.DependencyStatus
		severity string
		detail   string
	}{
		{name: "none", severity: "info", detail: "No external tools required"},
		{
			name:     "all available",
			statuses: []ipc.DependencyStatus{{Name: "yt-dlp", Available: true}, {Name: "FFmpeg", Available: true}},
			severity: "ok",
			detail:   "2/2 available",
		},
		{
			name:     "optional missing",
			statuses: []ipc.DependencyStatus{{Name: "yt-dlp", Available: true}, {Name: "extra", Optional: true}},
			severity: "warn",
			detail:   "1/2 available (missing: 0 required, 1 optional)",
		},
		{
			name:     "required missing",
			statuses: []ipc.DependencyStatus{{Name: "Whisper"}, {Name: "extra", Optional: true}},
			severity: "error",
			detail:   "0/2 available (missing: 1 required, 1 optional)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildDependencySummary(tt.statuses)
			if got.Severity != tt.severity || got.Detail != tt.detail {
				t.Fatalf("got %+v, want severity %q detail %q", got, tt.severity, tt.detail)
			}
		})
	}
}

func TestBuildStatusSnapshotOffline(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.NewJob(t, store, "https://example.com/a")
	testsupport.NewJob(t, store, "https://example.com/b")

	snapshot, err := BuildStatusSnapshot(context.Background(), filepath.Join(t.TempDir(), "missing.sock"), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if snapshot.Running {
		t.Fatal("expected offline snapshot")
	}
	if snapshot.QueueStats["pending"] != 2 {
		t.Fatalf("expected 2 pending from store, got %+v", snapshot.QueueStats)
	}
	if len(snapshot.Dependencies) == 0 {
		t.Fatal("expected local dependency checks")
	}
	if snapshot.SystemChecks[0].Label != "Recap" || snapshot.SystemChecks[0].Severity != "warn" {
		t.Fatalf("unexpected first system check: %+v", snapshot.SystemChecks[0])
	}
	if len(snapshot.PathChecks) == 0 || snapshot.PathChecks[0].Label != "Data directory" {
		t.Fatalf("expected data directory path check first, got %+v", snapshot.PathChecks)
	}
}

func TestProcessInfoWithoutSocket(t *testing.T) {
	alive, pid, err := ProcessInfo(filepath.Join(t.TempDir(), "recap.sock"))
	if err != nil || alive || pid != 0 {
		t.Fatalf("ProcessInfo = %v, %d, %v", alive, pid, err)
	}
	if err := WaitForShutdown(filepath.Join(t.TempDir(), "recap.sock"), time.Second); err != nil {
		t.Fatalf("WaitForShutdown: %v", err)
	}
}

func TestForceKillRefusesSelf(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "recap.pid")
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if _, err := ForceKillProcess(pidPath, "", 0); err == nil {
		t.Fatal("expected refusal to kill current process")
	}
	if _, err := ForceKillProcess(filepath.Join(t.TempDir(), "none.pid"), "", 0); err == nil {
		t.Fatal("expected error without a pid")
	}
}
