package daemonrun_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"recap/internal/daemonrun"
	"recap/internal/ipc"
	"recap/internal/testsupport"
)

func TestRunServesIPCUntilCancelled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Metrics.Enabled = true
	cfg.Dedup.Enabled = true
	cfg.Dedup.RedisAddr = ""

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- daemonrun.Run(ctx, cfg, daemonrun.Options{LogLevel: "warn"}) }()

	var status *ipc.StatusResponse
	testsupport.WaitFor(t, 5*time.Second, func() bool {
		client, err := ipc.Dial(cfg.Paths.SocketPath)
		if err != nil {
			return false
		}
		defer client.Close()
		resp, err := client.Status()
		if err != nil || !resp.Running {
			return false
		}
		status = resp
		return true
	})
	if status.PID != os.Getpid() {
		t.Fatalf("expected pid %d, got %d", os.Getpid(), status.PID)
	}
	if status.APIAddress == "" {
		t.Fatal("expected HTTP API address")
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.LogDir, "recap.log")); err != nil {
		t.Fatalf("expected daemon log file: %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	if _, err := os.Stat(cfg.Paths.SocketPath); !os.IsNotExist(err) {
		t.Fatalf("expected socket removed, stat err=%v", err)
	}
}
