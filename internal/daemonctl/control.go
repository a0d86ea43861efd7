package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"recap/internal/api"
	"recap/internal/config"
	"recap/internal/daemon"
	"recap/internal/deps"
	"recap/internal/ipc"
	"recap/internal/language"
	"recap/internal/preflight"
	"recap/internal/queue"
)

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	SocketPath string
	ConfigPath string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
	StartStateRequested      StartState = "start_requested"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State    StartState
	Launched bool
	Message  string
}

// Launch starts a detached recap daemon process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"daemon"}
	if socket := strings.TrimSpace(opts.SocketPath); socket != "" {
		args = append(args, "--socket", socket)
	}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForClient waits for IPC socket availability and returns a connected client.
func WaitForClient(socketPath string, timeout time.Duration) (*ipc.Client, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err == nil {
			return client, nil
		}
		lastErr = err
		time.Sleep(200 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for daemon")
	}
	return nil, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// EnsureStarted launches and/or starts the daemon and returns the resulting state.
func EnsureStarted(socketPath, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	client, err := ipc.Dial(socketPath)
	launched := false
	if err != nil {
		if launchErr := Launch(executablePath, opts); launchErr != nil {
			return StartResult{}, launchErr
		}
		client, err = WaitForClient(socketPath, waitTimeout)
		if err != nil {
			return StartResult{}, err
		}
		launched = true
	}
	defer client.Close()

	statusResp, statusErr := client.Status()
	if statusErr == nil && statusResp != nil && statusResp.Running {
		if launched {
			return StartResult{State: StartStateStarted, Launched: true}, nil
		}
		return StartResult{State: StartStateAlreadyRunning}, nil
	}

	resp, err := client.Start()
	if err != nil {
		return StartResult{}, err
	}
	message := strings.TrimSpace(resp.Message)
	switch {
	case resp.Started:
		return StartResult{State: StartStateStarted, Launched: launched, Message: message}, nil
	case strings.EqualFold(message, "daemon already running"):
		return StartResult{State: StartStateAlreadyRunning, Launched: launched, Message: message}, nil
	case message != "":
		return StartResult{State: StartStateRequested, Launched: launched, Message: message}, nil
	}
	return StartResult{State: StartStateRequested, Launched: launched, Message: "Start request sent"}, nil
}

// WaitForShutdown waits for daemon IPC to disappear or report not-running.
func WaitForShutdown(socketPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err != nil {
			if isDaemonUnavailable(err) {
				return nil
			}
			lastErr = err
			time.Sleep(200 * time.Millisecond)
			continue
		}
		status, statusErr := client.Status()
		_ = client.Close()
		if statusErr == nil && !status.Running {
			return nil
		}
		if statusErr != nil {
			lastErr = statusErr
		} else {
			lastErr = fmt.Errorf("daemon still running")
		}
		time.Sleep(200 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for shutdown")
	}
	return fmt.Errorf("daemon did not stop: %w", lastErr)
}

// ProcessInfo returns whether daemon IPC is reachable and the daemon PID when available.
func ProcessInfo(socketPath string) (bool, int, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	defer client.Close()
	status, err := client.Status()
	if err != nil {
		return true, 0, err
	}
	return true, status.PID, nil
}

// ForceKillProcess sends SIGKILL to the daemon process and cleans pid/lock files.
func ForceKillProcess(pidPath, lockPath string, fallbackPID int) (int, error) {
	pid := daemon.ReadPID(pidPath)
	if pid <= 0 {
		pid = fallbackPID
	}
	if pid <= 0 {
		return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", pidPath)
	}
	if pid == os.Getpid() {
		return 0, fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return 0, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("remove pid file %q: %w", pidPath, err)
	}
	if lockPath != "" {
		_ = os.Remove(lockPath)
	}
	return pid, nil
}

// ErrDaemonNotRunning indicates daemon IPC is unavailable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	StopAcknowledged bool
	ForcedKill       bool
	PID              int
}

// StopAndTerminate asks the daemon process to exit and force-kills it if it
// is still alive after gracePeriod.
func StopAndTerminate(socketPath string, cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return StopResult{}, ErrDaemonNotRunning
		}
		return StopResult{}, err
	}
	pid := 0
	if status, statusErr := client.Status(); statusErr == nil {
		pid = status.PID
	}
	resp, err := client.Stop()
	_ = client.Close()
	if err != nil {
		return StopResult{}, err
	}
	result := StopResult{PID: pid, StopAcknowledged: resp.Stopped}

	// The scheduler is stopped; the process itself exits on SIGTERM.
	if pid > 0 && pid != os.Getpid() {
		_ = unix.Kill(pid, unix.SIGTERM)
	}
	if pid <= 0 {
		return result, WaitForShutdown(socketPath, gracePeriod)
	}
	deadline := time.Now().Add(gracePeriod)
	for processAlive(pid) && time.Now().Before(deadline) {
		time.Sleep(200 * time.Millisecond)
	}
	if !processAlive(pid) {
		return result, nil
	}

	killed, err := ForceKillProcess(cfg.PIDPath(), cfg.LockPath(), pid)
	if err != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", err)
	}
	_ = os.Remove(socketPath)
	result.ForcedKill = true
	result.PID = killed
	return result, nil
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// StatusLine is one labelled row of the status report.
type StatusLine struct {
	Label    string
	Severity string
	Detail   string
}

// DependencySummary aggregates dependency readiness.
type DependencySummary struct {
	Total     int
	Available int
	Missing   int
	Severity  string
	Detail    string
}

// StatusSnapshot combines daemon status with offline fallbacks.
type StatusSnapshot struct {
	*ipc.StatusResponse
	QueueStats        map[string]int
	SystemChecks      []StatusLine
	PathChecks        []StatusLine
	DependencySummary DependencySummary
}

// BuildStatusSnapshot collects daemon status, reading the queue directly and
// checking dependencies locally when the daemon is unreachable.
func BuildStatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config) (*StatusSnapshot, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	snapshot := &StatusSnapshot{StatusResponse: &ipc.StatusResponse{}}

	client, err := ipc.Dial(socketPath)
	reachable := err == nil
	if reachable {
		defer client.Close()
		if resp, statusErr := client.Status(); statusErr == nil {
			snapshot.StatusResponse = resp
		}
	}

	snapshot.QueueStats = snapshot.Scheduler.QueueStats
	if !reachable || len(snapshot.QueueStats) == 0 {
		queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if store, openErr := queue.OpenPath(cfg.DatabasePath()); openErr == nil {
			if stats, statsErr := store.Stats(queryCtx); statsErr == nil {
				snapshot.QueueStats = api.MergeQueueStats(stats)
			}
			_ = store.Close()
		}
	}
	if len(snapshot.Dependencies) == 0 {
		snapshot.Dependencies = api.FromDependencies(deps.Check(cfg))
	}

	snapshot.SystemChecks = BuildSystemChecks(cfg, snapshot.Running, reachable)
	snapshot.PathChecks = BuildPathChecks(cfg)
	snapshot.DependencySummary = BuildDependencySummary(snapshot.Dependencies)
	return snapshot, nil
}

// BuildSystemChecks resolves status lines that combine runtime state and config checks.
func BuildSystemChecks(cfg *config.Config, running, reachable bool) []StatusLine {
	lines := make([]StatusLine, 0, 5)
	switch {
	case running:
		lines = append(lines, StatusLine{Label: "Recap", Severity: "ok", Detail: "Running"})
	case reachable:
		lines = append(lines, StatusLine{Label: "Recap", Severity: "warn", Detail: "Daemon up, processing stopped (run `recap start`)"})
	default:
		lines = append(lines, StatusLine{Label: "Recap", Severity: "warn", Detail: "Not running (run `recap start`)"})
	}

	lines = append(lines, StatusLine{Label: "Language", Severity: "info", Detail: language.DisplayName(cfg.Tools.WhisperLanguage)})

	lines = append(lines, StatusLine{
		Label:    "Stages",
		Severity: "info",
		Detail: fmt.Sprintf("%s → %s → %s → %s",
			cfg.Stages.Acquire, cfg.Stages.Extract, cfg.Stages.Transcribe, cfg.Stages.Summarize),
	})

	if len(cfg.Stages.Publish) > 0 {
		lines = append(lines, StatusLine{Label: "Publishers", Severity: "ok", Detail: strings.Join(cfg.Stages.Publish, ", ")})
	} else {
		lines = append(lines, StatusLine{Label: "Publishers", Severity: "info", Detail: "None configured"})
	}

	if strings.TrimSpace(cfg.Notifications.NtfyTopic) != "" {
		lines = append(lines, StatusLine{Label: "Notifications", Severity: "ok", Detail: "Configured"})
	} else {
		lines = append(lines, StatusLine{Label: "Notifications", Severity: "warn", Detail: "Not configured"})
	}

	switch {
	case !cfg.Dedup.Enabled:
		lines = append(lines, StatusLine{Label: "Dedup", Severity: "info", Detail: "Disabled"})
	case strings.TrimSpace(cfg.Dedup.RedisAddr) != "":
		lines = append(lines, StatusLine{Label: "Dedup", Severity: "ok", Detail: "Redis " + cfg.Dedup.RedisAddr})
	default:
		lines = append(lines, StatusLine{Label: "Dedup", Severity: "info", Detail: "Local (single host)"})
	}
	return lines
}

// BuildPathChecks renders preflight results as status lines.
func BuildPathChecks(cfg *config.Config) []StatusLine {
	results := preflight.RunAll(cfg)
	lines := make([]StatusLine, 0, len(results))
	for _, r := range results {
		severity := "ok"
		if !r.Passed {
			severity = "error"
		}
		lines = append(lines, StatusLine{Label: r.Name, Severity: severity, Detail: r.Detail})
	}
	return lines
}

// BuildDependencySummary computes aggregate dependency readiness.
func BuildDependencySummary(statuses []ipc.DependencyStatus) DependencySummary {
	if len(statuses) == 0 {
		return DependencySummary{Severity: "info", Detail: "No external tools required"}
	}
	missingRequired, missingOptional := 0, 0
	for _, dep := range statuses {
		if dep.Available {
			continue
		}
		if dep.Optional {
			missingOptional++
		} else {
			missingRequired++
		}
	}
	missing := missingRequired + missingOptional
	summary := DependencySummary{
		Total:     len(statuses),
		Available: len(statuses) - missing,
		Missing:   missing,
		Severity:  "ok",
		Detail:    fmt.Sprintf("%d/%d available", len(statuses)-missing, len(statuses)),
	}
	switch {
	case missingRequired > 0:
		summary.Severity = "error"
	case missingOptional > 0:
		summary.Severity = "warn"
	}
	if missing > 0 {
		summary.Detail = fmt.Sprintf("%s (missing: %d required, %d optional)", summary.Detail, missingRequired, missingOptional)
	}
	return summary
}

func isDaemonUnavailable(err error) bool {
	return errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
