package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"recap/internal/api"
	"recap/internal/daemonctl"
	"recap/internal/ipc"
)

const (
	startWait = 10 * time.Second
	stopGrace = 5 * time.Second
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the recap daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			result, err := daemonctl.EnsureStarted(ctx.socketPath(), exe, daemonLaunchOptions(ctx), startWait)
			if err != nil {
				return err
			}
			printStartResult(cmd.OutOrStdout(), result, "Daemon started")
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the recap daemon (terminates the process)",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), stopGrace)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			printStopResult(stdout, result)
			return nil
		},
	}

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the recap daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			socket := ctx.socketPath()
			stopped, err := daemonctl.StopAndTerminate(socket, ctx.configValue(), stopGrace)
			switch {
			case errors.Is(err, daemonctl.ErrDaemonNotRunning):
			case err != nil:
				return err
			default:
				printStopResult(stdout, stopped)
			}
			result, err := daemonctl.EnsureStarted(socket, exe, daemonLaunchOptions(ctx), startWait)
			if err != nil {
				return err
			}
			printStartResult(stdout, result, "Daemon restarted")
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show system and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), ctx.configValue())
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, snapshot)
			}
			renderStatus(cmd.OutOrStdout(), snapshot)
			return nil
		},
	}

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

func printStartResult(out io.Writer, result daemonctl.StartResult, startedMessage string) {
	if result.Launched {
		fmt.Fprintln(out, "Daemon not running, launching...")
	}
	switch result.State {
	case daemonctl.StartStateStarted:
		fmt.Fprintln(out, startedMessage)
	case daemonctl.StartStateAlreadyRunning:
		fmt.Fprintln(out, "Daemon already running")
	case daemonctl.StartStateRequested:
		if msg := strings.TrimSpace(result.Message); msg != "" {
			fmt.Fprintln(out, msg)
			return
		}
		fmt.Fprintln(out, "Start request sent")
	}
}

func printStopResult(out io.Writer, result daemonctl.StopResult) {
	if result.StopAcknowledged {
		fmt.Fprintln(out, "Stopping daemon workflow...")
	} else {
		fmt.Fprintln(out, "Stop request sent")
	}
	if result.ForcedKill && result.PID > 0 {
		fmt.Fprintf(out, "Stopping daemon process (pid %d)...\n", result.PID)
	}
	fmt.Fprintln(out, "Daemon stopped")
}

func renderStatus(out io.Writer, snapshot *daemonctl.StatusSnapshot) {
	colorize := shouldColorize(out)

	printSection(out, "System Status", colorize)
	for _, line := range snapshot.SystemChecks {
		fmt.Fprintln(out, renderStatusLine(line.Label, statusKindFromSeverity(line.Severity), line.Detail, colorize))
	}
	if snapshot.APIAddress != "" {
		fmt.Fprintln(out, renderStatusLine("API", statusInfo, "http://"+snapshot.APIAddress, colorize))
	}
	fmt.Fprintln(out)

	if len(snapshot.PathChecks) > 0 {
		printSection(out, "Paths", colorize)
		for _, line := range snapshot.PathChecks {
			fmt.Fprintln(out, renderStatusLine(line.Label, statusKindFromSeverity(line.Severity), line.Detail, colorize))
		}
		fmt.Fprintln(out)
	}

	printSection(out, "Dependencies", colorize)
	for _, line := range dependencyLines(snapshot.Dependencies, snapshot.DependencySummary, colorize) {
		fmt.Fprintln(out, line)
	}

	if lines := pipelineLines(snapshot.Scheduler, colorize); len(lines) > 0 {
		fmt.Fprintln(out)
		printSection(out, "Pipeline", colorize)
		for _, line := range lines {
			fmt.Fprintln(out, line)
		}
	}

	fmt.Fprintln(out)
	printSection(out, "Queue Status", colorize)
	rows := buildQueueStatusRows(snapshot.QueueStats)
	if len(rows) == 0 {
		fmt.Fprintln(out, "Queue is empty")
		return
	}
	fmt.Fprint(out, renderTable([]string{"Stage", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
}

func printSection(out io.Writer, title string, colorize bool) {
	for _, line := range renderSectionHeader(title, colorize) {
		fmt.Fprintln(out, line)
	}
}

func dependencyLines(deps []ipc.DependencyStatus, summary daemonctl.DependencySummary, colorize bool) []string {
	lines := make([]string, 0, len(deps)+2)
	lines = append(lines, renderStatusLine("Summary", statusKindFromSeverity(summary.Severity), summary.Detail, colorize))
	missing := make([]string, 0)
	for _, dep := range deps {
		if dep.Available {
			message := "Ready"
			if dep.Command != "" {
				message = fmt.Sprintf("Ready (command: %s)", dep.Command)
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}
		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
		missing = append(missing, dep.Name)
	}
	if len(missing) > 0 {
		lines = append(lines, renderStatusLine("Missing dependencies", statusWarn, strings.Join(missing, ", "), colorize))
	}
	return lines
}

// pipelineLines reports stage backend readiness, worker pools, and running
// jobs. It is empty when the daemon is unreachable.
func pipelineLines(status api.SchedulerStatus, colorize bool) []string {
	var lines []string
	for _, h := range status.StageHealth {
		kind := statusOK
		detail := "Ready"
		if !h.Ready {
			kind = statusError
			detail = strings.TrimSpace(h.Detail)
		} else if strings.TrimSpace(h.Detail) != "" {
			detail = "Ready (" + strings.TrimSpace(h.Detail) + ")"
		}
		lines = append(lines, renderStatusLine(h.Name, kind, detail, colorize))
	}
	for _, p := range status.Pools {
		detail := fmt.Sprintf("%d workers, %d active, %d queued, %d done, %d failed", p.Size, p.Active, p.Queued, p.Completed, p.Failed)
		lines = append(lines, renderStatusLine(p.Name+" pool", statusInfo, detail, colorize))
	}
	for _, job := range status.Active {
		lines = append(lines, renderStatusLine(fmt.Sprintf("Job #%d", job.ID), statusInfo, formatStatusLabel(job.Stage)+" since "+formatDisplayTime(job.StartedAt), colorize))
	}
	if status.LastError != "" {
		lines = append(lines, renderStatusLine("Last error", statusWarn, status.LastError, colorize))
	}
	return lines
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{ConfigPath: ctx.configPath()}
	if ctx.socketFlag != nil {
		opts.SocketPath = strings.TrimSpace(*ctx.socketFlag)
	}
	return opts
}
