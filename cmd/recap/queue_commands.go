package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"recap/internal/api"
	"recap/internal/ipc"
	"recap/internal/queue"
	"recap/internal/queueaccess"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the job queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueCancelCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueHealthSubcommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show job counts per stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(access queueaccess.Access) error {
				stats, err := access.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, stats)
				}
				rows := buildQueueStatusRows(stats)
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Stage", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var stages []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range stages {
				if _, ok := queue.ParseStage(name); !ok {
					return fmt.Errorf("unknown stage %q", name)
				}
			}
			return ctx.withQueue(func(access queueaccess.Access) error {
				jobs, err := access.List(cmd.Context(), stages)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					if jobs == nil {
						jobs = []api.Job{}
					}
					return writeJSON(cmd, jobs)
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(queueListHeaders, buildQueueListRows(jobs), queueListAlignments))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&stages, "stage", "s", nil, "Filter by stage (repeatable)")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [jobID...]",
		Short: "Return failed jobs to pending",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.withQueue(func(access queueaccess.Access) error {
				out := cmd.OutOrStdout()
				if len(ids) == 0 {
					updated, err := access.Retry(cmd.Context(), nil)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Retried %d failed jobs\n", updated)
					return nil
				}

				jobs, err := access.List(cmd.Context(), nil)
				if err != nil {
					return err
				}
				byID := jobsByID(jobs)
				for _, id := range ids {
					job, ok := byID[id]
					if !ok {
						fmt.Fprintf(out, "Job %d not found\n", id)
						continue
					}
					if job.Stage != string(queue.StageFailed) {
						fmt.Fprintf(out, "Job %d is not in failed state\n", id)
						continue
					}
					updated, err := access.Retry(cmd.Context(), []int64{id})
					if err != nil {
						return err
					}
					if updated > 0 {
						fmt.Fprintf(out, "Job %d reset for retry\n", id)
					} else {
						fmt.Fprintf(out, "Job %d is not in failed state\n", id)
					}
				}
				return nil
			})
		},
	}
}

func newQueueCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <jobID...>",
		Short: "Cancel pending or running jobs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.withQueue(func(access queueaccess.Access) error {
				out := cmd.OutOrStdout()
				jobs, err := access.List(cmd.Context(), nil)
				if err != nil {
					return err
				}
				byID := jobsByID(jobs)
				for _, id := range ids {
					job, ok := byID[id]
					if !ok {
						fmt.Fprintf(out, "Job %d not found\n", id)
						continue
					}
					if stage, _ := queue.ParseStage(job.Stage); stage.IsTerminal() {
						fmt.Fprintf(out, "Job %d already %s\n", id, job.Stage)
						continue
					}
					cancelled, err := access.Cancel(cmd.Context(), []int64{id})
					if err != nil {
						return err
					}
					switch {
					case cancelled > 0:
						fmt.Fprintf(out, "Job %d cancelled\n", id)
					case !access.Online():
						fmt.Fprintf(out, "Job %d is %s; start the daemon to cancel it\n", id, job.Stage)
					default:
						fmt.Fprintf(out, "Job %d could not be cancelled\n", id)
					}
				}
				return nil
			})
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <jobID...>",
		Short: "Delete jobs from the queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.withQueue(func(access queueaccess.Access) error {
				out := cmd.OutOrStdout()
				jobs, err := access.List(cmd.Context(), nil)
				if err != nil {
					return err
				}
				byID := jobsByID(jobs)
				for _, id := range ids {
					job, ok := byID[id]
					if !ok {
						fmt.Fprintf(out, "Job %d not found\n", id)
						continue
					}
					if stage, _ := queue.ParseStage(job.Stage); stage.IsProcessing() && access.Online() {
						fmt.Fprintf(out, "Job %d is %s; cancel it first\n", id, job.Stage)
						continue
					}
					removed, err := access.Remove(cmd.Context(), []int64{id})
					if err != nil {
						return err
					}
					if removed > 0 {
						fmt.Fprintf(out, "Job %d removed\n", id)
					} else {
						fmt.Fprintf(out, "Job %d not found\n", id)
					}
				}
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var clearCompleted bool
	var clearFailed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove jobs from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearCompleted && clearFailed {
				return errors.New("specify only one of --completed or --failed")
			}
			return ctx.withQueue(func(access queueaccess.Access) error {
				out := cmd.OutOrStdout()
				switch {
				case clearCompleted:
					removed, err := access.ClearCompleted(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Cleared %d completed jobs\n", removed)
				case clearFailed:
					removed, err := access.ClearFailed(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Cleared %d failed jobs\n", removed)
				default:
					removed, err := access.ClearAll(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Cleared %d jobs\n", removed)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearCompleted, "completed", false, "Remove only completed jobs")
	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Remove only failed jobs")
	return cmd
}

func newQueueHealthSubcommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show queue health summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(access queueaccess.Access) error {
				stats, err := access.Stats(cmd.Context())
				if err != nil {
					return err
				}
				health := summarizeHealth(stats)
				if ctx.JSONMode() {
					return writeJSON(cmd, health)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Total: %d\n", health.Total)
				fmt.Fprintf(out, "Pending: %d\n", health.Pending)
				fmt.Fprintf(out, "Processing: %d\n", health.Processing)
				fmt.Fprintf(out, "Failed: %d\n", health.Failed)
				fmt.Fprintf(out, "Completed: %d\n", health.Completed)
				return nil
			})
		},
	}
}

// summarizeHealth folds per-stage counts into the same shape the daemon
// reports, so the command works without a running daemon.
func summarizeHealth(stats map[string]int) ipc.QueueHealthResponse {
	var health ipc.QueueHealthResponse
	for name, count := range stats {
		health.Total += count
		stage, ok := queue.ParseStage(name)
		switch {
		case !ok:
		case stage == queue.StagePending:
			health.Pending += count
		case stage == queue.StageFailed:
			health.Failed += count
		case stage == queue.StageCompleted:
			health.Completed += count
		case stage.IsProcessing():
			health.Processing += count
		}
	}
	return health
}
