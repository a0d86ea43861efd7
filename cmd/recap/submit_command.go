package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"recap/internal/ipc"
	"recap/internal/queue"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var priority string

	cmd := &cobra.Command{
		Use:   "submit <url...>",
		Short: "Queue one or more video URLs for summarizing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := queue.ParsePriority(priority); err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				submitted := make([]ipc.Job, 0, len(args))
				for _, arg := range args {
					ref := strings.TrimSpace(arg)
					resp, err := client.Submit(ref, priority)
					if err != nil {
						return fmt.Errorf("submit %s: %w", ref, err)
					}
					submitted = append(submitted, resp.Job)
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, submitted)
				}
				for _, job := range submitted {
					fmt.Fprintf(cmd.OutOrStdout(), "Queued job #%d (%s, %s priority)\n", job.ID, job.SourceRef, job.Priority)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&priority, "priority", "p", "", "Job priority: low, normal, high, or urgent")
	return cmd
}
