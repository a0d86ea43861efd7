package main

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"recap/internal/api"
	"recap/internal/artifacts"
	"recap/internal/queue"
	"recap/internal/queueaccess"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var printSummary bool

	cmd := &cobra.Command{
		Use:   "show <jobID>",
		Short: "Show a job's details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.withQueue(func(access queueaccess.Access) error {
				job, err := access.Describe(cmd.Context(), ids[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if printSummary {
					path := job.Artifacts[queue.ArtifactSummary]
					if path == "" {
						return fmt.Errorf("job %d has no summary yet (stage %s)", job.ID, job.Stage)
					}
					text, err := artifacts.ReadText(path)
					if err != nil {
						return err
					}
					fmt.Fprintln(out, strings.TrimSpace(text))
					return nil
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, job)
				}
				renderJobDetails(out, *job)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&printSummary, "summary", false, "Print the summary text instead of job details")
	return cmd
}

func renderJobDetails(out io.Writer, job api.Job) {
	field := func(label, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		fmt.Fprintf(out, "%-14s %s\n", label+":", value)
	}

	field("Job", "#"+strconv.FormatInt(job.ID, 10))
	field("Title", jobTitle(job))
	field("Source", job.SourceRef)
	field("Content key", job.ContentKey)
	field("Stage", formatStageProgress(job))
	field("Priority", formatStatusLabel(job.Priority))
	if job.Attempts > 0 {
		field("Attempts", strconv.Itoa(job.Attempts))
	}
	if meta := job.Metadata; meta != nil {
		field("Uploader", meta.Uploader)
		field("Platform", meta.Platform)
		if meta.DurationSeconds > 0 {
			field("Duration", (time.Duration(meta.DurationSeconds) * time.Second).String())
		}
	}
	field("Created", formatDisplayTime(job.CreatedAt))
	field("Updated", formatDisplayTime(job.UpdatedAt))
	field("Completed", formatDisplayTime(job.CompletedAt))
	field("Error", job.ErrorMessage)

	if len(job.Artifacts) == 0 {
		return
	}
	fmt.Fprintln(out, "Artifacts:")
	keys := make([]string, 0, len(job.Artifacts))
	for key := range job.Artifacts {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		fmt.Fprintf(out, "  %-12s %s\n", key+":", job.Artifacts[key])
	}
}
