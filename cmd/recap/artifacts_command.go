package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"recap/internal/logging"
	"recap/internal/queue"
	"recap/internal/staging"
)

func newArtifactsCommand(ctx *commandContext) *cobra.Command {
	artifactsCmd := &cobra.Command{
		Use:   "artifacts",
		Short: "Inspect and prune stored job artifacts",
	}

	artifactsCmd.AddCommand(newArtifactsListCommand(ctx))
	artifactsCmd.AddCommand(newArtifactsPruneCommand(ctx))

	return artifactsCmd
}

func newArtifactsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show artifact directories and their size",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dirs, err := staging.ListDirectories(cfg.Paths.ArtifactDir)
			if err != nil {
				return fmt.Errorf("list artifacts: %w", err)
			}
			if ctx.JSONMode() {
				if dirs == nil {
					dirs = []staging.DirInfo{}
				}
				return writeJSON(cmd, dirs)
			}
			printArtifactDirs(cmd.OutOrStdout(), dirs)
			return nil
		},
	}
}

func printArtifactDirs(out io.Writer, dirs []staging.DirInfo) {
	if len(dirs) == 0 {
		fmt.Fprintln(out, "No artifacts stored")
		return
	}
	var total int64
	rows := make([][]string, 0, len(dirs))
	for _, dir := range dirs {
		total += dir.Size
		rows = append(rows, []string{
			dir.Name,
			humanBytes(dir.Size),
			dir.ModTime.Local().Format("2006-01-02 15:04"),
		})
	}
	fmt.Fprint(out, renderTable([]string{"Content Key", "Size", "Updated"}, rows, []columnAlignment{alignLeft, alignRight, alignLeft}))
	fmt.Fprintf(out, "Total: %s in %d directories\n", humanBytes(total), len(dirs))
}

func newArtifactsPruneCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove stale scratch space and artifacts no job references",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := queue.OpenPath(cfg.DatabasePath())
			if err != nil {
				return fmt.Errorf("open queue store: %w", err)
			}
			defer store.Close()

			result, err := staging.Sweep(cmd.Context(), cfg.Paths.ArtifactDir, store, cfg.RecoveryMaxAge(), logging.NewNop())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, failure := range result.Errors {
				fmt.Fprintf(out, "Failed to remove %s: %v\n", failure.Path, failure.Error)
			}
			if len(result.Removed) == 0 {
				fmt.Fprintln(out, "No artifact directories pruned")
				return nil
			}
			fmt.Fprintf(out, "Pruned %d directories\n", len(result.Removed))
			for _, path := range result.Removed {
				fmt.Fprintf(out, "  - %s\n", strings.TrimPrefix(path, cfg.Paths.ArtifactDir+"/"))
			}
			return nil
		},
	}
}

func humanBytes(v int64) string {
	const unit = 1024
	if v < unit {
		return fmt.Sprintf("%d B", v)
	}
	div := int64(unit)
	exp := 0
	for n := v / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(v)/float64(div), "KMGTPEZY"[exp])
}
