package main

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"recap/internal/api"
	"recap/internal/queue"
)

func buildQueueStatusRows(stats map[string]int) [][]string {
	if len(stats) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(stats))
	seen := make(map[string]struct{}, len(stats))
	for _, stage := range queue.AllStages() {
		key := string(stage)
		seen[key] = struct{}{}
		if count, ok := stats[key]; ok && count > 0 {
			rows = append(rows, []string{formatStatusLabel(key), strconv.Itoa(count)})
		}
	}
	extra := make([]string, 0)
	for key := range stats {
		if _, ok := seen[key]; !ok {
			extra = append(extra, key)
		}
	}
	slices.Sort(extra)
	for _, key := range extra {
		rows = append(rows, []string{formatStatusLabel(key), strconv.Itoa(stats[key])})
	}
	return rows
}

func buildQueueListRows(jobs []api.Job) [][]string {
	if len(jobs) == 0 {
		return nil
	}
	sorted := api.SortJobsNewestFirst(jobs)
	rows := make([][]string, 0, len(sorted))
	for _, job := range sorted {
		rows = append(rows, []string{
			strconv.FormatInt(job.ID, 10),
			jobTitle(job),
			formatStageProgress(job),
			formatStatusLabel(job.Priority),
			formatDisplayTime(job.CreatedAt),
			job.SourceRef,
		})
	}
	return rows
}

var queueListHeaders = []string{"ID", "Title", "Stage", "Priority", "Created", "Source"}

var queueListAlignments = []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft}

func jobTitle(job api.Job) string {
	if title := strings.TrimSpace(job.Title); title != "" {
		return title
	}
	if source := strings.TrimSpace(job.SourceRef); source != "" {
		return source
	}
	return "Unknown"
}

// formatStageProgress adds the percentage for jobs that are mid-pipeline.
func formatStageProgress(job api.Job) string {
	label := formatStatusLabel(job.Stage)
	stage, ok := queue.ParseStage(job.Stage)
	if ok && stage.IsProcessing() {
		return fmt.Sprintf("%s (%d%%)", label, job.Progress)
	}
	return label
}

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	parts := strings.Split(status, "_")
	for i, part := range parts {
		lower := strings.ToLower(part)
		if lower == "" {
			continue
		}
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}

func formatDisplayTime(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	ts := api.ParseQueueTime(value)
	if ts.IsZero() {
		return value
	}
	return ts.Local().Format("2006-01-02 15:04")
}

func parsePositiveIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid job id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func jobsByID(jobs []api.Job) map[int64]api.Job {
	byID := make(map[int64]api.Job, len(jobs))
	for _, job := range jobs {
		byID[job.ID] = job
	}
	return byID
}
