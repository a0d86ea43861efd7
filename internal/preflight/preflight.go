package preflight

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"golang.org/x/sys/unix"

	"recap/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the checks that apply to cfg. Optional paths are only
// checked when the feature using them is configured.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Artifact directory", cfg.Paths.ArtifactDir),
	}
	if slices.Contains(cfg.Stages.Publish, "notes") {
		results = append(results, CheckDirectoryAccess("Notes directory", cfg.Notes.Dir))
	}
	if strings.TrimSpace(cfg.Tools.CookiesFile) != "" {
		results = append(results, CheckFileReadable("Cookies file", cfg.Tools.CookiesFile))
	}
	results = append(results, CheckSummarizer(cfg))
	return results
}

// Failed filters results down to the checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFileReadable verifies that a regular file exists and can be read.
func CheckFileReadable(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (readable)", path)}
}

// CheckSummarizer verifies that the selected summarize backend has the
// settings it needs. No request is sent to the LLM provider.
func CheckSummarizer(cfg *config.Config) Result {
	const name = "Summarizer"
	switch cfg.Stages.Summarize {
	case "llm":
		if strings.TrimSpace(cfg.LLM.APIKey) == "" {
			return Result{Name: name, Detail: "llm: API key missing (set RECAP_LLM_API_KEY)"}
		}
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("llm: %s", cfg.LLM.Model)}
	case "command":
		if strings.TrimSpace(cfg.LLM.Command) == "" {
			return Result{Name: name, Detail: "command: llm.command not set"}
		}
		return Result{Name: name, Passed: true, Detail: "command: " + cfg.LLM.Command}
	default:
		return Result{Name: name, Passed: true, Detail: cfg.Stages.Summarize}
	}
}
