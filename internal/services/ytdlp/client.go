// Package ytdlp wraps the yt-dlp CLI for probing and downloading source
// videos.
package ytdlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"recap/internal/services"
)

const (
	stageName      = "acquire"
	outputTemplate = "media.%(ext)s"
)

// Config selects the binary and optional cookie jar.
type Config struct {
	Binary      string
	CookiesFile string
}

// Info is the subset of yt-dlp's JSON description recap keeps.
type Info struct {
	ID          string  `json:"id"`
	Extractor   string  `json:"extractor_key"`
	Title       string  `json:"title"`
	Uploader    string  `json:"uploader"`
	Channel     string  `json:"channel"`
	Duration    float64 `json:"duration"`
	Description string  `json:"description"`
	WebpageURL  string  `json:"webpage_url"`
}

// ContentKey identifies the underlying video independent of the URL form
// used to reach it, e.g. "youtube:dQw4w9WgXcQ".
func (i Info) ContentKey() string {
	platform := strings.ToLower(strings.TrimSpace(i.Extractor))
	id := strings.TrimSpace(i.ID)
	if platform == "" || id == "" {
		return ""
	}
	return platform + ":" + id
}

// Author prefers the uploader and falls back to the channel name.
func (i Info) Author() string {
	if strings.TrimSpace(i.Uploader) != "" {
		return strings.TrimSpace(i.Uploader)
	}
	return strings.TrimSpace(i.Channel)
}

// Client runs yt-dlp through a CommandRunner.
type Client struct {
	cfg    Config
	runner services.CommandRunner
}

// New builds a client. A nil runner executes on the host.
func New(cfg Config, runner services.CommandRunner) *Client {
	if strings.TrimSpace(cfg.Binary) == "" {
		cfg.Binary = "yt-dlp"
	}
	if runner == nil {
		runner = services.ExecRunner{}
	}
	return &Client{cfg: cfg, runner: runner}
}

func (c *Client) baseArgs() []string {
	args := []string{"--no-playlist", "--no-warnings"}
	if c.cfg.CookiesFile != "" {
		args = append(args, "--cookies", c.cfg.CookiesFile)
	}
	return args
}

// Probe resolves a URL to its metadata without downloading.
func (c *Client) Probe(ctx context.Context, url string) (Info, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return Info{}, services.Wrap(services.ErrValidation, stageName, "probe", "source reference is empty", nil)
	}
	args := append(c.baseArgs(), "--dump-single-json", "--skip-download", url)
	result, err := c.runner.Run(ctx, c.cfg.Binary, args...)
	if err != nil {
		return Info{}, classify("probe", err)
	}
	var info Info
	if err := json.Unmarshal([]byte(result.Stdout), &info); err != nil {
		return Info{}, services.Wrap(services.ErrExternalTool, stageName, "probe", "decode yt-dlp json", err)
	}
	if info.ContentKey() == "" {
		return Info{}, services.Wrap(services.ErrValidation, stageName, "probe",
			fmt.Sprintf("yt-dlp returned no id for %s", url), nil)
	}
	return info, nil
}

// Download fetches the best available media into dir and returns the file
// path yt-dlp reports after merging.
func (c *Client) Download(ctx context.Context, url, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}
	args := append(c.baseArgs(),
		"--no-progress",
		"-f", "bv*+ba/b",
		"-o", filepath.Join(dir, outputTemplate),
		"--print", "after_move:filepath",
		strings.TrimSpace(url),
	)
	result, err := c.runner.Run(ctx, c.cfg.Binary, args...)
	if err != nil {
		return "", classify("download", err)
	}
	path := lastLine(result.Stdout)
	if path == "" {
		return "", services.Wrap(services.ErrExternalTool, stageName, "download", "yt-dlp did not report an output path", nil)
	}
	if _, err := os.Stat(path); err != nil {
		return "", services.Wrap(services.ErrExternalTool, stageName, "download", "downloaded file is missing", err)
	}
	return path, nil
}

// Version returns the yt-dlp version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	result, err := c.runner.Run(ctx, c.cfg.Binary, "--version")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Stdout), nil
}

var permanentMarkers = []string{
	"unsupported url",
	"video unavailable",
	"private video",
	"this video has been removed",
	"is not a valid url",
	"members-only",
}

func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var cmdErr *services.CommandError
	if errors.As(err, &cmdErr) {
		stderr := strings.ToLower(cmdErr.Stderr)
		for _, marker := range permanentMarkers {
			if strings.Contains(stderr, marker) {
				return services.Wrap(services.ErrValidation, stageName, op, "source cannot be downloaded", err)
			}
		}
		if strings.Contains(stderr, "http error 429") || strings.Contains(stderr, "timed out") {
			return services.Wrap(services.ErrTransient, stageName, op, "source temporarily unavailable", err)
		}
	}
	return services.Wrap(services.ErrExternalTool, stageName, op, "yt-dlp failed", err)
}

func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
