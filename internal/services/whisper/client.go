// Package whisper transcribes audio with the whisper.cpp command line tool.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"recap/internal/services"
)

const stageName = "transcribe"

// Config selects the binary, model and decoding options.
type Config struct {
	Binary   string
	Model    string
	Language string
	Threads  int
	// ModelDirs are searched for ggml-<name>.bin when Model is a bare name.
	ModelDirs []string
}

// Client runs whisper.cpp through a CommandRunner.
type Client struct {
	cfg    Config
	runner services.CommandRunner
}

// New builds a client. A nil runner executes on the host.
func New(cfg Config, runner services.CommandRunner) *Client {
	if strings.TrimSpace(cfg.Binary) == "" {
		cfg.Binary = "whisper-cli"
	}
	if len(cfg.ModelDirs) == 0 {
		cfg.ModelDirs = DefaultModelDirs()
	}
	if runner == nil {
		runner = services.ExecRunner{}
	}
	return &Client{cfg: cfg, runner: runner}
}

// DefaultModelDirs lists the conventional locations of ggml model files.
func DefaultModelDirs() []string {
	var dirs []string
	if xdg := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdg != "" {
		dirs = append(dirs, filepath.Join(xdg, "whisper"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs,
			filepath.Join(home, ".local", "share", "whisper"),
			filepath.Join(home, ".cache", "whisper"),
		)
	}
	return append(dirs, "/usr/share/whisper", "/usr/local/share/whisper")
}

// ResolveModel returns the model file to load. Model may be a file, a
// directory holding .bin/.gguf files, or a bare name such as "base".
func (c *Client) ResolveModel() (string, error) {
	model := strings.TrimSpace(c.cfg.Model)
	if model == "" {
		return "", services.Wrap(services.ErrConfiguration, stageName, "resolve model", "whisper model is not configured", nil)
	}
	if info, err := os.Stat(model); err == nil {
		if !info.IsDir() {
			return model, nil
		}
		return firstModelIn(model)
	}
	if !strings.ContainsRune(model, filepath.Separator) {
		name := "ggml-" + strings.TrimSuffix(model, ".bin") + ".bin"
		for _, dir := range c.cfg.ModelDirs {
			candidate := filepath.Join(dir, name)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate, nil
			}
		}
	}
	return "", services.Wrap(services.ErrConfiguration, stageName, "resolve model",
		fmt.Sprintf("whisper model %q not found", model), nil)
}

func firstModelIn(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, stageName, "resolve model", "read model directory", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".bin", ".gguf":
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return "", services.Wrap(services.ErrConfiguration, stageName, "resolve model",
			"no .bin or .gguf model files in "+dir, nil)
	}
	sort.Strings(names)
	return filepath.Join(dir, names[0]), nil
}

// Transcribe runs whisper.cpp on audioPath, writing <outBase>.txt, and
// returns the transcript text.
func (c *Client) Transcribe(ctx context.Context, audioPath, outBase string) (string, error) {
	model, err := c.ResolveModel()
	if err != nil {
		return "", err
	}
	args := buildArgs(model, audioPath, outBase, c.cfg.Language, c.cfg.Threads)
	if _, err := c.runner.Run(ctx, c.cfg.Binary, args...); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", services.Wrap(services.ErrExternalTool, stageName, "whisper", "transcription failed", err)
	}
	textPath := outBase + ".txt"
	data, err := os.ReadFile(textPath)
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, stageName, "whisper", "transcript file is missing", err)
	}
	return string(data), nil
}

// HealthCheck reports whether the model can be resolved.
func (c *Client) HealthCheck() error {
	_, err := c.ResolveModel()
	return err
}

func buildArgs(model, audioPath, outBase, language string, threads int) []string {
	args := []string{
		"-m", model,
		"-f", audioPath,
		"-of", outBase,
		"-otxt",
		"-np",
	}
	if lang := strings.TrimSpace(language); lang != "" && !strings.EqualFold(lang, "auto") {
		args = append(args, "-l", lang)
	}
	if threads > 0 {
		args = append(args, "-t", strconv.Itoa(threads))
	}
	return args
}
