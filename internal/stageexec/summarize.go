package stageexec

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/text/unicode/norm"

	"recap/internal/artifacts"
	"recap/internal/pool"
	"recap/internal/queue"
	"recap/internal/services"
	"recap/internal/services/llm"
	"recap/internal/stage"
)

const summaryName = "summary.md"

// Prompt holds the summarizer prompt settings.
type Prompt struct {
	System        string
	Template      string
	MaxInputChars int
}

func (p Prompt) user(in stage.Input, transcript string) string {
	return llm.BuildUserPrompt(p.Template, in.Metadata.Title, transcript, p.MaxInputChars)
}

// LLMSummarizer summarizes through an OpenAI-compatible API.
type LLMSummarizer struct {
	client *llm.Client
	store  *artifacts.Store
	prompt Prompt
}

// NewLLMSummarizer builds the llm summarize backend.
func NewLLMSummarizer(client *llm.Client, store *artifacts.Store, prompt Prompt) *LLMSummarizer {
	return &LLMSummarizer{client: client, store: store, prompt: prompt}
}

// Run writes <key>/summary.md.
func (s *LLMSummarizer) Run(ctx context.Context, in stage.Input) (stage.Output, error) {
	transcript, err := loadTranscript(in)
	if err != nil {
		return stage.Output{}, err
	}
	summary, err := s.client.Complete(ctx, s.prompt.System, s.prompt.user(in, transcript))
	if err != nil {
		return stage.Output{}, err
	}
	return writeSummary(s.store, in, summary)
}

// HealthCheck only inspects configuration so status calls stay free.
func (s *LLMSummarizer) HealthCheck(context.Context) stage.Health {
	name := string(stage.KindSummarize) + ":" + BackendLLM
	if !s.client.Configured() {
		return stage.Unhealthy(name, "api key is not configured")
	}
	return stage.Health{Name: name, Ready: true, Detail: s.client.Model()}
}

// CommandSummarizer runs a local model command such as `ollama run llama3`,
// passing the rendered prompt as the final argument and reading stdout.
type CommandSummarizer struct {
	binary string
	args   []string
	runner services.CommandRunner
	store  *artifacts.Store
	prompt Prompt
}

// NewCommandSummarizer splits command on whitespace.
func NewCommandSummarizer(command string, runner services.CommandRunner, store *artifacts.Store, prompt Prompt) (*CommandSummarizer, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, string(stage.KindSummarize), "command backend", "llm.command is empty", nil)
	}
	return &CommandSummarizer{binary: fields[0], args: fields[1:], runner: runner, store: store, prompt: prompt}, nil
}

// Resource places local inference on the CPU pool.
func (s *CommandSummarizer) Resource() pool.Kind {
	return pool.KindCPU
}

// Run writes <key>/summary.md from the command's stdout.
func (s *CommandSummarizer) Run(ctx context.Context, in stage.Input) (stage.Output, error) {
	transcript, err := loadTranscript(in)
	if err != nil {
		return stage.Output{}, err
	}
	userPrompt := s.prompt.user(in, transcript)
	if s.prompt.System != "" {
		userPrompt = s.prompt.System + "\n\n" + userPrompt
	}
	args := append(append([]string(nil), s.args...), userPrompt)
	result, err := s.runner.Run(ctx, s.binary, args...)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return stage.Output{}, err
		}
		return stage.Output{}, services.Wrap(services.ErrExternalTool, string(stage.KindSummarize), "command backend", s.binary+" failed", err)
	}
	return writeSummary(s.store, in, result.Stdout)
}

func loadTranscript(in stage.Input) (string, error) {
	path, err := requireArtifact(in, queue.ArtifactTranscript, stage.KindSummarize)
	if err != nil {
		return "", err
	}
	text, err := artifacts.ReadText(path)
	if err != nil {
		return "", services.Wrap(services.ErrNotFound, string(stage.KindSummarize), "load transcript", "", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", services.Wrap(services.ErrValidation, string(stage.KindSummarize), "load transcript", "transcript is empty", nil)
	}
	return text, nil
}

func writeSummary(store *artifacts.Store, in stage.Input, summary string) (stage.Output, error) {
	summary = strings.TrimSpace(norm.NFC.String(summary))
	if summary == "" {
		return stage.Output{}, services.Wrap(services.ErrValidation, string(stage.KindSummarize), "summarize", "summary is empty", nil)
	}
	path, err := store.WriteText(in.ContentKey, summaryName, summary+"\n")
	if err != nil {
		return stage.Output{}, err
	}
	return stage.Output{Artifacts: queue.Artifacts{queue.ArtifactSummary: path}}, nil
}
