package stageexec

import (
	"errors"

	"go.uber.org/zap"

	"recap/internal/artifacts"
	"recap/internal/config"
	"recap/internal/logging"
	"recap/internal/services"
	"recap/internal/services/ffmpeg"
	"recap/internal/services/llm"
	"recap/internal/services/whisper"
	"recap/internal/services/ytdlp"
	"recap/internal/stage"
)

// Backend names registered by Register.
const (
	BackendYtDlp   = "ytdlp"
	BackendFFmpeg  = "ffmpeg"
	BackendWhisper = "whisper"
	BackendLLM     = "llm"
	BackendCommand = "command"
)

// Deps carries what the built-in executors need.
type Deps struct {
	Config    *config.Config
	Artifacts *artifacts.Store
	Runner    services.CommandRunner
	Logger    *zap.Logger
	// LLMOptions customize the chat client (tests point it at httptest).
	LLMOptions []llm.Option
}

// Register adds the built-in executors to reg.
func Register(reg *stage.Registry, deps Deps) error {
	if deps.Config == nil || deps.Artifacts == nil {
		return errors.New("stageexec: config and artifact store are required")
	}
	if deps.Runner == nil {
		deps.Runner = services.ExecRunner{}
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	cfg := deps.Config

	factories := []struct {
		kind    stage.Kind
		name    string
		factory stage.ExecutorFactory
	}{
		{stage.KindAcquire, BackendYtDlp, func() (stage.Executor, error) {
			client := ytdlp.New(ytdlp.Config{Binary: cfg.Tools.YtDlpBinary, CookiesFile: cfg.Tools.CookiesFile}, deps.Runner)
			return NewAcquirer(client, deps.Artifacts, deps.Logger), nil
		}},
		{stage.KindExtract, BackendFFmpeg, func() (stage.Executor, error) {
			client := ffmpeg.New(ffmpeg.Config{
				FFmpegBinary:  cfg.Tools.FFmpegBinary,
				FFprobeBinary: cfg.Tools.FFprobeBinary,
				Format:        cfg.Tools.AudioFormat,
			}, deps.Runner)
			return NewExtractor(client, deps.Artifacts), nil
		}},
		{stage.KindTranscribe, BackendWhisper, func() (stage.Executor, error) {
			client := whisper.New(whisper.Config{
				Binary:   cfg.Tools.WhisperBinary,
				Model:    cfg.Tools.WhisperModel,
				Language: cfg.Tools.WhisperLanguage,
				Threads:  cfg.Tools.WhisperThreads,
			}, deps.Runner)
			return NewTranscriber(client, deps.Artifacts), nil
		}},
		{stage.KindSummarize, BackendLLM, func() (stage.Executor, error) {
			client := llm.NewClient(llm.Config{
				APIKey:            cfg.LLM.APIKey,
				BaseURL:           cfg.LLM.BaseURL,
				Model:             cfg.LLM.Model,
				TimeoutSeconds:    cfg.LLM.TimeoutSeconds,
				RequestsPerMinute: cfg.LLM.RequestsPerMinute,
			}, deps.LLMOptions...)
			return NewLLMSummarizer(client, deps.Artifacts, promptFromConfig(cfg)), nil
		}},
		{stage.KindSummarize, BackendCommand, func() (stage.Executor, error) {
			return NewCommandSummarizer(cfg.LLM.Command, deps.Runner, deps.Artifacts, promptFromConfig(cfg))
		}},
	}
	for _, f := range factories {
		if err := reg.RegisterExecutor(f.kind, f.name, f.factory); err != nil {
			return err
		}
	}
	return nil
}

func promptFromConfig(cfg *config.Config) Prompt {
	system := cfg.LLM.SystemPrompt
	if system == "" {
		system = llm.DefaultSystemPrompt
	}
	return Prompt{System: system, Template: cfg.LLM.PromptTemplate, MaxInputChars: cfg.LLM.MaxInputChars}
}
