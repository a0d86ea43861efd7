package config

const (
	defaultConfigPath  = "~/.config/recap/config.toml"
	defaultDataDir     = "~/.local/share/recap"
	defaultLogDir      = "~/.local/share/recap/logs"
	defaultArtifactDir = "~/.local/share/recap/artifacts"
	defaultNotesDir    = "~/.local/share/recap/notes"
	defaultSMTPPort    = 587
	defaultSMTPTimeout = 30
	defaultSocketName  = "recap.sock"
	defaultAPIBind     = "127.0.0.1:7491"

	defaultMaxConcurrent        = 5
	defaultPollIntervalMillis   = 1000
	defaultErrorRetryInterval   = 5
	defaultPersistRetryAttempts = 3

	maxIOWorkers           = 32
	ioWorkersPerCPU        = 5
	defaultQueueDepth      = 64
	defaultShutdownTimeout = 30

	defaultRecoverySchedule = "@every 1h"
	defaultRecoveryMaxAge   = 24

	defaultClaimTTL  = 1800
	defaultClaimWait = 30
	defaultCacheSize = 256

	defaultMaxRetries   = 3
	defaultRetryBackoff = 30
	defaultMaxBackoff   = 600

	defaultLLMBaseURL        = "https://api.deepseek.com/v1/chat/completions"
	defaultLLMModel          = "deepseek-chat"
	defaultLLMTimeout        = 120
	defaultLLMRequestsPerMin = 20
	defaultLLMMaxInputChars  = 60000

	defaultNtfyTimeout = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:     defaultDataDir,
			LogDir:      defaultLogDir,
			ArtifactDir: defaultArtifactDir,
			APIBind:     defaultAPIBind,
		},
		Scheduler: Scheduler{
			MaxConcurrent:        defaultMaxConcurrent,
			PollIntervalMillis:   defaultPollIntervalMillis,
			ErrorRetryInterval:   defaultErrorRetryInterval,
			PersistRetryAttempts: defaultPersistRetryAttempts,
		},
		Pools: Pools{
			QueueDepth:      defaultQueueDepth,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Recovery: Recovery{
			Schedule:    defaultRecoverySchedule,
			MaxAgeHours: defaultRecoveryMaxAge,
		},
		Dedup: Dedup{
			Enabled:   true,
			ClaimTTL:  defaultClaimTTL,
			ClaimWait: defaultClaimWait,
			CacheSize: defaultCacheSize,
		},
		Priority: Priority{
			MaxRetries:   defaultMaxRetries,
			RetryBackoff: defaultRetryBackoff,
			MaxBackoff:   defaultMaxBackoff,
		},
		Stages: Stages{
			Acquire:    "ytdlp",
			Extract:    "ffmpeg",
			Transcribe: "whisper",
			Summarize:  "llm",
			Publish:    []string{"ntfy", "notes"},
		},
		Tools: Tools{
			YtDlpBinary:    "yt-dlp",
			FFmpegBinary:   "ffmpeg",
			FFprobeBinary:  "ffprobe",
			WhisperBinary:  "whisper-cli",
			WhisperModel:   "base",
			WhisperThreads: 4,
			AudioFormat:    "wav",
		},
		LLM: LLM{
			BaseURL:           defaultLLMBaseURL,
			Model:             defaultLLMModel,
			TimeoutSeconds:    defaultLLMTimeout,
			RequestsPerMinute: defaultLLMRequestsPerMin,
			MaxInputChars:     defaultLLMMaxInputChars,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeout,
			Completed:      true,
			Failed:         true,
		},
		Notes: Notes{
			Dir:  defaultNotesDir,
			Tags: []string{"recap", "video-summary"},
		},
		Email: Email{
			SMTPPort:       defaultSMTPPort,
			FromName:       "recap",
			TimeoutSeconds: defaultSMTPTimeout,
		},
		Metrics: Metrics{
			Enabled: true,
		},
		Logging: Logging{
			Format: "console",
			Level:  "info",
		},
	}
}
