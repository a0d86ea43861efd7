package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir     string `toml:"data_dir"`
	LogDir      string `toml:"log_dir"`
	ArtifactDir string `toml:"artifact_dir"`
	SocketPath  string `toml:"socket_path"`
	APIBind     string `toml:"api_bind"`
	APIToken    string `toml:"api_token"`
}

// Scheduler controls the bounded-concurrency run loop.
type Scheduler struct {
	MaxConcurrent        int `toml:"max_concurrent"`
	PollIntervalMillis   int `toml:"poll_interval_ms"`
	ErrorRetryInterval   int `toml:"error_retry_interval"`
	PersistRetryAttempts int `toml:"persist_retry_attempts"`
}

// Pools sizes the IO and CPU execution pools. Zero worker counts resolve to
// host-derived defaults during Load.
type Pools struct {
	IOWorkers       int `toml:"io_workers"`
	CPUWorkers      int `toml:"cpu_workers"`
	QueueDepth      int `toml:"queue_depth"`
	ShutdownTimeout int `toml:"shutdown_timeout"`
	StageTimeout    int `toml:"stage_timeout"`
}

// Recovery configures the stale-job sweeper.
type Recovery struct {
	Schedule    string `toml:"schedule"`
	MaxAgeHours int    `toml:"max_age_hours"`
}

// Dedup configures the content-key deduplication gate.
type Dedup struct {
	Enabled       bool   `toml:"enabled"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	ClaimTTL      int    `toml:"claim_ttl"`
	ClaimWait     int    `toml:"claim_wait"`
	CacheSize     int    `toml:"cache_size"`
}

// Priority enables the priority-ordered scheduler with bounded retries.
type Priority struct {
	Enabled      bool `toml:"enabled"`
	MaxRetries   int  `toml:"max_retries"`
	RetryBackoff int  `toml:"retry_backoff"`
	MaxBackoff   int  `toml:"max_backoff"`
}

// Stages names the backend selected for each pipeline stage.
type Stages struct {
	Acquire    string   `toml:"acquire"`
	Extract    string   `toml:"extract"`
	Transcribe string   `toml:"transcribe"`
	Summarize  string   `toml:"summarize"`
	Publish    []string `toml:"publish"`
}

// Tools contains external binary settings.
type Tools struct {
	YtDlpBinary     string `toml:"ytdlp_binary"`
	FFmpegBinary    string `toml:"ffmpeg_binary"`
	FFprobeBinary   string `toml:"ffprobe_binary"`
	WhisperBinary   string `toml:"whisper_binary"`
	WhisperModel    string `toml:"whisper_model"`
	WhisperLanguage string `toml:"whisper_language"`
	WhisperThreads  int    `toml:"whisper_threads"`
	CookiesFile     string `toml:"cookies_file"`
	AudioFormat     string `toml:"audio_format"`
}

// LLM contains settings for the summarizer backends.
type LLM struct {
	APIKey            string `toml:"api_key"`
	BaseURL           string `toml:"base_url"`
	Model             string `toml:"model"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	RequestsPerMinute int    `toml:"requests_per_minute"`
	MaxInputChars     int    `toml:"max_input_chars"`
	SystemPrompt      string `toml:"system_prompt"`
	PromptTemplate    string `toml:"prompt_template"`
	Command           string `toml:"command"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completed      bool   `toml:"completed"`
	Failed         bool   `toml:"failed"`
}

// Notes configures markdown export of finished summaries.
type Notes struct {
	Dir  string   `toml:"dir"`
	Tags []string `toml:"tags"`
}

// Email configures delivery of finished summaries over SMTP.
type Email struct {
	SMTPHost       string   `toml:"smtp_host"`
	SMTPPort       int      `toml:"smtp_port"`
	Username       string   `toml:"username"`
	Password       string   `toml:"password"`
	From           string   `toml:"from"`
	FromName       string   `toml:"from_name"`
	To             []string `toml:"to"`
	ImplicitTLS    bool     `toml:"implicit_tls"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// Metrics toggles the Prometheus endpoint on the API listener.
type Metrics struct {
	Enabled bool `toml:"enabled"`
}

// Logging contains logging configuration.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for recap.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Scheduler     Scheduler     `toml:"scheduler"`
	Pools         Pools         `toml:"pools"`
	Recovery      Recovery      `toml:"recovery"`
	Dedup         Dedup         `toml:"dedup"`
	Priority      Priority      `toml:"priority"`
	Stages        Stages        `toml:"stages"`
	Tools         Tools         `toml:"tools"`
	LLM           LLM           `toml:"llm"`
	Notifications Notifications `toml:"notifications"`
	Notes         Notes         `toml:"notes"`
	Email         Email         `toml:"email"`
	Metrics       Metrics       `toml:"metrics"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and worker counts resolved.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if err := loadDotEnv(filepath.Dir(resolvedPath)); err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadDotEnv merges KEY=value pairs from a .env file beside the config.
// Variables already present in the environment win.
func loadDotEnv(dir string) error {
	envPath := filepath.Join(dir, ".env")
	info, err := os.Stat(envPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}
	if info.IsDir() {
		return nil
	}
	if err := godotenv.Load(envPath); err != nil {
		return fmt.Errorf("load env file %q: %w", envPath, err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("recap.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.ArtifactDir}
	if c.Notes.Dir != "" {
		dirs = append(dirs, c.Notes.Dir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite job store location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "queue.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "recap.lock")
}

// PIDPath returns the daemon PID file.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "recap.pid")
}

// PollInterval returns the scheduler poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Scheduler.PollIntervalMillis) * time.Millisecond
}

// ErrorRetryDelay returns the wait applied after a failed runnable fetch.
func (c *Config) ErrorRetryDelay() time.Duration {
	return time.Duration(c.Scheduler.ErrorRetryInterval) * time.Second
}

// RecoveryMaxAge returns the staleness threshold for periodic sweeps.
func (c *Config) RecoveryMaxAge() time.Duration {
	return time.Duration(c.Recovery.MaxAgeHours) * time.Hour
}

// StageTimeout returns the per-stage timeout, or zero when unbounded.
func (c *Config) StageTimeout() time.Duration {
	return time.Duration(c.Pools.StageTimeout) * time.Second
}

// ShutdownTimeout returns how long pools may drain before in-flight work is cancelled.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Pools.ShutdownTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
