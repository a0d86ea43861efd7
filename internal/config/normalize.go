package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cast"

	"recap/internal/language"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizePools(); err != nil {
		return err
	}
	c.normalizeDedup()
	c.normalizeStages()
	if err := c.normalizeTools(); err != nil {
		return err
	}
	c.normalizeLLM()
	c.normalizeEmail()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.ArtifactDir, err = expandPath(c.Paths.ArtifactDir); err != nil {
		return fmt.Errorf("paths.artifact_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.SocketPath) == "" {
		c.Paths.SocketPath = filepath.Join(c.Paths.DataDir, defaultSocketName)
	}
	if c.Paths.SocketPath, err = expandPath(c.Paths.SocketPath); err != nil {
		return fmt.Errorf("paths.socket_path: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	if c.Paths.APIToken == "" {
		c.Paths.APIToken = strings.TrimSpace(os.Getenv("RECAP_API_TOKEN"))
	}
	if strings.TrimSpace(c.Notes.Dir) == "" {
		c.Notes.Dir = defaultNotesDir
	}
	if c.Notes.Dir, err = expandPath(strings.TrimSpace(c.Notes.Dir)); err != nil {
		return fmt.Errorf("notes.dir: %w", err)
	}
	if c.Tools.CookiesFile, err = expandPath(strings.TrimSpace(c.Tools.CookiesFile)); err != nil {
		return fmt.Errorf("tools.cookies_file: %w", err)
	}
	return nil
}

// normalizePools applies environment overrides and resolves zero worker
// counts to host-derived defaults: IO min(32, 5*cpus), CPU max(1, cpus-1).
func (c *Config) normalizePools() error {
	if value, ok := lookupEnv("RECAP_IO_WORKERS"); ok {
		n, err := cast.ToIntE(value)
		if err != nil {
			return fmt.Errorf("RECAP_IO_WORKERS: %w", err)
		}
		c.Pools.IOWorkers = n
	}
	if value, ok := lookupEnv("RECAP_CPU_WORKERS"); ok {
		n, err := cast.ToIntE(value)
		if err != nil {
			return fmt.Errorf("RECAP_CPU_WORKERS: %w", err)
		}
		c.Pools.CPUWorkers = n
	}
	cpus := runtime.NumCPU()
	if c.Pools.IOWorkers == 0 {
		c.Pools.IOWorkers = min(maxIOWorkers, cpus*ioWorkersPerCPU)
	}
	if c.Pools.CPUWorkers == 0 {
		c.Pools.CPUWorkers = max(1, cpus-1)
	}
	return nil
}

func (c *Config) normalizeDedup() {
	if value, ok := lookupEnv("RECAP_REDIS_ADDR"); ok {
		c.Dedup.RedisAddr = value
	}
	c.Dedup.RedisAddr = strings.TrimSpace(c.Dedup.RedisAddr)
}

func (c *Config) normalizeStages() {
	c.Stages.Acquire = strings.ToLower(strings.TrimSpace(c.Stages.Acquire))
	c.Stages.Extract = strings.ToLower(strings.TrimSpace(c.Stages.Extract))
	c.Stages.Transcribe = strings.ToLower(strings.TrimSpace(c.Stages.Transcribe))
	c.Stages.Summarize = strings.ToLower(strings.TrimSpace(c.Stages.Summarize))
	publish := make([]string, 0, len(c.Stages.Publish))
	seen := make(map[string]struct{}, len(c.Stages.Publish))
	for _, name := range c.Stages.Publish {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		publish = append(publish, name)
	}
	c.Stages.Publish = publish
}

func (c *Config) normalizeTools() error {
	c.Tools.AudioFormat = strings.ToLower(strings.TrimSpace(c.Tools.AudioFormat))
	c.Tools.WhisperLanguage = normalizeWhisperLanguage(c.Tools.WhisperLanguage)
	if c.Tools.CookiesFile == "" {
		return nil
	}
	var err error
	if c.Tools.CookiesFile, err = expandPath(c.Tools.CookiesFile); err != nil {
		return fmt.Errorf("tools.cookies_file: %w", err)
	}
	return nil
}

// normalizeLLM resolves the API key. Environment variables take precedence
// over the config file so secrets can stay out of it.
func (c *Config) normalizeLLM() {
	for _, key := range []string{"RECAP_LLM_API_KEY", "OPENAI_API_KEY"} {
		if value, ok := lookupEnv(key); ok {
			c.LLM.APIKey = value
			break
		}
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	c.LLM.Command = strings.TrimSpace(c.LLM.Command)
}

// normalizeEmail reads the SMTP password from RECAP_SMTP_PASSWORD when set and
// defaults the sender to the login. Port 465 implies implicit TLS.
func (c *Config) normalizeEmail() {
	if value, ok := lookupEnv("RECAP_SMTP_PASSWORD"); ok {
		c.Email.Password = value
	}
	c.Email.SMTPHost = strings.TrimSpace(c.Email.SMTPHost)
	c.Email.Username = strings.TrimSpace(c.Email.Username)
	c.Email.From = strings.TrimSpace(c.Email.From)
	if c.Email.From == "" {
		c.Email.From = c.Email.Username
	}
	c.Email.FromName = strings.TrimSpace(c.Email.FromName)
	to := make([]string, 0, len(c.Email.To))
	for _, addr := range c.Email.To {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}
	c.Email.To = to
	if c.Email.SMTPPort == 465 {
		c.Email.ImplicitTLS = true
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if format == "" {
		format = "console"
	}
	c.Logging.Format = format
	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = "info"
	}
	c.Logging.Level = level
}

func lookupEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

// normalizeWhisperLanguage maps names and ISO 639-2 codes such as "german" or
// "ger" to the two-letter code whisper expects. "auto" and unknown values pass
// through lowercased so validation can reject them.
func normalizeWhisperLanguage(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" || value == language.Auto {
		return value
	}
	if mapped := language.ToISO2(value); mapped != "" {
		return mapped
	}
	return value
}
