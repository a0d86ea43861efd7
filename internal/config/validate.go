package config

import (
	"errors"
	"fmt"
	"net/mail"

	"github.com/robfig/cron/v3"

	"recap/internal/language"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validatePools(); err != nil {
		return err
	}
	if err := c.validateRecovery(); err != nil {
		return err
	}
	if err := c.validateDedup(); err != nil {
		return err
	}
	if err := c.validatePriority(); err != nil {
		return err
	}
	if err := c.validateStages(); err != nil {
		return err
	}
	if err := c.validateTools(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	if err := c.validateEmail(); err != nil {
		return err
	}
	return nil
}

// validateEmail checks the SMTP settings once a host is configured.
func (c *Config) validateEmail() error {
	if c.Email.SMTPHost == "" {
		return nil
	}
	if c.Email.SMTPPort <= 0 || c.Email.SMTPPort > 65535 {
		return fmt.Errorf("email.smtp_port %d is out of range", c.Email.SMTPPort)
	}
	if c.Email.TimeoutSeconds <= 0 {
		return errors.New("email.timeout_seconds must be positive")
	}
	if _, err := mail.ParseAddress(c.Email.From); err != nil {
		return fmt.Errorf("email.from %q: %w", c.Email.From, err)
	}
	if len(c.Email.To) == 0 {
		return errors.New("email.to needs at least one recipient")
	}
	for _, addr := range c.Email.To {
		if _, err := mail.ParseAddress(addr); err != nil {
			return fmt.Errorf("email.to %q: %w", addr, err)
		}
	}
	return nil
}

func (c *Config) validateScheduler() error {
	if c.Scheduler.MaxConcurrent <= 0 {
		return errors.New("scheduler.max_concurrent must be positive")
	}
	if c.Scheduler.PollIntervalMillis <= 0 {
		return errors.New("scheduler.poll_interval_ms must be positive")
	}
	if c.Scheduler.ErrorRetryInterval <= 0 {
		return errors.New("scheduler.error_retry_interval must be positive")
	}
	if c.Scheduler.PersistRetryAttempts <= 0 {
		return errors.New("scheduler.persist_retry_attempts must be positive")
	}
	return nil
}

func (c *Config) validatePools() error {
	if c.Pools.IOWorkers < 0 {
		return errors.New("pools.io_workers must not be negative")
	}
	if c.Pools.CPUWorkers < 0 {
		return errors.New("pools.cpu_workers must not be negative")
	}
	if c.Pools.QueueDepth < 0 {
		return errors.New("pools.queue_depth must not be negative")
	}
	if c.Pools.ShutdownTimeout <= 0 {
		return errors.New("pools.shutdown_timeout must be positive")
	}
	if c.Pools.StageTimeout < 0 {
		return errors.New("pools.stage_timeout must not be negative")
	}
	return nil
}

func (c *Config) validateRecovery() error {
	if c.Recovery.MaxAgeHours <= 0 {
		return errors.New("recovery.max_age_hours must be positive")
	}
	if _, err := cron.ParseStandard(c.Recovery.Schedule); err != nil {
		return fmt.Errorf("recovery.schedule %q: %w", c.Recovery.Schedule, err)
	}
	return nil
}

func (c *Config) validateDedup() error {
	if !c.Dedup.Enabled {
		return nil
	}
	if c.Dedup.CacheSize <= 0 {
		return errors.New("dedup.cache_size must be positive")
	}
	if c.Dedup.RedisAddr != "" {
		if c.Dedup.ClaimTTL <= 0 {
			return errors.New("dedup.claim_ttl must be positive when redis_addr is set")
		}
		if c.Dedup.ClaimWait < 0 {
			return errors.New("dedup.claim_wait must not be negative")
		}
	}
	return nil
}

func (c *Config) validatePriority() error {
	if !c.Priority.Enabled {
		return nil
	}
	if c.Priority.MaxRetries < 0 {
		return errors.New("priority.max_retries must not be negative")
	}
	if c.Priority.RetryBackoff <= 0 {
		return errors.New("priority.retry_backoff must be positive")
	}
	if c.Priority.MaxBackoff < c.Priority.RetryBackoff {
		return errors.New("priority.max_backoff must be at least priority.retry_backoff")
	}
	return nil
}

func (c *Config) validateStages() error {
	required := map[string]string{
		"stages.acquire":    c.Stages.Acquire,
		"stages.extract":    c.Stages.Extract,
		"stages.transcribe": c.Stages.Transcribe,
		"stages.summarize":  c.Stages.Summarize,
	}
	for key, value := range required {
		if value == "" {
			return fmt.Errorf("%s must name a backend", key)
		}
	}
	return nil
}

func (c *Config) validateTools() error {
	switch c.Tools.AudioFormat {
	case "wav", "mp3":
	default:
		return fmt.Errorf("tools.audio_format %q must be wav or mp3", c.Tools.AudioFormat)
	}
	if c.Tools.WhisperThreads < 0 {
		return errors.New("tools.whisper_threads must not be negative")
	}
	if lang := c.Tools.WhisperLanguage; lang != "" && lang != language.Auto && len(lang) != 2 {
		return fmt.Errorf("tools.whisper_language %q is not a recognized language", lang)
	}
	return nil
}

func (c *Config) validateLLM() error {
	if c.Stages.Summarize == "command" && c.LLM.Command == "" {
		return errors.New("llm.command is required when stages.summarize is \"command\"")
	}
	if c.LLM.TimeoutSeconds <= 0 {
		return errors.New("llm.timeout_seconds must be positive")
	}
	if c.LLM.RequestsPerMinute < 0 {
		return errors.New("llm.requests_per_minute must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q must be console or json", c.Logging.Format)
	}
	return nil
}
