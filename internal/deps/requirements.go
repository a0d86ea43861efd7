package deps

import (
	"strings"

	"recap/internal/config"
	"recap/internal/stageexec"
)

// Requirements lists the binaries needed by the configured stage backends.
// Backends that do not shell out contribute nothing.
func Requirements(cfg *config.Config) []Requirement {
	if cfg == nil {
		return nil
	}
	var reqs []Requirement
	if strings.EqualFold(cfg.Stages.Acquire, stageexec.BackendYtDlp) {
		reqs = append(reqs, Requirement{
			Name:        "yt-dlp",
			Command:     cfg.Tools.YtDlpBinary,
			Description: "Downloads source videos and metadata",
		})
	}
	if strings.EqualFold(cfg.Stages.Extract, stageexec.BackendFFmpeg) {
		reqs = append(reqs,
			Requirement{
				Name:        "FFmpeg",
				Command:     cfg.Tools.FFmpegBinary,
				Description: "Extracts the audio track",
			},
			Requirement{
				Name:        "FFprobe",
				Command:     cfg.Tools.FFprobeBinary,
				Description: "Counts audio streams before extraction",
			},
		)
	}
	if strings.EqualFold(cfg.Stages.Transcribe, stageexec.BackendWhisper) {
		reqs = append(reqs, Requirement{
			Name:        "Whisper",
			Command:     cfg.Tools.WhisperBinary,
			Description: "Transcribes extracted audio",
		})
	}
	if strings.EqualFold(cfg.Stages.Summarize, stageexec.BackendCommand) {
		var binary string
		if fields := strings.Fields(cfg.LLM.Command); len(fields) > 0 {
			binary = fields[0]
		}
		reqs = append(reqs, Requirement{
			Name:        "Summarizer command",
			Command:     binary,
			Description: "Summarizes transcripts through a local command",
		})
	}
	return reqs
}

// Check evaluates the requirements of cfg.
func Check(cfg *config.Config) []Status {
	return CheckBinaries(Requirements(cfg))
}

// Missing returns the names of required dependencies that are unavailable.
func Missing(statuses []Status) []string {
	var names []string
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			names = append(names, status.Name)
		}
	}
	return names
}
