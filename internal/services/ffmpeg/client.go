// Package ffmpeg probes media with ffprobe and extracts speech-ready audio
// with ffmpeg.
package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"recap/internal/services"
)

const stageName = "extract"

// Audio formats supported for extraction.
const (
	FormatWAV = "wav"
	FormatMP3 = "mp3"
)

// Config selects binaries and the output format.
type Config struct {
	FFmpegBinary  string
	FFprobeBinary string
	Format        string
}

// Probe summarizes the streams of a media file.
type Probe struct {
	AudioStreams    int
	DurationSeconds float64
}

// Client runs ffmpeg and ffprobe through a CommandRunner.
type Client struct {
	cfg    Config
	runner services.CommandRunner
}

// New builds a client. A nil runner executes on the host.
func New(cfg Config, runner services.CommandRunner) *Client {
	if strings.TrimSpace(cfg.FFmpegBinary) == "" {
		cfg.FFmpegBinary = "ffmpeg"
	}
	if strings.TrimSpace(cfg.FFprobeBinary) == "" {
		cfg.FFprobeBinary = "ffprobe"
	}
	cfg.Format = strings.ToLower(strings.TrimSpace(cfg.Format))
	if cfg.Format == "" {
		cfg.Format = FormatWAV
	}
	if runner == nil {
		runner = services.ExecRunner{}
	}
	return &Client{cfg: cfg, runner: runner}
}

// Extension returns the file extension of extracted audio.
func (c *Client) Extension() string {
	return "." + c.cfg.Format
}

type probeOutput struct {
	Streams []struct {
		Index     int    `json:"index"`
		CodecType string `json:"codec_type"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe counts audio streams and reads the container duration.
func (c *Client) Probe(ctx context.Context, path string) (Probe, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "stream=index,codec_type:format=duration",
		"-of", "json",
		path,
	}
	result, err := c.runner.Run(ctx, c.cfg.FFprobeBinary, args...)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Probe{}, err
		}
		return Probe{}, services.Wrap(services.ErrExternalTool, stageName, "ffprobe", "probe media", err)
	}
	var out probeOutput
	if err := json.Unmarshal([]byte(result.Stdout), &out); err != nil {
		return Probe{}, services.Wrap(services.ErrExternalTool, stageName, "ffprobe", "decode ffprobe json", err)
	}
	var probe Probe
	for _, stream := range out.Streams {
		if stream.CodecType == "audio" {
			probe.AudioStreams++
		}
	}
	if d, err := strconv.ParseFloat(strings.TrimSpace(out.Format.Duration), 64); err == nil {
		probe.DurationSeconds = d
	}
	return probe, nil
}

// ExtractAudio writes the first audio stream of src to dst. Media without an
// audio stream is rejected as a validation error.
func (c *Client) ExtractAudio(ctx context.Context, src, dst string) error {
	probe, err := c.Probe(ctx, src)
	if err != nil {
		return err
	}
	if probe.AudioStreams == 0 {
		return services.Wrap(services.ErrValidation, stageName, "extract audio", "media has no audio stream", nil)
	}
	args := buildExtractArgs(src, dst, c.cfg.Format)
	if _, err := c.runner.Run(ctx, c.cfg.FFmpegBinary, args...); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return services.Wrap(services.ErrExternalTool, stageName, "extract audio", "ffmpeg conversion failed", err)
	}
	info, err := os.Stat(dst)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, stageName, "extract audio", "ffmpeg completed but output is missing", err)
	}
	if info.Size() == 0 {
		return services.Wrap(services.ErrValidation, stageName, "extract audio", "extracted audio is empty", nil)
	}
	return nil
}

// Version returns the first line of `ffmpeg -version`.
func (c *Client) Version(ctx context.Context) (string, error) {
	result, err := c.runner.Run(ctx, c.cfg.FFmpegBinary, "-version")
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(strings.TrimSpace(result.Stdout), "\n")
	return strings.TrimSpace(line), nil
}

func buildExtractArgs(src, dst, format string) []string {
	args := []string{"-hide_banner", "-nostdin", "-y", "-i", src, "-vn", "-map", "0:a:0"}
	switch format {
	case FormatMP3:
		args = append(args, "-ac", "1", "-ar", "44100", "-b:a", "128k", "-f", "mp3")
	default:
		// whisper.cpp expects 16 kHz mono PCM.
		args = append(args, "-ac", "1", "-ar", "16000", "-c:a", "pcm_s16le")
	}
	return append(args, dst)
}

// ValidateFormat reports whether format is supported.
func ValidateFormat(format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatWAV, FormatMP3:
		return nil
	default:
		return fmt.Errorf("unsupported audio format %q", format)
	}
}
