package stageexec

import (
	"context"
	"strings"

	"golang.org/x/text/unicode/norm"

	"recap/internal/artifacts"
	"recap/internal/queue"
	"recap/internal/services"
	"recap/internal/services/whisper"
	"recap/internal/stage"
)

const transcriptName = "transcript"

// Transcriber runs whisper.cpp over the extracted audio.
type Transcriber struct {
	client *whisper.Client
	store  *artifacts.Store
}

// NewTranscriber builds the whisper transcribe backend.
func NewTranscriber(client *whisper.Client, store *artifacts.Store) *Transcriber {
	return &Transcriber{client: client, store: store}
}

// Run writes <key>/transcript.txt. A transcript with no words is an error.
func (t *Transcriber) Run(ctx context.Context, in stage.Input) (stage.Output, error) {
	audio, err := requireArtifact(in, queue.ArtifactAudio, stage.KindTranscribe)
	if err != nil {
		return stage.Output{}, err
	}
	base, err := t.store.Path(in.ContentKey, transcriptName)
	if err != nil {
		return stage.Output{}, services.Wrap(services.ErrValidation, string(stage.KindTranscribe), "transcript path", "", err)
	}
	raw, err := t.client.Transcribe(ctx, audio, base)
	if err != nil {
		return stage.Output{}, err
	}
	text := NormalizeText(raw)
	if text == "" {
		return stage.Output{}, services.Wrap(services.ErrValidation, string(stage.KindTranscribe), "transcribe", "transcript is empty", nil)
	}
	path, err := t.store.WriteText(in.ContentKey, transcriptName+".txt", text+"\n")
	if err != nil {
		return stage.Output{}, err
	}
	return stage.Output{Artifacts: queue.Artifacts{queue.ArtifactTranscript: path}}, nil
}

// HealthCheck reports whether the whisper model resolves.
func (t *Transcriber) HealthCheck(context.Context) stage.Health {
	name := string(stage.KindTranscribe) + ":" + BackendWhisper
	if err := t.client.HealthCheck(); err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	return stage.Healthy(name)
}

// NormalizeText composes Unicode to NFC, trims each line, and collapses runs
// of blank lines to one.
func NormalizeText(raw string) string {
	raw = norm.NFC.String(strings.ReplaceAll(raw, "\r\n", "\n"))
	lines := strings.Split(raw, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
