package stageexec

import (
	"context"

	"recap/internal/artifacts"
	"recap/internal/queue"
	"recap/internal/services"
	"recap/internal/services/ffmpeg"
	"recap/internal/stage"
)

// Extractor pulls the audio track out of acquired media.
type Extractor struct {
	client *ffmpeg.Client
	store  *artifacts.Store
}

// NewExtractor builds the ffmpeg extract backend.
func NewExtractor(client *ffmpeg.Client, store *artifacts.Store) *Extractor {
	return &Extractor{client: client, store: store}
}

// Run writes <key>/audio.<ext>.
func (e *Extractor) Run(ctx context.Context, in stage.Input) (stage.Output, error) {
	media, err := requireArtifact(in, queue.ArtifactMedia, stage.KindExtract)
	if err != nil {
		return stage.Output{}, err
	}
	dst, err := e.store.Path(in.ContentKey, "audio"+e.client.Extension())
	if err != nil {
		return stage.Output{}, services.Wrap(services.ErrValidation, string(stage.KindExtract), "audio path", "", err)
	}
	if err := e.client.ExtractAudio(ctx, media, dst); err != nil {
		return stage.Output{}, err
	}
	return stage.Output{Artifacts: queue.Artifacts{queue.ArtifactAudio: dst}}, nil
}

// HealthCheck reports the ffmpeg version.
func (e *Extractor) HealthCheck(ctx context.Context) stage.Health {
	name := string(stage.KindExtract) + ":" + BackendFFmpeg
	version, err := e.client.Version(ctx)
	if err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	return stage.Health{Name: name, Ready: true, Detail: version}
}

// requireArtifact returns the path of a prior stage's artifact, which must
// still exist on disk.
func requireArtifact(in stage.Input, name string, kind stage.Kind) (string, error) {
	path := in.Artifacts[name]
	if path == "" {
		return "", services.Wrap(services.ErrValidation, string(kind), "load input", name+" artifact is missing", nil)
	}
	if !artifacts.Exists(path) {
		return "", services.Wrap(services.ErrNotFound, string(kind), "load input", name+" artifact not found at "+path, nil)
	}
	return path, nil
}
