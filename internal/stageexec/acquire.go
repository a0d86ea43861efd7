package stageexec

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"recap/internal/artifacts"
	"recap/internal/logging"
	"recap/internal/queue"
	"recap/internal/services"
	"recap/internal/services/ytdlp"
	"recap/internal/stage"
)

const mediaBaseName = "media"

// Acquirer resolves a source reference with yt-dlp and stores the media.
type Acquirer struct {
	client *ytdlp.Client
	store  *artifacts.Store
	logger *zap.Logger
}

// NewAcquirer builds the ytdlp acquire backend.
func NewAcquirer(client *ytdlp.Client, store *artifacts.Store, logger *zap.Logger) *Acquirer {
	return &Acquirer{client: client, store: store, logger: logger}
}

// Run probes the source to learn its content key, then downloads it unless
// media for that key is already on disk.
func (a *Acquirer) Run(ctx context.Context, in stage.Input) (stage.Output, error) {
	info, err := a.client.Probe(ctx, in.SourceRef)
	if err != nil {
		return stage.Output{}, err
	}
	key := info.ContentKey()
	meta := &queue.Metadata{
		Title:           strings.TrimSpace(info.Title),
		Uploader:        info.Author(),
		Platform:        strings.ToLower(strings.TrimSpace(info.Extractor)),
		DurationSeconds: int(math.Round(info.Duration)),
		Description:     strings.TrimSpace(info.Description),
	}
	out := stage.Output{ContentKey: key, Metadata: meta}

	if existing := a.existingMedia(key); existing != "" {
		logging.WithContext(ctx, a.logger).Info("reusing stored media",
			logging.String(logging.FieldContentKey, key),
			logging.String("path", existing),
			logging.String(logging.FieldEventType, "media_reused"),
		)
		out.Artifacts = queue.Artifacts{queue.ArtifactMedia: existing}
		return out, nil
	}

	work, err := a.store.WorkDir(in.JobID)
	if err != nil {
		return stage.Output{}, err
	}
	defer func() { _ = a.store.RemoveWorkDir(in.JobID) }()

	downloaded, err := a.client.Download(ctx, in.SourceRef, work)
	if err != nil {
		return stage.Output{}, err
	}
	path, err := a.store.Promote(downloaded, key, mediaBaseName+filepath.Ext(downloaded))
	if err != nil {
		return stage.Output{}, services.Wrap(services.ErrTransient, string(stage.KindAcquire), "store media", "promote download", err)
	}
	out.Artifacts = queue.Artifacts{queue.ArtifactMedia: path}
	return out, nil
}

func (a *Acquirer) existingMedia(key string) string {
	dir, err := a.store.Dir(key)
	if err != nil {
		return ""
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.Type().IsRegular() && strings.HasPrefix(name, mediaBaseName+".") {
			return filepath.Join(dir, name)
		}
	}
	return ""
}

// HealthCheck reports whether yt-dlp answers --version.
func (a *Acquirer) HealthCheck(ctx context.Context) stage.Health {
	name := string(stage.KindAcquire) + ":" + BackendYtDlp
	version, err := a.client.Version(ctx)
	if err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	return stage.Health{Name: name, Ready: true, Detail: version}
}
