package notifications

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"recap/internal/artifacts"
	"recap/internal/config"
	"recap/internal/queue"
	"recap/internal/textutil"
)

const (
	titlePartLimit  = 30
	authorPartLimit = 20
	keyPartLimit    = 10
)

// Notes writes one markdown note per completed job.
type Notes struct {
	dir  string
	tags []string
	now  func() time.Time
}

// NewNotes builds a notes exporter writing into cfg.Dir.
func NewNotes(cfg config.Notes) (*Notes, error) {
	dir := strings.TrimSpace(cfg.Dir)
	if dir == "" {
		return nil, errors.New("notes.dir is required for the notes publisher")
	}
	return &Notes{dir: dir, tags: cfg.Tags, now: time.Now}, nil
}

// Publish exports completed jobs; failed jobs produce no note.
func (n *Notes) Publish(_ context.Context, job *queue.Job) error {
	if job == nil || job.Stage != queue.StageCompleted {
		return nil
	}
	_, err := n.Export(job)
	return err
}

// Export writes the note for job and returns its path.
func (n *Notes) Export(job *queue.Job) (string, error) {
	summaryPath := job.Artifacts[queue.ArtifactSummary]
	if summaryPath == "" {
		return "", fmt.Errorf("job %d has no summary artifact", job.ID)
	}
	summary, err := artifacts.ReadText(summaryPath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(n.dir, 0o755); err != nil {
		return "", fmt.Errorf("create notes dir: %w", err)
	}
	now := n.now()
	path := filepath.Join(n.dir, noteFilename(job, now))
	if err := os.WriteFile(path, []byte(n.render(job, summary, now)), 0o644); err != nil {
		return "", fmt.Errorf("write note: %w", err)
	}
	return path, nil
}

func (n *Notes) render(job *queue.Job, summary string, now time.Time) string {
	title := strings.TrimSpace(job.Title())
	platform := platformName(job.Metadata.Platform)
	author := strings.TrimSpace(job.Metadata.Uploader)

	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "title: %s\n", strconv.Quote(textutil.Truncate(title, 80)))
	fmt.Fprintf(&b, "date: %s\n", now.Format("2006-01-02"))
	fmt.Fprintf(&b, "time: %s\n", now.Format("15:04:05"))
	if platform != "" {
		fmt.Fprintf(&b, "platform: %s\n", strconv.Quote(platform))
	}
	if author != "" {
		fmt.Fprintf(&b, "author: %s\n", strconv.Quote(author))
	}
	fmt.Fprintf(&b, "source: %s\n", strconv.Quote(job.SourceRef))
	if job.ContentKey != "" {
		fmt.Fprintf(&b, "content_key: %s\n", strconv.Quote(job.ContentKey))
	}
	if len(n.tags) > 0 {
		b.WriteString("tags:\n")
		for _, tag := range n.tags {
			fmt.Fprintf(&b, "  - %s\n", strconv.Quote(tag))
		}
	}
	b.WriteString("---\n\n")

	fmt.Fprintf(&b, "# %s\n\n", title)
	b.WriteString("## Video\n\n")
	if platform != "" {
		fmt.Fprintf(&b, "- **Platform**: %s\n", platform)
	}
	if author != "" {
		fmt.Fprintf(&b, "- **Author**: %s\n", author)
	}
	if d := job.Metadata.DurationSeconds; d > 0 {
		fmt.Fprintf(&b, "- **Duration**: %s\n", (time.Duration(d) * time.Second).String())
	}
	fmt.Fprintf(&b, "- **Link**: <%s>\n", job.SourceRef)
	fmt.Fprintf(&b, "- **Summarized**: %s\n\n", now.Format("2006-01-02 15:04:05"))
	b.WriteString("## Summary\n\n")
	b.WriteString(strings.TrimSpace(summary))
	b.WriteString("\n")
	return b.String()
}

// noteFilename builds "<date>_<author>_<title>_<key>.md" from sanitized parts.
func noteFilename(job *queue.Job, now time.Time) string {
	parts := []string{now.Format("2006-01-02")}
	if author := textutil.SanitizeFileName(job.Metadata.Uploader, authorPartLimit); author != "" {
		parts = append(parts, author)
	}
	title := textutil.SanitizeFileName(job.Metadata.Title, titlePartLimit)
	if title == "" {
		title = fmt.Sprintf("job-%d", job.ID)
	}
	parts = append(parts, title)
	if key := artifacts.SanitizeKey(job.ContentKey); key != "" {
		parts = append(parts, textutil.Truncate(key, keyPartLimit))
	}
	return strings.Join(parts, "_") + ".md"
}

// platformName turns an extractor key such as "youtube" into "Youtube".
func platformName(platform string) string {
	platform = strings.TrimSpace(platform)
	if platform == "" {
		return ""
	}
	return cases.Title(language.English).String(platform)
}
