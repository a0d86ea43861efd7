package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"recap/internal/config"
	"recap/internal/queue"
)

const userAgent = "recap/0.1"

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
	click    string
}

// Ntfy posts job outcomes to an ntfy topic URL.
type Ntfy struct {
	endpoint  string
	client    *http.Client
	completed bool
	failed    bool
}

// NewNtfy builds an ntfy publisher. It returns nil when no topic is set.
func NewNtfy(cfg config.Notifications) *Ntfy {
	topic := strings.TrimSpace(cfg.NtfyTopic)
	if topic == "" {
		return nil
	}
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Ntfy{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		completed: cfg.Completed,
		failed:    cfg.Failed,
	}
}

// Publish notifies about a terminal job. Other stages are ignored.
func (n *Ntfy) Publish(ctx context.Context, job *queue.Job) error {
	if n == nil || job == nil {
		return nil
	}
	switch job.Stage {
	case queue.StageCompleted:
		if !n.completed {
			return nil
		}
		return n.send(ctx, completedPayload(job))
	case queue.StageFailed:
		if !n.failed {
			return nil
		}
		return n.send(ctx, failedPayload(job))
	default:
		return nil
	}
}

// Test sends a low priority test message.
func (n *Ntfy) Test(ctx context.Context) error {
	if n == nil {
		return fmt.Errorf("ntfy topic not configured")
	}
	return n.send(ctx, payload{
		title:    "Recap - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"recap", "test"},
		priority: "low",
	})
}

func completedPayload(job *queue.Job) payload {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Summary ready: %s", strings.TrimSpace(job.Title()))
	if author := strings.TrimSpace(job.Metadata.Uploader); author != "" {
		fmt.Fprintf(&b, "\nBy: %s", author)
	}
	if path := job.Artifacts[queue.ArtifactSummary]; path != "" {
		fmt.Fprintf(&b, "\nSummary: %s", path)
	}
	return payload{
		title:   "Recap - Summary Ready",
		message: b.String(),
		tags:    []string{"recap", "summary", "completed"},
		click:   job.SourceRef,
	}
}

func failedPayload(job *queue.Job) payload {
	reason := strings.TrimSpace(job.Error)
	if reason == "" {
		reason = "unknown"
	}
	return payload{
		title:    "Recap - Failed",
		message:  fmt.Sprintf("❌ Job %d failed: %s\n%s", job.ID, strings.TrimSpace(job.Title()), reason),
		tags:     []string{"recap", "error", "alert"},
		priority: "high",
		click:    job.SourceRef,
	}
}

func (n *Ntfy) send(ctx context.Context, data payload) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}
	if data.click != "" {
		req.Header.Set("Click", data.click)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
