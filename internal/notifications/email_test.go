package notifications

import (
	"bufio"
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"net/textproto"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"recap/internal/config"
	"recap/internal/queue"
	"recap/internal/testsupport"
)

type smtpSession struct {
	from  string
	rcpts []string
	data  string
}

// newSMTPServer accepts one plain SMTP session on loopback and records the
// envelope and message it receives.
func newSMTPServer(t *testing.T) (string, int, func() smtpSession) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	var (
		mu      sync.Mutex
		session smtpSession
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
		r := textproto.NewReader(bufio.NewReader(conn))
		reply := func(line string) { _, _ = io.WriteString(conn, line+"\r\n") }

		reply("220 localhost ESMTP")
		for {
			line, err := r.ReadLine()
			if err != nil {
				return
			}
			verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
			switch {
			case verb == "EHLO" || verb == "HELO":
				reply("250 localhost")
			case strings.HasPrefix(strings.ToUpper(line), "MAIL FROM:"):
				mu.Lock()
				session.from = strings.Trim(line[len("MAIL FROM:"):], "<> ")
				mu.Unlock()
				reply("250 OK")
			case strings.HasPrefix(strings.ToUpper(line), "RCPT TO:"):
				mu.Lock()
				session.rcpts = append(session.rcpts, strings.Trim(line[len("RCPT TO:"):], "<> "))
				mu.Unlock()
				reply("250 OK")
			case verb == "DATA":
				reply("354 End data with <CR><LF>.<CR><LF>")
				lines, err := r.ReadDotLines()
				if err != nil {
					return
				}
				mu.Lock()
				session.data = strings.Join(lines, "\r\n")
				mu.Unlock()
				reply("250 OK")
			case verb == "QUIT":
				reply("221 Bye")
				return
			default:
				reply("502 Command not implemented")
			}
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port, func() smtpSession {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("smtp session did not finish")
		}
		mu.Lock()
		defer mu.Unlock()
		return session
	}
}

func TestNewEmailWithoutHostIsNil(t *testing.T) {
	if NewEmail(config.Email{To: []string{"me@example.com"}}) != nil {
		t.Fatal("expected nil publisher without smtp host")
	}
	if NewEmail(config.Email{SMTPHost: "smtp.example.com"}) != nil {
		t.Fatal("expected nil publisher without recipients")
	}
}

func TestEmailPublishSendsSummary(t *testing.T) {
	host, port, session := newSMTPServer(t)
	dir := t.TempDir()
	summaryPath := filepath.Join(dir, "summary.md")
	summary := "## Key points\n\n- Point **one**\n- Point two\n\nUse `<-done` to wait.\n"
	testsupport.WriteFile(t, summaryPath, summary)

	email := NewEmail(config.Email{
		SMTPHost:       host,
		SMTPPort:       port,
		From:           "recap@example.com",
		FromName:       "recap",
		To:             []string{"me@example.com", "team@example.com"},
		TimeoutSeconds: 5,
	})
	if email == nil {
		t.Fatal("expected configured publisher")
	}
	email.now = func() time.Time { return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC) }

	if err := email.Publish(context.Background(), completedJob(summaryPath)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	got := session()
	if got.from != "recap@example.com" {
		t.Fatalf("unexpected envelope sender %q", got.from)
	}
	if strings.Join(got.rcpts, ",") != "me@example.com,team@example.com" {
		t.Fatalf("unexpected recipients %v", got.rcpts)
	}

	msg, err := mail.ReadMessage(strings.NewReader(got.data))
	if err != nil {
		t.Fatalf("parse message: %v", err)
	}
	subject, err := new(mime.WordDecoder).DecodeHeader(msg.Header.Get("Subject"))
	if err != nil {
		t.Fatalf("decode subject: %v", err)
	}
	if subject != "Summary ready - Go Concurrency: Patterns/Pitfalls?" {
		t.Fatalf("unexpected subject %q", subject)
	}
	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/mixed" {
		t.Fatalf("unexpected content type %q: %v", msg.Header.Get("Content-Type"), err)
	}

	parts := multipart.NewReader(msg.Body, params["boundary"])
	htmlPart, err := parts.NextPart()
	if err != nil {
		t.Fatalf("html part: %v", err)
	}
	body, _ := io.ReadAll(htmlPart)
	for _, want := range []string{
		"<strong>Platform:</strong> Youtube",
		"<strong>Author:</strong> Gopher Talks",
		"<strong>Duration:</strong> 12m34s",
		`<a href="https://www.youtube.com/watch?v=abc123">`,
		"<h2>Key points</h2>",
		"<li>Point <strong>one</strong></li>",
		"<p>Use `&lt;-done` to wait.</p>",
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("html body missing %q:\n%s", want, body)
		}
	}

	attachment, err := parts.NextPart()
	if err != nil {
		t.Fatalf("attachment part: %v", err)
	}
	if attachment.FileName() != "summary_youtube_abc123.md" {
		t.Fatalf("unexpected attachment name %q", attachment.FileName())
	}
	raw, _ := io.ReadAll(attachment)
	if strings.TrimSpace(strings.ReplaceAll(string(raw), "\r\n", "\n")) != strings.TrimSpace(summary) {
		t.Fatalf("attachment differs from summary:\n%s", raw)
	}
}

func TestEmailSkipsUnfinishedJobs(t *testing.T) {
	email := NewEmail(config.Email{SMTPHost: "smtp.example.com", SMTPPort: 587, From: "a@example.com", To: []string{"b@example.com"}})
	email.deliver = func(context.Context, []byte) error {
		t.Fatal("nothing should be sent for a failed job")
		return nil
	}
	job := completedJob("/missing/summary.md")
	job.Stage = queue.StageFailed
	if err := email.Publish(context.Background(), job); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

func TestEmailReportsConnectionFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	summaryPath := filepath.Join(t.TempDir(), "summary.md")
	testsupport.WriteFile(t, summaryPath, "- Point\n")
	email := NewEmail(config.Email{
		SMTPHost:       "127.0.0.1",
		SMTPPort:       port,
		From:           "a@example.com",
		To:             []string{"b@example.com"},
		TimeoutSeconds: 1,
	})
	err = email.Publish(context.Background(), completedJob(summaryPath))
	if err == nil || !strings.Contains(err.Error(), "connect smtp 127.0.0.1:"+strconv.Itoa(port)) {
		t.Fatalf("expected connect error, got %v", err)
	}
}

func TestMarkdownToHTMLEscapesCode(t *testing.T) {
	got := markdownToHTML("# Title\n```\nif a < b {}\n```\n- x\ntext")
	want := "<h1>Title</h1>\n<pre><code>\nif a &lt; b {}\n</code></pre>\n<ul>\n<li>x</li>\n</ul>\n<p>text</p>"
	if got != want {
		t.Fatalf("markdownToHTML =\n%s\nwant\n%s", got, want)
	}
}
