package notifications

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"regexp"
	"strconv"
	"strings"
	"time"

	"recap/internal/artifacts"
	"recap/internal/config"
	"recap/internal/queue"
	"recap/internal/textutil"
)

const subjectTitleLimit = 50

var boldPattern = regexp.MustCompile(`\*\*(.+?)\*\*`)

// Email mails the summary of every completed job to a fixed recipient list.
type Email struct {
	host        string
	port        int
	username    string
	password    string
	from        mail.Address
	to          []string
	implicitTLS bool
	timeout     time.Duration
	now         func() time.Time
	deliver     func(ctx context.Context, msg []byte) error
}

// NewEmail builds an SMTP publisher. It returns nil when no host or no
// recipient is configured.
func NewEmail(cfg config.Email) *Email {
	host := strings.TrimSpace(cfg.SMTPHost)
	if host == "" || len(cfg.To) == 0 {
		return nil
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	e := &Email{
		host:        host,
		port:        cfg.SMTPPort,
		username:    cfg.Username,
		password:    cfg.Password,
		from:        mail.Address{Name: cfg.FromName, Address: cfg.From},
		to:          append([]string(nil), cfg.To...),
		implicitTLS: cfg.ImplicitTLS,
		timeout:     timeout,
		now:         time.Now,
	}
	e.deliver = e.send
	return e
}

// Publish mails completed jobs; other stages are ignored.
func (e *Email) Publish(ctx context.Context, job *queue.Job) error {
	if e == nil || job == nil || job.Stage != queue.StageCompleted {
		return nil
	}
	summaryPath := job.Artifacts[queue.ArtifactSummary]
	if summaryPath == "" {
		return fmt.Errorf("job %d has no summary artifact", job.ID)
	}
	summary, err := artifacts.ReadText(summaryPath)
	if err != nil {
		return err
	}
	msg, err := e.compose(job, summary)
	if err != nil {
		return err
	}
	return e.deliver(ctx, msg)
}

// compose renders a multipart message: an HTML body with the video details
// and summary, plus the markdown summary as an attachment.
func (e *Email) compose(job *queue.Job, summary string) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	htmlPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/html; charset=utf-8"},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return nil, err
	}
	if err := writeQuotedPrintable(htmlPart, renderEmailHTML(job, summary)); err != nil {
		return nil, err
	}

	attachment, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/markdown; charset=utf-8"},
		"Content-Transfer-Encoding": {"quoted-printable"},
		"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": attachmentName(job)})},
	})
	if err != nil {
		return nil, err
	}
	if err := writeQuotedPrintable(attachment, summary); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var msg bytes.Buffer
	title := textutil.Truncate(strings.TrimSpace(job.Title()), subjectTitleLimit)
	fmt.Fprintf(&msg, "From: %s\r\n", e.from.String())
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(e.to, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", "Summary ready - "+title))
	fmt.Fprintf(&msg, "Date: %s\r\n", e.now().Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mw.Boundary())
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

func writeQuotedPrintable(w io.Writer, text string) error {
	qp := quotedprintable.NewWriter(w)
	if _, err := qp.Write([]byte(text)); err != nil {
		return err
	}
	return qp.Close()
}

func attachmentName(job *queue.Job) string {
	if key := artifacts.SanitizeKey(job.ContentKey); key != "" {
		return "summary_" + key + ".md"
	}
	return fmt.Sprintf("summary_job-%d.md", job.ID)
}

func renderEmailHTML(job *queue.Job, summary string) string {
	var b strings.Builder
	b.WriteString("<h2>Summary ready</h2>\n<h3>Video</h3>\n<ul>\n")
	if platform := platformName(job.Metadata.Platform); platform != "" {
		fmt.Fprintf(&b, "<li><strong>Platform:</strong> %s</li>\n", html.EscapeString(platform))
	}
	fmt.Fprintf(&b, "<li><strong>Title:</strong> %s</li>\n", html.EscapeString(strings.TrimSpace(job.Title())))
	if author := strings.TrimSpace(job.Metadata.Uploader); author != "" {
		fmt.Fprintf(&b, "<li><strong>Author:</strong> %s</li>\n", html.EscapeString(author))
	}
	if d := job.Metadata.DurationSeconds; d > 0 {
		fmt.Fprintf(&b, "<li><strong>Duration:</strong> %s</li>\n", (time.Duration(d) * time.Second).String())
	}
	link := html.EscapeString(job.SourceRef)
	fmt.Fprintf(&b, "<li><strong>Link:</strong> <a href=\"%s\">%s</a></li>\n</ul>\n", link, link)
	b.WriteString("<h3>Summary</h3>\n<div style=\"background-color: #f5f5f5; padding: 15px; line-height: 1.6;\">\n")
	b.WriteString(markdownToHTML(summary))
	b.WriteString("\n</div>\n<hr>\n<p style=\"color: #999; font-size: 12px;\">Sent by recap</p>\n")
	return b.String()
}

// markdownToHTML covers the subset summaries use: headings, bullet lists,
// fenced code, bold and paragraphs. Everything else is escaped text.
func markdownToHTML(text string) string {
	var (
		out    []string
		inList bool
		inCode bool
	)
	closeList := func() {
		if inList {
			out = append(out, "</ul>")
			inList = false
		}
	}
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			closeList()
			if inCode {
				out = append(out, "</code></pre>")
			} else {
				out = append(out, "<pre><code>")
			}
			inCode = !inCode
			continue
		}
		if inCode {
			out = append(out, html.EscapeString(line))
			continue
		}
		if level, heading := headingLevel(trimmed); level > 0 {
			closeList()
			out = append(out, fmt.Sprintf("<h%d>%s</h%d>", level, inline(heading), level))
			continue
		}
		if strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") {
			if !inList {
				out = append(out, "<ul>")
				inList = true
			}
			out = append(out, "<li>"+inline(trimmed[2:])+"</li>")
			continue
		}
		closeList()
		if trimmed == "" {
			continue
		}
		out = append(out, "<p>"+inline(trimmed)+"</p>")
	}
	closeList()
	if inCode {
		out = append(out, "</code></pre>")
	}
	return strings.Join(out, "\n")
}

func headingLevel(line string) (int, string) {
	level := 0
	for level < len(line) && level < 6 && line[level] == '#' {
		level++
	}
	if level == 0 || level >= len(line) || line[level] != ' ' {
		return 0, ""
	}
	return level, strings.TrimSpace(line[level:])
}

func inline(text string) string {
	return boldPattern.ReplaceAllString(html.EscapeString(text), "<strong>$1</strong>")
}

// send delivers msg over SMTP. Implicit TLS dials straight into TLS;
// otherwise the session upgrades with STARTTLS when the server offers it.
func (e *Email) send(ctx context.Context, msg []byte) error {
	addr := net.JoinHostPort(e.host, strconv.Itoa(e.port))
	dialer := &net.Dialer{Timeout: e.timeout}
	tlsConfig := &tls.Config{ServerName: e.host, MinVersion: tls.VersionTLS12}

	var (
		conn net.Conn
		err  error
	)
	if e.implicitTLS {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("connect smtp %s: %w", addr, err)
	}
	deadline := time.Now().Add(e.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	client, err := smtp.NewClient(conn, e.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if !e.implicitTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("smtp starttls: %w", err)
			}
		}
	}
	if e.username != "" {
		if ok, _ := client.Extension("AUTH"); !ok {
			return errors.New("smtp server does not offer AUTH")
		}
		if err := client.Auth(smtp.PlainAuth("", e.username, e.password, e.host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(e.from.Address); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, rcpt := range e.to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", rcpt, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data end: %w", err)
	}
	return client.Quit()
}
