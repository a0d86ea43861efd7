package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"recap/internal/services"
)

func completion(content string) map[string]any {
	return map[string]any{
		"choices": []any{
			map[string]any{
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			},
		},
	}
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestClient(url string, opts ...Option) *Client {
	client := NewClient(Config{APIKey: "test", BaseURL: url, Model: "demo-model"}, opts...)
	client.sleep = noSleep
	return client
}

func TestCompleteSendsMessages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "demo-model" || len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("unexpected request %+v", req)
		}
		_ = json.NewEncoder(w).Encode(completion("  a short summary  "))
	}))
	defer server.Close()

	got, err := newTestClient(server.URL).Complete(context.Background(), "be brief", "transcript text")
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if got != "a short summary" {
		t.Fatalf("unexpected content %q", got)
	}
}

func TestCompleteDeltaAndLegacyShapes(t *testing.T) {
	payloads := []map[string]any{
		{"choices": []any{map[string]any{"delta": map[string]any{"content": "from delta"}}}},
		{"choices": []any{map[string]any{"text": "from text"}}},
	}
	for _, payload := range payloads {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(payload)
		}))
		got, err := newTestClient(server.URL).Complete(context.Background(), "", "hello")
		server.Close()
		if err != nil || !strings.HasPrefix(got, "from ") {
			t.Fatalf("unexpected result %q %v", got, err)
		}
	}
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(completion("ok"))
	}))
	defer server.Close()

	got, err := newTestClient(server.URL).Complete(context.Background(), "", "hello")
	if err != nil || got != "ok" {
		t.Fatalf("unexpected result %q %v", got, err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
}

func TestCompleteExhaustedRetriesIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, WithRetry(2, time.Millisecond, time.Millisecond)).Complete(context.Background(), "", "hello")
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if !services.IsRetryable(err) {
		t.Fatal("transient failure should be retryable")
	}
}

func TestCompleteUnauthorizedIsConfiguration(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Complete(context.Background(), "", "hello")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("401 must not be retried, got %d calls", calls.Load())
	}
}

func TestCompleteEmptyContentIsValidation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(completion(""))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, WithRetry(1, 0, 0)).Complete(context.Background(), "", "hello")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "finish_reason") {
		t.Fatalf("expected finish reason in error, got %v", err)
	}
}

func TestCompleteRequiresKeyAndPrompt(t *testing.T) {
	client := NewClient(Config{})
	if _, err := client.Complete(context.Background(), "", "x"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	client = NewClient(Config{APIKey: "k"})
	if _, err := client.Complete(context.Background(), "", "   "); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if client.Model() != defaultModel {
		t.Fatalf("expected default model, got %q", client.Model())
	}
}

func TestHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(completion("OK"))
	}))
	defer server.Close()
	if err := newTestClient(server.URL).HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestBackoffCaps(t *testing.T) {
	client := NewClient(Config{}, WithRetry(5, time.Second, 5*time.Second))
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := client.backoff(i + 1); got != w {
			t.Fatalf("attempt %d: got %s want %s", i+1, got, w)
		}
	}
}

func TestBuildUserPrompt(t *testing.T) {
	got := BuildUserPrompt("Summarize:\n{text}\nEnd", "Talk", "hello world", 5)
	if got != "Summarize:\nTitle: Talk\n\nhello\nEnd" {
		t.Fatalf("unexpected prompt %q", got)
	}
	got = BuildUserPrompt("Be brief.", "", "text", 0)
	if got != "Be brief.\n\ntext" {
		t.Fatalf("unexpected prompt %q", got)
	}
	if Truncate("héllo", 2) != "hé" {
		t.Fatal("truncate should count runes")
	}
}
