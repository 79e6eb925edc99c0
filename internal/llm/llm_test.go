package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fakeProvider mimics an OpenAI-compatible completions endpoint.
func fakeProvider(t *testing.T, reply string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		if status != http.StatusOK {
			http.Error(w, "upstream unhappy", status)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": reply}},
			},
		})
	}))
}

func TestComplete(t *testing.T) {
	srv := fakeProvider(t, "hello from the model", http.StatusOK)
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", "gpt-4o")
	got, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, 64)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != "hello from the model" {
		t.Errorf("unexpected reply %q", got)
	}
}

func TestCompleteUpstreamError(t *testing.T) {
	srv := fakeProvider(t, "", http.StatusTooManyRequests)
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", "gpt-4o")
	_, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, 64)
	if err == nil {
		t.Fatal("expected error on 429")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error should carry the status code, got %v", err)
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("empty string should be 0 tokens, got %d", got)
	}
	short := EstimateTokens("hello")
	long := EstimateTokens(strings.Repeat("hello world ", 100))
	if short <= 0 || long <= short {
		t.Errorf("token estimates not monotonic: short=%d long=%d", short, long)
	}
}

func TestTrimToBudgetKeepsSystemPrompt(t *testing.T) {
	messages := []Message{
		{Role: "system", Content: "You are terse."},
		{Role: "user", Content: strings.Repeat("old context ", 500)},
		{Role: "assistant", Content: strings.Repeat("old reply ", 500)},
		{Role: "user", Content: "the actual question"},
	}

	trimmed := TrimToBudget(messages, 100)
	if len(trimmed) >= len(messages) {
		t.Fatalf("expected trimming, kept %d of %d", len(trimmed), len(messages))
	}
	if trimmed[0].Role != "system" {
		t.Errorf("system prompt must survive trimming, got role %q", trimmed[0].Role)
	}
	last := trimmed[len(trimmed)-1]
	if last.Content != "the actual question" {
		t.Errorf("latest message must survive trimming, got %q", last.Content)
	}
}

func TestTrimToBudgetNoopWhenUnderBudget(t *testing.T) {
	messages := []Message{{Role: "user", Content: "short"}}
	trimmed := TrimToBudget(messages, 10000)
	if len(trimmed) != 1 {
		t.Errorf("under-budget conversation must be untouched")
	}
}
