package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"nator/internal/services"
)

func completionHandler(t *testing.T, contents ...string) (http.Handler, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		idx := int(calls.Add(1)) - 1
		if idx >= len(contents) {
			idx = len(contents) - 1
		}
		payload := map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini",
			"choices": []any{
				map[string]any{
					"index":         0,
					"finish_reason": "stop",
					"message": map[string]any{
						"role":    "assistant",
						"content": contents[idx],
					},
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}), &calls
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	client, err := NewClient(Config{APIKey: "test-key", BaseURL: url}, WithMaxRetries(0))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func TestGenerateReturnsScript(t *testing.T) {
	handler, calls := completionHandler(t, `{"text":"Start with the hardest task.","hashtags":["#focus","#habits"]}`)
	server := httptest.NewServer(handler)
	defer server.Close()

	script, err := newTestClient(t, server.URL).Generate(context.Background(), "/clips/morning_routine.mp4")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if script.Text != "Start with the hardest task." {
		t.Fatalf("unexpected text %q", script.Text)
	}
	if len(script.Hashtags) != 2 || script.Hashtags[0] != "#focus" {
		t.Fatalf("unexpected hashtags %v", script.Hashtags)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one request, got %d", calls.Load())
	}
}

func TestGenerateRetriesInvalidPayloadOnce(t *testing.T) {
	handler, calls := completionHandler(t,
		`{"text":"","hashtags":"nope"}`,
		"```json\n{\"text\":\"Second try.\",\"hashtags\":[]}\n```",
	)
	server := httptest.NewServer(handler)
	defer server.Close()

	script, err := newTestClient(t, server.URL).Generate(context.Background(), "")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if script.Text != "Second try." {
		t.Fatalf("unexpected text %q", script.Text)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected two requests, got %d", calls.Load())
	}
}

func TestGenerateGivesUpOnRepeatedInvalidPayload(t *testing.T) {
	handler, _ := completionHandler(t, `{"hashtags":["no spaces allowed here"]}`)
	server := httptest.NewServer(handler)
	defer server.Close()

	_, err := newTestClient(t, server.URL).Generate(context.Background(), "")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGenerateUnauthorizedIsConfigurationError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).Generate(context.Background(), "")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient(Config{}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	handler, _ := completionHandler(t, `{"ok":true}`)
	server := httptest.NewServer(handler)
	defer server.Close()

	health := newTestClient(t, server.URL).HealthCheck(context.Background())
	if !health.Ready {
		t.Fatalf("expected healthy, got %+v", health)
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: `{"a":1}`, want: `{"a":1}`},
		{in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{in: "  ```\n{\"a\":1}```  ", want: `{"a":1}`},
	}
	for _, tc := range tests {
		if got := stripCodeFence(tc.in); got != tc.want {
			t.Errorf("stripCodeFence(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
