package instagram

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

	"nator/internal/providers"
	"nator/internal/services"
)

func newTestPublisher(t *testing.T, handler http.Handler) *Publisher {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	p, err := New(Config{
		AccessToken:  "token",
		UserID:       "1784",
		BaseURL:      server.URL + "/v21.0",
		PollInterval: 10 * time.Millisecond,
		PollTimeout:  500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p
}

func TestCreateContainerPostsReel(t *testing.T) {
	p := newTestPublisher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v21.0/1784/media" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer token" {
			t.Errorf("missing bearer token")
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["media_type"] != "REELS" || body["video_url"] != "https://cdn/x.mp4" || body["caption"] != "hello #tag" {
			t.Errorf("unexpected body %v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "container-9"})
	}))

	id, err := p.CreateContainer(context.Background(), providers.ContainerRequest{VideoURL: "https://cdn/x.mp4", Caption: "hello #tag"})
	if err != nil {
		t.Fatalf("CreateContainer failed: %v", err)
	}
	if id != "container-9" {
		t.Fatalf("unexpected container id %q", id)
	}
}

func TestCreateContainerSurfacesGraphError(t *testing.T) {
	p := newTestPublisher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid OAuth access token","code":190}}`))
	}))

	_, err := p.CreateContainer(context.Background(), providers.ContainerRequest{VideoURL: "u"})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if got := err.Error(); !strings.Contains(got, "Invalid OAuth access token") {
		t.Fatalf("expected graph message in %q", got)
	}
}

func TestPublishContainerPollsUntilFinished(t *testing.T) {
	var polls atomic.Int32
	p := newTestPublisher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v21.0/container-9":
			if r.URL.Query().Get("fields") != "status_code,status" {
				t.Errorf("unexpected fields %q", r.URL.Query().Get("fields"))
			}
			status := "IN_PROGRESS"
			if polls.Add(1) >= 3 {
				status = "FINISHED"
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"status_code": status})
		case r.Method == http.MethodPost && r.URL.Path == "/v21.0/1784/media_publish":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["creation_id"] != "container-9" {
				t.Errorf("unexpected creation id %v", body)
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "media-77"})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
		}
	}))

	mediaID, err := p.PublishContainer(context.Background(), "container-9")
	if err != nil {
		t.Fatalf("PublishContainer failed: %v", err)
	}
	if mediaID != "media-77" {
		t.Fatalf("unexpected media id %q", mediaID)
	}
	if polls.Load() != 3 {
		t.Fatalf("expected 3 polls, got %d", polls.Load())
	}
}

func TestPublishContainerProcessingError(t *testing.T) {
	p := newTestPublisher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			t.Errorf("publish must not be attempted after ERROR")
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status_code": "ERROR", "status": "Error: video too long"})
	}))

	_, err := p.PublishContainer(context.Background(), "c1")
	if !errors.Is(err, services.ErrExternalTool) || !strings.Contains(err.Error(), "video too long") {
		t.Fatalf("expected processing failure, got %v", err)
	}
}

func TestPublishContainerTimesOut(t *testing.T) {
	p := newTestPublisher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status_code": "IN_PROGRESS"})
	}))

	start := time.Now()
	_, err := p.PublishContainer(context.Background(), "c1")
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("poll was not bounded: %s", elapsed)
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	if _, err := New(Config{UserID: "1"}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestHealthCheckReportsUsername(t *testing.T) {
	p := newTestPublisher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "1784", "username": "nator.daily"})
	}))
	health := p.HealthCheck(context.Background())
	if !health.Ready || health.Detail != "connected as @nator.daily" {
		t.Fatalf("unexpected health %+v", health)
	}
}
