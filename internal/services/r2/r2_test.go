package r2

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"nator/internal/services"
	"nator/internal/testsupport"
)

type recordedPut struct {
	method      string
	path        string
	contentType string
	body        string
}

func newBucketServer(t *testing.T, status int) (*httptest.Server, *[]recordedPut) {
	t.Helper()
	var (
		mu   sync.Mutex
		puts []recordedPut
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		puts = append(puts, recordedPut{
			method:      r.Method,
			path:        r.URL.Path,
			contentType: r.Header.Get("Content-Type"),
			body:        string(body),
		})
		mu.Unlock()
		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(status)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>denied</Message></Error>`)
			return
		}
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server, &puts
}

func testConfig(endpoint string) Config {
	return Config{
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Bucket:          "reels-bucket",
		PublicBaseURL:   "https://cdn.example.com/",
		Endpoint:        endpoint,
	}
}

func TestUploadPutsObjectAndReturnsPublicURL(t *testing.T) {
	server, puts := newBucketServer(t, http.StatusOK)
	video := filepath.Join(t.TempDir(), "my reel.mp4")
	testsupport.WriteFile(t, video, 16)

	uploader, err := New(testConfig(server.URL), WithClock(func() time.Time { return time.UnixMilli(1700000000123) }))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	upload, err := uploader.Upload(context.Background(), video)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if upload.URL != "https://cdn.example.com/reels/1700000000123-my-reel.mp4" {
		t.Fatalf("unexpected url %s", upload.URL)
	}
	if upload.ExpiresAt != nil {
		t.Fatalf("expected no expiry, got %v", upload.ExpiresAt)
	}
	if len(*puts) != 1 {
		t.Fatalf("expected one request, got %d", len(*puts))
	}
	got := (*puts)[0]
	if got.method != http.MethodPut || got.path != "/reels-bucket/reels/1700000000123-my-reel.mp4" {
		t.Fatalf("unexpected request %s %s", got.method, got.path)
	}
	if got.contentType != "video/mp4" {
		t.Fatalf("unexpected content type %q", got.contentType)
	}
	if len(got.body) != 16 {
		t.Fatalf("unexpected body length %d", len(got.body))
	}
}

func TestUploadReportsRemoteFailure(t *testing.T) {
	server, _ := newBucketServer(t, http.StatusForbidden)
	video := filepath.Join(t.TempDir(), "reel.mp4")
	testsupport.WriteFile(t, video, 4)

	uploader, err := New(testConfig(server.URL))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	_, err = uploader.Upload(context.Background(), video)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestUploadMissingFile(t *testing.T) {
	server, puts := newBucketServer(t, http.StatusOK)
	uploader, err := New(testConfig(server.URL))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := uploader.Upload(context.Background(), "/nope/reel.mp4"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
	if len(*puts) != 0 {
		t.Fatalf("expected no requests, got %d", len(*puts))
	}
}

func TestNewReportsMissingSettings(t *testing.T) {
	_, err := New(Config{Bucket: "b"})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	for _, key := range []string{"r2.account_id", "r2.access_key_id", "r2.secret_access_key", "r2.public_base_url"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("expected %s in %v", key, err)
		}
	}
	if strings.Contains(err.Error(), "r2.bucket") {
		t.Errorf("bucket was set but reported missing: %v", err)
	}
}
