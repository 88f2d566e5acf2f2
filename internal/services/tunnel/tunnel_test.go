package tunnel

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nator/internal/services"
	"nator/internal/testsupport"
)

func waitForFile(t *testing.T, path string) string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if data, err := os.ReadFile(path); err == nil && len(data) > 0 {
			return strings.TrimSpace(string(data))
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", path)
	return ""
}

func TestUploadServesFileThroughTunnel(t *testing.T) {
	bin := t.TempDir()
	argsFile := filepath.Join(bin, "args.txt")
	cloudflared := testsupport.WriteExecutable(t, bin, "cloudflared", `
echo "$3" > `+argsFile+`
echo "INF Requesting new quick Tunnel" >&2
echo "INF |  https://brave-fox-42.trycloudflare.com  |" >&2
exec sleep 30`)

	video := filepath.Join(t.TempDir(), "reel.mp4")
	testsupport.WriteFile(t, video, 32)

	u := New(cloudflared, 0, time.Minute, nil)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	u.Now = func() time.Time { return now }
	defer u.Close()

	upload, err := u.Upload(context.Background(), video)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if upload.URL != "https://brave-fox-42.trycloudflare.com/reel.mp4" {
		t.Fatalf("unexpected url %s", upload.URL)
	}
	if upload.ExpiresAt == nil || !upload.ExpiresAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("unexpected expiry %v", upload.ExpiresAt)
	}

	localURL := waitForFile(t, argsFile)
	if !strings.HasPrefix(localURL, "http://127.0.0.1:") {
		t.Fatalf("unexpected local url %q", localURL)
	}
	resp, err := http.Get(localURL + "/reel.mp4")
	if err != nil {
		t.Fatalf("fetch served file: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || len(body) != 32 {
		t.Fatalf("unexpected response %d with %d bytes", resp.StatusCode, len(body))
	}
	if resp.Header.Get("Content-Type") != "video/mp4" {
		t.Fatalf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}

	missing, err := http.Get(localURL + "/other.mp4")
	if err != nil {
		t.Fatalf("fetch other path: %v", err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for other paths, got %d", missing.StatusCode)
	}
}

func TestUploadFailsWhenTunnelExitsEarly(t *testing.T) {
	bin := t.TempDir()
	cloudflared := testsupport.WriteExecutable(t, bin, "cloudflared", `echo "ERR failed to connect" >&2; exit 1`)
	video := filepath.Join(t.TempDir(), "reel.mp4")
	testsupport.WriteFile(t, video, 8)

	u := New(cloudflared, 0, time.Minute, nil)
	defer u.Close()
	_, err := u.Upload(context.Background(), video)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestUploadTimesOutWithoutURL(t *testing.T) {
	bin := t.TempDir()
	cloudflared := testsupport.WriteExecutable(t, bin, "cloudflared", `exec sleep 30`)
	video := filepath.Join(t.TempDir(), "reel.mp4")
	testsupport.WriteFile(t, video, 8)

	u := New(cloudflared, 0, time.Minute, nil)
	u.StartupTimeout = 200 * time.Millisecond
	defer u.Close()
	_, err := u.Upload(context.Background(), video)
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestUploadMissingFile(t *testing.T) {
	u := New("cloudflared", 0, time.Minute, nil)
	if _, err := u.Upload(context.Background(), filepath.Join(t.TempDir(), "gone.mp4")); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}
