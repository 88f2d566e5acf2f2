package mock_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nator/internal/providers"
	"nator/internal/providers/mock"
)

func fixedClock() time.Time {
	return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
}

func TestScripterReturnsFixedScript(t *testing.T) {
	script, err := mock.Scripter{}.Generate(context.Background(), "")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if script.Text != mock.ScriptText {
		t.Fatalf("unexpected text %q", script.Text)
	}
	if strings.Join(script.Hashtags, " ") != "#productivity #tips #automation" {
		t.Fatalf("unexpected hashtags %v", script.Hashtags)
	}
}

func TestSynthesizerWritesWavHeader(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "job")
	speech, err := mock.Synthesizer{Now: fixedClock}.Synthesize(context.Background(), "hello", dir)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	data, err := os.ReadFile(speech.AudioPath)
	if err != nil {
		t.Fatalf("read wav: %v", err)
	}
	if len(data) != 44 || string(data[:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatalf("unexpected wav header %q", data)
	}
	if speech.DurationSecs != 15 {
		t.Fatalf("unexpected duration %v", speech.DurationSecs)
	}
	if !strings.HasPrefix(filepath.Base(speech.AudioPath), "tts-") {
		t.Fatalf("unexpected file name %s", speech.AudioPath)
	}
}

func TestRendererWritesManifest(t *testing.T) {
	dir := t.TempDir()
	video, err := mock.Renderer{Now: fixedClock}.Render(context.Background(), providers.RenderInput{
		AudioPath:  "/tmp/a.wav",
		ScriptText: strings.Repeat("x", 80),
	}, dir)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	data, err := os.ReadFile(video.VideoPath)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var manifest map[string]any
	if err := json.Unmarshal(data, &manifest); err != nil {
		t.Fatalf("manifest is not JSON: %v", err)
	}
	if manifest["type"] != "mock-render" {
		t.Fatalf("unexpected manifest type %v", manifest["type"])
	}
	inputs := manifest["inputs"].(map[string]any)
	if got := inputs["scriptText"].(string); len(got) != 50 {
		t.Fatalf("expected script truncated to 50 chars, got %d", len(got))
	}
	if video.DurationSecs != 30 {
		t.Fatalf("unexpected duration %v", video.DurationSecs)
	}
}

func TestRendererRequiresAnInput(t *testing.T) {
	if _, err := (mock.Renderer{}).Render(context.Background(), providers.RenderInput{ScriptText: "x"}, t.TempDir()); err == nil {
		t.Fatal("expected error when clip and audio are both missing")
	}
}

func TestUploaderAndPublisher(t *testing.T) {
	ctx := context.Background()
	upload, err := mock.Uploader{Now: fixedClock}.Upload(ctx, "/out/video.mp4")
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if upload.URL != "mock://storage//out/video.mp4" {
		t.Fatalf("unexpected url %q", upload.URL)
	}
	if upload.ExpiresAt == nil || !upload.ExpiresAt.Equal(fixedClock().Add(15*time.Minute)) {
		t.Fatalf("unexpected expiry %v", upload.ExpiresAt)
	}

	pub := mock.Publisher{Now: fixedClock}
	container, err := pub.CreateContainer(ctx, providers.ContainerRequest{VideoURL: upload.URL})
	if err != nil || !strings.HasPrefix(container, "mock-container-") {
		t.Fatalf("unexpected container %q (%v)", container, err)
	}
	media, err := pub.PublishContainer(ctx, container)
	if err != nil || !strings.HasPrefix(media, "mock-media-") {
		t.Fatalf("unexpected media %q (%v)", media, err)
	}
}
