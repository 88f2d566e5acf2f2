package ffmpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"nator/internal/providers"
	"nator/internal/services"
	"nator/internal/testsupport"
)

func TestBuildArgs(t *testing.T) {
	tests := []struct {
		name     string
		clip     string
		audio    string
		contains []string
		absent   []string
	}{
		{
			name:     "clip and audio",
			clip:     "/c.mp4",
			audio:    "/a.mp3",
			contains: []string{"-i /c.mp4 -i /a.mp3", "-map 0:v:0 -map 1:a:0 -shortest", "force_original_aspect_ratio=decrease"},
			absent:   []string{"lavfi"},
		},
		{
			name:     "clip only",
			clip:     "/c.mp4",
			contains: []string{"-i /c.mp4 -vf"},
			absent:   []string{"-map", "lavfi"},
		},
		{
			name:     "audio only",
			audio:    "/a.mp3",
			contains: []string{"-f lavfi -i color=c=black:s=1080x1920:r=30 -i /a.mp3"},
			absent:   []string{"-vf"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			args := BuildArgs(tc.clip, tc.audio, "/out/reel.mp4", Options{})
			joined := strings.Join(args, " ")
			for _, want := range tc.contains {
				if !strings.Contains(joined, want) {
					t.Errorf("args %q missing %q", joined, want)
				}
			}
			for _, unwanted := range tc.absent {
				if strings.Contains(joined, unwanted) {
					t.Errorf("args %q should not contain %q", joined, unwanted)
				}
			}
			if !strings.Contains(joined, "-c:v libx264 -preset fast -crf 23") || !strings.Contains(joined, "-c:a aac -b:a 128k") {
				t.Errorf("missing codec settings: %q", joined)
			}
			if args[len(args)-1] != "/out/reel.mp4" {
				t.Errorf("output path must be last, got %q", args[len(args)-1])
			}
			if i := slices.Index(args, "-t"); i < 0 || args[i+1] != "60" {
				t.Errorf("expected -t 60 in %q", joined)
			}
		})
	}
}

func TestRenderRequiresAnInput(t *testing.T) {
	r := New("ffmpeg", "", Options{}, nil)
	_, err := r.Render(context.Background(), providers.RenderInput{ClipPath: "/missing.mp4"}, t.TempDir())
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRenderRunsBinary(t *testing.T) {
	bin := t.TempDir()
	ff := testsupport.WriteExecutable(t, bin, "ffmpeg", `for last; do :; done; printf 'mp4' > "$last"`)
	probe := testsupport.WriteExecutable(t, bin, "ffprobe", `echo '{"streams":[],"format":{"duration":"31.5"}}'`)
	clip := filepath.Join(t.TempDir(), "clip.mp4")
	testsupport.WriteFile(t, clip, 64)

	r := New(ff, probe, Options{}, nil)
	r.Now = func() time.Time { return time.UnixMilli(42) }
	out := t.TempDir()
	video, err := r.Render(context.Background(), providers.RenderInput{ClipPath: clip}, out)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if video.VideoPath != filepath.Join(out, "reel-42.mp4") {
		t.Fatalf("unexpected video path %s", video.VideoPath)
	}
	if video.DurationSecs != 31.5 {
		t.Fatalf("unexpected duration %v", video.DurationSecs)
	}
	if _, err := os.Stat(video.VideoPath); err != nil {
		t.Fatalf("expected output file: %v", err)
	}
}

func TestRenderReportsFailure(t *testing.T) {
	bin := t.TempDir()
	ff := testsupport.WriteExecutable(t, bin, "ffmpeg", `echo "Invalid data found when processing input" >&2; exit 1`)
	audio := filepath.Join(t.TempDir(), "a.mp3")
	testsupport.WriteFile(t, audio, 8)

	_, err := New(ff, "", Options{}, nil).Render(context.Background(), providers.RenderInput{AudioPath: audio}, t.TempDir())
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Invalid data") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}
