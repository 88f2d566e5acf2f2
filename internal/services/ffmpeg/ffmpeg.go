// Package ffmpeg renders portrait reels by combining a clip with narration.
package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"nator/internal/logging"
	"nator/internal/media/ffprobe"
	"nator/internal/providers"
	"nator/internal/services"
)

const (
	// Name is the registry name of this provider.
	Name = "ffmpeg"

	// DefaultBinary is the ffmpeg executable looked up on PATH.
	DefaultBinary = "ffmpeg"

	defaultWidth      = 1080
	defaultHeight     = 1920
	defaultMaxSeconds = 60
	renderTimeout     = 2 * time.Minute
	stderrLimit       = 500
)

// Options controls output geometry and length.
type Options struct {
	Width      int
	Height     int
	MaxSeconds int
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = defaultWidth
	}
	if o.Height <= 0 {
		o.Height = defaultHeight
	}
	if o.MaxSeconds <= 0 {
		o.MaxSeconds = defaultMaxSeconds
	}
	return o
}

// Renderer drives the ffmpeg binary.
type Renderer struct {
	Binary  string
	FFprobe string
	Options Options
	Now     func() time.Time
	Logger  *slog.Logger
}

// New builds a renderer with defaults applied.
func New(binary, ffprobeBinary string, opts Options, logger *slog.Logger) *Renderer {
	r := &Renderer{
		Binary:  strings.TrimSpace(binary),
		FFprobe: strings.TrimSpace(ffprobeBinary),
		Options: opts.withDefaults(),
		Now:     time.Now,
		Logger:  logger,
	}
	if r.Binary == "" {
		r.Binary = DefaultBinary
	}
	if r.Logger == nil {
		r.Logger = logging.NewNop()
	}
	return r
}

// Render encodes an H.264/AAC mp4 into outDir. Inputs that are set but
// missing on disk are ignored; at least one must exist.
func (r *Renderer) Render(ctx context.Context, in providers.RenderInput, outDir string) (providers.Video, error) {
	clip := existing(in.ClipPath)
	audio := existing(in.AudioPath)
	if clip == "" && audio == "" {
		return providers.Video{}, services.Wrap(services.ErrValidation, "rendering", "ffmpeg", "need at least a clip or audio file to render", nil)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return providers.Video{}, fmt.Errorf("create render dir: %w", err)
	}
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	outPath := filepath.Join(outDir, fmt.Sprintf("reel-%d.mp4", now().UnixMilli()))

	ctx, cancel := context.WithTimeout(ctx, renderTimeout)
	defer cancel()

	args := BuildArgs(clip, audio, outPath, r.Options)
	r.Logger.Debug("running ffmpeg", logging.Args(logging.String("command", r.Binary+" "+strings.Join(args, " ")))...)
	cmd := exec.CommandContext(ctx, r.Binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		marker := services.ErrExternalTool
		if ctx.Err() != nil {
			marker = services.ErrTimeout
		}
		return providers.Video{}, services.Wrap(marker, "rendering", "ffmpeg", tail(stderr.String(), stderrLimit), err)
	}
	if _, err := os.Stat(outPath); err != nil {
		return providers.Video{}, services.Wrap(services.ErrExternalTool, "rendering", "ffmpeg", "produced no output file", err)
	}

	duration, err := ffprobe.Duration(ctx, r.FFprobe, outPath)
	if err != nil {
		r.Logger.Debug("render probe failed", logging.Error(err))
		duration = 0
	}
	return providers.Video{VideoPath: outPath, DurationSecs: duration}, nil
}

// BuildArgs returns the ffmpeg argument list. With only audio, a black
// canvas of the output size is generated as the video track.
func BuildArgs(clipPath, audioPath, outPath string, opts Options) []string {
	opts = opts.withDefaults()
	w, h := strconv.Itoa(opts.Width), strconv.Itoa(opts.Height)
	args := []string{"-y", "-hide_banner", "-loglevel", "error"}

	switch {
	case clipPath != "" && audioPath != "":
		args = append(args, "-i", clipPath, "-i", audioPath,
			"-vf", scalePad(w, h),
			"-map", "0:v:0", "-map", "1:a:0", "-shortest")
	case clipPath != "":
		args = append(args, "-i", clipPath, "-vf", scalePad(w, h))
	default:
		args = append(args,
			"-f", "lavfi", "-i", "color=c=black:s="+w+"x"+h+":r=30",
			"-i", audioPath,
			"-map", "0:v:0", "-map", "1:a:0", "-shortest")
	}

	args = append(args,
		"-c:v", "libx264", "-preset", "fast", "-crf", "23",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac", "-b:a", "128k",
		"-t", strconv.Itoa(opts.MaxSeconds),
		"-movflags", "+faststart",
		outPath,
	)
	return args
}

func scalePad(w, h string) string {
	return "scale=" + w + ":" + h + ":force_original_aspect_ratio=decrease," +
		"pad=" + w + ":" + h + ":(ow-iw)/2:(oh-ih)/2:black"
}

// HealthCheck confirms ffmpeg is on PATH.
func (r *Renderer) HealthCheck(context.Context) providers.Health {
	name := "renderer/" + Name
	if _, err := exec.LookPath(r.Binary); err != nil {
		return providers.Unhealthy(name, r.Binary+" not found")
	}
	return providers.Healthy(name)
}

func existing(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// tail keeps the end of ffmpeg output, where the failure reason is printed.
func tail(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[len(s)-limit:]
}

// Register adds the ffmpeg renderer to reg.
func Register(reg *providers.Registry) {
	reg.RegisterRenderer(Name, func(_ context.Context, env providers.Env) (providers.Renderer, error) {
		var binary, probe string
		var opts Options
		if env.Config != nil {
			binary = env.Config.Render.FFmpegBinary
			probe = env.Config.Render.FFprobeBinary
			opts = Options{
				Width:      env.Config.Render.Width,
				Height:     env.Config.Render.Height,
				MaxSeconds: env.Config.Render.MaxSeconds,
			}
		}
		return New(binary, probe, opts, env.Logger), nil
	})
}
