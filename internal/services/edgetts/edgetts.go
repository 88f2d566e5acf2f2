// Package edgetts synthesizes narration with the edge-tts command line tool.
package edgetts

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"nator/internal/logging"
	"nator/internal/media/ffprobe"
	"nator/internal/providers"
	"nator/internal/services"
)

const (
	// Name is the registry name of this provider.
	Name = "edge"

	// DefaultBinary is the edge-tts executable looked up on PATH.
	DefaultBinary = "edge-tts"

	// DefaultVoice is used when tts.voice is empty.
	DefaultVoice = "en-US-JennyNeural"

	wordsPerMinute = 150
	minEstimate    = 3.0
	stderrLimit    = 500
)

// Synthesizer shells out to edge-tts and probes the result for its duration.
type Synthesizer struct {
	Binary  string
	FFprobe string
	Voice   string
	Now     func() time.Time
	Logger  *slog.Logger
}

// New builds a synthesizer with defaults applied.
func New(binary, ffprobeBinary, voice string, logger *slog.Logger) *Synthesizer {
	s := &Synthesizer{
		Binary:  strings.TrimSpace(binary),
		FFprobe: strings.TrimSpace(ffprobeBinary),
		Voice:   strings.TrimSpace(voice),
		Now:     time.Now,
		Logger:  logger,
	}
	if s.Binary == "" {
		s.Binary = DefaultBinary
	}
	if s.Voice == "" {
		s.Voice = DefaultVoice
	}
	if s.Logger == nil {
		s.Logger = logging.NewNop()
	}
	return s
}

// Synthesize writes an mp3 of text into outDir.
func (s *Synthesizer) Synthesize(ctx context.Context, text, outDir string) (providers.Speech, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return providers.Speech{}, services.Wrap(services.ErrValidation, "tts", "edge-tts", "no text to synthesize", nil)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return providers.Speech{}, fmt.Errorf("create tts dir: %w", err)
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	outPath := filepath.Join(outDir, fmt.Sprintf("tts-%d.mp3", now().UnixMilli()))

	cmd := exec.CommandContext(ctx, s.Binary, "--voice", s.Voice, "--text", text, "--write-media", outPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return providers.Speech{}, services.Wrap(services.ErrExternalTool, "tts", "edge-tts", truncate(stderr.String(), stderrLimit), err)
	}
	if info, err := os.Stat(outPath); err != nil || info.Size() == 0 {
		return providers.Speech{}, services.Wrap(services.ErrExternalTool, "tts", "edge-tts", "no audio written to "+outPath, err)
	}

	duration, err := ffprobe.Duration(ctx, s.FFprobe, outPath)
	if err != nil {
		duration = EstimateDuration(text)
		s.Logger.Debug("audio probe failed, using word-count estimate",
			logging.String("audio_path", outPath),
			logging.Float64("estimate_secs", duration),
			logging.Error(err),
		)
	}
	return providers.Speech{AudioPath: outPath, DurationSecs: duration}, nil
}

// HealthCheck confirms the binary is on PATH.
func (s *Synthesizer) HealthCheck(context.Context) providers.Health {
	name := "tts/" + Name
	if _, err := exec.LookPath(s.Binary); err != nil {
		return providers.Unhealthy(name, fmt.Sprintf("%s not found (pip install edge-tts)", s.Binary))
	}
	return providers.Healthy(name)
}

// EstimateDuration approximates spoken length at 150 words per minute,
// never less than three seconds.
func EstimateDuration(text string) float64 {
	words := len(strings.Fields(text))
	return math.Max(minEstimate, float64(words)/wordsPerMinute*60)
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

// Register adds the edge provider to reg.
func Register(reg *providers.Registry) {
	reg.RegisterSynthesizer(Name, func(ctx context.Context, env providers.Env) (providers.Synthesizer, error) {
		var binary, probe, voice string
		if env.Config != nil {
			binary = env.Config.TTS.Binary
			probe = env.Config.Render.FFprobeBinary
			voice = env.Config.TTS.Voice
		}
		voice, err := env.Setting(ctx, "tts.voice", voice)
		if err != nil {
			return nil, err
		}
		return New(binary, probe, voice, env.Logger), nil
	})
}
