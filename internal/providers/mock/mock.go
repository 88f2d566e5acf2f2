// Package mock provides deterministic providers for every capability kind.
// They touch only the local filesystem, which makes them the default for
// new installs and the backbone of the pipeline tests.
package mock

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"nator/internal/providers"
)

// Name is the registry name of every mock provider.
const Name = "mock"

// ScriptText is the narration returned by the mock script provider.
const ScriptText = "Mock script: 3 productivity tips for crushing your day. Tip 1: Start early. Tip 2: Stay focused. Tip 3: Review your wins."

// Hashtags accompany ScriptText.
var Hashtags = []string{"#productivity", "#tips", "#automation"}

const (
	speechSeconds = 15.0
	renderSeconds = 30.0
	uploadTTL     = 15 * time.Minute
)

// Register adds the mock implementation of every kind to reg.
func Register(reg *providers.Registry) {
	reg.RegisterScripter(Name, func(context.Context, providers.Env) (providers.Scripter, error) {
		return Scripter{}, nil
	})
	reg.RegisterSynthesizer(Name, func(context.Context, providers.Env) (providers.Synthesizer, error) {
		return Synthesizer{Now: time.Now}, nil
	})
	reg.RegisterRenderer(Name, func(context.Context, providers.Env) (providers.Renderer, error) {
		return Renderer{Now: time.Now}, nil
	})
	reg.RegisterUploader(Name, func(context.Context, providers.Env) (providers.Uploader, error) {
		return Uploader{Now: time.Now}, nil
	})
	reg.RegisterPublisher(Name, func(context.Context, providers.Env) (providers.Publisher, error) {
		return Publisher{Now: time.Now}, nil
	})
}

// Scripter returns ScriptText for any clip.
type Scripter struct{}

func (Scripter) Generate(context.Context, string) (providers.Script, error) {
	return providers.Script{Text: ScriptText, Hashtags: append([]string(nil), Hashtags...)}, nil
}

func (Scripter) HealthCheck(context.Context) providers.Health {
	return providers.Healthy("script/mock")
}

// Synthesizer writes an empty 8-bit mono PCM WAV file.
type Synthesizer struct {
	Now func() time.Time
}

func (s Synthesizer) Synthesize(_ context.Context, _ string, outDir string) (providers.Speech, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return providers.Speech{}, fmt.Errorf("create tts dir: %w", err)
	}
	path := filepath.Join(outDir, fmt.Sprintf("tts-%d.wav", now(s.Now).UnixMilli()))
	if err := os.WriteFile(path, wavHeader(), 0o644); err != nil {
		return providers.Speech{}, fmt.Errorf("write wav: %w", err)
	}
	return providers.Speech{AudioPath: path, DurationSecs: speechSeconds}, nil
}

// wavHeader is a 44-byte RIFF header with a zero-length data chunk.
func wavHeader() []byte {
	h := make([]byte, 44)
	copy(h[0:], "RIFF")
	binary.LittleEndian.PutUint32(h[4:], 36)
	copy(h[8:], "WAVE")
	copy(h[12:], "fmt ")
	binary.LittleEndian.PutUint32(h[16:], 16)
	binary.LittleEndian.PutUint16(h[20:], 1)
	binary.LittleEndian.PutUint16(h[22:], 1)
	binary.LittleEndian.PutUint32(h[24:], 22050)
	binary.LittleEndian.PutUint32(h[28:], 22050)
	binary.LittleEndian.PutUint16(h[32:], 1)
	binary.LittleEndian.PutUint16(h[34:], 8)
	copy(h[36:], "data")
	binary.LittleEndian.PutUint32(h[40:], 0)
	return h
}

// Renderer writes a JSON manifest describing its inputs in place of a video.
type Renderer struct {
	Now func() time.Time
}

type renderManifest struct {
	Type      string         `json:"type"`
	Inputs    manifestInputs `json:"inputs"`
	Output    string         `json:"output"`
	Timestamp string         `json:"timestamp"`
}

type manifestInputs struct {
	ClipPath   string `json:"clipPath,omitempty"`
	AudioPath  string `json:"audioPath,omitempty"`
	ScriptText string `json:"scriptText,omitempty"`
}

func (r Renderer) Render(_ context.Context, in providers.RenderInput, outDir string) (providers.Video, error) {
	if in.ClipPath == "" && in.AudioPath == "" {
		return providers.Video{}, fmt.Errorf("render requires a clip or an audio track")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return providers.Video{}, fmt.Errorf("create render dir: %w", err)
	}
	ts := now(r.Now)
	path := filepath.Join(outDir, fmt.Sprintf("rendered-%d.mp4", ts.UnixMilli()))
	script := []rune(in.ScriptText)
	if len(script) > 50 {
		script = script[:50]
	}
	manifest := renderManifest{
		Type:      "mock-render",
		Inputs:    manifestInputs{ClipPath: in.ClipPath, AudioPath: in.AudioPath, ScriptText: string(script)},
		Output:    path,
		Timestamp: ts.UTC().Format(time.RFC3339),
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return providers.Video{}, fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return providers.Video{}, fmt.Errorf("write manifest: %w", err)
	}
	return providers.Video{VideoPath: path, DurationSecs: renderSeconds}, nil
}

// Uploader returns a mock:// URL without copying anything.
type Uploader struct {
	Now func() time.Time
}

func (u Uploader) Upload(_ context.Context, path string) (providers.Upload, error) {
	if strings.TrimSpace(path) == "" {
		return providers.Upload{}, fmt.Errorf("upload requires a file path")
	}
	expires := now(u.Now).Add(uploadTTL)
	return providers.Upload{
		URL:       "mock://storage/" + filepath.ToSlash(path),
		ExpiresAt: &expires,
	}, nil
}

// Publisher returns synthetic container and media ids.
type Publisher struct {
	Now func() time.Time
}

func (p Publisher) CreateContainer(context.Context, providers.ContainerRequest) (string, error) {
	return fmt.Sprintf("mock-container-%d", now(p.Now).UnixMilli()), nil
}

func (p Publisher) PublishContainer(context.Context, string) (string, error) {
	return fmt.Sprintf("mock-media-%d", now(p.Now).UnixMilli()), nil
}

func (Publisher) HealthCheck(context.Context) providers.Health {
	return providers.Healthy("publisher/mock")
}

func now(fn func() time.Time) time.Time {
	if fn == nil {
		return time.Now()
	}
	return fn()
}
