package providers

import (
	"context"
	"time"
)

// Kind names a capability category.
type Kind string

const (
	KindScript    Kind = "script"
	KindTTS       Kind = "tts"
	KindRenderer  Kind = "renderer"
	KindStorage   Kind = "storage"
	KindPublisher Kind = "publisher"
)

// DefaultName is used when no provider is configured for a kind.
const DefaultName = "mock"

// Kinds returns every capability kind in pipeline order.
func Kinds() []Kind {
	return []Kind{KindScript, KindTTS, KindRenderer, KindStorage, KindPublisher}
}

// ConfigKey returns the resolver key selecting the active provider for k.
func (k Kind) ConfigKey() string {
	return "provider." + string(k)
}

// Script is generated narration text plus hashtags for the caption.
type Script struct {
	Text     string
	Hashtags []string
}

// Speech is a synthesized narration track.
type Speech struct {
	AudioPath    string
	DurationSecs float64
}

// RenderInput carries the artifacts a renderer combines. At least one of
// ClipPath or AudioPath is set.
type RenderInput struct {
	ClipPath   string
	AudioPath  string
	ScriptText string
}

// Video is a rendered output file.
type Video struct {
	VideoPath    string
	DurationSecs float64
}

// Upload is a publicly reachable copy of a file.
type Upload struct {
	URL       string
	ExpiresAt *time.Time
}

// ContainerRequest describes media to stage on the publishing platform.
type ContainerRequest struct {
	VideoURL string
	Caption  string
}

// Scripter writes narration for a clip. clipPath may be empty.
type Scripter interface {
	Generate(ctx context.Context, clipPath string) (Script, error)
}

// Synthesizer turns text into an audio file under outDir.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, outDir string) (Speech, error)
}

// Renderer produces the final video under outDir.
type Renderer interface {
	Render(ctx context.Context, in RenderInput, outDir string) (Video, error)
}

// Uploader makes a local file reachable by URL.
type Uploader interface {
	Upload(ctx context.Context, path string) (Upload, error)
}

// Publisher posts media in two phases: CreateContainer stages the media and
// PublishContainer waits for processing to finish before publishing it.
// PublishContainer must give up after a bounded wait.
type Publisher interface {
	CreateContainer(ctx context.Context, req ContainerRequest) (string, error)
	PublishContainer(ctx context.Context, containerID string) (string, error)
}
