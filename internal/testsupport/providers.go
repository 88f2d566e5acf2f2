package testsupport

import (
	"context"
	"sync"

	"nator/internal/config"
	"nator/internal/notifications"
	"nator/internal/providers"
	"nator/internal/providers/mock"
)

// StubName is the registry name used by Stubs.
const StubName = "stub"

// Stubs wraps the mock providers with per-kind call counters and injectable
// failures.
type Stubs struct {
	mu    sync.Mutex
	calls map[providers.Kind]int
	fail  map[providers.Kind]error
}

// NewStubs returns stubs that succeed for every kind.
func NewStubs() *Stubs {
	return &Stubs{
		calls: make(map[providers.Kind]int),
		fail:  make(map[providers.Kind]error),
	}
}

// FailAt makes every later call for kind return err. A nil err heals it.
func (s *Stubs) FailAt(kind providers.Kind, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, kind)
		return
	}
	s.fail[kind] = err
}

// Calls returns how many times kind was invoked.
func (s *Stubs) Calls(kind providers.Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[kind]
}

func (s *Stubs) enter(kind providers.Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[kind]++
	return s.fail[kind]
}

// Register adds the stubs to reg under StubName.
func (s *Stubs) Register(reg *providers.Registry) {
	reg.RegisterScripter(StubName, func(context.Context, providers.Env) (providers.Scripter, error) {
		return stubScripter{s}, nil
	})
	reg.RegisterSynthesizer(StubName, func(context.Context, providers.Env) (providers.Synthesizer, error) {
		return stubSynthesizer{s}, nil
	})
	reg.RegisterRenderer(StubName, func(context.Context, providers.Env) (providers.Renderer, error) {
		return stubRenderer{s}, nil
	})
	reg.RegisterUploader(StubName, func(context.Context, providers.Env) (providers.Uploader, error) {
		return stubUploader{s}, nil
	})
	reg.RegisterPublisher(StubName, func(context.Context, providers.Env) (providers.Publisher, error) {
		return stubPublisher{s}, nil
	})
}

type stubScripter struct{ s *Stubs }

func (p stubScripter) Generate(ctx context.Context, clipPath string) (providers.Script, error) {
	if err := p.s.enter(providers.KindScript); err != nil {
		return providers.Script{}, err
	}
	return mock.Scripter{}.Generate(ctx, clipPath)
}

type stubSynthesizer struct{ s *Stubs }

func (p stubSynthesizer) Synthesize(ctx context.Context, text, outDir string) (providers.Speech, error) {
	if err := p.s.enter(providers.KindTTS); err != nil {
		return providers.Speech{}, err
	}
	return mock.Synthesizer{}.Synthesize(ctx, text, outDir)
}

type stubRenderer struct{ s *Stubs }

func (p stubRenderer) Render(ctx context.Context, in providers.RenderInput, outDir string) (providers.Video, error) {
	if err := p.s.enter(providers.KindRenderer); err != nil {
		return providers.Video{}, err
	}
	return mock.Renderer{}.Render(ctx, in, outDir)
}

type stubUploader struct{ s *Stubs }

func (p stubUploader) Upload(ctx context.Context, path string) (providers.Upload, error) {
	if err := p.s.enter(providers.KindStorage); err != nil {
		return providers.Upload{}, err
	}
	return mock.Uploader{}.Upload(ctx, path)
}

type stubPublisher struct{ s *Stubs }

func (p stubPublisher) CreateContainer(ctx context.Context, req providers.ContainerRequest) (string, error) {
	if err := p.s.enter(providers.KindPublisher); err != nil {
		return "", err
	}
	return mock.Publisher{}.CreateContainer(ctx, req)
}

func (p stubPublisher) PublishContainer(ctx context.Context, id string) (string, error) {
	return mock.Publisher{}.PublishContainer(ctx, id)
}

// WithProviders selects name for every capability kind.
func WithProviders(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Providers = config.Providers{
			Script:    name,
			TTS:       name,
			Renderer:  name,
			Storage:   name,
			Publisher: name,
		}
	}
}

// Notification is one recorded Publish call.
type Notification struct {
	Event   notifications.Event
	Payload notifications.Payload
}

// Notifier records published events.
type Notifier struct {
	mu     sync.Mutex
	events []Notification
}

func (n *Notifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, Notification{Event: event, Payload: payload})
	return nil
}

// Events returns a copy of everything published so far.
func (n *Notifier) Events() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.events...)
}
