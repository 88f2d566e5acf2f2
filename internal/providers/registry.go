package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"

	"nator/internal/config"
	"nator/internal/logging"
)

// ErrProviderNotFound matches every ProviderNotFoundError.
var ErrProviderNotFound = errors.New("provider not found")

// ProviderNotFoundError reports a configured name with no registration.
type ProviderNotFoundError struct {
	Kind      Kind
	Name      string
	Available []string
}

func (e *ProviderNotFoundError) Error() string {
	available := "none"
	if len(e.Available) > 0 {
		available = strings.Join(e.Available, ", ")
	}
	return fmt.Sprintf("no %s provider registered as %q (available: %s)", e.Kind, e.Name, available)
}

func (e *ProviderNotFoundError) Unwrap() error { return ErrProviderNotFound }

// Settings resolves dotted config keys. *config.Resolver satisfies it.
type Settings interface {
	Get(ctx context.Context, key string) (string, error)
}

// Env is handed to every factory.
type Env struct {
	Config   *config.Config
	Settings Settings
	Logger   *slog.Logger
}

// Setting resolves key through Settings. fallback is returned when no
// Settings are attached.
func (e Env) Setting(ctx context.Context, key, fallback string) (string, error) {
	if e.Settings == nil {
		return fallback, nil
	}
	value, err := e.Settings.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", key, err)
	}
	return strings.TrimSpace(value), nil
}

// Factory builds a provider instance.
type Factory[T any] func(ctx context.Context, env Env) (T, error)

type table[T any] struct {
	kind      Kind
	factories map[string]Factory[T]
}

func newTable[T any](kind Kind) *table[T] {
	return &table[T]{kind: kind, factories: make(map[string]Factory[T])}
}

func (t *table[T]) names() []string {
	names := make([]string, 0, len(t.factories))
	for name := range t.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Registry maps (kind, name) to factories.
type Registry struct {
	mu         sync.RWMutex
	env        Env
	scripters  *table[Scripter]
	speech     *table[Synthesizer]
	renderers  *table[Renderer]
	uploaders  *table[Uploader]
	publishers *table[Publisher]
}

// NewRegistry returns an empty registry whose factories receive env.
func NewRegistry(env Env) *Registry {
	if env.Logger == nil {
		env.Logger = logging.NewNop()
	}
	return &Registry{
		env:        env,
		scripters:  newTable[Scripter](KindScript),
		speech:     newTable[Synthesizer](KindTTS),
		renderers:  newTable[Renderer](KindRenderer),
		uploaders:  newTable[Uploader](KindStorage),
		publishers: newTable[Publisher](KindPublisher),
	}
}

// RegisterScripter adds a script provider.
func (r *Registry) RegisterScripter(name string, f Factory[Scripter]) {
	register(r, r.scripters, name, f)
}

// RegisterSynthesizer adds a tts provider.
func (r *Registry) RegisterSynthesizer(name string, f Factory[Synthesizer]) {
	register(r, r.speech, name, f)
}

// RegisterRenderer adds a renderer provider.
func (r *Registry) RegisterRenderer(name string, f Factory[Renderer]) {
	register(r, r.renderers, name, f)
}

// RegisterUploader adds a storage provider.
func (r *Registry) RegisterUploader(name string, f Factory[Uploader]) {
	register(r, r.uploaders, name, f)
}

// RegisterPublisher adds a publisher provider.
func (r *Registry) RegisterPublisher(name string, f Factory[Publisher]) {
	register(r, r.publishers, name, f)
}

// Scripter resolves the active script provider and reports its name.
func (r *Registry) Scripter(ctx context.Context) (Scripter, string, error) {
	return resolve(ctx, r, r.scripters)
}

// Synthesizer resolves the active tts provider.
func (r *Registry) Synthesizer(ctx context.Context) (Synthesizer, string, error) {
	return resolve(ctx, r, r.speech)
}

// Renderer resolves the active renderer provider.
func (r *Registry) Renderer(ctx context.Context) (Renderer, string, error) {
	return resolve(ctx, r, r.renderers)
}

// Uploader resolves the active storage provider.
func (r *Registry) Uploader(ctx context.Context) (Uploader, string, error) {
	return resolve(ctx, r, r.uploaders)
}

// Publisher resolves the active publisher provider.
func (r *Registry) Publisher(ctx context.Context) (Publisher, string, error) {
	return resolve(ctx, r, r.publishers)
}

// Resolve builds the active provider of kind as an untyped value. Callers
// that know the kind should use the typed accessors instead.
func (r *Registry) Resolve(ctx context.Context, kind Kind) (any, string, error) {
	switch kind {
	case KindScript:
		return resolve(ctx, r, r.scripters)
	case KindTTS:
		return resolve(ctx, r, r.speech)
	case KindRenderer:
		return resolve(ctx, r, r.renderers)
	case KindStorage:
		return resolve(ctx, r, r.uploaders)
	case KindPublisher:
		return resolve(ctx, r, r.publishers)
	default:
		return nil, "", fmt.Errorf("unknown provider kind %q", kind)
	}
}

// ActiveName returns the configured provider name for kind.
func (r *Registry) ActiveName(ctx context.Context, kind Kind) (string, error) {
	if r.env.Settings == nil {
		return DefaultName, nil
	}
	name, err := r.env.Settings.Get(ctx, kind.ConfigKey())
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", kind.ConfigKey(), err)
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = DefaultName
	}
	return name, nil
}

// List returns the registered names for kind, sorted.
func (r *Registry) List(kind Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case KindScript:
		return r.scripters.names()
	case KindTTS:
		return r.speech.names()
	case KindRenderer:
		return r.renderers.names()
	case KindStorage:
		return r.uploaders.names()
	case KindPublisher:
		return r.publishers.names()
	default:
		return nil
	}
}

// ListAll returns registered names for every kind.
func (r *Registry) ListAll() map[Kind][]string {
	out := make(map[Kind][]string, len(Kinds()))
	for _, kind := range Kinds() {
		out[kind] = r.List(kind)
	}
	return out
}

// Has reports whether name is registered for kind.
func (r *Registry) Has(kind Kind, name string) bool {
	return slices.Contains(r.List(kind), name)
}

// register stores f under name. A second registration of the same name
// replaces the first.
func register[T any](r *Registry, t *table[T], name string, f Factory[T]) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || f == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t.factories[name] = f
}

func resolve[T any](ctx context.Context, r *Registry, t *table[T]) (T, string, error) {
	var zero T
	name, err := r.ActiveName(ctx, t.kind)
	if err != nil {
		return zero, "", err
	}
	r.mu.RLock()
	factory, ok := t.factories[name]
	available := t.names()
	r.mu.RUnlock()
	if !ok {
		return zero, name, &ProviderNotFoundError{Kind: t.kind, Name: name, Available: available}
	}
	env := r.env
	env.Logger = logging.NewComponentLogger(r.env.Logger, string(t.kind)+"/"+name)
	instance, err := factory(ctx, env)
	if err != nil {
		return zero, name, fmt.Errorf("build %s provider %q: %w", t.kind, name, err)
	}
	return instance, name, nil
}
