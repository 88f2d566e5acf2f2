package providers_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"nator/internal/providers"
	"nator/internal/providers/mock"
)

type staticSettings map[string]string

func (s staticSettings) Get(_ context.Context, key string) (string, error) {
	return s[key], nil
}

type namedScripter struct{ name string }

func (n namedScripter) Generate(context.Context, string) (providers.Script, error) {
	return providers.Script{Text: n.name}, nil
}

func TestResolveDefaultsToMock(t *testing.T) {
	reg := providers.NewRegistry(providers.Env{Settings: staticSettings{}})
	mock.Register(reg)

	scripter, name, err := reg.Scripter(context.Background())
	if err != nil {
		t.Fatalf("Scripter failed: %v", err)
	}
	if name != "mock" {
		t.Fatalf("expected mock, got %q", name)
	}
	if _, ok := scripter.(mock.Scripter); !ok {
		t.Fatalf("unexpected scripter type %T", scripter)
	}
}

func TestResolveUnknownProviderListsAvailable(t *testing.T) {
	reg := providers.NewRegistry(providers.Env{Settings: staticSettings{"provider.tts": "robot"}})
	mock.Register(reg)

	_, _, err := reg.Synthesizer(context.Background())
	if !errors.Is(err, providers.ErrProviderNotFound) {
		t.Fatalf("expected ErrProviderNotFound, got %v", err)
	}
	var notFound *providers.ProviderNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected typed error, got %T", err)
	}
	if notFound.Kind != providers.KindTTS || notFound.Name != "robot" {
		t.Fatalf("unexpected error fields %+v", notFound)
	}
	if !slices.Equal(notFound.Available, []string{"mock"}) {
		t.Fatalf("unexpected available list %v", notFound.Available)
	}
}

func TestRegisterLastWins(t *testing.T) {
	reg := providers.NewRegistry(providers.Env{Settings: staticSettings{"provider.script": "custom"}})
	reg.RegisterScripter("custom", func(context.Context, providers.Env) (providers.Scripter, error) {
		return namedScripter{name: "first"}, nil
	})
	reg.RegisterScripter("custom", func(context.Context, providers.Env) (providers.Scripter, error) {
		return namedScripter{name: "second"}, nil
	})

	scripter, _, err := reg.Scripter(context.Background())
	if err != nil {
		t.Fatalf("Scripter failed: %v", err)
	}
	script, _ := scripter.Generate(context.Background(), "")
	if script.Text != "second" {
		t.Fatalf("expected last registration to win, got %q", script.Text)
	}
	if got := reg.List(providers.KindScript); len(got) != 1 {
		t.Fatalf("expected one name after overwrite, got %v", got)
	}
}

func TestResolveReturnsFreshInstances(t *testing.T) {
	calls := 0
	reg := providers.NewRegistry(providers.Env{})
	reg.RegisterScripter("mock", func(context.Context, providers.Env) (providers.Scripter, error) {
		calls++
		return &namedScripter{name: "x"}, nil
	})
	first, _, _ := reg.Scripter(context.Background())
	second, _, _ := reg.Scripter(context.Background())
	if calls != 2 {
		t.Fatalf("expected factory per resolve, got %d calls", calls)
	}
	if first == second {
		t.Fatal("expected distinct instances")
	}
}

func TestFactoryErrorIsWrapped(t *testing.T) {
	boom := errors.New("missing key")
	reg := providers.NewRegistry(providers.Env{Settings: staticSettings{"provider.publisher": "broken"}})
	reg.RegisterPublisher("broken", func(context.Context, providers.Env) (providers.Publisher, error) {
		return nil, boom
	})
	if _, _, err := reg.Publisher(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected factory error, got %v", err)
	}
}

func TestListAll(t *testing.T) {
	reg := providers.NewRegistry(providers.Env{})
	mock.Register(reg)
	all := reg.ListAll()
	for _, kind := range providers.Kinds() {
		if !slices.Equal(all[kind], []string{"mock"}) {
			t.Fatalf("kind %s: unexpected names %v", kind, all[kind])
		}
	}
	if !reg.Has(providers.KindStorage, "mock") || reg.Has(providers.KindStorage, "r2") {
		t.Fatal("Has reported wrong membership")
	}
}
