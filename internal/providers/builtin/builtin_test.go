package builtin

import (
	"slices"
	"testing"

	"nator/internal/providers"
)

func TestRegisterCoversEveryKind(t *testing.T) {
	reg := NewRegistry(providers.Env{})
	want := map[providers.Kind][]string{
		providers.KindScript:    {"mock", "openai"},
		providers.KindTTS:       {"edge", "mock"},
		providers.KindRenderer:  {"ffmpeg", "mock"},
		providers.KindStorage:   {"mock", "r2", "tunnel"},
		providers.KindPublisher: {"instagram", "mock"},
	}
	all := reg.ListAll()
	for kind, names := range want {
		if !slices.Equal(all[kind], names) {
			t.Errorf("%s providers = %v, want %v", kind, all[kind], names)
		}
	}
}
