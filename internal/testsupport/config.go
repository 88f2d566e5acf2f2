package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"nator/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config rooted in a per-test temp directory with every
// provider set to mock and publishing in dry mode.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.OutputDir = filepath.Join(base, "outputs")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Pipeline.KillSwitchPath = filepath.Join(base, "KILL_SWITCH")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithQuota sets pipeline.max_posts_per_day on the test config.
func WithQuota(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.MaxPostsPerDay = n
	}
}

// WithPublishMode sets pipeline.publish_mode on the test config.
func WithPublishMode(mode string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.PublishMode = mode
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the external tools used by the
// real providers are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe", "edge-tts", "cloudflared"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
