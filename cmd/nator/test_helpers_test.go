package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type cliTestEnv struct {
	baseDir    string
	configPath string
	dataDir    string
	outputDir  string
	killSwitch string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	for _, key := range []string{"PUBLISH_MODE", "MAX_POSTS_PER_DAY", "KILL_SWITCH_PATH", "SCHEDULER_ENABLED", "NTFY_TOPIC"} {
		t.Setenv(key, "")
	}

	env := &cliTestEnv{
		baseDir:    base,
		configPath: filepath.Join(base, "config.toml"),
		dataDir:    filepath.Join(base, "data"),
		outputDir:  filepath.Join(base, "outputs"),
		killSwitch: filepath.Join(base, "KILL_SWITCH"),
	}
	content := fmt.Sprintf(`[paths]
data_dir = %q
work_dir = %q
output_dir = %q
log_dir = %q

[pipeline]
publish_mode = "dry"
max_posts_per_day = 3
kill_switch_path = %q

[logging]
level = "error"
`, env.dataDir, filepath.Join(base, "work"), env.outputDir, filepath.Join(base, "logs"), env.killSwitch)
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

func (e *cliTestEnv) writeClip(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(e.baseDir, "clips", name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir clips: %v", err)
	}
	if err := os.WriteFile(path, []byte("not really video"), 0o644); err != nil {
		t.Fatalf("write clip: %v", err)
	}
	return path
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
