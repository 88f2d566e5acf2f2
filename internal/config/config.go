package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir   string `toml:"data_dir"`
	WorkDir   string `toml:"work_dir"`
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
	EnvFile   string `toml:"env_file"`
}

// Pipeline contains the safety gates and publishing behaviour of the executor.
type Pipeline struct {
	PublishMode        string `toml:"publish_mode"`
	MaxPostsPerDay     int    `toml:"max_posts_per_day"`
	KillSwitchPath     string `toml:"kill_switch_path"`
	Engine             string `toml:"engine"`
	DuplicateDetection bool   `toml:"duplicate_detection"`
}

// Scheduler contains the cron trigger settings and the watch-mode poll interval.
type Scheduler struct {
	Enabled      bool   `toml:"enabled"`
	Timezone     string `toml:"timezone"`
	Cron         string `toml:"cron"`
	PollInterval int    `toml:"poll_interval"`
}

// Providers names the active implementation for each capability kind.
type Providers struct {
	Script    string `toml:"script"`
	TTS       string `toml:"tts"`
	Renderer  string `toml:"renderer"`
	Storage   string `toml:"storage"`
	Publisher string `toml:"publisher"`
}

// OpenAI configures the LLM-backed script writer.
type OpenAI struct {
	APIKey         string  `toml:"api_key"`
	Model          string  `toml:"model"`
	BaseURL        string  `toml:"base_url"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	Temperature    float64 `toml:"temperature"`
}

// TTS configures the edge-tts speech synthesizer.
type TTS struct {
	Voice  string `toml:"voice"`
	Binary string `toml:"binary"`
}

// Render configures the ffmpeg renderer.
type Render struct {
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
	MaxSeconds    int    `toml:"max_seconds"`
	Width         int    `toml:"width"`
	Height        int    `toml:"height"`
}

// R2 contains Cloudflare R2 object storage credentials.
type R2 struct {
	AccountID       string `toml:"account_id"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	Bucket          string `toml:"bucket"`
	PublicBaseURL   string `toml:"public_base_url"`
}

// Tunnel configures the cloudflared quick-tunnel storage provider.
type Tunnel struct {
	Enabled     bool   `toml:"enabled"`
	Port        int    `toml:"port"`
	TimeoutSecs int    `toml:"timeout_secs"`
	Binary      string `toml:"binary"`
}

// Instagram contains Graph API publishing settings.
type Instagram struct {
	AccessToken         string `toml:"access_token"`
	UserID              string `toml:"user_id"`
	AppID               string `toml:"app_id"`
	AppSecret           string `toml:"app_secret"`
	GraphBaseURL        string `toml:"graph_base_url"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	PollTimeoutSeconds  int    `toml:"poll_timeout_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	JobCompleted   bool   `toml:"job_completed"`
	JobFailed      bool   `toml:"job_failed"`
	Safety         bool   `toml:"safety"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all file-level configuration values for nator.
//
// Values here form the default layer of the Resolver; keys listed in the
// resolver table may still be overridden by the persisted config table or
// by environment variables.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Scheduler     Scheduler     `toml:"scheduler"`
	Providers     Providers     `toml:"providers"`
	OpenAI        OpenAI        `toml:"openai"`
	TTS           TTS           `toml:"tts"`
	Render        Render        `toml:"render"`
	R2            R2            `toml:"r2"`
	Tunnel        Tunnel        `toml:"tunnel"`
	Instagram     Instagram     `toml:"instagram"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. Environment files
// are loaded before normalization so their values are visible to the resolver.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := LoadEnvFiles(cfg.Paths.EnvFile, defaultEnvFile); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("nator.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data, work, output, and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.WorkDir, c.Paths.OutputDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "nator.db")
}

// LockPath returns the worker lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "worker.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
