package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// ErrUnknownKey reports a key that is not part of the resolver table.
var ErrUnknownKey = errors.New("unknown config key")

// Source identifies which layer produced a resolved value.
type Source string

const (
	SourceEnv     Source = "env"
	SourceStore   Source = "store"
	SourceDefault Source = "default"
)

// Store persists operator overrides. The queue store satisfies it.
type Store interface {
	GetConfig(ctx context.Context, key string) (string, bool, error)
	SetConfig(ctx context.Context, key, value string) error
	AllConfig(ctx context.Context) (map[string]string, error)
}

// Key describes one resolvable setting.
type Key struct {
	Name     string
	Env      string
	Secret   bool
	fallback func(*Config) string
	validate func(string) error
}

// Value is a resolved setting along with the layer it came from.
type Value struct {
	Key    string
	Value  string
	Source Source
	Secret bool
}

var keyTable = []Key{
	{Name: "pipeline.engine", Env: "PIPELINE_ENGINE", fallback: func(c *Config) string { return c.Pipeline.Engine }},
	{Name: "pipeline.publish_mode", Env: "PUBLISH_MODE", fallback: func(c *Config) string { return c.Pipeline.PublishMode }, validate: validatePublishMode},
	{Name: "pipeline.max_posts_per_day", Env: "MAX_POSTS_PER_DAY", fallback: func(c *Config) string { return strconv.Itoa(c.Pipeline.MaxPostsPerDay) }, validate: validateNonNegativeInt},
	{Name: "pipeline.duplicate_detection", Env: "DUPLICATE_DETECTION", fallback: func(c *Config) string { return strconv.FormatBool(c.Pipeline.DuplicateDetection) }, validate: validateBool},
	{Name: "pipeline.kill_switch_path", Env: "KILL_SWITCH_PATH", fallback: func(c *Config) string { return c.Pipeline.KillSwitchPath }},
	{Name: "scheduler.enabled", Env: "SCHEDULER_ENABLED", fallback: func(c *Config) string { return strconv.FormatBool(c.Scheduler.Enabled) }, validate: validateBool},
	{Name: "scheduler.timezone", Env: "TIMEZONE", fallback: func(c *Config) string { return c.Scheduler.Timezone }, validate: validateTimezone},
	{Name: "scheduler.cron", Env: "SCHEDULER_CRON", fallback: func(c *Config) string { return c.Scheduler.Cron }, validate: validateCron},
	{Name: "provider.script", Env: "SCRIPT_PROVIDER", fallback: func(c *Config) string { return c.Providers.Script }},
	{Name: "provider.tts", Env: "TTS_PROVIDER", fallback: func(c *Config) string { return c.Providers.TTS }},
	{Name: "provider.renderer", Env: "RENDERER_PROVIDER", fallback: func(c *Config) string { return c.Providers.Renderer }},
	{Name: "provider.storage", Env: "STORAGE_PROVIDER", fallback: func(c *Config) string { return c.Providers.Storage }},
	{Name: "provider.publisher", Env: "PUBLISHER_PROVIDER", fallback: func(c *Config) string { return c.Providers.Publisher }},
	{Name: "tts.voice", Env: "TTS_VOICE", fallback: func(c *Config) string { return c.TTS.Voice }},
	{Name: "openai.api_key", Env: "OPENAI_API_KEY", Secret: true, fallback: func(c *Config) string { return c.OpenAI.APIKey }},
	{Name: "openai.model", Env: "OPENAI_MODEL", fallback: func(c *Config) string { return c.OpenAI.Model }},
	{Name: "openai.base_url", Env: "OPENAI_BASE_URL", fallback: func(c *Config) string { return c.OpenAI.BaseURL }},
	{Name: "r2.account_id", Env: "R2_ACCOUNT_ID", fallback: func(c *Config) string { return c.R2.AccountID }},
	{Name: "r2.access_key_id", Env: "R2_ACCESS_KEY_ID", Secret: true, fallback: func(c *Config) string { return c.R2.AccessKeyID }},
	{Name: "r2.secret_access_key", Env: "R2_SECRET_ACCESS_KEY", Secret: true, fallback: func(c *Config) string { return c.R2.SecretAccessKey }},
	{Name: "r2.bucket", Env: "R2_BUCKET", fallback: func(c *Config) string { return c.R2.Bucket }},
	{Name: "r2.public_base_url", Env: "R2_PUBLIC_BASE_URL", fallback: func(c *Config) string { return c.R2.PublicBaseURL }},
	{Name: "ig.access_token", Env: "IG_ACCESS_TOKEN", Secret: true, fallback: func(c *Config) string { return c.Instagram.AccessToken }},
	{Name: "ig.user_id", Env: "IG_IG_USER_ID", fallback: func(c *Config) string { return c.Instagram.UserID }},
	{Name: "meta.app_id", Env: "META_APP_ID", fallback: func(c *Config) string { return c.Instagram.AppID }},
	{Name: "meta.app_secret", Env: "META_APP_SECRET", Secret: true, fallback: func(c *Config) string { return c.Instagram.AppSecret }},
	{Name: "tunnel.enabled", Env: "TUNNEL_ENABLED", fallback: func(c *Config) string { return strconv.FormatBool(c.Tunnel.Enabled) }, validate: validateBool},
	{Name: "tunnel.port", Env: "TUNNEL_PORT", fallback: func(c *Config) string { return strconv.Itoa(c.Tunnel.Port) }, validate: validatePort},
	{Name: "tunnel.timeout_secs", Env: "TUNNEL_TIMEOUT_SECS", fallback: func(c *Config) string { return strconv.Itoa(c.Tunnel.TimeoutSecs) }, validate: validateNonNegativeInt},
	{Name: "notifications.ntfy_topic", Env: "NTFY_TOPIC", fallback: func(c *Config) string { return c.Notifications.NtfyTopic }},
}

var keyIndex = func() map[string]Key {
	index := make(map[string]Key, len(keyTable))
	for _, k := range keyTable {
		index[k.Name] = k
	}
	return index
}()

// Keys returns the resolver table sorted by key name.
func Keys() []Key {
	keys := append([]Key(nil), keyTable...)
	sort.Slice(keys, func(i, j int) bool { return keys[i].Name < keys[j].Name })
	return keys
}

// LookupKey returns the table entry for name.
func LookupKey(name string) (Key, bool) {
	k, ok := keyIndex[strings.TrimSpace(name)]
	return k, ok
}

// Resolver merges environment, persisted, and file-level settings.
type Resolver struct {
	cfg   *Config
	store Store
}

// NewResolver constructs a resolver. A nil store disables the persisted layer.
func NewResolver(cfg *Config, store Store) *Resolver {
	if cfg == nil {
		def := Default()
		cfg = &def
	}
	return &Resolver{cfg: cfg, store: store}
}

// Config returns the file-level configuration backing the default layer.
func (r *Resolver) Config() *Config {
	return r.cfg
}

// Lookup resolves key and reports which layer supplied the value.
func (r *Resolver) Lookup(ctx context.Context, name string) (Value, error) {
	key, ok := LookupKey(name)
	if !ok {
		return Value{}, fmt.Errorf("%w: %q", ErrUnknownKey, name)
	}
	return r.resolve(ctx, key, nil)
}

// Get resolves key to its effective value.
func (r *Resolver) Get(ctx context.Context, name string) (string, error) {
	v, err := r.Lookup(ctx, name)
	if err != nil {
		return "", err
	}
	return v.Value, nil
}

// Int resolves key and parses it as a base-10 integer.
func (r *Resolver) Int(ctx context.Context, name string) (int, error) {
	raw, err := r.Get(ctx, name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s: parse %q as integer: %w", name, raw, err)
	}
	return n, nil
}

// Bool resolves key and parses it as a boolean.
func (r *Resolver) Bool(ctx context.Context, name string) (bool, error) {
	raw, err := r.Get(ctx, name)
	if err != nil {
		return false, err
	}
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Errorf("%s: parse %q as bool: %w", name, raw, err)
	}
	return b, nil
}

// Set persists an override for key. Unknown keys and invalid values are rejected.
func (r *Resolver) Set(ctx context.Context, name, value string) error {
	key, ok := LookupKey(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKey, name)
	}
	if r.store == nil {
		return errors.New("config store unavailable")
	}
	value = strings.TrimSpace(value)
	if key.validate != nil {
		if err := key.validate(value); err != nil {
			return fmt.Errorf("%s: %w", key.Name, err)
		}
	}
	return r.store.SetConfig(ctx, key.Name, value)
}

// All resolves every key in the table.
func (r *Resolver) All(ctx context.Context) ([]Value, error) {
	var persisted map[string]string
	if r.store != nil {
		var err error
		persisted, err = r.store.AllConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load persisted config: %w", err)
		}
	}
	keys := Keys()
	values := make([]Value, 0, len(keys))
	for _, key := range keys {
		v, err := r.resolve(ctx, key, persisted)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

func (r *Resolver) resolve(ctx context.Context, key Key, persisted map[string]string) (Value, error) {
	out := Value{Key: key.Name, Secret: key.Secret}
	if key.Env != "" {
		if env, ok := os.LookupEnv(key.Env); ok && strings.TrimSpace(env) != "" {
			out.Value = strings.TrimSpace(env)
			out.Source = SourceEnv
			return out, nil
		}
	}
	if persisted != nil {
		if stored, ok := persisted[key.Name]; ok {
			out.Value = stored
			out.Source = SourceStore
			return out, nil
		}
	} else if r.store != nil {
		stored, ok, err := r.store.GetConfig(ctx, key.Name)
		if err != nil {
			return Value{}, fmt.Errorf("read config %s: %w", key.Name, err)
		}
		if ok {
			out.Value = stored
			out.Source = SourceStore
			return out, nil
		}
	}
	out.Value = key.fallback(r.cfg)
	out.Source = SourceDefault
	return out, nil
}

// Mask hides secret values for display.
func (v Value) Mask() string {
	if !v.Secret || v.Value == "" {
		return v.Value
	}
	if len(v.Value) <= 4 {
		return "****"
	}
	return v.Value[:2] + strings.Repeat("*", 6) + v.Value[len(v.Value)-2:]
}

func validateBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("expected boolean, got %q", value)
	}
	return nil
}

func validateNonNegativeInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return fmt.Errorf("expected non-negative integer, got %q", value)
	}
	return nil
}

func validatePort(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 || n > 65535 {
		return fmt.Errorf("expected port 1-65535, got %q", value)
	}
	return nil
}
