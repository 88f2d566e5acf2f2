package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePipeline()
	c.normalizeProviders()
	c.normalizeIntegrations()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	derived := []struct {
		field *string
		name  string
		sub   string
	}{
		{&c.Paths.WorkDir, "paths.work_dir", "tmp"},
		{&c.Paths.OutputDir, "paths.output_dir", "outputs"},
		{&c.Paths.LogDir, "paths.log_dir", "logs"},
	}
	for _, d := range derived {
		if strings.TrimSpace(*d.field) == "" {
			*d.field = filepath.Join(c.Paths.DataDir, d.sub)
		}
		if *d.field, err = expandPath(*d.field); err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
	}
	if strings.TrimSpace(c.Paths.EnvFile) != "" {
		if c.Paths.EnvFile, err = expandPath(c.Paths.EnvFile); err != nil {
			return fmt.Errorf("paths.env_file: %w", err)
		}
	}
	if strings.TrimSpace(c.Pipeline.KillSwitchPath) == "" {
		c.Pipeline.KillSwitchPath = filepath.Join(c.Paths.DataDir, "KILL_SWITCH")
	}
	if c.Pipeline.KillSwitchPath, err = expandPath(c.Pipeline.KillSwitchPath); err != nil {
		return fmt.Errorf("pipeline.kill_switch_path: %w", err)
	}
	return nil
}

func (c *Config) normalizePipeline() {
	c.Pipeline.PublishMode = strings.ToLower(strings.TrimSpace(c.Pipeline.PublishMode))
	if c.Pipeline.PublishMode == "" {
		c.Pipeline.PublishMode = defaultPublishMode
	}
	c.Pipeline.Engine = strings.TrimSpace(c.Pipeline.Engine)
	if c.Pipeline.Engine == "" {
		c.Pipeline.Engine = defaultEngine
	}
	c.Scheduler.Timezone = strings.TrimSpace(c.Scheduler.Timezone)
	if c.Scheduler.Timezone == "" {
		c.Scheduler.Timezone = defaultTimezone
	}
	c.Scheduler.Cron = strings.TrimSpace(c.Scheduler.Cron)
	if c.Scheduler.Cron == "" {
		c.Scheduler.Cron = defaultCron
	}
	if c.Scheduler.PollInterval <= 0 {
		c.Scheduler.PollInterval = defaultPollInterval
	}
}

func (c *Config) normalizeProviders() {
	for _, name := range []*string{
		&c.Providers.Script,
		&c.Providers.TTS,
		&c.Providers.Renderer,
		&c.Providers.Storage,
		&c.Providers.Publisher,
	} {
		*name = strings.ToLower(strings.TrimSpace(*name))
		if *name == "" {
			*name = defaultProvider
		}
	}
}

func (c *Config) normalizeIntegrations() {
	c.OpenAI.APIKey = strings.TrimSpace(c.OpenAI.APIKey)
	c.OpenAI.BaseURL = strings.TrimRight(strings.TrimSpace(c.OpenAI.BaseURL), "/")
	if strings.TrimSpace(c.OpenAI.Model) == "" {
		c.OpenAI.Model = defaultOpenAIModel
	}
	if c.OpenAI.TimeoutSeconds <= 0 {
		c.OpenAI.TimeoutSeconds = defaultOpenAITimeout
	}

	if strings.TrimSpace(c.TTS.Voice) == "" {
		c.TTS.Voice = defaultVoice
	}
	if strings.TrimSpace(c.TTS.Binary) == "" {
		c.TTS.Binary = defaultEdgeTTSBinary
	}

	if strings.TrimSpace(c.Render.FFmpegBinary) == "" {
		c.Render.FFmpegBinary = defaultFFmpegBinary
	}
	if strings.TrimSpace(c.Render.FFprobeBinary) == "" {
		c.Render.FFprobeBinary = defaultFFprobeBinary
	}
	if c.Render.MaxSeconds <= 0 {
		c.Render.MaxSeconds = defaultRenderMaxSeconds
	}
	if c.Render.Width <= 0 {
		c.Render.Width = defaultRenderWidth
	}
	if c.Render.Height <= 0 {
		c.Render.Height = defaultRenderHeight
	}

	c.R2.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.R2.PublicBaseURL), "/")

	if c.Tunnel.Port <= 0 {
		c.Tunnel.Port = defaultTunnelPort
	}
	if c.Tunnel.TimeoutSecs <= 0 {
		c.Tunnel.TimeoutSecs = defaultTunnelTimeout
	}
	if strings.TrimSpace(c.Tunnel.Binary) == "" {
		c.Tunnel.Binary = defaultCloudflaredBinary
	}

	c.Instagram.GraphBaseURL = strings.TrimRight(strings.TrimSpace(c.Instagram.GraphBaseURL), "/")
	if c.Instagram.GraphBaseURL == "" {
		c.Instagram.GraphBaseURL = defaultGraphBaseURL
	}
	if c.Instagram.PollIntervalSeconds <= 0 {
		c.Instagram.PollIntervalSeconds = defaultPublishPollInterval
	}
	if c.Instagram.PollTimeoutSeconds <= 0 {
		c.Instagram.PollTimeoutSeconds = defaultPublishPollTimeout
	}

	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
