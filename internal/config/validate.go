package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := validatePublishMode(c.Pipeline.PublishMode); err != nil {
		return fmt.Errorf("pipeline.publish_mode: %w", err)
	}
	if c.Pipeline.MaxPostsPerDay < 0 {
		return errors.New("pipeline.max_posts_per_day must be zero or greater")
	}
	if err := validateTimezone(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}
	if err := validateCron(c.Scheduler.Cron); err != nil {
		return fmt.Errorf("scheduler.cron: %w", err)
	}
	if c.Tunnel.Port > 65535 {
		return fmt.Errorf("tunnel.port %d is out of range", c.Tunnel.Port)
	}
	if c.Instagram.PollIntervalSeconds > c.Instagram.PollTimeoutSeconds {
		return errors.New("instagram.poll_interval_seconds must not exceed instagram.poll_timeout_seconds")
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

func validatePublishMode(value string) error {
	switch value {
	case PublishModeDry, PublishModeLive:
		return nil
	default:
		return fmt.Errorf("must be %q or %q, got %q", PublishModeDry, PublishModeLive, value)
	}
}

func validateTimezone(value string) error {
	if _, err := time.LoadLocation(value); err != nil {
		return fmt.Errorf("unknown timezone %q: %w", value, err)
	}
	return nil
}

func validateCron(value string) error {
	if _, err := cron.ParseStandard(value); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", value, err)
	}
	return nil
}
