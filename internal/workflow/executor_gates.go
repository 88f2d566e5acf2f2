package workflow

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
)

const (
	keyKillSwitch = "pipeline.kill_switch_path"
	keyMaxPosts   = "pipeline.max_posts_per_day"
	keyTimezone   = "scheduler.timezone"
	keyPublish    = "pipeline.publish_mode"
	keyDuplicates = "pipeline.duplicate_detection"
)

// KillSwitch reports the sentinel path and whether it currently exists.
func (e *Executor) KillSwitch(ctx context.Context) (string, bool, error) {
	path, err := e.settings.Get(ctx, keyKillSwitch)
	if err != nil {
		return "", false, err
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return "", false, nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return path, false, nil
		}
		return path, false, fmt.Errorf("check kill switch: %w", err)
	}
	return path, true, nil
}

// Quota returns the number of jobs completed today and the daily limit.
// "Today" is the current date in the scheduler timezone.
func (e *Executor) Quota(ctx context.Context) (int, int, error) {
	limit, err := e.settings.Int(ctx, keyMaxPosts)
	if err != nil {
		return 0, 0, err
	}
	loc, err := e.location(ctx)
	if err != nil {
		return 0, limit, err
	}
	start, end := DayBounds(e.now(), loc)
	count, err := e.store.CountDoneBetween(ctx, start, end)
	if err != nil {
		return 0, limit, err
	}
	return count, limit, nil
}

// checkGates enforces the kill switch and the daily quota. Neither check
// touches job state.
func (e *Executor) checkGates(ctx context.Context) error {
	path, halted, err := e.KillSwitch(ctx)
	if err != nil {
		return err
	}
	if halted {
		return fmt.Errorf("%w: remove %s to continue", ErrSafetyHalt, path)
	}
	count, limit, err := e.Quota(ctx)
	if err != nil {
		return err
	}
	if count >= limit {
		return &QuotaError{Count: count, Limit: limit}
	}
	return nil
}

// QuotaError carries the counts behind ErrQuotaExceeded.
type QuotaError struct {
	Count int
	Limit int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("daily post limit reached (%d/%d), try again tomorrow", e.Count, e.Limit)
}

func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }

func (e *Executor) location(ctx context.Context) (*time.Location, error) {
	name, err := e.settings.Get(ctx, keyTimezone)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}

// DayBounds returns the half-open interval covering t's calendar day in loc.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
