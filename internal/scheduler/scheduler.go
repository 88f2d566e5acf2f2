package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"nator/internal/logging"
	"nator/internal/queue"
	"nator/internal/workflow"
)

const (
	keyCron     = "scheduler.cron"
	keyTimezone = "scheduler.timezone"
)

// Runner selects and runs jobs. *workflow.Executor satisfies it.
type Runner interface {
	NextJob(ctx context.Context) (*queue.Job, error)
	RunJob(ctx context.Context, jobID string) (workflow.Result, error)
}

// Settings resolves the schedule keys.
type Settings interface {
	Get(ctx context.Context, key string) (string, error)
}

// Outcome describes what a tick did.
type Outcome string

const (
	OutcomeIdle    Outcome = "idle"
	OutcomeSkipped Outcome = "skipped"
	OutcomeRan     Outcome = "ran"
	OutcomeBlocked Outcome = "blocked"
)

// TickResult reports one tick.
type TickResult struct {
	Outcome Outcome
	JobID   string
	Result  workflow.Result
}

// Scheduler owns the cron driver and the non-overlap guard.
type Scheduler struct {
	runner   Runner
	settings Settings
	logger   *slog.Logger

	busy atomic.Bool

	mu       sync.Mutex
	cron     *cron.Cron
	entry    cron.EntryID
	spec     string
	location *time.Location
	cancel   context.CancelFunc
}

// New returns a stopped scheduler.
func New(runner Runner, settings Settings, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scheduler{
		runner:   runner,
		settings: settings,
		logger:   logging.NewComponentLogger(logger, "scheduler"),
	}
}

// Tick runs at most one job. It returns OutcomeSkipped without doing anything
// when another tick is in flight.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, error) {
	if !s.busy.CompareAndSwap(false, true) {
		s.logger.Debug("tick skipped, previous tick still running")
		return TickResult{Outcome: OutcomeSkipped}, nil
	}
	defer s.busy.Store(false)

	job, err := s.runner.NextJob(ctx)
	if err != nil {
		return TickResult{}, fmt.Errorf("select job: %w", err)
	}
	if job == nil {
		s.logger.Debug("tick idle, no pending jobs or available clips")
		return TickResult{Outcome: OutcomeIdle}, nil
	}

	result, err := s.runner.RunJob(ctx, job.ID)
	if err != nil {
		if errors.Is(err, workflow.ErrSafetyHalt) || errors.Is(err, workflow.ErrQuotaExceeded) {
			return TickResult{Outcome: OutcomeBlocked, JobID: job.ID, Result: result}, err
		}
		return TickResult{JobID: job.ID, Result: result}, err
	}
	return TickResult{Outcome: OutcomeRan, JobID: job.ID, Result: result}, nil
}

// Running reports whether a tick is in flight.
func (s *Scheduler) Running() bool {
	return s.busy.Load()
}

// Start registers the cron entry using scheduler.cron in scheduler.timezone
// and starts the driver. Ticks run with ctx until Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("scheduler already started")
	}

	spec, loc, err := s.schedule(ctx)
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithLocation(loc))
	entry, err := c.AddFunc(spec, func() { s.cronTick(runCtx) })
	if err != nil {
		cancel()
		return fmt.Errorf("register schedule %q: %w", spec, err)
	}
	c.Start()

	s.cron, s.entry, s.spec, s.location, s.cancel = c, entry, spec, loc, cancel
	s.logger.Info("scheduler started",
		logging.String("cron", spec),
		logging.String("timezone", loc.String()),
		logging.String("next_run", c.Entry(entry).Next.Format(time.RFC3339)),
		logging.String(logging.FieldEventType, "scheduler_start"),
	)
	return nil
}

// Stop halts the driver and waits for an in-flight tick to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	cancel()
	s.logger.Info("scheduler stopped", logging.String(logging.FieldEventType, "scheduler_stop"))
}

// NextRun returns the next scheduled tick, or the zero time when stopped.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

// Poll calls Tick immediately and then every interval until ctx is done.
// Tick errors are logged and polling continues.
func (s *Scheduler) Poll(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		s.cronTick(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) cronTick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	res, err := s.Tick(ctx)
	switch {
	case err != nil && res.Outcome == OutcomeBlocked:
		s.logger.Warn("tick blocked",
			logging.String(logging.FieldJobID, res.JobID),
			logging.Error(err),
			logging.String(logging.FieldEventType, "tick_blocked"),
		)
	case err != nil:
		logging.ErrorWithContext(s.logger, "tick failed", "tick_failed",
			logging.String(logging.FieldJobID, res.JobID),
			logging.String(logging.FieldErrorHint, "check nator doctor"),
			logging.Error(err),
		)
	case res.Outcome == OutcomeRan && !res.Result.Success:
		s.logger.Warn("tick finished with failed job",
			logging.String(logging.FieldJobID, res.JobID),
			logging.String(logging.FieldStage, string(res.Result.State)),
			logging.String("error", res.Result.Error),
			logging.String(logging.FieldEventType, "tick_job_failed"),
		)
	case res.Outcome == OutcomeRan:
		s.logger.Info("tick published job",
			logging.String(logging.FieldJobID, res.JobID),
			logging.Duration("duration", res.Result.Duration),
			logging.String(logging.FieldEventType, "tick_complete"),
		)
	}
}

func (s *Scheduler) schedule(ctx context.Context) (string, *time.Location, error) {
	spec, err := s.settings.Get(ctx, keyCron)
	if err != nil {
		return "", nil, err
	}
	spec = strings.TrimSpace(spec)
	if _, err := cron.ParseStandard(spec); err != nil {
		return "", nil, fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	tz, err := s.settings.Get(ctx, keyTimezone)
	if err != nil {
		return "", nil, err
	}
	loc := time.UTC
	if tz = strings.TrimSpace(tz); tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			return "", nil, fmt.Errorf("load timezone %q: %w", tz, err)
		}
	}
	return spec, loc, nil
}
