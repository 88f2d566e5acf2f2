package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"nator/internal/config"
	"nator/internal/jobstate"
	"nator/internal/logging"
	"nator/internal/notifications"
	"nator/internal/providers"
	"nator/internal/queue"
)

var (
	// ErrSafetyHalt reports that the kill switch file exists.
	ErrSafetyHalt = errors.New("kill switch is active")
	// ErrQuotaExceeded reports that today's publish limit has been reached.
	ErrQuotaExceeded = errors.New("daily post limit reached")
	// ErrNotRunnable reports a job that is neither pending nor failed.
	ErrNotRunnable = errors.New("job is not runnable")
	// ErrNotRetryable reports a retry or requeue of a job that has not failed.
	ErrNotRetryable = errors.New("only failed jobs can be retried")
	// ErrStageFailure matches every StageError.
	ErrStageFailure = errors.New("stage failed")
	// ErrJobNotFound reports an unknown job id.
	ErrJobNotFound = errors.New("job not found")
)

// StageError describes a provider failure inside a stage.
type StageError struct {
	Stage    jobstate.State
	Provider string
	Err      error
}

func (e *StageError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s (%s): %v", e.Stage, e.Provider, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() []error { return []error{ErrStageFailure, e.Err} }

// Result is the outcome of RunJob. On failure State is the stage that failed.
type Result struct {
	JobID    string
	Success  bool
	State    jobstate.State
	Error    string
	Err      error
	Duration time.Duration
}

// Settings resolves runtime keys. *config.Resolver satisfies it.
type Settings interface {
	Get(ctx context.Context, key string) (string, error)
	Int(ctx context.Context, key string) (int, error)
	Bool(ctx context.Context, key string) (bool, error)
}

// Executor runs jobs one at a time.
type Executor struct {
	cfg      *config.Config
	store    *queue.Store
	registry *providers.Registry
	settings Settings
	notifier notifications.Service
	logger   *slog.Logger
	now      func() time.Time
}

// Option customizes an Executor.
type Option func(*Executor)

// WithNotifier overrides the notification service.
func WithNotifier(n notifications.Service) Option {
	return func(e *Executor) {
		if n != nil {
			e.notifier = n
		}
	}
}

// WithLogger sets the executor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides time.Now for quota windows and dry-run ids.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// NewExecutor wires an executor. settings is normally the same resolver the
// registry reads provider names from.
func NewExecutor(cfg *config.Config, store *queue.Store, registry *providers.Registry, settings Settings, opts ...Option) *Executor {
	e := &Executor{
		cfg:      cfg,
		store:    store,
		registry: registry,
		settings: settings,
		notifier: notifications.NewService(cfg),
		logger:   logging.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.NewComponentLogger(e.logger, "workflow")
	return e
}

// Store exposes the backing store to callers that share the executor.
func (e *Executor) Store() *queue.Store {
	return e.store
}

// Registry exposes the provider registry.
func (e *Executor) Registry() *providers.Registry {
	return e.registry
}

func (e *Executor) loadJob(ctx context.Context, id string) (*queue.Job, error) {
	job, err := e.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job %s: %w", id, ErrJobNotFound)
	}
	return job, nil
}
