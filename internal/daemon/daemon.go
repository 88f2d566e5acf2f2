package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"nator/internal/config"
	"nator/internal/logging"
	"nator/internal/queue"
	"nator/internal/scheduler"
	"nator/internal/workflow"
)

// ErrLocked reports that another nator process holds the worker lock.
var ErrLocked = errors.New("another nator worker is already running")

// Lock is a held worker lock.
type Lock struct {
	path string
	fl   *flock.Flock
}

// AcquireLock takes the worker lock without waiting.
func AcquireLock(cfg *config.Config) (*Lock, error) {
	path := cfg.LockPath()
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock: %s)", ErrLocked, path)
	}
	return &Lock{path: path, fl: fl}, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string { return l.path }

// Release drops the lock. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}

// Daemon runs the scheduler under the worker lock.
type Daemon struct {
	cfg       *config.Config
	store     *queue.Store
	executor  *workflow.Executor
	scheduler *scheduler.Scheduler
	logger    *slog.Logger

	lock      *Lock
	running   atomic.Bool
	started   time.Time
	recovered int
}

// Status is a snapshot of the daemon.
type Status struct {
	Running   bool
	Ticking   bool
	StartedAt time.Time
	NextRun   time.Time
	LockPath  string
	DBPath    string
	Recovered int
}

// New wires a daemon. Nothing runs until Start.
func New(cfg *config.Config, store *queue.Store, executor *workflow.Executor, sched *scheduler.Scheduler, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || executor == nil || sched == nil {
		return nil, errors.New("daemon requires config, store, executor, and scheduler")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Daemon{
		cfg:       cfg,
		store:     store,
		executor:  executor,
		scheduler: sched,
		logger:    logging.NewComponentLogger(logger, "daemon"),
	}, nil
}

// Start takes the lock, fails interrupted jobs, and starts the scheduler.
// It returns the number of jobs it recovered.
func (d *Daemon) Start(ctx context.Context) (int, error) {
	if d.running.Load() {
		return 0, errors.New("daemon already running")
	}
	lock, err := AcquireLock(d.cfg)
	if err != nil {
		return 0, err
	}

	recovered, err := d.executor.Recover(ctx)
	if err != nil {
		_ = lock.Release()
		return 0, fmt.Errorf("recover interrupted jobs: %w", err)
	}
	if err := d.scheduler.Start(ctx); err != nil {
		_ = lock.Release()
		return len(recovered), fmt.Errorf("start scheduler: %w", err)
	}

	d.lock = lock
	d.started = time.Now()
	d.recovered = len(recovered)
	d.running.Store(true)
	d.logger.Info("nator daemon started",
		logging.String("lock", lock.Path()),
		logging.Int("recovered_jobs", len(recovered)),
		logging.String(logging.FieldEventType, "daemon_start"),
	)
	return len(recovered), nil
}

// Stop halts the scheduler, waiting for an in-flight tick, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.scheduler.Stop()
	if err := d.lock.Release(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release worker lock", "lock_release_failed",
			logging.String("lock", d.lock.Path()),
			logging.Error(err),
			logging.String(logging.FieldImpact, "the next start may report a stale lock"),
		)
	}
	d.lock = nil
	d.running.Store(false)
	d.logger.Info("nator daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Run starts the daemon and blocks until ctx is done.
func (d *Daemon) Run(ctx context.Context) error {
	if _, err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	d.Stop()
	return nil
}

// Status reports the current daemon state.
func (d *Daemon) Status() Status {
	return Status{
		Running:   d.running.Load(),
		Ticking:   d.scheduler.Running(),
		StartedAt: d.started,
		NextRun:   d.scheduler.NextRun(),
		LockPath:  d.cfg.LockPath(),
		DBPath:    d.store.Path(),
		Recovered: d.recovered,
	}
}
