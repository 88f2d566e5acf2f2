package daemon_test

import (
	"context"
	"errors"
	"testing"

	"nator/internal/config"
	"nator/internal/daemon"
	"nator/internal/jobstate"
	"nator/internal/providers"
	"nator/internal/providers/mock"
	"nator/internal/queue"
	"nator/internal/scheduler"
	"nator/internal/testsupport"
	"nator/internal/workflow"
)

func newDaemon(t *testing.T) (*daemon.Daemon, *queue.Store, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	resolver := config.NewResolver(cfg, store)
	reg := providers.NewRegistry(providers.Env{Config: cfg, Settings: resolver})
	mock.Register(reg)
	exec := workflow.NewExecutor(cfg, store, reg, resolver)
	d, err := daemon.New(cfg, store, exec, scheduler.New(exec, resolver, nil), nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	return d, store, cfg
}

func TestDaemonStartStop(t *testing.T) {
	d, _, cfg := newDaemon(t)
	ctx := context.Background()

	if _, err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := d.Status()
	if !status.Running || status.NextRun.IsZero() || status.LockPath != cfg.LockPath() {
		t.Fatalf("unexpected status: %+v", status)
	}
	if _, err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}
	if _, err := daemon.AcquireLock(cfg); !errors.Is(err, daemon.ErrLocked) {
		t.Fatalf("expected ErrLocked while running, got %v", err)
	}

	d.Stop()
	if d.Status().Running {
		t.Fatal("expected daemon to be stopped")
	}
	lock, err := daemon.AcquireLock(cfg)
	if err != nil {
		t.Fatalf("lock should be free after Stop: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
}

func TestDaemonStartRecoversInterruptedJobs(t *testing.T) {
	d, store, _ := newDaemon(t)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, queue.NewJob{})
	if _, err := store.TransitionJob(ctx, job.ID, queue.Transition{To: jobstate.Scripting}); err != nil {
		t.Fatalf("TransitionJob failed: %v", err)
	}

	recovered, err := d.Start(ctx)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if recovered != 1 || d.Status().Recovered != 1 {
		t.Fatalf("expected one recovered job, got %d", recovered)
	}
	got, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.State != jobstate.Failed || got.ErrorMessage != queue.InterruptedReason {
		t.Fatalf("unexpected job after recovery: %+v", got)
	}
}

func TestDaemonRefusesWhileLockHeld(t *testing.T) {
	d, _, cfg := newDaemon(t)
	lock, err := daemon.AcquireLock(cfg)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	defer lock.Release()

	if _, err := d.Start(context.Background()); !errors.Is(err, daemon.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}
