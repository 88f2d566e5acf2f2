package main

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"nator/internal/config"
	"nator/internal/daemon"
	"nator/internal/logging"
	"nator/internal/notifications"
	"nator/internal/providers"
	"nator/internal/providers/builtin"
	"nator/internal/queue"
	"nator/internal/scheduler"
	"nator/internal/workflow"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) flagPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, _, err := config.Load(c.flagPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = path
	})
	return c.config, c.configErr
}

// runtime bundles everything a command needs to touch the pipeline.
type runtime struct {
	cfg       *config.Config
	store     *queue.Store
	settings  *config.Resolver
	registry  *providers.Registry
	executor  *workflow.Executor
	scheduler *scheduler.Scheduler
	logger    *slog.Logger
}

func (r *runtime) Close() error {
	if r == nil || r.store == nil {
		return nil
	}
	return r.store.Close()
}

// openRuntime wires the store, resolver, registry, and executor. Console log
// lines go to consoleOutput ("stdout" or "stderr"); the log file always
// receives a copy.
func (c *commandContext) openRuntime(consoleOutput string) (*runtime, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{consoleOutput, filepath.Join(cfg.Paths.LogDir, "nator.log")},
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}
	settings := config.NewResolver(cfg, store)
	registry := builtin.NewRegistry(providers.Env{Config: cfg, Settings: settings, Logger: logger})
	executor := workflow.NewExecutor(cfg, store, registry, settings,
		workflow.WithLogger(logger),
		workflow.WithNotifier(notifications.NewService(cfg)),
	)
	return &runtime{
		cfg:       cfg,
		store:     store,
		settings:  settings,
		registry:  registry,
		executor:  executor,
		scheduler: scheduler.New(executor, settings, logger),
		logger:    logger,
	}, nil
}

func (c *commandContext) withRuntime(fn func(*runtime) error) error {
	rt, err := c.openRuntime("stderr")
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}

// withWorker runs fn while holding the worker lock.
func (c *commandContext) withWorker(fn func(*runtime) error) error {
	return c.withRuntime(func(rt *runtime) error {
		lock, err := daemon.AcquireLock(rt.cfg)
		if err != nil {
			if errors.Is(err, daemon.ErrLocked) {
				return fmt.Errorf("%w; stop `nator schedule` before running jobs by hand", err)
			}
			return err
		}
		defer lock.Release()
		return fn(rt)
	})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
