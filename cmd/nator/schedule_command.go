package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"nator/internal/daemon"
)

func newScheduleCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run jobs on the configured cron schedule until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime("stdout")
			if err != nil {
				return err
			}
			defer rt.Close()

			enabled, err := rt.settings.Bool(cmd.Context(), "scheduler.enabled")
			if err != nil {
				return err
			}
			if !enabled && !force {
				return errors.New("scheduler is disabled; run `nator config set scheduler.enabled true` or pass --force")
			}

			d, err := daemon.New(rt.cfg, rt.store, rt.executor, rt.scheduler, rt.logger)
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			recovered, err := d.Start(runCtx)
			if err != nil {
				return err
			}
			status := d.Status()
			out := cmd.OutOrStdout()
			if recovered > 0 {
				fmt.Fprintf(out, "Marked %d interrupted job(s) as failed\n", recovered)
			}
			fmt.Fprintf(out, "Scheduler running; next run %s (Ctrl+C to stop)\n", formatTime(status.NextRun))
			<-runCtx.Done()
			d.Stop()
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Run even when scheduler.enabled is false")
	return cmd
}
