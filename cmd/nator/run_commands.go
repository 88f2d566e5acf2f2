package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"nator/internal/scheduler"
	"nator/internal/workflow"
)

func newRunCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newRunCommand(ctx),
		newRetryCommand(ctx),
		newRequeueCommand(ctx),
		newRecoverCommand(ctx),
	}
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var jobID string
	var watch bool
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the next job (or a specific one) through the pipeline",
		Long: "Run advances one job through script, tts, render, upload, and publish.\n" +
			"Without --job the oldest pending job runs, or a new job is created from the\n" +
			"oldest unused clip. --watch keeps polling until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if watch && strings.TrimSpace(jobID) != "" {
				return fmt.Errorf("--job and --watch cannot be combined")
			}
			return ctx.withWorker(func(rt *runtime) error {
				out := cmd.OutOrStdout()
				switch {
				case strings.TrimSpace(jobID) != "":
					res, err := rt.executor.RunJob(cmd.Context(), strings.TrimSpace(jobID))
					if err != nil {
						return err
					}
					return reportResult(out, res)
				case watch:
					return watchJobs(cmd.Context(), out, rt, interval)
				default:
					tick, err := rt.scheduler.Tick(cmd.Context())
					if err != nil {
						return err
					}
					if tick.Outcome == scheduler.OutcomeIdle {
						fmt.Fprintln(out, "Nothing to run: no pending jobs or available clips")
						return nil
					}
					return reportResult(out, tick.Result)
				}
			})
		},
	}
	cmd.Flags().StringVar(&jobID, "job", "", "Run this job instead of the next one")
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep polling for work until interrupted")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Poll interval for --watch (default scheduler.poll_interval)")
	return cmd
}

func watchJobs(parent context.Context, out io.Writer, rt *runtime, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Duration(rt.cfg.Scheduler.PollInterval) * time.Second
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	recovered, err := rt.executor.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover interrupted jobs: %w", err)
	}
	if len(recovered) > 0 {
		fmt.Fprintf(out, "Marked %d interrupted job(s) as failed\n", len(recovered))
	}
	fmt.Fprintf(out, "Watching for work every %s (Ctrl+C to stop)\n", interval)
	return rt.scheduler.Poll(ctx, interval)
}

func reportResult(out io.Writer, res workflow.Result) error {
	if res.Success {
		fmt.Fprintf(out, "Job %s done in %s\n", res.JobID, res.Duration.Round(time.Millisecond))
		return nil
	}
	return fmt.Errorf("job %s failed during %s: %s (resume with `nator retry %s`)",
		res.JobID, stateLabel(res.State), res.Error, res.JobID)
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Resume a failed job from the stage after its last good state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withWorker(func(rt *runtime) error {
				res, err := rt.executor.RetryJob(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				return reportResult(cmd.OutOrStdout(), res)
			})
		},
	}
}

func newRequeueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <id>",
		Short: "Send a failed job back to pending so it restarts from scripting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(func(rt *runtime) error {
				job, err := rt.executor.RequeueJob(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s requeued (%s)\n", job.ID, stateLabel(job.State))
				return nil
			})
		},
	}
}

func newRecoverCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Mark jobs left mid-stage by a crash as failed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withWorker(func(rt *runtime) error {
				jobs, err := rt.executor.Recover(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(jobs) == 0 {
					fmt.Fprintln(out, "No interrupted jobs")
					return nil
				}
				for _, job := range jobs {
					fmt.Fprintf(out, "Job %s failed (interrupted); resume with `nator retry %s`\n", job.ID, job.ID)
				}
				return nil
			})
		},
	}
}
