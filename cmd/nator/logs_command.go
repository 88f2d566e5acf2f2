package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"nator/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var filter logs.Filter

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print recent log lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := filepath.Join(cfg.Paths.LogDir, "nator.log")
			out := cmd.OutOrStdout()

			recent, offset, err := logs.Tail(path, lines, filter)
			if err != nil {
				return err
			}
			for _, line := range recent {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return logs.Follow(runCtx, path, offset, 0, filter, func(line string) {
				fmt.Fprintln(out, line)
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	cmd.Flags().StringVar(&filter.JobID, "job", "", "Only lines mentioning this job id")
	cmd.Flags().StringVar(&filter.Level, "level", "", "Only lines containing this level (e.g. WARN)")
	return cmd
}
