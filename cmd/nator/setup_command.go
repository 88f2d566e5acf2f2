package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"nator/internal/config"
	"nator/internal/queue"
)

func newSetupCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "setup",
		Short:       "Create the config file, directories, and database",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := ctx.flagPath()
			var err error
			if target == "" {
				target, err = config.DefaultConfigPath()
			} else {
				target, err = config.ExpandPath(target)
			}
			if err != nil {
				return fmt.Errorf("resolve config path: %w", err)
			}

			created := false
			if _, err := os.Stat(target); errors.Is(err, fs.ErrNotExist) {
				if err := config.CreateSample(target); err != nil {
					return err
				}
				created = true
			} else if err != nil {
				return fmt.Errorf("check config path: %w", err)
			}

			cfg, _, _, err := config.Load(target)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			store, err := queue.Open(cfg)
			if err != nil {
				return fmt.Errorf("initialize database: %w", err)
			}
			if err := store.Close(); err != nil {
				return fmt.Errorf("close database: %w", err)
			}

			out := cmd.OutOrStdout()
			if created {
				fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			} else {
				fmt.Fprintf(out, "Using existing configuration at %s\n", target)
			}
			rows := [][]string{
				{"Data", cfg.Paths.DataDir},
				{"Work", cfg.Paths.WorkDir},
				{"Outputs", cfg.Paths.OutputDir},
				{"Logs", cfg.Paths.LogDir},
				{"Database", cfg.DatabasePath()},
				{"Kill switch", cfg.Pipeline.KillSwitchPath},
			}
			fmt.Fprintln(out, renderTable([]string{"Item", "Path"}, rows, nil))
			fmt.Fprintln(out, "Next: set credentials (or export them), then run `nator doctor`.")
			return nil
		},
	}
}
