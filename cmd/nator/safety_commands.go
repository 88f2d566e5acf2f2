package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newHaltCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "halt [reason]",
		Short: "Engage the kill switch so no job starts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(func(rt *runtime) error {
				path, halted, err := rt.executor.KillSwitch(cmd.Context())
				if err != nil {
					return err
				}
				if path == "" {
					return errors.New("pipeline.kill_switch_path is empty")
				}
				out := cmd.OutOrStdout()
				if halted {
					fmt.Fprintf(out, "Kill switch already engaged at %s\n", path)
					return nil
				}
				reason := strings.TrimSpace(strings.Join(args, " "))
				if reason == "" {
					reason = "halted by operator"
				}
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					return fmt.Errorf("create kill switch directory: %w", err)
				}
				body := fmt.Sprintf("%s\n%s\n", time.Now().UTC().Format(time.RFC3339), reason)
				if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
					return fmt.Errorf("write kill switch: %w", err)
				}
				fmt.Fprintf(out, "Kill switch engaged at %s\n", path)
				return nil
			})
		},
	}
}

func newResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Remove the kill switch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(func(rt *runtime) error {
				path, _, err := rt.executor.KillSwitch(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if path == "" {
					fmt.Fprintln(out, "No kill switch configured")
					return nil
				}
				if err := os.Remove(path); err != nil {
					if errors.Is(err, fs.ErrNotExist) {
						fmt.Fprintln(out, "Kill switch was not engaged")
						return nil
					}
					return fmt.Errorf("remove kill switch: %w", err)
				}
				fmt.Fprintf(out, "Kill switch cleared (%s)\n", path)
				return nil
			})
		},
	}
}
