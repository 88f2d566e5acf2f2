package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"nator/internal/queue"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Record source clips for future jobs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(func(rt *runtime) error {
				out := cmd.OutOrStdout()
				failed := 0
				for _, path := range args {
					clip, err := rt.executor.IngestClip(cmd.Context(), path)
					switch {
					case errors.Is(err, queue.ErrDuplicateClip):
						fmt.Fprintf(out, "Skipped %s (already ingested)\n", path)
					case err != nil:
						fmt.Fprintf(cmd.ErrOrStderr(), "Failed %s: %v\n", path, err)
						failed++
					default:
						fmt.Fprintf(out, "Ingested %s as clip %s\n", clip.FilePath, clip.ID)
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d clip(s) failed to ingest", failed, len(args))
				}
				return nil
			})
		},
	}
}

func newCreateCommand(ctx *commandContext) *cobra.Command {
	var clipID, caption, script, scriptFile string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a pending job",
		Long: "Create a pending job. With --script (or --script-file) the scripting stage " +
			"uses the given text instead of calling the script provider.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if scriptFile != "" {
				if script != "" {
					return errors.New("use either --script or --script-file, not both")
				}
				data, err := os.ReadFile(scriptFile)
				if err != nil {
					return fmt.Errorf("read script file: %w", err)
				}
				script = string(data)
			}
			return ctx.withRuntime(func(rt *runtime) error {
				job, err := rt.executor.CreateJob(cmd.Context(), queue.NewJob{
					ClipID:     strings.TrimSpace(clipID),
					Caption:    caption,
					ScriptText: strings.TrimSpace(script),
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created job %s (%s)\n", job.ID, stateLabel(job.State))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&clipID, "clip", "", "Clip ID to use as background footage")
	cmd.Flags().StringVar(&caption, "caption", "", "Caption to publish instead of the generated one")
	cmd.Flags().StringVar(&script, "script", "", "Narration text to use instead of generating one")
	cmd.Flags().StringVar(&scriptFile, "script-file", "", "Read narration text from a file")
	return cmd
}
