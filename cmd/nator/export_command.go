package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"nator/internal/report"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write jobs and their transition history to an xlsx workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(outPath)
			if target == "" {
				return errors.New("--out is required")
			}
			return ctx.withRuntime(func(rt *runtime) error {
				summary, err := report.Save(cmd.Context(), rt.store, target, rt.logger)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d job(s) and %d transition(s) to %s\n", summary.Jobs, summary.Runs, target)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Destination .xlsx file")
	return cmd
}
