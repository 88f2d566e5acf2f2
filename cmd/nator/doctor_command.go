package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nator/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, database, binaries, credentials, and providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(func(rt *runtime) error {
				checker := preflight.Checker{
					Config:   rt.cfg,
					Store:    rt.store,
					Registry: rt.registry,
					Settings: rt.settings,
					Gates:    rt.executor,
				}
				results := checker.RunAll(cmd.Context())

				out := cmd.OutOrStdout()
				rows := make([][]string, 0, len(results))
				failures, warnings := 0, 0
				for _, r := range results {
					status := "OK"
					switch {
					case r.Failed():
						status = "FAIL"
						failures++
					case !r.Passed:
						status = "WARN"
						warnings++
					}
					rows = append(rows, []string{r.Group, r.Name, status, dash(r.Detail)})
				}
				fmt.Fprintln(out, renderTable([]string{"Group", "Check", "Status", "Detail"}, rows, nil))

				if !preflight.Passed(results) {
					return fmt.Errorf("doctor found %d problem(s)", failures)
				}
				if warnings > 0 {
					fmt.Fprintf(out, "All required checks passed (%d warning(s))\n", warnings)
					return nil
				}
				fmt.Fprintln(out, "All checks passed")
				return nil
			})
		},
	}
}
