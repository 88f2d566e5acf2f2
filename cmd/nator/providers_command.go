package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"nator/internal/providers"
)

func newProvidersCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List registered providers and the active one per capability",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(func(rt *runtime) error {
				rows := make([][]string, 0, len(providers.Kinds()))
				for _, kind := range providers.Kinds() {
					active, err := rt.registry.ActiveName(cmd.Context(), kind)
					if err != nil {
						return err
					}
					if !rt.registry.Has(kind, active) {
						active += " (not registered)"
					}
					rows = append(rows, []string{
						string(kind),
						active,
						kind.ConfigKey(),
						strings.Join(rt.registry.List(kind), ", "),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Capability", "Active", "Key", "Available"}, rows, nil))
				return nil
			})
		},
	}
}
