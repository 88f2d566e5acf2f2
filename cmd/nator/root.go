package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	ctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "nator",
		Short:         "Resumable short-video content pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newSetupCommand(ctx))
	rootCmd.AddCommand(newDoctorCommand(ctx))
	rootCmd.AddCommand(newIngestCommand(ctx))
	rootCmd.AddCommand(newCreateCommand(ctx))
	for _, cmd := range newRunCommands(ctx) {
		rootCmd.AddCommand(cmd)
	}
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newJobsCommand(ctx))
	rootCmd.AddCommand(newShowCommand(ctx))
	rootCmd.AddCommand(newClipsCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))
	rootCmd.AddCommand(newProvidersCommand(ctx))
	rootCmd.AddCommand(newScheduleCommand(ctx))
	rootCmd.AddCommand(newHaltCommand(ctx))
	rootCmd.AddCommand(newResumeCommand(ctx))
	rootCmd.AddCommand(newExportCommand(ctx))
	rootCmd.AddCommand(newLogsCommand(ctx))
	rootCmd.AddCommand(newTestNotifyCommand(ctx))

	return rootCmd
}
