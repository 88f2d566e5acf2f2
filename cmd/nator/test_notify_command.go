package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"nator/internal/notifications"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
				fmt.Fprintln(out, "Notifications are disabled; set notifications.ntfy_topic first")
				return nil
			}
			svc := notifications.NewService(cfg)
			if err := svc.Publish(cmd.Context(), notifications.EventTestNotification, nil); err != nil {
				return fmt.Errorf("send test notification: %w", err)
			}
			fmt.Fprintln(out, "Test notification sent")
			return nil
		},
	}
}
