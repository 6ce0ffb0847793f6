package cmd

import (
	"github.com/spf13/cobra"
)

// newRunCmd keeps every active link in sync until interrupted.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Watch all active links until interrupted",
		Long: `Loads the snapshot document, starts every link marked active and keeps
their targets in sync until SIGINT or SIGTERM. On shutdown the links are
stopped, leaving their symlinks in place, and the snapshot is saved with
each link's recent activity.

Under systemd (Type=notify) readiness, status and shutdown are reported
through sd_notify. Use --json for structured logs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := openApp(false)
			if err != nil {
				return err
			}
			return application.Run(commandContext(cmd))
		},
	}
}
