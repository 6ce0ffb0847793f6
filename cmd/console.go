package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"symsync/internal/console"
	"symsync/internal/registry"
	"symsync/pkg/logging"
)

func newConsoleCmd() *cobra.Command {
	var autostart bool
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Start an interactive shell that runs links in-process",
		Long: `Opens an interactive shell over the links in the snapshot document.
Links can be started, stopped and synced; status changes and log messages
are printed as they happen. On exit every link is stopped, leaving its
symlinks in place, and the snapshot is saved.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := openApp(true)
			if err != nil {
				return err
			}
			reg := application.Registry()
			ctx := commandContext(cmd)

			level := logging.LevelInfo
			if parsed, ok := logging.ParseLevel(reg.Settings().LogLevel); ok {
				level = parsed
			}
			if debug {
				level = logging.LevelDebug
			}
			c := console.New(reg, console.Options{
				Out:   cmd.OutOrStdout(),
				Color: colorEnabled(),
				Level: level,
			})

			if autostart {
				startActive(ctx, reg, cmd.ErrOrStderr())
			}

			runErr := c.Run(ctx)
			return errors.Join(runErr, reg.StopAll(), application.Save())
		},
	}
	cmd.Flags().BoolVar(&autostart, "autostart", true, "Start links marked active when the console opens")
	return cmd
}

// startActive starts the links marked active. Links that fail stay registered
// in Error; the failures are printed to w because logging is still quiet
// until the console takes it over.
func startActive(ctx context.Context, reg *registry.Registry, w io.Writer) {
	err := reg.StartActive(ctx)
	if err == nil {
		return
	}
	logging.Warn("Console", "Not every active link started: %v", err)
	fmt.Fprintf(w, "Warning: not every active link started:\n%v\n", err)
}
