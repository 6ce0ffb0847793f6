package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"symsync/internal/formatting"
)

func newLogCmd() *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "log <link>",
		Short: "Show a link's recent activity",
		Long: `Shows the activity recorded for a link, oldest first. The log is read
from the snapshot document, so it reflects the last time the daemon or
console saved it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if lines <= 0 {
				return fmt.Errorf("--lines must be positive, got %d", lines)
			}
			f, err := newFormatter()
			if err != nil {
				return err
			}
			application, err := openApp(true)
			if err != nil {
				return err
			}
			id, name, err := resolveLink(application, args[0])
			if err != nil {
				return err
			}
			entries, err := application.Registry().Tail(id, lines)
			if err != nil {
				return err
			}
			return f.FormatActivity(cmd.OutOrStdout(), formatting.NewActivityViews(name, entries))
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "Number of entries to show")
	return cmd
}
