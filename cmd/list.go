package cmd

import (
	"github.com/spf13/cobra"

	"symsync/internal/formatting"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List configured links",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := newFormatter()
			if err != nil {
				return err
			}
			application, err := openApp(true)
			if err != nil {
				return err
			}
			links := formatting.NewLinkViews(application.Registry().List())
			return f.FormatLinks(cmd.OutOrStdout(), links)
		},
	}
}
