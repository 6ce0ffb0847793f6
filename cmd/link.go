package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"symsync/internal/api"
	"symsync/internal/app"
)

// linkFlags holds the definition flags shared by add and update.
type linkFlags struct {
	name     string
	target   string
	sources  []string
	interval time.Duration
	active   bool
}

func (lf *linkFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&lf.name, "name", "", "Display name")
	cmd.Flags().StringVarP(&lf.target, "target", "t", "", "Target directory that receives the symlinks")
	cmd.Flags().StringSliceVarP(&lf.sources, "source", "s", nil, "Source directory; repeat for several, earlier wins name collisions")
	cmd.Flags().DurationVar(&lf.interval, "interval", 0, "Periodic rescan interval, 1s to 1h (default from settings)")
	cmd.Flags().BoolVar(&lf.active, "active", false, "Start the link whenever 'symsync run' starts")
}

// apply copies the flags the user set onto cfg.
func (lf *linkFlags) apply(cmd *cobra.Command, cfg *api.LinkConfig) {
	flags := cmd.Flags()
	if flags.Changed("name") {
		cfg.Name = lf.name
	}
	if flags.Changed("target") {
		cfg.Target = lf.target
	}
	if flags.Changed("source") {
		cfg.Sources = append([]string(nil), lf.sources...)
	}
	if flags.Changed("interval") {
		cfg.RescanInterval = lf.interval
	}
	if flags.Changed("active") {
		cfg.Active = lf.active
	}
}

func newLinkCmd() *cobra.Command {
	linkCmd := &cobra.Command{
		Use:   "link",
		Short: "Add, change or remove links in the snapshot document",
		Long: `Edits link definitions in the snapshot document. Changes take effect
the next time 'symsync run' or 'symsync console' starts; stop a running
daemon first so it does not overwrite the document on exit.`,
	}
	linkCmd.AddCommand(newLinkAddCmd(), newLinkUpdateCmd(), newLinkRemoveCmd())
	return linkCmd
}

func newLinkAddCmd() *cobra.Command {
	lf := &linkFlags{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Define a new link",
		Example: `  symsync link add --name media -t /srv/mirror -s /data/a -s /data/b --active
  symsync link add -t ~/Desktop/shortcuts -s ~/Projects --interval 5m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if lf.target == "" || len(lf.sources) == 0 {
				return fmt.Errorf("--target and at least one --source are required")
			}
			var cfg api.LinkConfig
			lf.apply(cmd, &cfg)
			return editLinks(cmd, func(a *app.Application) (string, error) {
				added, err := a.Registry().AddLink(cfg)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Added link %s (%s)", added.DisplayName(), added.ID), nil
			})
		},
	}
	lf.register(cmd)
	return cmd
}

func newLinkUpdateCmd() *cobra.Command {
	lf := &linkFlags{}
	cmd := &cobra.Command{
		Use:   "update <link>",
		Short: "Change a link's definition",
		Long: `Changes only the given fields. Links already created in the old target
are left in place when --target changes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editLinks(cmd, func(a *app.Application) (string, error) {
				reg := a.Registry()
				id, err := reg.Resolve(args[0])
				if err != nil {
					return "", err
				}
				info, err := reg.Get(id)
				if err != nil {
					return "", err
				}
				cfg := info.Config
				lf.apply(cmd, &cfg)
				updated, err := reg.UpdateLink(id, cfg)
				if err != nil {
					return "", err
				}
				// UpdateLink keeps the persisted flag; set it explicitly.
				if cmd.Flags().Changed("active") {
					if err := reg.SetActive(id, lf.active); err != nil {
						return "", err
					}
				}
				return fmt.Sprintf("Updated link %s", updated.DisplayName()), nil
			})
		},
	}
	lf.register(cmd)
	return cmd
}

func newLinkRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <link>",
		Aliases: []string{"rm"},
		Short:   "Remove a link and the symlinks it created",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editLinks(cmd, func(a *app.Application) (string, error) {
				id, name, err := resolveLink(a, args[0])
				if err != nil {
					return "", err
				}
				if err := a.Registry().DeleteLink(id); err != nil {
					// The link is gone from the registry; save before reporting.
					if saveErr := a.Save(); saveErr != nil {
						return "", saveErr
					}
					return "", fmt.Errorf("removed link %s but some symlinks remain: %w", name, err)
				}
				return fmt.Sprintf("Removed link %s", name), nil
			})
		},
	}
}

// editLinks runs edit against an offline registry and saves the document.
func editLinks(cmd *cobra.Command, edit func(a *app.Application) (string, error)) error {
	application, err := openApp(true)
	if err != nil {
		return err
	}
	msg, err := edit(application)
	if err != nil {
		return err
	}
	if err := application.Save(); err != nil {
		return err
	}
	if !quiet {
		fmt.Fprintln(cmd.OutOrStdout(), msg)
	}
	return nil
}
