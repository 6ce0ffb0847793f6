package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"symsync/internal/formatting"
	"symsync/internal/reconciler"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync <link>",
		Short: "Run one reconcile pass for a link",
		Long: `Brings a link's target in line with its sources once and prints what
changed. The link is not left running; its activity is saved to the
snapshot document.`,
		Args: cobra.ExactArgs(1),
		RunE: runSync,
	}
}

func runSync(cmd *cobra.Command, args []string) error {
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

	var s *spinner.Spinner
	if !quiet {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
		s.Suffix = fmt.Sprintf(" Reconciling %s...", name)
		s.Start()
	}

	report, syncErr := application.Registry().Sync(commandContext(cmd), id)

	if s != nil {
		s.Stop()
	}

	// The activity log changed either way.
	if err := application.Save(); err != nil {
		return err
	}
	if syncErr != nil {
		if s != nil {
			fmt.Fprintf(os.Stderr, "%s\n", text.FgRed.Sprint("❌ Reconcile failed"))
		}
		return fmt.Errorf("failed to sync %s: %w", name, syncErr)
	}

	if err := f.FormatReport(cmd.OutOrStdout(), formatting.NewReportView(name, report)); err != nil {
		return err
	}
	return partialFailure(name, report)
}

// partialFailure turns per-entry failures into a non-zero exit.
func partialFailure(name string, report reconciler.Report) error {
	if report.Failed == 0 {
		return nil
	}
	return fmt.Errorf("%s: %d entries could not be linked, see 'symsync log %s'", name, report.Failed, name)
}
