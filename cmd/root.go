package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"symsync/internal/api"
	"symsync/internal/config"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeConfig indicates an invalid snapshot document or link definition.
	ExitCodeConfig = 2
	// ExitCodeFilesystem indicates a filesystem operation failed.
	ExitCodeFilesystem = 3
	// ExitCodeFatal indicates a link could not run, e.g. its target vanished.
	ExitCodeFatal = 4
)

var (
	configPath string
	debug      bool
	jsonLogs   bool
	outputFmt  string
	noColor    bool
	quiet      bool
)

// rootCmd represents the base command for the symsync application.
var rootCmd = newRootCmd()

// newRootCmd builds the command tree. Flag variables are rebound to their
// defaults on every call.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "symsync",
		Short: "Mirror the top level of source folders into a target folder with symlinks",
		Long: `symsync keeps a target directory populated with symbolic links to every
top-level entry of one or more source directories. Links are created,
repaired and removed as the sources change, driven by filesystem
notifications and a periodic rescan.

Links are defined in a snapshot document (YAML or TOML). Use 'symsync link'
to edit it, 'symsync run' to keep active links in sync, and 'symsync console'
for an interactive session.`,
		// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "Snapshot document (default $XDG_CONFIG_HOME/symsync/links.yaml)")
	flags.BoolVar(&debug, "debug", false, "Enable debug logging")
	flags.BoolVar(&jsonLogs, "json", false, "Write logs as JSON lines")
	flags.StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json or yaml")
	flags.BoolVar(&noColor, "no-color", false, "Disable coloured output")
	flags.BoolVarP(&quiet, "quiet", "q", false, "Suppress progress indicators and summaries")

	root.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newLinkCmd(),
		newListCmd(),
		newSyncCmd(),
		newLogCmd(),
		newConsoleCmd(),
	)
	return root
}

// SetVersion sets the version for the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "symsync version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		var ce config.ConfigurationError
		var cec config.ConfigurationErrorCollection
		switch {
		case errors.As(err, &cec):
			fmt.Fprintln(os.Stderr, cec.GetDetailedReport())
		case errors.As(err, &ce):
			fmt.Fprintln(os.Stderr, ce.DetailedError())
		}
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
func getExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	var ce config.ConfigurationError
	if errors.As(err, &ce) {
		return ExitCodeConfig
	}
	var cec config.ConfigurationErrorCollection
	if errors.As(err, &cec) {
		return ExitCodeConfig
	}

	kind := api.KindOf(err)
	if kind == "" {
		return ExitCodeError
	}
	switch kind.Category() {
	case api.CategoryConfiguration:
		return ExitCodeConfig
	case api.CategoryFatal:
		return ExitCodeFatal
	case api.CategoryFilesystem, api.CategoryWatch:
		return ExitCodeFilesystem
	}
	return ExitCodeError
}
