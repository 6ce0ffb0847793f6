package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"symsync/internal/app"
	"symsync/internal/formatting"
)

// openApp loads the snapshot document into a registry without starting any
// link. One-shot commands keep logging quiet unless --debug is given.
func openApp(silent bool) (*app.Application, error) {
	cfg := app.NewConfig(debug, jsonLogs, configPath)
	cfg.Silent = silent && !debug
	application, err := app.NewApplication(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}
	return application, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func colorEnabled() bool {
	if noColor || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

func newFormatter() (formatting.Formatter, error) {
	format, err := formatting.ParseFormat(outputFmt)
	if err != nil {
		return nil, err
	}
	return formatting.New(formatting.Options{
		Format: format,
		Quiet:  quiet,
		Color:  colorEnabled(),
	}), nil
}

// resolveLink maps a link reference to its id and display name.
func resolveLink(a *app.Application, ref string) (string, string, error) {
	reg := a.Registry()
	id, err := reg.Resolve(ref)
	if err != nil {
		return "", "", err
	}
	info, err := reg.Get(id)
	if err != nil {
		return "", "", err
	}
	return id, info.Config.DisplayName(), nil
}
