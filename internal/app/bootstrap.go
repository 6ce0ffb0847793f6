package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"symsync/internal/config"
	"symsync/internal/registry"
	"symsync/pkg/logging"
)

// Application ties the snapshot document to a registry.
//
// Example usage:
//
//	cfg := app.NewConfig(false, false, "")
//	application, err := app.NewApplication(cfg)
//	if err != nil {
//	    return err
//	}
//	return application.Run(ctx)
type Application struct {
	config   *Config
	path     string
	registry *registry.Registry
}

// NewApplication configures logging, loads the snapshot and registers its
// links. No link is started.
func NewApplication(cfg *Config) (*Application, error) {
	path := cfg.ConfigPath
	if path == "" {
		path = config.DefaultPath()
	}

	// Log with the flag-derived level until the document says otherwise.
	initLogging(cfg, "")

	snap, err := config.Load(path)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to load snapshot from %s", path)
		return nil, fmt.Errorf("failed to load snapshot from %s: %w", path, err)
	}
	cfg.Snapshot = &snap
	initLogging(cfg, snap.Settings.LogLevel)

	reg := registry.New(registry.Options{Settings: snap.Settings})
	if err := reg.Load(snap); err != nil {
		// Invalid links are skipped; the rest stay usable.
		logging.Warn("Bootstrap", "Some links could not be loaded: %v", err)
	}

	return &Application{
		config:   cfg,
		path:     path,
		registry: reg,
	}, nil
}

func initLogging(cfg *Config, documentLevel string) {
	level := logging.LevelInfo
	if parsed, ok := logging.ParseLevel(documentLevel); ok {
		level = parsed
	}
	if cfg.Debug {
		level = logging.LevelDebug
	}

	var out io.Writer = os.Stderr
	if cfg.Silent {
		out = io.Discard
	}
	format := logging.FormatText
	if cfg.JSONLogs {
		format = logging.FormatJSON
	}
	logging.InitForCLIWithFormat(level, out, format)
}

// Registry returns the application's registry.
func (a *Application) Registry() *registry.Registry {
	return a.registry
}

// Path returns the snapshot document location.
func (a *Application) Path() string {
	return a.path
}

// Save writes the registry back to the snapshot document.
func (a *Application) Save() error {
	if err := config.Save(a.path, a.registry.Serialize()); err != nil {
		return fmt.Errorf("failed to save snapshot to %s: %w", a.path, err)
	}
	return nil
}

// Run executes the daemon until ctx is cancelled or a termination signal
// arrives.
func (a *Application) Run(ctx context.Context) error {
	return runDaemon(ctx, a, newSystemdNotifier())
}
