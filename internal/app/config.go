package app

import (
	"symsync/internal/config"
)

// Config holds the application configuration
type Config struct {
	// Debug forces debug logging regardless of the document's logLevel.
	Debug bool

	// JSONLogs switches log output to JSON lines.
	JSONLogs bool

	// Silent discards log output; used by one-shot commands.
	Silent bool

	// ConfigPath is the snapshot document. Empty means config.DefaultPath().
	ConfigPath string

	// Snapshot is filled in by NewApplication.
	Snapshot *config.Snapshot
}

// NewConfig creates a new application configuration
func NewConfig(debug, jsonLogs bool, configPath string) *Config {
	return &Config{
		Debug:      debug,
		JSONLogs:   jsonLogs,
		ConfigPath: configPath,
	}
}
