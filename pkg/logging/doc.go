// Package logging provides the subsystem logger used throughout symsync.
//
// It is a thin layer over log/slog: every call names a subsystem (for example
// "Controller", "Watcher", "Registry") and a printf-style message, and the
// entry is written through a slog handler with the subsystem as an attribute.
//
// # Modes
//
// CLI mode writes to an io.Writer using a text or JSON handler:
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//	logging.Info("Bootstrap", "Loaded %d links from %s", n, path)
//	logging.Error("Controller", err, "Reconcile failed for %s", id)
//
// Console mode routes entries into a channel instead, so the interactive
// shell can print them without tearing the prompt:
//
//	entries := logging.InitForConsole(logging.LevelInfo)
//	defer logging.CloseConsoleChannel()
//
// Entries are dropped, never blocked on, when the console channel is full.
package logging
