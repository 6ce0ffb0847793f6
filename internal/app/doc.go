// Package app bootstraps symsync and runs the long-lived daemon.
//
// # Bootstrap
//
// NewApplication configures logging from the command-line flags, loads the
// snapshot document and builds a registry from it without starting any link.
// Short-lived commands (link, list, sync, log) stop there and call Save.
//
// # Daemon mode
//
// Run starts every active link, tells the service manager it is ready, and
// blocks until the context is cancelled or SIGINT/SIGTERM arrives. Shutdown
// stops all links, waiting for in-flight passes, and writes the snapshot back.
//
// Readiness and status are reported with sd_notify when NOTIFY_SOCKET is set;
// otherwise the notifications are no-ops.
package app
