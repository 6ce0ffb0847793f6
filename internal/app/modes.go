package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"

	"symsync/internal/api"
	"symsync/internal/registry"
	"symsync/pkg/logging"
)

// runDaemon starts the active links and blocks until shutdown.
//
// Signal Handling:
//   - SIGINT (Ctrl+C): Triggers graceful shutdown
//   - SIGTERM: Triggers graceful shutdown (service managers)
func runDaemon(ctx context.Context, a *Application, n notifier) error {
	reg := a.Registry()

	unsubscribe := reg.Subscribe(func(u api.StatusUpdate) {
		logging.Info("Daemon", "Link %s: %s", u.LinkID, u.Message)
		n.Notify("STATUS=" + statusLine(reg))
	})
	defer unsubscribe()

	if err := reg.StartActive(ctx); err != nil {
		// Failing links sit in Error; the others keep running.
		logging.Warn("Daemon", "Not every active link started: %v", err)
	}

	n.Notify(daemon.SdNotifyReady)
	n.Notify("STATUS=" + statusLine(reg))
	logging.Info("Daemon", "Running with %d link(s). Press Ctrl+C to stop.", len(reg.List()))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logging.Info("Daemon", "Received %s, shutting down", sig)
	case <-ctx.Done():
		logging.Info("Daemon", "Context cancelled, shutting down")
	}

	n.Notify(daemon.SdNotifyStopping)
	stopErr := reg.StopAll()
	saveErr := a.Save()
	if stopErr != nil {
		return fmt.Errorf("failed to stop links: %w", stopErr)
	}
	return saveErr
}

func statusLine(reg *registry.Registry) string {
	watching, failed := 0, 0
	links := reg.List()
	for _, l := range links {
		switch l.Status.State {
		case api.StateWatching:
			watching++
		case api.StateError:
			failed++
		}
	}
	return fmt.Sprintf("%d of %d link(s) watching, %d in error", watching, len(links), failed)
}
