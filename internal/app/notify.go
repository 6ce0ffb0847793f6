package app

import (
	"github.com/coreos/go-systemd/v22/daemon"

	"symsync/pkg/logging"
)

// notifier reports lifecycle state to a service manager.
type notifier interface {
	Notify(state string)
}

type systemdNotifier struct{}

func newSystemdNotifier() notifier {
	return systemdNotifier{}
}

// Notify sends state over NOTIFY_SOCKET. Without a socket it does nothing.
func (systemdNotifier) Notify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		logging.Debug("Daemon", "sd_notify %q failed: %v", state, err)
		return
	}
	if sent {
		logging.Debug("Daemon", "sd_notify %q", state)
	}
}
