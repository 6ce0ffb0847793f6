package config

import "time"

const (
	// DefaultDebounce is the watcher coalescing window.
	DefaultDebounce = 500 * time.Millisecond

	// DefaultLogRetention is the in-memory activity log size per link.
	DefaultLogRetention = 500

	// DefaultSnapshotLogTail is the number of activity entries persisted per link.
	DefaultSnapshotLogTail = 50

	// DefaultLogLevel is used when the document does not set one.
	DefaultLogLevel = "info"

	appDirName      = "symsync"
	defaultFileName = "links.yaml"
)

// Default returns an empty snapshot with default settings.
func Default() Snapshot {
	return Snapshot{
		Settings: Settings{
			DebounceMillis:  int(DefaultDebounce / time.Millisecond),
			RescanSeconds:   30,
			LogRetention:    DefaultLogRetention,
			SnapshotLogTail: DefaultSnapshotLogTail,
			LogLevel:        DefaultLogLevel,
		},
	}
}
