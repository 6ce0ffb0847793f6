package api

import (
	"fmt"
	"time"
)

// Rescan interval bounds for a link.
const (
	MinRescanInterval     = time.Second
	MaxRescanInterval     = 3600 * time.Second
	DefaultRescanInterval = 30 * time.Second
)

// LinkConfig is one user-configured mapping from an ordered set of source
// directories to a single target directory.
type LinkConfig struct {
	// ID is assigned by the registry and is stable across restarts.
	ID string

	// Name is a display label; it is not required to be unique.
	Name string

	// Target is the absolute directory that receives the symlinks.
	Target string

	// Sources are mirrored in order; an earlier source wins a name collision.
	Sources []string

	// RescanInterval is how often a full recovery pass runs.
	RescanInterval time.Duration

	// Active marks the link to be started automatically on restore.
	Active bool
}

// Clone returns a deep copy so callers cannot mutate registry-owned slices.
func (c LinkConfig) Clone() LinkConfig {
	out := c
	out.Sources = append([]string(nil), c.Sources...)
	return out
}

// DisplayName returns Name, falling back to the target path.
func (c LinkConfig) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Target
}

// LinkState is the phase of a link's controller.
type LinkState string

const (
	StateStopped  LinkState = "Stopped"
	StateStarting LinkState = "Starting"
	StateWatching LinkState = "Watching"
	StateError    LinkState = "Error"
)

// EntryStatus describes one mirrored entry as observed in the target.
type EntryStatus string

const (
	// EntryLinked means the symlink exists and resolves to the expected source.
	EntryLinked EntryStatus = "Linked"
	// EntryMissing means nothing exists at the entry name in the target.
	EntryMissing EntryStatus = "Missing"
	// EntryConflicted means the name is occupied by something that is not ours,
	// or lost a name collision against an earlier source.
	EntryConflicted EntryStatus = "Conflicted"
	// EntryBroken means a symlink exists but points to the wrong or an
	// unreachable destination.
	EntryBroken EntryStatus = "Broken"
)

// MirrorEntry is one top-level source item and its mirror status.
type MirrorEntry struct {
	Name       string
	Root       string
	SourcePath string
	IsDir      bool
	Status     EntryStatus
}

// ActivityKind classifies an activity log entry.
type ActivityKind string

const (
	ActivityAdded      ActivityKind = "Added"
	ActivityRemoved    ActivityKind = "Removed"
	ActivityRepaired   ActivityKind = "Repaired"
	ActivityConflicted ActivityKind = "Conflicted"
	ActivityFailed     ActivityKind = "Failed"
	ActivityState      ActivityKind = "State"
	ActivityWarning    ActivityKind = "Warning"
)

// ActivityEntry is one record in a link's activity log.
type ActivityEntry struct {
	Time    time.Time
	LinkID  string
	Kind    ActivityKind
	Path    string
	Outcome string
}

// StatusUpdate is emitted on every controller state transition.
type StatusUpdate struct {
	LinkID  string
	Name    string
	State   LinkState
	Message string
	Err     error
	Time    time.Time
}

// StatusFunc receives status updates. Implementations must not block.
type StatusFunc func(update StatusUpdate)

// WatchingMessage is the status text shown for a link in StateWatching.
func WatchingMessage(sources int) string {
	return fmt.Sprintf("Watching %d source(s)", sources)
}

// ErrorMessage is the status text shown for a link in StateError.
func ErrorMessage(err error) string {
	if err == nil {
		return "Error"
	}
	return "Error " + err.Error()
}
