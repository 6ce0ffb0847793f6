// Package watcher turns filesystem notifications under a link's source roots
// into debounced reconcile triggers.
package watcher

import (
	"errors"
	"io/fs"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"symsync/internal/api"
	"symsync/pkg/logging"
)

// DefaultDebounceInterval is how long raw events are collected before a
// single trigger fires.
const DefaultDebounceInterval = 500 * time.Millisecond

const subsystem = "ChangeWatcher"

// Config configures a Watcher.
type Config struct {
	// Roots are watched recursively.
	Roots []string

	// Debounce is the coalescing window. Zero means DefaultDebounceInterval.
	Debounce time.Duration

	// Trigger is called once per debounce window that saw events.
	Trigger func()

	// OnDegraded is called with a KindWatchSubsystem error when notifications
	// stop being reliable. The caller falls back to periodic rescans.
	OnDegraded func(error)
}

// Watcher subscribes to change notifications for a set of directory trees.
type Watcher struct {
	mu sync.Mutex

	config Config

	fsWatcher *fsnotify.Watcher

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool

	// degraded is set once OnDegraded has been reported for this run.
	degraded bool

	debounceTimer *time.Timer
}

// New creates a Watcher. It does nothing until Start.
func New(config Config) *Watcher {
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounceInterval
	}
	return &Watcher{config: config}
}

// Start subscribes to every root. A root that cannot be watched is reported
// through OnDegraded; Start itself only fails when no notification backend
// is available at all.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return api.NewError(api.KindWatchSubsystem, "watch", "", err)
	}

	w.fsWatcher = fsWatcher
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.running = true
	w.degraded = false

	var failed []error
	for _, root := range w.config.Roots {
		if err := w.addTree(root); err != nil {
			failed = append(failed, err)
		}
	}

	// Capture channels before releasing the lock to avoid racing Stop.
	go w.processEvents(fsWatcher.Events, fsWatcher.Errors)

	if len(failed) > 0 {
		w.degradeLocked(api.NewError(api.KindWatchSubsystem, "watch", "", errors.Join(failed...)))
	}

	logging.Debug(subsystem, "Watching %d root(s)", len(w.config.Roots))
	return nil
}

// Stop unsubscribes and cancels any pending trigger. A debounce callback that
// was already past its check may still call Trigger once after Stop returns;
// Trigger must tolerate that.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
		w.debounceTimer = nil
	}
	fsWatcher := w.fsWatcher
	doneCh := w.doneCh
	w.fsWatcher = nil
	w.mu.Unlock()

	<-doneCh
	if err := fsWatcher.Close(); err != nil {
		logging.Debug(subsystem, "Closing watcher: %v", err)
	}
}

// Running reports whether the watcher is subscribed.
func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// addTree adds a watch for root and every directory below it. Only a failure
// on root itself, or running out of watches, is returned.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			logging.Debug(subsystem, "Skipping %s: %v", path, err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsWatcher.Add(path); err != nil {
			if path == root || exhausted(err) {
				return err
			}
			logging.Debug(subsystem, "Cannot watch %s: %v", path, err)
		}
		return nil
	})
}

func exhausted(err error) bool {
	return errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EMFILE)
}

func (w *Watcher) processEvents(eventsCh <-chan fsnotify.Event, errorsCh <-chan error) {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-eventsCh:
			if !ok {
				w.degrade(api.Errorf(api.KindWatchSubsystem, "watch", "", "event channel closed"))
				return
			}
			w.handleEvent(event)

		case err, ok := <-errorsCh:
			if !ok {
				w.degrade(api.Errorf(api.KindWatchSubsystem, "watch", "", "error channel closed"))
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				// Events were lost; catch up with a pass.
				w.schedule()
			}
			w.degrade(api.NewError(api.KindWatchSubsystem, "watch", "", err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}

	if event.Op.Has(fsnotify.Create) {
		w.mu.Lock()
		if w.running {
			if err := w.addTree(event.Name); err != nil && !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, syscall.ENOTDIR) {
				w.degradeLocked(api.NewError(api.KindWatchSubsystem, "watch", event.Name, err))
			}
		}
		w.mu.Unlock()
	}

	logging.Debug(subsystem, "%s %s", event.Op, event.Name)
	w.schedule()
}

// schedule arms the debounce timer if it is not already pending. Events
// arriving while it is pending are absorbed into the same trigger.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running || w.debounceTimer != nil {
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(w.config.Debounce, func() {
		w.mu.Lock()
		if w.debounceTimer != timer || !w.running {
			w.mu.Unlock()
			return
		}
		w.debounceTimer = nil
		trigger := w.config.Trigger
		w.mu.Unlock()

		if trigger != nil {
			trigger()
		}
	})
	w.debounceTimer = timer
}

func (w *Watcher) degrade(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.degradeLocked(err)
}

func (w *Watcher) degradeLocked(err error) {
	if w.degraded || !w.running {
		return
	}
	w.degraded = true
	logging.Warn(subsystem, "Change notifications degraded: %v", err)
	if fn := w.config.OnDegraded; fn != nil {
		go fn(err)
	}
}
