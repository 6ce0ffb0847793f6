// Package controller runs one link: its state machine, its serialized
// reconcile lane, and the watcher and scheduler that feed it.
package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"symsync/internal/activity"
	"symsync/internal/api"
	"symsync/internal/reconciler"
	"symsync/internal/scheduler"
	"symsync/internal/symlink"
	"symsync/internal/watcher"
	"symsync/pkg/logging"
)

const subsystem = "LinkController"

// Options configures a Controller.
type Options struct {
	// Debounce is the watcher coalescing window.
	Debounce time.Duration

	// LogRetention bounds the activity log when Log is nil.
	LogRetention int

	// Log is an existing activity log, e.g. restored from a snapshot.
	Log *activity.Log

	// FS overrides the filesystem used for link operations.
	FS symlink.FS

	Metrics *reconciler.Metrics

	// OnStatus receives every status update. It must not block.
	OnStatus api.StatusFunc
}

// Status is a point-in-time view of a controller.
type Status struct {
	Config        api.LinkConfig
	State         api.LinkState
	Message       string
	LastError     error
	LastReconcile time.Time
	LastReport    reconciler.Report
	Degraded      bool
}

// Controller owns the runtime of a single link.
type Controller struct {
	// opMu serializes Start, Stop, Delete, Sync and UpdateConfig.
	opMu sync.Mutex

	mu            sync.RWMutex
	cfg           api.LinkConfig
	state         api.LinkState
	message       string
	lastErr       error
	lastReconcile time.Time
	lastReport    reconciler.Report
	previous      *reconciler.State
	degraded      bool
	// deleted is terminal: once set, nothing starts or reconciles again.
	deleted bool

	id   string
	opts Options
	log  *activity.Log
	ops  *symlink.Operations
	rec  *reconciler.Reconciler

	watcher   *watcher.Watcher
	scheduler *scheduler.Scheduler

	triggerCh chan struct{}
	stopCh    chan struct{}
	laneDone  chan struct{}
}

// New creates a Stopped controller for cfg.
func New(cfg api.LinkConfig, opts Options) *Controller {
	log := opts.Log
	if log == nil {
		log = activity.NewLog(cfg.ID, opts.LogRetention)
	}
	ops := symlink.New(opts.FS)
	return &Controller{
		id:      cfg.ID,
		cfg:     cfg.Clone(),
		state:   api.StateStopped,
		message: string(api.StateStopped),
		opts:    opts,
		log:     log,
		ops:     ops,
		rec:     reconciler.New(cfg.ID, ops, nil, log, opts.Metrics),
	}
}

// ID returns the link ID.
func (c *Controller) ID() string {
	return c.id
}

// Config returns a copy of the link configuration.
func (c *Controller) Config() api.LinkConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.Clone()
}

// State returns the current phase.
func (c *Controller) State() api.LinkState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Log returns the link's activity log.
func (c *Controller) Log() *activity.Log {
	return c.log
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Status{
		Config:        c.cfg.Clone(),
		State:         c.state,
		Message:       c.message,
		LastError:     c.lastErr,
		LastReconcile: c.lastReconcile,
		LastReport:    c.lastReport,
		Degraded:      c.degraded,
	}
}

// UpdateConfig replaces the configuration of a Stopped link.
func (c *Controller) UpdateConfig(cfg api.LinkConfig) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deleted {
		return errDeleted("updateLink", c.id)
	}
	if c.state != api.StateStopped {
		return api.Errorf(api.KindLinkActive, "updateLink", c.id, "link must be stopped, it is %s", c.state)
	}
	cfg.ID = c.id
	if cfg.Target != c.cfg.Target {
		// The manifest belongs to the old target; Adopt rebuilds it on Start.
		c.rec = reconciler.New(cfg.ID, c.ops, nil, c.log, c.opts.Metrics)
		c.previous = nil
	}
	c.cfg = cfg.Clone()
	return nil
}

// Start moves a Stopped or Errored link to Watching: validate, adopt existing
// links, run one baseline pass, then start the watcher and scheduler.
func (c *Controller) Start(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.checkDeleted("start"); err != nil {
		return err
	}
	switch c.State() {
	case api.StateWatching, api.StateStarting:
		return nil
	case api.StateError:
		c.shutdown()
	}

	cfg := c.Config()
	c.setState(api.StateStarting, "Starting", nil)

	report, err := c.prepare(ctx, cfg)
	if err != nil {
		c.setState(api.StateError, api.ErrorMessage(err), err)
		return err
	}
	c.log.Record(api.ActivityState, cfg.Target, fmt.Sprintf("Created %d links", report.Added))

	c.mu.Lock()
	c.degraded = false
	c.triggerCh = make(chan struct{}, 1)
	triggerCh := c.triggerCh
	c.mu.Unlock()

	c.watcher = watcher.New(watcher.Config{
		Roots:      cfg.Sources,
		Debounce:   c.opts.Debounce,
		Trigger:    c.RequestReconcile,
		OnDegraded: c.onDegraded,
	})
	c.scheduler = scheduler.New(cfg.RescanInterval, c.RequestReconcile)

	c.stopCh = make(chan struct{})
	c.laneDone = make(chan struct{})
	go c.run(cfg, lane{
		watcher:   c.watcher,
		scheduler: c.scheduler,
		stopCh:    c.stopCh,
		triggerCh: triggerCh,
		done:      c.laneDone,
	})

	if err := c.watcher.Start(); err != nil {
		c.onDegraded(err)
	}
	c.scheduler.Start()

	msg := api.WatchingMessage(len(cfg.Sources))
	if c.Status().Degraded {
		msg += " (rescan only)"
	}
	c.setState(api.StateWatching, msg, nil)
	return nil
}

// prepare runs the synchronous part of Start and Sync.
func (c *Controller) prepare(ctx context.Context, cfg api.LinkConfig) (reconciler.Report, error) {
	if _, err := api.NormalizeLink(cfg); err != nil {
		return reconciler.Report{}, err
	}
	if err := api.CheckSources(cfg); err != nil {
		return reconciler.Report{}, err
	}
	if _, err := c.rec.EnsureTarget(cfg); err != nil {
		return reconciler.Report{}, err
	}
	if _, err := c.rec.Adopt(cfg); err != nil {
		return reconciler.Report{}, err
	}
	return c.pass(ctx, cfg)
}

// Stop moves the link to Stopped. A pass that is already running completes
// first. Symlinks are left in place.
func (c *Controller) Stop() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.stopLocked()
	return nil
}

func (c *Controller) stopLocked() {
	if c.State() == api.StateStopped {
		return
	}
	c.shutdown()
	c.setState(api.StateStopped, string(api.StateStopped), nil)
}

// Delete stops the link and removes every symlink it created. Stop and
// teardown happen under one hold of opMu, and the controller refuses any
// later Start, Sync or trigger. Deleting twice is a no-op.
func (c *Controller) Delete() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.deleted {
		c.mu.Unlock()
		return nil
	}
	c.deleted = true
	c.mu.Unlock()

	c.stopLocked()

	cfg := c.Config()
	if _, err := c.rec.Adopt(cfg); err != nil {
		logging.Warn(subsystem, "Link %s: adopting before delete: %v", cfg.ID, err)
	}
	_, err := c.rec.Teardown(cfg)
	c.opts.Metrics.Forget(cfg.ID)
	return err
}

// Deleted reports whether Delete has run.
func (c *Controller) Deleted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.deleted
}

func (c *Controller) checkDeleted(op string) error {
	if c.Deleted() {
		return errDeleted(op, c.id)
	}
	return nil
}

func errDeleted(op, id string) error {
	return api.Errorf(api.KindNotFound, op, id, "link was deleted")
}

// SetInterval changes the rescan interval. A Watching link re-arms its
// scheduler from now; any other link uses the new interval on its next Start.
func (c *Controller) SetInterval(d time.Duration) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.checkDeleted("setInterval"); err != nil {
		return err
	}
	c.mu.Lock()
	c.cfg.RescanInterval = d
	c.mu.Unlock()

	if c.scheduler != nil {
		c.scheduler.SetInterval(d)
	}
	return nil
}

// Sync runs one pass. A Watching link gets a queued trigger; any other link
// runs a synchronous pass without starting its watcher.
func (c *Controller) Sync(ctx context.Context) (reconciler.Report, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.checkDeleted("sync"); err != nil {
		return reconciler.Report{}, err
	}
	if c.State() == api.StateWatching {
		c.RequestReconcile()
		return c.Status().LastReport, nil
	}
	return c.prepare(ctx, c.Config())
}

// RequestReconcile asks the lane for a pass. Requests made while a pass is
// running collapse into one follow-up pass.
func (c *Controller) RequestReconcile() {
	c.mu.RLock()
	ch := c.triggerCh
	state := c.state
	deleted := c.deleted
	c.mu.RUnlock()

	if ch == nil || deleted || state != api.StateWatching {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

// shutdown stops the scheduler, the watcher and the lane, in that order, and
// waits for an in-flight pass. Callers hold opMu.
func (c *Controller) shutdown() {
	if c.scheduler != nil {
		c.scheduler.Stop()
		c.scheduler = nil
	}
	if c.watcher != nil {
		c.watcher.Stop()
		c.watcher = nil
	}
	if c.stopCh != nil {
		close(c.stopCh)
		<-c.laneDone
		c.stopCh = nil
		c.laneDone = nil
	}
	c.mu.Lock()
	c.triggerCh = nil
	c.mu.Unlock()
}

// lane holds what the reconcile goroutine needs, captured at Start so the
// goroutine never reads controller fields that shutdown resets.
type lane struct {
	watcher   *watcher.Watcher
	scheduler *scheduler.Scheduler
	stopCh    <-chan struct{}
	triggerCh <-chan struct{}
	done      chan<- struct{}
}

func (c *Controller) run(cfg api.LinkConfig, l lane) {
	defer close(l.done)
	for {
		select {
		case <-l.stopCh:
			return
		case <-l.triggerCh:
		}

		// Stop wins over a trigger that raced it.
		select {
		case <-l.stopCh:
			return
		default:
		}

		if _, err := c.pass(context.Background(), cfg); err != nil && api.IsFatal(err) {
			c.fail(err, l)
			return
		}
	}
}

// fail moves a Watching link to Error from inside the lane. The watcher and
// scheduler are stopped here; shutdown later only reaps the lane.
func (c *Controller) fail(err error, l lane) {
	c.mu.Lock()
	c.triggerCh = nil
	c.mu.Unlock()
	l.scheduler.Stop()
	l.watcher.Stop()
	c.setState(api.StateError, api.ErrorMessage(err), err)
}

func (c *Controller) pass(ctx context.Context, cfg api.LinkConfig) (reconciler.Report, error) {
	c.mu.RLock()
	previous := c.previous
	c.mu.RUnlock()

	report, err := c.rec.Reconcile(ctx, cfg, previous)
	if err != nil {
		if api.IsFatal(err) {
			c.log.Record(api.ActivityFailed, cfg.Target, err.Error())
			logging.Error(subsystem, err, "Link %s pass failed", cfg.ID)
		}
		return report, err
	}

	c.mu.Lock()
	c.previous = report.State
	c.lastReport = report
	c.lastReconcile = report.StartedAt.Add(report.Duration)
	c.mu.Unlock()
	return report, nil
}

func (c *Controller) onDegraded(err error) {
	c.mu.Lock()
	if c.degraded || c.state == api.StateStopped {
		c.mu.Unlock()
		return
	}
	c.degraded = true
	cfg := c.cfg
	state := c.state
	msg := api.WatchingMessage(len(cfg.Sources)) + " (rescan only)"
	if state == api.StateWatching {
		c.message = msg
	}
	c.mu.Unlock()

	c.log.Record(api.ActivityWarning, cfg.Target, "change notifications unavailable, relying on periodic rescan: "+err.Error())
	logging.Warn(subsystem, "Link %s running in rescan-only mode: %v", cfg.ID, err)
	if state == api.StateWatching {
		c.notify(api.StateWatching, msg, err)
	}
}

// setState records a transition, writes a State activity entry and notifies
// the status callback outside the lock.
func (c *Controller) setState(state api.LinkState, message string, err error) {
	c.mu.Lock()
	old := c.state
	c.state = state
	c.message = message
	c.lastErr = err
	target := c.cfg.Target
	c.mu.Unlock()

	c.log.Record(api.ActivityState, target, message)
	if old != state {
		logging.Info(subsystem, "Link %s: %s -> %s", c.id, old, state)
	}
	c.notify(state, message, err)
}

func (c *Controller) notify(state api.LinkState, message string, err error) {
	if c.opts.OnStatus == nil {
		return
	}
	c.opts.OnStatus(api.StatusUpdate{
		LinkID:  c.id,
		Name:    c.Config().Name,
		State:   state,
		Message: message,
		Err:     err,
		Time:    time.Now(),
	})
}
