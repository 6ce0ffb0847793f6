// Package registry holds every configured link and enforces the invariants
// that span links.
package registry

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"symsync/internal/activity"
	"symsync/internal/api"
	"symsync/internal/config"
	"symsync/internal/controller"
	"symsync/internal/reconciler"
	"symsync/internal/symlink"
	"symsync/pkg/logging"
)

const subsystem = "LinkRegistry"

// Options configures a Registry.
type Options struct {
	Settings config.Settings

	// FS overrides the filesystem for every controller.
	FS symlink.FS

	// Metrics defaults to reconciler.GetMetrics().
	Metrics *reconciler.Metrics
}

// LinkInfo is a read-only view of one link.
type LinkInfo struct {
	Config api.LinkConfig
	Status controller.Status
}

type link struct {
	cfg  api.LinkConfig
	ctrl *controller.Controller
}

// Registry is the process-wide set of links.
type Registry struct {
	// mu guards the in-memory config set only. Controllers are never
	// started, stopped or reconciled while it is held.
	mu    sync.RWMutex
	order []string
	links map[string]*link

	opts Options

	subMu        sync.RWMutex
	subscribers  map[int]api.StatusFunc
	activitySubs map[int]func(api.ActivityEntry)
	nextSubID    int

	newID func() string
}

// New creates an empty registry.
func New(opts Options) *Registry {
	if opts.Metrics == nil {
		opts.Metrics = reconciler.GetMetrics()
	}
	return &Registry{
		links:       make(map[string]*link),
		opts:        opts,
		subscribers:  make(map[int]api.StatusFunc),
		activitySubs: make(map[int]func(api.ActivityEntry)),
		newID:        uuid.NewString,
	}
}

// Settings returns the settings the registry was created with.
func (r *Registry) Settings() config.Settings {
	return r.opts.Settings
}

// newController builds the controller for cfg. A restored log is seeded
// before this call, so only new entries reach activity subscribers.
func (r *Registry) newController(cfg api.LinkConfig, log *activity.Log) *controller.Controller {
	ctrl := controller.New(cfg, controller.Options{
		Debounce:     r.opts.Settings.Debounce(),
		LogRetention: r.opts.Settings.Retention(),
		Log:          log,
		FS:           r.opts.FS,
		Metrics:      r.opts.Metrics,
		OnStatus:     r.broadcast,
	})
	ctrl.Log().OnAppend(r.broadcastActivity)
	return ctrl
}

func (r *Registry) prepare(cfg api.LinkConfig) (api.LinkConfig, error) {
	if cfg.RescanInterval == 0 {
		cfg.RescanInterval = r.opts.Settings.RescanInterval()
	}
	return api.NormalizeLink(cfg)
}

// checkGlobalLocked rejects cfg if another link already uses its target.
func (r *Registry) checkGlobalLocked(cfg api.LinkConfig, exclude string) error {
	for id, l := range r.links {
		if id == exclude {
			continue
		}
		if l.cfg.Target == cfg.Target {
			return api.Errorf(api.KindDuplicateTarget, "validate", cfg.Target,
				"target already used by link %s", l.cfg.DisplayName())
		}
	}
	return nil
}

// AddLink validates cfg, assigns it an ID and registers it Stopped.
func (r *Registry) AddLink(cfg api.LinkConfig) (api.LinkConfig, error) {
	norm, err := r.prepare(cfg)
	if err != nil {
		return api.LinkConfig{}, err
	}
	if err := api.CheckSources(norm); err != nil {
		return api.LinkConfig{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkGlobalLocked(norm, ""); err != nil {
		return api.LinkConfig{}, err
	}
	norm.ID = r.newID()
	r.insertLocked(norm, nil)
	logging.Info(subsystem, "Added link %s (%s)", norm.ID, norm.DisplayName())
	return norm.Clone(), nil
}

func (r *Registry) insertLocked(cfg api.LinkConfig, log *activity.Log) {
	r.links[cfg.ID] = &link{cfg: cfg, ctrl: r.newController(cfg, log)}
	r.order = append(r.order, cfg.ID)
}

// UpdateLink replaces the configuration of a Stopped link.
func (r *Registry) UpdateLink(id string, cfg api.LinkConfig) (api.LinkConfig, error) {
	cfg.ID = id
	norm, err := r.prepare(cfg)
	if err != nil {
		return api.LinkConfig{}, err
	}
	if err := api.CheckSources(norm); err != nil {
		return api.LinkConfig{}, err
	}

	r.mu.Lock()
	l, ok := r.links[id]
	if !ok {
		r.mu.Unlock()
		return api.LinkConfig{}, api.NewNotFoundError(id)
	}
	if state := l.ctrl.State(); state != api.StateStopped {
		r.mu.Unlock()
		return api.LinkConfig{}, api.Errorf(api.KindLinkActive, "updateLink", id, "link must be stopped, it is %s", state)
	}
	if err := r.checkGlobalLocked(norm, id); err != nil {
		r.mu.Unlock()
		return api.LinkConfig{}, err
	}
	old := l.cfg
	norm.Active = old.Active
	l.cfg = norm
	r.mu.Unlock()

	if err := l.ctrl.UpdateConfig(norm); err != nil {
		r.mu.Lock()
		l.cfg = old
		r.mu.Unlock()
		return api.LinkConfig{}, err
	}
	logging.Info(subsystem, "Updated link %s", id)
	return norm.Clone(), nil
}

// DeleteLink stops the link, removes its symlinks and forgets it. The link
// is forgotten even when some symlinks could not be removed; those failures
// are returned and recorded in its activity log.
func (r *Registry) DeleteLink(id string) error {
	l, err := r.lookup(id)
	if err != nil {
		return err
	}

	deleteErr := l.ctrl.Delete()

	r.mu.Lock()
	delete(r.links, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	logging.Info(subsystem, "Deleted link %s", id)
	return deleteErr
}

// Start starts a link and marks it active.
func (r *Registry) Start(ctx context.Context, id string) error {
	l, err := r.lookup(id)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if err := r.checkGlobalLocked(l.cfg, id); err != nil {
		r.mu.Unlock()
		return err
	}
	l.cfg.Active = true
	r.mu.Unlock()

	return l.ctrl.Start(ctx)
}

// Stop stops a link and marks it inactive.
func (r *Registry) Stop(id string) error {
	l, err := r.lookup(id)
	if err != nil {
		return err
	}
	r.mu.Lock()
	l.cfg.Active = false
	r.mu.Unlock()
	return l.ctrl.Stop()
}

// SetActive changes whether the link is started by StartActive without
// starting or stopping it.
func (r *Registry) SetActive(id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[id]
	if !ok {
		return api.NewNotFoundError(id)
	}
	l.cfg.Active = active
	return nil
}

// SetInterval changes a link's rescan interval in any state. A Watching link
// re-arms its scheduler from now.
func (r *Registry) SetInterval(id string, d time.Duration) error {
	if d < api.MinRescanInterval || d > api.MaxRescanInterval {
		return api.Errorf(api.KindInvalidConfig, "setInterval", id,
			"rescan interval %s outside %s..%s", d, api.MinRescanInterval, api.MaxRescanInterval)
	}
	l, err := r.lookup(id)
	if err != nil {
		return err
	}
	if err := l.ctrl.SetInterval(d); err != nil {
		return err
	}
	r.mu.Lock()
	l.cfg.RescanInterval = d
	r.mu.Unlock()
	logging.Info(subsystem, "Link %s rescan interval set to %s", id, d)
	return nil
}

// Sync runs or queues a reconcile pass for one link.
func (r *Registry) Sync(ctx context.Context, id string) (reconciler.Report, error) {
	l, err := r.lookup(id)
	if err != nil {
		return reconciler.Report{}, err
	}
	return l.ctrl.Sync(ctx)
}

func (r *Registry) lookup(id string) (*link, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.links[id]
	if !ok {
		return nil, api.NewNotFoundError(id)
	}
	return l, nil
}

func (r *Registry) info(l *link) LinkInfo {
	r.mu.RLock()
	cfg := l.cfg.Clone()
	r.mu.RUnlock()
	return LinkInfo{Config: cfg, Status: l.ctrl.Status()}
}

// Get returns one link.
func (r *Registry) Get(id string) (LinkInfo, error) {
	l, err := r.lookup(id)
	if err != nil {
		return LinkInfo{}, err
	}
	return r.info(l), nil
}

// List returns every link in registration order.
func (r *Registry) List() []LinkInfo {
	r.mu.RLock()
	links := make([]*link, 0, len(r.order))
	for _, id := range r.order {
		links = append(links, r.links[id])
	}
	r.mu.RUnlock()

	out := make([]LinkInfo, 0, len(links))
	for _, l := range links {
		out = append(out, r.info(l))
	}
	return out
}

// Resolve maps a user reference (ID, unique ID prefix or unique name) to an
// ID.
func (r *Registry) Resolve(ref string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.links[ref]; ok {
		return ref, nil
	}
	var matches []string
	for _, id := range r.order {
		l := r.links[id]
		if l.cfg.Name == ref || (len(ref) >= 4 && strings.HasPrefix(id, ref)) {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", api.NewNotFoundError(ref)
	default:
		sort.Strings(matches)
		return "", api.Errorf(api.KindInvalidConfig, "resolve", ref, "ambiguous reference, matches %s", strings.Join(matches, ", "))
	}
}

// Tail returns up to max of the link's most recent activity entries, oldest
// first.
func (r *Registry) Tail(id string, max int) ([]api.ActivityEntry, error) {
	l, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	return l.ctrl.Log().Tail(max), nil
}

// Subscribe registers fn for status updates from every link. The returned
// function removes the subscription.
func (r *Registry) Subscribe(fn api.StatusFunc) func() {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	id := r.nextSubID
	r.nextSubID++
	r.subscribers[id] = fn
	return func() {
		r.subMu.Lock()
		defer r.subMu.Unlock()
		delete(r.subscribers, id)
	}
}

// SubscribeActivity registers fn for every activity entry recorded by any
// link from now on. The returned function removes the subscription.
func (r *Registry) SubscribeActivity(fn func(api.ActivityEntry)) func() {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	id := r.nextSubID
	r.nextSubID++
	r.activitySubs[id] = fn
	return func() {
		r.subMu.Lock()
		defer r.subMu.Unlock()
		delete(r.activitySubs, id)
	}
}

func (r *Registry) broadcastActivity(entry api.ActivityEntry) {
	r.subMu.RLock()
	subs := make([]func(api.ActivityEntry), 0, len(r.activitySubs))
	for _, fn := range r.activitySubs {
		subs = append(subs, fn)
	}
	r.subMu.RUnlock()

	for _, fn := range subs {
		fn(entry)
	}
}

// Metrics returns the reconcile counters of one link. A link that has not
// run a pass yet has zero counters.
func (r *Registry) Metrics(id string) (reconciler.LinkMetricView, error) {
	if _, err := r.lookup(id); err != nil {
		return reconciler.LinkMetricView{}, err
	}
	view, ok := r.opts.Metrics.GetLinkMetrics(id)
	if !ok {
		view.LinkID = id
	}
	return view, nil
}

// MetricsSummary returns process-wide reconcile totals.
func (r *Registry) MetricsSummary() reconciler.Summary {
	return r.opts.Metrics.GetSummary()
}

func (r *Registry) broadcast(update api.StatusUpdate) {
	r.subMu.RLock()
	subs := make([]api.StatusFunc, 0, len(r.subscribers))
	for _, fn := range r.subscribers {
		subs = append(subs, fn)
	}
	r.subMu.RUnlock()

	for _, fn := range subs {
		fn(update)
	}
}

// Serialize captures every link with the tail of its activity log.
func (r *Registry) Serialize() config.Snapshot {
	snap := config.Snapshot{Settings: r.opts.Settings}
	tail := r.opts.Settings.LogTail()
	for _, info := range r.List() {
		l, err := r.lookup(info.Config.ID)
		if err != nil {
			continue
		}
		snap.Links = append(snap.Links, config.NewLinkSpec(info.Config, l.ctrl.Log().Tail(tail)))
	}
	return snap
}

// Load registers the links of snap without starting any. Links that break an
// invariant are skipped and reported in the returned error.
func (r *Registry) Load(snap config.Snapshot) error {
	var errs []error
	for _, spec := range snap.Links {
		cfg := spec.ToConfig(r.opts.Settings)
		norm, err := r.prepare(cfg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if norm.ID == "" {
			norm.ID = r.newID()
		}

		log := activity.NewLog(norm.ID, r.opts.Settings.Retention())
		log.Seed(spec.Entries())

		r.mu.Lock()
		if _, dup := r.links[norm.ID]; dup {
			r.mu.Unlock()
			errs = append(errs, api.Errorf(api.KindInvalidConfig, "restore", norm.ID, "duplicate link id"))
			continue
		}
		if err := r.checkGlobalLocked(norm, ""); err != nil {
			r.mu.Unlock()
			errs = append(errs, err)
			continue
		}
		r.insertLocked(norm, log)
		r.mu.Unlock()
	}
	return errors.Join(errs...)
}

// Restore loads snap and starts its active links in registry order. A link
// that fails to start stays registered in StateError.
func (r *Registry) Restore(ctx context.Context, snap config.Snapshot) error {
	loadErr := r.Load(snap)
	return errors.Join(loadErr, r.StartActive(ctx))
}

// StartActive starts every link whose Active flag is set, in registry order.
func (r *Registry) StartActive(ctx context.Context) error {
	var errs []error
	for _, info := range r.List() {
		if !info.Config.Active {
			continue
		}
		if err := r.Start(ctx, info.Config.ID); err != nil {
			logging.Warn(subsystem, "Link %s failed to start: %v", info.Config.ID, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StopAll stops every link concurrently and waits for in-flight passes.
// Active flags are kept so the next Restore starts the same links.
func (r *Registry) StopAll() error {
	r.mu.RLock()
	ctrls := make([]*controller.Controller, 0, len(r.links))
	for _, id := range r.order {
		ctrls = append(ctrls, r.links[id].ctrl)
	}
	r.mu.RUnlock()

	var g errgroup.Group
	for _, c := range ctrls {
		g.Go(c.Stop)
	}
	return g.Wait()
}
