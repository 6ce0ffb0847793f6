package reconciler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"time"

	"symsync/internal/activity"
	"symsync/internal/api"
	"symsync/internal/scanner"
	"symsync/internal/symlink"
	"symsync/pkg/logging"
)

const subsystem = "Reconciler"

// Reconciler applies the desired state of one link to its target.
type Reconciler struct {
	linkID  string
	ops     *symlink.Operations
	scan    *scanner.Scanner
	log     *activity.Log
	metrics *Metrics

	// manifest maps names this link created to the source they point at.
	manifest map[string]string
}

// New creates a Reconciler for linkID. Nil ops or scan use the host
// filesystem; a nil metrics disables metric recording.
func New(linkID string, ops *symlink.Operations, scan *scanner.Scanner, log *activity.Log, metrics *Metrics) *Reconciler {
	if ops == nil {
		ops = symlink.New(nil)
	}
	if scan == nil {
		scan = scanner.New(ops.FS())
	}
	if log == nil {
		log = activity.NewLog(linkID, 0)
	}
	return &Reconciler{
		linkID:   linkID,
		ops:      ops,
		scan:     scan,
		log:      log,
		metrics:  metrics,
		manifest: make(map[string]string),
	}
}

// EnsureTarget creates the target directory if it does not exist.
func (r *Reconciler) EnsureTarget(cfg api.LinkConfig) (bool, error) {
	info, err := r.ops.FS().Stat(cfg.Target)
	if err == nil {
		if !info.IsDir() {
			return false, api.Errorf(api.KindFatal, "ensureTarget", cfg.Target, "target is not a directory")
		}
		return false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return false, api.NewError(api.KindFatal, "ensureTarget", cfg.Target, err)
	}
	if err := r.ops.FS().MkdirAll(cfg.Target, 0o755); err != nil {
		return false, api.NewError(api.KindFatal, "ensureTarget", cfg.Target, err)
	}
	logging.Info(subsystem, "Created target directory %s", cfg.Target)
	return true, nil
}

func (r *Reconciler) checkTarget(target string) error {
	info, err := r.ops.FS().Stat(target)
	if err != nil {
		return api.NewError(api.KindFatal, "reconcile", target, fmt.Errorf("target directory unavailable: %w", err))
	}
	if !info.IsDir() {
		return api.Errorf(api.KindFatal, "reconcile", target, "target is not a directory")
	}
	return nil
}

// Adopt seeds the manifest from symlinks already in the target whose
// destination is a direct child of one of the link's sources. It returns the
// number of names adopted.
func (r *Reconciler) Adopt(cfg api.LinkConfig) (int, error) {
	entries, err := r.ops.FS().ReadDir(cfg.Target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, api.NewError(api.KindFatal, "adopt", cfg.Target, err)
	}

	sources := make(map[string]struct{}, len(cfg.Sources))
	for _, s := range cfg.Sources {
		sources[filepath.Clean(s)] = struct{}{}
	}

	adopted := 0
	for _, de := range entries {
		if de.Type()&fs.ModeSymlink == 0 {
			continue
		}
		dest, ok := r.ops.Destination(cfg.Target, de.Name())
		if !ok {
			continue
		}
		if _, mine := sources[filepath.Dir(dest)]; !mine {
			continue
		}
		if _, known := r.manifest[de.Name()]; !known {
			r.manifest[de.Name()] = dest
			adopted++
		}
	}
	if adopted > 0 {
		logging.Debug(subsystem, "Adopted %d existing link(s) in %s", adopted, cfg.Target)
	}
	return adopted, nil
}

type pending struct {
	name   string
	source string
	isDir  bool
}

// Reconcile runs one pass for cfg. previous is the State returned by the
// last pass, or nil.
func (r *Reconciler) Reconcile(ctx context.Context, cfg api.LinkConfig, previous *State) (Report, error) {
	start := time.Now()
	report := Report{StartedAt: start, State: newState()}

	if err := r.checkTarget(cfg.Target); err != nil {
		r.metrics.RecordFailure(r.linkID, err.Error())
		return report, err
	}

	res, err := r.scan.Scan(ctx, cfg.Sources)
	if err != nil {
		return report, err
	}
	for root, rootErr := range res.RootErrors {
		key := "root:" + root
		report.State.Conflicts[key] = struct{}{}
		if !previous.hasConflict(key) {
			r.log.Record(api.ActivityWarning, root, fmt.Sprintf("source unreadable, keeping its links: %v", rootErr))
			logging.Warn(subsystem, "Source %s unreadable: %v", root, rootErr)
		}
	}

	var toRemove, toAdd, toRepair []pending
	status := make(map[string]api.EntryStatus, len(res.Entries))

	// Manifest entries first: they are the only names this link may touch.
	for _, name := range sortedKeys(r.manifest) {
		owned := r.manifest[name]
		if res.Failed(owned) {
			continue
		}
		desired, ok := res.Lookup(name)
		if !ok {
			switch r.ops.Verify(cfg.Target, name, owned) {
			case api.EntryConflicted:
				// Replaced by user data; no longer ours.
				delete(r.manifest, name)
				continue
			case api.EntryMissing:
				// Link and source both gone; nothing left to remove.
				delete(r.manifest, name)
				logging.Debug(subsystem, "Link %s: dropped %s, already absent from target", r.linkID, name)
				continue
			}
			toRemove = append(toRemove, pending{name: name, source: owned})
			continue
		}

		// Verify against the desired source, so a name that moved to an
		// earlier root shows up as Broken and is repaired.
		switch r.ops.Verify(cfg.Target, name, desired.SourcePath) {
		case api.EntryConflicted:
			delete(r.manifest, name)
			status[name] = api.EntryConflicted
		case api.EntryMissing:
			toAdd = append(toAdd, pending{name: name, source: desired.SourcePath, isDir: desired.IsDir})
		case api.EntryBroken:
			toRepair = append(toRepair, pending{name: name, source: desired.SourcePath, isDir: desired.IsDir})
		default:
			r.manifest[name] = desired.SourcePath
			status[name] = api.EntryLinked
		}
	}

	for _, desired := range res.Entries {
		if _, owned := r.manifest[desired.Name]; owned {
			continue
		}
		if _, seen := status[desired.Name]; seen {
			continue
		}
		switch r.ops.Verify(cfg.Target, desired.Name, desired.SourcePath) {
		case api.EntryMissing:
			toAdd = append(toAdd, pending{name: desired.Name, source: desired.SourcePath, isDir: desired.IsDir})
		case api.EntryLinked:
			r.manifest[desired.Name] = desired.SourcePath
			status[desired.Name] = api.EntryLinked
		default:
			status[desired.Name] = api.EntryConflicted
		}
	}

	for _, p := range toRemove {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		path := filepath.Join(cfg.Target, p.name)
		if err := r.ops.Remove(cfg.Target, p.name); err != nil {
			r.fail(&report, path, "remove", err)
			continue
		}
		delete(r.manifest, p.name)
		report.Removed++
		r.log.Record(api.ActivityRemoved, path, "source entry gone")
	}

	for _, p := range toAdd {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		path := filepath.Join(cfg.Target, p.name)
		if err := r.ops.Create(cfg.Target, p.name, p.source); err != nil {
			status[p.name] = api.EntryMissing
			r.fail(&report, path, "create", err)
			continue
		}
		r.manifest[p.name] = p.source
		status[p.name] = api.EntryLinked
		report.Added++
		r.log.Record(api.ActivityAdded, path, linkedOutcome(p))
	}

	for _, p := range toRepair {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		path := filepath.Join(cfg.Target, p.name)
		if err := r.ops.Remove(cfg.Target, p.name); err != nil {
			status[p.name] = api.EntryBroken
			r.fail(&report, path, "repair", err)
			continue
		}
		if err := r.ops.Create(cfg.Target, p.name, p.source); err != nil {
			delete(r.manifest, p.name)
			status[p.name] = api.EntryMissing
			r.fail(&report, path, "repair", err)
			continue
		}
		r.manifest[p.name] = p.source
		status[p.name] = api.EntryLinked
		report.Repaired++
		r.log.Record(api.ActivityRepaired, path, linkedOutcome(p))
	}

	// Conflicts: names taken by foreign data in the target, then names lost
	// to an earlier source.
	for _, desired := range res.Entries {
		st, ok := status[desired.Name]
		if !ok {
			st = api.EntryMissing
		}
		desired.Status = st
		report.State.Entries = append(report.State.Entries, desired)
		if st != api.EntryConflicted {
			continue
		}
		key := "target:" + desired.Name
		report.State.Conflicts[key] = struct{}{}
		report.Conflicted++
		if !previous.hasConflict(key) {
			r.log.Record(api.ActivityConflicted, filepath.Join(cfg.Target, desired.Name), "name occupied by an existing entry")
		}
	}
	for _, lost := range res.Conflicts {
		key := "source:" + lost.SourcePath
		report.State.Conflicts[key] = struct{}{}
		report.Conflicted++
		if !previous.hasConflict(key) {
			winner, _ := res.Lookup(lost.Name)
			r.log.Record(api.ActivityConflicted, lost.SourcePath, "name already provided by "+winner.Root)
		}
	}

	// A target removed mid-pass shows up as a string of per-entry failures.
	if report.Failed > 0 {
		if err := r.checkTarget(cfg.Target); err != nil {
			r.metrics.RecordFailure(r.linkID, err.Error())
			return report, err
		}
	}

	report.Duration = time.Since(start)
	r.metrics.RecordPass(r.linkID, report)
	if report.Changed() || report.Failed > 0 {
		logging.Info(subsystem, "Link %s: %s", r.linkID, report)
	} else {
		logging.Debug(subsystem, "Link %s: no changes", r.linkID)
	}
	return report, nil
}

// Teardown removes every symlink in the manifest. Entries that fail are kept
// in the manifest and reported through the returned error.
func (r *Reconciler) Teardown(cfg api.LinkConfig) (int, error) {
	var errs []error
	removed := 0
	for _, name := range sortedKeys(r.manifest) {
		path := filepath.Join(cfg.Target, name)
		if err := r.ops.Remove(cfg.Target, name); err != nil {
			r.log.Record(api.ActivityFailed, path, "remove: "+err.Error())
			errs = append(errs, err)
			continue
		}
		delete(r.manifest, name)
		removed++
		r.log.Record(api.ActivityRemoved, path, "link deleted")
	}
	logging.Info(subsystem, "Removed %d link(s) from %s", removed, cfg.Target)
	return removed, errors.Join(errs...)
}

func (r *Reconciler) fail(report *Report, path, op string, err error) {
	report.Failed++
	r.log.Record(api.ActivityFailed, path, op+": "+err.Error())
	logging.Warn(subsystem, "Failed to %s %s: %v", op, path, err)
}

func linkedOutcome(p pending) string {
	if p.isDir {
		return "linked directory " + p.source
	}
	return "linked file " + p.source
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
