// Package reconciler brings a link's target directory in line with its
// sources.
//
// # Overview
//
// A Reconciler owns the manifest of one link: the set of names in the target
// that this link created. Each pass scans the sources, compares the desired
// entries with the manifest and the target, and applies the smallest set of
// symlink operations that closes the gap. Entries in the target that are not
// in the manifest are never removed or replaced.
//
// # Pass order
//
// Within a pass, removals are applied first, then additions, then repairs. A
// repair is a remove followed by a create. A failure on one entry is logged
// and counted but never stops the rest of the pass. Only an unusable target
// directory aborts a pass, with a KindFatal error.
//
// # Usage
//
//	r := reconciler.New(linkID, ops, scan, log, reconciler.GetMetrics())
//	if _, err := r.Adopt(cfg); err != nil {
//	    return err
//	}
//	report, err := r.Reconcile(ctx, cfg, nil)
//
// A Reconciler is not safe for concurrent use. The link controller calls it
// from a single lane.
package reconciler
