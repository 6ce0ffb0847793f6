// Package scanner computes the desired mirror state from a link's ordered
// source roots.
package scanner

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"symsync/internal/api"
	"symsync/internal/symlink"
)

// systemNames are never mirrored regardless of root.
var systemNames = map[string]struct{}{
	"desktop.ini":               {},
	"thumbs.db":                 {},
	"$recycle.bin":              {},
	"system volume information": {},
	"lost+found":                {},
}

// Hidden reports whether name is filtered out of every mirror.
func Hidden(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	_, ok := systemNames[strings.ToLower(name)]
	return ok
}

// Result is the outcome of one scan.
type Result struct {
	// Entries are the winning entries in root order, then name order.
	Entries []api.MirrorEntry
	// Conflicts are entries that lost a name collision to an earlier root.
	Conflicts []api.MirrorEntry
	// RootErrors holds roots that could not be read, keyed by root path.
	RootErrors map[string]error

	byName map[string]int
}

// Lookup returns the winning entry for name.
func (r *Result) Lookup(name string) (api.MirrorEntry, bool) {
	if i, ok := r.byName[name]; ok {
		return r.Entries[i], true
	}
	return api.MirrorEntry{}, false
}

// Failed reports whether sourcePath lies under a root that could not be read.
func (r *Result) Failed(sourcePath string) bool {
	for root := range r.RootErrors {
		if sourcePath == root || strings.HasPrefix(sourcePath, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Scanner enumerates source roots through an FS.
type Scanner struct {
	fs symlink.FS
}

// New creates a Scanner. A nil fsys means the host filesystem.
func New(fsys symlink.FS) *Scanner {
	if fsys == nil {
		fsys = symlink.NewOS()
	}
	return &Scanner{fs: fsys}
}

type rootListing struct {
	entries []api.MirrorEntry
	err     error
}

// Scan reads the immediate children of every root. Roots are read in
// parallel and merged in the order given, so an earlier root always wins a
// name collision. Scan is read-only and only fails if ctx is cancelled.
func (s *Scanner) Scan(ctx context.Context, roots []string) (*Result, error) {
	listings := make([]rootListing, len(roots))

	g, gctx := errgroup.WithContext(ctx)
	for i, root := range roots {
		i, root := i, root
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			listings[i] = s.readRoot(root)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{
		RootErrors: make(map[string]error),
		byName:     make(map[string]int),
	}
	for i, root := range roots {
		l := listings[i]
		if l.err != nil {
			res.RootErrors[filepath.Clean(root)] = l.err
			continue
		}
		for _, e := range l.entries {
			if _, taken := res.byName[e.Name]; taken {
				e.Status = api.EntryConflicted
				res.Conflicts = append(res.Conflicts, e)
				continue
			}
			res.byName[e.Name] = len(res.Entries)
			res.Entries = append(res.Entries, e)
		}
	}
	return res, nil
}

func (s *Scanner) readRoot(root string) rootListing {
	root = filepath.Clean(root)
	dirEntries, err := s.fs.ReadDir(root)
	if err != nil {
		return rootListing{err: err}
	}

	out := make([]api.MirrorEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if Hidden(name) {
			continue
		}
		path := filepath.Join(root, name)
		isDir := de.IsDir()
		if de.Type()&fs.ModeSymlink != 0 {
			if info, err := s.fs.Stat(path); err == nil {
				isDir = info.IsDir()
			}
		}
		out = append(out, api.MirrorEntry{
			Name:       name,
			Root:       root,
			SourcePath: path,
			IsDir:      isDir,
			Status:     api.EntryMissing,
		})
	}
	return rootListing{entries: out}
}
