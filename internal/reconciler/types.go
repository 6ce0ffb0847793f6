package reconciler

import (
	"fmt"
	"sort"
	"time"

	"symsync/internal/api"
)

// State is the desired mirror computed by a pass. It is handed back to the
// next pass as previous so only newly observed conflicts are logged.
type State struct {
	// Entries holds every winning entry with its status after the pass.
	Entries []api.MirrorEntry

	// Conflicts holds the keys of all conflicts seen in the pass.
	Conflicts map[string]struct{}
}

func newState() *State {
	return &State{Conflicts: make(map[string]struct{})}
}

func (s *State) hasConflict(key string) bool {
	if s == nil {
		return false
	}
	_, ok := s.Conflicts[key]
	return ok
}

// Sorted returns a copy of Entries ordered by name.
func (s *State) Sorted() []api.MirrorEntry {
	if s == nil {
		return nil
	}
	out := append([]api.MirrorEntry(nil), s.Entries...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Report summarizes one reconcile pass.
type Report struct {
	Added      int
	Removed    int
	Repaired   int
	Conflicted int
	Failed     int

	// State is the desired state after this pass.
	State *State

	StartedAt time.Time
	Duration  time.Duration
}

// Changed reports whether the pass mutated the target.
func (r Report) Changed() bool {
	return r.Added+r.Removed+r.Repaired > 0
}

func (r Report) String() string {
	return fmt.Sprintf("added %d, removed %d, repaired %d, conflicted %d, failed %d in %s",
		r.Added, r.Removed, r.Repaired, r.Conflicted, r.Failed, r.Duration.Round(time.Millisecond))
}
