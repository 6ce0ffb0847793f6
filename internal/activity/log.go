// Package activity keeps the bounded, per-link record of what the reconciler
// and controller did.
package activity

import (
	"sync"
	"time"

	"symsync/internal/api"
)

// DefaultRetention is the number of entries a Log keeps before evicting the
// oldest.
const DefaultRetention = 500

// Log is an append-only ring of activity entries for one link. It is safe for
// concurrent use; the controller lane writes while the registry reads.
type Log struct {
	mu        sync.RWMutex
	linkID    string
	entries   []api.ActivityEntry
	start     int
	count     int
	now       func() time.Time
	listeners []func(api.ActivityEntry)
}

// NewLog creates a log for linkID holding at most retention entries.
func NewLog(linkID string, retention int) *Log {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Log{
		linkID:  linkID,
		entries: make([]api.ActivityEntry, retention),
		now:     time.Now,
	}
}

// Append records an entry. Zero Time and LinkID are filled in.
func (l *Log) Append(e api.ActivityEntry) api.ActivityEntry {
	l.mu.Lock()
	if e.Time.IsZero() {
		e.Time = l.now()
	}
	if e.LinkID == "" {
		e.LinkID = l.linkID
	}
	size := len(l.entries)
	if l.count < size {
		l.entries[(l.start+l.count)%size] = e
		l.count++
	} else {
		l.entries[l.start] = e
		l.start = (l.start + 1) % size
	}
	listeners := l.listeners
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(e)
	}
	return e
}

// Record is shorthand for Append with the common fields.
func (l *Log) Record(kind api.ActivityKind, path, outcome string) api.ActivityEntry {
	return l.Append(api.ActivityEntry{Kind: kind, Path: path, Outcome: outcome})
}

// Tail returns up to max of the most recent entries, oldest first. max <= 0
// returns everything retained.
func (l *Log) Tail(max int) []api.ActivityEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := l.count
	if max > 0 && max < n {
		n = max
	}
	out := make([]api.ActivityEntry, n)
	size := len(l.entries)
	first := l.count - n
	for i := 0; i < n; i++ {
		out[i] = l.entries[(l.start+first+i)%size]
	}
	return out
}

// Entries returns every retained entry, oldest first.
func (l *Log) Entries() []api.ActivityEntry {
	return l.Tail(0)
}

// Seed loads previously persisted entries, keeping only the newest that fit.
func (l *Log) Seed(entries []api.ActivityEntry) {
	for _, e := range entries {
		l.Append(e)
	}
}

// OnAppend registers fn to be called after every Append, outside the lock.
func (l *Log) OnAppend(fn func(api.ActivityEntry)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(append([]func(api.ActivityEntry){}, l.listeners...), fn)
}
