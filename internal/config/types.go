package config

import (
	"time"

	"symsync/internal/api"
)

// Snapshot is the persisted form of the registry.
type Snapshot struct {
	Settings Settings   `yaml:"settings" toml:"settings"`
	Links    []LinkSpec `yaml:"links" toml:"links"`
}

// Settings are process-wide tunables.
type Settings struct {
	// DebounceMillis is the watcher coalescing window.
	DebounceMillis int `yaml:"debounceMs,omitempty" toml:"debounceMs,omitempty"`
	// RescanSeconds is the interval for links that do not set their own.
	RescanSeconds int `yaml:"rescanSeconds,omitempty" toml:"rescanSeconds,omitempty"`
	// LogRetention bounds each link's in-memory activity log.
	LogRetention int `yaml:"logRetention,omitempty" toml:"logRetention,omitempty"`
	// SnapshotLogTail is how many activity entries per link are persisted.
	SnapshotLogTail int    `yaml:"snapshotLogTail,omitempty" toml:"snapshotLogTail,omitempty"`
	LogLevel        string `yaml:"logLevel,omitempty" toml:"logLevel,omitempty"`
}

// LinkSpec is the persisted form of one link.
type LinkSpec struct {
	ID            string      `yaml:"id" toml:"id"`
	Name          string      `yaml:"name,omitempty" toml:"name,omitempty"`
	Target        string      `yaml:"target" toml:"target"`
	Sources       []string    `yaml:"sources" toml:"sources"`
	RescanSeconds int         `yaml:"rescanSeconds,omitempty" toml:"rescanSeconds,omitempty"`
	Active        bool        `yaml:"active" toml:"active"`
	Log           []LogRecord `yaml:"log,omitempty" toml:"log,omitempty"`
}

// LogRecord is the persisted form of an activity entry.
type LogRecord struct {
	Time    time.Time `yaml:"time" toml:"time"`
	Kind    string    `yaml:"kind" toml:"kind"`
	Path    string    `yaml:"path,omitempty" toml:"path,omitempty"`
	Outcome string    `yaml:"outcome,omitempty" toml:"outcome,omitempty"`
}

// Debounce returns the debounce window, defaulted.
func (s Settings) Debounce() time.Duration {
	if s.DebounceMillis <= 0 {
		return DefaultDebounce
	}
	return time.Duration(s.DebounceMillis) * time.Millisecond
}

// RescanInterval returns the default link interval, defaulted.
func (s Settings) RescanInterval() time.Duration {
	if s.RescanSeconds <= 0 {
		return api.DefaultRescanInterval
	}
	return time.Duration(s.RescanSeconds) * time.Second
}

// Retention returns the activity log size, defaulted.
func (s Settings) Retention() int {
	if s.LogRetention <= 0 {
		return DefaultLogRetention
	}
	return s.LogRetention
}

// LogTail returns the persisted log tail size, defaulted.
func (s Settings) LogTail() int {
	if s.SnapshotLogTail <= 0 {
		return DefaultSnapshotLogTail
	}
	return s.SnapshotLogTail
}

// ToConfig converts the spec to a LinkConfig. A zero interval takes the
// settings default.
func (l LinkSpec) ToConfig(settings Settings) api.LinkConfig {
	interval := settings.RescanInterval()
	if l.RescanSeconds > 0 {
		interval = time.Duration(l.RescanSeconds) * time.Second
	}
	return api.LinkConfig{
		ID:             l.ID,
		Name:           l.Name,
		Target:         l.Target,
		Sources:        append([]string(nil), l.Sources...),
		RescanInterval: interval,
		Active:         l.Active,
	}
}

// Entries converts the persisted log to activity entries.
func (l LinkSpec) Entries() []api.ActivityEntry {
	out := make([]api.ActivityEntry, 0, len(l.Log))
	for _, r := range l.Log {
		out = append(out, api.ActivityEntry{
			Time:    r.Time,
			LinkID:  l.ID,
			Kind:    api.ActivityKind(r.Kind),
			Path:    r.Path,
			Outcome: r.Outcome,
		})
	}
	return out
}

// NewLinkSpec builds the persisted form of cfg with its log tail.
func NewLinkSpec(cfg api.LinkConfig, tail []api.ActivityEntry) LinkSpec {
	spec := LinkSpec{
		ID:            cfg.ID,
		Name:          cfg.Name,
		Target:        cfg.Target,
		Sources:       append([]string(nil), cfg.Sources...),
		RescanSeconds: int(cfg.RescanInterval / time.Second),
		Active:        cfg.Active,
	}
	for _, e := range tail {
		spec.Log = append(spec.Log, LogRecord{
			Time:    e.Time.UTC(),
			Kind:    string(e.Kind),
			Path:    e.Path,
			Outcome: e.Outcome,
		})
	}
	return spec
}

// Find returns the index of the link matching ref by ID, ID prefix or name.
func (s *Snapshot) Find(ref string) (int, bool) {
	for i, l := range s.Links {
		if l.ID == ref {
			return i, true
		}
	}
	match := -1
	for i, l := range s.Links {
		if l.Name == ref || (len(ref) >= 4 && len(l.ID) > len(ref) && l.ID[:len(ref)] == ref) {
			if match >= 0 {
				return -1, false
			}
			match = i
		}
	}
	return match, match >= 0
}
