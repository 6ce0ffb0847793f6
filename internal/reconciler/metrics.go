package reconciler

import (
	"sort"
	"sync"
	"time"

	"symsync/pkg/logging"
)

// Metrics tracks reconcile passes per link.
//
// All methods are safe on a nil receiver so callers can run without metrics.
type Metrics struct {
	mu sync.RWMutex

	links map[string]*linkMetrics

	totalPasses   int64
	totalFailures int64
}

// linkMetrics holds counters for a single link.
type linkMetrics struct {
	LinkID        string
	Passes        int64
	Failures      int64
	Added         int64
	Removed       int64
	Repaired      int64
	FailedOps     int64
	Conflicted    int
	LastPassAt    time.Time
	LastFailureAt time.Time
	LastDuration  time.Duration
}

// NewMetrics creates an empty Metrics.
func NewMetrics() *Metrics {
	return &Metrics{links: make(map[string]*linkMetrics)}
}

func (m *Metrics) getOrCreate(linkID string) *linkMetrics {
	if lm, ok := m.links[linkID]; ok {
		return lm
	}
	lm := &linkMetrics{LinkID: linkID}
	m.links[linkID] = lm
	return lm
}

// RecordPass records a completed pass.
func (m *Metrics) RecordPass(linkID string, report Report) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	lm := m.getOrCreate(linkID)
	lm.Passes++
	lm.Added += int64(report.Added)
	lm.Removed += int64(report.Removed)
	lm.Repaired += int64(report.Repaired)
	lm.FailedOps += int64(report.Failed)
	lm.Conflicted = report.Conflicted
	lm.LastPassAt = report.StartedAt.Add(report.Duration)
	lm.LastDuration = report.Duration
	m.totalPasses++
}

// RecordFailure records a pass that aborted.
func (m *Metrics) RecordFailure(linkID, reason string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	lm := m.getOrCreate(linkID)
	lm.Failures++
	lm.LastFailureAt = time.Now()
	m.totalFailures++

	logging.Warn("ReconcilerMetrics", "Pass failed for link %s: %s (failures: %d)", linkID, reason, lm.Failures)
}

// Forget drops the counters of a deleted link.
func (m *Metrics) Forget(linkID string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.links, linkID)
}

// Summary is a point-in-time view of all reconcile metrics.
type Summary struct {
	TotalPasses   int64            `json:"total_passes"`
	TotalFailures int64            `json:"total_failures"`
	FailureRate   float64          `json:"failure_rate"`
	PerLink       []LinkMetricView `json:"per_link"`
}

// LinkMetricView is a read-only copy of one link's counters.
type LinkMetricView struct {
	LinkID        string        `json:"link_id"`
	Passes        int64         `json:"passes"`
	Failures      int64         `json:"failures"`
	Added         int64         `json:"added"`
	Removed       int64         `json:"removed"`
	Repaired      int64         `json:"repaired"`
	FailedOps     int64         `json:"failed_ops"`
	Conflicted    int           `json:"conflicted"`
	LastPassAt    time.Time     `json:"last_pass_at,omitempty"`
	LastFailureAt time.Time     `json:"last_failure_at,omitempty"`
	LastDuration  time.Duration `json:"last_duration"`
}

func (lm *linkMetrics) view() LinkMetricView {
	return LinkMetricView(*lm)
}

// GetLinkMetrics returns the counters for linkID.
func (m *Metrics) GetLinkMetrics(linkID string) (LinkMetricView, bool) {
	if m == nil {
		return LinkMetricView{}, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	lm, ok := m.links[linkID]
	if !ok {
		return LinkMetricView{}, false
	}
	return lm.view(), true
}

// GetSummary returns totals plus per-link views sorted by link ID.
func (m *Metrics) GetSummary() Summary {
	if m == nil {
		return Summary{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Summary{
		TotalPasses:   m.totalPasses,
		TotalFailures: m.totalFailures,
		PerLink:       make([]LinkMetricView, 0, len(m.links)),
	}
	if total := m.totalPasses + m.totalFailures; total > 0 {
		s.FailureRate = float64(m.totalFailures) / float64(total)
	}
	for _, lm := range m.links {
		s.PerLink = append(s.PerLink, lm.view())
	}
	sort.Slice(s.PerLink, func(i, j int) bool { return s.PerLink[i].LinkID < s.PerLink[j].LinkID })
	return s
}

var (
	globalMetrics   *Metrics
	globalMetricsMu sync.RWMutex
)

// GetMetrics returns the process-wide Metrics, creating it on first use.
func GetMetrics() *Metrics {
	globalMetricsMu.RLock()
	if globalMetrics != nil {
		defer globalMetricsMu.RUnlock()
		return globalMetrics
	}
	globalMetricsMu.RUnlock()

	globalMetricsMu.Lock()
	defer globalMetricsMu.Unlock()
	if globalMetrics == nil {
		globalMetrics = NewMetrics()
	}
	return globalMetrics
}
