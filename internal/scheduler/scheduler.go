// Package scheduler fires a periodic recovery trigger for one link.
package scheduler

import (
	"sync"
	"time"

	"symsync/internal/api"
	"symsync/pkg/logging"
)

// Scheduler calls a trigger every interval until stopped.
type Scheduler struct {
	mu       sync.Mutex
	interval time.Duration
	trigger  func()
	timer    *time.Timer
	// gen invalidates callbacks from timers that were replaced or stopped.
	gen     uint64
	running bool
}

// New creates a stopped Scheduler. An interval outside the allowed bounds is
// clamped.
func New(interval time.Duration, trigger func()) *Scheduler {
	return &Scheduler{interval: clamp(interval), trigger: trigger}
}

func clamp(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return api.DefaultRescanInterval
	case d < api.MinRescanInterval:
		return api.MinRescanInterval
	case d > api.MaxRescanInterval:
		return api.MaxRescanInterval
	default:
		return d
	}
}

// Start arms the timer. The first tick happens one interval from now.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.armLocked()
}

// SetInterval changes the interval and restarts the timer from now.
func (s *Scheduler) SetInterval(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = clamp(interval)
	if s.running {
		s.armLocked()
	}
	logging.Debug("RescanScheduler", "Interval set to %s", s.interval)
}

// Interval returns the current interval.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Stop cancels the timer. No new tick starts after Stop returns, but a tick
// that was already past its check may still call the trigger once; the
// trigger must ignore calls it no longer wants.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) armLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(s.interval, func() { s.fire(gen) })
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if !s.running || gen != s.gen {
		s.mu.Unlock()
		return
	}
	// Re-arm from now so a slow trigger never accumulates drift.
	s.armLocked()
	trigger := s.trigger
	s.mu.Unlock()

	if trigger != nil {
		trigger()
	}
}
