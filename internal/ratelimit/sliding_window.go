package ratelimit

import (
	"context"
	"sync"
	"time"
)

// SlidingWindow is the local, in-process limiter. Per-key timestamp lists
// are pruned on every call; keys idle for several windows are dropped by an
// opportunistic cleanup pass so the map cannot grow without bound.
type SlidingWindow struct {
	name string
	cfg  Config

	mu          sync.Mutex
	events      map[string][]time.Time
	lastCleanup time.Time

	// now is swappable for tests.
	now func() time.Time
}

// NewSlidingWindow creates a named local limiter with the given budget.
func NewSlidingWindow(name string, cfg Config) *SlidingWindow {
	return &SlidingWindow{
		name:   name,
		cfg:    cfg,
		events: make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Acquire admits the call if fewer than MaxRequests events fall within the
// trailing window, recording the new event on admission.
func (s *SlidingWindow) Acquire(_ context.Context, key string) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-s.cfg.Window)

	kept := prune(s.events[key], cutoff)

	if len(kept) >= s.cfg.MaxRequests {
		s.events[key] = kept
		retryAfter := kept[0].Add(s.cfg.Window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		s.maybeCleanup(now)
		return Decision{Allowed: false, RetryAfter: retryAfter}, nil
	}

	s.events[key] = append(kept, now)
	s.maybeCleanup(now)
	return Decision{Allowed: true, Remaining: s.cfg.MaxRequests - len(kept) - 1}, nil
}

// Usage reports the consumed fraction of the window for key.
func (s *SlidingWindow) Usage(_ context.Context, key string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.MaxRequests == 0 {
		return 0
	}
	cutoff := s.now().Add(-s.cfg.Window)
	return float64(len(prune(s.events[key], cutoff))) / float64(s.cfg.MaxRequests)
}

func prune(events []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(events) && !events[idx].After(cutoff) {
		idx++
	}
	return events[idx:]
}

// maybeCleanup drops keys whose entire history has aged out. Runs at most
// once per window; caller holds the lock.
func (s *SlidingWindow) maybeCleanup(now time.Time) {
	if now.Sub(s.lastCleanup) < s.cfg.Window {
		return
	}
	s.lastCleanup = now
	cutoff := now.Add(-3 * s.cfg.Window)
	for key, events := range s.events {
		if len(events) == 0 || events[len(events)-1].Before(cutoff) {
			delete(s.events, key)
		}
	}
}
