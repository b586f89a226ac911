// Package ratelimit provides a per-key sliding-window request limiter
// for the swarm API. Each key keeps the timestamps of its requests
// inside the window; a request is allowed while fewer than the limit
// remain after pruning. Suitable for single-instance deployments.
package ratelimit

import (
	"sync"
	"time"
)

// SlidingWindow is a thread-safe sliding-window limiter.
type SlidingWindow struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	requests map[string][]time.Time
	now      func() time.Time
}

// NewSlidingWindow creates a limiter allowing limit requests per key
// within the given window.
func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{
		limit:    limit,
		window:   window,
		requests: make(map[string][]time.Time),
		now:      time.Now,
	}
}

// Allow records a request for key if it fits in the window and reports
// whether it was admitted.
func (l *SlidingWindow) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	kept := l.prune(key, now)
	if len(kept) >= l.limit {
		l.requests[key] = kept
		return false
	}
	l.requests[key] = append(kept, now)
	return true
}

// Remaining reports how many requests key may still make in the
// current window.
func (l *SlidingWindow) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.prune(key, l.now())
	l.requests[key] = kept
	if n := l.limit - len(kept); n > 0 {
		return n
	}
	return 0
}

// Limit returns the configured request limit.
func (l *SlidingWindow) Limit() int {
	return l.limit
}

// Window returns the configured window duration.
func (l *SlidingWindow) Window() time.Duration {
	return l.window
}

// Purge drops keys whose every recorded request has left the window.
// Called periodically so abandoned keys do not accumulate.
func (l *SlidingWindow) Purge() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key := range l.requests {
		if kept := l.prune(key, now); len(kept) == 0 {
			delete(l.requests, key)
		} else {
			l.requests[key] = kept
		}
	}
}

// prune returns key's timestamps still inside the window. Callers hold
// l.mu.
func (l *SlidingWindow) prune(key string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	stamps := l.requests[key]
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}
