package daemon

import (
	"sync"
	"time"
)

// timeNow is swapped in tests for deterministic windows.
var timeNow = time.Now

// Limiter is a sliding-window rate limiter keyed by caller. A request is
// allowed while fewer than max requests landed inside the trailing window;
// over the limit, requests fail immediately instead of queueing.
type Limiter struct {
	max    int
	window time.Duration

	mu   sync.Mutex
	hits map[string][]time.Time
}

// NewLimiter builds a limiter allowing max requests per window per key.
func NewLimiter(max int, window time.Duration) *Limiter {
	return &Limiter{
		max:    max,
		window: window,
		hits:   map[string][]time.Time{},
	}
}

// Allow records one request for key and reports whether it fits the
// window. The count returned is the in-window total including this request.
func (l *Limiter) Allow(key string) (allowed bool, count int) {
	now := timeNow()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.hits[key]
	// Drop everything that slid out of the window.
	kept := recent[:0]
	for _, t := range recent {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= l.max {
		l.hits[key] = kept
		return false, len(kept)
	}
	l.hits[key] = append(kept, now)
	return true, len(kept) + 1
}

// Forget drops all state for a key, typically when its connection closes.
func (l *Limiter) Forget(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.hits, key)
}

// Limit returns the configured max and window for log lines.
func (l *Limiter) Limit() (int, time.Duration) {
	return l.max, l.window
}
