// Package throttle implements a per-identifier fixed-window request limiter.
//
// A window opens on the first request from an identifier and admits at most
// limit requests until it expires; the first request at or after expiry opens
// a new window. Up to 2*limit requests can therefore be admitted in a span of
// 2*window straddling a reset.
package throttle

import (
	"sync"
	"time"
)

// Decision is the result of a Check, with enough detail for rate-limit headers.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAfter time.Duration
}

type window struct {
	count   int
	resetAt time.Time
}

// Guard tracks windows in process memory. The zero value is not usable; call New.
type Guard struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

// Option configures a Guard.
type Option func(*Guard)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// New returns a Guard admitting limit requests per window per identifier.
// A limit below 1 is treated as 1.
func New(limit int, win time.Duration, opts ...Option) *Guard {
	if limit < 1 {
		limit = 1
	}
	g := &Guard{
		limit:   limit,
		window:  win,
		now:     time.Now,
		windows: make(map[string]*window),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Limit is the configured number of requests per window.
func (g *Guard) Limit() int { return g.limit }

// Window is the configured window length.
func (g *Guard) Window() time.Duration { return g.window }

// Allow reports whether a request from id is permitted now, consuming a slot if so.
func (g *Guard) Allow(id string) bool {
	return g.Check(id).Allowed
}

// Check is Allow returning the post-decision window state.
// A denied request leaves the window untouched.
func (g *Guard) Check(id string) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	w, ok := g.windows[id]
	if !ok || !now.Before(w.resetAt) {
		w = &window{count: 1, resetAt: now.Add(g.window)}
		g.windows[id] = w
		return g.decision(true, w, now)
	}
	if w.count < g.limit {
		w.count++
		return g.decision(true, w, now)
	}
	return g.decision(false, w, now)
}

func (g *Guard) decision(allowed bool, w *window, now time.Time) Decision {
	return Decision{
		Allowed:    allowed,
		Limit:      g.limit,
		Remaining:  g.limit - w.count,
		ResetAfter: w.resetAt.Sub(now),
	}
}

// Remaining is the number of requests id may still make in its current window,
// or the full limit when it has no active window.
func (g *Guard) Remaining(id string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	w, ok := g.active(id, g.now())
	if !ok {
		return g.limit
	}
	return g.limit - w.count
}

// TimeUntilReset is how long until id's current window expires; zero without one.
func (g *Guard) TimeUntilReset(id string) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	w, ok := g.active(id, now)
	if !ok {
		return 0
	}
	return w.resetAt.Sub(now)
}

// active returns id's window if it has not expired. Caller holds g.mu.
func (g *Guard) active(id string, now time.Time) (*window, bool) {
	w, ok := g.windows[id]
	if !ok || !now.Before(w.resetAt) {
		return nil, false
	}
	return w, true
}

// Sweep drops expired windows and returns how many were removed.
// Expired entries already behave as absent, so sweeping only bounds memory.
func (g *Guard) Sweep() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	removed := 0
	for id, w := range g.windows {
		if !now.Before(w.resetAt) {
			delete(g.windows, id)
			removed++
		}
	}
	return removed
}

// Len is the number of tracked identifiers, including expired ones not yet swept.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.windows)
}
