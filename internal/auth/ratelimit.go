package auth

import (
	"sync"
	"time"
)

const (
	defaultLimiterAttempts = 10
	defaultLimiterWindow   = time.Minute
	limiterSweepEvery      = 256
)

// Limiter is a sliding-window attempt counter keyed by client identifier,
// guarding the refresh endpoint against brute force. In-memory and
// instance-local: the refresh endpoint is also protected by refresh token
// validity itself, so losing counters on restart is acceptable.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	calls   int

	max    int
	window time.Duration
	now    func() time.Time
}

type limiterEntry struct {
	attempts int
	resetAt  time.Time
}

// NewLimiter constructs a limiter allowing max attempts per window.
func NewLimiter(max int, window time.Duration, now func() time.Time) *Limiter {
	if max <= 0 {
		max = defaultLimiterAttempts
	}
	if window <= 0 {
		window = defaultLimiterWindow
	}
	if now == nil {
		now = time.Now
	}
	return &Limiter{
		entries: make(map[string]*limiterEntry),
		max:     max,
		window:  window,
		now:     now,
	}
}

// Allow counts one attempt for the key and reports whether it is within
// the window budget. The first attempt of a window sets the reset time.
func (l *Limiter) Allow(key string) bool {
	if key == "" {
		key = "unknown"
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.calls++
	if l.calls%limiterSweepEvery == 0 {
		l.sweepLocked(now)
	}

	e, ok := l.entries[key]
	if !ok || now.After(e.resetAt) {
		l.entries[key] = &limiterEntry{attempts: 1, resetAt: now.Add(l.window)}
		return true
	}
	e.attempts++
	return e.attempts <= l.max
}

// Reset clears the counter for a key. Called after a successful refresh so
// a legitimate client is not penalized for earlier failed attempts.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

// RetryAfter reports how long the key remains throttled.
func (l *Limiter) RetryAfter(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		return 0
	}
	d := e.resetAt.Sub(l.now())
	if d < 0 {
		return 0
	}
	return d
}

func (l *Limiter) sweepLocked(now time.Time) {
	for key, e := range l.entries {
		if now.After(e.resetAt) {
			delete(l.entries, key)
		}
	}
}
