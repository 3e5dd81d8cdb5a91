// Package ratelimit throttles login attempts per key (username).
// The counter is process-local and best effort: it is a brake on online
// guessing, not a security boundary of its own.
package ratelimit

import (
	"sync"
	"time"
)

const (
	defaultMaxAttempts = 5
	defaultWindow      = 15 * time.Minute
)

type entry struct {
	count       int
	windowStart time.Time
}

type Limiter struct {
	mu      sync.Mutex
	entries map[string]entry

	maxAttempts int
	window      time.Duration

	// now is swappable in tests
	now func() time.Time
}

func New(maxAttempts int, window time.Duration) *Limiter {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if window <= 0 {
		window = defaultWindow
	}

	return &Limiter{
		entries:     make(map[string]entry),
		maxAttempts: maxAttempts,
		window:      window,
		now:         time.Now,
	}
}

// Allow reports whether another attempt for the key is permitted
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok || l.expired(e) {
		return true
	}

	return e.count < l.maxAttempts
}

// Record counts one failed attempt for the key
func (l *Limiter) Record(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok || l.expired(e) {
		l.entries[key] = entry{count: 1, windowStart: l.now()}
		return
	}

	e.count++
	l.entries[key] = e
}

// Reset clears the counter. Called only after a fully successful login.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.entries, key)
}

func (l *Limiter) expired(e entry) bool {
	return l.now().Sub(e.windowStart) >= l.window
}
