// Package ratelimit provides per-principal sliding-window rate limiting.
package ratelimit

import (
	"sync"
	"time"
)

// Config configures rate limiting behavior.
type Config struct {
	// Limit is the number of requests allowed per window.
	Limit int `yaml:"limit"`
	// Window is the sliding window duration.
	Window time.Duration `yaml:"window"`
	// Enabled controls whether rate limiting is active.
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns the default rate limit configuration.
func DefaultConfig() Config {
	return Config{
		Limit:   20,
		Window:  time.Minute,
		Enabled: true,
	}
}

// window tracks request timestamps for one principal.
type window struct {
	mu     sync.Mutex
	stamps []time.Time
}

// admit records the request at now if fewer than limit requests fall
// inside the window, and otherwise returns the wait until the oldest
// in-window request ages out.
func (w *window) admit(now time.Time, limit int, span time.Duration) (bool, time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-span)
	keep := w.stamps[:0]
	for _, ts := range w.stamps {
		if ts.After(cutoff) {
			keep = append(keep, ts)
		}
	}
	w.stamps = keep

	if len(w.stamps) < limit {
		w.stamps = append(w.stamps, now)
		return true, 0
	}

	retryAfter := span - now.Sub(w.stamps[0])
	if retryAfter < 0 {
		retryAfter = 0
	}
	return false, retryAfter
}

func (w *window) remaining(now time.Time, limit int, span time.Duration) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-span)
	count := 0
	for _, ts := range w.stamps {
		if ts.After(cutoff) {
			count++
		}
	}
	if count >= limit {
		return 0
	}
	return limit - count
}

func (w *window) idle(now time.Time, span time.Duration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-span)
	for _, ts := range w.stamps {
		if ts.After(cutoff) {
			return false
		}
	}
	return true
}

// Limiter manages sliding-window rate limits for multiple principals.
type Limiter struct {
	mu      sync.RWMutex
	windows map[string]*window
	config  Config
	maxKeys int
	now     func() time.Time
}

// NewLimiter creates a new rate limiter.
func NewLimiter(config Config) *Limiter {
	if config.Limit <= 0 {
		config.Limit = 20
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	return &Limiter{
		windows: make(map[string]*window),
		config:  config,
		maxKeys: 10000,
		now:     time.Now,
	}
}

// Admit checks whether a request for the given key should be allowed
// and records it if so. When denied, retryAfter is the time until the
// oldest in-window request leaves the window.
func (l *Limiter) Admit(key string) (allowed bool, retryAfter time.Duration) {
	if !l.config.Enabled {
		return true, 0
	}
	return l.getWindow(key).admit(l.now(), l.config.Limit, l.config.Window)
}

// Remaining returns how many requests the key may still make in the
// current window.
func (l *Limiter) Remaining(key string) int {
	if !l.config.Enabled {
		return l.config.Limit
	}
	return l.getWindow(key).remaining(l.now(), l.config.Limit, l.config.Window)
}

// Reset clears the rate limit state for a key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}

// Limit returns the configured per-window request limit.
func (l *Limiter) Limit() int {
	return l.config.Limit
}

// Window returns the configured window duration.
func (l *Limiter) Window() time.Duration {
	return l.config.Window
}

// getWindow returns or creates the window for the given key.
func (l *Limiter) getWindow(key string) *window {
	l.mu.RLock()
	w, exists := l.windows[key]
	l.mu.RUnlock()

	if exists {
		return w
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if w, exists = l.windows[key]; exists {
		return w
	}

	if len(l.windows) >= l.maxKeys {
		l.prune()
	}

	w = &window{}
	l.windows[key] = w
	return w
}

// prune removes windows with no in-window requests (inactive keys).
// Must be called with the write lock held.
func (l *Limiter) prune() {
	now := l.now()
	for key, w := range l.windows {
		if w.idle(now, l.config.Window) {
			delete(l.windows, key)
		}
	}
}

// Status reports the rate limit state for a key.
type Status struct {
	Key        string        `json:"key"`
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	Window     time.Duration `json:"window"`
	RetryAfter time.Duration `json:"retry_after"`
}

// StatusFor returns the current rate limit status for a key without
// consuming a request.
func (l *Limiter) StatusFor(key string) Status {
	st := Status{
		Key:       key,
		Limit:     l.config.Limit,
		Window:    l.config.Window,
		Remaining: l.Remaining(key),
	}
	if st.Remaining == 0 {
		w := l.getWindow(key)
		w.mu.Lock()
		if len(w.stamps) > 0 {
			st.RetryAfter = l.config.Window - l.now().Sub(w.stamps[0])
			if st.RetryAfter < 0 {
				st.RetryAfter = 0
			}
		}
		w.mu.Unlock()
	}
	return st
}
