// Package ratelimit implements the per-address admission check for the OAuth
// callback endpoint. It keeps a sliding window of call timestamps per client
// address: a burst exactly at the limit is admitted, the next call within the
// window is rejected. Calls are recorded even when rejected so sustained abuse
// keeps tripping the limit.
package ratelimit

import (
	"sync"
	"time"
)

// Defaults mirror the production deployment: 5 calls per rolling minute.
const (
	DefaultLimit  = 5
	DefaultWindow = time.Minute
)

// DefaultMaxAddresses bounds the window map. When the cap is exceeded the
// limiter evicts the addresses that have been idle the longest.
const DefaultMaxAddresses = 10000

// Config holds the admission policy knobs.
type Config struct {
	Limit        int           `mapstructure:"limit"`
	Window       time.Duration `mapstructure:"window"`
	MaxAddresses int           `mapstructure:"max_addresses"`
}

// Limiter tracks recent calls per client address. It owns its state
// explicitly; callers inject a single instance rather than sharing globals.
type Limiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time

	limit        int
	window       time.Duration
	maxAddresses int

	now func() time.Time
}

// New creates a limiter. Zero or negative config fields fall back to the
// package defaults.
func New(cfg Config) *Limiter {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.MaxAddresses <= 0 {
		cfg.MaxAddresses = DefaultMaxAddresses
	}

	return &Limiter{
		windows:      make(map[string][]time.Time),
		limit:        cfg.Limit,
		window:       cfg.Window,
		maxAddresses: cfg.MaxAddresses,
		now:          time.Now,
	}
}

// Admit records a call from addr and reports whether it is within the limit.
// The read-modify-write of the address window is serialized under the mutex,
// so concurrent checks for the same address never undercount.
func (l *Limiter) Admit(addr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	window := l.windows[addr]
	recent := window[:0]
	for _, ts := range window {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}
	recent = append(recent, now)

	if _, tracked := l.windows[addr]; !tracked && len(l.windows) >= l.maxAddresses {
		l.evict(cutoff)
	}
	l.windows[addr] = recent

	return len(recent) <= l.limit
}

// evict drops fully idle addresses; if none have aged out, it removes the
// address with the oldest most-recent call. Caller must hold the mutex.
func (l *Limiter) evict(cutoff time.Time) {
	var (
		oldestAddr string
		oldestSeen time.Time
		dropped    bool
	)
	for addr, window := range l.windows {
		last := window[len(window)-1]
		if !last.After(cutoff) {
			delete(l.windows, addr)
			dropped = true
			continue
		}
		if oldestAddr == "" || last.Before(oldestSeen) {
			oldestAddr = addr
			oldestSeen = last
		}
	}
	if !dropped && oldestAddr != "" {
		delete(l.windows, oldestAddr)
	}
}

// Tracked returns the number of addresses currently held, for metrics.
func (l *Limiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
