// Package ratelimit implements a process-local sliding-window rate limiter
// keyed by arbitrary strings. It counts requests over two horizons (one
// minute, one hour) sharing a single timestamp log per key. The limiter is
// intentionally in-memory, best-effort and non-durable: it trades
// cross-instance precision for zero coordination latency and is not a
// distributed limiter.
package ratelimit

import (
	"sync"
	"time"
)

// Process-wide defaults, applied to any key without an explicit override.
const (
	DefaultPerMinute = 100
	DefaultPerHour   = 1000
)

// maxRetained bounds the per-key log; the oldest entries beyond it are
// silently dropped so a hot key cannot grow memory without bound.
const maxRetained = 20000

const (
	minuteWindow = time.Minute
	hourWindow   = time.Hour
)

// Result is the outcome of a single Check.
type Result struct {
	Allowed bool

	// LimitType names the window that denied the request: "per_minute" or
	// "per_hour". Empty when allowed.
	LimitType string

	LimitMinute     int
	LimitHour       int
	RemainingMinute int
	RemainingHour   int

	// ResetMinute/ResetHour estimate seconds until the respective window
	// frees a slot.
	ResetMinute int
	ResetHour   int

	// RetryAfter is seconds until the denying window's oldest in-window
	// entry ages out. At least 1 on denial, 0 when allowed.
	RetryAfter int
}

// Stats is a read-only snapshot of a key's current window usage.
type Stats struct {
	Key                string `json:"key"`
	RequestsLastMinute int    `json:"requests_last_minute"`
	RequestsLastHour   int    `json:"requests_last_hour"`
	LimitMinute        int    `json:"limit_per_minute"`
	LimitHour          int    `json:"limit_per_hour"`
	RemainingMinute    int    `json:"remaining_minute"`
	RemainingHour      int    `json:"remaining_hour"`
}

type limitPair struct {
	perMinute int
	perHour   int
}

// Limiter is safe for concurrent use. One instance is shared process-wide;
// a single coarse lock guards every read-modify-write over the per-key logs
// and the override table.
type Limiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limits   map[string]limitPair

	defaultPerMinute int
	defaultPerHour   int

	now func() time.Time
}

// NewLimiter creates a limiter with the given process-wide default limits.
// Non-positive values fall back to DefaultPerMinute/DefaultPerHour.
func NewLimiter(defaultPerMinute, defaultPerHour int) *Limiter {
	if defaultPerMinute <= 0 {
		defaultPerMinute = DefaultPerMinute
	}
	if defaultPerHour <= 0 {
		defaultPerHour = DefaultPerHour
	}
	return &Limiter{
		requests:         make(map[string][]time.Time),
		limits:           make(map[string]limitPair),
		defaultPerMinute: defaultPerMinute,
		defaultPerHour:   defaultPerHour,
		now:              time.Now,
	}
}

// SetDefaults replaces the process-wide default limits. Keys with explicit
// overrides are unaffected. Non-positive values fall back to the package
// defaults.
func (l *Limiter) SetDefaults(perMinute, perHour int) {
	if perMinute <= 0 {
		perMinute = DefaultPerMinute
	}
	if perHour <= 0 {
		perHour = DefaultPerHour
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.defaultPerMinute = perMinute
	l.defaultPerHour = perHour
}

// SetLimit overrides the limits for a key. A non-positive perHour derives
// the hour limit as 60x the minute limit.
func (l *Limiter) SetLimit(key string, perMinute, perHour int) {
	if perHour <= 0 {
		perHour = perMinute * 60
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limits[key] = limitPair{perMinute: perMinute, perHour: perHour}
}

// Limit reports the effective limits for a key.
func (l *Limiter) Limit(key string) (perMinute, perHour int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limitLocked(key)
}

func (l *Limiter) limitLocked(key string) (int, int) {
	if p, ok := l.limits[key]; ok {
		return p.perMinute, p.perHour
	}
	return l.defaultPerMinute, l.defaultPerHour
}

// Check records an attempt for key and reports whether it is within limits.
// The minute window is evaluated before the hour window; denied attempts
// are not recorded.
func (l *Limiter) Check(key string) Result {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	perMinute, perHour := l.limitLocked(key)
	q := l.evictLocked(key, now)

	minuteCount := countSince(q, now.Add(-minuteWindow))
	hourCount := len(q) // eviction already trimmed to the hour horizon

	if minuteCount >= perMinute {
		retry := retryAfterSeconds(q, now, minuteWindow)
		return Result{
			Allowed:         false,
			LimitType:       "per_minute",
			LimitMinute:     perMinute,
			LimitHour:       perHour,
			RemainingMinute: 0,
			RemainingHour:   maxInt(0, perHour-hourCount),
			ResetMinute:     retry,
			ResetHour:       retryAfterSeconds(q, now, hourWindow),
			RetryAfter:      retry,
		}
	}

	if hourCount >= perHour {
		retry := retryAfterSeconds(q, now, hourWindow)
		return Result{
			Allowed:         false,
			LimitType:       "per_hour",
			LimitMinute:     perMinute,
			LimitHour:       perHour,
			RemainingMinute: maxInt(0, perMinute-minuteCount),
			RemainingHour:   0,
			ResetMinute:     retryAfterSeconds(q, now, minuteWindow),
			ResetHour:       retry,
			RetryAfter:      retry,
		}
	}

	q = append(q, now)
	if len(q) > maxRetained {
		q = q[len(q)-maxRetained:]
	}
	l.requests[key] = q

	minuteCount++
	hourCount++

	resetMinute := retryAfterSeconds(q, now, minuteWindow)
	if resetMinute == 0 {
		resetMinute = 60
	}
	resetHour := retryAfterSeconds(q, now, hourWindow)
	if resetHour == 0 {
		resetHour = 3600
	}

	return Result{
		Allowed:         true,
		LimitMinute:     perMinute,
		LimitHour:       perHour,
		RemainingMinute: maxInt(0, perMinute-minuteCount),
		RemainingHour:   maxInt(0, perHour-hourCount),
		ResetMinute:     resetMinute,
		ResetHour:       resetHour,
	}
}

// Reset clears the recorded log for a key. Limit overrides are kept.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.requests, key)
}

// Stats returns the current usage for a key without recording an attempt.
func (l *Limiter) Stats(key string) Stats {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	perMinute, perHour := l.limitLocked(key)
	q := l.evictLocked(key, now)

	minuteCount := countSince(q, now.Add(-minuteWindow))
	hourCount := len(q)

	return Stats{
		Key:                key,
		RequestsLastMinute: minuteCount,
		RequestsLastHour:   hourCount,
		LimitMinute:        perMinute,
		LimitHour:          perHour,
		RemainingMinute:    maxInt(0, perMinute-minuteCount),
		RemainingHour:      maxInt(0, perHour-hourCount),
	}
}

// evictLocked drops entries older than the hour horizon and returns the
// surviving log. Callers must hold l.mu.
func (l *Limiter) evictLocked(key string, now time.Time) []time.Time {
	q := l.requests[key]
	cutoff := now.Add(-hourWindow)
	i := 0
	for i < len(q) && !q[i].After(cutoff) {
		i++
	}
	if i > 0 {
		q = q[i:]
		if len(q) == 0 {
			delete(l.requests, key)
		} else {
			l.requests[key] = q
		}
	}
	return q
}

// countSince counts entries newer than since. The log is time-ascending, so
// scanning backwards stops at the first entry outside the window.
func countSince(q []time.Time, since time.Time) int {
	n := 0
	for i := len(q) - 1; i >= 0; i-- {
		if q[i].After(since) {
			n++
		} else {
			break
		}
	}
	return n
}

// retryAfterSeconds returns seconds until the oldest entry still inside the
// window falls out of it, minimum 1. Zero when the window is empty.
func retryAfterSeconds(q []time.Time, now time.Time, window time.Duration) int {
	cutoff := now.Add(-window)
	for _, ts := range q {
		if ts.After(cutoff) {
			remaining := window - now.Sub(ts)
			secs := int(remaining / time.Second)
			if secs < 1 {
				secs = 1
			}
			return secs
		}
	}
	return 0
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
