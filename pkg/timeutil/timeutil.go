// Package timeutil provides clock and time-window helpers shared by the
// progression engine and the storage adapters. All stored instants are UTC.
package timeutil

import (
	"sync"
	"time"
)

// Day is a 24 hour duration. Decay thresholds and leaderboard windows are
// configured in days and compared as durations.
const Day = 24 * time.Hour

// Days converts a day count to a duration.
func Days(n int) time.Duration {
	return time.Duration(n) * Day
}

// Clock returns the current time. Handlers take one so tests can pin "now".
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock returns wall-clock time in UTC.
var SystemClock Clock = ClockFunc(func() time.Time { return time.Now().UTC() })

// ManualClock is a settable clock for tests and replays.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a clock pinned at t.
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t.UTC()}
}

// Now implements Clock.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t.UTC()
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Window is a closed time interval [From, To].
type Window struct {
	From time.Time
	To   time.Time
}

// Trailing returns the window [now-d, now].
func Trailing(now time.Time, d time.Duration) Window {
	return Window{From: now.Add(-d), To: now}
}

// Contains reports whether t lies inside the window, bounds included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && !t.After(w.To)
}

// ElapsedDays returns the fractional number of days from since to now.
func ElapsedDays(since, now time.Time) float64 {
	return now.Sub(since).Hours() / 24
}

// ToMillis converts t to unix milliseconds; the zero time maps to 0.
func ToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

// FromMillis converts unix milliseconds back to a UTC time; 0 maps to the zero time.
func FromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// Later returns the later of a and b.
func Later(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
