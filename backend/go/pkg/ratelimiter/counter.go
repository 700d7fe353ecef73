package ratelimiter

import (
	"sync"
	"time"
)

// FixedWindowCounter allows limit requests per window.
type FixedWindowCounter struct {
	limit       int
	window      time.Duration
	count       int
	windowStart time.Time
	now         Clock
	mutex       sync.Mutex
}

// NewFixedWindowCounter creates a counter starting its first window now.
func NewFixedWindowCounter(limit int, window time.Duration) *FixedWindowCounter {
	return NewFixedWindowCounterWithClock(limit, window, time.Now)
}

// NewFixedWindowCounterWithClock is NewFixedWindowCounter with an injectable clock.
func NewFixedWindowCounterWithClock(limit int, window time.Duration, now Clock) *FixedWindowCounter {
	return &FixedWindowCounter{
		limit:       limit,
		window:      window,
		windowStart: now(),
		now:         now,
	}
}

// Allow counts the request against the current window.
func (fwc *FixedWindowCounter) Allow() bool {
	fwc.mutex.Lock()
	defer fwc.mutex.Unlock()

	now := fwc.now()
	if !now.Before(fwc.windowStart.Add(fwc.window)) {
		fwc.windowStart = now
		fwc.count = 0
	}
	if fwc.count < fwc.limit {
		fwc.count++
		return true
	}
	return false
}
