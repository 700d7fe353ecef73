package ratelimiter

import (
	"sync"
	"time"
)

// RateLimiter decides whether one more request may proceed.
type RateLimiter interface {
	Allow() bool
}

// Clock returns the current time; tests replace it.
type Clock func() time.Time

// Keyed keeps one limiter per client key (usually the remote IP).
// Idle keys are dropped once the map grows past maxKeys.
type Keyed struct {
	mu      sync.Mutex
	newFn   func() RateLimiter
	entries map[string]*keyedEntry
	maxKeys int
	idle    time.Duration
	now     Clock
}

type keyedEntry struct {
	limiter  RateLimiter
	lastSeen time.Time
}

// NewKeyed builds a Keyed limiter. newFn creates the limiter for a new key.
func NewKeyed(newFn func() RateLimiter, maxKeys int, idle time.Duration) *Keyed {
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	return &Keyed{
		newFn:   newFn,
		entries: make(map[string]*keyedEntry),
		maxKeys: maxKeys,
		idle:    idle,
		now:     time.Now,
	}
}

// Allow reports whether the client identified by key may proceed.
func (k *Keyed) Allow(key string) bool {
	k.mu.Lock()
	now := k.now()
	e, ok := k.entries[key]
	if !ok {
		if len(k.entries) >= k.maxKeys {
			k.evictIdle(now)
		}
		e = &keyedEntry{limiter: k.newFn()}
		k.entries[key] = e
	}
	e.lastSeen = now
	k.mu.Unlock()
	return e.limiter.Allow()
}

// Len returns the number of tracked keys.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

func (k *Keyed) evictIdle(now time.Time) {
	for key, e := range k.entries {
		if now.Sub(e.lastSeen) > k.idle {
			delete(k.entries, key)
		}
	}
}
