// Package cooldown tracks when each user last received a point.
//
// State lives in process memory only and is lost on restart. A single
// process owns one Tracker; nothing is shared across instances.
package cooldown

import (
	"sync"
	"time"
)

// Tracker is a per-user rate limiter keyed by user id
type Tracker struct {
	mu        sync.RWMutex
	lastAward map[int64]time.Time
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{
		lastAward: make(map[int64]time.Time),
	}
}

// Eligible reports whether at least cooldown has elapsed since the user's
// last award. A user with no recorded award is always eligible.
func (t *Tracker) Eligible(userID int64, now time.Time, cooldown time.Duration) bool {
	t.mu.RLock()
	last, ok := t.lastAward[userID]
	t.mu.RUnlock()

	if !ok {
		return true
	}
	return now.Sub(last) >= cooldown
}

// RecordAward stores now as the user's last award time, overwriting any previous value
func (t *Tracker) RecordAward(userID int64, now time.Time) {
	t.mu.Lock()
	t.lastAward[userID] = now
	t.mu.Unlock()
}

// LastAward returns the user's last award time, if any
func (t *Tracker) LastAward(userID int64) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	last, ok := t.lastAward[userID]
	return last, ok
}

// Prune removes entries older than maxAge and returns how many were removed.
// With maxAge >= cooldown a pruned user is eligible either way.
func (t *Tracker) Prune(now time.Time, maxAge time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for userID, last := range t.lastAward {
		if now.Sub(last) >= maxAge {
			delete(t.lastAward, userID)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked users
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.lastAward)
}
