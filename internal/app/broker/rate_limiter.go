package broker

import (
	"sync"
	"time"

	"github.com/dkeye/meshcall/internal/domain"
)

// RateLimiter is a sliding window limiter keyed by peer.
type RateLimiter struct {
	mu       sync.Mutex
	history  map[domain.PeerID][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		history:  make(map[domain.PeerID][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

// Allow records an attempt by id and reports whether it fits the window.
// A non-positive limit disables limiting.
func (rl *RateLimiter) Allow(id domain.PeerID) bool {
	if rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[id]
	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) >= rl.limit {
		rl.history[id] = fresh
		return false
	}
	rl.history[id] = append(fresh, now)
	return true
}

// Forget drops the history of a peer that went offline.
func (rl *RateLimiter) Forget(id domain.PeerID) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.history, id)
}
