package signal

import (
	"sync"
	"time"

	"github.com/okteva/conclave/internal/domain"
)

// JoinRateLimiter caps how often one connection may attempt a room join
// inside a sliding window.
type JoinRateLimiter struct {
	mu       sync.Mutex
	history  map[domain.PeerID][]time.Time
	limit    int
	interval time.Duration
}

func NewJoinRateLimiter(limit int, interval time.Duration) *JoinRateLimiter {
	return &JoinRateLimiter{
		history:  make(map[domain.PeerID][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *JoinRateLimiter) Allow(peer domain.PeerID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rl.interval)
	attempts := rl.history[peer]
	fresh := attempts[:0]
	for _, at := range attempts {
		if at.After(cutoff) {
			fresh = append(fresh, at)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[peer] = fresh
		return false
	}
	rl.history[peer] = append(fresh, time.Now())
	return true
}

// Forget drops the connection's attempt history once it goes away, so the
// map does not accumulate departed peers.
func (rl *JoinRateLimiter) Forget(peer domain.PeerID) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.history, peer)
}
