package signal

import (
	"sync"
	"time"

	"github.com/dkeye/callhub/internal/domain"
	"github.com/jonboulle/clockwork"
)

// CallRateLimiter is a sliding-window limiter on call starts per user.
type CallRateLimiter struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	history  map[domain.UserID][]time.Time
	limit    int
	interval time.Duration
}

// NewCallRateLimiter allows limit attempts per interval. A non-positive
// limit disables limiting; a nil clock means the real one.
func NewCallRateLimiter(limit int, interval time.Duration, clock clockwork.Clock) *CallRateLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CallRateLimiter{
		clock:    clock,
		history:  make(map[domain.UserID][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *CallRateLimiter) Allow(uid domain.UserID) bool {
	if rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[uid]
	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) >= rl.limit {
		rl.history[uid] = fresh
		return false
	}
	rl.history[uid] = append(fresh, now)
	return true
}

// Forget drops history older than the window for every user.
func (rl *CallRateLimiter) Forget() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	windowStart := rl.clock.Now().Add(-rl.interval)
	n := 0
	for uid, attempts := range rl.history {
		if len(attempts) == 0 || !attempts[len(attempts)-1].After(windowStart) {
			delete(rl.history, uid)
			n++
		}
	}
	return n
}
