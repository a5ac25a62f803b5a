// Package bot gates and executes automated assistant replies: it
// decides whether a user message warrants a reply, enforces a per-room
// sliding-window quota on invocations, and contains assistant failures
// so they never reach the session layer.
package bot

import (
	"sync"
	"time"
)

// Sliding-window quota defaults: at most MaxPerWindow assistant
// invocations per room per Window.
const (
	MaxPerWindow = 5
	Window       = 60 * time.Second
)

// Limiter is a per-room sliding-window rate limiter over invocation
// timestamps. Timestamps older than the window are pruned lazily on
// each check; state is in-memory only and resets on restart.
type Limiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	stamps map[string][]time.Time // roomID -> accepted invocation times
	now    func() time.Time
}

// NewLimiter creates a Limiter allowing max invocations per window per
// room.
func NewLimiter(max int, window time.Duration) *Limiter {
	return &Limiter{
		max:    max,
		window: window,
		stamps: make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow reports whether the room is under quota and, if so, records an
// invocation timestamp at decision time. Recording eagerly — before the
// assistant call resolves — serializes the quota check against
// concurrent arrivals in the same room, so a burst of qualifying
// messages cannot all slip past the check.
func (l *Limiter) Allow(roomID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	kept := l.stamps[roomID][:0]
	for _, ts := range l.stamps[roomID] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.max {
		l.stamps[roomID] = kept
		return false
	}

	l.stamps[roomID] = append(kept, now)
	return true
}
