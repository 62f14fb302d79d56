// Package server implements a fixed-window rate limiter for per-connection
// message throttling that protects the hub from abuse.
package server

import (
	"sync"
	"time"
)

// rateLimiter counts messages in fixed windows. When the elapsed time since
// the window started exceeds the window duration, the counter resets before
// the new message is evaluated. Bursts straddling a window boundary can
// locally exceed the nominal rate by up to 2x, which is acceptable for
// abuse-dampening.
type rateLimiter struct {
	mu          sync.Mutex
	limit       int
	window      time.Duration
	count       int
	windowStart time.Time
	now         func() time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Second
	}

	return &rateLimiter{
		limit:       limit,
		window:      window,
		windowStart: time.Now(),
		now:         time.Now,
	}
}

func (rl *rateLimiter) allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.windowStart) > rl.window {
		rl.count = 0
		rl.windowStart = now
	}

	if rl.count >= rl.limit {
		return false
	}

	rl.count++
	return true
}
