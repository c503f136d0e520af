package middleware

import (
	"sync"
	"time"

	"github.com/mroshb/shop_economy/pkg/errors"
)

// RateLimiter is a fixed-window in-memory limiter keyed by user id.
// Every bot command passes through it before reaching an engine.
type RateLimiter struct {
	windows map[string]*window
	mu      sync.Mutex

	maxRequests int
	period      time.Duration
	now         func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

type window struct {
	requests  int
	resetTime time.Time
}

// NewRateLimiter creates a limiter allowing maxRequests per period for each key
func NewRateLimiter(maxRequests int, period time.Duration) *RateLimiter {
	rl := &RateLimiter{
		windows:     make(map[string]*window),
		maxRequests: maxRequests,
		period:      period,
		now:         time.Now,
		stop:        make(chan struct{}),
	}

	go rl.cleanup(5 * time.Minute)

	return rl
}

// Allow records one request for key and reports whether it is within the limit.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	w, exists := rl.windows[key]
	if !exists || !now.Before(w.resetTime) {
		rl.windows[key] = &window{
			requests:  1,
			resetTime: now.Add(rl.period),
		}
		return true
	}

	if w.requests >= rl.maxRequests {
		return false
	}

	w.requests++
	return true
}

// Check is Allow returning RATE_LIMIT_EXCEEDED with the wait time.
func (rl *RateLimiter) Check(key string) error {
	if rl.Allow(key) {
		return nil
	}
	return errors.Newf(errors.ErrCodeRateLimitExceeded,
		"too many requests, try again in %s", rl.RetryAfter(key).Round(time.Second))
}

// Remaining returns how many requests key has left in its current window
func (rl *RateLimiter) Remaining(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, exists := rl.windows[key]
	if !exists || !rl.now().Before(w.resetTime) {
		return rl.maxRequests
	}

	remaining := rl.maxRequests - w.requests
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RetryAfter returns the time until key's window resets, zero if not limited.
func (rl *RateLimiter) RetryAfter(key string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, exists := rl.windows[key]
	if !exists {
		return 0
	}
	if d := w.resetTime.Sub(rl.now()); d > 0 {
		return d
	}
	return 0
}

// cleanup drops expired windows until Stop is called
func (rl *RateLimiter) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

func (rl *RateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, w := range rl.windows {
		if !now.Before(w.resetTime) {
			delete(rl.windows, key)
		}
	}
}

func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// Reset clears all windows
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.windows = make(map[string]*window)
}
