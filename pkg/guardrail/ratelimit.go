package guardrail

import (
	"sync"
	"time"
)

// RateWindow is the sliding window every ceiling is measured over
const RateWindow = 60 * time.Second

// RateLimiter keeps a sliding one-minute window of accepted call times per
// key. Expired entries are pruned lazily when their key is touched.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	now     func() time.Time
}

// NewRateLimiter creates a limiter on the wall clock
func NewRateLimiter() *RateLimiter {
	return NewRateLimiterWithClock(time.Now)
}

// NewRateLimiterWithClock creates a limiter reading time from now
func NewRateLimiterWithClock(now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		windows: make(map[string][]time.Time),
		now:     now,
	}
}

// Allow records a call under key and reports whether it fits under
// ceiling. Rejected calls are not recorded. A ceiling <= 0 rejects.
func (rl *RateLimiter) Allow(key string, ceiling int) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if ceiling <= 0 {
		return false
	}

	now := rl.now()
	window := rl.prune(key, now)
	if len(window) >= ceiling {
		return false
	}

	rl.windows[key] = append(window, now)
	return true
}

// Count returns the calls currently inside key's window
func (rl *RateLimiter) Count(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return len(rl.prune(key, rl.now()))
}

// RetryAfter returns how long until key has room under ceiling
func (rl *RateLimiter) RetryAfter(key string, ceiling int) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	window := rl.prune(key, now)
	if ceiling <= 0 || len(window) < ceiling {
		return 0
	}
	oldest := window[len(window)-ceiling]
	return oldest.Add(RateWindow).Sub(now)
}

// prune must be called with rl.mu held
func (rl *RateLimiter) prune(key string, now time.Time) []time.Time {
	window := rl.windows[key]
	keep := 0
	for keep < len(window) && now.Sub(window[keep]) >= RateWindow {
		keep++
	}
	if keep == 0 {
		return window
	}

	window = append(window[:0:0], window[keep:]...)
	if len(window) == 0 {
		delete(rl.windows, key)
		return nil
	}
	rl.windows[key] = window
	return window
}
