// path: internal/publisher/ratelimiter.go
package publisher

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter paces uploads per destination account so a burst of due
// publishes cannot hammer one channel.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex

	limit rate.Limit
	burst int
}

// NewRateLimiter creates an upload pacer. Defaults allow one upload per
// account per minute with a burst of three.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Every(time.Minute),
		burst:    3,
	}
}

// GetLimiter returns the limiter for one account.
func (rl *RateLimiter) GetLimiter(accountID string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[accountID]
	rl.mu.RUnlock()

	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := rl.limiters[accountID]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rl.limit, rl.burst)
	rl.limiters[accountID] = limiter
	return limiter
}
