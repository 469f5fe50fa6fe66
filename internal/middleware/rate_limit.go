// ============================================================================
// FILE: internal/middleware/rate_limit.go
// PURPOSE: Per-caller request throttling with separate read/write budgets
// ============================================================================

package middleware

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xipebhui/autopublish/internal/application/common"
)

// RateLimitConfig is the per-minute budget split by request class. Writes
// (config changes, manual scheduling, retries) get a tighter budget than
// reads so a runaway dashboard poller and a scripted config import cannot
// starve each other.
type RateLimitConfig struct {
	ReadPerMinute  int
	WritePerMinute int
}

// DefaultRateLimitConfig matches the trigger cadence: a caller can poll
// every status endpoint a few times per second and still reconfigure.
var DefaultRateLimitConfig = RateLimitConfig{
	ReadPerMinute:  300,
	WritePerMinute: 60,
}

// RateLimiter throttles callers using fixed one-minute windows counted in
// Redis, so every API replica enforces one shared budget. Redis trouble
// fails open; throttling is protection, not an availability dependency.
type RateLimiter struct {
	redis  *redis.Client
	logger common.Logger
	cfg    RateLimitConfig
}

// NewRateLimiter creates a limiter with the default budgets.
func NewRateLimiter(client *redis.Client, logger common.Logger) *RateLimiter {
	return &RateLimiter{redis: client, logger: logger, cfg: DefaultRateLimitConfig}
}

// Limit is the middleware. The window key is (class, caller, minute); the
// first hit in a window creates the counter with a short expiry, so stale
// windows clean themselves up.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		class, budget := rl.classify(r)
		window := time.Now().UTC().Truncate(time.Minute)
		key := fmt.Sprintf("throttle:%s:%s:%d", class, callerKey(r), window.Unix())

		count, err := rl.redis.Incr(r.Context(), key).Result()
		if err != nil {
			rl.logger.Warn(fmt.Sprintf("Throttle counter unavailable, failing open: %v", err))
			next.ServeHTTP(w, r)
			return
		}
		if count == 1 {
			rl.redis.Expire(r.Context(), key, 2*time.Minute)
		}

		remaining := int64(budget) - count
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(budget))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(budget) {
			retryIn := time.Until(window.Add(time.Minute))
			if retryIn < 0 {
				retryIn = 0
			}
			w.Header().Set("Retry-After", strconv.Itoa(int(retryIn.Seconds())+1))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"ok": false,
				"error": map[string]interface{}{
					"code":       "rate_limited",
					"message":    fmt.Sprintf("%s budget of %d/min exhausted", class, budget),
					"retry_able": true,
				},
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// classify splits traffic into the two budgets. Anything that can mutate
// core state counts as a write.
func (rl *RateLimiter) classify(r *http.Request) (string, int) {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return "write", rl.cfg.WritePerMinute
	default:
		return "read", rl.cfg.ReadPerMinute
	}
}

// callerKey identifies the caller. RemoteAddr is already the real client
// address behind chi's RealIP middleware.
func callerKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
