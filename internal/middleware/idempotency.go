// ============================================================================
// FILE: internal/middleware/idempotency.go
// PURPOSE: Replay protection for write endpoints via Idempotency-Key header
// ============================================================================

package middleware

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/xipebhui/autopublish/internal/application/common"
)

const idempotencyTTL = 24 * time.Hour

// idempotencyRecorder buffers the response so a replayed key can return the
// original body.
type idempotencyRecorder struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (rec *idempotencyRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *idempotencyRecorder) Write(b []byte) (int, error) {
	rec.body.Write(b)
	return rec.ResponseWriter.Write(b)
}

// Idempotency dedupes mutating requests carrying an Idempotency-Key header.
// The first request executes and its response body is cached; replays get
// the cached body back with an replay marker header. Requests without the
// header pass through untouched.
func Idempotency(cache common.CacheService, logger common.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("Idempotency-Key")
			if key == "" || cache == nil || r.Method == http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			cacheKey := fmt.Sprintf("idempotency:%s:%s:%s", r.Method, r.URL.Path, key)
			if cached, err := cache.Get(r.Context(), cacheKey); err == nil && cached != "" {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Idempotent-Replay", "true")
				w.WriteHeader(http.StatusOK)
				w.Write([]byte(cached))
				return
			}

			rec := &idempotencyRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.statusCode < 300 && rec.body.Len() > 0 {
				if err := cache.Set(r.Context(), cacheKey, rec.body.String(), idempotencyTTL); err != nil {
					logger.Warn(fmt.Sprintf("Failed to cache idempotency key %s: %v", key, err))
				}
			}
		})
	}
}
