// ============================================================================
// FILE: internal/middleware/logging.go
// PURPOSE: Structured HTTP request/response logging middleware
// ============================================================================

package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/xipebhui/autopublish/internal/application/common"
)

// loggingResponseWriter wraps a response writer to capture status and size
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func newLoggingResponseWriter(w http.ResponseWriter) *loggingResponseWriter {
	return &loggingResponseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	size, err := lrw.ResponseWriter.Write(b)
	lrw.size += size
	return size, err
}

// RequestLogger creates a middleware that logs HTTP requests
func RequestLogger(logger common.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := middleware.GetReqID(r.Context())

			wrapped := newLoggingResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)
			logger.Info(fmt.Sprintf("%s %s -> %d (%d bytes, %s) [%s]",
				r.Method, r.URL.Path, wrapped.statusCode, wrapped.size, duration, requestID))
		})
	}
}
