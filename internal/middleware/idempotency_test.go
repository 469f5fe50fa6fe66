// path: internal/middleware/idempotency_test.go
package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type memCache struct {
	values map[string]string
}

func newMemCache() *memCache { return &memCache{values: make(map[string]string)} }

func (m *memCache) Get(ctx context.Context, key string) (string, error) {
	return m.values[key], nil
}

func (m *memCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	m.values[key] = value
	return nil
}

func (m *memCache) Delete(ctx context.Context, key string) error {
	delete(m.values, key)
	return nil
}

func (m *memCache) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := m.values[key]
	return ok, nil
}

func (m *memCache) SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value
	return true, nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

func TestIdempotencyReplaysFirstResponse(t *testing.T) {
	cache := newMemCache()
	calls := 0
	handler := Idempotency(cache, nopLogger{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"first"}`))
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/publish-configs", strings.NewReader("{}"))
		req.Header.Set("Idempotency-Key", "abc-123")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if !strings.Contains(rec.Body.String(), "first") {
			t.Errorf("request %d lost the original body: %s", i, rec.Body.String())
		}
	}
	if calls != 1 {
		t.Errorf("handler ran %d times, want 1", calls)
	}
}

func TestIdempotencyIgnoresRequestsWithoutKey(t *testing.T) {
	cache := newMemCache()
	calls := 0
	handler := Idempotency(cache, nopLogger{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte("ok"))
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/accounts", strings.NewReader("{}"))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
	}
	if calls != 2 {
		t.Errorf("handler ran %d times, want 2", calls)
	}
}

func TestIdempotencyDoesNotCacheFailures(t *testing.T) {
	cache := newMemCache()
	calls := 0
	handler := Idempotency(cache, nopLogger{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("boom"))
			return
		}
		w.Write([]byte("recovered"))
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/strategies", strings.NewReader("{}"))
		req.Header.Set("Idempotency-Key", "retry-me")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
	}
	if calls != 2 {
		t.Errorf("failed responses must not be replayed; handler ran %d times", calls)
	}
}
