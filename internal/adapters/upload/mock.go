// path: internal/adapters/upload/mock.go
package upload

import (
	"context"
	"fmt"
)

// MockTransport accepts every upload without touching any platform. Used in
// mock mode and tests.
type MockTransport struct{}

// NewMockTransport creates the mock.
func NewMockTransport() *MockTransport { return &MockTransport{} }

// Upload returns a synthetic success per task.
func (m *MockTransport) Upload(ctx context.Context, tasks []Task) ([]Result, error) {
	results := make([]Result, 0, len(tasks))
	for _, t := range tasks {
		results = append(results, Result{
			UID:     t.UID,
			Status:  StatusSuccess,
			VideoID: "mock-" + t.UID,
			URL:     fmt.Sprintf("https://example.invalid/watch?v=mock-%s", t.UID),
		})
	}
	return results, nil
}
