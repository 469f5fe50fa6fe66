// path: internal/pipeline/runner.go
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/xipebhui/autopublish/internal/application/common"
)

// HTTPRunner posts params to the implementation ref, which is expected to be
// an HTTP endpoint of the external pipeline service.
type HTTPRunner struct {
	client *http.Client
}

// NewHTTPRunner creates a runner with the given per-invocation timeout.
func NewHTTPRunner(timeout time.Duration) *HTTPRunner {
	return &HTTPRunner{client: &http.Client{Timeout: timeout}}
}

// Run invokes the pipeline endpoint and decodes its result envelope.
func (r *HTTPRunner) Run(ctx context.Context, implementationRef string, params map[string]interface{}) (*Result, error) {
	body, err := json.Marshal(map[string]interface{}{"params": params})
	if err != nil {
		return nil, common.BadRequest("invalid_params", "params are not serializable")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, implementationRef, bytes.NewReader(body))
	if err != nil {
		return nil, common.BadRequest("invalid_ref", "implementation_ref is not a valid URL")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, common.Transient("pipeline_unreachable", "pipeline endpoint unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, common.Transient("pipeline_5xx", fmt.Sprintf("pipeline endpoint returned %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= 400 {
		return nil, common.Permanent("pipeline_4xx", fmt.Sprintf("pipeline endpoint rejected invocation with %d", resp.StatusCode), nil)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, common.Transient("pipeline_bad_response", "failed to decode pipeline response", err)
	}
	return &result, nil
}

// RunnerFunc adapts a function to the Runner interface. Used by tests and
// mock mode.
type RunnerFunc func(ctx context.Context, implementationRef string, params map[string]interface{}) (*Result, error)

// Run calls the function.
func (f RunnerFunc) Run(ctx context.Context, implementationRef string, params map[string]interface{}) (*Result, error) {
	return f(ctx, implementationRef, params)
}

// MockRunner returns a canned successful result without calling anything.
func MockRunner() Runner {
	return RunnerFunc(func(ctx context.Context, ref string, params map[string]interface{}) (*Result, error) {
		return &Result{
			Success: true,
			Artifacts: map[string]string{
				"video":     "mock://video.mp4",
				"thumbnail": "mock://thumb.png",
			},
			Metadata: map[string]interface{}{
				"title":       "mock title",
				"description": "mock description",
			},
		}, nil
	})
}
