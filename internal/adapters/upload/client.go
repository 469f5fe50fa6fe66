// ============================================================================
// FILE: internal/adapters/upload/client.go
// PURPOSE: HTTP client for the external upload transport service
// ============================================================================

package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/xipebhui/autopublish/internal/application/common"
)

// Client talks to the upload transport endpoint over HTTP/JSON.
type Client struct {
	endpoint string
	client   *http.Client
}

// NewClient creates a transport client with a per-batch timeout.
func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Upload posts the batch and decodes per-task results.
func (c *Client) Upload(ctx context.Context, tasks []Task) ([]Result, error) {
	body, err := json.Marshal(map[string]interface{}{"tasks": tasks})
	if err != nil {
		return nil, common.BadRequest("upload_encode", "upload batch is not serializable")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, common.BadRequest("upload_endpoint", "upload endpoint is not a valid URL")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, common.Transient("upload_unreachable", "upload transport unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, common.Transient("upload_5xx", fmt.Sprintf("upload transport returned %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= 400 {
		return nil, common.Permanent("upload_4xx", fmt.Sprintf("upload transport rejected batch with %d", resp.StatusCode), nil)
	}

	var envelope struct {
		Results []Result `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, common.Transient("upload_bad_response", "failed to decode transport response", err)
	}
	return envelope.Results, nil
}
