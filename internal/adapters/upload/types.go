// path: internal/adapters/upload/types.go
package upload

import "context"

// Video is the media payload handed to the transport.
type Video struct {
	Path        string   `json:"path"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	Thumbnail   string   `json:"thumbnail,omitempty"`
	Visibility  string   `json:"visibility"`
}

// Task is one upload request. UID is echoed back in the result so callers
// can correlate batch entries.
type Task struct {
	UID        string `json:"uid"`
	ProfileRef string `json:"profile_ref"`
	Video      Video  `json:"video"`
}

// ResultStatus is the transport's verdict for one task.
type ResultStatus string

const (
	StatusSuccess ResultStatus = "SUCCESS"
	StatusFail    ResultStatus = "FAIL"
)

// Result is the transport's outcome for one task.
type Result struct {
	UID       string       `json:"uid"`
	Status    ResultStatus `json:"status"`
	VideoID   string       `json:"video_id,omitempty"`
	URL       string       `json:"url,omitempty"`
	Error     string       `json:"error,omitempty"`
	Retryable bool         `json:"retry_able,omitempty"`
}

// Transport pushes videos to the destination platform. The real uploader is
// an external collaborator; the core only sees this seam.
type Transport interface {
	Upload(ctx context.Context, tasks []Task) ([]Result, error)
}
