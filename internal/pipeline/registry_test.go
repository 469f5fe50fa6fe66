// path: internal/pipeline/registry_test.go
package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/sqlc-dev/pqtype"

	"github.com/xipebhui/autopublish/internal/application/common"
	"github.com/xipebhui/autopublish/internal/models"
	"github.com/xipebhui/autopublish/internal/store"
)

type testLogger struct{}

func (testLogger) Debug(string, ...interface{}) {}
func (testLogger) Info(string, ...interface{})  {}
func (testLogger) Warn(string, ...interface{})  {}
func (testLogger) Error(string, ...interface{}) {}

type fakeRegistryStore struct {
	pipelines map[string]*models.Pipeline
}

func newFakeRegistryStore() *fakeRegistryStore {
	return &fakeRegistryStore{pipelines: make(map[string]*models.Pipeline)}
}

func (f *fakeRegistryStore) UpsertPipeline(ctx context.Context, p *models.Pipeline) error {
	cp := *p
	f.pipelines[p.PipelineID] = &cp
	return nil
}

func (f *fakeRegistryStore) GetPipeline(ctx context.Context, pipelineID string) (*models.Pipeline, error) {
	if p, ok := f.pipelines[pipelineID]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, common.NotFound("pipeline_not_found", "pipeline not found")
}

func (f *fakeRegistryStore) ListPipelines(ctx context.Context, filter store.PipelineFilter) ([]models.Pipeline, error) {
	var out []models.Pipeline
	for _, p := range f.pipelines {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeRegistryStore) DeletePipeline(ctx context.Context, pipelineID string) error {
	if _, ok := f.pipelines[pipelineID]; !ok {
		return common.NotFound("pipeline_not_found", "pipeline not found")
	}
	delete(f.pipelines, pipelineID)
	return nil
}

func schema(s string) pqtype.NullRawMessage {
	return pqtype.NullRawMessage{RawMessage: []byte(s), Valid: true}
}

const paramSchema = `{
	"type": "object",
	"properties": {
		"topic": {"type": "string"},
		"length": {"type": "integer", "minimum": 1}
	},
	"required": ["topic"]
}`

func TestRegisterRejectsInvalidSchema(t *testing.T) {
	r := NewRegistry(newFakeRegistryStore(), MockRunner(), testLogger{})
	err := r.Register(context.Background(), &models.Pipeline{
		PipelineID:        "story",
		ImplementationRef: "http://pipelines/story",
		ParameterSchema:   schema(`{"type": 42}`),
	})
	if err == nil {
		t.Fatal("expected rejection of invalid JSON Schema")
	}
	appErr, ok := common.AsAppError(err)
	if !ok || appErr.Kind != common.KindBadRequest {
		t.Errorf("expected BadRequest, got %v", err)
	}
}

func TestRegisterRequiresIDAndRef(t *testing.T) {
	r := NewRegistry(newFakeRegistryStore(), MockRunner(), testLogger{})
	if err := r.Register(context.Background(), &models.Pipeline{ImplementationRef: "x"}); err == nil {
		t.Error("expected rejection of empty pipeline_id")
	}
	if err := r.Register(context.Background(), &models.Pipeline{PipelineID: "x"}); err == nil {
		t.Error("expected rejection of empty implementation_ref")
	}
}

func TestInvokeValidatesParams(t *testing.T) {
	st := newFakeRegistryStore()
	r := NewRegistry(st, MockRunner(), testLogger{})
	desc := &models.Pipeline{
		PipelineID:        "story",
		ImplementationRef: "http://pipelines/story",
		ParameterSchema:   schema(paramSchema),
		Status:            models.PipelineActive,
	}
	if err := r.Register(context.Background(), desc); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if _, err := r.Invoke(context.Background(), "story", map[string]interface{}{"length": 3}); err == nil {
		t.Error("expected BadRequest for missing required param")
	}
	if _, err := r.Invoke(context.Background(), "story", map[string]interface{}{"topic": "cats", "length": 0}); err == nil {
		t.Error("expected BadRequest for minimum violation")
	}

	result, err := r.Invoke(context.Background(), "story", map[string]interface{}{"topic": "cats", "length": 3})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if !result.Success || result.Artifacts["video"] == "" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestInvokeRejectsDeprecatedPipeline(t *testing.T) {
	st := newFakeRegistryStore()
	r := NewRegistry(st, MockRunner(), testLogger{})
	if err := r.Register(context.Background(), &models.Pipeline{
		PipelineID:        "old",
		ImplementationRef: "http://pipelines/old",
		Status:            models.PipelineDeprecated,
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := r.Invoke(context.Background(), "old", nil); err == nil {
		t.Error("expected Conflict for deprecated pipeline")
	}
}

func TestInvokeWrapsRunnerErrors(t *testing.T) {
	st := newFakeRegistryStore()
	boom := RunnerFunc(func(ctx context.Context, ref string, params map[string]interface{}) (*Result, error) {
		return nil, errors.New("connection reset")
	})
	r := NewRegistry(st, boom, testLogger{})
	if err := r.Register(context.Background(), &models.Pipeline{
		PipelineID:        "flaky",
		ImplementationRef: "http://pipelines/flaky",
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	_, err := r.Invoke(context.Background(), "flaky", nil)
	if err == nil {
		t.Fatal("expected wrapped error")
	}
	if !common.IsRetryable(err) {
		t.Error("implementation failures should carry a retry hint")
	}
}

func TestSchemaRecompilesAfterRestart(t *testing.T) {
	st := newFakeRegistryStore()
	first := NewRegistry(st, MockRunner(), testLogger{})
	if err := first.Register(context.Background(), &models.Pipeline{
		PipelineID:        "story",
		ImplementationRef: "http://pipelines/story",
		ParameterSchema:   schema(paramSchema),
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	// A fresh registry over the same store has an empty schema cache and
	// must compile lazily from the persisted descriptor.
	second := NewRegistry(st, MockRunner(), testLogger{})
	if _, err := second.Invoke(context.Background(), "story", map[string]interface{}{"length": 1}); err == nil {
		t.Error("expected lazy-compiled schema to reject missing topic")
	}
}
