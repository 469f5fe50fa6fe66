// ============================================================================
// FILE: internal/pipeline/registry.go
// PURPOSE: Registry of content-producing pipelines; validates and dispatches
// ============================================================================

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sqlc-dev/pqtype"
	"github.com/xeipuuv/gojsonschema"

	"github.com/xipebhui/autopublish/internal/application/common"
	"github.com/xipebhui/autopublish/internal/models"
	"github.com/xipebhui/autopublish/internal/store"
)

// Result is what an implementation returns. Artifacts carry produced media
// refs (video path, thumbnail); Metadata carries fields templates can pull
// from (title candidates, summary, source url).
type Result struct {
	Success   bool                   `json:"success"`
	Artifacts map[string]string      `json:"artifacts"`
	Metadata  map[string]interface{} `json:"metadata"`
	Error     string                 `json:"error,omitempty"`
	Retryable bool                   `json:"retry_able,omitempty"`
}

// Runner executes an implementation ref with validated params. This is the
// seam to the external content-generation collaborators; the registry never
// knows how a pipeline is implemented.
type Runner interface {
	Run(ctx context.Context, implementationRef string, params map[string]interface{}) (*Result, error)
}

// Store is the slice of persistence the registry needs.
type Store interface {
	UpsertPipeline(ctx context.Context, p *models.Pipeline) error
	GetPipeline(ctx context.Context, pipelineID string) (*models.Pipeline, error)
	ListPipelines(ctx context.Context, filter store.PipelineFilter) ([]models.Pipeline, error)
	DeletePipeline(ctx context.Context, pipelineID string) error
}

// Registry holds pipeline descriptors, persisting through the store and
// keeping compiled parameter schemas cached in-process.
type Registry struct {
	store  Store
	runner Runner
	logger common.Logger

	mu      sync.RWMutex
	schemas map[string]*gojsonschema.Schema
}

// NewRegistry creates a registry backed by the store.
func NewRegistry(st Store, runner Runner, logger common.Logger) *Registry {
	return &Registry{
		store:   st,
		runner:  runner,
		logger:  logger,
		schemas: make(map[string]*gojsonschema.Schema),
	}
}

// Register upserts a descriptor by pipeline_id, rejecting descriptors whose
// parameter_schema is not a valid JSON Schema.
func (r *Registry) Register(ctx context.Context, p *models.Pipeline) error {
	if p.PipelineID == "" {
		return common.BadRequest("pipeline_id_required", "pipeline_id must not be empty")
	}
	if p.ImplementationRef == "" {
		return common.BadRequest("implementation_ref_required", "implementation_ref must not be empty")
	}

	var compiled *gojsonschema.Schema
	if p.ParameterSchema.Valid && len(p.ParameterSchema.RawMessage) > 0 {
		var err error
		compiled, err = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(p.ParameterSchema.RawMessage))
		if err != nil {
			return common.BadRequest("invalid_schema", fmt.Sprintf("parameter_schema is not a valid JSON Schema: %v", err))
		}
	}

	if err := r.store.UpsertPipeline(ctx, p); err != nil {
		return err
	}

	r.mu.Lock()
	if compiled != nil {
		r.schemas[p.PipelineID] = compiled
	} else {
		delete(r.schemas, p.PipelineID)
	}
	r.mu.Unlock()

	r.logger.Info(fmt.Sprintf("Registered pipeline %s (v%s)", p.PipelineID, p.Version))
	return nil
}

// Get returns a descriptor by id.
func (r *Registry) Get(ctx context.Context, pipelineID string) (*models.Pipeline, error) {
	return r.store.GetPipeline(ctx, pipelineID)
}

// List returns descriptors matching the filter.
func (r *Registry) List(ctx context.Context, filter store.PipelineFilter) ([]models.Pipeline, error) {
	return r.store.ListPipelines(ctx, filter)
}

// Delete removes a descriptor and forgets its compiled schema.
func (r *Registry) Delete(ctx context.Context, pipelineID string) error {
	if err := r.store.DeletePipeline(ctx, pipelineID); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.schemas, pipelineID)
	r.mu.Unlock()
	return nil
}

// Invoke validates params against the descriptor's schema and delegates to
// the runner. Schema failures are BadRequest and never retried;
// implementation errors are wrapped with a retry hint.
func (r *Registry) Invoke(ctx context.Context, pipelineID string, params map[string]interface{}) (*Result, error) {
	desc, err := r.store.GetPipeline(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	if desc.Status == models.PipelineDeprecated {
		return nil, common.Conflict("pipeline_deprecated", "pipeline "+pipelineID+" is deprecated")
	}

	if err := r.validateParams(desc, params); err != nil {
		return nil, err
	}

	result, err := r.runner.Run(ctx, desc.ImplementationRef, params)
	if err != nil {
		if appErr, ok := common.AsAppError(err); ok {
			return nil, appErr
		}
		return nil, common.Transient("pipeline_invoke", "pipeline invocation failed", err)
	}
	if result == nil {
		return nil, common.Permanent("pipeline_empty_result", "pipeline returned no result", nil)
	}
	return result, nil
}

func (r *Registry) validateParams(desc *models.Pipeline, params map[string]interface{}) error {
	schema := r.compiledSchema(desc)
	if schema == nil {
		return nil
	}
	if params == nil {
		params = map[string]interface{}{}
	}
	doc := gojsonschema.NewGoLoader(params)
	outcome, err := schema.Validate(doc)
	if err != nil {
		return common.BadRequest("invalid_params", fmt.Sprintf("failed to validate params: %v", err))
	}
	if !outcome.Valid() {
		msg := "invalid pipeline params"
		if errs := outcome.Errors(); len(errs) > 0 {
			msg = errs[0].String()
		}
		return common.BadRequest("invalid_params", msg)
	}
	return nil
}

// compiledSchema returns the cached schema, compiling lazily after restarts.
func (r *Registry) compiledSchema(desc *models.Pipeline) *gojsonschema.Schema {
	r.mu.RLock()
	schema, ok := r.schemas[desc.PipelineID]
	r.mu.RUnlock()
	if ok {
		return schema
	}
	if !desc.ParameterSchema.Valid || len(desc.ParameterSchema.RawMessage) == 0 {
		return nil
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(desc.ParameterSchema.RawMessage))
	if err != nil {
		r.logger.Warn(fmt.Sprintf("Stored schema for %s no longer compiles: %v", desc.PipelineID, err))
		return nil
	}
	r.mu.Lock()
	r.schemas[desc.PipelineID] = compiled
	r.mu.Unlock()
	return compiled
}

// MarshalResult encodes a result for the task row.
func MarshalResult(res *Result) pqtype.NullRawMessage {
	if res == nil {
		return pqtype.NullRawMessage{}
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return pqtype.NullRawMessage{}
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}
}
