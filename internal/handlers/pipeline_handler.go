// ============================================================================
// FILE: internal/handlers/pipeline_handler.go
// PURPOSE: Pipeline registry endpoints
// ============================================================================

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"

	"github.com/xipebhui/autopublish/internal/models"
	"github.com/xipebhui/autopublish/internal/pipeline"
	"github.com/xipebhui/autopublish/internal/store"
)

type PipelineHandler struct {
	registry *pipeline.Registry
}

func NewPipelineHandler(registry *pipeline.Registry) *PipelineHandler {
	return &PipelineHandler{registry: registry}
}

type registerPipelineRequest struct {
	PipelineID         string          `json:"pipeline_id" validate:"required"`
	Name               string          `json:"name" validate:"required"`
	Type               string          `json:"type"`
	ImplementationRef  string          `json:"implementation_ref" validate:"required"`
	ParameterSchema    json.RawMessage `json:"parameter_schema"`
	SupportedPlatforms []string        `json:"supported_platforms"`
	Version            string          `json:"version"`
	Status             string          `json:"status"`
}

// POST /pipelines
func (h *PipelineHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerPipelineRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondAppError(w, err)
		return
	}

	desc := &models.Pipeline{
		PipelineID:         req.PipelineID,
		DisplayName:        req.Name,
		TypeTag:            req.Type,
		ImplementationRef:  req.ImplementationRef,
		SupportedPlatforms: pq.StringArray(req.SupportedPlatforms),
		Version:            req.Version,
		Status:             models.PipelineStatus(req.Status),
	}
	if desc.Version == "" {
		desc.Version = "1.0.0"
	}
	if desc.Status == "" {
		desc.Status = models.PipelineActive
	}
	if len(req.ParameterSchema) > 0 {
		desc.ParameterSchema = pqtype.NullRawMessage{RawMessage: req.ParameterSchema, Valid: true}
	}

	if err := h.registry.Register(r.Context(), desc); err != nil {
		respondAppError(w, err)
		return
	}
	respondCreated(w, desc)
}

// GET /pipelines
func (h *PipelineHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := store.PipelineFilter{
		TypeTag:  r.URL.Query().Get("type"),
		Platform: r.URL.Query().Get("platform"),
		Status:   models.PipelineStatus(r.URL.Query().Get("status")),
	}
	pipelines, err := h.registry.List(r.Context(), filter)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondSuccess(w, pipelines)
}

// GET /pipelines/{id}
func (h *PipelineHandler) Get(w http.ResponseWriter, r *http.Request) {
	desc, err := h.registry.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondSuccess(w, desc)
}

// PUT /pipelines/{id}
func (h *PipelineHandler) Update(w http.ResponseWriter, r *http.Request) {
	pipelineID := chi.URLParam(r, "id")
	if _, err := h.registry.Get(r.Context(), pipelineID); err != nil {
		respondAppError(w, err)
		return
	}

	var req registerPipelineRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondAppError(w, err)
		return
	}
	req.PipelineID = pipelineID

	desc := &models.Pipeline{
		PipelineID:         pipelineID,
		DisplayName:        req.Name,
		TypeTag:            req.Type,
		ImplementationRef:  req.ImplementationRef,
		SupportedPlatforms: pq.StringArray(req.SupportedPlatforms),
		Version:            req.Version,
		Status:             models.PipelineStatus(req.Status),
	}
	if len(req.ParameterSchema) > 0 {
		desc.ParameterSchema = pqtype.NullRawMessage{RawMessage: req.ParameterSchema, Valid: true}
	}
	if err := h.registry.Register(r.Context(), desc); err != nil {
		respondAppError(w, err)
		return
	}
	respondSuccess(w, desc)
}

// DELETE /pipelines/{id}
func (h *PipelineHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondAppError(w, err)
		return
	}
	respondSuccess(w, map[string]string{"deleted": chi.URLParam(r, "id")})
}
