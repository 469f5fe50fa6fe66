// ============================================================================
// FILE: internal/handlers/config_handler.go
// PURPOSE: Publish config endpoints and ring slot generation
// ============================================================================

package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/xipebhui/autopublish/internal/application/common"
	"github.com/xipebhui/autopublish/internal/models"
	"github.com/xipebhui/autopublish/internal/ring"
	"github.com/xipebhui/autopublish/internal/store"
	"github.com/xipebhui/autopublish/internal/trigger"
)

type ConfigHandler struct {
	store *store.Store
	ring  *ring.Scheduler
	clock common.Clock
}

func NewConfigHandler(st *store.Store, rs *ring.Scheduler, clock common.Clock) *ConfigHandler {
	return &ConfigHandler{store: st, ring: rs, clock: clock}
}

type configRequest struct {
	Name           string          `json:"name" validate:"required"`
	GroupID        string          `json:"group_id" validate:"required,uuid"`
	PipelineID     string          `json:"pipeline_id" validate:"required"`
	TriggerKind    string          `json:"trigger_kind" validate:"required,oneof=scheduled monitor"`
	TriggerConfig  json.RawMessage `json:"trigger_config"`
	PublishPolicy  json.RawMessage `json:"publish_policy"`
	StrategyID     *string         `json:"strategy_id" validate:"omitempty,uuid"`
	MonitorID      *string         `json:"monitor_id" validate:"omitempty,uuid"`
	Priority       *int            `json:"priority"`
	PipelineParams json.RawMessage `json:"pipeline_params"`
}

func (req *configRequest) toModel() (*models.PublishConfig, error) {
	groupID, _ := uuid.Parse(req.GroupID)
	cfg := &models.PublishConfig{
		Name:        req.Name,
		GroupID:     groupID,
		PipelineID:  req.PipelineID,
		TriggerKind: models.TriggerKind(req.TriggerKind),
		Priority:    50,
		Active:      true,
	}
	if req.Priority != nil {
		cfg.Priority = *req.Priority
	}
	if req.StrategyID != nil {
		id, _ := uuid.Parse(*req.StrategyID)
		cfg.StrategyID = &id
	}
	if req.MonitorID != nil {
		id, _ := uuid.Parse(*req.MonitorID)
		cfg.MonitorID = &id
	}
	if len(req.TriggerConfig) > 0 {
		cfg.TriggerConfig = pqtype.NullRawMessage{RawMessage: req.TriggerConfig, Valid: true}
	}
	if len(req.PublishPolicy) > 0 {
		cfg.PublishPolicy = pqtype.NullRawMessage{RawMessage: req.PublishPolicy, Valid: true}
	}
	if len(req.PipelineParams) > 0 {
		cfg.PipelineParams = pqtype.NullRawMessage{RawMessage: req.PipelineParams, Valid: true}
	}

	// Scheduled configs must carry a parseable schedule; monitor configs a
	// monitor reference. Tagged variants make this total.
	switch cfg.TriggerKind {
	case models.TriggerScheduled:
		if !cfg.TriggerConfig.Valid {
			return nil, common.BadRequest("trigger_config_required", "scheduled configs need trigger_config")
		}
		if _, err := trigger.ParseSchedule(cfg.TriggerConfig.RawMessage); err != nil {
			return nil, err
		}
	case models.TriggerMonitor:
		if cfg.MonitorID == nil {
			return nil, common.BadRequest("monitor_id_required", "monitor configs need monitor_id")
		}
	}
	return cfg, nil
}

// POST /publish-configs
func (h *ConfigHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondAppError(w, err)
		return
	}
	cfg, err := req.toModel()
	if err != nil {
		respondAppError(w, err)
		return
	}
	if err := h.store.CreatePublishConfig(r.Context(), cfg); err != nil {
		respondAppError(w, err)
		return
	}
	respondCreated(w, cfg)
}

// GET /publish-configs
func (h *ConfigHandler) List(w http.ResponseWriter, r *http.Request) {
	configs, err := h.store.ListPublishConfigs(r.Context(), r.URL.Query().Get("active") == "true")
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondSuccess(w, configs)
}

// GET /publish-configs/{id}
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		respondAppError(w, err)
		return
	}
	cfg, err := h.store.GetPublishConfig(r.Context(), id)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondSuccess(w, cfg)
}

// PUT /publish-configs/{id}
func (h *ConfigHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		respondAppError(w, err)
		return
	}
	existing, err := h.store.GetPublishConfig(r.Context(), id)
	if err != nil {
		respondAppError(w, err)
		return
	}
	var req configRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondAppError(w, err)
		return
	}
	cfg, err := req.toModel()
	if err != nil {
		respondAppError(w, err)
		return
	}
	cfg.ID = existing.ID
	cfg.Active = existing.Active
	cfg.LastFire = existing.LastFire
	cfg.CreatedAt = existing.CreatedAt
	if err := h.store.UpdatePublishConfig(r.Context(), cfg); err != nil {
		respondAppError(w, err)
		return
	}
	respondSuccess(w, cfg)
}

// POST /publish-configs/{id}/toggle
func (h *ConfigHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		respondAppError(w, err)
		return
	}
	cfg, err := h.store.GetPublishConfig(r.Context(), id)
	if err != nil {
		respondAppError(w, err)
		return
	}
	if err := h.store.SetConfigActive(r.Context(), id, !cfg.Active); err != nil {
		respondAppError(w, err)
		return
	}
	respondSuccess(w, map[string]interface{}{"id": id, "active": !cfg.Active})
}

// DELETE /publish-configs/{id}
func (h *ConfigHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		respondAppError(w, err)
		return
	}
	if err := h.store.DeletePublishConfig(r.Context(), id); err != nil {
		respondAppError(w, err)
		return
	}
	respondSuccess(w, map[string]string{"deleted": id.String()})
}

// GET /publish-configs/{id}/next-fire-time
func (h *ConfigHandler) NextFireTime(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		respondAppError(w, err)
		return
	}
	cfg, err := h.store.GetPublishConfig(r.Context(), id)
	if err != nil {
		respondAppError(w, err)
		return
	}
	if cfg.TriggerKind != models.TriggerScheduled {
		respondAppError(w, common.Conflict("not_scheduled", "config is not schedule-triggered"))
		return
	}
	next, err := trigger.NextFireTime(cfg, h.clock.Now())
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondSuccess(w, map[string]string{"next_fire": next.Format(time.RFC3339)})
}

// --- ring slots ---

type generateSlotsRequest struct {
	ConfigID   string `json:"config_id" validate:"required,uuid"`
	TargetDate string `json:"target_date" validate:"required"`
	StartHour  int    `json:"start_hour" validate:"min=0,max=23"`
	EndHour    int    `json:"end_hour" validate:"min=1,max=24"`
	Strategy   string `json:"strategy" validate:"omitempty,oneof=uniform random"`
}

// POST /schedule/generate-slots
func (h *ConfigHandler) GenerateSlots(w http.ResponseWriter, r *http.Request) {
	var req generateSlotsRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondAppError(w, err)
		return
	}
	configID, _ := uuid.Parse(req.ConfigID)
	slots, err := h.ring.GenerateSlots(r.Context(), configID, req.TargetDate,
		req.StartHour, req.EndHour, ring.Strategy(req.Strategy))
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondCreated(w, slots)
}

// GET /schedule/slots?config_id=...&date=...
func (h *ConfigHandler) ListSlots(w http.ResponseWriter, r *http.Request) {
	configID, err := uuid.Parse(r.URL.Query().Get("config_id"))
	if err != nil {
		respondAppError(w, common.BadRequest("invalid_id", "config_id query parameter required"))
		return
	}
	slots, err := h.store.ListRingSlots(r.Context(), configID, r.URL.Query().Get("date"))
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondSuccess(w, slots)
}
