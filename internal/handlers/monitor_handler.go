// ============================================================================
// FILE: internal/handlers/monitor_handler.go
// PURPOSE: Monitor CRUD and start/stop endpoints
// ============================================================================

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sqlc-dev/pqtype"

	"github.com/xipebhui/autopublish/internal/models"
	"github.com/xipebhui/autopublish/internal/store"
)

type MonitorHandler struct {
	store *store.Store
}

func NewMonitorHandler(st *store.Store) *MonitorHandler {
	return &MonitorHandler{store: st}
}

type monitorRequest struct {
	Platform             string          `json:"platform"`
	MonitorType          string          `json:"monitor_type" validate:"required,oneof=competitor trending keyword"`
	TargetIdentifier     string          `json:"target_identifier" validate:"required"`
	CheckIntervalSeconds int             `json:"check_interval_seconds" validate:"min=0"`
	Config               json.RawMessage `json:"config"`
}

func (req *monitorRequest) apply(m *models.Monitor) {
	m.Platform = req.Platform
	if m.Platform == "" {
		m.Platform = "youtube"
	}
	m.MonitorType = models.MonitorType(req.MonitorType)
	m.TargetIdentifier = req.TargetIdentifier
	m.CheckIntervalSeconds = req.CheckIntervalSeconds
	if m.CheckIntervalSeconds == 0 {
		m.CheckIntervalSeconds = 300
	}
	if len(req.Config) > 0 {
		m.Config = pqtype.NullRawMessage{RawMessage: req.Config, Valid: true}
	}
}

// POST /monitors
func (h *MonitorHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req monitorRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondAppError(w, err)
		return
	}
	m := &models.Monitor{Active: true}
	req.apply(m)
	if err := h.store.CreateMonitor(r.Context(), m); err != nil {
		respondAppError(w, err)
		return
	}
	respondCreated(w, m)
}

// GET /monitors
func (h *MonitorHandler) List(w http.ResponseWriter, r *http.Request) {
	monitors, err := h.store.ListMonitors(r.Context(), r.URL.Query().Get("active") == "true")
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondSuccess(w, monitors)
}

// GET /monitors/{id}
func (h *MonitorHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		respondAppError(w, err)
		return
	}
	m, err := h.store.GetMonitor(r.Context(), id)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondSuccess(w, m)
}

// PUT /monitors/{id}
func (h *MonitorHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		respondAppError(w, err)
		return
	}
	m, err := h.store.GetMonitor(r.Context(), id)
	if err != nil {
		respondAppError(w, err)
		return
	}
	var req monitorRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondAppError(w, err)
		return
	}
	req.apply(m)
	if err := h.store.UpdateMonitor(r.Context(), m); err != nil {
		respondAppError(w, err)
		return
	}
	respondSuccess(w, m)
}

// POST /monitors/{id}/start
func (h *MonitorHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

// POST /monitors/{id}/stop
func (h *MonitorHandler) StopMonitor(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *MonitorHandler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	id, err := parseID(r, "id")
	if err != nil {
		respondAppError(w, err)
		return
	}
	if err := h.store.SetMonitorActive(r.Context(), id, active); err != nil {
		respondAppError(w, err)
		return
	}
	respondSuccess(w, map[string]interface{}{"id": id, "active": active})
}

// DELETE /monitors/{id}
func (h *MonitorHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		respondAppError(w, err)
		return
	}
	if err := h.store.DeleteMonitor(r.Context(), id); err != nil {
		respondAppError(w, err)
		return
	}
	respondSuccess(w, map[string]string{"deleted": id.String()})
}
