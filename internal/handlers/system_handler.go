// ============================================================================
// FILE: internal/handlers/system_handler.go
// PURPOSE: Overview, health and executor control endpoints
// ============================================================================

package handlers

import (
	"net/http"

	"github.com/xipebhui/autopublish/internal/application/common"
	"github.com/xipebhui/autopublish/internal/executor"
	"github.com/xipebhui/autopublish/internal/store"
)

type SystemHandler struct {
	store      *store.Store
	cache      common.CacheService
	controller *executor.Controller
}

// NewSystemHandler wires the overview endpoints. controller is nil when the
// executor lives in a separate worker process.
func NewSystemHandler(st *store.Store, cache common.CacheService, controller *executor.Controller) *SystemHandler {
	return &SystemHandler{store: st, cache: cache, controller: controller}
}

// GET /health
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"store": "ok", "cache": "ok"}
	code := http.StatusOK
	if err := h.store.Ping(r.Context()); err != nil {
		status["store"] = err.Error()
		code = http.StatusServiceUnavailable
	}
	if h.cache != nil {
		if _, err := h.cache.Exists(r.Context(), "health"); err != nil {
			status["cache"] = err.Error()
		}
	}
	respondJSON(w, code, Envelope{OK: code == http.StatusOK, Data: status})
}

// GET /overview
func (h *SystemHandler) Overview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.store.GetOverview(r.Context())
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondSuccess(w, overview)
}

// POST /executor/start
func (h *SystemHandler) StartExecutor(w http.ResponseWriter, r *http.Request) {
	if h.controller == nil {
		respondError(w, http.StatusConflict, "executor_external", "executor runs in a separate worker process")
		return
	}
	if err := h.controller.Start(r.Context()); err != nil {
		respondAppError(w, err)
		return
	}
	respondSuccess(w, h.controller.Status())
}

// POST /executor/stop
func (h *SystemHandler) StopExecutor(w http.ResponseWriter, r *http.Request) {
	if h.controller == nil {
		respondError(w, http.StatusConflict, "executor_external", "executor runs in a separate worker process")
		return
	}
	if err := h.controller.Stop(r.Context()); err != nil {
		respondAppError(w, err)
		return
	}
	respondSuccess(w, h.controller.Status())
}

// GET /executor/status
func (h *SystemHandler) ExecutorStatus(w http.ResponseWriter, r *http.Request) {
	if h.controller == nil {
		respondSuccess(w, map[string]interface{}{"managed": false})
		return
	}
	respondSuccess(w, h.controller.Status())
}
