// ============================================================================
// FILE: internal/handlers/strategy_handler.go
// PURPOSE: Strategy and strategy-assignment endpoints
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
	"github.com/xipebhui/autopublish/internal/store"
)

type StrategyHandler struct {
	store *store.Store
}

func NewStrategyHandler(st *store.Store) *StrategyHandler {
	return &StrategyHandler{store: st}
}

type strategyRequest struct {
	Name       string          `json:"name" validate:"required"`
	Type       string          `json:"type" validate:"required,oneof=ab_test round_robin weighted"`
	Parameters json.RawMessage `json:"parameters"`
	Active     *bool           `json:"active"`
	StartDate  *string         `json:"start_date"`
	EndDate    *string         `json:"end_date"`
}

func (req *strategyRequest) apply(st *models.Strategy) error {
	st.Name = req.Name
	st.Type = models.StrategyType(req.Type)
	st.Active = true
	if req.Active != nil {
		st.Active = *req.Active
	}
	if len(req.Parameters) > 0 {
		st.Parameters = pqtype.NullRawMessage{RawMessage: req.Parameters, Valid: true}
	}
	for _, pair := range []struct {
		raw  *string
		dest **time.Time
	}{{req.StartDate, &st.StartDate}, {req.EndDate, &st.EndDate}} {
		if pair.raw == nil {
			continue
		}
		t, err := time.Parse(time.RFC3339, *pair.raw)
		if err != nil {
			return common.BadRequest("invalid_date", "dates must be RFC 3339")
		}
		utc := t.UTC()
		*pair.dest = &utc
	}
	return nil
}

// POST /strategies
func (h *StrategyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req strategyRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondAppError(w, err)
		return
	}
	st := &models.Strategy{}
	if err := req.apply(st); err != nil {
		respondAppError(w, err)
		return
	}
	if err := h.store.CreateStrategy(r.Context(), st); err != nil {
		respondAppError(w, err)
		return
	}
	respondCreated(w, st)
}

// GET /strategies
func (h *StrategyHandler) List(w http.ResponseWriter, r *http.Request) {
	strategies, err := h.store.ListStrategies(r.Context())
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondSuccess(w, strategies)
}

// GET /strategies/{id}
func (h *StrategyHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		respondAppError(w, err)
		return
	}
	st, err := h.store.GetStrategy(r.Context(), id)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondSuccess(w, st)
}

// PUT /strategies/{id}
func (h *StrategyHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		respondAppError(w, err)
		return
	}
	st, err := h.store.GetStrategy(r.Context(), id)
	if err != nil {
		respondAppError(w, err)
		return
	}
	var req strategyRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondAppError(w, err)
		return
	}
	if err := req.apply(st); err != nil {
		respondAppError(w, err)
		return
	}
	if err := h.store.UpdateStrategy(r.Context(), st); err != nil {
		respondAppError(w, err)
		return
	}
	respondSuccess(w, st)
}

// DELETE /strategies/{id}
func (h *StrategyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		respondAppError(w, err)
		return
	}
	if err := h.store.DeleteStrategy(r.Context(), id); err != nil {
		respondAppError(w, err)
		return
	}
	respondSuccess(w, map[string]string{"deleted": id.String()})
}

// --- assignments ---

type assignmentRequest struct {
	GroupID     string          `json:"group_id" validate:"required,uuid"`
	VariantName string          `json:"variant_name" validate:"required"`
	Payload     json.RawMessage `json:"payload"`
	Weight      int             `json:"weight" validate:"min=0"`
	IsControl   bool            `json:"is_control"`
}

// POST /strategies/{id}/assignments
func (h *StrategyHandler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	strategyID, err := parseID(r, "id")
	if err != nil {
		respondAppError(w, err)
		return
	}
	if _, err := h.store.GetStrategy(r.Context(), strategyID); err != nil {
		respondAppError(w, err)
		return
	}
	var req assignmentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondAppError(w, err)
		return
	}
	groupID, _ := uuid.Parse(req.GroupID)
	a := &models.StrategyAssignment{
		StrategyID:  strategyID,
		GroupID:     groupID,
		VariantName: req.VariantName,
		Weight:      req.Weight,
		IsControl:   req.IsControl,
	}
	if a.Weight == 0 {
		a.Weight = 1
	}
	if len(req.Payload) > 0 {
		a.Payload = pqtype.NullRawMessage{RawMessage: req.Payload, Valid: true}
	}
	if err := h.store.CreateStrategyAssignment(r.Context(), a); err != nil {
		respondAppError(w, err)
		return
	}
	respondCreated(w, a)
}

// GET /strategies/{id}/assignments?group_id=...
func (h *StrategyHandler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	strategyID, err := parseID(r, "id")
	if err != nil {
		respondAppError(w, err)
		return
	}
	groupID, err := uuid.Parse(r.URL.Query().Get("group_id"))
	if err != nil {
		respondAppError(w, common.BadRequest("invalid_id", "group_id query parameter required"))
		return
	}
	assignments, err := h.store.ListStrategyAssignments(r.Context(), strategyID, groupID)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondSuccess(w, assignments)
}

// DELETE /strategies/{id}/assignments/{assignmentId}
func (h *StrategyHandler) DeleteAssignment(w http.ResponseWriter, r *http.Request) {
	assignmentID, err := parseID(r, "assignmentId")
	if err != nil {
		respondAppError(w, err)
		return
	}
	if err := h.store.DeleteStrategyAssignment(r.Context(), assignmentID); err != nil {
		respondAppError(w, err)
		return
	}
	respondSuccess(w, map[string]string{"deleted": assignmentID.String()})
}
