// ============================================================================
// FILE: internal/handlers/publish_handler.go
// PURPOSE: Publish task endpoints (schedule/cancel/reschedule/retry/list)
// ============================================================================

package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/xipebhui/autopublish/internal/application/common"
	"github.com/xipebhui/autopublish/internal/models"
	"github.com/xipebhui/autopublish/internal/store"
	"github.com/xipebhui/autopublish/internal/strategy"
)

type PublishHandler struct {
	store *store.Store
	clock common.Clock
}

func NewPublishHandler(st *store.Store, clock common.Clock) *PublishHandler {
	return &PublishHandler{store: st, clock: clock}
}

type schedulePublishRequest struct {
	TaskID        string   `json:"task_id" validate:"required,uuid"`
	AccountIDs    []string `json:"account_ids" validate:"required,min=1"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Tags          []string `json:"tags"`
	ThumbnailRef  string   `json:"thumbnail_ref"`
	ScheduledTime *string  `json:"scheduled_time"`
	Privacy       string   `json:"privacy"`
}

// POST /publish/schedule
//
// Manually fans a completed task out to accounts, immediately or deferred.
func (h *PublishHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	var req schedulePublishRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondAppError(w, err)
		return
	}

	taskID, _ := uuid.Parse(req.TaskID)
	task, err := h.store.GetTask(r.Context(), taskID)
	if err != nil {
		respondAppError(w, err)
		return
	}
	if task.PipelineStatus != models.PipelineCompleted {
		respondAppError(w, common.Conflict("pipeline_incomplete", "task pipeline has not completed"))
		return
	}
	if !task.PipelineResult.Valid {
		respondAppError(w, common.Conflict("result_missing", "task has no pipeline result"))
		return
	}

	at := h.clock.Now()
	if req.ScheduledTime != nil {
		parsed, err := time.Parse(time.RFC3339, *req.ScheduledTime)
		if err != nil {
			respondAppError(w, common.BadRequest("invalid_time", "scheduled_time must be RFC 3339"))
			return
		}
		at = parsed.UTC()
	}

	created := make([]*models.PublishTask, 0, len(req.AccountIDs))
	for _, raw := range req.AccountIDs {
		accountID, err := uuid.Parse(raw)
		if err != nil {
			respondAppError(w, common.BadRequest("invalid_id", "invalid account id "+raw))
			return
		}
		p, err := h.buildPublish(task, accountID, &req, at)
		if err != nil {
			respondAppError(w, err)
			return
		}
		if err := h.store.EnqueuePublish(r.Context(), p); err != nil {
			respondAppError(w, err)
			return
		}
		if err := h.store.SchedulePublish(r.Context(), p.ID, at); err != nil {
			respondAppError(w, err)
			return
		}
		created = append(created, p)
	}
	respondCreated(w, created)
}

func (h *PublishHandler) buildPublish(task *models.AutoPublishTask, accountID uuid.UUID, req *schedulePublishRequest, at time.Time) (*models.PublishTask, error) {
	base := strategy.BaseMetadata(task.PipelineResult.RawMessage)
	if base.VideoRef == "" {
		return nil, common.Conflict("missing_video", "pipeline result carries no video artifact")
	}
	p := &models.PublishTask{
		TaskID:        task.ID,
		AccountID:     accountID,
		Title:         base.Title,
		Description:   base.Description,
		Tags:          base.Tags,
		ThumbnailRef:  base.ThumbnailRef,
		Privacy:       base.Privacy,
		VideoRef:      base.VideoRef,
		Status:        models.PublishTaskPending,
		ScheduledTime: at,
		IsScheduled:   at.After(h.clock.Now()),
	}
	if req.Title != "" {
		p.Title = req.Title
	}
	if req.Description != "" {
		p.Description = req.Description
	}
	if len(req.Tags) > 0 {
		p.Tags = req.Tags
	}
	if req.ThumbnailRef != "" {
		p.ThumbnailRef = req.ThumbnailRef
	}
	if req.Privacy != "" {
		p.Privacy = req.Privacy
	}
	return p, nil
}

// GET /publish/tasks
func (h *PublishHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	rows, err := h.store.ListPublishes(r.Context(),
		models.PublishState(r.URL.Query().Get("status")), limit, offset)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondSuccess(w, rows)
}

// GET /publish/scheduler/queue
func (h *PublishHandler) Queue(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.ListScheduledPublishes(r.Context())
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondSuccess(w, map[string]interface{}{"count": len(rows), "queue": rows})
}

// DELETE /publish/scheduler/{id}
func (h *PublishHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		respondAppError(w, err)
		return
	}
	if err := h.store.CancelPublish(r.Context(), id); err != nil {
		respondAppError(w, err)
		return
	}
	respondSuccess(w, map[string]string{"cancelled": id.String()})
}

type rescheduleRequest struct {
	NewTime string `json:"new_time" validate:"required"`
}

// POST /publish/scheduler/reschedule/{id}
func (h *PublishHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		respondAppError(w, err)
		return
	}
	var req rescheduleRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondAppError(w, err)
		return
	}
	newTime, err := time.Parse(time.RFC3339, req.NewTime)
	if err != nil {
		respondAppError(w, common.BadRequest("invalid_time", "new_time must be RFC 3339"))
		return
	}
	if err := h.store.ReschedulePublish(r.Context(), id, newTime.UTC()); err != nil {
		respondAppError(w, err)
		return
	}
	respondSuccess(w, map[string]string{"rescheduled": id.String(), "new_time": newTime.UTC().Format(time.RFC3339)})
}

// POST /publish/tasks/{id}/retry
func (h *PublishHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		respondAppError(w, err)
		return
	}
	orig, err := h.store.GetPublish(r.Context(), id)
	if err != nil {
		respondAppError(w, err)
		return
	}
	if orig.Status != models.PublishTaskFailed {
		respondAppError(w, common.Conflict("publish_not_failed", "only failed publish tasks can be retried"))
		return
	}
	clone, err := h.store.ClonePublishForRetry(r.Context(), orig, h.clock.Now())
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondCreated(w, clone)
}
