// ============================================================================
// FILE: internal/handlers/task_handler.go
// PURPOSE: Auto-publish task endpoints (list/get/retry/cancel)
// ============================================================================

package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/xipebhui/autopublish/internal/application/common"
	"github.com/xipebhui/autopublish/internal/models"
	"github.com/xipebhui/autopublish/internal/store"
)

// HeapDropper lets the handler evict cancelled publishes from an in-process
// heap. Nil when the API runs apart from the worker; the store's
// compare-and-set keeps a stale heap entry from ever dispatching.
type HeapDropper interface {
	Drop(ids []uuid.UUID)
}

type TaskHandler struct {
	store *store.Store
	clock common.Clock
	queue HeapDropper
}

func NewTaskHandler(st *store.Store, clock common.Clock, queue HeapDropper) *TaskHandler {
	return &TaskHandler{store: st, clock: clock, queue: queue}
}

// GET /auto-publish/tasks
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := store.TaskFilter{
		PipelineStatus: models.PipelinePhase(r.URL.Query().Get("pipeline_status")),
		PublishStatus:  models.PublishPhase(r.URL.Query().Get("publish_status")),
	}
	if raw := r.URL.Query().Get("config_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondAppError(w, common.BadRequest("invalid_id", "invalid config_id"))
			return
		}
		filter.ConfigID = &id
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		filter.Limit, _ = strconv.Atoi(raw)
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		filter.Offset, _ = strconv.Atoi(raw)
	}
	tasks, err := h.store.ListTasks(r.Context(), filter)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondSuccess(w, tasks)
}

// GET /auto-publish/tasks/{id}
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		respondAppError(w, err)
		return
	}
	task, err := h.store.GetTask(r.Context(), id)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondSuccess(w, task)
}

// POST /auto-publish/tasks/{id}/retry
//
// A terminal failed row stays immutable; retry mints a new task id linked to
// the original.
func (h *TaskHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		respondAppError(w, err)
		return
	}
	task, err := h.store.GetTask(r.Context(), id)
	if err != nil {
		respondAppError(w, err)
		return
	}
	if task.PipelineStatus != models.PipelineFailed {
		respondAppError(w, common.Conflict("task_not_failed", "only failed tasks can be retried"))
		return
	}
	clone, err := h.store.CloneTaskForRetry(r.Context(), task, h.clock.Now())
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondCreated(w, clone)
}

// POST /auto-publish/tasks/{id}/cancel
func (h *TaskHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		respondAppError(w, err)
		return
	}
	task, err := h.store.GetTask(r.Context(), id)
	if err != nil {
		respondAppError(w, err)
		return
	}

	switch task.PipelineStatus {
	case models.PipelinePending:
		if err := h.store.CancelTask(r.Context(), id); err != nil {
			respondAppError(w, err)
			return
		}
		if task.SlotID != nil {
			// Slot may already be terminal; the task cancel stands.
			_ = h.store.ResolveSlot(r.Context(), *task.SlotID, models.SlotCancelled)
		}
	case models.PipelineRunning:
		// Best-effort: the in-flight invocation finishes, its outcome is
		// discarded by the executor.
		if err := h.store.MarkTaskCancelRequested(r.Context(), id); err != nil {
			respondAppError(w, err)
			return
		}
	default:
		respondAppError(w, common.Conflict("task_terminal", "task already finished"))
		return
	}

	cancelled, err := h.store.CancelPublishesForTask(r.Context(), id)
	if err != nil {
		respondAppError(w, err)
		return
	}
	if h.queue != nil {
		h.queue.Drop(cancelled)
	}
	respondSuccess(w, map[string]interface{}{"cancelled": id, "publishes_cancelled": len(cancelled)})
}
