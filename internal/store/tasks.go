// ============================================================================
// FILE: internal/store/tasks.go
// PURPOSE: Auto-publish task rows and the claim/record atomic transitions
// ============================================================================

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
	"gorm.io/gorm"

	"github.com/xipebhui/autopublish/internal/application/common"
	"github.com/xipebhui/autopublish/internal/models"
)

// TaskFilter narrows ListTasks.
type TaskFilter struct {
	ConfigID       *uuid.UUID
	PipelineStatus models.PipelinePhase
	PublishStatus  models.PublishPhase
	Limit          int
	Offset         int
}

// CreateTask inserts a new auto-publish task row.
func (s *Store) CreateTask(ctx context.Context, t *models.AutoPublishTask) error {
	return wrapErr(s.db.WithContext(ctx).Create(t).Error, "task_create", "failed to create task")
}

// GetTask looks up one task.
func (s *Store) GetTask(ctx context.Context, id uuid.UUID) (*models.AutoPublishTask, error) {
	var t models.AutoPublishTask
	if err := s.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, wrapErr(err, "task_not_found", "task not found")
	}
	return &t, nil
}

// ListTasks returns tasks matching the filter, newest first.
func (s *Store) ListTasks(ctx context.Context, filter TaskFilter) ([]models.AutoPublishTask, error) {
	q := s.db.WithContext(ctx).Model(&models.AutoPublishTask{})
	if filter.ConfigID != nil {
		q = q.Where("config_id = ?", *filter.ConfigID)
	}
	if filter.PipelineStatus != "" {
		q = q.Where("pipeline_status = ?", filter.PipelineStatus)
	}
	if filter.PublishStatus != "" {
		q = q.Where("publish_status = ?", filter.PublishStatus)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	var out []models.AutoPublishTask
	if err := q.Order("created_at desc").Limit(limit).Offset(filter.Offset).Find(&out).Error; err != nil {
		return nil, wrapErr(err, "task_list", "failed to list tasks")
	}
	return out, nil
}

// ClaimDueWork atomically claims at most limit due pending tasks, marking
// them running with started_at = now in the same transaction. The guarded
// update is the compare-and-set that keeps two workers from double-claiming.
// Claim order: priority desc, scheduled_at asc, created_at asc.
func (s *Store) ClaimDueWork(ctx context.Context, now time.Time, limit int) ([]models.AutoPublishTask, error) {
	if limit <= 0 {
		return nil, nil
	}
	var claimed []models.AutoPublishTask
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var candidates []models.AutoPublishTask
		err := tx.
			Where("pipeline_status = ? AND scheduled_at <= ?", models.PipelinePending, now.UTC()).
			Order("priority desc, scheduled_at asc, created_at asc").
			Limit(limit).
			Find(&candidates).Error
		if err != nil {
			return err
		}
		for i := range candidates {
			res := tx.Model(&models.AutoPublishTask{}).
				Where("id = ? AND pipeline_status = ?", candidates[i].ID, models.PipelinePending).
				Updates(map[string]interface{}{
					"pipeline_status": models.PipelineRunning,
					"started_at":      now.UTC(),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				continue // lost the race to another worker
			}
			candidates[i].PipelineStatus = models.PipelineRunning
			started := now.UTC()
			candidates[i].StartedAt = &started
			claimed = append(claimed, candidates[i])
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr(err, "task_claim", "failed to claim due work")
	}
	return claimed, nil
}

// UpdateTaskSlot denormalizes a bound slot's identity onto the task row.
func (s *Store) UpdateTaskSlot(ctx context.Context, taskID, slotID, accountID uuid.UUID) error {
	err := s.db.WithContext(ctx).Model(&models.AutoPublishTask{}).
		Where("id = ?", taskID).
		Updates(map[string]interface{}{"slot_id": slotID, "account_id": accountID}).Error
	return wrapErr(err, "task_slot", "failed to attach slot to task")
}

// RecordPipelineResult finalizes the pipeline half of a running task.
func (s *Store) RecordPipelineResult(ctx context.Context, taskID uuid.UUID, status models.PipelinePhase, result pqtype.NullRawMessage, errMsg, errCode string) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"pipeline_status": status,
		"pipeline_result": result,
		"completed_at":    now,
	}
	if errMsg != "" {
		updates["error"] = errMsg
		updates["error_code"] = errCode
	}
	res := s.db.WithContext(ctx).Model(&models.AutoPublishTask{}).
		Where("id = ? AND pipeline_status = ?", taskID, models.PipelineRunning).
		Updates(updates)
	if res.Error != nil {
		return wrapErr(res.Error, "task_record", "failed to record pipeline result")
	}
	if res.RowsAffected == 0 {
		return common.Conflict("task_not_running", "task is not running")
	}
	return nil
}

// SetTaskPublishStatus moves the publish half of a task's state machine.
func (s *Store) SetTaskPublishStatus(ctx context.Context, taskID uuid.UUID, status models.PublishPhase) error {
	res := s.db.WithContext(ctx).Model(&models.AutoPublishTask{}).
		Where("id = ?", taskID).
		Update("publish_status", status)
	if res.Error != nil {
		return wrapErr(res.Error, "task_publish_status", "failed to update publish status")
	}
	if res.RowsAffected == 0 {
		return wrapErr(errRecordMissing, "task_not_found", "task not found")
	}
	return nil
}

// CloneTaskForRetry inserts a fresh pending copy of a terminal task with an
// incremented retry_count, leaving the original row intact for audit.
func (s *Store) CloneTaskForRetry(ctx context.Context, orig *models.AutoPublishTask, scheduledAt time.Time) (*models.AutoPublishTask, error) {
	clone := &models.AutoPublishTask{
		ConfigID:       orig.ConfigID,
		GroupID:        orig.GroupID,
		AccountID:      orig.AccountID,
		PipelineID:     orig.PipelineID,
		SlotID:         orig.SlotID,
		StrategyID:     orig.StrategyID,
		VariantName:    orig.VariantName,
		PipelineStatus: models.PipelinePending,
		PublishStatus:  models.PublishPending,
		PipelineParams: orig.PipelineParams,
		Priority:       orig.Priority,
		RetryCount:     orig.RetryCount + 1,
		RetryOf:        &orig.ID,
		ScheduledAt:    scheduledAt.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(clone).Error; err != nil {
		return nil, wrapErr(err, "task_retry", "failed to clone task for retry")
	}
	return clone, nil
}

// CancelTask transitions a pending task to cancelled. Running tasks are
// handled by the executor once the invocation returns.
func (s *Store) CancelTask(ctx context.Context, taskID uuid.UUID) error {
	res := s.db.WithContext(ctx).Model(&models.AutoPublishTask{}).
		Where("id = ? AND pipeline_status = ?", taskID, models.PipelinePending).
		Updates(map[string]interface{}{
			"pipeline_status": models.PipelineFailed,
			"publish_status":  models.PublishCancelled,
			"error":           "cancelled",
			"error_code":      "cancelled",
		})
	if res.Error != nil {
		return wrapErr(res.Error, "task_cancel", "failed to cancel task")
	}
	if res.RowsAffected == 0 {
		return common.Conflict("task_not_cancellable", "task is not pending")
	}
	return nil
}

// MarkTaskCancelRequested flags a running task so the executor cancels it
// once the in-flight invocation returns.
func (s *Store) MarkTaskCancelRequested(ctx context.Context, taskID uuid.UUID) error {
	res := s.db.WithContext(ctx).Model(&models.AutoPublishTask{}).
		Where("id = ? AND pipeline_status = ?", taskID, models.PipelineRunning).
		Update("publish_status", models.PublishCancelled)
	if res.Error != nil {
		return wrapErr(res.Error, "task_cancel", "failed to flag running task")
	}
	if res.RowsAffected == 0 {
		return common.Conflict("task_not_running", "task is not running")
	}
	return nil
}

// ListStaleRunning returns tasks stuck in running since before the cutoff.
// Used by crash recovery on startup.
func (s *Store) ListStaleRunning(ctx context.Context, cutoff time.Time) ([]models.AutoPublishTask, error) {
	var out []models.AutoPublishTask
	err := s.db.WithContext(ctx).
		Where("pipeline_status = ? AND started_at < ?", models.PipelineRunning, cutoff.UTC()).
		Find(&out).Error
	if err != nil {
		return nil, wrapErr(err, "task_stale", "failed to list stale running tasks")
	}
	return out, nil
}

// FailStaleTask marks a stuck running task failed so retry policy can pick
// it back up.
func (s *Store) FailStaleTask(ctx context.Context, taskID uuid.UUID) error {
	res := s.db.WithContext(ctx).Model(&models.AutoPublishTask{}).
		Where("id = ? AND pipeline_status = ?", taskID, models.PipelineRunning).
		Updates(map[string]interface{}{
			"pipeline_status": models.PipelineFailed,
			"error":           "worker lost: task exceeded stale threshold",
			"error_code":      "stale_running",
		})
	if res.Error != nil {
		return wrapErr(res.Error, "task_stale", "failed to fail stale task")
	}
	if res.RowsAffected == 0 {
		return common.Conflict("task_not_running", "task is not running")
	}
	return nil
}
