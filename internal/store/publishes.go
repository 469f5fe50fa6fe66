// ============================================================================
// FILE: internal/store/publishes.go
// PURPOSE: Publish task rows and the scheduled → uploading compare-and-set
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

// EnqueuePublish persists a publish task. The parent task must have a
// completed pipeline; this is the invariant every publish row references a
// finished pipeline invocation.
func (s *Store) EnqueuePublish(ctx context.Context, p *models.PublishTask) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&models.AutoPublishTask{}).
			Where("id = ? AND pipeline_status = ?", p.TaskID, models.PipelineCompleted).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count == 0 {
			return common.Conflict("pipeline_incomplete", "parent task pipeline is not completed")
		}
		return tx.Create(p).Error
	})
	if _, ok := common.AsAppError(err); ok {
		return err
	}
	return wrapErr(err, "publish_enqueue", "failed to enqueue publish task")
}

// GetPublish looks up one publish task.
func (s *Store) GetPublish(ctx context.Context, id uuid.UUID) (*models.PublishTask, error) {
	var p models.PublishTask
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, wrapErr(err, "publish_not_found", "publish task not found")
	}
	return &p, nil
}

// ListPublishes returns publish tasks, newest first, optionally by status.
func (s *Store) ListPublishes(ctx context.Context, status models.PublishState, limit, offset int) ([]models.PublishTask, error) {
	q := s.db.WithContext(ctx).Model(&models.PublishTask{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit <= 0 {
		limit = 50
	}
	var out []models.PublishTask
	if err := q.Order("created_at desc").Limit(limit).Offset(offset).Find(&out).Error; err != nil {
		return nil, wrapErr(err, "publish_list", "failed to list publish tasks")
	}
	return out, nil
}

// ListScheduledPublishes returns every row in scheduled state. The publish
// scheduler rebuilds its heap from this on startup.
func (s *Store) ListScheduledPublishes(ctx context.Context) ([]models.PublishTask, error) {
	var out []models.PublishTask
	err := s.db.WithContext(ctx).
		Where("status = ?", models.PublishTaskScheduled).
		Order("scheduled_time asc").
		Find(&out).Error
	if err != nil {
		return nil, wrapErr(err, "publish_list", "failed to list scheduled publish tasks")
	}
	return out, nil
}

// PopDuePublish claims at most limit due scheduled rows, flipping each to
// uploading with a guarded update so no publish fires twice or early.
func (s *Store) PopDuePublish(ctx context.Context, now time.Time, limit int) ([]models.PublishTask, error) {
	if limit <= 0 {
		return nil, nil
	}
	var popped []models.PublishTask
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var candidates []models.PublishTask
		err := tx.
			Where("status = ? AND scheduled_time <= ?", models.PublishTaskScheduled, now.UTC()).
			Order("scheduled_time asc, id asc").
			Limit(limit).
			Find(&candidates).Error
		if err != nil {
			return err
		}
		for i := range candidates {
			res := tx.Model(&models.PublishTask{}).
				Where("id = ? AND status = ?", candidates[i].ID, models.PublishTaskScheduled).
				Updates(map[string]interface{}{"status": models.PublishTaskUploading, "updated_at": now.UTC()})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				continue
			}
			candidates[i].Status = models.PublishTaskUploading
			popped = append(popped, candidates[i])
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr(err, "publish_pop", "failed to pop due publish tasks")
	}
	return popped, nil
}

// MarkPublish finalizes an uploading row.
func (s *Store) MarkPublish(ctx context.Context, id uuid.UUID, status models.PublishState, result pqtype.NullRawMessage, videoID, url, errMsg, errCode string) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{"status": status, "updated_at": now}
	switch status {
	case models.PublishTaskSuccess:
		updates["platform_video_id"] = videoID
		updates["platform_url"] = url
		updates["uploaded_at"] = now
	case models.PublishTaskFailed:
		updates["error"] = errMsg
		updates["error_code"] = errCode
	}
	res := s.db.WithContext(ctx).Model(&models.PublishTask{}).
		Where("id = ? AND status = ?", id, models.PublishTaskUploading).
		Updates(updates)
	if res.Error != nil {
		return wrapErr(res.Error, "publish_mark", "failed to mark publish task")
	}
	if res.RowsAffected == 0 {
		return common.Conflict("publish_not_uploading", "publish task is not uploading")
	}
	return nil
}

// SchedulePublish flips a pending row to scheduled at the given time.
func (s *Store) SchedulePublish(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.PublishTask{}).
		Where("id = ? AND status = ?", id, models.PublishTaskPending).
		Updates(map[string]interface{}{
			"status":         models.PublishTaskScheduled,
			"scheduled_time": at.UTC(),
			"is_scheduled":   true,
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return wrapErr(res.Error, "publish_schedule", "failed to schedule publish task")
	}
	if res.RowsAffected == 0 {
		return common.Conflict("publish_not_pending", "publish task is not pending")
	}
	return nil
}

// CancelPublish cancels a pending or scheduled row. Uploads already started
// are not interrupted.
func (s *Store) CancelPublish(ctx context.Context, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Model(&models.PublishTask{}).
		Where("id = ? AND status IN ?", id,
			[]models.PublishState{models.PublishTaskPending, models.PublishTaskScheduled}).
		Updates(map[string]interface{}{"status": models.PublishTaskCancelled, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return wrapErr(res.Error, "publish_cancel", "failed to cancel publish task")
	}
	if res.RowsAffected == 0 {
		return common.Conflict("publish_not_cancellable", "publish task already started")
	}
	return nil
}

// CancelPublishesForTask cancels every still-scheduled publish of a task.
// Returns the ids actually cancelled so the heap can drop them lazily.
func (s *Store) CancelPublishesForTask(ctx context.Context, taskID uuid.UUID) ([]uuid.UUID, error) {
	var rows []models.PublishTask
	var cancelled []uuid.UUID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("task_id = ? AND status IN ?", taskID,
			[]models.PublishState{models.PublishTaskPending, models.PublishTaskScheduled}).
			Find(&rows).Error
		if err != nil {
			return err
		}
		for _, row := range rows {
			res := tx.Model(&models.PublishTask{}).
				Where("id = ? AND status = ?", row.ID, row.Status).
				Update("status", models.PublishTaskCancelled)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				cancelled = append(cancelled, row.ID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr(err, "publish_cancel", "failed to cancel task publishes")
	}
	return cancelled, nil
}

// ReschedulePublish atomically moves a scheduled row to a new time.
func (s *Store) ReschedulePublish(ctx context.Context, id uuid.UUID, newTime time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.PublishTask{}).
		Where("id = ? AND status = ?", id, models.PublishTaskScheduled).
		Updates(map[string]interface{}{"scheduled_time": newTime.UTC(), "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return wrapErr(res.Error, "publish_reschedule", "failed to reschedule publish task")
	}
	if res.RowsAffected == 0 {
		return common.Conflict("publish_not_scheduled", "publish task is not reschedulable")
	}
	return nil
}

// ClonePublishForRetry inserts a fresh copy of a failed publish with an
// incremented retry_count, keeping the original row for audit.
func (s *Store) ClonePublishForRetry(ctx context.Context, orig *models.PublishTask, scheduledAt time.Time) (*models.PublishTask, error) {
	clone := &models.PublishTask{
		TaskID:        orig.TaskID,
		AccountID:     orig.AccountID,
		Title:         orig.Title,
		Description:   orig.Description,
		Tags:          orig.Tags,
		ThumbnailRef:  orig.ThumbnailRef,
		Privacy:       orig.Privacy,
		VideoRef:      orig.VideoRef,
		VariantName:   orig.VariantName,
		Status:        models.PublishTaskScheduled,
		ScheduledTime: scheduledAt.UTC(),
		IsScheduled:   true,
		RetryCount:    orig.RetryCount + 1,
		RetryOf:       &orig.ID,
	}
	if err := s.db.WithContext(ctx).Create(clone).Error; err != nil {
		return nil, wrapErr(err, "publish_retry", "failed to clone publish task")
	}
	return clone, nil
}
