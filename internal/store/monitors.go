// path: internal/store/monitors.go
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xipebhui/autopublish/internal/models"
)

// CreateMonitor stores a new monitor.
func (s *Store) CreateMonitor(ctx context.Context, m *models.Monitor) error {
	return wrapErr(s.db.WithContext(ctx).Create(m).Error, "monitor_create", "failed to create monitor")
}

// GetMonitor looks up one monitor.
func (s *Store) GetMonitor(ctx context.Context, id uuid.UUID) (*models.Monitor, error) {
	var m models.Monitor
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, wrapErr(err, "monitor_not_found", "monitor not found")
	}
	return &m, nil
}

// ListMonitors returns monitors, optionally only active ones.
func (s *Store) ListMonitors(ctx context.Context, activeOnly bool) ([]models.Monitor, error) {
	q := s.db.WithContext(ctx).Model(&models.Monitor{})
	if activeOnly {
		q = q.Where("active = true")
	}
	var out []models.Monitor
	if err := q.Order("created_at asc").Find(&out).Error; err != nil {
		return nil, wrapErr(err, "monitor_list", "failed to list monitors")
	}
	return out, nil
}

// UpdateMonitor saves changed fields of a monitor.
func (s *Store) UpdateMonitor(ctx context.Context, m *models.Monitor) error {
	return wrapErr(s.db.WithContext(ctx).Save(m).Error, "monitor_update", "failed to update monitor")
}

// SetMonitorActive starts or stops a monitor.
func (s *Store) SetMonitorActive(ctx context.Context, id uuid.UUID, active bool) error {
	res := s.db.WithContext(ctx).Model(&models.Monitor{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"active": active, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return wrapErr(res.Error, "monitor_toggle", "failed to toggle monitor")
	}
	if res.RowsAffected == 0 {
		return wrapErr(errRecordMissing, "monitor_not_found", "monitor not found")
	}
	return nil
}

// DeleteMonitor removes a monitor and its captured results.
func (s *Store) DeleteMonitor(ctx context.Context, id uuid.UUID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.MonitorResult{}, "monitor_id = ?", id).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Monitor{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errRecordMissing
		}
		return nil
	})
	return wrapErr(err, "monitor_delete", "failed to delete monitor")
}

// TouchMonitorCheck records the poll instant.
func (s *Store) TouchMonitorCheck(ctx context.Context, id uuid.UUID, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&models.Monitor{}).
		Where("id = ?", id).
		Update("last_check", at.UTC()).Error
	return wrapErr(err, "monitor_touch", "failed to record monitor check")
}

// UpsertMonitorResult inserts a captured item, ignoring duplicates of the
// (monitor, content) key. Returns true when the row is new.
func (s *Store) UpsertMonitorResult(ctx context.Context, r *models.MonitorResult) (bool, error) {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "monitor_id"}, {Name: "content_id"}},
		DoNothing: true,
	}).Create(r)
	if res.Error != nil {
		return false, wrapErr(res.Error, "monitor_result", "failed to upsert monitor result")
	}
	return res.RowsAffected > 0, nil
}

// ListUnprocessedResults returns captured items not yet fanned out.
func (s *Store) ListUnprocessedResults(ctx context.Context, monitorID uuid.UUID, limit int) ([]models.MonitorResult, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []models.MonitorResult
	err := s.db.WithContext(ctx).
		Where("monitor_id = ? AND processed = false", monitorID).
		Order("created_at asc").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, wrapErr(err, "monitor_result_list", "failed to list unprocessed results")
	}
	return out, nil
}

// CreateTasksForResult emits one auto-publish task per config for a fresh
// monitor result and marks it processed, all inside one transaction so
// content is processed at most once per config.
func (s *Store) CreateTasksForResult(ctx context.Context, result *models.MonitorResult, tasks []models.AutoPublishTask) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.MonitorResult{}).
			Where("id = ? AND processed = false", result.ID).
			Update("processed", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Another poller tick already fanned this result out.
			return nil
		}
		for i := range tasks {
			if err := tx.Create(&tasks[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return wrapErr(err, "monitor_fanout", "failed to fan out monitor result")
}
