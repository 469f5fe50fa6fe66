// path: internal/store/configs.go
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/xipebhui/autopublish/internal/application/common"
	"github.com/xipebhui/autopublish/internal/models"
)

// CreatePublishConfig stores a new config after checking its references
// point at existing entities.
func (s *Store) CreatePublishConfig(ctx context.Context, c *models.PublishConfig) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.AccountGroup{}).Where("id = ?", c.GroupID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return errRecordMissing
		}
		if err := tx.Model(&models.Pipeline{}).Where("pipeline_id = ?", c.PipelineID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return errRecordMissing
		}
		return tx.Create(c).Error
	})
	return wrapErr(err, "config_create", "failed to create publish config")
}

// GetPublishConfig looks up one config.
func (s *Store) GetPublishConfig(ctx context.Context, id uuid.UUID) (*models.PublishConfig, error) {
	var c models.PublishConfig
	if err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, wrapErr(err, "config_not_found", "publish config not found")
	}
	return &c, nil
}

// ListPublishConfigs returns all configs, optionally only active ones.
func (s *Store) ListPublishConfigs(ctx context.Context, activeOnly bool) ([]models.PublishConfig, error) {
	q := s.db.WithContext(ctx).Model(&models.PublishConfig{})
	if activeOnly {
		q = q.Where("active = true")
	}
	var out []models.PublishConfig
	if err := q.Order("created_at asc").Find(&out).Error; err != nil {
		return nil, wrapErr(err, "config_list", "failed to list publish configs")
	}
	return out, nil
}

// ListActiveScheduledConfigs returns active configs with a scheduled trigger.
func (s *Store) ListActiveScheduledConfigs(ctx context.Context) ([]models.PublishConfig, error) {
	var out []models.PublishConfig
	err := s.db.WithContext(ctx).
		Where("active = true AND trigger_kind = ?", models.TriggerScheduled).
		Order("created_at asc").
		Find(&out).Error
	if err != nil {
		return nil, wrapErr(err, "config_list", "failed to list scheduled configs")
	}
	return out, nil
}

// ListConfigsForMonitor returns active monitor-triggered configs targeting
// the given monitor.
func (s *Store) ListConfigsForMonitor(ctx context.Context, monitorID uuid.UUID) ([]models.PublishConfig, error) {
	var out []models.PublishConfig
	err := s.db.WithContext(ctx).
		Where("active = true AND trigger_kind = ? AND monitor_id = ?", models.TriggerMonitor, monitorID).
		Find(&out).Error
	if err != nil {
		return nil, wrapErr(err, "config_list", "failed to list monitor configs")
	}
	return out, nil
}

// UpdatePublishConfig saves changed fields of a config.
func (s *Store) UpdatePublishConfig(ctx context.Context, c *models.PublishConfig) error {
	return wrapErr(s.db.WithContext(ctx).Save(c).Error, "config_update", "failed to update publish config")
}

// SetConfigActive toggles the active flag. Deactivating stops further
// triggers; already enqueued tasks are untouched.
func (s *Store) SetConfigActive(ctx context.Context, id uuid.UUID, active bool) error {
	res := s.db.WithContext(ctx).Model(&models.PublishConfig{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"active": active, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return wrapErr(res.Error, "config_toggle", "failed to toggle config")
	}
	if res.RowsAffected == 0 {
		return wrapErr(errRecordMissing, "config_not_found", "publish config not found")
	}
	return nil
}

// RecordConfigFire advances last_fire. The compare on the previous value
// keeps concurrent evaluators from double-firing the same instant.
func (s *Store) RecordConfigFire(ctx context.Context, id uuid.UUID, prev *time.Time, fire time.Time) error {
	q := s.db.WithContext(ctx).Model(&models.PublishConfig{}).Where("id = ?", id)
	if prev == nil {
		q = q.Where("last_fire IS NULL")
	} else {
		q = q.Where("last_fire = ?", *prev)
	}
	res := q.Updates(map[string]interface{}{"last_fire": fire, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return wrapErr(res.Error, "config_fire", "failed to record fire")
	}
	if res.RowsAffected == 0 {
		return common.Conflict("config_fire_conflict", "last_fire advanced concurrently")
	}
	return nil
}

// DeletePublishConfig removes a config and cascades to its slots and
// still-pending tasks.
func (s *Store) DeletePublishConfig(ctx context.Context, id uuid.UUID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.RingSlot{}, "config_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Where("config_id = ? AND pipeline_status = ?", id, models.PipelinePending).
			Delete(&models.AutoPublishTask{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.PublishConfig{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errRecordMissing
		}
		return nil
	})
	return wrapErr(err, "config_delete", "failed to delete publish config")
}
