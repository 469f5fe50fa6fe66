// path: internal/store/slots.go
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xipebhui/autopublish/internal/application/common"
	"github.com/xipebhui/autopublish/internal/models"
)

// UpsertRingSlots writes a generated slot plan. On conflict with the unique
// (config, date, hour, minute, account) key only the slot_index is refreshed
// and the status is left as it is, so regeneration is idempotent and
// terminal slots keep their outcome.
func (s *Store) UpsertRingSlots(ctx context.Context, slots []models.RingSlot) error {
	if len(slots) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range slots {
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{
					{Name: "config_id"}, {Name: "account_id"}, {Name: "slot_date"},
					{Name: "slot_hour"}, {Name: "slot_minute"},
				},
				DoUpdates: clause.Assignments(map[string]interface{}{
					"slot_index": slots[i].SlotIndex,
					"updated_at": time.Now().UTC(),
				}),
			}).Create(&slots[i]).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	return wrapErr(err, "slot_upsert", "failed to upsert ring slots")
}

// ListRingSlots returns a day's slots for a config ordered by slot time.
func (s *Store) ListRingSlots(ctx context.Context, configID uuid.UUID, date string) ([]models.RingSlot, error) {
	q := s.db.WithContext(ctx).Where("config_id = ?", configID)
	if date != "" {
		q = q.Where("slot_date = ?", date)
	}
	var out []models.RingSlot
	if err := q.Order("slot_date asc, slot_hour asc, slot_minute asc, slot_index asc").Find(&out).Error; err != nil {
		return nil, wrapErr(err, "slot_list", "failed to list ring slots")
	}
	return out, nil
}

// GetRingSlot looks up one slot.
func (s *Store) GetRingSlot(ctx context.Context, id uuid.UUID) (*models.RingSlot, error) {
	var slot models.RingSlot
	if err := s.db.WithContext(ctx).First(&slot, "id = ?", id).Error; err != nil {
		return nil, wrapErr(err, "slot_not_found", "ring slot not found")
	}
	return &slot, nil
}

// NextPendingSlot returns the earliest pending slot at or after now for the
// config, ties broken by slot_index.
func (s *Store) NextPendingSlot(ctx context.Context, configID uuid.UUID, now time.Time) (*models.RingSlot, error) {
	now = now.UTC()
	var slot models.RingSlot
	err := s.db.WithContext(ctx).
		Where("config_id = ? AND status = ?", configID, models.SlotPending).
		Where("(slot_date > ?) OR (slot_date = ? AND (slot_hour * 60 + slot_minute) >= ?)",
			now.Format("2006-01-02"), now.Format("2006-01-02"), now.Hour()*60+now.Minute()).
		Order("slot_date asc, slot_hour asc, slot_minute asc, slot_index asc").
		First(&slot).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, wrapErr(err, "slot_next", "failed to find next pending slot")
	}
	return &slot, nil
}

// BindSlotToTask transitions a pending slot to scheduled and attaches the
// task. Fails with a conflict unless the slot is still pending.
func (s *Store) BindSlotToTask(ctx context.Context, slotID, taskID uuid.UUID) error {
	res := s.db.WithContext(ctx).Model(&models.RingSlot{}).
		Where("id = ? AND status = ?", slotID, models.SlotPending).
		Updates(map[string]interface{}{
			"status":     models.SlotScheduled,
			"task_id":    taskID,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return wrapErr(res.Error, "slot_bind", "failed to bind slot")
	}
	if res.RowsAffected == 0 {
		return common.Conflict("slot_not_pending", "slot is not pending")
	}
	return nil
}

// ResolveSlot moves a scheduled slot to a terminal status.
func (s *Store) ResolveSlot(ctx context.Context, slotID uuid.UUID, status models.SlotStatus) error {
	res := s.db.WithContext(ctx).Model(&models.RingSlot{}).
		Where("id = ? AND status IN ?", slotID, []models.SlotStatus{models.SlotPending, models.SlotScheduled}).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return wrapErr(res.Error, "slot_resolve", "failed to resolve slot")
	}
	if res.RowsAffected == 0 {
		return common.Conflict("slot_terminal", "slot already resolved")
	}
	return nil
}
