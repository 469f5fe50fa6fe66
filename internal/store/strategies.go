// path: internal/store/strategies.go
package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/xipebhui/autopublish/internal/models"
)

// CreateStrategy stores an experiment definition.
func (s *Store) CreateStrategy(ctx context.Context, st *models.Strategy) error {
	return wrapErr(s.db.WithContext(ctx).Create(st).Error, "strategy_create", "failed to create strategy")
}

// GetStrategy looks up one strategy.
func (s *Store) GetStrategy(ctx context.Context, id uuid.UUID) (*models.Strategy, error) {
	var st models.Strategy
	if err := s.db.WithContext(ctx).First(&st, "id = ?", id).Error; err != nil {
		return nil, wrapErr(err, "strategy_not_found", "strategy not found")
	}
	return &st, nil
}

// ListStrategies returns every strategy.
func (s *Store) ListStrategies(ctx context.Context) ([]models.Strategy, error) {
	var out []models.Strategy
	if err := s.db.WithContext(ctx).Order("created_at asc").Find(&out).Error; err != nil {
		return nil, wrapErr(err, "strategy_list", "failed to list strategies")
	}
	return out, nil
}

// UpdateStrategy saves changed fields of a strategy.
func (s *Store) UpdateStrategy(ctx context.Context, st *models.Strategy) error {
	return wrapErr(s.db.WithContext(ctx).Save(st).Error, "strategy_update", "failed to update strategy")
}

// DeleteStrategy removes a strategy with its assignments.
func (s *Store) DeleteStrategy(ctx context.Context, id uuid.UUID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.StrategyAssignment{}, "strategy_id = ?", id).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Strategy{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errRecordMissing
		}
		return nil
	})
	return wrapErr(err, "strategy_delete", "failed to delete strategy")
}

// CreateStrategyAssignment stores one variant definition.
func (s *Store) CreateStrategyAssignment(ctx context.Context, a *models.StrategyAssignment) error {
	return wrapErr(s.db.WithContext(ctx).Create(a).Error, "assignment_create", "failed to create assignment")
}

// ListStrategyAssignments returns the variants of a strategy for a group,
// in stable creation order.
func (s *Store) ListStrategyAssignments(ctx context.Context, strategyID, groupID uuid.UUID) ([]models.StrategyAssignment, error) {
	var out []models.StrategyAssignment
	err := s.db.WithContext(ctx).
		Where("strategy_id = ? AND group_id = ?", strategyID, groupID).
		Order("created_at asc").
		Find(&out).Error
	if err != nil {
		return nil, wrapErr(err, "assignment_list", "failed to list assignments")
	}
	return out, nil
}

// DeleteStrategyAssignment removes one variant definition.
func (s *Store) DeleteStrategyAssignment(ctx context.Context, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Delete(&models.StrategyAssignment{}, "id = ?", id)
	if res.Error != nil {
		return wrapErr(res.Error, "assignment_delete", "failed to delete assignment")
	}
	if res.RowsAffected == 0 {
		return wrapErr(errRecordMissing, "assignment_not_found", "assignment not found")
	}
	return nil
}

// CountSuccessfulPublishes returns the number of succeeded publish tasks for
// a (config, account) pair; the round-robin cycle index.
func (s *Store) CountSuccessfulPublishes(ctx context.Context, configID, accountID uuid.UUID) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.PublishTask{}).
		Joins("JOIN auto_publish_tasks ON auto_publish_tasks.id = publish_tasks.task_id").
		Where("auto_publish_tasks.config_id = ? AND publish_tasks.account_id = ? AND publish_tasks.status = ?",
			configID, accountID, models.PublishTaskSuccess).
		Count(&count).Error
	if err != nil {
		return 0, wrapErr(err, "publish_count", "failed to count publishes")
	}
	return int(count), nil
}
