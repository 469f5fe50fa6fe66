// path: internal/store/overview.go
package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/xipebhui/autopublish/internal/models"
)

// StatusCount is one (value, count) aggregation bucket.
type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// AccountPublishCount ranks accounts by successful publishes.
type AccountPublishCount struct {
	AccountID   uuid.UUID `json:"account_id"`
	DisplayName string    `json:"display_name"`
	Published   int64     `json:"published"`
}

// Overview aggregates core state for the dashboard endpoint.
type Overview struct {
	TasksByPipelineStatus []StatusCount             `json:"tasks_by_pipeline_status"`
	TasksByPublishStatus  []StatusCount             `json:"tasks_by_publish_status"`
	PublishesByStatus     []StatusCount             `json:"publishes_by_status"`
	FailuresByCode        []StatusCount             `json:"failures_by_code"`
	RecentTasks           []models.AutoPublishTask  `json:"recent_tasks"`
	TopAccounts           []AccountPublishCount     `json:"top_accounts"`
}

// GetOverview computes the aggregate counts in §4.8.
func (s *Store) GetOverview(ctx context.Context) (*Overview, error) {
	o := &Overview{}

	count := func(model interface{}, column string, dest *[]StatusCount) error {
		return s.db.WithContext(ctx).Model(model).
			Select(column + " as status, count(*) as count").
			Group(column).
			Scan(dest).Error
	}

	if err := count(&models.AutoPublishTask{}, "pipeline_status", &o.TasksByPipelineStatus); err != nil {
		return nil, wrapErr(err, "overview", "failed to aggregate pipeline statuses")
	}
	if err := count(&models.AutoPublishTask{}, "publish_status", &o.TasksByPublishStatus); err != nil {
		return nil, wrapErr(err, "overview", "failed to aggregate publish statuses")
	}
	if err := count(&models.PublishTask{}, "status", &o.PublishesByStatus); err != nil {
		return nil, wrapErr(err, "overview", "failed to aggregate publish tasks")
	}

	err := s.db.WithContext(ctx).Model(&models.PublishTask{}).
		Select("error_code as status, count(*) as count").
		Where("status = ? AND error_code <> ''", models.PublishTaskFailed).
		Group("error_code").
		Scan(&o.FailuresByCode).Error
	if err != nil {
		return nil, wrapErr(err, "overview", "failed to aggregate failure codes")
	}

	err = s.db.WithContext(ctx).
		Order("created_at desc").
		Limit(10).
		Find(&o.RecentTasks).Error
	if err != nil {
		return nil, wrapErr(err, "overview", "failed to load recent tasks")
	}

	err = s.db.WithContext(ctx).Model(&models.PublishTask{}).
		Select("publish_tasks.account_id, accounts.display_name, count(*) as published").
		Joins("JOIN accounts ON accounts.id = publish_tasks.account_id").
		Where("publish_tasks.status = ?", models.PublishTaskSuccess).
		Group("publish_tasks.account_id, accounts.display_name").
		Order("published desc").
		Limit(10).
		Scan(&o.TopAccounts).Error
	if err != nil {
		return nil, wrapErr(err, "overview", "failed to rank accounts")
	}

	return o, nil
}
