// path: internal/store/pipelines.go
package store

import (
	"context"

	"gorm.io/gorm/clause"

	"github.com/xipebhui/autopublish/internal/models"
)

// PipelineFilter narrows ListPipelines.
type PipelineFilter struct {
	TypeTag  string
	Platform string
	Status   models.PipelineStatus
}

// UpsertPipeline registers or updates a descriptor keyed by pipeline_id.
func (s *Store) UpsertPipeline(ctx context.Context, p *models.Pipeline) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "pipeline_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"display_name", "type_tag", "implementation_ref", "parameter_schema",
			"supported_platforms", "version", "status", "updated_at",
		}),
	}).Create(p).Error
	return wrapErr(err, "pipeline_upsert", "failed to save pipeline")
}

// GetPipeline looks up a descriptor by its immutable id.
func (s *Store) GetPipeline(ctx context.Context, pipelineID string) (*models.Pipeline, error) {
	var p models.Pipeline
	err := s.db.WithContext(ctx).First(&p, "pipeline_id = ?", pipelineID).Error
	if err != nil {
		return nil, wrapErr(err, "pipeline_not_found", "pipeline "+pipelineID+" not found")
	}
	return &p, nil
}

// ListPipelines returns descriptors matching the filter.
func (s *Store) ListPipelines(ctx context.Context, filter PipelineFilter) ([]models.Pipeline, error) {
	q := s.db.WithContext(ctx).Model(&models.Pipeline{})
	if filter.TypeTag != "" {
		q = q.Where("type_tag = ?", filter.TypeTag)
	}
	if filter.Platform != "" {
		q = q.Where("? = ANY(supported_platforms)", filter.Platform)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	var out []models.Pipeline
	if err := q.Order("pipeline_id asc").Find(&out).Error; err != nil {
		return nil, wrapErr(err, "pipeline_list", "failed to list pipelines")
	}
	return out, nil
}

// DeletePipeline removes a descriptor.
func (s *Store) DeletePipeline(ctx context.Context, pipelineID string) error {
	res := s.db.WithContext(ctx).Delete(&models.Pipeline{}, "pipeline_id = ?", pipelineID)
	if res.Error != nil {
		return wrapErr(res.Error, "pipeline_delete", "failed to delete pipeline")
	}
	if res.RowsAffected == 0 {
		return wrapErr(errRecordMissing, "pipeline_not_found", "pipeline "+pipelineID+" not found")
	}
	return nil
}
