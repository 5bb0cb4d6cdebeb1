package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/tigerroll/powercast/internal/domain/entity"
	"github.com/tigerroll/powercast/internal/support/exception"
)

type gormModelRepository struct {
	db *gorm.DB
}

// NewModelRepository returns a ModelRepository backed by the given gorm handle.
func NewModelRepository(db *gorm.DB) ModelRepository {
	return &gormModelRepository{db: db}
}

func (r *gormModelRepository) Insert(ctx context.Context, rec *entity.ModelRecord) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return exception.NewPipelineError("repository", "failed to insert model record", err, false, true)
	}
	return nil
}

func (r *gormModelRepository) GetByID(ctx context.Context, id string) (*entity.ModelRecord, error) {
	var rec entity.ModelRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: id %s", exception.ErrModelNotFound, id)
	}
	if err != nil {
		return nil, exception.NewPipelineError("repository", "failed to query model record", err, false, true)
	}
	return &rec, nil
}

func (r *gormModelRepository) LatestByRegion(ctx context.Context, region string) (*entity.ModelRecord, error) {
	var rec entity.ModelRecord
	err := r.db.WithContext(ctx).
		Where("region = ?", region).
		Order("created_at DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: region %s", exception.ErrModelNotFound, region)
	}
	if err != nil {
		return nil, exception.NewPipelineError("repository", "failed to query latest model record", err, false, true)
	}
	return &rec, nil
}

func (r *gormModelRepository) List(ctx context.Context, region string, limit int) ([]entity.ModelRecord, error) {
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if region != "" {
		q = q.Where("region = ?", region)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []entity.ModelRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, exception.NewPipelineError("repository", "failed to list model records", err, false, true)
	}
	return recs, nil
}
