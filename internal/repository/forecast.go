package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tigerroll/powercast/internal/domain/entity"
	"github.com/tigerroll/powercast/internal/support/exception"
)

type gormForecastRepository struct {
	db *gorm.DB
}

// NewForecastRepository returns a ForecastRepository backed by the given gorm handle.
func NewForecastRepository(db *gorm.DB) ForecastRepository {
	return &gormForecastRepository{db: db}
}

// SaveVersioned demotes earlier runs for the same (region, start_date) and
// inserts the new record with its values inside a single transaction, so a
// reader never observes zero or two latest rows.
func (r *gormForecastRepository) SaveVersioned(ctx context.Context, rec *entity.ForecastRecord) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entity.ForecastRecord{}).
			Where("region = ? AND start_date = ? AND is_latest = ?", rec.Region, rec.StartDate, true).
			Update("is_latest", false).Error; err != nil {
			return err
		}
		rec.IsLatest = true
		values := rec.Values
		rec.Values = nil
		if err := tx.Create(rec).Error; err != nil {
			return err
		}
		rec.Values = values
		if len(values) == 0 {
			return nil
		}
		return tx.CreateInBatches(values, upsertBatchSize).Error
	})
	if err != nil {
		return exception.NewPipelineError("repository", "failed to save versioned forecast", err, false, true)
	}
	return nil
}

func (r *gormForecastRepository) Get(ctx context.Context, id string) (*entity.ForecastRecord, error) {
	var rec entity.ForecastRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("forecast %s not found", id)
	}
	if err != nil {
		return nil, exception.NewPipelineError("repository", "failed to query forecast record", err, false, true)
	}
	return &rec, nil
}

func (r *gormForecastRepository) Latest(ctx context.Context, region string, startDate time.Time) (*entity.ForecastRecord, error) {
	var rec entity.ForecastRecord
	err := r.db.WithContext(ctx).
		Where("region = ? AND start_date = ? AND is_latest = ?", region, startDate, true).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("no forecast for region %s starting %s", region, startDate.Format("2006-01-02"))
	}
	if err != nil {
		return nil, exception.NewPipelineError("repository", "failed to query latest forecast", err, false, true)
	}
	return &rec, nil
}

func (r *gormForecastRepository) Search(ctx context.Context, filter ForecastSearchFilter) ([]entity.ForecastRecord, error) {
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if filter.Region != "" {
		q = q.Where("region = ?", filter.Region)
	}
	if filter.ModelID != "" {
		q = q.Where("model_id = ?", filter.ModelID)
	}
	if !filter.From.IsZero() {
		q = q.Where("start_date >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		q = q.Where("start_date < ?", filter.To)
	}
	if filter.OnlyLatest {
		q = q.Where("is_latest = ?", true)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var recs []entity.ForecastRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, exception.NewPipelineError("repository", "failed to search forecast records", err, false, true)
	}
	return recs, nil
}

func (r *gormForecastRepository) Values(ctx context.Context, forecastID string) ([]entity.ForecastValue, error) {
	var values []entity.ForecastValue
	err := r.db.WithContext(ctx).
		Where("forecast_id = ?", forecastID).
		Order("ts").
		Find(&values).Error
	if err != nil {
		return nil, exception.NewPipelineError("repository", "failed to query forecast values", err, false, true)
	}
	return values, nil
}
