package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tigerroll/powercast/internal/domain/entity"
	"github.com/tigerroll/powercast/internal/support/exception"
)

type gormSeriesRepository struct {
	db *gorm.DB
}

// NewSeriesRepository returns a SeriesRepository backed by the given gorm handle.
func NewSeriesRepository(db *gorm.DB) SeriesRepository {
	return &gormSeriesRepository{db: db}
}

// upsertBatchSize keeps multi-row upserts under typical placeholder limits.
const upsertBatchSize = 500

func (r *gormSeriesRepository) UpsertLoads(ctx context.Context, rows []entity.HourlyLoad) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}, {Name: "ts_hour"}},
		DoUpdates: clause.AssignmentColumns([]string{"load", "updated_at"}),
	}).CreateInBatches(rows, upsertBatchSize)
	if tx.Error != nil {
		return 0, exception.NewPipelineError("repository", "failed to upsert hourly load rows", tx.Error, false, true)
	}
	return tx.RowsAffected, nil
}

func (r *gormSeriesRepository) UpsertWeather(ctx context.Context, rows []entity.HourlyWeather) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}, {Name: "ts_hour"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"temp", "dew", "humidity", "windspeed", "precip",
			"solarradiation", "uvindex", "sealevelpressure", "cloudcover",
			"updated_at",
		}),
	}).CreateInBatches(rows, upsertBatchSize)
	if tx.Error != nil {
		return 0, exception.NewPipelineError("repository", "failed to upsert hourly weather rows", tx.Error, false, true)
	}
	return tx.RowsAffected, nil
}

func (r *gormSeriesRepository) UpsertHolidays(ctx context.Context, rows []entity.Holiday) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"name"}),
	}).CreateInBatches(rows, upsertBatchSize)
	if tx.Error != nil {
		return 0, exception.NewPipelineError("repository", "failed to upsert holiday rows", tx.Error, false, true)
	}
	return tx.RowsAffected, nil
}

func (r *gormSeriesRepository) LoadRange(ctx context.Context, region string, from, to time.Time) ([]entity.HourlyLoad, error) {
	var rows []entity.HourlyLoad
	err := r.db.WithContext(ctx).
		Where("name = ? AND ts_hour >= ? AND ts_hour < ?", region, from, to).
		Order("ts_hour").
		Find(&rows).Error
	if err != nil {
		return nil, exception.NewPipelineError("repository", "failed to query hourly load range", err, false, true)
	}
	return rows, nil
}

func (r *gormSeriesRepository) LoadWindow(ctx context.Context, region string, before time.Time, hours int) ([]entity.HourlyLoad, error) {
	from := before.Add(-time.Duration(hours) * time.Hour)
	return r.LoadRange(ctx, region, from, before)
}

func (r *gormSeriesRepository) WeatherRange(ctx context.Context, region string, from, to time.Time) ([]entity.HourlyWeather, error) {
	var rows []entity.HourlyWeather
	err := r.db.WithContext(ctx).
		Where("name = ? AND ts_hour >= ? AND ts_hour < ?", region, from, to).
		Order("ts_hour").
		Find(&rows).Error
	if err != nil {
		return nil, exception.NewPipelineError("repository", "failed to query hourly weather range", err, false, true)
	}
	return rows, nil
}

func (r *gormSeriesRepository) Holidays(ctx context.Context, from, to time.Time) ([]entity.Holiday, error) {
	var rows []entity.Holiday
	err := r.db.WithContext(ctx).
		Where("date >= ? AND date < ?", from, to).
		Order("date").
		Find(&rows).Error
	if err != nil {
		return nil, exception.NewPipelineError("repository", "failed to query holidays", err, false, true)
	}
	return rows, nil
}

func (r *gormSeriesRepository) Coverage(ctx context.Context, region string) (*SeriesCoverage, error) {
	var row struct {
		FirstHour *time.Time
		LastHour  *time.Time
		Hours     int64
	}
	err := r.db.WithContext(ctx).
		Model(&entity.HourlyLoad{}).
		Select("MIN(ts_hour) AS first_hour, MAX(ts_hour) AS last_hour, COUNT(*) AS hours").
		Where("name = ?", region).
		Scan(&row).Error
	if err != nil {
		return nil, exception.NewPipelineError("repository", "failed to query series coverage", err, false, true)
	}
	cov := &SeriesCoverage{Region: region, Hours: row.Hours}
	if row.FirstHour != nil {
		cov.FirstHour = *row.FirstHour
	}
	if row.LastHour != nil {
		cov.LastHour = *row.LastHour
	}
	return cov, nil
}

func (r *gormSeriesRepository) Snapshots(ctx context.Context, region string, from, to time.Time) ([]entity.HourlySeriesSnapshot, error) {
	var out []entity.HourlySeriesSnapshot
	rows, err := r.db.WithContext(ctx).
		Model(&entity.HourlyLoad{}).
		Select(`hourly_load.ts_hour, hourly_load.name, hourly_load.load,
			COALESCE(w.temp, 0), COALESCE(w.dew, 0), COALESCE(w.humidity, 0),
			COALESCE(w.windspeed, 0), COALESCE(w.precip, 0), COALESCE(w.solarradiation, 0),
			COALESCE(w.uvindex, 0), COALESCE(w.sealevelpressure, 0), COALESCE(w.cloudcover, 0)`).
		Joins("LEFT JOIN hourly_weather w ON w.name = hourly_load.name AND w.ts_hour = hourly_load.ts_hour").
		Where("hourly_load.name = ? AND hourly_load.ts_hour >= ? AND hourly_load.ts_hour < ?", region, from, to).
		Order("hourly_load.ts_hour").
		Rows()
	if err != nil {
		return nil, exception.NewPipelineError("repository", "failed to query series snapshots", err, false, true)
	}
	defer rows.Close()

	for rows.Next() {
		var ts time.Time
		var s entity.HourlySeriesSnapshot
		if err := rows.Scan(&ts, &s.Name, &s.Load,
			&s.Temp, &s.Dew, &s.Humidity, &s.Windspeed, &s.Precip,
			&s.Solarradiation, &s.Uvindex, &s.Sealevelpressure, &s.Cloudcover); err != nil {
			return nil, exception.NewPipelineError("repository", "failed to scan series snapshot row", err, false, true)
		}
		s.TsHour = ts.UnixMilli()
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, exception.NewPipelineError("repository", "failed to iterate series snapshot rows", err, false, true)
	}
	return out, nil
}
