// Package repository provides the persistence operations of the forecasting
// pipelines on top of gorm.
package repository

import (
	"context"
	"time"

	"github.com/tigerroll/powercast/internal/domain/entity"
)

// SeriesCoverage summarizes the stored hourly history for one region.
type SeriesCoverage struct {
	Region    string
	FirstHour time.Time
	LastHour  time.Time
	Hours     int64
}

// SeriesRepository persists and reads the normalized hourly series.
type SeriesRepository interface {
	UpsertLoads(ctx context.Context, rows []entity.HourlyLoad) (int64, error)
	UpsertWeather(ctx context.Context, rows []entity.HourlyWeather) (int64, error)
	UpsertHolidays(ctx context.Context, rows []entity.Holiday) (int64, error)

	// LoadRange returns load rows for [from, to), ordered by hour.
	LoadRange(ctx context.Context, region string, from, to time.Time) ([]entity.HourlyLoad, error)
	// LoadWindow returns the load rows for the `hours` hours strictly
	// before `before`, ordered by hour.
	LoadWindow(ctx context.Context, region string, before time.Time, hours int) ([]entity.HourlyLoad, error)
	WeatherRange(ctx context.Context, region string, from, to time.Time) ([]entity.HourlyWeather, error)
	Holidays(ctx context.Context, from, to time.Time) ([]entity.Holiday, error)
	Coverage(ctx context.Context, region string) (*SeriesCoverage, error)
	Snapshots(ctx context.Context, region string, from, to time.Time) ([]entity.HourlySeriesSnapshot, error)
}

// ModelRepository persists trained model metadata.
type ModelRepository interface {
	Insert(ctx context.Context, rec *entity.ModelRecord) error
	GetByID(ctx context.Context, id string) (*entity.ModelRecord, error)
	// LatestByRegion returns the newest model for the region, or
	// exception.ErrModelNotFound when none exists.
	LatestByRegion(ctx context.Context, region string) (*entity.ModelRecord, error)
	List(ctx context.Context, region string, limit int) ([]entity.ModelRecord, error)
}

// ForecastSearchFilter narrows forecast history queries. Zero values mean
// no constraint.
type ForecastSearchFilter struct {
	Region     string
	ModelID    string
	From       time.Time
	To         time.Time
	OnlyLatest bool
	Limit      int
}

// ForecastRepository persists forecast runs. Runs are immutable; a new run
// for the same (region, start_date) demotes earlier runs instead of
// replacing them.
type ForecastRepository interface {
	SaveVersioned(ctx context.Context, rec *entity.ForecastRecord) error
	Get(ctx context.Context, id string) (*entity.ForecastRecord, error)
	Latest(ctx context.Context, region string, startDate time.Time) (*entity.ForecastRecord, error)
	Search(ctx context.Context, filter ForecastSearchFilter) ([]entity.ForecastRecord, error)
	Values(ctx context.Context, forecastID string) ([]entity.ForecastValue, error)
}
