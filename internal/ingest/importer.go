package ingest

import (
	"context"
	"io"
	"os"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/powercast/internal/domain/entity"
	"github.com/tigerroll/powercast/internal/metrics"
	"github.com/tigerroll/powercast/internal/repository"
	"github.com/tigerroll/powercast/internal/support/exception"
	"github.com/tigerroll/powercast/internal/support/logger"
	"github.com/tigerroll/powercast/internal/timeseries"
)

// Importer lands parsed raw files as normalized hourly rows.
type Importer struct {
	repo       repository.SeriesRepository
	normalizer *timeseries.TimeNormalizer
	aggregator *timeseries.HourlyAggregator
	metrics    *metrics.Metrics
}

func NewImporter(repo repository.SeriesRepository, normalizer *timeseries.TimeNormalizer, m *metrics.Metrics) *Importer {
	return &Importer{
		repo:       repo,
		normalizer: normalizer,
		aggregator: timeseries.NewHourlyAggregator(),
		metrics:    m,
	}
}

// ImportLoad parses, aggregates and upserts one load CSV.
func (im *Importer) ImportLoad(ctx context.Context, r io.Reader) (Stats, error) {
	samples, stats, err := ParseLoadCSV(r, im.normalizer)
	if err != nil {
		return stats, err
	}

	hourly := im.aggregator.Aggregate(samples)
	now := time.Now().UTC()
	rows := make([]entity.HourlyLoad, len(hourly))
	for i, h := range hourly {
		rows[i] = entity.HourlyLoad{Name: h.Entity, TsHour: h.Hour, Load: h.Value, UpdatedAt: now}
	}

	written, err := im.repo.UpsertLoads(ctx, rows)
	if err != nil {
		return stats, err
	}
	stats.Written = int(written)
	im.metrics.ObserveImport("load", stats.Read, stats.Written, stats.Skipped)
	logger.Infof("Imported load rows: read=%d written=%d skipped=%d", stats.Read, stats.Written, stats.Skipped)
	return stats, nil
}

// weatherSetters maps a column name to its field on HourlyWeather.
var weatherSetters = map[string]func(*entity.HourlyWeather, float64){
	"temp":             func(w *entity.HourlyWeather, v float64) { w.Temp = &v },
	"dew":              func(w *entity.HourlyWeather, v float64) { w.Dew = &v },
	"humidity":         func(w *entity.HourlyWeather, v float64) { w.Humidity = &v },
	"windspeed":        func(w *entity.HourlyWeather, v float64) { w.Windspeed = &v },
	"precip":           func(w *entity.HourlyWeather, v float64) { w.Precip = &v },
	"solarradiation":   func(w *entity.HourlyWeather, v float64) { w.Solarradiation = &v },
	"uvindex":          func(w *entity.HourlyWeather, v float64) { w.Uvindex = &v },
	"sealevelpressure": func(w *entity.HourlyWeather, v float64) { w.Sealevelpressure = &v },
	"cloudcover":       func(w *entity.HourlyWeather, v float64) { w.Cloudcover = &v },
}

// ImportWeather parses, aggregates each observation column to hourly means
// and upserts one wide weather CSV.
func (im *Importer) ImportWeather(ctx context.Context, r io.Reader) (Stats, error) {
	parsed, stats, err := ParseWeatherCSV(r, im.normalizer)
	if err != nil {
		return stats, err
	}

	type key struct {
		name string
		hour time.Time
	}
	now := time.Now().UTC()
	merged := map[key]*entity.HourlyWeather{}
	for col, samples := range parsed.Columns {
		set := weatherSetters[col]
		for _, h := range im.aggregator.Aggregate(samples) {
			k := key{name: h.Entity, hour: h.Hour}
			row, ok := merged[k]
			if !ok {
				row = &entity.HourlyWeather{Name: h.Entity, TsHour: h.Hour, UpdatedAt: now}
				merged[k] = row
			}
			set(row, h.Value)
		}
	}

	rows := make([]entity.HourlyWeather, 0, len(merged))
	for _, row := range merged {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Name != rows[j].Name {
			return rows[i].Name < rows[j].Name
		}
		return rows[i].TsHour.Before(rows[j].TsHour)
	})

	written, err := im.repo.UpsertWeather(ctx, rows)
	if err != nil {
		return stats, err
	}
	stats.Written = int(written)
	im.metrics.ObserveImport("weather", stats.Read, stats.Written, stats.Skipped)
	logger.Infof("Imported weather rows: read=%d written=%d skipped=%d", stats.Read, stats.Written, stats.Skipped)
	return stats, nil
}

// ImportHolidays parses and upserts one holiday file.
func (im *Importer) ImportHolidays(ctx context.Context, r io.Reader) (Stats, error) {
	rows, stats, err := ParseHolidays(r)
	if err != nil {
		return stats, exception.NewPipelineError("ingest", "failed to parse holiday file", err, false, false)
	}

	written, err := im.repo.UpsertHolidays(ctx, rows)
	if err != nil {
		return stats, err
	}
	stats.Written = int(written)
	im.metrics.ObserveImport("holiday", stats.Read, stats.Written, stats.Skipped)
	logger.Infof("Imported holiday rows: read=%d written=%d skipped=%d", stats.Read, stats.Written, stats.Skipped)
	return stats, nil
}

// Files names the raw inputs of one import run. Empty paths are skipped.
type Files struct {
	Load    string
	Weather string
	Holiday string
}

// ImportFiles runs every configured import, collecting failures instead of
// stopping at the first one.
func (im *Importer) ImportFiles(ctx context.Context, files Files) (Stats, error) {
	var total Stats
	var result *multierror.Error

	run := func(path, kind string, fn func(context.Context, io.Reader) (Stats, error)) {
		if path == "" {
			return
		}
		f, err := os.Open(path)
		if err != nil {
			logger.Errorf("Failed to open %s file %s: %v", kind, path, err)
			result = multierror.Append(result, err)
			return
		}
		defer f.Close()

		stats, err := fn(ctx, f)
		total.Read += stats.Read
		total.Written += stats.Written
		total.Skipped += stats.Skipped
		if err != nil {
			logger.Errorf("Failed to import %s file %s: %v", kind, path, err)
			result = multierror.Append(result, err)
		}
	}

	run(files.Load, "load", im.ImportLoad)
	run(files.Weather, "weather", im.ImportWeather)
	run(files.Holiday, "holiday", im.ImportHolidays)
	return total, result.ErrorOrNil()
}
