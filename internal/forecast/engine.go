// Package forecast produces hourly load forecasts from persisted model
// artifacts and versions the results.
package forecast

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"path"
	"time"

	"github.com/google/uuid"

	config "github.com/tigerroll/powercast/internal/config"
	"github.com/tigerroll/powercast/internal/domain/entity"
	"github.com/tigerroll/powercast/internal/feature"
	"github.com/tigerroll/powercast/internal/metrics"
	"github.com/tigerroll/powercast/internal/model"
	"github.com/tigerroll/powercast/internal/repository"
	"github.com/tigerroll/powercast/internal/support/exception"
	"github.com/tigerroll/powercast/internal/support/logger"
	"github.com/tigerroll/powercast/internal/timeseries"
	"github.com/tigerroll/powercast/internal/train"
)

// Request names one forecast run.
type Request struct {
	Region  string
	Start   time.Time // naive-UTC hour the forecast begins at
	Days    int
	ModelID string // empty means latest for the region
}

// Result is one produced forecast.
type Result struct {
	Record *entity.ForecastRecord
	CSV    []byte
	CSVKey string // blob object the CSV was exported to, empty when export is off
}

// Engine resolves a model artifact and reproduces its training-time feature
// contract over fresh history to forecast forward.
type Engine struct {
	series     repository.SeriesRepository
	models     repository.ModelRepository
	forecasts  repository.ForecastRepository
	artifacts  *repository.ArtifactStore
	normalizer *timeseries.TimeNormalizer
	builder    *feature.Builder
	locations  map[string]string // region -> weather location its rows are keyed by
	cfg        config.ForecastConfig
	metrics    *metrics.Metrics
}

func NewEngine(
	series repository.SeriesRepository,
	models repository.ModelRepository,
	forecasts repository.ForecastRepository,
	artifacts *repository.ArtifactStore,
	normalizer *timeseries.TimeNormalizer,
	locations map[string]string,
	cfg config.ForecastConfig,
	m *metrics.Metrics,
) *Engine {
	return &Engine{
		series:     series,
		models:     models,
		forecasts:  forecasts,
		artifacts:  artifacts,
		normalizer: normalizer,
		builder:    feature.NewBuilder(feature.DefaultConfig(), normalizer),
		locations:  locations,
		cfg:        cfg,
		metrics:    m,
	}
}

// Run produces, persists and exports one forecast.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()
	res, err := e.run(ctx, req)
	e.metrics.ObservePipeline("forecast", req.Region, time.Since(started), err)
	return res, err
}

func (e *Engine) run(ctx context.Context, req Request) (*Result, error) {
	rec, art, err := e.resolveModel(ctx, req)
	if err != nil {
		return nil, err
	}
	logger.Infof("Forecasting region %s from %s with model %s",
		req.Region, req.Start.Format(time.RFC3339), rec.ID)

	rows, times, err := e.historyWindow(ctx, req.Region, req.Start, art)
	if err != nil {
		return nil, err
	}

	preds, err := e.predict(ctx, req.Region, req.Start, rows, times, art)
	if err != nil {
		return nil, err
	}

	hours := req.Days * 24
	if hours > len(preds) {
		hours = len(preds)
	}
	preds = preds[:hours]

	forecast := &entity.ForecastRecord{
		ID:        uuid.New().String(),
		Region:    req.Region,
		ModelID:   rec.ID,
		StartDate: req.Start,
		Days:      req.Days,
		CreatedAt: time.Now().UTC(),
	}
	values := make([]entity.ForecastValue, hours)
	for i, v := range preds {
		values[i] = entity.ForecastValue{
			ForecastID: forecast.ID,
			Ts:         req.Start.Add(time.Duration(i) * time.Hour),
			Value:      v,
		}
	}
	forecast.Values = values

	if prev, err := e.forecasts.Latest(ctx, req.Region, req.Start); err == nil {
		logger.Infof("Superseding forecast %s for region %s starting %s",
			prev.ID, req.Region, req.Start.Format(time.RFC3339))
	}
	if err := e.forecasts.SaveVersioned(ctx, forecast); err != nil {
		return nil, err
	}
	e.metrics.ObserveForecastHours(req.Region, hours)

	csvData := renderCSV(values)
	csvKey, err := e.exportCSV(ctx, forecast, csvData)
	if err != nil {
		// The forecast is already persisted; a failed export is not fatal.
		logger.Warnf("CSV export failed for forecast %s: %v", forecast.ID, err)
		csvKey = ""
	}
	logger.Infof("Forecast %s: %d hours for region %s", forecast.ID, hours, req.Region)
	return &Result{Record: forecast, CSV: csvData, CSVKey: csvKey}, nil
}

func (e *Engine) resolveModel(ctx context.Context, req Request) (*entity.ModelRecord, *model.Artifact, error) {
	var rec *entity.ModelRecord
	var err error
	if req.ModelID != "" {
		rec, err = e.models.GetByID(ctx, req.ModelID)
	} else {
		rec, err = e.models.LatestByRegion(ctx, req.Region)
	}
	if err != nil {
		return nil, nil, err
	}

	data, err := e.artifacts.Get(ctx, rec.ArtifactKey)
	if err != nil {
		return nil, nil, err
	}
	art, err := model.LoadArtifact(data)
	if err != nil {
		return nil, nil, err
	}
	return rec, art, nil
}

// historyWindow loads exactly input_window gap-free hours strictly before
// start. Any missing load hour is fatal.
func (e *Engine) historyWindow(ctx context.Context, region string, start time.Time, art *model.Artifact) ([]entity.HourlyLoad, []time.Time, error) {
	rows, err := e.series.LoadWindow(ctx, region, start, art.InputWindow)
	if err != nil {
		return nil, nil, err
	}

	times := make([]time.Time, art.InputWindow)
	for i := range times {
		times[i] = start.Add(time.Duration(i-art.InputWindow) * time.Hour)
	}

	present := make(map[time.Time]bool, len(rows))
	for _, row := range rows {
		present[row.TsHour.UTC()] = true
	}
	missing := 0
	for _, ts := range times {
		if !present[ts] {
			missing++
		}
	}
	if missing > 0 {
		return nil, nil, fmt.Errorf("%w: missing %d of %d history hours before %s for region %s",
			exception.ErrIncompleteWindow, missing, art.InputWindow, start.Format(time.RFC3339), region)
	}
	return rows, times, nil
}

// predict rebuilds the training feature contract over the history window
// and decodes the horizon.
func (e *Engine) predict(ctx context.Context, region string, start time.Time, rows []entity.HourlyLoad, times []time.Time, art *model.Artifact) ([]float64, error) {
	target := make([]float64, len(rows))
	for i, row := range rows {
		target[i] = row.Load
	}

	location := train.WeatherLocation(e.locations, region)
	weatherRows, err := e.series.WeatherRange(ctx, location, times[0], start)
	if err != nil {
		return nil, err
	}
	if len(weatherRows) == 0 {
		logger.Warnf("no weather rows for region %s (weather location %q); predicting on load features only", region, location)
	}
	weather := train.AlignWeather(times, weatherRows)

	holidayRows, err := e.series.Holidays(ctx, times[0].AddDate(0, 0, -2), start.AddDate(0, 0, 2))
	if err != nil {
		return nil, err
	}
	dates := make([]time.Time, len(holidayRows))
	for i, h := range holidayRows {
		dates[i] = h.Date
	}

	frame := e.builder.Build(times, target, weather, feature.NewHolidayIndex(dates))
	frame = frame.Project(art.FeatNames)

	net, err := art.Instantiate()
	if err != nil {
		return nil, err
	}

	scaled := art.Scaler.Transform(target)
	matrix := frame.Matrix()
	encoder := make([][]float64, len(matrix))
	for i, row := range matrix {
		in := make([]float64, len(row)+1)
		copy(in, row)
		in[len(row)] = scaled[i]
		encoder[i] = in
	}

	out := net.Predict(encoder)
	preds := make([]float64, len(out))
	for i, v := range out {
		preds[i] = art.Scaler.InverseValue(v)
	}
	return preds, nil
}

// renderCSV formats forecast values with Z-suffixed RFC3339 timestamps.
func renderCSV(values []entity.ForecastValue) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"Datetime", "PredictedLoad"})
	for _, v := range values {
		_ = w.Write([]string{
			v.Ts.UTC().Format("2006-01-02T15:04:05Z"),
			fmt.Sprintf("%.4f", v.Value),
		})
	}
	w.Flush()
	return buf.Bytes()
}

func (e *Engine) exportCSV(ctx context.Context, rec *entity.ForecastRecord, data []byte) (string, error) {
	key := path.Join(e.cfg.ExportPrefix, rec.Region, rec.ID+".csv")
	if err := e.artifacts.PutObject(ctx, key, data, "text/csv"); err != nil {
		return "", err
	}
	return key, nil
}

// Accuracy scores a stored forecast against realized actuals over the
// overlapping hours.
func (e *Engine) Accuracy(ctx context.Context, forecastID string) (float64, int, error) {
	values, err := e.forecasts.Values(ctx, forecastID)
	if err != nil {
		return 0, 0, err
	}
	if len(values) == 0 {
		return 0, 0, fmt.Errorf("%w: forecast %s has no values", exception.ErrNoData, forecastID)
	}

	rec, err := e.forecasts.Get(ctx, forecastID)
	if err != nil {
		return 0, 0, err
	}

	from := values[0].Ts
	to := values[len(values)-1].Ts.Add(time.Hour)
	actuals, err := e.series.LoadRange(ctx, rec.Region, from, to)
	if err != nil {
		return 0, 0, err
	}
	actualAt := make(map[time.Time]float64, len(actuals))
	for _, a := range actuals {
		actualAt[a.TsHour.UTC()] = a.Load
	}

	var sum float64
	overlap := 0
	for _, v := range values {
		y, ok := actualAt[v.Ts.UTC()]
		if !ok {
			continue
		}
		sum += math.Abs(y-v.Value) / math.Max(math.Abs(y), 1e-6)
		overlap++
	}
	if overlap == 0 {
		return 0, 0, fmt.Errorf("%w: no realized hours overlap forecast %s", exception.ErrNoData, forecastID)
	}
	return sum / float64(overlap) * 100, overlap, nil
}

// Search lists stored forecast runs newest first.
func (e *Engine) Search(ctx context.Context, filter repository.ForecastSearchFilter) ([]entity.ForecastRecord, error) {
	return e.forecasts.Search(ctx, filter)
}
