package forecast

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/tigerroll/powercast/internal/config"
	"github.com/tigerroll/powercast/internal/dataset"
	"github.com/tigerroll/powercast/internal/domain/entity"
	"github.com/tigerroll/powercast/internal/model"
	"github.com/tigerroll/powercast/internal/repository"
	"github.com/tigerroll/powercast/internal/support/exception"
	"github.com/tigerroll/powercast/internal/timeseries"
)

type fakeSeriesRepo struct {
	repository.SeriesRepository
	loads        []entity.HourlyLoad
	weatherNames []string
}

func (f *fakeSeriesRepo) LoadRange(_ context.Context, region string, from, to time.Time) ([]entity.HourlyLoad, error) {
	var out []entity.HourlyLoad
	for _, row := range f.loads {
		if row.Name == region && !row.TsHour.Before(from) && row.TsHour.Before(to) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeSeriesRepo) LoadWindow(_ context.Context, region string, before time.Time, hours int) ([]entity.HourlyLoad, error) {
	from := before.Add(-time.Duration(hours) * time.Hour)
	return f.LoadRange(context.Background(), region, from, before)
}

func (f *fakeSeriesRepo) WeatherRange(_ context.Context, name string, _, _ time.Time) ([]entity.HourlyWeather, error) {
	f.weatherNames = append(f.weatherNames, name)
	return nil, nil
}

func (f *fakeSeriesRepo) Holidays(_ context.Context, _, _ time.Time) ([]entity.Holiday, error) {
	return nil, nil
}

type fakeModelRepo struct {
	repository.ModelRepository
	records map[string]*entity.ModelRecord
	latest  map[string]string
}

func (f *fakeModelRepo) GetByID(_ context.Context, id string) (*entity.ModelRecord, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %s", exception.ErrModelNotFound, id)
	}
	return rec, nil
}

func (f *fakeModelRepo) LatestByRegion(_ context.Context, region string) (*entity.ModelRecord, error) {
	id, ok := f.latest[region]
	if !ok {
		return nil, fmt.Errorf("%w: region %s", exception.ErrModelNotFound, region)
	}
	return f.records[id], nil
}

type fakeForecastRepo struct {
	repository.ForecastRepository
	records     []*entity.ForecastRecord
	latestCalls int
}

func (f *fakeForecastRepo) SaveVersioned(_ context.Context, rec *entity.ForecastRecord) error {
	for _, existing := range f.records {
		if existing.Region == rec.Region && existing.StartDate.Equal(rec.StartDate) {
			existing.IsLatest = false
		}
	}
	rec.IsLatest = true
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeForecastRepo) Latest(_ context.Context, region string, startDate time.Time) (*entity.ForecastRecord, error) {
	f.latestCalls++
	for _, rec := range f.records {
		if rec.Region == region && rec.StartDate.Equal(startDate) && rec.IsLatest {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("no forecast for region %s starting %s", region, startDate.Format("2006-01-02"))
}

func (f *fakeForecastRepo) Get(_ context.Context, id string) (*entity.ForecastRecord, error) {
	for _, rec := range f.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("forecast %s not found", id)
}

func (f *fakeForecastRepo) Search(_ context.Context, filter repository.ForecastSearchFilter) ([]entity.ForecastRecord, error) {
	var out []entity.ForecastRecord
	for _, rec := range f.records {
		if filter.Region != "" && rec.Region != filter.Region {
			continue
		}
		if filter.OnlyLatest && !rec.IsLatest {
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (f *fakeForecastRepo) Values(_ context.Context, forecastID string) ([]entity.ForecastValue, error) {
	for _, rec := range f.records {
		if rec.ID == forecastID {
			return rec.Values, nil
		}
	}
	return nil, nil
}

type memExecutor struct {
	objects map[string][]byte
}

func (m *memExecutor) Upload(_ context.Context, _ string, objectName string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[objectName] = b
	return nil
}

func (m *memExecutor) Download(_ context.Context, _ string, objectName string) (io.ReadCloser, error) {
	b, ok := m.objects[objectName]
	if !ok {
		return nil, errors.New("object not found: " + objectName)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memExecutor) ListObjects(_ context.Context, _ string, _ string, _ func(string) error) error {
	return nil
}

func (m *memExecutor) DeleteObject(_ context.Context, _ string, objectName string) error {
	delete(m.objects, objectName)
	return nil
}

type fixture struct {
	engine    *Engine
	series    *fakeSeriesRepo
	forecasts *fakeForecastRepo
	exec      *memExecutor
	start     time.Time
}

const testInputWindow = 8

// newFixture wires an engine around a small pre-stored artifact whose
// feat_names include a column the live frame does not produce.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	normalizer, err := timeseries.NewTimeNormalizer("America/New_York")
	require.NoError(t, err)

	featNames := []string{"hour", "dow", "lag_1", "synthetic_extra"}
	net := model.NewSeq2Seq(len(featNames), 8, 1, 4, 0, rand.New(rand.NewSource(42)))
	art := net.ToArtifact(testInputWindow, featNames, dataset.StandardScaler{Mean: 1000, Std: 100})
	data, err := art.Marshal()
	require.NoError(t, err)

	exec := &memExecutor{objects: map[string][]byte{"models/nyc/m-1.json": data}}
	models := &fakeModelRepo{
		records: map[string]*entity.ModelRecord{
			"m-1": {ID: "m-1", Region: "nyc", ArtifactKey: "models/nyc/m-1.json"},
		},
		latest: map[string]string{"nyc": "m-1"},
	}

	start := time.Date(2023, 6, 10, 0, 0, 0, 0, time.UTC)
	series := &fakeSeriesRepo{}
	for i := -testInputWindow; i < 0; i++ {
		series.loads = append(series.loads, entity.HourlyLoad{
			Name:   "nyc",
			TsHour: start.Add(time.Duration(i) * time.Hour),
			Load:   1000 + 10*float64(i),
		})
	}

	forecasts := &fakeForecastRepo{}
	store := repository.NewArtifactStore(exec, "bucket", "models/")
	engine := NewEngine(series, models, forecasts, store, normalizer,
		map[string]string{"nyc": "New York City, NY"},
		config.ForecastConfig{DefaultDays: 7, ArtifactPrefix: "models/", ExportPrefix: "forecasts/"}, nil)

	return &fixture{engine: engine, series: series, forecasts: forecasts, exec: exec, start: start}
}

func TestRunProducesVersionedForecast(t *testing.T) {
	fx := newFixture(t)

	res, err := fx.engine.Run(context.Background(), Request{Region: "nyc", Start: fx.start, Days: 1})
	require.NoError(t, err)

	// Horizon 4 caps days*24.
	require.Len(t, res.Record.Values, 4)
	assert.True(t, res.Record.IsLatest)
	assert.Equal(t, "m-1", res.Record.ModelID)
	assert.Equal(t, fx.start, res.Record.Values[0].Ts)
	assert.Equal(t, fx.start.Add(3*time.Hour), res.Record.Values[3].Ts)

	lines := strings.Split(strings.TrimSpace(string(res.CSV)), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "Datetime,PredictedLoad", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "2023-06-10T00:00:00Z,"))

	// CSV lands in blob storage under the export prefix.
	assert.Contains(t, res.CSVKey, "forecasts/nyc/")
	_, ok := fx.exec.objects[res.CSVKey]
	assert.True(t, ok)
}

func TestRunDemotesPriorForecast(t *testing.T) {
	fx := newFixture(t)

	first, err := fx.engine.Run(context.Background(), Request{Region: "nyc", Start: fx.start, Days: 1})
	require.NoError(t, err)
	second, err := fx.engine.Run(context.Background(), Request{Region: "nyc", Start: fx.start, Days: 1})
	require.NoError(t, err)

	stored, err := fx.forecasts.Get(context.Background(), first.Record.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsLatest)
	assert.True(t, second.Record.IsLatest)
	// The demoted record keeps its values.
	assert.Len(t, stored.Values, 4)
	// Each run looks up the forecast it would supersede.
	assert.Equal(t, 2, fx.forecasts.latestCalls)
}

func TestRunQueriesWeatherUnderMappedLocation(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.engine.Run(context.Background(), Request{Region: "nyc", Start: fx.start, Days: 1})
	require.NoError(t, err)

	// Weather rows are keyed by the ingested location string, not the load
	// region name.
	require.Len(t, fx.series.weatherNames, 1)
	assert.Equal(t, "New York City, NY", fx.series.weatherNames[0])
}

func TestRunIncompleteHistoryIsFatal(t *testing.T) {
	fx := newFixture(t)
	// Remove two history hours.
	fx.series.loads = fx.series.loads[:len(fx.series.loads)-2]

	_, err := fx.engine.Run(context.Background(), Request{Region: "nyc", Start: fx.start, Days: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrIncompleteWindow))
	assert.Contains(t, err.Error(), "missing 2")
}

func TestRunUnknownModel(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.engine.Run(context.Background(), Request{Region: "nyc", Start: fx.start, Days: 1, ModelID: "missing"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrModelNotFound))
}

func TestRunUnknownRegion(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.engine.Run(context.Background(), Request{Region: "chicago", Start: fx.start, Days: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrModelNotFound))
}

func TestAccuracyAgainstActuals(t *testing.T) {
	fx := newFixture(t)

	res, err := fx.engine.Run(context.Background(), Request{Region: "nyc", Start: fx.start, Days: 1})
	require.NoError(t, err)

	// Realize actuals equal to the forecast for two hours; MAPE over the
	// overlap is 0.
	for i := 0; i < 2; i++ {
		fx.series.loads = append(fx.series.loads, entity.HourlyLoad{
			Name:   "nyc",
			TsHour: fx.start.Add(time.Duration(i) * time.Hour),
			Load:   res.Record.Values[i].Value,
		})
	}

	mape, overlap, err := fx.engine.Accuracy(context.Background(), res.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, overlap)
	assert.InDelta(t, 0.0, mape, 1e-9)
}

func TestAccuracyNoOverlap(t *testing.T) {
	fx := newFixture(t)

	res, err := fx.engine.Run(context.Background(), Request{Region: "nyc", Start: fx.start, Days: 1})
	require.NoError(t, err)

	_, _, err = fx.engine.Accuracy(context.Background(), res.Record.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrNoData))
}

func TestSearchLatestOnly(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.engine.Run(context.Background(), Request{Region: "nyc", Start: fx.start, Days: 1})
	require.NoError(t, err)
	_, err = fx.engine.Run(context.Background(), Request{Region: "nyc", Start: fx.start, Days: 1})
	require.NoError(t, err)

	recs, err := fx.engine.Search(context.Background(), repository.ForecastSearchFilter{
		Region:     "nyc",
		OnlyLatest: true,
	})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}
