package train

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/tigerroll/powercast/internal/config"
	"github.com/tigerroll/powercast/internal/domain/entity"
	"github.com/tigerroll/powercast/internal/model"
	"github.com/tigerroll/powercast/internal/repository"
	"github.com/tigerroll/powercast/internal/support/exception"
	"github.com/tigerroll/powercast/internal/timeseries"
)

type fakeSeriesRepo struct {
	repository.SeriesRepository
	loads        map[string][]entity.HourlyLoad
	weather      []entity.HourlyWeather
	weatherNames []string
	holidays     []entity.Holiday
}

func (f *fakeSeriesRepo) LoadRange(_ context.Context, region string, _, _ time.Time) ([]entity.HourlyLoad, error) {
	return f.loads[region], nil
}

func (f *fakeSeriesRepo) WeatherRange(_ context.Context, name string, _, _ time.Time) ([]entity.HourlyWeather, error) {
	f.weatherNames = append(f.weatherNames, name)
	return f.weather, nil
}

func (f *fakeSeriesRepo) Holidays(_ context.Context, _, _ time.Time) ([]entity.Holiday, error) {
	return f.holidays, nil
}

type fakeModelRepo struct {
	repository.ModelRepository
	inserted []*entity.ModelRecord
}

func (f *fakeModelRepo) Insert(_ context.Context, rec *entity.ModelRecord) error {
	f.inserted = append(f.inserted, rec)
	return nil
}

// memExecutor is an in-memory StorageExecutor.
type memExecutor struct {
	objects map[string][]byte
}

func newMemExecutor() *memExecutor {
	return &memExecutor{objects: map[string][]byte{}}
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

func (m *memExecutor) ListObjects(_ context.Context, _ string, prefix string, fn func(string) error) error {
	for name := range m.objects {
		if len(name) >= len(prefix) && name[:len(prefix)] == prefix {
			if err := fn(name); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *memExecutor) DeleteObject(_ context.Context, _ string, objectName string) error {
	delete(m.objects, objectName)
	return nil
}

func testTrainingConfig() config.TrainingConfig {
	return config.TrainingConfig{
		InputWindow:    12,
		Horizon:        3,
		HiddenSize:     8,
		NumLayers:      1,
		Dropout:        0,
		Epochs:         2,
		BatchSize:      16,
		LearningRate:   1e-3,
		TeacherForcing: 0.2,
		Patience:       2,
		MinDelta:       1e-6,
		MinSequences:   5,
		Seed:           42,
	}
}

func syntheticLoads(region string, start time.Time, hours int) []entity.HourlyLoad {
	rows := make([]entity.HourlyLoad, hours)
	for i := range rows {
		rows[i] = entity.HourlyLoad{
			Name:   region,
			TsHour: start.Add(time.Duration(i) * time.Hour),
			Load:   1000 + 200*math.Sin(2*math.Pi*float64(i)/24),
		}
	}
	return rows
}

func newTestTrainer(t *testing.T, series *fakeSeriesRepo, models *fakeModelRepo, exec *memExecutor) *Trainer {
	t.Helper()
	normalizer, err := timeseries.NewTimeNormalizer("America/New_York")
	require.NoError(t, err)
	store := repository.NewArtifactStore(exec, "test-bucket", "models/")
	locations := map[string]string{"nyc": "New York City, NY"}
	return NewTrainer(series, models, store, normalizer, locations, testTrainingConfig(), nil)
}

func TestTrainRegionProducesModelAndArtifact(t *testing.T) {
	start := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	series := &fakeSeriesRepo{loads: map[string][]entity.HourlyLoad{
		"nyc": syntheticLoads("nyc", start, 120),
	}}
	models := &fakeModelRepo{}
	exec := newMemExecutor()
	trainer := newTestTrainer(t, series, models, exec)

	rec, err := trainer.TrainRegion(context.Background(), "nyc", start, start.Add(120*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, "nyc", rec.Region)
	assert.Equal(t, Algo, rec.Algo)
	assert.False(t, math.IsNaN(rec.TestMAPE))
	assert.Greater(t, rec.EpochsRan, 0)
	require.Len(t, models.inserted, 1)

	// The uploaded artifact must parse and carry the feature contract.
	data, ok := exec.objects[rec.ArtifactKey]
	require.True(t, ok)
	art, err := model.LoadArtifact(data)
	require.NoError(t, err)
	assert.Equal(t, 12, art.InputWindow)
	assert.Equal(t, art.FeatDim, len(art.FeatNames))
	assert.Contains(t, art.FeatNames, "lag_168")
	assert.NotZero(t, art.Scaler.Mean)
}

func TestTrainRegionNoData(t *testing.T) {
	series := &fakeSeriesRepo{loads: map[string][]entity.HourlyLoad{}}
	trainer := newTestTrainer(t, series, &fakeModelRepo{}, newMemExecutor())

	start := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	_, err := trainer.TrainRegion(context.Background(), "nowhere", start, start.AddDate(0, 1, 0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrNoData))
}

func TestTrainRegionNotEnoughSequences(t *testing.T) {
	start := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	series := &fakeSeriesRepo{loads: map[string][]entity.HourlyLoad{
		"nyc": syntheticLoads("nyc", start, 16), // 16 - 12 - 3 + 1 = 2 < 5
	}}
	trainer := newTestTrainer(t, series, &fakeModelRepo{}, newMemExecutor())

	_, err := trainer.TrainRegion(context.Background(), "nyc", start, start.Add(16*time.Hour))
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrNotEnoughSequences))
}

func TestTrainContinuesPastFailingRegion(t *testing.T) {
	start := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	series := &fakeSeriesRepo{loads: map[string][]entity.HourlyLoad{
		"nyc": syntheticLoads("nyc", start, 120),
	}}
	models := &fakeModelRepo{}
	trainer := newTestTrainer(t, series, models, newMemExecutor())

	// "empty" has no data; "nyc" should still train and the run succeed.
	err := trainer.Train(context.Background(), []string{"empty", "nyc"}, start, start.Add(120*time.Hour))
	require.NoError(t, err)
	assert.Len(t, models.inserted, 1)
}

func TestTrainAllRegionsFailing(t *testing.T) {
	trainer := newTestTrainer(t, &fakeSeriesRepo{loads: map[string][]entity.HourlyLoad{}}, &fakeModelRepo{}, newMemExecutor())

	start := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	err := trainer.Train(context.Background(), []string{"a", "b"}, start, start.AddDate(0, 1, 0))
	require.Error(t, err)
}

func TestTrainQueriesWeatherUnderMappedLocation(t *testing.T) {
	start := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	series := &fakeSeriesRepo{loads: map[string][]entity.HourlyLoad{
		"nyc": syntheticLoads("nyc", start, 120),
	}}
	trainer := newTestTrainer(t, series, &fakeModelRepo{}, newMemExecutor())

	_, err := trainer.TrainRegion(context.Background(), "nyc", start, start.Add(120*time.Hour))
	require.NoError(t, err)

	// Weather rows are stored under the ingested location string.
	require.Len(t, series.weatherNames, 1)
	assert.Equal(t, "New York City, NY", series.weatherNames[0])
}

func TestWeatherLocationFallsBackToRegion(t *testing.T) {
	locations := map[string]string{"nyc": "New York City, NY"}
	assert.Equal(t, "New York City, NY", WeatherLocation(locations, "nyc"))
	assert.Equal(t, "chicago", WeatherLocation(locations, "chicago"))
	assert.Equal(t, "nyc", WeatherLocation(nil, "nyc"))
}

func TestAlignWeather(t *testing.T) {
	start := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	times := []time.Time{start, start.Add(time.Hour), start.Add(2 * time.Hour)}
	temp := 21.5
	rows := []entity.HourlyWeather{
		{Name: "nyc", TsHour: start, Temp: &temp},
	}

	cols := AlignWeather(times, rows)
	require.Contains(t, cols, "temp")
	assert.NotContains(t, cols, "humidity") // never observed

	assert.Equal(t, 21.5, cols["temp"][0])
	assert.True(t, math.IsNaN(cols["temp"][1]))
	assert.True(t, math.IsNaN(cols["temp"][2]))
}
