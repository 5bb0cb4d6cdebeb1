package ingest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/powercast/internal/domain/entity"
	"github.com/tigerroll/powercast/internal/repository"
	"github.com/tigerroll/powercast/internal/timeseries"
)

func newNormalizer(t *testing.T) *timeseries.TimeNormalizer {
	t.Helper()
	n, err := timeseries.NewTimeNormalizer("America/New_York")
	require.NoError(t, err)
	return n
}

func TestParseLoadCSV(t *testing.T) {
	csv := strings.Join([]string{
		"Time Stamp,Name,Load",
		"06/01/2023 00:00:00,N.Y.C.,5230.5",
		"06/01/2023 00:05:00,N.Y.C.,5231.7",
		"garbage,N.Y.C.,100",
		"06/01/2023 00:10:00,N.Y.C.,not-a-number",
	}, "\n")

	samples, stats, err := ParseLoadCSV(strings.NewReader(csv), newNormalizer(t))
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Read)
	assert.Equal(t, 2, stats.Skipped)
	require.Len(t, samples, 2)
	// 00:00 EDT is 04:00 naive UTC.
	assert.Equal(t, time.Date(2023, 6, 1, 4, 0, 0, 0, time.UTC), samples[0].Ts)
	assert.Equal(t, "N.Y.C.", samples[0].Entity)
	assert.Equal(t, 5230.5, samples[0].Value)
}

func TestParseLoadCSVStandardTimeOffset(t *testing.T) {
	csv := strings.Join([]string{
		"Time Stamp,Name,Load",
		"01/15/2023 00:00:00,N.Y.C.,6100.0",
	}, "\n")

	samples, _, err := ParseLoadCSV(strings.NewReader(csv), newNormalizer(t))
	require.NoError(t, err)
	require.Len(t, samples, 1)
	// 00:00 EST is 05:00 naive UTC, applied exactly once.
	assert.Equal(t, time.Date(2023, 1, 15, 5, 0, 0, 0, time.UTC), samples[0].Ts)
}

func TestParseLoadCSVRejectsBadHeader(t *testing.T) {
	_, _, err := ParseLoadCSV(strings.NewReader("a,b,c\n1,2,3\n"), newNormalizer(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing Time Stamp")
}

func TestParseWeatherCSVAliasesAndGaps(t *testing.T) {
	csv := strings.Join([]string{
		"City,DateTime,Temp,Humidity,preciptype,conditions",
		"New York,2023-06-01 00:00:00,21.5,63,,Clear",
		"New York,2023-06-01 01:00:00,,61,rain,Rain",
	}, "\n")

	parsed, stats, err := ParseWeatherCSV(strings.NewReader(csv), newNormalizer(t))
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Read)
	assert.Zero(t, stats.Skipped)
	// preciptype and conditions are not observation columns.
	assert.NotContains(t, parsed.Columns, "preciptype")
	assert.NotContains(t, parsed.Columns, "conditions")
	require.Len(t, parsed.Columns["temp"], 1) // empty cell stays a gap
	require.Len(t, parsed.Columns["humidity"], 2)
	assert.Equal(t, 21.5, parsed.Columns["temp"][0].Value)
	assert.Equal(t, "New York", parsed.Columns["temp"][0].Entity)
	// 00:00 EDT is 04:00 naive UTC, applied exactly once.
	assert.Equal(t, time.Date(2023, 6, 1, 4, 0, 0, 0, time.UTC), parsed.Columns["temp"][0].Ts)
}

func TestParseWeatherCSVNoTimeColumn(t *testing.T) {
	_, _, err := ParseWeatherCSV(strings.NewReader("foo,temp\n1,2\n"), newNormalizer(t))
	assert.Error(t, err)
}

func TestParseHolidaysBlockedFormat(t *testing.T) {
	text := strings.Join([]string{
		"2023",
		"Monday, 01/02, New Year's Day (Observed)",
		"Monday, 05/29, Memorial Day",
		"",
		"2024",
		"Monday, 01/01, New Year's Day",
		"junk line without commas",
	}, "\n")

	rows, stats, err := ParseHolidays(strings.NewReader(text))
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Read)
	assert.Equal(t, 1, stats.Skipped)
	require.Len(t, rows, 3)
	assert.Equal(t, time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC), rows[0].Date)
	assert.Equal(t, "New Year's Day (Observed)", rows[0].Name)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), rows[2].Date)
}

func TestParseHolidaysDirectDates(t *testing.T) {
	text := "2023-07-04, Independence Day\n01/02/2023, New Year's Day (Observed)\n"

	rows, stats, err := ParseHolidays(strings.NewReader(text))
	require.NoError(t, err)

	assert.Zero(t, stats.Skipped)
	require.Len(t, rows, 2)
	assert.Equal(t, time.Date(2023, 7, 4, 0, 0, 0, 0, time.UTC), rows[0].Date)
	assert.Equal(t, time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC), rows[1].Date)
}

// fakeSeriesRepo records upserts in memory.
type fakeSeriesRepo struct {
	repository.SeriesRepository
	loads    []entity.HourlyLoad
	weather  []entity.HourlyWeather
	holidays []entity.Holiday
}

func (f *fakeSeriesRepo) UpsertLoads(_ context.Context, rows []entity.HourlyLoad) (int64, error) {
	f.loads = append(f.loads, rows...)
	return int64(len(rows)), nil
}

func (f *fakeSeriesRepo) UpsertWeather(_ context.Context, rows []entity.HourlyWeather) (int64, error) {
	f.weather = append(f.weather, rows...)
	return int64(len(rows)), nil
}

func (f *fakeSeriesRepo) UpsertHolidays(_ context.Context, rows []entity.Holiday) (int64, error) {
	f.holidays = append(f.holidays, rows...)
	return int64(len(rows)), nil
}

func TestImportLoadAggregatesToHourlyMean(t *testing.T) {
	repo := &fakeSeriesRepo{}
	im := NewImporter(repo, newNormalizer(t), nil)

	csv := strings.Join([]string{
		"Time Stamp,Name,Load",
		"06/01/2023 00:00:00,N.Y.C.,100",
		"06/01/2023 00:30:00,N.Y.C.,200",
		"06/01/2023 01:00:00,N.Y.C.,300",
	}, "\n")

	stats, err := im.ImportLoad(context.Background(), strings.NewReader(csv))
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Read)
	assert.Equal(t, 2, stats.Written)
	require.Len(t, repo.loads, 2)
	assert.Equal(t, 150.0, repo.loads[0].Load)
	assert.Equal(t, 300.0, repo.loads[1].Load)
}

func TestImportWeatherMergesColumns(t *testing.T) {
	repo := &fakeSeriesRepo{}
	im := NewImporter(repo, newNormalizer(t), nil)

	csv := strings.Join([]string{
		"name,datetime,temp,humidity",
		"New York,2023-06-01 00:00:00,21.5,63",
		"New York,2023-06-01 01:00:00,20.1,",
	}, "\n")

	_, err := im.ImportWeather(context.Background(), strings.NewReader(csv))
	require.NoError(t, err)

	require.Len(t, repo.weather, 2)
	first := repo.weather[0]
	require.NotNil(t, first.Temp)
	require.NotNil(t, first.Humidity)
	assert.Equal(t, 21.5, *first.Temp)
	assert.Equal(t, 63.0, *first.Humidity)

	second := repo.weather[1]
	require.NotNil(t, second.Temp)
	assert.Nil(t, second.Humidity) // gap stays NULL at rest
}

func TestImportFilesCollectsFailures(t *testing.T) {
	repo := &fakeSeriesRepo{}
	im := NewImporter(repo, newNormalizer(t), nil)

	_, err := im.ImportFiles(context.Background(), Files{Load: "/nonexistent/load.csv"})
	require.Error(t, err)
}
