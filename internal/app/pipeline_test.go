package app

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/tigerroll/powercast/internal/config"
	"github.com/tigerroll/powercast/internal/support/exception"
)

func testConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Powercast.Regions = []string{"N.Y.C.", "CAPITL"}
	return cfg
}

func TestParseCommandImport(t *testing.T) {
	cmd, err := ParseCommand([]string{"import", "-load", "load.csv", "-holiday", "holidays.txt"}, testConfig())
	require.NoError(t, err)

	assert.Equal(t, "import", cmd.Name)
	assert.Equal(t, "load.csv", cmd.Files.Load)
	assert.Equal(t, "", cmd.Files.Weather)
	assert.Equal(t, "holidays.txt", cmd.Files.Holiday)
}

func TestParseCommandImportNeedsAFile(t *testing.T) {
	_, err := ParseCommand([]string{"import"}, testConfig())
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrInvalidInput))
}

func TestParseCommandTrainDateRange(t *testing.T) {
	cmd, err := ParseCommand([]string{"train", "-from", "2023-01-01", "-to", "2023-03-01"}, testConfig())
	require.NoError(t, err)

	assert.Equal(t, []string{"N.Y.C.", "CAPITL"}, cmd.Regions, "unset -regions falls back to configured regions")
	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), cmd.From)
	assert.Equal(t, time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC), cmd.To)
}

func TestParseCommandTrainRejectsInvertedRange(t *testing.T) {
	_, err := ParseCommand([]string{"train", "-from", "2023-03-01", "-to", "2023-01-01"}, testConfig())
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrInvalidInput))
}

func TestParseCommandTrainRejectsBadDate(t *testing.T) {
	_, err := ParseCommand([]string{"train", "-from", "01/02/2023", "-to", "2023-03-01"}, testConfig())
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrInvalidInput))
}

func TestParseCommandForecast(t *testing.T) {
	cmd, err := ParseCommand([]string{
		"forecast", "-regions", "N.Y.C.", "-start", "2023-06-01T00:00:00Z", "-days", "2", "-model-id", "m-1",
	}, testConfig())
	require.NoError(t, err)

	assert.Equal(t, []string{"N.Y.C."}, cmd.Regions)
	assert.Equal(t, time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), cmd.Start)
	assert.Equal(t, 2, cmd.Days)
	assert.Equal(t, "m-1", cmd.ModelID)
}

func TestParseCommandForecastDefaults(t *testing.T) {
	cfg := testConfig()
	cmd, err := ParseCommand([]string{"forecast"}, cfg)
	require.NoError(t, err)

	assert.Equal(t, cfg.Powercast.Forecast.DefaultDays, cmd.Days)
	assert.False(t, cmd.Start.IsZero(), "unset -start defaults to the next hour")
	assert.Zero(t, cmd.Start.Minute())
}

func TestParseCommandForecastHourPrecision(t *testing.T) {
	cmd, err := ParseCommand([]string{"forecast", "-start", "2023-06-01T15"}, testConfig())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 6, 1, 15, 0, 0, 0, time.UTC), cmd.Start)
}

func TestParseCommandForecastDaysBounds(t *testing.T) {
	for _, days := range []string{"0", "-1", "8"} {
		_, err := ParseCommand([]string{"forecast", "-days", days}, testConfig())
		require.Error(t, err, "days=%s", days)
		assert.True(t, errors.Is(err, exception.ErrInvalidInput))
	}

	cmd, err := ParseCommand([]string{"forecast", "-days", "7"}, testConfig())
	require.NoError(t, err)
	assert.Equal(t, 7, cmd.Days)
}

func TestParseCommandCoverage(t *testing.T) {
	cmd, err := ParseCommand([]string{"coverage", "-regions", "CAPITL"}, testConfig())
	require.NoError(t, err)
	assert.Equal(t, "coverage", cmd.Name)
	assert.Equal(t, []string{"CAPITL"}, cmd.Regions)

	cmd, err = ParseCommand([]string{"coverage"}, testConfig())
	require.NoError(t, err)
	assert.Equal(t, []string{"N.Y.C.", "CAPITL"}, cmd.Regions)
}

func TestParseCommandAccuracyNeedsID(t *testing.T) {
	_, err := ParseCommand([]string{"accuracy"}, testConfig())
	require.Error(t, err)

	cmd, err := ParseCommand([]string{"accuracy", "-forecast-id", "f-1"}, testConfig())
	require.NoError(t, err)
	assert.Equal(t, "f-1", cmd.ForecastID)
}

func TestParseCommandUnknown(t *testing.T) {
	_, err := ParseCommand([]string{"resample"}, testConfig())
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrInvalidInput))
}

func TestParseCommandEmpty(t *testing.T) {
	_, err := ParseCommand(nil, testConfig())
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrInvalidInput))
}
