package feature

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/powercast/internal/timeseries"
)

func testNormalizer(t *testing.T) *timeseries.TimeNormalizer {
	t.Helper()
	n, err := timeseries.NewTimeNormalizer("America/New_York")
	require.NoError(t, err)
	return n
}

func hourAxis(start time.Time, n int) []time.Time {
	times := make([]time.Time, n)
	for i := range times {
		times[i] = start.Add(time.Duration(i) * time.Hour)
	}
	return times
}

func TestBuildColumnOrder(t *testing.T) {
	b := NewBuilder(DefaultConfig(), testNormalizer(t))
	times := hourAxis(time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), 24)
	target := make([]float64, 24)
	for i := range target {
		target[i] = float64(100 + i)
	}
	weather := map[string][]float64{
		"temp":     constant(24, 20.5),
		"humidity": constant(24, 60),
	}

	frame := b.Build(times, target, weather, nil)

	assert.Equal(t, []string{
		"hour", "dow", "month", "is_weekend",
		"sin_hour", "cos_hour", "sin_dow", "cos_dow",
		"temp", "humidity",
		"lag_1", "lag_24", "lag_48", "lag_168",
		"rollmean_24", "rollmean_168",
		"is_holiday", "pre_holiday", "post_holiday",
	}, frame.Names())
}

func TestBuildCalendarFieldsUseLocalZone(t *testing.T) {
	b := NewBuilder(DefaultConfig(), testNormalizer(t))
	// 2023-06-02 03:00 UTC is 2023-06-01 23:00 EDT, a Thursday.
	times := []time.Time{time.Date(2023, 6, 2, 3, 0, 0, 0, time.UTC)}
	frame := b.Build(times, []float64{100}, nil, nil)

	assert.Equal(t, 23.0, frame.Column("hour")[0])
	assert.Equal(t, 3.0, frame.Column("dow")[0]) // Monday=0, Thursday=3
	assert.Equal(t, 6.0, frame.Column("month")[0])
	assert.Equal(t, 0.0, frame.Column("is_weekend")[0])
}

func TestBuildCyclicalEncodings(t *testing.T) {
	b := NewBuilder(DefaultConfig(), testNormalizer(t))
	// 2023-06-01 10:00 UTC is 06:00 EDT.
	times := []time.Time{time.Date(2023, 6, 1, 10, 0, 0, 0, time.UTC)}
	frame := b.Build(times, []float64{100}, nil, nil)

	assert.InDelta(t, math.Sin(2*math.Pi*6/24), frame.Column("sin_hour")[0], 1e-12)
	assert.InDelta(t, math.Cos(2*math.Pi*6/24), frame.Column("cos_hour")[0], 1e-12)
}

func TestBuildLagsAndFillPolicy(t *testing.T) {
	b := NewBuilder(Config{Lags: []int{1, 2}, RollWindows: []int{3}}, testNormalizer(t))
	times := hourAxis(time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), 4)
	target := []float64{10, 20, 30, 40}

	frame := b.Build(times, target, nil, nil)

	// lag_1 row 0 is undefined; backward fill pulls the first defined value (10).
	assert.Equal(t, []float64{10, 10, 20, 30}, frame.Column("lag_1"))
	assert.Equal(t, []float64{10, 10, 10, 20}, frame.Column("lag_2"))
}

func TestBuildRollingMeanMinPeriods(t *testing.T) {
	b := NewBuilder(Config{Lags: nil, RollWindows: []int{6}}, testNormalizer(t))
	times := hourAxis(time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), 4)
	target := []float64{10, 20, 30, 40}

	frame := b.Build(times, target, nil, nil)
	roll := frame.Column("rollmean_6")

	// min_periods = max(1, 6/3) = 2: row 0 is undefined pre-fill and backward
	// fills from row 1; later rows are trailing means.
	assert.InDelta(t, 15.0, roll[0], 1e-9)
	assert.InDelta(t, 15.0, roll[1], 1e-9)
	assert.InDelta(t, 20.0, roll[2], 1e-9)
	assert.InDelta(t, 25.0, roll[3], 1e-9)
}

func TestBuildWeatherGapsFill(t *testing.T) {
	b := NewBuilder(DefaultConfig(), testNormalizer(t))
	times := hourAxis(time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), 4)
	target := []float64{10, 20, 30, 40}
	weather := map[string][]float64{
		"temp": {math.NaN(), 21, math.NaN(), 23},
	}

	frame := b.Build(times, target, weather, nil)

	assert.Equal(t, []float64{21, 21, 21, 23}, frame.Column("temp"))
}

func TestHolidayDaySetsOnlyIsHoliday(t *testing.T) {
	holiday := time.Date(2023, 7, 4, 0, 0, 0, 0, time.UTC)
	idx := NewHolidayIndex([]time.Time{holiday})

	is, pre, post := idx.Flags(holiday)
	assert.Equal(t, []float64{1, 0, 0}, []float64{is, pre, post})
}

func TestDayBeforeHolidaySetsPreFlag(t *testing.T) {
	holiday := time.Date(2023, 7, 4, 0, 0, 0, 0, time.UTC)
	idx := NewHolidayIndex([]time.Time{holiday})

	is, pre, post := idx.Flags(holiday.AddDate(0, 0, -1))
	assert.Equal(t, []float64{0, 1, 0}, []float64{is, pre, post})
}

func TestDayAfterHolidaySetsPostFlag(t *testing.T) {
	holiday := time.Date(2023, 7, 4, 0, 0, 0, 0, time.UTC)
	idx := NewHolidayIndex([]time.Time{holiday})

	is, pre, post := idx.Flags(holiday.AddDate(0, 0, 1))
	assert.Equal(t, []float64{0, 0, 1}, []float64{is, pre, post})
}

func TestNilHolidayIndexIsAllFalse(t *testing.T) {
	var idx *HolidayIndex
	is, pre, post := idx.Flags(time.Date(2023, 7, 4, 0, 0, 0, 0, time.UTC))
	assert.Zero(t, is)
	assert.Zero(t, pre)
	assert.Zero(t, post)
}

func TestProjectPadsAndDrops(t *testing.T) {
	times := hourAxis(time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), 2)
	frame := NewFrame(times)
	require.NoError(t, frame.AddColumn("a", []float64{1, 2}))
	require.NoError(t, frame.AddColumn("extra", []float64{9, 9}))

	projected := frame.Project([]string{"b", "a"})

	assert.Equal(t, []string{"b", "a"}, projected.Names())
	assert.Equal(t, []float64{0, 0}, projected.Column("b"))
	assert.Equal(t, []float64{1, 2}, projected.Column("a"))
	assert.Nil(t, projected.Column("extra"))
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
