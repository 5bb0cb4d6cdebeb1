package feature

import (
	"math"
	"strconv"
	"time"

	"github.com/tigerroll/powercast/internal/timeseries"
)

// WeatherColumnOrder is the canonical ordering of pass-through weather fields.
// Columns absent from the input simply do not appear in the frame.
var WeatherColumnOrder = []string{
	"temp", "dew", "humidity", "windspeed", "precip",
	"solarradiation", "uvindex", "sealevelpressure", "cloudcover",
}

// Config holds the feature construction knobs.
type Config struct {
	Lags        []int // Lag offsets of the target, in hours.
	RollWindows []int // Rolling-mean window sizes, in hours.
}

// DefaultConfig mirrors the offsets the reference models were trained with.
func DefaultConfig() Config {
	return Config{
		Lags:        []int{1, 24, 48, 168},
		RollWindows: []int{24, 168},
	}
}

// Builder derives one feature vector per hour from an aligned hourly series.
type Builder struct {
	cfg        Config
	normalizer *timeseries.TimeNormalizer
}

// NewBuilder creates a Builder. The normalizer supplies the local calendar
// used for hour/dow/month fields and the holiday join.
func NewBuilder(cfg Config, normalizer *timeseries.TimeNormalizer) *Builder {
	return &Builder{cfg: cfg, normalizer: normalizer}
}

// Build produces the feature frame for an hourly series.
//
// times is the ascending naive-UTC hour axis; target is the load series aligned
// to it (NaN where unknown); weather maps column name to an aligned series (NaN
// for gaps); holidays may be nil, yielding all-zero indicators.
//
// Column order: calendar, cyclical, weather pass-through, target lags, target
// rolling means, holiday indicators. Gaps are filled forward, then backward,
// then with zero.
func (b *Builder) Build(times []time.Time, target []float64, weather map[string][]float64, holidays *HolidayIndex) *Frame {
	n := len(times)
	frame := NewFrame(times)

	hour := make([]float64, n)
	dow := make([]float64, n)
	month := make([]float64, n)
	isWeekend := make([]float64, n)
	sinHour := make([]float64, n)
	cosHour := make([]float64, n)
	sinDow := make([]float64, n)
	cosDow := make([]float64, n)

	for i, ts := range times {
		local := b.normalizer.LocalClock(ts)
		h := float64(local.Hour())
		// Monday-based weekday matching the trained calendar encoding.
		d := float64((int(local.Weekday()) + 6) % 7)

		hour[i] = h
		dow[i] = d
		month[i] = float64(int(local.Month()))
		if d >= 5 {
			isWeekend[i] = 1
		}
		sinHour[i] = math.Sin(2 * math.Pi * h / 24)
		cosHour[i] = math.Cos(2 * math.Pi * h / 24)
		sinDow[i] = math.Sin(2 * math.Pi * d / 7)
		cosDow[i] = math.Cos(2 * math.Pi * d / 7)
	}

	_ = frame.AddColumn("hour", hour)
	_ = frame.AddColumn("dow", dow)
	_ = frame.AddColumn("month", month)
	_ = frame.AddColumn("is_weekend", isWeekend)
	_ = frame.AddColumn("sin_hour", sinHour)
	_ = frame.AddColumn("cos_hour", cosHour)
	_ = frame.AddColumn("sin_dow", sinDow)
	_ = frame.AddColumn("cos_dow", cosDow)

	for _, name := range WeatherColumnOrder {
		if values, ok := weather[name]; ok {
			col := make([]float64, n)
			copy(col, values)
			_ = frame.AddColumn(name, col)
		}
	}

	for _, lag := range b.cfg.Lags {
		_ = frame.AddColumn(lagName(lag), lagSeries(target, lag))
	}
	for _, window := range b.cfg.RollWindows {
		_ = frame.AddColumn(rollName(window), rollingMean(target, window))
	}

	isHol := make([]float64, n)
	preHol := make([]float64, n)
	postHol := make([]float64, n)
	for i, ts := range times {
		day := b.normalizer.LocalDayUTCMidnight(ts)
		isHol[i], preHol[i], postHol[i] = holidays.Flags(day)
	}
	_ = frame.AddColumn("is_holiday", isHol)
	_ = frame.AddColumn("pre_holiday", preHol)
	_ = frame.AddColumn("post_holiday", postHol)

	frame.FillGaps()
	return frame
}

func lagName(lag int) string {
	return "lag_" + strconv.Itoa(lag)
}

func rollName(window int) string {
	return "rollmean_" + strconv.Itoa(window)
}

// lagSeries shifts the target by lag hours; the first lag rows are undefined.
func lagSeries(target []float64, lag int) []float64 {
	out := make([]float64, len(target))
	for i := range out {
		if i < lag {
			out[i] = math.NaN()
		} else {
			out[i] = target[i-lag]
		}
	}
	return out
}

// rollingMean computes a trailing mean over the last `window` values with a
// minimum-periods floor of max(1, window/3); rows below the floor are undefined.
func rollingMean(target []float64, window int) []float64 {
	minPeriods := window / 3
	if minPeriods < 1 {
		minPeriods = 1
	}

	out := make([]float64, len(target))
	for i := range target {
		lo := i - window + 1
		if lo < 0 {
			lo = 0
		}
		sum := 0.0
		count := 0
		for j := lo; j <= i; j++ {
			if !math.IsNaN(target[j]) {
				sum += target[j]
				count++
			}
		}
		if count >= minPeriods {
			out[i] = sum / float64(count)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}
