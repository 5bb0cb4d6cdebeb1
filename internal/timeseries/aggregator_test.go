package timeseries

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAggregateMeansWithinHour(t *testing.T) {
	agg := NewHourlyAggregator()
	base := time.Date(2023, 6, 1, 10, 0, 0, 0, time.UTC)

	samples := []Sample{
		{Entity: "N.Y.C.", Ts: base.Add(5 * time.Minute), Value: 100},
		{Entity: "N.Y.C.", Ts: base.Add(25 * time.Minute), Value: 110},
		{Entity: "N.Y.C.", Ts: base.Add(55 * time.Minute), Value: 120},
		{Entity: "N.Y.C.", Ts: base.Add(time.Hour), Value: 200},
	}

	got := agg.Aggregate(samples)

	assert.Len(t, got, 2)
	assert.Equal(t, base, got[0].Hour)
	assert.InDelta(t, 110.0, got[0].Value, 1e-9)
	assert.Equal(t, base.Add(time.Hour), got[1].Hour)
	assert.InDelta(t, 200.0, got[1].Value, 1e-9)
}

func TestAggregateDropsNaNAndSeparatesEntities(t *testing.T) {
	agg := NewHourlyAggregator()
	base := time.Date(2023, 6, 1, 10, 0, 0, 0, time.UTC)

	samples := []Sample{
		{Entity: "CAPITL", Ts: base, Value: 50},
		{Entity: "CAPITL", Ts: base.Add(10 * time.Minute), Value: math.NaN()},
		{Entity: "N.Y.C.", Ts: base, Value: 100},
	}

	got := agg.Aggregate(samples)

	assert.Len(t, got, 2)
	assert.Equal(t, "CAPITL", got[0].Entity)
	assert.InDelta(t, 50.0, got[0].Value, 1e-9)
	assert.Equal(t, "N.Y.C.", got[1].Entity)
}

func TestAggregateEmptyInput(t *testing.T) {
	agg := NewHourlyAggregator()
	assert.Empty(t, agg.Aggregate(nil))
}
