package timeseries

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Sample is one raw observation after timestamp normalization.
type Sample struct {
	Entity string
	Ts     time.Time // naive-UTC
	Value  float64
}

// HourlyValue is one aggregated value for an (entity, UTC hour) key.
type HourlyValue struct {
	Entity string
	Hour   time.Time // naive-UTC, floored to the hour
	Value  float64
}

// HourlyAggregator buckets sub-hourly or irregular samples into one value per
// (entity, UTC hour) by arithmetic mean, deduplicating keys.
type HourlyAggregator struct{}

// NewHourlyAggregator creates an HourlyAggregator.
func NewHourlyAggregator() *HourlyAggregator {
	return &HourlyAggregator{}
}

// Aggregate floors each sample to its containing UTC hour, discards NaN values,
// and averages the survivors within each (entity, hour) key. The result is sorted
// by entity then hour.
func (a *HourlyAggregator) Aggregate(samples []Sample) []HourlyValue {
	type key struct {
		entity string
		hour   time.Time
	}

	buckets := make(map[key][]float64)
	for _, s := range samples {
		if math.IsNaN(s.Value) {
			continue
		}
		k := key{entity: s.Entity, hour: FloorHour(s.Ts)}
		buckets[k] = append(buckets[k], s.Value)
	}

	out := make([]HourlyValue, 0, len(buckets))
	for k, values := range buckets {
		out = append(out, HourlyValue{
			Entity: k.entity,
			Hour:   k.hour,
			Value:  stat.Mean(values, nil),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Entity != out[j].Entity {
			return out[i].Entity < out[j].Entity
		}
		return out[i].Hour.Before(out[j].Hour)
	})
	return out
}
