package dataset

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScalerFitIgnoresNaN(t *testing.T) {
	var s StandardScaler
	s.Fit([]float64{10, math.NaN(), 20, 30, math.NaN()})

	assert.InDelta(t, 20.0, s.Mean, 1e-9)
	assert.InDelta(t, math.Sqrt(200.0/3.0)+1e-8, s.Std, 1e-9)
}

func TestScalerConstantSeries(t *testing.T) {
	var s StandardScaler
	s.Fit([]float64{5, 5, 5})

	assert.Equal(t, 5.0, s.Mean)
	assert.InDelta(t, 1e-8, s.Std, 1e-12)

	// No division by zero, standardized values stay finite.
	out := s.Transform([]float64{5})
	assert.False(t, math.IsNaN(out[0]))
	assert.False(t, math.IsInf(out[0], 0))
}

func TestScalerAllNaN(t *testing.T) {
	var s StandardScaler
	s.Fit([]float64{math.NaN(), math.NaN()})
	assert.Equal(t, 0.0, s.Mean)
	assert.InDelta(t, 1e-8, s.Std, 1e-12)
}

func TestScalerRoundTrip(t *testing.T) {
	var s StandardScaler
	values := []float64{100, 110, 95, 130, 120}
	s.Fit(values)

	back := s.Inverse(s.Transform(values))
	for i, v := range values {
		assert.InDelta(t, v, back[i], 1e-6)
	}
	assert.InDelta(t, 130.0, s.InverseValue(s.TransformValue(130)), 1e-6)
}

func TestScalerJSONRoundTrip(t *testing.T) {
	s := StandardScaler{Mean: 1234.5, Std: 98.76}
	data, err := json.Marshal(&s)
	require.NoError(t, err)

	var restored StandardScaler
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Equal(t, s, restored)
}
