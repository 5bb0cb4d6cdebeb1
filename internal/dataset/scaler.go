// Package dataset prepares feature matrices for model training: target
// standardization and sliding-window sequence extraction with a
// chronological train/validation/test split.
package dataset

import "math"

// StandardScaler standardizes a single series around its mean and standard
// deviation. NaN entries are ignored when fitting. The epsilon added to the
// standard deviation keeps a constant series from dividing by zero.
type StandardScaler struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

const scalerEpsilon = 1e-8

// Fit computes mean and std over the non-NaN entries of values. A series
// with no finite entries yields mean 0 and std epsilon.
func (s *StandardScaler) Fit(values []float64) {
	var sum float64
	var n int
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		s.Mean = 0
		s.Std = scalerEpsilon
		return
	}
	s.Mean = sum / float64(n)

	var sq float64
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		d := v - s.Mean
		sq += d * d
	}
	s.Std = math.Sqrt(sq/float64(n)) + scalerEpsilon
}

// Transform returns a standardized copy of values.
func (s *StandardScaler) Transform(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = (v - s.Mean) / s.Std
	}
	return out
}

// TransformValue standardizes a single value.
func (s *StandardScaler) TransformValue(v float64) float64 {
	return (v - s.Mean) / s.Std
}

// Inverse maps standardized values back to the original scale in place-safe
// copy form.
func (s *StandardScaler) Inverse(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v*s.Std + s.Mean
	}
	return out
}

// InverseValue maps a single standardized value back to the original scale.
func (s *StandardScaler) InverseValue(v float64) float64 {
	return v*s.Std + s.Mean
}
