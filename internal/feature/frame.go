// Package feature builds the per-hour feature vectors consumed by the
// sequence model, and owns the training-time feature contract (column names
// and order) that inference must reproduce.
package feature

import (
	"fmt"
	"math"
	"time"
)

// Frame is a column-oriented table of per-hour feature values.
// Column order is significant: it is the trained feature contract.
type Frame struct {
	Times []time.Time
	names []string
	cols  map[string][]float64
}

// NewFrame creates an empty frame over the given hour axis.
func NewFrame(times []time.Time) *Frame {
	return &Frame{
		Times: times,
		cols:  make(map[string][]float64),
	}
}

// AddColumn appends a named column. The column length must match the hour axis.
func (f *Frame) AddColumn(name string, values []float64) error {
	if len(values) != len(f.Times) {
		return fmt.Errorf("column '%s' has %d values for %d hours", name, len(values), len(f.Times))
	}
	if _, exists := f.cols[name]; !exists {
		f.names = append(f.names, name)
	}
	f.cols[name] = values
	return nil
}

// Names returns the column names in insertion order.
func (f *Frame) Names() []string {
	out := make([]string, len(f.names))
	copy(out, f.names)
	return out
}

// Column returns the values of a named column, or nil if absent.
func (f *Frame) Column(name string) []float64 {
	return f.cols[name]
}

// Len returns the number of hours in the frame.
func (f *Frame) Len() int {
	return len(f.Times)
}

// Row materializes one feature vector in column order.
func (f *Frame) Row(i int) []float64 {
	row := make([]float64, len(f.names))
	for j, name := range f.names {
		row[j] = f.cols[name][i]
	}
	return row
}

// Matrix materializes the whole frame as [hour][column] in column order.
func (f *Frame) Matrix() [][]float64 {
	out := make([][]float64, len(f.Times))
	for i := range f.Times {
		out[i] = f.Row(i)
	}
	return out
}

// FillGaps applies the gap policy to every column: forward-fill, then
// backward-fill, then any remaining NaN becomes 0.0.
func (f *Frame) FillGaps() {
	for _, name := range f.names {
		fillColumn(f.cols[name])
	}
}

// Project reorders the frame onto a trained column list: missing columns are
// zero-filled, extra columns dropped, order forced to match.
func (f *Frame) Project(trained []string) *Frame {
	out := NewFrame(f.Times)
	for _, name := range trained {
		src, ok := f.cols[name]
		values := make([]float64, len(f.Times))
		if ok {
			copy(values, src)
		}
		// AddColumn cannot fail here: lengths match by construction.
		_ = out.AddColumn(name, values)
	}
	return out
}

// fillColumn mutates values in place per the forward/backward/zero policy.
func fillColumn(values []float64) {
	last := math.NaN()
	for i, v := range values {
		if math.IsNaN(v) {
			values[i] = last
		} else {
			last = v
		}
	}
	next := math.NaN()
	for i := len(values) - 1; i >= 0; i-- {
		if math.IsNaN(values[i]) {
			values[i] = next
		} else {
			next = values[i]
		}
	}
	for i, v := range values {
		if math.IsNaN(v) {
			values[i] = 0.0
		}
	}
}
