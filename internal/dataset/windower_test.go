package dataset

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/powercast/internal/support/exception"
)

var seriesStart = time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)

func syntheticMatrix(n, featDim int) ([]time.Time, [][]float64, []float64) {
	times := make([]time.Time, n)
	features := make([][]float64, n)
	target := make([]float64, n)
	for i := 0; i < n; i++ {
		times[i] = seriesStart.Add(time.Duration(i) * time.Hour)
		row := make([]float64, featDim)
		for j := range row {
			row[j] = float64(i*featDim + j)
		}
		features[i] = row
		target[i] = float64(i)
	}
	return times, features, target
}

func TestWindowCountAndAlignment(t *testing.T) {
	times, features, target := syntheticMatrix(30, 2)
	w := NewSequenceWindower(5, 3, 1)

	seqs, err := w.Window(times, features, target)
	require.NoError(t, err)
	require.Len(t, seqs, 23) // 30 - 5 - 3 + 1

	first := seqs[0]
	require.Len(t, first.Encoder, 5)
	require.Len(t, first.Encoder[0], 3) // feat_dim + appended target
	assert.Equal(t, []float64{0, 1, 0}, first.Encoder[0])
	assert.Equal(t, []float64{8, 9, 4}, first.Encoder[4])
	assert.Equal(t, []float64{5, 6, 7}, first.Target)

	// The horizon hours ride along with the targets they label.
	require.Len(t, first.Times, 3)
	assert.Equal(t, seriesStart.Add(5*time.Hour), first.Times[0])
	assert.Equal(t, seriesStart.Add(7*time.Hour), first.Times[2])

	last := seqs[22]
	assert.Equal(t, []float64{27, 28, 29}, last.Target)
	assert.Equal(t, seriesStart.Add(29*time.Hour), last.Times[2])
}

func TestWindowNotEnoughSequences(t *testing.T) {
	times, features, target := syntheticMatrix(20, 2)
	w := NewSequenceWindower(10, 5, 10) // only 6 sequences possible

	_, err := w.Window(times, features, target)
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrNotEnoughSequences))
}

func TestWindowShorterThanWindow(t *testing.T) {
	times, features, target := syntheticMatrix(5, 1)
	w := NewSequenceWindower(10, 5, 1)

	_, err := w.Window(times, features, target)
	assert.True(t, errors.Is(err, exception.ErrNotEnoughSequences))
}

func TestWindowRowMismatch(t *testing.T) {
	_, features, _ := syntheticMatrix(10, 1)
	times, _, target := syntheticMatrix(9, 1)
	w := NewSequenceWindower(2, 2, 1)

	_, err := w.Window(times, features, target)
	require.Error(t, err)
	assert.True(t, exception.IsPipelineError(err))
}

func TestSplitProportions(t *testing.T) {
	times, features, target := syntheticMatrix(1000, 1)
	w := NewSequenceWindower(168, 24, 10)

	seqs, err := w.Window(times, features, target)
	require.NoError(t, err)
	require.Len(t, seqs, 809)

	split := SplitSequences(seqs)
	assert.Len(t, split.Train, 566)
	assert.Len(t, split.Val, 121)
	assert.Len(t, split.Test, 122)

	// Chronological ordering: validation starts right after training ends.
	lastTrain := split.Train[len(split.Train)-1].Target[0]
	firstVal := split.Val[0].Target[0]
	assert.Equal(t, lastTrain+1, firstVal)
}
