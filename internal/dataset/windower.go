package dataset

import (
	"fmt"
	"time"

	"github.com/tigerroll/powercast/internal/support/exception"
)

// Sequence is one training sample: an encoder input of inputWindow rows,
// each row the feature vector with the standardized target appended, and
// the standardized target values, with their hours, for the horizon that
// follows.
type Sequence struct {
	Encoder [][]float64
	Target  []float64
	Times   []time.Time
}

// Split holds chronologically ordered sequences partitioned 70/15/15.
type Split struct {
	Train []Sequence
	Val   []Sequence
	Test  []Sequence
}

// SequenceWindower slides a fixed window over a feature matrix and target
// series, producing encoder/decoder pairs anchored at every hour for which
// both the full input window and the full horizon exist.
type SequenceWindower struct {
	inputWindow  int
	horizon      int
	minSequences int
}

func NewSequenceWindower(inputWindow, horizon, minSequences int) *SequenceWindower {
	return &SequenceWindower{
		inputWindow:  inputWindow,
		horizon:      horizon,
		minSequences: minSequences,
	}
}

// Window builds every admissible sequence. features is row-major with one
// row per hour, target is the standardized target aligned to the same rows
// and times carries each row's hour. A series of N hours yields
// N-inputWindow-horizon+1 sequences; fewer than minSequences is an error.
func (w *SequenceWindower) Window(times []time.Time, features [][]float64, target []float64) ([]Sequence, error) {
	if len(features) != len(target) {
		return nil, exception.NewPipelineErrorf("dataset",
			"feature matrix has %d rows but target has %d", len(features), len(target))
	}
	if len(times) != len(target) {
		return nil, exception.NewPipelineErrorf("dataset",
			"time axis has %d rows but target has %d", len(times), len(target))
	}
	n := len(target)
	count := n - w.inputWindow - w.horizon + 1
	if count < 0 {
		count = 0
	}
	if count < w.minSequences {
		return nil, fmt.Errorf("%w: %d sequences from %d hours (need at least %d)",
			exception.ErrNotEnoughSequences, count, n, w.minSequences)
	}

	seqs := make([]Sequence, 0, count)
	for i := w.inputWindow; i <= n-w.horizon; i++ {
		enc := make([][]float64, w.inputWindow)
		for j := 0; j < w.inputWindow; j++ {
			row := features[i-w.inputWindow+j]
			in := make([]float64, len(row)+1)
			copy(in, row)
			in[len(row)] = target[i-w.inputWindow+j]
			enc[j] = in
		}
		out := make([]float64, w.horizon)
		copy(out, target[i:i+w.horizon])
		hours := make([]time.Time, w.horizon)
		copy(hours, times[i:i+w.horizon])
		seqs = append(seqs, Sequence{Encoder: enc, Target: out, Times: hours})
	}
	return seqs, nil
}

// SplitSequences partitions sequences chronologically into 70% train,
// 15% validation and the remainder test. Sequences must already be in
// time order.
func SplitSequences(seqs []Sequence) Split {
	n := len(seqs)
	trainEnd := int(float64(n) * 0.7)
	valEnd := trainEnd + int(float64(n)*0.15)
	return Split{
		Train: seqs[:trainEnd],
		Val:   seqs[trainEnd:valEnd],
		Test:  seqs[valEnd:],
	}
}
