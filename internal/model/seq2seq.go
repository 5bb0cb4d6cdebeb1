package model

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/tigerroll/powercast/internal/dataset"
)

// Seq2Seq is the encoder-decoder forecaster. The encoder consumes windows
// of feature vectors with the standardized target appended; the decoder
// unrolls the forecast horizon one standardized value at a time.
type Seq2Seq struct {
	FeatDim    int
	HiddenSize int
	NumLayers  int
	Horizon    int
	Dropout    float64

	Encoder []*LSTMCell
	Decoder []*LSTMCell
	Wout    *mat.Dense // (1, H)
	Bout    []float64  // 1

	gWout *mat.Dense
	gBout []float64

	rng      *rand.Rand
	training bool
}

// NewSeq2Seq builds a model with all randomness (including weight init)
// drawn from rng.
func NewSeq2Seq(featDim, hiddenSize, numLayers, horizon int, dropout float64, rng *rand.Rand) *Seq2Seq {
	m := &Seq2Seq{
		FeatDim:    featDim,
		HiddenSize: hiddenSize,
		NumLayers:  numLayers,
		Horizon:    horizon,
		Dropout:    dropout,
		rng:        rng,
		gWout:      mat.NewDense(1, hiddenSize, nil),
		gBout:      make([]float64, 1),
	}
	for l := 0; l < numLayers; l++ {
		encIn := hiddenSize
		decIn := hiddenSize
		if l == 0 {
			encIn = featDim + 1
			decIn = 1
		}
		m.Encoder = append(m.Encoder, NewLSTMCell(encIn, hiddenSize, rng))
		m.Decoder = append(m.Decoder, NewLSTMCell(decIn, hiddenSize, rng))
	}
	m.Wout, m.Bout = initLinear(hiddenSize, rng)
	return m
}

func initLinear(hiddenSize int, rng *rand.Rand) (*mat.Dense, []float64) {
	bound := 1.0 / math.Sqrt(float64(hiddenSize))
	w := make([]float64, hiddenSize)
	for i := range w {
		w[i] = (rng.Float64()*2 - 1) * bound
	}
	b := []float64{(rng.Float64()*2 - 1) * bound}
	return mat.NewDense(1, hiddenSize, w), b
}

// SetTraining toggles dropout and teacher forcing eligibility.
func (m *Seq2Seq) SetTraining(training bool) { m.training = training }

// Batch is a minibatch laid out per time step for the encoder.
type Batch struct {
	Steps      []*mat.Dense // inputWindow entries of (B, featDim+1)
	LastTarget *mat.Dense   // (B, 1) standardized target at the final history hour
	Truth      *mat.Dense   // (B, horizon); nil at inference
	Size       int
}

// NewBatch transposes sequences into per-step matrices.
func NewBatch(seqs []dataset.Sequence) *Batch {
	b := len(seqs)
	t := len(seqs[0].Encoder)
	width := len(seqs[0].Encoder[0])
	h := len(seqs[0].Target)

	steps := make([]*mat.Dense, t)
	for step := 0; step < t; step++ {
		st := mat.NewDense(b, width, nil)
		for r := 0; r < b; r++ {
			st.SetRow(r, seqs[r].Encoder[step])
		}
		steps[step] = st
	}
	last := mat.NewDense(b, 1, nil)
	for r := 0; r < b; r++ {
		last.Set(r, 0, seqs[r].Encoder[t-1][width-1])
	}
	truth := mat.NewDense(b, h, nil)
	for r := 0; r < b; r++ {
		truth.SetRow(r, seqs[r].Target)
	}
	return &Batch{Steps: steps, LastTarget: last, Truth: truth, Size: b}
}

type forwardCache struct {
	batch     *Batch
	encStates [][]*cellState // [T][L]
	decStates [][]*cellState // [H][L]
	encMasks  [][]*mat.Dense // [T][L-1], nil entries when not training
	decMasks  [][]*mat.Dense
	hTop      []*mat.Dense // decoder top-layer hidden per step
	forced    []bool       // step received ground truth instead of its own prediction
	preds     *mat.Dense   // (B, horizon)
}

// Preds exposes the prediction matrix of a forward pass.
func (fc *forwardCache) Preds() *mat.Dense { return fc.preds }

// Forward runs the full encode-decode pass. teacherForcing is the
// probability of feeding ground truth at each decode step; it is ignored
// outside training mode or when the batch carries no truth.
func (m *Seq2Seq) Forward(batch *Batch, teacherForcing float64) *forwardCache {
	b := batch.Size
	hs := m.HiddenSize
	layers := m.NumLayers

	fc := &forwardCache{
		batch:  batch,
		hTop:   make([]*mat.Dense, m.Horizon),
		forced: make([]bool, m.Horizon),
		preds:  mat.NewDense(b, m.Horizon, nil),
	}

	h := make([]*mat.Dense, layers)
	c := make([]*mat.Dense, layers)
	for l := range h {
		h[l] = mat.NewDense(b, hs, nil)
		c[l] = mat.NewDense(b, hs, nil)
	}

	for _, step := range batch.Steps {
		states := make([]*cellState, layers)
		masks := make([]*mat.Dense, layers-1)
		x := step
		for l := 0; l < layers; l++ {
			st := m.Encoder[l].Forward(x, h[l], c[l])
			states[l] = st
			h[l] = st.h
			c[l] = st.c
			x = st.h
			if l < layers-1 && m.training && m.Dropout > 0 {
				masks[l] = m.dropoutMask(b, hs)
				dropped := mat.NewDense(b, hs, nil)
				dropped.MulElem(st.h, masks[l])
				x = dropped
			}
		}
		fc.encStates = append(fc.encStates, states)
		fc.encMasks = append(fc.encMasks, masks)
	}

	input := batch.LastTarget
	truthCursor := 0 // forced steps consume the truth sequence as a queue
	for t := 0; t < m.Horizon; t++ {
		states := make([]*cellState, layers)
		masks := make([]*mat.Dense, layers-1)
		x := input
		for l := 0; l < layers; l++ {
			st := m.Decoder[l].Forward(x, h[l], c[l])
			states[l] = st
			h[l] = st.h
			c[l] = st.c
			x = st.h
			if l < layers-1 && m.training && m.Dropout > 0 {
				masks[l] = m.dropoutMask(b, hs)
				dropped := mat.NewDense(b, hs, nil)
				dropped.MulElem(st.h, masks[l])
				x = dropped
			}
		}
		fc.decStates = append(fc.decStates, states)
		fc.decMasks = append(fc.decMasks, masks)
		fc.hTop[t] = h[layers-1]

		pred := mat.NewDense(b, 1, nil)
		pred.Mul(h[layers-1], m.Wout.T())
		for r := 0; r < b; r++ {
			v := pred.At(r, 0) + m.Bout[0]
			pred.Set(r, 0, v)
			fc.preds.Set(r, t, v)
		}

		if t+1 < m.Horizon {
			if m.training && batch.Truth != nil && m.rng.Float64() < teacherForcing {
				next := mat.NewDense(b, 1, nil)
				for r := 0; r < b; r++ {
					next.Set(r, 0, batch.Truth.At(r, truthCursor))
				}
				truthCursor++
				input = next
				fc.forced[t+1] = true
			} else {
				input = pred
			}
		}
	}
	return fc
}

// Backward propagates dPred (gradient of the loss w.r.t. the prediction
// matrix) through the decoder, the autoregressive feedback and the encoder,
// accumulating parameter gradients.
func (m *Seq2Seq) Backward(fc *forwardCache, dPred *mat.Dense) {
	b := fc.batch.Size
	hs := m.HiddenSize
	layers := m.NumLayers

	dh := make([]*mat.Dense, layers)
	dc := make([]*mat.Dense, layers)
	for l := range dh {
		dh[l] = mat.NewDense(b, hs, nil)
		dc[l] = mat.NewDense(b, hs, nil)
	}

	var dInput *mat.Dense // gradient flowing into the next-processed (earlier) step's prediction
	for t := m.Horizon - 1; t >= 0; t-- {
		dp := mat.NewDense(b, 1, nil)
		for r := 0; r < b; r++ {
			dp.Set(r, 0, dPred.At(r, t))
		}
		// The prediction at t also fed step t+1 unless ground truth was
		// forced there; the feedback path is cut in that case.
		if dInput != nil && t+1 < m.Horizon && !fc.forced[t+1] {
			dp.Add(dp, dInput)
		}

		var dW mat.Dense
		dW.Mul(dp.T(), fc.hTop[t])
		m.gWout.Add(m.gWout, &dW)
		for r := 0; r < b; r++ {
			m.gBout[0] += dp.At(r, 0)
		}

		var dhTop mat.Dense
		dhTop.Mul(dp, m.Wout)
		dh[layers-1].Add(dh[layers-1], &dhTop)

		var dxAbove *mat.Dense
		for l := layers - 1; l >= 0; l-- {
			dhl := dh[l]
			if dxAbove != nil {
				contrib := dxAbove
				if fc.decMasks[t][l] != nil {
					masked := mat.NewDense(b, hs, nil)
					masked.MulElem(dxAbove, fc.decMasks[t][l])
					contrib = masked
				}
				dhl.Add(dhl, contrib)
			}
			dx, dhPrev, dcPrev := m.Decoder[l].Backward(fc.decStates[t][l], dhl, dc[l])
			dh[l] = dhPrev
			dc[l] = dcPrev
			if l > 0 {
				dxAbove = dx
			} else {
				dInput = dx
			}
		}
	}
	// dInput now targets LastTarget, which is data.

	for t := len(fc.encStates) - 1; t >= 0; t-- {
		var dxAbove *mat.Dense
		for l := layers - 1; l >= 0; l-- {
			dhl := dh[l]
			if dxAbove != nil {
				contrib := dxAbove
				if fc.encMasks[t][l] != nil {
					masked := mat.NewDense(b, hs, nil)
					masked.MulElem(dxAbove, fc.encMasks[t][l])
					contrib = masked
				}
				dhl.Add(dhl, contrib)
			}
			dx, dhPrev, dcPrev := m.Encoder[l].Backward(fc.encStates[t][l], dhl, dc[l])
			dh[l] = dhPrev
			dc[l] = dcPrev
			if l > 0 {
				dxAbove = dx
			}
		}
	}
}

// Predict runs one standardized history window autoregressively and returns
// the standardized horizon forecast. rows is inputWindow feature vectors
// with the standardized target appended.
func (m *Seq2Seq) Predict(rows [][]float64) []float64 {
	prev := m.training
	m.training = false
	defer func() { m.training = prev }()

	seq := dataset.Sequence{Encoder: rows, Target: make([]float64, m.Horizon)}
	batch := NewBatch([]dataset.Sequence{seq})
	batch.Truth = nil
	fc := m.Forward(batch, 0)

	out := make([]float64, m.Horizon)
	for t := 0; t < m.Horizon; t++ {
		out[t] = fc.preds.At(0, t)
	}
	return out
}

// ZeroGrad clears every parameter gradient.
func (m *Seq2Seq) ZeroGrad() {
	for _, cell := range m.Encoder {
		cell.ZeroGrad()
	}
	for _, cell := range m.Decoder {
		cell.ZeroGrad()
	}
	m.gWout.Zero()
	m.gBout[0] = 0
}

// Params returns every trainable tensor with its gradient buffer.
func (m *Seq2Seq) Params() []Param {
	var out []Param
	for l, cell := range m.Encoder {
		out = append(out, cell.params(encoderParamPrefix(l))...)
	}
	for l, cell := range m.Decoder {
		out = append(out, cell.params(decoderParamPrefix(l))...)
	}
	out = append(out,
		Param{Name: "out.weight", Data: m.Wout.RawMatrix().Data, Grad: m.gWout.RawMatrix().Data},
		Param{Name: "out.bias", Data: m.Bout, Grad: m.gBout},
	)
	return out
}

func encoderParamPrefix(layer int) string { return fmt.Sprintf("encoder.l%d", layer) }
func decoderParamPrefix(layer int) string { return fmt.Sprintf("decoder.l%d", layer) }

func (m *Seq2Seq) dropoutMask(rows, cols int) *mat.Dense {
	keep := 1 - m.Dropout
	mask := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for k := 0; k < cols; k++ {
			if m.rng.Float64() < keep {
				mask.Set(r, k, 1/keep)
			}
		}
	}
	return mask
}
