// Package model implements the LSTM encoder-decoder used for hourly load
// forecasting, trained with backpropagation through time and serialized as
// a versioned JSON artifact.
package model

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// LSTMCell is a single LSTM layer with PyTorch-compatible weight layout.
// Gate blocks are ordered i, f, g, o inside each 4H-sized dimension.
type LSTMCell struct {
	InputSize  int
	HiddenSize int

	Wih *mat.Dense // (4H, in)
	Whh *mat.Dense // (4H, H)
	Bih []float64  // 4H
	Bhh []float64  // 4H

	gWih *mat.Dense
	gWhh *mat.Dense
	gBih []float64
	gBhh []float64
}

// NewLSTMCell allocates a cell with weights drawn uniformly from
// [-1/sqrt(hidden), 1/sqrt(hidden)].
func NewLSTMCell(inputSize, hiddenSize int, rng *rand.Rand) *LSTMCell {
	bound := 1.0 / math.Sqrt(float64(hiddenSize))
	uniform := func(n int) []float64 {
		out := make([]float64, n)
		for i := range out {
			out[i] = (rng.Float64()*2 - 1) * bound
		}
		return out
	}
	return &LSTMCell{
		InputSize:  inputSize,
		HiddenSize: hiddenSize,
		Wih:        mat.NewDense(4*hiddenSize, inputSize, uniform(4*hiddenSize*inputSize)),
		Whh:        mat.NewDense(4*hiddenSize, hiddenSize, uniform(4*hiddenSize*hiddenSize)),
		Bih:        uniform(4 * hiddenSize),
		Bhh:        uniform(4 * hiddenSize),
		gWih:       mat.NewDense(4*hiddenSize, inputSize, nil),
		gWhh:       mat.NewDense(4*hiddenSize, hiddenSize, nil),
		gBih:       make([]float64, 4*hiddenSize),
		gBhh:       make([]float64, 4*hiddenSize),
	}
}

// cellState caches one forward step for the backward pass.
type cellState struct {
	x     *mat.Dense // (B, in)
	hPrev *mat.Dense // (B, H)
	cPrev *mat.Dense // (B, H)
	i     *mat.Dense
	f     *mat.Dense
	g     *mat.Dense
	o     *mat.Dense
	c     *mat.Dense
	tanhC *mat.Dense
	h     *mat.Dense
}

func sigmoid(v float64) float64 { return 1.0 / (1.0 + math.Exp(-v)) }

// Forward runs one time step for a batch. It returns the new hidden and
// cell state plus the cache needed by Backward.
func (l *LSTMCell) Forward(x, hPrev, cPrev *mat.Dense) *cellState {
	b, _ := x.Dims()
	h := l.HiddenSize

	gates := mat.NewDense(b, 4*h, nil)
	gates.Mul(x, l.Wih.T())
	var rec mat.Dense
	rec.Mul(hPrev, l.Whh.T())
	gates.Add(gates, &rec)
	for r := 0; r < b; r++ {
		row := gates.RawRowView(r)
		for k := 0; k < 4*h; k++ {
			row[k] += l.Bih[k] + l.Bhh[k]
		}
	}

	st := &cellState{
		x: x, hPrev: hPrev, cPrev: cPrev,
		i: mat.NewDense(b, h, nil), f: mat.NewDense(b, h, nil),
		g: mat.NewDense(b, h, nil), o: mat.NewDense(b, h, nil),
		c: mat.NewDense(b, h, nil), tanhC: mat.NewDense(b, h, nil),
		h: mat.NewDense(b, h, nil),
	}
	for r := 0; r < b; r++ {
		row := gates.RawRowView(r)
		cp := cPrev.RawRowView(r)
		for k := 0; k < h; k++ {
			iv := sigmoid(row[k])
			fv := sigmoid(row[h+k])
			gv := math.Tanh(row[2*h+k])
			ov := sigmoid(row[3*h+k])
			cv := fv*cp[k] + iv*gv
			tc := math.Tanh(cv)
			st.i.Set(r, k, iv)
			st.f.Set(r, k, fv)
			st.g.Set(r, k, gv)
			st.o.Set(r, k, ov)
			st.c.Set(r, k, cv)
			st.tanhC.Set(r, k, tc)
			st.h.Set(r, k, ov*tc)
		}
	}
	return st
}

// Backward accumulates parameter gradients for one cached step and returns
// the gradients flowing into the step input, previous hidden state and
// previous cell state.
func (l *LSTMCell) Backward(st *cellState, dh, dc *mat.Dense) (dx, dhPrev, dcPrev *mat.Dense) {
	b, _ := dh.Dims()
	h := l.HiddenSize

	dGates := mat.NewDense(b, 4*h, nil)
	dcPrev = mat.NewDense(b, h, nil)
	for r := 0; r < b; r++ {
		for k := 0; k < h; k++ {
			iv := st.i.At(r, k)
			fv := st.f.At(r, k)
			gv := st.g.At(r, k)
			ov := st.o.At(r, k)
			tc := st.tanhC.At(r, k)
			dhv := dh.At(r, k)

			dcTotal := dc.At(r, k) + dhv*ov*(1-tc*tc)
			dGates.Set(r, k, dcTotal*gv*iv*(1-iv))
			dGates.Set(r, h+k, dcTotal*st.cPrev.At(r, k)*fv*(1-fv))
			dGates.Set(r, 2*h+k, dcTotal*iv*(1-gv*gv))
			dGates.Set(r, 3*h+k, dhv*tc*ov*(1-ov))
			dcPrev.Set(r, k, dcTotal*fv)
		}
	}

	var dW mat.Dense
	dW.Mul(dGates.T(), st.x)
	l.gWih.Add(l.gWih, &dW)
	var dR mat.Dense
	dR.Mul(dGates.T(), st.hPrev)
	l.gWhh.Add(l.gWhh, &dR)
	for r := 0; r < b; r++ {
		row := dGates.RawRowView(r)
		for k := 0; k < 4*h; k++ {
			l.gBih[k] += row[k]
			l.gBhh[k] += row[k]
		}
	}

	dx = mat.NewDense(b, l.InputSize, nil)
	dx.Mul(dGates, l.Wih)
	dhPrev = mat.NewDense(b, h, nil)
	dhPrev.Mul(dGates, l.Whh)
	return dx, dhPrev, dcPrev
}

// ZeroGrad clears the accumulated gradients.
func (l *LSTMCell) ZeroGrad() {
	l.gWih.Zero()
	l.gWhh.Zero()
	for k := range l.gBih {
		l.gBih[k] = 0
		l.gBhh[k] = 0
	}
}

// params exposes the cell tensors to the optimizer and serializer.
func (l *LSTMCell) params(prefix string) []Param {
	return []Param{
		{Name: prefix + ".weight_ih", Data: l.Wih.RawMatrix().Data, Grad: l.gWih.RawMatrix().Data},
		{Name: prefix + ".weight_hh", Data: l.Whh.RawMatrix().Data, Grad: l.gWhh.RawMatrix().Data},
		{Name: prefix + ".bias_ih", Data: l.Bih, Grad: l.gBih},
		{Name: prefix + ".bias_hh", Data: l.Bhh, Grad: l.gBhh},
	}
}
