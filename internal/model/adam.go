package model

import "math"

// Param is one trainable tensor exposed as its flat backing slice together
// with the matching gradient buffer.
type Param struct {
	Name string
	Data []float64
	Grad []float64
}

// Adam implements the Adam optimizer with bias correction.
type Adam struct {
	LR    float64
	Beta1 float64
	Beta2 float64
	Eps   float64

	t int
	m map[string][]float64
	v map[string][]float64
}

func NewAdam(lr float64) *Adam {
	return &Adam{
		LR:    lr,
		Beta1: 0.9,
		Beta2: 0.999,
		Eps:   1e-8,
		m:     make(map[string][]float64),
		v:     make(map[string][]float64),
	}
}

// Step applies one update to every parameter from its accumulated gradient.
func (a *Adam) Step(params []Param) {
	a.t++
	bc1 := 1 - math.Pow(a.Beta1, float64(a.t))
	bc2 := 1 - math.Pow(a.Beta2, float64(a.t))

	for _, p := range params {
		m, ok := a.m[p.Name]
		if !ok {
			m = make([]float64, len(p.Data))
			a.m[p.Name] = m
			a.v[p.Name] = make([]float64, len(p.Data))
		}
		v := a.v[p.Name]
		for i, g := range p.Grad {
			m[i] = a.Beta1*m[i] + (1-a.Beta1)*g
			v[i] = a.Beta2*v[i] + (1-a.Beta2)*g*g
			mHat := m[i] / bc1
			vHat := v[i] / bc2
			p.Data[i] -= a.LR * mHat / (math.Sqrt(vHat) + a.Eps)
		}
	}
}
