package model

import (
	"math"

	"gorgonia.org/tensor"
)

// Gradient maps each parameter to a same-shaped delta. The convention
// throughout is the gradient of the negative log-likelihood, so solvers
// descend: param ← param − lr·grad.
type Gradient struct {
	VisBias *tensor.Dense
	HidBias *tensor.Dense
	Weights *tensor.Dense
}

// Tensors returns the deltas in parameter order (matching Model.Params).
func (g *Gradient) Tensors() []*tensor.Dense {
	return []*tensor.Dense{g.VisBias, g.HidBias, g.Weights}
}

// Norm computes the root-mean-square of all gradient entries.
func (g *Gradient) Norm() float64 {
	var sum float64
	var n int
	for _, t := range g.Tensors() {
		for _, v := range t.Float64s() {
			sum += v * v
		}
		n += len(t.Float64s())
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}

// Clone deep-copies the gradient.
func (g *Gradient) Clone() *Gradient {
	return &Gradient{
		VisBias: g.VisBias.Clone().(*tensor.Dense),
		HidBias: g.HidBias.Clone().(*tensor.Dense),
		Weights: g.Weights.Clone().(*tensor.Dense),
	}
}

// CheckFinite returns a DivergenceError if any delta is NaN or Inf.
func (g *Gradient) CheckFinite() error {
	for _, t := range g.Tensors() {
		if err := CheckFinite("gradient", t); err != nil {
			return err
		}
	}
	return nil
}
