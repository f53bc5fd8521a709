package model

import (
	"math"

	"gorgonia.org/tensor"
)

// Float is the data type of every batch state, bias and weight matrix.
var Float = tensor.Float64

// Kind denotes the conditional distribution of a layer's units. It is a
// closed set; every switch over Kind is exhaustive.
type Kind byte

const (
	// Bernoulli units take states in {0, 1}.
	Bernoulli Kind = iota
	// Gaussian units take real states with a fixed, strictly positive variance.
	Gaussian

	maxKind // sentinel
)

func (k Kind) String() string {
	switch k {
	case Bernoulli:
		return "Bernoulli"
	case Gaussian:
		return "Gaussian"
	}
	return "Unknown"
}

// maxExp clamps the logistic argument. exp(30) is ~1e13, well within float64
// range, while logistic(±30) is indistinguishable from 1/0 at working precision.
const maxExp = 30.0

func sigmoid(x float64) float64 {
	if x > maxExp {
		x = maxExp
	}
	if x < -maxExp {
		x = -maxExp
	}
	return 1.0 / (1.0 + math.Exp(-x))
}

// softplus computes log(1+exp(x)) without overflowing for large x.
func softplus(x float64) float64 {
	if x > maxExp {
		return x
	}
	return math.Log1p(math.Exp(x))
}

// LayerConf describes one layer of a model.
type LayerConf struct {
	Kind     Kind
	Size     int
	Variance float64 // Gaussian layers only; must be > 0
}

// Layer holds the per-unit distribution and the bias vector of one side of
// the bipartite model. Bias is mutated only by solver updates; a Layer is
// never resized after construction.
type Layer struct {
	Kind     Kind
	N        int
	Bias     *tensor.Dense // shape (N)
	Variance float64
}

func newLayer(c LayerConf) (*Layer, error) {
	if c.Kind >= maxKind {
		return nil, InvalidConfigf("unknown layer kind %d", c.Kind)
	}
	if c.Size <= 0 {
		return nil, InvalidConfigf("%v layer size must be positive, got %d", c.Kind, c.Size)
	}
	variance := c.Variance
	switch c.Kind {
	case Bernoulli:
		variance = 0
	case Gaussian:
		if variance <= 0 {
			return nil, InvalidConfigf("Gaussian layer variance must be strictly positive, got %v", variance)
		}
	}
	return &Layer{
		Kind:     c.Kind,
		N:        c.Size,
		Bias:     tensor.New(tensor.Of(Float), tensor.WithShape(c.Size)),
		Variance: variance,
	}, nil
}

// Activate maps the net input field (bias + weighted signal, one row per
// batch element) to the conditional mean of each unit.
func (l *Layer) Activate(field *tensor.Dense) (*tensor.Dense, error) {
	if err := l.checkBatch("Activate", field); err != nil {
		return nil, err
	}
	switch l.Kind {
	case Bernoulli:
		out := field.Clone().(*tensor.Dense)
		data := out.Float64s()
		for i, v := range data {
			data[i] = sigmoid(v)
		}
		return out, nil
	case Gaussian:
		// the conditional mean of a Gaussian unit is its net input
		return field.Clone().(*tensor.Dense), nil
	}
	return nil, InvalidConfigf("unknown layer kind %d", l.Kind)
}

// Sample draws one realization per unit per batch row from the conditional
// distribution with the given mean.
func (l *Layer) Sample(mean *tensor.Dense, rng *RNG) (*tensor.Dense, error) {
	if err := l.checkBatch("Sample", mean); err != nil {
		return nil, err
	}
	rows := mean.Shape()[0]
	out := BorrowBatch(rows, l.N)
	src := mean.Float64s()
	dst := out.Float64s()
	switch l.Kind {
	case Bernoulli:
		for i, p := range src {
			if rng.Float64() < p {
				dst[i] = 1
			} else {
				dst[i] = 0
			}
		}
	case Gaussian:
		stddev := math.Sqrt(l.Variance)
		for i, m := range src {
			dst[i] = rng.Gaussian(m, stddev)
		}
	default:
		return nil, InvalidConfigf("unknown layer kind %d", l.Kind)
	}
	return out, nil
}

// EnergyTerm computes the layer's bias contribution to the total energy,
// one scalar per batch row.
func (l *Layer) EnergyTerm(state *tensor.Dense) (*tensor.Dense, error) {
	if err := l.checkBatch("EnergyTerm", state); err != nil {
		return nil, err
	}
	rows := state.Shape()[0]
	out := tensor.New(tensor.Of(Float), tensor.WithShape(rows))
	src := state.Float64s()
	dst := out.Float64s()
	bias := l.Bias.Float64s()
	switch l.Kind {
	case Bernoulli:
		for i := 0; i < rows; i++ {
			var e float64
			row := src[i*l.N : (i+1)*l.N]
			for j, s := range row {
				e -= bias[j] * s
			}
			dst[i] = e
		}
	case Gaussian:
		half := 0.5 / l.Variance
		for i := 0; i < rows; i++ {
			var e float64
			row := src[i*l.N : (i+1)*l.N]
			for j, s := range row {
				d := s - bias[j]
				e += half * d * d
			}
			dst[i] = e
		}
	default:
		return nil, InvalidConfigf("unknown layer kind %d", l.Kind)
	}
	return out, nil
}

func (l *Layer) checkBatch(op string, t *tensor.Dense) error {
	s := t.Shape()
	if len(s) != 2 {
		return ShapeMismatch(op, tensor.Shape{0, l.N}, s)
	}
	if s[1] != l.N {
		return ShapeMismatch(op, tensor.Shape{s[0], l.N}, s)
	}
	return nil
}
