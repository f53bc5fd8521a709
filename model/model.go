package model

import (
	"bytes"
	"encoding/gob"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Model composes a visible layer, a hidden layer and a dense coupling matrix
// into a bipartite energy function. A Model is a pure function of its current
// parameters: it never updates them itself, that is the solver's job.
type Model struct {
	Visible *Layer
	Hidden  *Layer
	Weights *tensor.Dense // shape (Visible.N, Hidden.N)
}

// New constructs a zero-initialized model, validating the configuration.
func New(c Conf) (*Model, error) {
	vis, err := newLayer(c.Visible)
	if err != nil {
		return nil, errors.Wrap(err, "visible layer")
	}
	hid, err := newLayer(c.Hidden)
	if err != nil {
		return nil, errors.Wrap(err, "hidden layer")
	}
	return &Model{
		Visible: vis,
		Hidden:  hid,
		Weights: tensor.New(tensor.Of(Float), tensor.WithShape(vis.N, hid.N)),
	}, nil
}

// InitGaussian fills the weight matrix with N(0, stddev²) draws. Biases stay
// at zero.
func (m *Model) InitGaussian(rng *RNG, stddev float64) {
	data := m.Weights.Float64s()
	for i := range data {
		data[i] = rng.Gaussian(0, stddev)
	}
}

// Conf reconstructs the configuration this model was built from.
func (m *Model) Conf() Conf {
	return Conf{
		Visible: LayerConf{Kind: m.Visible.Kind, Size: m.Visible.N, Variance: m.Visible.Variance},
		Hidden:  LayerConf{Kind: m.Hidden.Kind, Size: m.Hidden.N, Variance: m.Hidden.Variance},
	}
}

// VisibleToHidden computes the hidden conditional mean given a batch of
// visible states.
func (m *Model) VisibleToHidden(vis *tensor.Dense) (*tensor.Dense, error) {
	if err := m.Visible.checkBatch("VisibleToHidden", vis); err != nil {
		return nil, err
	}
	var c calc
	field := c.matmul(vis, m.Weights)
	if c.err != nil {
		return nil, c.err
	}
	addBiasRows(field, m.Hidden.Bias)
	return m.Hidden.Activate(field)
}

// HiddenToVisible computes the visible conditional mean given a batch of
// hidden states.
func (m *Model) HiddenToVisible(hid *tensor.Dense) (*tensor.Dense, error) {
	if err := m.Hidden.checkBatch("HiddenToVisible", hid); err != nil {
		return nil, err
	}
	var c calc
	field := c.matmul(hid, c.transpose(m.Weights))
	if c.err != nil {
		return nil, c.err
	}
	addBiasRows(field, m.Visible.Bias)
	return m.Visible.Activate(field)
}

// Energy computes E(v, h) for each batch row: both layers' bias terms plus
// the coupling term −v·W·h.
func (m *Model) Energy(vis, hid *tensor.Dense) (*tensor.Dense, error) {
	ev, err := m.Visible.EnergyTerm(vis)
	if err != nil {
		return nil, err
	}
	eh, err := m.Hidden.EnergyTerm(hid)
	if err != nil {
		return nil, err
	}
	if vis.Shape()[0] != hid.Shape()[0] {
		return nil, ShapeMismatch("Energy", vis.Shape(), hid.Shape())
	}
	var c calc
	vw := c.matmul(vis, m.Weights)
	if c.err != nil {
		return nil, c.err
	}
	e := ev.Float64s()
	for i, v := range eh.Float64s() {
		e[i] += v
	}
	rowDotsSubtract(ev, vw, hid)
	return ev, nil
}

// FreeEnergy computes F(v) = E_vis(v) − log Σ_h exp(−E_hid(h) + v·W·h) for
// each batch row, with the hidden sum taken analytically. Used by the
// energy-gap monitoring metrics.
func (m *Model) FreeEnergy(vis *tensor.Dense) (*tensor.Dense, error) {
	ev, err := m.Visible.EnergyTerm(vis)
	if err != nil {
		return nil, err
	}
	var c calc
	field := c.matmul(vis, m.Weights)
	if c.err != nil {
		return nil, c.err
	}
	addBiasRows(field, m.Hidden.Bias)

	rows := vis.Shape()[0]
	nh := m.Hidden.N
	out := ev.Float64s()
	fs := field.Float64s()
	switch m.Hidden.Kind {
	case Bernoulli:
		for i := 0; i < rows; i++ {
			row := fs[i*nh : (i+1)*nh]
			for _, φ := range row {
				out[i] -= softplus(φ)
			}
		}
	case Gaussian:
		// Gaussian integral over each hidden unit, dropping the constant
		bias := m.Hidden.Bias.Float64s()
		σ2 := m.Hidden.Variance
		for i := 0; i < rows; i++ {
			row := fs[i*nh : (i+1)*nh]
			for j, φ := range row {
				coupling := φ - bias[j] // the weighted signal without the bias
				out[i] -= bias[j]*coupling + 0.5*σ2*coupling*coupling
			}
		}
	default:
		return nil, InvalidConfigf("unknown layer kind %d", m.Hidden.Kind)
	}
	return ev, nil
}

// Statistics are the sufficient statistics of one phase of the contrastive
// gradient, summed over the batch.
type Statistics struct {
	VisSum *tensor.Dense // shape (Visible.N)
	HidSum *tensor.Dense // shape (Hidden.N)
	Outer  *tensor.Dense // shape (Visible.N, Hidden.N)
}

// PositivePhase computes the data-side statistics from an observed batch.
// The hidden layer is not sampled: its expected activation is used, the
// standard mean-field contrastive-divergence choice.
func (m *Model) PositivePhase(vis *tensor.Dense) (*Statistics, error) {
	hidMean, err := m.VisibleToHidden(vis)
	if err != nil {
		return nil, err
	}
	return m.SufficientStats(vis, hidMean)
}

// SufficientStats computes the summed statistics of a (visible, hidden)
// state pair.
func (m *Model) SufficientStats(vis, hid *tensor.Dense) (*Statistics, error) {
	if err := m.Visible.checkBatch("SufficientStats", vis); err != nil {
		return nil, err
	}
	if err := m.Hidden.checkBatch("SufficientStats", hid); err != nil {
		return nil, err
	}
	var c calc
	outer := c.matmul(c.transpose(vis), hid)
	visSum := c.sum(vis, 0)
	hidSum := c.sum(hid, 0)
	if c.err != nil {
		return nil, c.err
	}
	return &Statistics{VisSum: visSum, HidSum: hidSum, Outer: outer}, nil
}

// Param is a named model parameter, paired positionally with Gradient fields.
type Param struct {
	Name  string
	Value *tensor.Dense
}

// Params returns the parameters in gradient order: visible bias, hidden
// bias, weights.
func (m *Model) Params() []Param {
	return []Param{
		{Name: "visible.bias", Value: m.Visible.Bias},
		{Name: "hidden.bias", Value: m.Hidden.Bias},
		{Name: "weights", Value: m.Weights},
	}
}

type modelGob struct {
	VisKind, HidKind Kind
	VisN, HidN       int
	VisVar, HidVar   float64
	VisBias, HidBias []float64
	Weights          []float64
}

// GobEncode serializes layer kinds, sizes, variances, biases and weights.
func (m *Model) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	err := enc.Encode(modelGob{
		VisKind: m.Visible.Kind, HidKind: m.Hidden.Kind,
		VisN: m.Visible.N, HidN: m.Hidden.N,
		VisVar: m.Visible.Variance, HidVar: m.Hidden.Variance,
		VisBias: m.Visible.Bias.Float64s(),
		HidBias: m.Hidden.Bias.Float64s(),
		Weights: m.Weights.Float64s(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "encoding model")
	}
	return buf.Bytes(), nil
}

// GobDecode reconstructs a model, revalidating the shape invariants.
func (m *Model) GobDecode(p []byte) error {
	var mg modelGob
	if err := gob.NewDecoder(bytes.NewBuffer(p)).Decode(&mg); err != nil {
		return errors.Wrap(err, "decoding model")
	}
	m2, err := New(Conf{
		Visible: LayerConf{Kind: mg.VisKind, Size: mg.VisN, Variance: mg.VisVar},
		Hidden:  LayerConf{Kind: mg.HidKind, Size: mg.HidN, Variance: mg.HidVar},
	})
	if err != nil {
		return err
	}
	if len(mg.VisBias) != mg.VisN || len(mg.HidBias) != mg.HidN || len(mg.Weights) != mg.VisN*mg.HidN {
		return ShapeMismatch("GobDecode", tensor.Shape{mg.VisN, mg.HidN}, tensor.Shape{len(mg.VisBias), len(mg.HidBias)})
	}
	copy(m2.Visible.Bias.Float64s(), mg.VisBias)
	copy(m2.Hidden.Bias.Float64s(), mg.HidBias)
	copy(m2.Weights.Float64s(), mg.Weights)
	*m = *m2
	return nil
}
