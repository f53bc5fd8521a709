package model

import (
	"bytes"
	"encoding/gob"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"gorgonia.org/tensor"
)

// tiny builds a 2×2 Bernoulli model with fixed parameters.
func tiny(t *testing.T) *Model {
	t.Helper()
	m, err := New(DefaultConf(2, 2))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	copy(m.Weights.Float64s(), []float64{1, 2, 3, 4})
	copy(m.Visible.Bias.Float64s(), []float64{0.5, -0.5})
	copy(m.Hidden.Bias.Float64s(), []float64{0.25, 0.25})
	return m
}

func TestNewShapes(t *testing.T) {
	m, err := New(DefaultConf(4, 3))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert := assert.New(t)
	assert.True(m.Weights.Shape().Eq(tensor.Shape{4, 3}))
	assert.True(m.Visible.Bias.Shape().Eq(tensor.Shape{4}))
	assert.True(m.Hidden.Bias.Shape().Eq(tensor.Shape{3}))
}

func TestNewRejectsBadConf(t *testing.T) {
	_, err := New(Conf{
		Visible: LayerConf{Kind: Bernoulli, Size: 4},
		Hidden:  LayerConf{Kind: Gaussian, Size: 3, Variance: 0},
	})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestEnergy(t *testing.T) {
	m := tiny(t)
	vis := tensor.New(tensor.WithShape(1, 2), tensor.WithBacking([]float64{1, 0}))
	hid := tensor.New(tensor.WithShape(1, 2), tensor.WithBacking([]float64{1, 1}))

	e, err := m.Energy(vis, hid)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	// −(0.5·1 + (−0.5)·0) − (0.25 + 0.25) − [1,2]·[1,1]
	assert.InDelta(t, -4.0, e.Float64s()[0], 1e-12)

	// a pure function of its inputs
	e2, err := m.Energy(vis, hid)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(t, e.Float64s(), e2.Float64s())
}

func TestEnergyBatchShapeMismatch(t *testing.T) {
	m := tiny(t)
	vis := tensor.New(tensor.Of(Float), tensor.WithShape(2, 2))
	hid := tensor.New(tensor.Of(Float), tensor.WithShape(3, 2))
	_, err := m.Energy(vis, hid)
	var se ShapeError
	if !errors.As(err, &se) {
		t.Fatalf("expected ShapeError, got %v", err)
	}
}

func TestVisibleToHiddenZeroModel(t *testing.T) {
	m, err := New(DefaultConf(4, 3))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	vis := tensor.New(tensor.WithShape(2, 4), tensor.WithBacking([]float64{
		1, 0, 1, 0,
		0, 1, 1, 1,
	}))
	hidMean, err := m.VisibleToHidden(vis)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	for i, v := range hidMean.Float64s() {
		assert.InDelta(t, 0.5, v, 1e-12, "zero weights and biases must give mean 0.5 (index %d)", i)
	}
}

func TestPositivePhaseStatistics(t *testing.T) {
	m, err := New(DefaultConf(2, 2))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	vis := tensor.New(tensor.WithShape(2, 2), tensor.WithBacking([]float64{
		1, 0,
		1, 1,
	}))
	stats, err := m.PositivePhase(vis)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert := assert.New(t)
	assert.Equal([]float64{2, 1}, stats.VisSum.Float64s())
	assert.Equal([]float64{1, 1}, stats.HidSum.Float64s())
	// outer = visᵀ · hidMean with hidMean all 0.5
	assert.Equal([]float64{1, 1, 0.5, 0.5}, stats.Outer.Float64s())
}

// The data-side statistics are the (negated) gradient of the free energy.
// Checked against a central finite difference on a tiny model.
func TestPositivePhaseMatchesFreeEnergyGradient(t *testing.T) {
	m := tiny(t)
	vis := tensor.New(tensor.WithShape(3, 2), tensor.WithBacking([]float64{
		1, 0,
		0, 1,
		1, 1,
	}))
	batch := float64(vis.Shape()[0])

	meanF := func() float64 {
		f, err := m.FreeEnergy(vis)
		if err != nil {
			t.Fatalf("%+v", err)
		}
		var sum float64
		for _, v := range f.Float64s() {
			sum += v
		}
		return sum / batch
	}

	stats, err := m.PositivePhase(vis)
	if err != nil {
		t.Fatalf("%+v", err)
	}

	const h = 1e-5
	check := func(param *tensor.Dense, idx int, analytic float64) {
		orig := param.Float64s()[idx]
		param.Float64s()[idx] = orig + h
		fPlus := meanF()
		param.Float64s()[idx] = orig - h
		fMinus := meanF()
		param.Float64s()[idx] = orig
		numeric := (fPlus - fMinus) / (2 * h)
		assert.InDelta(t, numeric, analytic, 1e-6)
	}

	for i := range m.Weights.Float64s() {
		check(m.Weights, i, -stats.Outer.Float64s()[i]/batch)
	}
	for i := range m.Hidden.Bias.Float64s() {
		check(m.Hidden.Bias, i, -stats.HidSum.Float64s()[i]/batch)
	}
	for i := range m.Visible.Bias.Float64s() {
		check(m.Visible.Bias, i, -stats.VisSum.Float64s()[i]/batch)
	}
}

func TestGobRoundTrip(t *testing.T) {
	m, err := New(GaussianVisibleConf(3, 2, 1.5))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	m.InitGaussian(NewRNG(7), 0.1)
	copy(m.Visible.Bias.Float64s(), []float64{0.1, -0.2, 0.3})

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(m); err != nil {
		t.Fatalf("encoding failure %v", err)
	}
	var m2 Model
	if err := gob.NewDecoder(&buf).Decode(&m2); err != nil {
		t.Fatalf("decoding failure %v", err)
	}

	if diff := cmp.Diff(m.Conf(), m2.Conf()); diff != "" {
		t.Errorf("conf mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(m.Weights.Float64s(), m2.Weights.Float64s()); diff != "" {
		t.Errorf("weights mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(m.Visible.Bias.Float64s(), m2.Visible.Bias.Float64s()); diff != "" {
		t.Errorf("visible bias mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(m.Hidden.Bias.Float64s(), m2.Hidden.Bias.Float64s()); diff != "" {
		t.Errorf("hidden bias mismatch (-want +got):\n%s", diff)
	}
}

func TestFreeEnergyGaussianHidden(t *testing.T) {
	m, err := New(GaussianHiddenConf(2, 2, 1))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	vis := tensor.New(tensor.WithShape(1, 2), tensor.WithBacking([]float64{1, 1}))
	f, err := m.FreeEnergy(vis)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	// zero parameters: no visible term, no coupling
	assert.InDelta(t, 0, f.Float64s()[0], 1e-12)
}
