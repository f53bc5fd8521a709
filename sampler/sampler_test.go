package sampler

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"gorgonia.org/tensor"

	"github.com/gorgonia/boltzmann/model"
)

func testModel(t *testing.T) *model.Model {
	t.Helper()
	m, err := model.New(model.DefaultConf(4, 3))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	m.InitGaussian(model.NewRNG(3), 0.5)
	return m
}

func testSeed() *tensor.Dense {
	return tensor.New(tensor.WithShape(2, 4), tensor.WithBacking([]float64{
		1, 0, 1, 0,
		0, 1, 0, 1,
	}))
}

func TestZeroStepIdentity(t *testing.T) {
	m := testModel(t)
	seed := testSeed()
	before := append([]float64(nil), seed.Float64s()...)

	s := New(CD, model.NewRNG(42))
	vis, hid, err := s.Run(m, seed, 0)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(t, before, vis.Float64s(), "zero-step sampling must be a no-op on the visible state")
	assert.True(t, hid.Shape().Eq(tensor.Shape{2, 3}))
}

func TestRunShapes(t *testing.T) {
	m := testModel(t)
	s := New(CD, model.NewRNG(42))
	vis, hid, err := s.Run(m, testSeed(), 3)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.True(t, vis.Shape().Eq(tensor.Shape{2, 4}))
	assert.True(t, hid.Shape().Eq(tensor.Shape{2, 3}))
	for i, v := range vis.Float64s() {
		if v != 0 && v != 1 {
			t.Errorf("visible state %d = %v, want 0 or 1", i, v)
		}
	}
}

func TestRunReproducible(t *testing.T) {
	m := testModel(t)

	s1 := New(CD, model.NewRNG(1234))
	vis1, hid1, err := s1.Run(m, testSeed(), 5)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	s2 := New(CD, model.NewRNG(1234))
	vis2, hid2, err := s2.Run(m, testSeed(), 5)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(t, vis1.Float64s(), vis2.Float64s(), "same seed must draw the same chain")
	assert.Equal(t, hid1.Float64s(), hid2.Float64s())
}

func TestPersistentChainSurvivesMinibatches(t *testing.T) {
	m := testModel(t)
	s := New(Persistent, model.NewRNG(42))

	if _, _, err := s.Run(m, testSeed(), 2); err != nil {
		t.Fatalf("%+v", err)
	}
	if s.chain == nil {
		t.Fatal("persistent sampler should retain its chain state")
	}

	// second minibatch: the data seed must be ignored in favor of the chain
	other := tensor.New(tensor.Of(model.Float), tensor.WithShape(2, 4))
	if _, _, err := s.Run(m, other, 2); err != nil {
		t.Fatalf("%+v", err)
	}
	assert.True(t, s.chain.Shape().Eq(tensor.Shape{2, 4}), "chain shape must persist across minibatches")

	s2 := New(Persistent, model.NewRNG(42))
	if _, _, err := s2.Run(m, testSeed(), 2); err != nil {
		t.Fatalf("%+v", err)
	}
	vis2, _, err := s2.Run(m, other, 2)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(t, s.chain.Float64s(), vis2.Float64s(), "chain continuation must be deterministic")
}

func TestPersistentChainBatchSizeChange(t *testing.T) {
	m := testModel(t)
	s := New(Persistent, model.NewRNG(42))
	if _, _, err := s.Run(m, testSeed(), 1); err != nil {
		t.Fatalf("%+v", err)
	}
	smaller := tensor.New(tensor.Of(model.Float), tensor.WithShape(1, 4))
	_, _, err := s.Run(m, smaller, 1)
	var se model.ShapeError
	if !errors.As(err, &se) {
		t.Fatalf("expected ShapeError on batch size change, got %v", err)
	}

	s.Reset()
	if _, _, err := s.Run(m, smaller, 1); err != nil {
		t.Fatalf("after Reset the new batch size should be accepted: %+v", err)
	}
}

func TestSeedShapeMismatch(t *testing.T) {
	m := testModel(t)
	s := New(CD, model.NewRNG(42))
	wrong := tensor.New(tensor.Of(model.Float), tensor.WithShape(2, 5))
	_, _, err := s.Run(m, wrong, 1)
	var se model.ShapeError
	if !errors.As(err, &se) {
		t.Fatalf("expected ShapeError, got %v", err)
	}
}

func TestNonFiniteSeedDiverges(t *testing.T) {
	m := testModel(t)
	s := New(CD, model.NewRNG(42))
	seed := testSeed()
	seed.Float64s()[3] = math.NaN()
	_, _, err := s.Run(m, seed, 1)
	var de model.DivergenceError
	if !errors.As(err, &de) {
		t.Fatalf("expected DivergenceError, got %v", err)
	}
}

func TestNegativeStepsRejected(t *testing.T) {
	m := testModel(t)
	s := New(CD, model.NewRNG(42))
	_, _, err := s.Run(m, testSeed(), -1)
	if !errors.Is(err, model.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
