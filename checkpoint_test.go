package boltzmann

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"gorgonia.org/tensor"

	"github.com/gorgonia/boltzmann/model"
	"github.com/gorgonia/boltzmann/solver"
)

func TestCheckpointRoundTrip(t *testing.T) {
	m, err := model.New(model.DefaultConf(4, 3))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	s := solver.NewVanillaSolver(solver.WithLearnRate(0.1), solver.WithMomentum(0.9))
	conf := Config{
		Epochs:       2,
		BatchSize:    2,
		SamplerSteps: 1,
		Seed:         42,
		Solver:       s,
	}
	if _, err := Fit(context.Background(), m, syntheticData(t), conf); err != nil {
		t.Fatalf("%+v", err)
	}

	var buf bytes.Buffer
	if err := SaveCheckpoint(&buf, m, s); err != nil {
		t.Fatalf("%+v", err)
	}

	m2, err := model.New(model.DefaultConf(4, 3))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	s2 := solver.NewVanillaSolver(solver.WithLearnRate(0.1), solver.WithMomentum(0.9))
	if err := LoadCheckpoint(&buf, m2, s2); err != nil {
		t.Fatalf("%+v", err)
	}

	if diff := cmp.Diff(m.Weights.Float64s(), m2.Weights.Float64s()); diff != "" {
		t.Errorf("weights mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(m.Visible.Bias.Float64s(), m2.Visible.Bias.Float64s()); diff != "" {
		t.Errorf("visible bias mismatch (-want +got):\n%s", diff)
	}

	// the restored solver must continue the exact momentum trajectory
	grad := &model.Gradient{
		VisBias: tensor.New(tensor.Of(model.Float), tensor.WithShape(4)),
		HidBias: tensor.New(tensor.Of(model.Float), tensor.WithShape(3)),
		Weights: tensor.New(tensor.Of(model.Float), tensor.WithShape(4, 3)),
	}
	if err := s.Step(valueGrads(m, grad)); err != nil {
		t.Fatalf("%+v", err)
	}
	if err := s2.Step(valueGrads(m2, grad)); err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(t, m.Weights.Float64s(), m2.Weights.Float64s())
}
