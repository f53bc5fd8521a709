package boltzmann

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/gorgonia/boltzmann/model"
	"github.com/gorgonia/boltzmann/sampler"
)

// Estimator computes the contrastive-divergence gradient: the difference
// between data-clamped statistics and sampler-drawn statistics, scaled by
// the batch size. The sign convention is the negative log-likelihood
// gradient, so solvers descend.
type Estimator struct {
	sampler *sampler.Sampler
	steps   int
}

// NewEstimator creates a CD-k estimator around a Gibbs sampler.
func NewEstimator(s *sampler.Sampler, steps int) *Estimator {
	return &Estimator{sampler: s, steps: steps}
}

// Estimate computes the gradient for one minibatch. A non-finite value in
// the data fails immediately with a DivergenceError; sampler failures
// propagate unchanged. A default gradient is never substituted.
func (e *Estimator) Estimate(m *model.Model, batch *tensor.Dense) (*model.Gradient, error) {
	if err := model.CheckFinite("data batch", batch); err != nil {
		return nil, err
	}
	pos, err := m.PositivePhase(batch)
	if err != nil {
		return nil, errors.Wrap(err, "positive phase")
	}
	vis, hid, err := e.sampler.Run(m, batch, e.steps)
	if err != nil {
		return nil, err
	}
	neg, err := m.SufficientStats(vis, hid)
	if err != nil {
		return nil, errors.Wrap(err, "negative phase")
	}

	scale := 1.0 / float64(batch.Shape()[0])
	return &model.Gradient{
		VisBias: scaledDiff(neg.VisSum, pos.VisSum, scale),
		HidBias: scaledDiff(neg.HidSum, pos.HidSum, scale),
		Weights: scaledDiff(neg.Outer, pos.Outer, scale),
	}, nil
}

// scaledDiff computes (a − b)·scale entrywise.
func scaledDiff(a, b *tensor.Dense, scale float64) *tensor.Dense {
	out := a.Clone().(*tensor.Dense)
	data := out.Float64s()
	sub := b.Float64s()
	for i := range data {
		data[i] = (data[i] - sub[i]) * scale
	}
	return out
}
