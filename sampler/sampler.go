// Package sampler implements the Gibbs engine: alternating conditional
// sampling between the two layers of a bipartite energy model, in either
// standard contrastive-divergence mode (chains restart from data every
// minibatch) or persistent mode (fantasy particles carried across
// minibatches).
package sampler

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/gorgonia/boltzmann/model"
)

// Mode selects how chains are seeded across minibatches.
type Mode byte

const (
	// CD restarts every chain from the observed data.
	CD Mode = iota
	// Persistent keeps the chain state across minibatches; the data seed is
	// only used for the very first call after construction or Reset.
	Persistent
)

func (m Mode) String() string {
	switch m {
	case CD:
		return "CD"
	case Persistent:
		return "PCD"
	}
	return "Unknown"
}

// Sampler runs Gibbs chains for one training session. The persistent chain
// state is owned exclusively by the Sampler; it is not safe to share one
// Sampler across concurrent trainers.
type Sampler struct {
	mode  Mode
	rng   *model.RNG
	chain *tensor.Dense // persistent mode only: last visible batch state
}

// New creates a sampler. The RNG handle is the session's source of
// randomness; pass a freshly seeded one for a reproducible run.
func New(mode Mode, rng *model.RNG) *Sampler {
	return &Sampler{mode: mode, rng: rng}
}

// Mode returns the chain seeding mode.
func (s *Sampler) Mode() Mode { return s.mode }

// Reset drops the persistent chain state. It must be called between
// independent training sessions that reuse the sampler.
func (s *Sampler) Reset() { s.chain = nil }

// Run performs `steps` rounds of alternating conditional sampling (hidden
// given visible, then visible given hidden) and returns the final pair of
// batch states. With steps == 0 the seed is returned unchanged alongside the
// hidden conditional mean.
//
// Every produced state is checked for finiteness; a non-finite value fails
// the run with a DivergenceError instead of reaching the gradient.
func (s *Sampler) Run(m *model.Model, seed *tensor.Dense, steps int) (vis, hid *tensor.Dense, err error) {
	if steps < 0 {
		return nil, nil, model.InvalidConfigf("sampler steps must be non-negative, got %d", steps)
	}
	shape := seed.Shape()
	if len(shape) != 2 || shape[1] != m.Visible.N {
		return nil, nil, model.ShapeMismatch("sampler seed", tensor.Shape{shape[0], m.Visible.N}, shape)
	}
	if err = model.CheckFinite("sampler seed", seed); err != nil {
		return nil, nil, err
	}

	start := seed
	if s.mode == Persistent && s.chain != nil {
		if !s.chain.Shape().Eq(shape) {
			return nil, nil, model.ShapeMismatch("persistent chain", s.chain.Shape(), shape)
		}
		start = s.chain
	}

	if steps == 0 {
		if hid, err = m.VisibleToHidden(start); err != nil {
			return nil, nil, err
		}
		return start, hid, nil
	}

	vis = start
	for i := 0; i < steps; i++ {
		hidMean, err := m.VisibleToHidden(vis)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "gibbs step %d", i)
		}
		if hid != nil {
			model.ReturnBatch(hid)
		}
		if hid, err = m.Hidden.Sample(hidMean, s.rng); err != nil {
			return nil, nil, errors.Wrapf(err, "gibbs step %d", i)
		}
		model.ReturnBatch(hidMean)

		visMean, err := m.HiddenToVisible(hid)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "gibbs step %d", i)
		}
		next, err := m.Visible.Sample(visMean, s.rng)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "gibbs step %d", i)
		}
		model.ReturnBatch(visMean)
		if vis != start && vis != s.chain {
			model.ReturnBatch(vis)
		}
		vis = next

		if err = model.CheckFinite("hidden state", hid); err != nil {
			return nil, nil, errors.Wrapf(err, "gibbs step %d", i)
		}
		if err = model.CheckFinite("visible state", vis); err != nil {
			return nil, nil, errors.Wrapf(err, "gibbs step %d", i)
		}
	}

	if s.mode == Persistent {
		s.chain = vis
	}
	return vis, hid, nil
}
