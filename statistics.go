package boltzmann

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gorgonia.org/tensor"

	"github.com/gorgonia/boltzmann/model"
)

// ReconstructionError accumulates the root-mean-squared error between
// observations and their mean-field reconstructions over an epoch.
type ReconstructionError struct {
	sumSquares float64
	norm       int
}

// Reset clears the accumulated state.
func (r *ReconstructionError) Reset() {
	r.sumSquares = 0
	r.norm = 0
}

// Update folds one minibatch and its reconstruction into the estimate.
func (r *ReconstructionError) Update(minibatch, reconstruction *tensor.Dense) error {
	if !minibatch.Shape().Eq(reconstruction.Shape()) {
		return model.ShapeMismatch("ReconstructionError", minibatch.Shape(), reconstruction.Shape())
	}
	diff := make([]float64, len(minibatch.Float64s()))
	copy(diff, minibatch.Float64s())
	floats.Sub(diff, reconstruction.Float64s())
	r.sumSquares += floats.Dot(diff, diff)
	r.norm += len(diff)
	return nil
}

// Value returns the RMSE accumulated so far, or NaN before any update.
func (r *ReconstructionError) Value() float64 {
	if r.norm == 0 {
		return math.NaN()
	}
	return math.Sqrt(r.sumSquares / float64(r.norm))
}

// EnergyGap accumulates the difference between the mean free energy of data
// and of purely random states. Well-fit models assign data much lower free
// energy than noise.
type EnergyGap struct {
	gap  float64
	norm int
}

// Reset clears the accumulated state.
func (e *EnergyGap) Reset() {
	e.gap = 0
	e.norm = 0
}

// Update folds one minibatch and a same-sized batch of random states.
func (e *EnergyGap) Update(m *model.Model, minibatch, random *tensor.Dense) error {
	dataF, err := m.FreeEnergy(minibatch)
	if err != nil {
		return err
	}
	randF, err := m.FreeEnergy(random)
	if err != nil {
		return err
	}
	e.gap += stat.Mean(dataF.Float64s(), nil) - stat.Mean(randF.Float64s(), nil)
	e.norm++
	return nil
}

// Value returns the mean gap accumulated so far, or NaN before any update.
func (e *EnergyGap) Value() float64 {
	if e.norm == 0 {
		return math.NaN()
	}
	return e.gap / float64(e.norm)
}

// EnergyZscore is the energy gap scaled by the spread of the random-state
// free energies.
type EnergyZscore struct {
	dataMean         float64
	randomMean       float64
	randomMeanSquare float64
	norm             int
}

// Reset clears the accumulated state.
func (e *EnergyZscore) Reset() {
	e.dataMean = 0
	e.randomMean = 0
	e.randomMeanSquare = 0
	e.norm = 0
}

// Update folds one minibatch and a same-sized batch of random states.
func (e *EnergyZscore) Update(m *model.Model, minibatch, random *tensor.Dense) error {
	dataF, err := m.FreeEnergy(minibatch)
	if err != nil {
		return err
	}
	randF, err := m.FreeEnergy(random)
	if err != nil {
		return err
	}
	rf := randF.Float64s()
	e.dataMean += stat.Mean(dataF.Float64s(), nil)
	e.randomMean += stat.Mean(rf, nil)
	e.randomMeanSquare += floats.Dot(rf, rf) / float64(len(rf))
	e.norm++
	return nil
}

// Value returns the z-score accumulated so far, or NaN before any update.
func (e *EnergyZscore) Value() float64 {
	if e.norm == 0 || e.randomMeanSquare == 0 {
		return math.NaN()
	}
	return (e.dataMean - e.randomMean) / math.Sqrt(e.randomMeanSquare)
}

// EnergyDistance accumulates the Székely energy distance between each
// minibatch and a same-sized batch of random states: twice the mean
// cross-distance minus both mean within-batch distances. Zero for
// identically distributed batches, positive otherwise.
type EnergyDistance struct {
	dist float64
	norm int
}

// Reset clears the accumulated state.
func (e *EnergyDistance) Reset() {
	e.dist = 0
	e.norm = 0
}

// Update folds one minibatch and a same-sized batch of random states.
func (e *EnergyDistance) Update(minibatch, random *tensor.Dense) error {
	if !minibatch.Shape().Eq(random.Shape()) {
		return model.ShapeMismatch("EnergyDistance", minibatch.Shape(), random.Shape())
	}
	e.dist += 2*meanPairDistance(minibatch, random) -
		meanPairDistance(minibatch, minibatch) -
		meanPairDistance(random, random)
	e.norm++
	return nil
}

// Value returns the mean energy distance so far, or NaN before any update.
func (e *EnergyDistance) Value() float64 {
	if e.norm == 0 {
		return math.NaN()
	}
	return e.dist / float64(e.norm)
}

// meanPairDistance is the euclidean distance between rows of a and rows of
// b, averaged over all pairs.
func meanPairDistance(a, b *tensor.Dense) float64 {
	rows, cols := a.Shape()[0], a.Shape()[1]
	as, bs := a.Float64s(), b.Float64s()
	var sum float64
	for i := 0; i < rows; i++ {
		ri := as[i*cols : (i+1)*cols]
		for j := 0; j < rows; j++ {
			rj := bs[j*cols : (j+1)*cols]
			var d2 float64
			for k := range ri {
				d := ri[k] - rj[k]
				d2 += d * d
			}
			sum += math.Sqrt(d2)
		}
	}
	return sum / float64(rows*rows)
}

// HeatCapacity accumulates the variance of the free energy over batches of
// random states; a sharply peaked model concentrates free energy and drives
// this down.
type HeatCapacity struct {
	sum       float64
	sumSquare float64
	norm      int
}

// Reset clears the accumulated state.
func (h *HeatCapacity) Reset() {
	h.sum = 0
	h.sumSquare = 0
	h.norm = 0
}

// Update folds one batch of random states.
func (h *HeatCapacity) Update(m *model.Model, random *tensor.Dense) error {
	f, err := m.FreeEnergy(random)
	if err != nil {
		return err
	}
	fs := f.Float64s()
	h.sum += floats.Sum(fs)
	h.sumSquare += floats.Dot(fs, fs)
	h.norm += len(fs)
	return nil
}

// Value returns the free-energy variance so far, or NaN before any update.
func (h *HeatCapacity) Value() float64 {
	if h.norm == 0 {
		return math.NaN()
	}
	n := float64(h.norm)
	mean := h.sum / n
	return h.sumSquare/n - mean*mean
}

// EpochStats is the monitoring summary of one epoch.
type EpochStats struct {
	Epoch              int
	Batches            int
	MeanEnergy         float64
	ReconstructionRMSE float64
	GradNorm           float64
	EnergyGap          float64
	EnergyZscore       float64
	EnergyDistance     float64
	HeatCapacity       float64
}

// TrainingReport is what a training session returns: per-epoch monitoring
// numbers plus the divergence outcome, if any.
type TrainingReport struct {
	Epochs []EpochStats

	// Diverged is set when a non-finite value halted the run. The model is
	// left at the parameters of the last fully-applied update.
	Diverged     bool
	DivergedStep int // global minibatch index of the failure
}

// randomBatch draws a batch of states from each visible unit's
// unconditional prior: fair coin flips for Bernoulli units, bias-centered
// normals for Gaussian units. Used as the noise reference of the energy
// metrics.
func randomBatch(m *model.Model, rows int, rng *model.RNG) *tensor.Dense {
	out := tensor.New(tensor.Of(model.Float), tensor.WithShape(rows, m.Visible.N))
	data := out.Float64s()
	switch m.Visible.Kind {
	case model.Gaussian:
		bias := m.Visible.Bias.Float64s()
		stddev := math.Sqrt(m.Visible.Variance)
		n := m.Visible.N
		for i := range data {
			data[i] = rng.Gaussian(bias[i%n], stddev)
		}
	default:
		for i := range data {
			if rng.Float64() < 0.5 {
				data[i] = 1
			}
		}
	}
	return out
}
