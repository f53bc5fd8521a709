// Package boltzmann trains energy-based probabilistic models of the
// Boltzmann-machine family by stochastic gradient estimation: data-clamped
// statistics against statistics drawn from a Gibbs sampler, applied through
// a stateful solver.
package boltzmann

import (
	"context"
	"io"
	"log"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
	"gorgonia.org/tensor"

	"github.com/gorgonia/boltzmann/model"
	"github.com/gorgonia/boltzmann/sampler"
	"github.com/gorgonia/boltzmann/solver"
)

// Trainer is the top level structure and the entry point of the API. It
// drives the epoch/minibatch loop: gradient estimation, solver step,
// monitoring. One Trainer owns one training session; it is not safe for
// concurrent use.
type Trainer struct {
	Config

	m   *model.Model
	smp *sampler.Sampler
	est *Estimator
	rng *model.RNG

	logger     *log.Logger
	globalStep int

	// epoch accumulators
	recon  ReconstructionError
	gap    EnergyGap
	zscore EnergyZscore
	dist   EnergyDistance
	heat   HeatCapacity
}

// New creates a trainer for the model. All configuration, including the
// solver's, is validated here; nothing invalid reaches the training loop.
func New(m *model.Model, conf Config) (*Trainer, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	rng := model.NewRNG(conf.Seed)
	mode := sampler.CD
	if conf.Persistent {
		mode = sampler.Persistent
	}
	smp := sampler.New(mode, rng)

	out := conf.LogWriter
	if out == nil {
		out = io.Discard
	}
	return &Trainer{
		Config: conf,
		m:      m,
		smp:    smp,
		est:    NewEstimator(smp, conf.SamplerSteps),
		rng:    rng,
		logger: log.New(out, "", log.Ltime),
	}, nil
}

// Model returns the model being trained.
func (t *Trainer) Model() *model.Model { return t.m }

// Fit runs the configured number of epochs over the data source.
// Cancellation is honored between minibatches, leaving the parameters at
// the last fully-applied update. On divergence the model is restored to the
// last stable parameter set and the partial report is returned alongside
// the error.
func (t *Trainer) Fit(ctx context.Context, src DataSource) (*TrainingReport, error) {
	report := &TrainingReport{}
	for epoch := 0; epoch < t.Epochs; epoch++ {
		if err := src.Reset(); err != nil {
			return report, errors.Wrap(err, "resetting data source")
		}
		stats, err := t.runEpoch(ctx, epoch, src, report)
		if err != nil {
			// keep the monitoring numbers of the partially completed epoch
			if stats.Batches > 0 {
				report.Epochs = append(report.Epochs, stats)
			}
			return report, err
		}
		report.Epochs = append(report.Epochs, stats)
		t.logger.Printf("epoch %d: energy %.5f recon %.5f |grad| %.5f gap %.5f",
			epoch, stats.MeanEnergy, stats.ReconstructionRMSE, stats.GradNorm, stats.EnergyGap)
	}
	return report, nil
}

func (t *Trainer) runEpoch(ctx context.Context, epoch int, src DataSource, report *TrainingReport) (stats EpochStats, err error) {
	stats.Epoch = epoch
	t.recon.Reset()
	t.gap.Reset()
	t.zscore.Reset()
	t.dist.Reset()
	t.heat.Reset()
	var energySum, gradNormSum float64
	defer func() { t.finishEpoch(&stats, energySum, gradNormSum) }()

	for {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		batch, err := src.Next(t.BatchSize)
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, errors.Wrap(err, "reading minibatch")
		}

		grad, err := t.est.Estimate(t.m, batch)
		if err != nil {
			return stats, t.diverged(report, err)
		}
		if err = grad.CheckFinite(); err != nil {
			return stats, t.diverged(report, err)
		}

		snapshot := snapshotParams(t.m)
		if err = t.Solver.Step(valueGrads(t.m, grad)); err != nil {
			return stats, errors.Wrap(err, "solver step")
		}
		if err = checkParamsFinite(t.m); err != nil {
			restoreParams(t.m, snapshot)
			return stats, t.diverged(report, err)
		}
		t.globalStep++
		stats.Batches++

		if err = t.observe(batch, grad, &energySum, &gradNormSum); err != nil {
			return stats, errors.Wrap(err, "monitoring")
		}
	}
	return stats, nil
}

// observe accumulates the monitoring numbers for one minibatch.
func (t *Trainer) observe(batch *tensor.Dense, grad *model.Gradient, energySum, gradNormSum *float64) error {
	hidMean, err := t.m.VisibleToHidden(batch)
	if err != nil {
		return err
	}
	energies, err := t.m.Energy(batch, hidMean)
	if err != nil {
		return err
	}
	*energySum += stat.Mean(energies.Float64s(), nil)
	*gradNormSum += grad.Norm()

	reconstruction, err := t.m.HiddenToVisible(hidMean)
	if err != nil {
		return err
	}
	if err = t.recon.Update(batch, reconstruction); err != nil {
		return err
	}

	random := randomBatch(t.m, batch.Shape()[0], t.rng)
	if err = t.gap.Update(t.m, batch, random); err != nil {
		return err
	}
	if err = t.zscore.Update(t.m, batch, random); err != nil {
		return err
	}
	if err = t.dist.Update(batch, random); err != nil {
		return err
	}
	return t.heat.Update(t.m, random)
}

func (t *Trainer) finishEpoch(stats *EpochStats, energySum, gradNormSum float64) {
	if stats.Batches == 0 {
		return
	}
	n := float64(stats.Batches)
	stats.MeanEnergy = energySum / n
	stats.GradNorm = gradNormSum / n
	stats.ReconstructionRMSE = t.recon.Value()
	stats.EnergyGap = t.gap.Value()
	stats.EnergyZscore = t.zscore.Value()
	stats.EnergyDistance = t.dist.Value()
	stats.HeatCapacity = t.heat.Value()
}

func (t *Trainer) diverged(report *TrainingReport, err error) error {
	var de model.DivergenceError
	if errors.As(err, &de) {
		report.Diverged = true
		report.DivergedStep = t.globalStep
	}
	return err
}

// Fit is the convenience entry point: build a trainer and run it.
func Fit(ctx context.Context, m *model.Model, src DataSource, conf Config) (*TrainingReport, error) {
	t, err := New(m, conf)
	if err != nil {
		return nil, err
	}
	return t.Fit(ctx, src)
}

func valueGrads(m *model.Model, grad *model.Gradient) []solver.ValueGrad {
	params := m.Params()
	deltas := grad.Tensors()
	vgs := make([]solver.ValueGrad, len(params))
	for i := range params {
		vgs[i] = solver.ValueGrad{Value: params[i].Value, Grad: deltas[i]}
	}
	return vgs
}

func snapshotParams(m *model.Model) []*tensor.Dense {
	params := m.Params()
	out := make([]*tensor.Dense, len(params))
	for i, p := range params {
		out[i] = p.Value.Clone().(*tensor.Dense)
	}
	return out
}

func restoreParams(m *model.Model, snapshot []*tensor.Dense) {
	for i, p := range m.Params() {
		copy(p.Value.Float64s(), snapshot[i].Float64s())
	}
}

func checkParamsFinite(m *model.Model) error {
	for _, p := range m.Params() {
		if err := model.CheckFinite(p.Name, p.Value); err != nil {
			return err
		}
	}
	return nil
}
