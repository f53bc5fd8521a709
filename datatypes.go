package boltzmann

import (
	"io"

	"gorgonia.org/tensor"

	"github.com/gorgonia/boltzmann/model"
	"github.com/gorgonia/boltzmann/solver"
)

// Config configures one training session.
type Config struct {
	Epochs       int
	BatchSize    int
	SamplerSteps int   // k of CD-k
	Seed         int64 // seeds the session RNG
	Persistent   bool  // persistent chains instead of restarting from data

	Solver solver.Solver

	// LogWriter receives per-epoch progress lines. Nil means silent.
	LogWriter io.Writer
}

// DefaultConfig is one epoch of CD-1 with plain SGD.
func DefaultConfig() Config {
	return Config{
		Epochs:       1,
		BatchSize:    32,
		SamplerSteps: 1,
		Solver:       solver.NewVanillaSolver(solver.WithLearnRate(0.01)),
	}
}

// Validate checks the session hyperparameters, including the solver's.
func (c Config) Validate() error {
	if c.Epochs <= 0 {
		return model.InvalidConfigf("epochs must be positive, got %d", c.Epochs)
	}
	if c.BatchSize <= 0 {
		return model.InvalidConfigf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.SamplerSteps <= 0 {
		return model.InvalidConfigf("sampler steps must be positive, got %d", c.SamplerSteps)
	}
	if c.Solver == nil {
		return model.InvalidConfigf("no solver configured")
	}
	return c.Solver.Validate()
}

// DataSource produces minibatches of fixed-width real vectors matching the
// visible layer's size. It is an external collaborator; SliceSource is the
// in-memory reference implementation.
type DataSource interface {
	// Next returns the next (batchSize × width) batch, or io.EOF when the
	// epoch is exhausted.
	Next(batchSize int) (*tensor.Dense, error)
	// Reset rewinds the source to the start of an epoch.
	Reset() error
}
