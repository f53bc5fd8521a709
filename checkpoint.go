package boltzmann

import (
	"encoding/gob"
	"io"

	"github.com/pkg/errors"

	"github.com/gorgonia/boltzmann/model"
	"github.com/gorgonia/boltzmann/solver"
)

// SaveCheckpoint writes the model parameters followed by the solver's
// auxiliary state, allowing a training session to resume exactly where it
// stopped.
func SaveCheckpoint(w io.Writer, m *model.Model, s solver.Solver) error {
	enc := gob.NewEncoder(w)
	if err := enc.Encode(m); err != nil {
		return errors.Wrap(err, "checkpoint model")
	}
	if err := enc.Encode(s); err != nil {
		return errors.Wrap(err, "checkpoint solver")
	}
	return nil
}

// LoadCheckpoint restores a checkpoint into an existing model and a solver
// constructed with the same hyperparameters the session used.
func LoadCheckpoint(r io.Reader, m *model.Model, s solver.Solver) error {
	dec := gob.NewDecoder(r)
	if err := dec.Decode(m); err != nil {
		return errors.Wrap(err, "checkpoint model")
	}
	if err := dec.Decode(s); err != nil {
		return errors.Wrap(err, "checkpoint solver")
	}
	return nil
}
