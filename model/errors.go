package model

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ErrInvalidConfig is the sentinel for illegal hyperparameters and layer
// configurations. It is always detected before a training loop starts.
var ErrInvalidConfig = errors.New("invalid configuration")

// InvalidConfigf wraps ErrInvalidConfig with context.
func InvalidConfigf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidConfig, format, args...)
}

// ShapeError reports an incompatibility between a tensor and the shape a
// component requires. It is fatal and never recovered from.
type ShapeError struct {
	Op   string
	Want tensor.Shape
	Got  tensor.Shape
}

func (err ShapeError) Error() string {
	return fmt.Sprintf("%s: shape mismatch. Want %v. Got %v", err.Op, err.Want, err.Got)
}

// ShapeMismatch creates a ShapeError with a stack trace attached.
func ShapeMismatch(op string, want, got tensor.Shape) error {
	return errors.WithStack(ShapeError{Op: op, Want: want.Clone(), Got: got.Clone()})
}

// DivergenceError reports a non-finite value produced during sampling,
// activation or gradient computation. It halts the training run.
type DivergenceError struct {
	Op string
}

func (err DivergenceError) Error() string {
	return fmt.Sprintf("%s: non-finite value", err.Op)
}

// CheckFinite returns a DivergenceError if any entry of t is NaN or Inf.
func CheckFinite(op string, t *tensor.Dense) error {
	for _, v := range t.Float64s() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.WithStack(DivergenceError{Op: op})
		}
	}
	return nil
}
