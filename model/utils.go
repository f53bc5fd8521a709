package model

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// calc accumulates the first error of a chain of tensor operations so the
// happy path reads linearly.
type calc struct {
	err error
}

func (c *calc) matmul(a, b *tensor.Dense) *tensor.Dense {
	if c.err != nil {
		return nil
	}
	var retVal *tensor.Dense
	if retVal, c.err = a.MatMul(b); c.err != nil {
		c.err = errors.Wrapf(c.err, "matmul %v × %v", a.Shape(), b.Shape())
		return nil
	}
	return retVal
}

func (c *calc) transpose(a *tensor.Dense) *tensor.Dense {
	if c.err != nil {
		return nil
	}
	retVal := a.Clone().(*tensor.Dense)
	if c.err = retVal.T(); c.err != nil {
		c.err = errors.Wrapf(c.err, "transpose %v", a.Shape())
		return nil
	}
	return retVal
}

func (c *calc) sum(a *tensor.Dense, along ...int) *tensor.Dense {
	if c.err != nil {
		return nil
	}
	var retVal *tensor.Dense
	if retVal, c.err = a.Sum(along...); c.err != nil {
		c.err = errors.Wrapf(c.err, "sum %v along %v", a.Shape(), along)
		return nil
	}
	return retVal
}

// addBiasRows adds the bias vector to every row of a (batch × N) matrix,
// in place.
func addBiasRows(t *tensor.Dense, bias *tensor.Dense) {
	data := t.Float64s()
	b := bias.Float64s()
	n := len(b)
	for i := 0; i < len(data); i += n {
		row := data[i : i+n]
		for j := range row {
			row[j] += b[j]
		}
	}
}

// rowDotsSubtract subtracts the per-row dot product of two same-shaped
// matrices from dst.
func rowDotsSubtract(dst *tensor.Dense, a, b *tensor.Dense) {
	out := dst.Float64s()
	as := a.Float64s()
	bs := b.Float64s()
	n := len(as) / len(out)
	for i := range out {
		row := as[i*n : (i+1)*n]
		for j, v := range row {
			out[i] -= v * bs[i*n+j]
		}
	}
}
