package boltzmann

import (
	"io"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/gorgonia/boltzmann/model"
)

// SliceSource serves minibatches sequentially from an in-memory matrix of
// observations, one row per example. A ragged final batch is not served:
// persistent chains require every minibatch to have the same batch size.
type SliceSource struct {
	data   *tensor.Dense
	offset int
}

// NewSliceSource wraps a (rows × width) matrix.
func NewSliceSource(data *tensor.Dense) (*SliceSource, error) {
	if len(data.Shape()) != 2 {
		return nil, model.ShapeMismatch("SliceSource", tensor.Shape{0, 0}, data.Shape())
	}
	return &SliceSource{data: data}, nil
}

// FromRows builds a SliceSource from row slices of equal width.
func FromRows(rows [][]float64) (*SliceSource, error) {
	if len(rows) == 0 {
		return nil, model.InvalidConfigf("no rows")
	}
	width := len(rows[0])
	if width == 0 {
		return nil, model.InvalidConfigf("zero-width rows")
	}
	backing := make([]float64, 0, len(rows)*width)
	for i, row := range rows {
		if len(row) != width {
			return nil, model.ShapeMismatch("FromRows", tensor.Shape{len(rows), width}, tensor.Shape{i, len(row)})
		}
		backing = append(backing, row...)
	}
	return NewSliceSource(tensor.New(tensor.WithShape(len(rows), width), tensor.WithBacking(backing)))
}

// Next implements DataSource. The returned batch is a copy; callers may
// hold on to it.
func (src *SliceSource) Next(batchSize int) (*tensor.Dense, error) {
	if batchSize <= 0 {
		return nil, model.InvalidConfigf("batch size must be positive, got %d", batchSize)
	}
	rows := src.data.Shape()[0]
	if src.offset+batchSize > rows {
		return nil, io.EOF
	}
	var s slicer
	view := s.Slice(src.data, sli(src.offset, src.offset+batchSize))
	if s.err != nil {
		return nil, errors.Wrapf(s.err, "slicing batch at row %d", src.offset)
	}
	src.offset += batchSize
	return view.Clone().(*tensor.Dense), nil
}

// Reset implements DataSource.
func (src *SliceSource) Reset() error {
	src.offset = 0
	return nil
}

// Rows returns the number of examples held.
func (src *SliceSource) Rows() int { return src.data.Shape()[0] }
