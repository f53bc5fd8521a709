package model

import (
	"sync"

	"gorgonia.org/tensor"
)

var (
	batchPoolMu sync.Mutex
	batchPool   = make(map[int]*sync.Pool)
)

func poolFor(n int) *sync.Pool {
	batchPoolMu.Lock()
	p, ok := batchPool[n]
	if !ok {
		p = &sync.Pool{
			New: func() interface{} { return make([]float64, n) },
		}
		batchPool[n] = p
	}
	batchPoolMu.Unlock()
	return p
}

// BorrowBatch returns a (rows × cols) batch-state tensor whose backing slice
// may be recycled. The contents are unspecified; callers must overwrite every
// entry before reading.
func BorrowBatch(rows, cols int) *tensor.Dense {
	backing := poolFor(rows * cols).Get().([]float64)
	return tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(backing))
}

// ReturnBatch recycles a tensor previously obtained from BorrowBatch. The
// tensor must not be used afterwards.
func ReturnBatch(t *tensor.Dense) {
	if t == nil {
		return
	}
	backing := t.Float64s()
	poolFor(len(backing)).Put(backing)
}
