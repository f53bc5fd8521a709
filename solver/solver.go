// Package solver implements the parameter update rules. Solvers own their
// auxiliary state (velocity and moment buffers, step counter) and are pure
// in the sense that a step depends only on the gradient and the prior state,
// never on the data.
package solver

import (
	"bytes"
	"encoding/gob"
	"math"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/gorgonia/boltzmann/model"
)

// ValueGrad pairs a parameter tensor with its gradient. The gradient is the
// negative log-likelihood gradient, so solvers subtract.
type ValueGrad struct {
	Value *tensor.Dense
	Grad  *tensor.Dense
}

// Schedule maps the global step count to a multiplier on the learning rate.
// It must be a pure function of the step.
type Schedule func(step int) float64

// Solver is the update rule applied to model parameters.
type Solver interface {
	// Step applies one update. The slice must pair the same parameters in
	// the same order on every call.
	Step(vgs []ValueGrad) error
	// Validate checks the hyperparameters before any training starts.
	Validate() error
}

// SolverOpt configures a solver at construction.
type SolverOpt func(s Solver)

// WithLearnRate sets the learning rate.
func WithLearnRate(eta float64) SolverOpt {
	return func(s Solver) {
		switch st := s.(type) {
		case *VanillaSolver:
			st.eta = eta
		case *AdamSolver:
			st.eta = eta
		}
	}
}

// WithMomentum sets the momentum coefficient of the vanilla solver.
func WithMomentum(mu float64) SolverOpt {
	return func(s Solver) {
		if st, ok := s.(*VanillaSolver); ok {
			st.mu = mu
		}
	}
}

// WithL2Reg sets the weight-decay coefficient.
func WithL2Reg(lambda float64) SolverOpt {
	return func(s Solver) {
		switch st := s.(type) {
		case *VanillaSolver:
			st.lambda = lambda
		case *AdamSolver:
			st.lambda = lambda
		}
	}
}

// WithEps sets the numerical stabilizer of the adaptive solver.
func WithEps(eps float64) SolverOpt {
	return func(s Solver) {
		if st, ok := s.(*AdamSolver); ok {
			st.eps = eps
		}
	}
}

// WithBetas sets the moment decay rates of the adaptive solver.
func WithBetas(beta1, beta2 float64) SolverOpt {
	return func(s Solver) {
		if st, ok := s.(*AdamSolver); ok {
			st.beta1 = beta1
			st.beta2 = beta2
		}
	}
}

// WithClip clips each gradient entry to [−c, c] before the update.
func WithClip(c float64) SolverOpt {
	return func(s Solver) {
		switch st := s.(type) {
		case *VanillaSolver:
			st.clip = c
			st.useClip = true
		case *AdamSolver:
			st.clip = c
			st.useClip = true
		}
	}
}

// WithSchedule sets a learning-rate schedule.
func WithSchedule(sched Schedule) SolverOpt {
	return func(s Solver) {
		switch st := s.(type) {
		case *VanillaSolver:
			st.sched = sched
		case *AdamSolver:
			st.sched = sched
		}
	}
}

// VanillaSolver is stochastic gradient descent with momentum:
//
//	v ← μ·v − lr·(grad + λ·param)
//	param ← param + v
//
// With μ = 0 it degenerates to plain SGD.
type VanillaSolver struct {
	eta     float64
	mu      float64
	lambda  float64
	clip    float64
	useClip bool
	sched   Schedule

	step int
	vs   []*tensor.Dense
}

// NewVanillaSolver creates a momentum SGD solver. Default learn rate 0.001,
// no momentum, no weight decay.
func NewVanillaSolver(opts ...SolverOpt) *VanillaSolver {
	s := &VanillaSolver{eta: 0.001}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate implements Solver.
func (s *VanillaSolver) Validate() error {
	if s.eta <= 0 {
		return model.InvalidConfigf("learn rate must be positive, got %v", s.eta)
	}
	if s.mu < 0 || s.mu >= 1 {
		return model.InvalidConfigf("momentum must be in [0, 1), got %v", s.mu)
	}
	if s.lambda < 0 {
		return model.InvalidConfigf("weight decay must be non-negative, got %v", s.lambda)
	}
	if s.useClip && s.clip <= 0 {
		return model.InvalidConfigf("clip must be positive, got %v", s.clip)
	}
	return nil
}

// Step implements Solver.
func (s *VanillaSolver) Step(vgs []ValueGrad) error {
	if len(s.vs) == 0 {
		s.vs = make([]*tensor.Dense, len(vgs))
		for i, vg := range vgs {
			s.vs[i] = tensor.New(tensor.Of(model.Float), tensor.WithShape(vg.Value.Shape().Clone()...))
		}
	}
	if len(vgs) != len(s.vs) {
		return model.InvalidConfigf("expected %d parameters, got %d", len(s.vs), len(vgs))
	}
	lr := s.eta
	if s.sched != nil {
		lr *= s.sched(s.step)
	}
	for i, vg := range vgs {
		if !vg.Value.Shape().Eq(s.vs[i].Shape()) {
			return model.ShapeMismatch("solver velocity", s.vs[i].Shape(), vg.Value.Shape())
		}
		if !vg.Grad.Shape().Eq(vg.Value.Shape()) {
			return model.ShapeMismatch("solver gradient", vg.Value.Shape(), vg.Grad.Shape())
		}
		p := vg.Value.Float64s()
		g := vg.Grad.Float64s()
		v := s.vs[i].Float64s()
		for j := range p {
			d := g[j] + s.lambda*p[j]
			if s.useClip {
				d = clamp(d, s.clip)
			}
			v[j] = s.mu*v[j] - lr*d
			p[j] += v[j]
		}
	}
	s.step++
	return nil
}

// AdamSolver is the Adam update rule with bias correction:
//
//	m ← β₁·m + (1−β₁)·grad
//	v ← β₂·v + (1−β₂)·grad²
//	param ← param − lr·m̂/(√v̂ + ε)
type AdamSolver struct {
	eta     float64
	beta1   float64
	beta2   float64
	eps     float64
	lambda  float64
	clip    float64
	useClip bool
	sched   Schedule

	step int
	ms   []*tensor.Dense
	vs   []*tensor.Dense
}

// NewAdamSolver creates an Adam solver with the usual defaults: learn rate
// 0.001, β₁ 0.9, β₂ 0.999, ε 1e-8.
func NewAdamSolver(opts ...SolverOpt) *AdamSolver {
	s := &AdamSolver{
		eta:   0.001,
		beta1: 0.9,
		beta2: 0.999,
		eps:   1e-8,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate implements Solver.
func (s *AdamSolver) Validate() error {
	if s.eta <= 0 {
		return model.InvalidConfigf("learn rate must be positive, got %v", s.eta)
	}
	if s.beta1 <= 0 || s.beta1 >= 1 {
		return model.InvalidConfigf("beta1 must be in (0, 1), got %v", s.beta1)
	}
	if s.beta2 <= 0 || s.beta2 >= 1 {
		return model.InvalidConfigf("beta2 must be in (0, 1), got %v", s.beta2)
	}
	if s.eps <= 0 {
		return model.InvalidConfigf("eps must be positive, got %v", s.eps)
	}
	if s.lambda < 0 {
		return model.InvalidConfigf("weight decay must be non-negative, got %v", s.lambda)
	}
	if s.useClip && s.clip <= 0 {
		return model.InvalidConfigf("clip must be positive, got %v", s.clip)
	}
	return nil
}

// Step implements Solver.
func (s *AdamSolver) Step(vgs []ValueGrad) error {
	if len(s.ms) == 0 {
		s.ms = make([]*tensor.Dense, len(vgs))
		s.vs = make([]*tensor.Dense, len(vgs))
		for i, vg := range vgs {
			shape := vg.Value.Shape().Clone()
			s.ms[i] = tensor.New(tensor.Of(model.Float), tensor.WithShape(shape...))
			s.vs[i] = tensor.New(tensor.Of(model.Float), tensor.WithShape(shape.Clone()...))
		}
	}
	if len(vgs) != len(s.ms) {
		return model.InvalidConfigf("expected %d parameters, got %d", len(s.ms), len(vgs))
	}
	lr := s.eta
	if s.sched != nil {
		lr *= s.sched(s.step)
	}
	t := s.step + 1
	c1 := 1.0 / (1.0 - math.Pow(s.beta1, float64(t)))
	c2 := 1.0 / (1.0 - math.Pow(s.beta2, float64(t)))
	for i, vg := range vgs {
		if !vg.Value.Shape().Eq(s.ms[i].Shape()) {
			return model.ShapeMismatch("solver moments", s.ms[i].Shape(), vg.Value.Shape())
		}
		if !vg.Grad.Shape().Eq(vg.Value.Shape()) {
			return model.ShapeMismatch("solver gradient", vg.Value.Shape(), vg.Grad.Shape())
		}
		p := vg.Value.Float64s()
		g := vg.Grad.Float64s()
		m := s.ms[i].Float64s()
		v := s.vs[i].Float64s()
		for j := range p {
			d := g[j] + s.lambda*p[j]
			if s.useClip {
				d = clamp(d, s.clip)
			}
			m[j] = s.beta1*m[j] + (1-s.beta1)*d
			v[j] = s.beta2*v[j] + (1-s.beta2)*d*d
			p[j] -= lr * (m[j] * c1) / (math.Sqrt(v[j]*c2) + s.eps)
		}
	}
	s.step++
	return nil
}

func clamp(x, c float64) float64 {
	if x > c {
		return c
	}
	if x < -c {
		return -c
	}
	return x
}

type solverGob struct {
	Step    int
	Shapes  [][]int
	Buffers [][]float64
}

func encodeBuffers(step int, buffers ...[]*tensor.Dense) ([]byte, error) {
	sg := solverGob{Step: step}
	for _, set := range buffers {
		for _, t := range set {
			sg.Shapes = append(sg.Shapes, []int(t.Shape().Clone()))
			sg.Buffers = append(sg.Buffers, t.Float64s())
		}
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(sg); err != nil {
		return nil, errors.Wrap(err, "encoding solver state")
	}
	return buf.Bytes(), nil
}

func decodeBuffers(p []byte, sets int) (int, [][]*tensor.Dense, error) {
	var sg solverGob
	if err := gob.NewDecoder(bytes.NewBuffer(p)).Decode(&sg); err != nil {
		return 0, nil, errors.Wrap(err, "decoding solver state")
	}
	if len(sg.Shapes) != len(sg.Buffers) {
		return 0, nil, errors.Errorf("solver state holds %d shapes for %d buffers", len(sg.Shapes), len(sg.Buffers))
	}
	if sets > 0 && len(sg.Buffers)%sets != 0 {
		return 0, nil, errors.Errorf("solver state holds %d buffers, not divisible into %d sets", len(sg.Buffers), sets)
	}
	per := 0
	if sets > 0 {
		per = len(sg.Buffers) / sets
	}
	out := make([][]*tensor.Dense, sets)
	for i := 0; i < sets; i++ {
		for j := 0; j < per; j++ {
			k := i*per + j
			if n := tensor.Shape(sg.Shapes[k]).TotalSize(); n != len(sg.Buffers[k]) {
				return 0, nil, errors.Errorf("solver state buffer %d holds %d values for shape %v", k, len(sg.Buffers[k]), sg.Shapes[k])
			}
			t := tensor.New(tensor.WithShape(sg.Shapes[k]...), tensor.WithBacking(sg.Buffers[k]))
			out[i] = append(out[i], t)
		}
	}
	return sg.Step, out, nil
}

// GobEncode serializes the auxiliary state (velocity buffers and step
// count). Hyperparameters are not serialized; they come from construction.
func (s *VanillaSolver) GobEncode() ([]byte, error) {
	return encodeBuffers(s.step, s.vs)
}

// GobDecode restores the auxiliary state into a constructed solver.
func (s *VanillaSolver) GobDecode(p []byte) error {
	step, bufs, err := decodeBuffers(p, 1)
	if err != nil {
		return err
	}
	s.step = step
	s.vs = bufs[0]
	return nil
}

// GobEncode serializes the auxiliary state (moment buffers and step count).
// Hyperparameters are not serialized; they come from construction.
func (s *AdamSolver) GobEncode() ([]byte, error) {
	return encodeBuffers(s.step, s.ms, s.vs)
}

// GobDecode restores the auxiliary state into a constructed solver.
func (s *AdamSolver) GobDecode(p []byte) error {
	step, bufs, err := decodeBuffers(p, 2)
	if err != nil {
		return err
	}
	s.step = step
	s.ms = bufs[0]
	s.vs = bufs[1]
	return nil
}
