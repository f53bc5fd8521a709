package model

import (
	rng "github.com/leesper/go_rng"
)

// the two streams must not share a state trajectory
const gaussianSeedOffset = 0x9e3779b9

// RNG is an explicit pseudo-random generator handle. One RNG belongs to one
// training session; it is threaded through every sampling call so that two
// runs with the same seed and data order draw the same values bit for bit.
//
// It is not safe for concurrent use.
type RNG struct {
	uni   *rng.UniformGenerator
	gauss *rng.GaussianGenerator
}

// NewRNG creates a generator pair seeded from a single seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		uni:   rng.NewUniformGenerator(seed),
		gauss: rng.NewGaussianGenerator(seed + gaussianSeedOffset),
	}
}

// Float64 draws a uniform variate in [0, 1).
func (r *RNG) Float64() float64 { return r.uni.Float64() }

// Gaussian draws a normal variate.
func (r *RNG) Gaussian(mean, stddev float64) float64 { return r.gauss.Gaussian(mean, stddev) }
