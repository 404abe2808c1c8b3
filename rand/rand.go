package rand

import (
	mathrand "math/rand/v2"

	"github.com/pkg/errors"
	"github.com/seehuhn/mt19937"
)

// A Generator is a 64-bit Mersenne Twister stream. Every chain owns one, so a
// Generator is never shared between goroutines and needs no locking.
type Generator struct {
	mt  *mt19937.MT19937
	rng *mathrand.Rand
}

// NewGenerator returns a generator seeded from a single value
func NewGenerator(seed int64) (*Generator, error) {
	mt := mt19937.New()
	mt.Seed(seed)
	return wrap(mt), nil
}

// NewGeneratorSlice returns a generator seeded with the reference
// init_by_array scheme. We use (seed, chain) pairs so that chain streams are
// independent of scheduling order.
func NewGeneratorSlice(key []uint64) (*Generator, error) {
	if len(key) < 1 {
		return nil, errors.Errorf("At least one seed key is required")
	}

	mt := mt19937.New()
	mt.SeedFromSlice(key)
	return wrap(mt), nil
}

// NewChainGenerator is the seeding convention used for sampler chains
func NewChainGenerator(seed int64, chain int) (*Generator, error) {
	if chain < 0 {
		return nil, errors.Errorf("Invalid chain index %d", chain)
	}
	return NewGeneratorSlice([]uint64{uint64(seed), uint64(chain)})
}

func wrap(mt *mt19937.MT19937) *Generator {
	return &Generator{
		mt:  mt,
		rng: mathrand.New(mt),
	}
}

// Int63 provides the same interface as Go's math/rand
func (g *Generator) Int63() int64 {
	return g.mt.Int63()
}

// Uint64 makes a Generator usable as a math/rand/v2 Source
func (g *Generator) Uint64() uint64 {
	return g.mt.Uint64()
}

// Float64 returns a uniform float in [0, 1)
func (g *Generator) Float64() float64 {
	// See the Go lang comments for Rand Float64 implementation for details
	return float64(g.Int63()>>10) / (1 << 53)
}

// Uniform returns a uniform float in [lo, hi)
func (g *Generator) Uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*g.Float64()
}

// NormFloat64 returns a standard normal variate
func (g *Generator) NormFloat64() float64 {
	return g.rng.NormFloat64()
}
