package model

import (
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimulateShapes(t *testing.T) {
	assert := assert.New(t)

	truth := Truth{Gamma: [3]float64{0, 1, 0.35}, Tau: [3]float64{0.5, 0.3, 0.2}}
	d, p, err := Simulate(rand.New(rand.NewSource(3)), truth, 20, 50)
	assert.NoError(err)
	assert.Equal(20, d.NSubj)
	assert.Equal(50, d.NObs)
	assert.Len(p.U, 20)
	for _, s := range p.Subjects() {
		assert.True(s.Psi > 0)
	}

	again, _, err := Simulate(rand.New(rand.NewSource(3)), truth, 20, 50)
	assert.NoError(err)
	assert.Equal(d, again)
}

func TestSimulateWithoutRandomEffects(t *testing.T) {
	assert := assert.New(t)

	truth := Truth{Gamma: [3]float64{2, 0, 0.5}}
	d, p, err := Simulate(rand.New(rand.NewSource(9)), truth, 1, 2000)
	assert.NoError(err)
	assert.Equal([3]float64{0, 0, 0}, p.U[0])

	mean := 0.0
	for _, v := range d.Y[0] {
		mean += v
	}
	mean /= float64(d.NObs)
	// stationary sd is 1/sqrt(0.75); the sample mean of an AR(1) with phi=.5
	// has sd about 2/sqrt(2000)
	assert.InDelta(2.0, mean, 0.3)
}

func TestSimulateChecks(t *testing.T) {
	assert := assert.New(t)

	gen := rand.New(rand.NewSource(1))
	_, _, err := Simulate(gen, Truth{Tau: [3]float64{-1, 0, 0}}, 2, 10)
	assert.Error(err)
	_, _, err = Simulate(gen, Truth{Gamma: [3]float64{math.Inf(1), 0, 0}}, 2, 10)
	assert.Error(err)
	_, _, err = Simulate(gen, Truth{}, 2, 1)
	assert.Error(err)
}

func TestTruthFile(t *testing.T) {
	assert := assert.New(t)

	fn := filepath.Join(t.TempDir(), "truth.json")
	truth := Truth{Gamma: [3]float64{0, 1, 0.35}, Tau: [3]float64{0.5, 0.3, 0.2}}
	assert.NoError(truth.WriteFile(fn))

	back, err := NewTruthFromFile(fn)
	assert.NoError(err)
	assert.Equal(truth, *back)

	_, err = NewTruthFromFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(err)
}
