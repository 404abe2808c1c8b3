package diagnostics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/CraigKelly/dsem/rand"
)

// ar1 draws a zero-mean AR(1) series with unit innovations
func ar1(gen *rand.Generator, n int, phi float64) []float64 {
	x := make([]float64, n)
	x[0] = gen.NormFloat64() / math.Sqrt(1-phi*phi)
	for t := 1; t < n; t++ {
		x[t] = phi*x[t-1] + gen.NormFloat64()
	}
	return x
}

func iidChains(gen *rand.Generator, m, n int, shift float64) [][]float64 {
	chains := make([][]float64, m)
	for c := range chains {
		chains[c] = make([]float64, n)
		for i := range chains[c] {
			chains[c][i] = gen.NormFloat64() + shift*float64(c)
		}
	}
	return chains
}

func naiveAutocov(x []float64) []float64 {
	n := len(x)
	mean := 0.0
	for _, v := range x {
		mean += v
	}
	mean /= float64(n)

	acov := make([]float64, n)
	for t := 0; t < n; t++ {
		s := 0.0
		for i := 0; i+t < n; i++ {
			s += (x[i] - mean) * (x[i+t] - mean)
		}
		acov[t] = s / float64(n)
	}
	return acov
}

func TestAutocovariance(t *testing.T) {
	assert := assert.New(t)

	gen, err := rand.NewGenerator(5)
	assert.NoError(err)

	for _, n := range []int{1, 2, 7, 100, 257} {
		x := ar1(gen, n, 0.6)
		assert.InDeltaSlice(naiveAutocov(x), Autocovariance(x), 1e-9, "n=%d", n)
	}

	assert.Nil(Autocovariance(nil))
	assert.Equal([]float64{0, 0, 0}, Autocovariance([]float64{2, 2, 2}))
}

func TestAutocovarianceAR1(t *testing.T) {
	assert := assert.New(t)

	gen, err := rand.NewGenerator(6)
	assert.NoError(err)

	acov := Autocovariance(ar1(gen, 20000, 0.8))
	assert.InDelta(0.8, acov[1]/acov[0], 0.03)
	assert.InDelta(0.64, acov[2]/acov[0], 0.04)
}
