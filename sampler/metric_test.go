package sampler

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/stat"

	"github.com/CraigKelly/dsem/rand"
)

func TestNewMetric(t *testing.T) {
	assert := assert.New(t)

	m, err := NewMetric("", 3)
	assert.NoError(err)
	assert.IsType(&DiagMetric{}, m)

	m, err = NewMetric(MetricDense, 3)
	assert.NoError(err)
	assert.IsType(&DenseMetric{}, m)
	assert.Equal([]float64{1, 1, 1}, m.InverseDiagonal())

	_, err = NewMetric("euclid", 3)
	assert.Error(err)
}

func TestDiagMetric(t *testing.T) {
	assert := assert.New(t)

	m := NewDiagMetric(2)
	p := []float64{3, 4}
	assert.InDelta(12.5, m.Kinetic(p), 1e-12)

	assert.Error(m.Update([][]float64{{1, 1}}))

	draws := [][]float64{{0, 0}, {2, 0}, {0, 4}, {2, 4}}
	assert.NoError(m.Update(draws))
	// var = 4/3 and 16/3 with 4 draws, shrunk toward 1e-3
	assert.InDelta(regularize(4.0/3, 4), m.InvMass[0], 1e-12)
	assert.InDelta(regularize(16.0/3, 4), m.InvMass[1], 1e-12)

	v := make([]float64, 2)
	m.Velocity(p, v)
	assert.InDelta(3*m.InvMass[0], v[0], 1e-12)
	assert.InDelta(4*m.InvMass[1], v[1], 1e-12)

	// Constant component still gets a positive variance
	assert.NoError(m.Update([][]float64{{1, 5}, {1, 6}, {1, 7}}))
	assert.True(m.InvMass[0] > 0)
}

func TestDenseMetric(t *testing.T) {
	assert := assert.New(t)

	gen, err := rand.NewGenerator(8)
	assert.NoError(err)

	// Draws from a correlated normal
	draws := make([][]float64, 4000)
	for i := range draws {
		a, b := gen.NormFloat64(), gen.NormFloat64()
		draws[i] = []float64{2 * a, a + b}
	}

	m := NewDenseMetric(2)
	assert.NoError(m.Update(draws))
	d := m.InverseDiagonal()
	assert.InEpsilon(4, d[0], 0.1)
	assert.InEpsilon(2, d[1], 0.1)
	assert.InEpsilon(2, m.inv[1], 0.1)
	assert.Equal(m.inv[1], m.inv[2])

	// Momentum covariance is M, the inverse of M^-1
	n := 20000
	p0, p1 := make([]float64, n), make([]float64, n)
	p := make([]float64, 2)
	for i := 0; i < n; i++ {
		m.SampleMomentum(gen, p)
		p0[i], p1[i] = p[0], p[1]
	}
	det := m.inv[0]*m.inv[3] - m.inv[1]*m.inv[2]
	assert.InEpsilon(m.inv[3]/det, stat.Variance(p0, nil), 0.05)
	assert.InEpsilon(m.inv[0]/det, stat.Variance(p1, nil), 0.05)
	assert.InEpsilon(-m.inv[1]/det, stat.Covariance(p0, p1, nil), 0.1)

	// Kinetic energy is p' M^-1 p / 2
	k := m.Kinetic([]float64{1, -1})
	assert.InDelta(0.5*(m.inv[0]-2*m.inv[1]+m.inv[3]), k, 1e-12)

	// Singular covariance fails cleanly apart from regularization; collinear
	// draws are still positive definite after shrinkage
	line := [][]float64{{0, 0}, {1, 1}, {2, 2}, {3, 3}}
	assert.NoError(m.Update(line))
	assert.False(math.IsNaN(m.Kinetic([]float64{1, 1})))
}
