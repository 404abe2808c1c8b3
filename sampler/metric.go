package sampler

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/CraigKelly/dsem/rand"
)

// Metric names accepted by NewMetric
const (
	MetricDiag  = "diag"
	MetricDense = "dense"
)

// A Metric is the Euclidean kinetic energy K(p) = p' M^-1 p / 2. Warmup
// estimates M^-1 from the covariance of recent draws.
type Metric interface {
	Dim() int
	SampleMomentum(gen *rand.Generator, p []float64)
	Kinetic(p []float64) float64
	Velocity(p []float64, dst []float64) // dK/dp = M^-1 p
	Update(draws [][]float64) error
	InverseDiagonal() []float64
}

// NewMetric returns a unit metric of the named kind
func NewMetric(kind string, dim int) (Metric, error) {
	switch kind {
	case MetricDiag, "":
		return NewDiagMetric(dim), nil
	case MetricDense:
		return NewDenseMetric(dim), nil
	}
	return nil, errors.Errorf("Unknown metric %q", kind)
}

// regularize shrinks a variance estimate from n draws toward 1e-3, as the
// reference windowed adaptation does.
func regularize(v float64, n float64) float64 {
	return (n/(n+5))*v + 1e-3*(5/(n+5))
}

// DiagMetric has a diagonal inverse mass matrix
type DiagMetric struct {
	InvMass []float64
}

// NewDiagMetric returns the identity metric
func NewDiagMetric(dim int) *DiagMetric {
	inv := make([]float64, dim)
	for i := range inv {
		inv[i] = 1
	}
	return &DiagMetric{InvMass: inv}
}

// Dim implements Metric
func (m *DiagMetric) Dim() int { return len(m.InvMass) }

// SampleMomentum implements Metric: p_i ~ Normal(0, 1/InvMass_i)
func (m *DiagMetric) SampleMomentum(gen *rand.Generator, p []float64) {
	for i, inv := range m.InvMass {
		p[i] = gen.NormFloat64() / math.Sqrt(inv)
	}
}

// Kinetic implements Metric
func (m *DiagMetric) Kinetic(p []float64) float64 {
	k := 0.0
	for i, inv := range m.InvMass {
		k += p[i] * p[i] * inv
	}
	return 0.5 * k
}

// Velocity implements Metric
func (m *DiagMetric) Velocity(p []float64, dst []float64) {
	floats.MulTo(dst, m.InvMass, p)
}

// Update implements Metric using the per-component sample variance
func (m *DiagMetric) Update(draws [][]float64) error {
	n := len(draws)
	if n < 2 {
		return errors.Errorf("Need at least 2 draws to estimate a metric, got %d", n)
	}

	col := make([]float64, n)
	next := make([]float64, len(m.InvMass))
	for j := range next {
		for i, row := range draws {
			col[i] = row[j]
		}
		v := regularize(stat.Variance(col, nil), float64(n))
		if !(v > 0) || math.IsInf(v, 0) {
			return errors.Errorf("Bad variance estimate %v for component %d", v, j)
		}
		next[j] = v
	}

	copy(m.InvMass, next)
	return nil
}

// InverseDiagonal implements Metric
func (m *DiagMetric) InverseDiagonal() []float64 {
	return append([]float64(nil), m.InvMass...)
}

// DenseMetric has a full inverse mass matrix, used when the posterior has
// strong linear correlations.
type DenseMetric struct {
	dim  int
	inv  []float64 // M^-1, row-major
	chol []float64 // lower Cholesky factor of M^-1, row-major
}

// NewDenseMetric returns the identity metric
func NewDenseMetric(dim int) *DenseMetric {
	m := &DenseMetric{
		dim:  dim,
		inv:  make([]float64, dim*dim),
		chol: make([]float64, dim*dim),
	}
	for i := 0; i < dim; i++ {
		m.inv[i*dim+i] = 1
		m.chol[i*dim+i] = 1
	}
	return m
}

// Dim implements Metric
func (m *DenseMetric) Dim() int { return m.dim }

// SampleMomentum implements Metric. With M^-1 = L L', p = L'^-1 z has
// covariance M.
func (m *DenseMetric) SampleMomentum(gen *rand.Generator, p []float64) {
	n := m.dim
	for i := range p {
		p[i] = gen.NormFloat64()
	}
	for i := n - 1; i >= 0; i-- {
		s := p[i]
		for j := i + 1; j < n; j++ {
			s -= m.chol[j*n+i] * p[j]
		}
		p[i] = s / m.chol[i*n+i]
	}
}

// Velocity implements Metric
func (m *DenseMetric) Velocity(p []float64, dst []float64) {
	n := m.dim
	for i := 0; i < n; i++ {
		dst[i] = floats.Dot(m.inv[i*n:(i+1)*n], p)
	}
}

// Kinetic implements Metric
func (m *DenseMetric) Kinetic(p []float64) float64 {
	v := make([]float64, m.dim)
	m.Velocity(p, v)
	return 0.5 * floats.Dot(p, v)
}

// Update implements Metric using the sample covariance matrix
func (m *DenseMetric) Update(draws [][]float64) error {
	n := len(draws)
	if n < 2 {
		return errors.Errorf("Need at least 2 draws to estimate a metric, got %d", n)
	}

	x := mat.NewDense(n, m.dim, nil)
	for i, row := range draws {
		x.SetRow(i, row)
	}

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, x, nil)

	fn := float64(n)
	reg := mat.NewSymDense(m.dim, nil)
	for i := 0; i < m.dim; i++ {
		for j := i; j < m.dim; j++ {
			v := (fn / (fn + 5)) * cov.At(i, j)
			if i == j {
				v += 1e-3 * (5 / (fn + 5))
			}
			reg.SetSym(i, j, v)
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(reg); !ok {
		return errors.New("Covariance estimate is not positive definite")
	}
	var l mat.TriDense
	chol.LTo(&l)

	for i := 0; i < m.dim; i++ {
		for j := 0; j < m.dim; j++ {
			m.inv[i*m.dim+j] = reg.At(i, j)
			m.chol[i*m.dim+j] = l.At(i, j)
		}
	}
	return nil
}

// InverseDiagonal implements Metric
func (m *DenseMetric) InverseDiagonal() []float64 {
	d := make([]float64, m.dim)
	for i := range d {
		d[i] = m.inv[i*m.dim+i]
	}
	return d
}
