package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/stat/distuv"
)

func testModel(t *testing.T, y [][]float64) *Model {
	d, err := NewDataset(len(y), len(y[0]), y)
	if err != nil {
		t.Fatalf("Could not build dataset: %v", err)
	}
	m, err := NewModel(d, DefaultPriors())
	if err != nil {
		t.Fatalf("Could not build model: %v", err)
	}
	return m
}

func TestSubjectLikelihoodSkipsFirstObservation(t *testing.T) {
	assert := assert.New(t)

	y := []float64{1.0, 2.0, 0.5, 1.5}
	s := Subject{Mu: 1.2, Psi: 0.7, Phi: 0.4}

	exp := 0.0
	for i := 1; i < len(y); i++ {
		exp += distuv.Normal{Mu: s.Mu + s.Phi*(y[i-1]-s.Mu), Sigma: s.Psi}.LogProb(y[i])
	}

	act, err := SubjectLogLikelihood(y, s)
	assert.NoError(err)
	assert.InDelta(exp, act, 1e-10)

	// Changing the first observation only moves the first lag term
	y2 := []float64{100, 2.0, 0.5, 1.5}
	other, err := SubjectLogLikelihood(y2, s)
	assert.NoError(err)
	assert.NotEqual(act, other)

	_, err = SubjectLogLikelihood(y, Subject{Mu: 0, Psi: 0, Phi: 0})
	assert.Error(err)
	assert.True(IsDomainError(err))
	_, err = SubjectLogLikelihood(y, Subject{Mu: 0, Psi: -1, Phi: 0})
	assert.True(IsDomainError(err))
}

func TestLogPriorMatchesDistributions(t *testing.T) {
	assert := assert.New(t)

	m := testModel(t, [][]float64{{1, 2, 3}, {2, 3, 1}})
	p := NewParams(2)
	p.Gamma = [3]float64{0.5, -1, 0.2}
	p.Tau = [3]float64{0.5, 1.5, 0.2}
	p.U[0] = [3]float64{0.1, -0.2, 0.05}
	p.U[1] = [3]float64{-0.3, 0.4, -0.01}

	exp := 0.0
	for _, g := range p.Gamma {
		exp += distuv.Normal{Mu: 0, Sigma: 1e6}.LogProb(g)
	}
	for _, tau := range p.Tau {
		// HalfCauchy(0, 2.5) is twice the Cauchy density on [0, inf)
		exp += math.Log(2 / (math.Pi * 2.5 * (1 + (tau/2.5)*(tau/2.5))))
	}
	for i := range p.U {
		for k, u := range p.U[i] {
			exp += distuv.Normal{Mu: 0, Sigma: p.Tau[k]}.LogProb(u)
		}
	}

	act, err := m.LogPrior(p, nil)
	assert.NoError(err)
	assert.InDelta(exp, act, 1e-10)

	p.Tau[1] = 0
	_, err = m.LogPrior(p, nil)
	assert.True(IsDomainError(err))
}

func TestLogDensityGradient(t *testing.T) {
	assert := assert.New(t)

	m := testModel(t, [][]float64{
		{0.3, 1.2, -0.4, 0.8, 1.1},
		{2.0, 1.1, 1.7, 0.2, 0.9},
		{-1.0, -0.2, 0.4, 0.1, -0.6},
	})
	values := []float64{
		0.2, 0.1, 0.3, // gamma
		0.6, 0.4, 0.25, // tau
		0.1, -0.1, 0.05,
		-0.2, 0.2, -0.1,
		0.3, 0.0, 0.02,
	}

	grad := make([]float64, len(values))
	lp, err := m.LogDensity(values, grad)
	assert.NoError(err)
	assert.False(math.IsNaN(lp))

	f := func(x []float64) float64 {
		v, _ := m.LogDensity(x, nil)
		return v
	}
	numeric := fd.Gradient(nil, f, values, &fd.Settings{Formula: fd.Central, Step: 1e-6})
	assert.InDeltaSlice(numeric, grad, 1e-5)
}

func TestConstantSeriesIsUninformativeAboutAR(t *testing.T) {
	assert := assert.New(t)

	m := testModel(t, [][]float64{{5, 5, 5, 5, 5}})
	assert.Equal(3, m.Dim())
	assert.Equal([]int{0}, m.ConstantSubjects())

	at := func(mu, logPsi, phi float64) (float64, []float64) {
		grad := make([]float64, 3)
		lp, err := m.LogDensity([]float64{mu, logPsi, phi}, grad)
		assert.NoError(err)
		return lp, grad
	}

	// At the series level, every AR coefficient fits equally well
	lp1, g1 := at(5, 0, -0.5)
	lp2, _ := at(5, 0, 0.9)
	assert.InDelta(lp1, lp2, 1e-9)
	assert.InDelta(0.0, g1[2], 1e-9)
	assert.InDelta(0.0, g1[0], 1e-9)

	// Away from the series level the density falls and the gradient points back
	lp3, g3 := at(4, 0, 0.3)
	assert.Less(lp3, lp1)
	assert.Greater(g3[0], 0.0)
	_, g4 := at(6, 0, 0.3)
	assert.Less(g4[0], 0.0)

	// ... whatever phi is, including the unit root that would otherwise zero
	// every residual for any level
	lp5, g5 := at(4, 0, 0.9)
	assert.InDelta(lp3, lp5, 1e-9)
	assert.InDelta(0.0, g5[2], 1e-9)
	unitRoot, _ := at(100, 0, 1)
	assert.Less(unitRoot, lp1-1000)
}

func TestConstantSeriesBoundedAsDispersionShrinks(t *testing.T) {
	assert := assert.New(t)

	y := []float64{5, 5, 5, 5, 5}
	m := testModel(t, [][]float64{y})
	// No spread at all: the floor scales with the level instead
	assert.InDelta(5e-3, m.DispersionFloor(), 1e-15)

	at := func(logPsi float64) (float64, []float64) {
		grad := make([]float64, 3)
		lp, err := m.LogDensity([]float64{5, logPsi, 0.3}, grad)
		assert.NoError(err)
		assert.False(math.IsInf(lp, 0))
		return lp, grad
	}

	lp10, _ := at(-10)
	lp50, g50 := at(-50)
	lp300, _ := at(-300)
	assert.InDelta(lp50, lp300, 1e-6) // only the gamma prior moves
	assert.True(lp10 <= lp50+1e-9)
	assert.InDelta(0.0, g50[1], 1e-9)

	// The exact likelihood has no such bound
	raw10, err := SubjectLogLikelihood(y, Subject{Mu: 5, Psi: math.Exp(-10), Phi: 0.3})
	assert.NoError(err)
	raw50, err := SubjectLogLikelihood(y, Subject{Mu: 5, Psi: math.Exp(-50), Phi: 0.3})
	assert.NoError(err)
	assert.Greater(raw50-raw10, 100.0)
}

func TestExactARPathBounded(t *testing.T) {
	assert := assert.New(t)

	// mu = 0, phi = 2 reproduces the series with no residual at all
	m := testModel(t, [][]float64{{1, 2, 4, 8, 16}})
	assert.Empty(m.ConstantSubjects())
	assert.Greater(m.DispersionFloor(), 0.0)

	lp50, err := m.LogDensity([]float64{0, -50, 2}, nil)
	assert.NoError(err)
	lp300, err := m.LogDensity([]float64{0, -300, 2}, nil)
	assert.NoError(err)
	assert.InDelta(lp50, lp300, 1e-6) // only the gamma prior moves
}

func TestLogDensityGradientWithConstantSubject(t *testing.T) {
	assert := assert.New(t)

	m := testModel(t, [][]float64{
		{0.3, 1.2, -0.4, 0.8},
		{2, 2, 2, 2},
	})
	assert.Equal([]int{1}, m.ConstantSubjects())

	values := []float64{
		0.4, -0.3, 0.2, // gamma
		0.5, 0.7, 0.3, // tau
		0.1, 0.2, -0.1,
		0.3, -0.4, 0.15,
	}
	grad := make([]float64, len(values))
	_, err := m.LogDensity(values, grad)
	assert.NoError(err)

	f := func(x []float64) float64 {
		v, _ := m.LogDensity(x, nil)
		return v
	}
	numeric := fd.Gradient(nil, f, values, &fd.Settings{Formula: fd.Central, Step: 1e-6})
	assert.InDeltaSlice(numeric, grad, 1e-5)
}

func TestLogPosteriorRejectsNonFinite(t *testing.T) {
	assert := assert.New(t)

	m := testModel(t, [][]float64{{1, 2, 3, 4}})
	_, err := m.LogDensity([]float64{0, 1000, 0}, nil) // psi overflows
	assert.Error(err)
	assert.True(IsDomainError(err))

	_, err = m.LogDensity([]float64{0, math.NaN(), 0}, nil)
	assert.True(IsDomainError(err))

	_, err = m.LogDensity([]float64{0, 0}, nil)
	assert.Error(err)
}

func TestNewModelChecks(t *testing.T) {
	assert := assert.New(t)

	_, err := NewModel(nil, DefaultPriors())
	assert.Error(err)

	d, err := NewSingleSubject([]float64{1, 2, 3})
	assert.NoError(err)
	_, err = NewModel(d, Priors{GammaSD: 0, TauScale: 1})
	assert.Error(err)
	_, err = NewModel(d, Priors{GammaSD: 1, TauScale: -1})
	assert.Error(err)
}
