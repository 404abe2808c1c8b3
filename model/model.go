package model

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// FloorFraction sets the dispersion floor as a fraction of the pooled
// standard deviation of the data
const FloorFraction = 1e-3

// Priors holds the prior scales
type Priors struct {
	GammaSD  float64 // gamma ~ Normal(0, GammaSD)
	TauScale float64 // tau ~ HalfCauchy(0, TauScale)
}

// DefaultPriors are the effectively flat gamma prior and HalfCauchy(0, 2.5)
func DefaultPriors() Priors {
	return Priors{
		GammaSD:  1e6,
		TauScale: 2.5,
	}
}

// Check returns an error if a prior scale is unusable
func (p Priors) Check() error {
	if !(p.GammaSD > 0) {
		return errors.Errorf("Prior gamma sd must be > 0, got %v", p.GammaSD)
	}
	if !(p.TauScale > 0) {
		return errors.Errorf("Prior tau scale must be > 0, got %v", p.TauScale)
	}
	return nil
}

// Model is the DSEM model graph bound to a dataset: a parameter layout, the
// priors, and the AR(1) likelihood. It holds no mutable state and may be
// shared by any number of chains.
type Model struct {
	Data   *Dataset
	Layout *Layout
	Priors Priors

	floor    float64 // added in quadrature to every residual sd
	constant []bool  // per subject: the series never changes
}

// NewModel binds the model to the dataset
func NewModel(data *Dataset, priors Priors) (*Model, error) {
	if data == nil {
		return nil, errors.New("No dataset supplied")
	}
	if err := data.Check(); err != nil {
		return nil, errors.Wrap(err, "Invalid dataset")
	}
	if err := priors.Check(); err != nil {
		return nil, err
	}

	layout, err := NewLayout(data.NSubj)
	if err != nil {
		return nil, err
	}

	m := &Model{
		Data:     data,
		Layout:   layout,
		Priors:   priors,
		constant: make([]bool, data.NSubj),
	}

	var pooled []float64
	for i, y := range data.Y {
		pooled = append(pooled, y...)
		m.constant[i] = isConstant(y)
	}
	scale := math.Max(1, math.Abs(pooled[0]))
	if !isConstant(pooled) {
		scale = stat.StdDev(pooled, nil)
	}
	m.floor = FloorFraction * scale

	return m, nil
}

func isConstant(y []float64) bool {
	for _, v := range y[1:] {
		if v != y[0] {
			return false
		}
	}
	return true
}

// DispersionFloor is the sd added in quadrature to psi in the likelihood.
// Without it a series that some (mu, phi) fits exactly has a density that
// grows without bound as psi goes to zero.
func (m *Model) DispersionFloor() float64 {
	return m.floor
}

// ConstantSubjects lists (0-based) the subjects whose series is constant.
// Such a series pins the subject's level and carries no information about
// its autoregression, so phi is left out of its likelihood.
func (m *Model) ConstantSubjects() []int {
	var out []int
	for i, c := range m.constant {
		if c {
			out = append(out, i)
		}
	}
	return out
}

// Dim is the number of sampled (unconstrained) parameters
func (m *Model) Dim() int {
	return m.Layout.Dim()
}
