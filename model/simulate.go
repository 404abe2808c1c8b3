package model

import (
	"encoding/json"
	"math"
	"os"

	"github.com/pkg/errors"
)

// Truth holds generating values for simulated data
type Truth struct {
	Gamma [NumEffects]float64 `json:"gamma"`
	Tau   [NumEffects]float64 `json:"tau"`
}

// Check returns an error if the generating values are unusable
func (t Truth) Check() error {
	for k, v := range t.Gamma {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return domainErrorf("gamma[%d] = %v is not finite", k+1, v)
		}
	}
	for k, v := range t.Tau {
		if !(v >= 0) || math.IsInf(v, 0) {
			return domainErrorf("tau[%d] = %v must be finite and >= 0", k+1, v)
		}
	}
	return nil
}

// NewTruthFromFile reads generating values written by WriteFile
func NewTruthFromFile(filename string) (*Truth, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "Could not READ truth from %s", filename)
	}
	t := &Truth{}
	if err := json.Unmarshal(data, t); err != nil {
		return nil, errors.Wrapf(err, "Could not PARSE truth from %s", filename)
	}
	return t, t.Check()
}

// WriteFile saves the generating values as JSON
func (t Truth) WriteFile(filename string) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return errors.Wrap(err, "Could not encode truth")
	}
	return errors.Wrapf(os.WriteFile(filename, data, 0644), "Could not WRITE truth to %s", filename)
}

// Normaler is the random source simulation needs
type Normaler interface {
	NormFloat64() float64
}

// Simulate draws a dataset from the generative model. Each subject's first
// observation comes from the stationary marginal when |phi| < 1, otherwise
// from Normal(mu, psi). The drawn per-subject deviations are returned with
// the data.
func Simulate(gen Normaler, truth Truth, nSubj int, nObs int) (*Dataset, *Params, error) {
	if err := truth.Check(); err != nil {
		return nil, nil, err
	}
	if nSubj < 1 || nObs < 2 {
		return nil, nil, domainErrorf("Cannot simulate %d subjects x %d observations", nSubj, nObs)
	}

	p := NewParams(nSubj)
	p.Gamma = truth.Gamma
	p.Tau = truth.Tau

	y := make([][]float64, nSubj)
	for i := 0; i < nSubj; i++ {
		for k := 0; k < NumEffects; k++ {
			p.U[i][k] = truth.Tau[k] * gen.NormFloat64()
		}
		s := p.SubjectAt(i)

		row := make([]float64, nObs)
		sd0 := s.Psi
		if math.Abs(s.Phi) < 1 {
			sd0 = s.Psi / math.Sqrt(1-s.Phi*s.Phi)
		}
		row[0] = s.Mu + sd0*gen.NormFloat64()
		for t := 1; t < nObs; t++ {
			row[t] = s.Mu + s.Phi*(row[t-1]-s.Mu) + s.Psi*gen.NormFloat64()
		}
		y[i] = row
	}

	d, err := NewDataset(nSubj, nObs, y)
	if err != nil {
		return nil, nil, errors.Wrap(err, "Simulated data is invalid")
	}
	return d, p, nil
}
