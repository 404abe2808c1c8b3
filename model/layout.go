package model

import (
	"fmt"

	"github.com/pkg/errors"
)

// NumEffects counts the fixed effects (and random-effect scales): mean, log dispersion,
// autoregression.
const NumEffects = 3

// Effect indexes into a fixed-effect or deviation triple
const (
	EffectMean = iota
	EffectLogDispersion
	EffectAR
)

// Param is one slot of the flat parameter vector
type Param struct {
	Index     int       // Position in the flat vector
	Name      string    // 1-based name such as gamma[2] or u[4][3]
	Transform Transform // Map from unconstrained to natural scale
}

// Layout declares the flat parameter vector for a given number of subjects.
// For N_subj > 1 it holds 3 + 3 + 3*N_subj values: gamma (3), tau (3, log
// scale) then one deviation triple per subject. For N_subj = 1 it holds only
// the 3 gamma values, not 3 + 3 + 3: tau and u are not identifiable from a
// single series, so the subject's mu, psi and phi are the fixed effects.
type Layout struct {
	NSubj        int
	Hierarchical bool
	Params       []Param
}

// NewLayout builds the layout for nSubj subjects
func NewLayout(nSubj int) (*Layout, error) {
	if nSubj < 1 {
		return nil, errors.Errorf("Layout needs at least one subject, got %d", nSubj)
	}

	l := &Layout{
		NSubj:        nSubj,
		Hierarchical: nSubj > 1,
	}

	add := func(name string, tr Transform) {
		l.Params = append(l.Params, Param{Index: len(l.Params), Name: name, Transform: tr})
	}

	for k := 0; k < NumEffects; k++ {
		add(fmt.Sprintf("gamma[%d]", k+1), Identity{})
	}
	if !l.Hierarchical {
		return l, nil
	}

	for k := 0; k < NumEffects; k++ {
		add(fmt.Sprintf("tau[%d]", k+1), LowerBound{Bound: 0})
	}
	for i := 0; i < nSubj; i++ {
		for k := 0; k < NumEffects; k++ {
			add(fmt.Sprintf("u[%d][%d]", i+1, k+1), Identity{})
		}
	}

	return l, nil
}

// Dim is the unconstrained parameter count
func (l *Layout) Dim() int {
	return len(l.Params)
}

// Names returns the parameter names in vector order
func (l *Layout) Names() []string {
	names := make([]string, len(l.Params))
	for i, p := range l.Params {
		names[i] = p.Name
	}
	return names
}

// IndexOf returns the vector position of a named parameter or -1
func (l *Layout) IndexOf(name string) int {
	for _, p := range l.Params {
		if p.Name == name {
			return p.Index
		}
	}
	return -1
}

// GammaIndex is the position of fixed effect k
func (l *Layout) GammaIndex(k int) int {
	return k
}

// TauIndex is the position of random-effect scale k, or -1 without random
// effects
func (l *Layout) TauIndex(k int) int {
	if !l.Hierarchical {
		return -1
	}
	return NumEffects + k
}

// UIndex is the position of deviation k for subject i, or -1 without random
// effects
func (l *Layout) UIndex(i, k int) int {
	if !l.Hierarchical {
		return -1
	}
	return 2*NumEffects + NumEffects*i + k
}

// Constrain maps an unconstrained vector to the natural scale
func (l *Layout) Constrain(theta []float64, dst []float64) []float64 {
	if cap(dst) < len(theta) {
		dst = make([]float64, len(theta))
	}
	dst = dst[:len(theta)]
	for i, p := range l.Params {
		dst[i] = p.Transform.Constrain(theta[i])
	}
	return dst
}

// Unconstrain maps natural-scale values back to the sampler's scale
func (l *Layout) Unconstrain(values []float64) ([]float64, error) {
	if len(values) != l.Dim() {
		return nil, errors.Errorf("Expected %d values, got %d", l.Dim(), len(values))
	}
	theta := make([]float64, len(values))
	for i, p := range l.Params {
		x, err := p.Transform.Unconstrain(values[i])
		if err != nil {
			return nil, errors.Wrapf(err, "Cannot unconstrain %s", p.Name)
		}
		theta[i] = x
	}
	return theta, nil
}

// Unpack reads natural-scale values into a Params record
func (l *Layout) Unpack(values []float64) *Params {
	p := NewParams(l.NSubj)
	copy(p.Gamma[:], values[:NumEffects])
	if !l.Hierarchical {
		return p
	}
	copy(p.Tau[:], values[NumEffects:2*NumEffects])
	for i := range p.U {
		off := l.UIndex(i, 0)
		copy(p.U[i][:], values[off:off+NumEffects])
	}
	return p
}

// Pack writes a Params record as a natural-scale vector. Random effects are
// dropped for a non-hierarchical layout.
func (l *Layout) Pack(p *Params, dst []float64) []float64 {
	if cap(dst) < l.Dim() {
		dst = make([]float64, l.Dim())
	}
	dst = dst[:l.Dim()]
	copy(dst, p.Gamma[:])
	if !l.Hierarchical {
		return dst
	}
	copy(dst[NumEffects:], p.Tau[:])
	for i := range p.U {
		copy(dst[l.UIndex(i, 0):], p.U[i][:])
	}
	return dst
}
