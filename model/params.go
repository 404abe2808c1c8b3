package model

import "math"

// Params is the natural-scale parameter record. It is also used to hold
// gradients with the same shape.
type Params struct {
	Gamma [NumEffects]float64   // population mean, log dispersion, autoregression
	Tau   [NumEffects]float64   // random-effect standard deviations
	U     [][NumEffects]float64 // per-subject deviations
}

// NewParams returns zeroed parameters for nSubj subjects
func NewParams(nSubj int) *Params {
	return &Params{
		U: make([][NumEffects]float64, nSubj),
	}
}

// Subject holds the derived per-subject quantities
type Subject struct {
	Mu  float64 // mean
	Psi float64 // residual standard deviation, always > 0
	Phi float64 // autoregression coefficient
}

// LogPsi is the linear predictor behind Psi
func (p *Params) LogPsi(i int) float64 {
	return p.Gamma[EffectLogDispersion] + p.U[i][EffectLogDispersion]
}

// SubjectAt derives mu, psi and phi for subject i
func (p *Params) SubjectAt(i int) Subject {
	return Subject{
		Mu:  p.Gamma[EffectMean] + p.U[i][EffectMean],
		Psi: math.Exp(p.LogPsi(i)),
		Phi: p.Gamma[EffectAR] + p.U[i][EffectAR],
	}
}

// Subjects derives every subject's quantities
func (p *Params) Subjects() []Subject {
	subs := make([]Subject, len(p.U))
	for i := range p.U {
		subs[i] = p.SubjectAt(i)
	}
	return subs
}
