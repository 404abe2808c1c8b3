package model

import (
	"math"
)

var halfLog2Pi = 0.5 * math.Log(2*math.Pi)

// normalLogProb is log Normal(x | mu, sigma) with its partials w.r.t. x and
// sigma
func normalLogProb(x, mu, sigma float64) (lp, dx, dsigma float64) {
	z := (x - mu) / sigma
	lp = -0.5*z*z - math.Log(sigma) - halfLog2Pi
	dx = -z / sigma
	dsigma = (z*z - 1) / sigma
	return
}

// halfCauchyLogProb is log HalfCauchy(x | 0, scale) for x >= 0 with its
// partial w.r.t. x
func halfCauchyLogProb(x, scale float64) (lp, dx float64) {
	r := x / scale
	lp = math.Log(2) - math.Log(math.Pi*scale) - math.Log1p(r*r)
	dx = -2 * x / (scale*scale + x*x)
	return
}

// LogPrior is the prior log density on the natural scale. If grad is not nil
// the partials are added to it.
func (m *Model) LogPrior(p *Params, grad *Params) (float64, error) {
	lp := 0.0

	for k := 0; k < NumEffects; k++ {
		l, dx, _ := normalLogProb(p.Gamma[k], 0, m.Priors.GammaSD)
		lp += l
		if grad != nil {
			grad.Gamma[k] += dx
		}
	}

	if !m.Layout.Hierarchical {
		return lp, nil
	}

	for k := 0; k < NumEffects; k++ {
		tau := p.Tau[k]
		if !(tau > 0) || math.IsInf(tau, 0) {
			return math.Inf(-1), domainErrorf("tau[%d] = %v must be positive and finite", k+1, tau)
		}
		l, dx := halfCauchyLogProb(tau, m.Priors.TauScale)
		lp += l
		if grad != nil {
			grad.Tau[k] += dx
		}
	}

	for i := range p.U {
		for k := 0; k < NumEffects; k++ {
			l, dx, dsigma := normalLogProb(p.U[i][k], 0, p.Tau[k])
			lp += l
			if grad != nil {
				grad.U[i][k] += dx
				grad.Tau[k] += dsigma
			}
		}
	}

	return lp, nil
}

// SubjectLogLikelihood is the exact AR(1) log likelihood of one series. The
// first observation only conditions the series: terms run over t = 2..N_obs.
// It has no dispersion floor and no special case for a constant series; the
// sampled density is Model.LogLikelihood.
func SubjectLogLikelihood(y []float64, s Subject) (float64, error) {
	if !(s.Psi > 0) || math.IsInf(s.Psi, 0) {
		return math.Inf(-1), domainErrorf("psi = %v must be positive and finite", s.Psi)
	}
	lp, _, _, _ := subjectLogLik(y, s.Mu, math.Log(s.Psi), s.Phi, 0, false)
	if math.IsNaN(lp) || math.IsInf(lp, 0) {
		return lp, domainErrorf("Non-finite likelihood %v", lp)
	}
	return lp, nil
}

// subjectLogLik returns the log likelihood of one series and its partials
// w.r.t. mu, log psi and phi. The residual variance is psi^2 + floor^2. A
// constant series is scored on its level alone: phi drops out and dPhi is 0.
func subjectLogLik(y []float64, mu, logPsi, phi, floor float64, constant bool) (lp, dMu, dLogPsi, dPhi float64) {
	if constant {
		phi = 0
	}

	psiSq := math.Exp(2 * logPsi)
	v := psiSq + floor*floor
	sumSq, sumR, sumRLag := 0.0, 0.0, 0.0
	for t := 1; t < len(y); t++ {
		lag := y[t-1] - mu
		r := y[t] - mu - phi*lag
		sumSq += r * r
		sumR += r
		sumRLag += r * lag
	}

	n := float64(len(y) - 1)
	lp = -0.5*sumSq/v - 0.5*n*math.Log(v) - n*halfLog2Pi
	dMu = (1 - phi) * sumR / v
	dLogPsi = (sumSq/v - n) * psiSq / v
	if !constant {
		dPhi = sumRLag / v
	}
	return
}

// LogLikelihood sums the AR(1) likelihood over subjects. If grad is not nil
// the partials are added to it: each subject's partials flow to both the
// fixed effect and that subject's deviation.
func (m *Model) LogLikelihood(p *Params, grad *Params) (float64, error) {
	lp := 0.0
	for i, y := range m.Data.Y {
		logPsi := p.LogPsi(i)
		if math.IsNaN(logPsi) || math.IsInf(logPsi, 0) {
			return math.Inf(-1), domainErrorf("log psi for subject %d is %v", i+1, logPsi)
		}
		s := p.SubjectAt(i)
		if math.IsInf(s.Psi, 0) {
			return math.Inf(-1), domainErrorf("psi for subject %d is %v", i+1, s.Psi)
		}

		l, dMu, dLogPsi, dPhi := subjectLogLik(y, s.Mu, logPsi, s.Phi, m.floor, m.constant[i])
		lp += l
		if grad == nil {
			continue
		}

		grad.Gamma[EffectMean] += dMu
		grad.Gamma[EffectLogDispersion] += dLogPsi
		grad.Gamma[EffectAR] += dPhi
		if m.Layout.Hierarchical {
			grad.U[i][EffectMean] += dMu
			grad.U[i][EffectLogDispersion] += dLogPsi
			grad.U[i][EffectAR] += dPhi
		}
	}

	if math.IsNaN(lp) || math.IsInf(lp, 0) {
		return lp, domainErrorf("Non-finite likelihood %v", lp)
	}
	return lp, nil
}

// LogPosterior is the unnormalized log posterior on the natural scale
func (m *Model) LogPosterior(p *Params, grad *Params) (float64, error) {
	prior, err := m.LogPrior(p, grad)
	if err != nil {
		return prior, err
	}
	like, err := m.LogLikelihood(p, grad)
	if err != nil {
		return like, err
	}

	lp := prior + like
	if math.IsNaN(lp) || math.IsInf(lp, 0) {
		return lp, domainErrorf("Non-finite log posterior %v", lp)
	}
	return lp, nil
}

// LogDensity evaluates the log posterior for a natural-scale vector in Layout
// order, writing the natural-scale gradient into grad when it is not nil.
func (m *Model) LogDensity(values []float64, grad []float64) (float64, error) {
	if len(values) != m.Dim() {
		return math.Inf(-1), domainErrorf("Expected %d values, got %d", m.Dim(), len(values))
	}

	p := m.Layout.Unpack(values)
	var g *Params
	if grad != nil {
		g = NewParams(m.Layout.NSubj)
	}

	lp, err := m.LogPosterior(p, g)
	if err != nil {
		return lp, err
	}

	if g != nil {
		m.Layout.Pack(g, grad)
	}
	return lp, nil
}
