package diagnostics

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// ESS is the effective sample size of equal-length chains, combining
// within-chain autocorrelation with between-chain variance and truncating
// the autocorrelation sum with Geyer's initial monotone sequence. It returns
// NaN when there are fewer than 4 draws per chain or the draws are constant.
func ESS(chains [][]float64) float64 {
	m := len(chains)
	if m == 0 {
		return math.NaN()
	}
	n := len(chains[0])
	if n < 4 {
		return math.NaN()
	}
	for _, c := range chains {
		if len(c) != n {
			return math.NaN()
		}
	}

	acov := make([][]float64, m)
	means := make([]float64, m)
	meanVar := 0.0
	fn := float64(n)
	for i, c := range chains {
		acov[i] = Autocovariance(c)
		means[i] = stat.Mean(c, nil)
		meanVar += acov[i][0] * fn / (fn - 1)
	}
	meanVar /= float64(m)

	varPlus := meanVar * (fn - 1) / fn
	if m > 1 {
		varPlus += stat.Variance(means, nil)
	}
	if !(varPlus > 0) || math.IsInf(varPlus, 0) {
		return math.NaN()
	}

	lagRho := func(t int) float64 {
		s := 0.0
		for i := range acov {
			s += acov[i][t]
		}
		s /= float64(m)
		return 1 - (meanVar-s)/varPlus
	}

	rho := make([]float64, n)
	rho[0] = 1
	rhoEven, rhoOdd := 1.0, lagRho(1)
	rho[1] = rhoOdd

	// Sum autocorrelation pairs while they stay positive
	t := 1
	for t < n-4 && rhoEven+rhoOdd > 0 {
		rhoEven = lagRho(t + 1)
		rhoOdd = lagRho(t + 2)
		if rhoEven+rhoOdd >= 0 {
			rho[t+1] = rhoEven
			rho[t+2] = rhoOdd
		}
		t += 2
	}
	maxT := t
	if rhoEven > 0 {
		rho[maxT+1] = rhoEven
	}

	// Force the pair sums to be monotone
	for t := 1; t <= maxT-3; t += 2 {
		if rho[t+1]+rho[t+2] > rho[t-1]+rho[t] {
			rho[t+1] = (rho[t-1] + rho[t]) / 2
			rho[t+2] = rho[t+1]
		}
	}

	total := float64(m) * fn
	tau := -1 + rho[maxT+1]
	for _, r := range rho[:maxT] {
		tau += 2 * r
	}
	tau = math.Max(tau, 1/math.Log10(total))
	return total / tau
}

// SplitESS is ESS computed on each chain's two halves
func SplitESS(chains [][]float64) float64 {
	return ESS(splitChains(chains))
}

// splitChains halves every chain, dropping the middle draw of odd lengths
func splitChains(chains [][]float64) [][]float64 {
	out := make([][]float64, 0, 2*len(chains))
	for _, c := range chains {
		half := len(c) / 2
		out = append(out, c[:half], c[len(c)-half:])
	}
	return out
}
