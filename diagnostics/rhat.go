package diagnostics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// RHat is the potential scale reduction of equal-length chains: the ratio of
// the pooled variance estimate to the mean within-chain variance. It is NaN
// for fewer than 2 chains or 2 draws, or when every chain is constant.
func RHat(chains [][]float64) float64 {
	m := len(chains)
	if m < 2 {
		return math.NaN()
	}
	n := len(chains[0])
	if n < 2 {
		return math.NaN()
	}

	means := make([]float64, m)
	vars := make([]float64, m)
	for i, c := range chains {
		if len(c) != n {
			return math.NaN()
		}
		means[i], vars[i] = stat.MeanVariance(c, nil)
	}

	fn := float64(n)
	between := fn * stat.Variance(means, nil)
	within := stat.Mean(vars, nil)
	if !(within > 0) {
		return math.NaN()
	}
	return math.Sqrt((between/within + fn - 1) / fn)
}

// SplitRHat is RHat on each chain's two halves, which also catches a single
// chain that has not settled
func SplitRHat(chains [][]float64) float64 {
	return RHat(splitChains(chains))
}

// RankNormalize replaces every draw by the normal score of its rank in the
// pooled sample, with ties sharing their average rank. The result has the
// same shape as chains.
func RankNormalize(chains [][]float64) [][]float64 {
	var pooled []float64
	for _, c := range chains {
		pooled = append(pooled, c...)
	}
	total := len(pooled)

	inds := make([]int, total)
	sorted := append([]float64(nil), pooled...)
	floats.Argsort(sorted, inds)

	ranks := make([]float64, total)
	for i := 0; i < total; {
		j := i
		for j+1 < total && sorted[j+1] == sorted[i] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[inds[k]] = avg
		}
		i = j + 1
	}

	out := make([][]float64, len(chains))
	pos := 0
	ft := float64(total)
	for c, chain := range chains {
		out[c] = make([]float64, len(chain))
		for i := range chain {
			out[c][i] = distuv.UnitNormal.Quantile((ranks[pos] - 0.375) / (ft + 0.25))
			pos++
		}
	}
	return out
}

// fold maps each draw to its absolute distance from the pooled median
func fold(chains [][]float64) [][]float64 {
	var pooled []float64
	for _, c := range chains {
		pooled = append(pooled, c...)
	}
	median := quantile(pooled, 0.5)

	out := make([][]float64, len(chains))
	for c, chain := range chains {
		out[c] = make([]float64, len(chain))
		for i, v := range chain {
			out[c][i] = math.Abs(v - median)
		}
	}
	return out
}

// RankRHat is the rank-normalized split R-hat: the larger of the bulk value
// (on rank-normalized draws) and the tail value (on rank-normalized folded
// draws). It is robust to heavy tails and to chains differing only in scale.
func RankRHat(chains [][]float64) float64 {
	bulk := SplitRHat(RankNormalize(chains))
	tail := SplitRHat(RankNormalize(fold(chains)))
	if math.IsNaN(bulk) || math.IsNaN(tail) {
		return math.NaN()
	}
	return math.Max(bulk, tail)
}

// BulkESS is the split ESS of the rank-normalized draws
func BulkESS(chains [][]float64) float64 {
	return SplitESS(RankNormalize(chains))
}

// TailESS is the smaller split ESS of the indicators for the 5% and 95%
// quantiles
func TailESS(chains [][]float64) float64 {
	var pooled []float64
	for _, c := range chains {
		pooled = append(pooled, c...)
	}

	ess := math.Inf(1)
	for _, p := range []float64{0.05, 0.95} {
		q := quantile(pooled, p)
		ind := make([][]float64, len(chains))
		for c, chain := range chains {
			ind[c] = make([]float64, len(chain))
			for i, v := range chain {
				if v <= q {
					ind[c][i] = 1
				}
			}
		}
		ess = math.Min(ess, SplitESS(ind))
	}
	return ess
}
