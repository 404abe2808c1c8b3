package diagnostics

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Summary describes the posterior of one parameter over all chains
type Summary struct {
	Name    string  `json:"name"`
	Mean    float64 `json:"mean"`
	SD      float64 `json:"sd"`
	Q5      float64 `json:"q5"`
	Q50     float64 `json:"q50"`
	Q95     float64 `json:"q95"`
	RHat    float64 `json:"r_hat"`
	ESS     float64 `json:"ess"` // bulk
	ESSTail float64 `json:"ess_tail"`
	MCSE    float64 `json:"mcse"`
}

func quantile(x []float64, p float64) float64 {
	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)
	return stat.Quantile(p, stat.LinInterp, sorted, nil)
}

// Summarize computes the summary of one parameter from its per-chain draws
func Summarize(name string, chains [][]float64) Summary {
	var pooled []float64
	for _, c := range chains {
		pooled = append(pooled, c...)
	}

	s := Summary{Name: name}
	if len(pooled) == 0 {
		s.Mean, s.SD = math.NaN(), math.NaN()
		s.Q5, s.Q50, s.Q95 = math.NaN(), math.NaN(), math.NaN()
		s.RHat, s.ESS, s.ESSTail, s.MCSE = math.NaN(), math.NaN(), math.NaN(), math.NaN()
		return s
	}

	s.Mean, s.SD = stat.MeanStdDev(pooled, nil)
	sorted := append([]float64(nil), pooled...)
	sort.Float64s(sorted)
	s.Q5 = stat.Quantile(0.05, stat.LinInterp, sorted, nil)
	s.Q50 = stat.Quantile(0.5, stat.LinInterp, sorted, nil)
	s.Q95 = stat.Quantile(0.95, stat.LinInterp, sorted, nil)

	s.RHat = RankRHat(chains)
	s.ESS = BulkESS(chains)
	s.ESSTail = TailESS(chains)
	s.MCSE = MCSE(chains)
	return s
}

// MCSE is the Monte Carlo standard error of the posterior mean
func MCSE(chains [][]float64) float64 {
	var pooled []float64
	for _, c := range chains {
		pooled = append(pooled, c...)
	}
	if len(pooled) < 2 {
		return math.NaN()
	}
	return stat.StdDev(pooled, nil) / math.Sqrt(SplitESS(chains))
}

// Header is the column line matching Summary.String
func Header() string {
	return fmt.Sprintf("%-12s %10s %10s %10s %10s %10s %8s %8s %10s",
		"param", "mean", "sd", "5%", "50%", "95%", "r_hat", "ess", "mcse")
}

func (s Summary) String() string {
	return fmt.Sprintf("%-12s %10.4f %10.4f %10.4f %10.4f %10.4f %8.3f %8.0f %10.4f",
		s.Name, s.Mean, s.SD, s.Q5, s.Q50, s.Q95, s.RHat, s.ESS, s.MCSE)
}
