// Package diagnostics turns the draws of several chains into posterior
// summaries and convergence checks, and runs the chains in the first place.
package diagnostics

import (
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
)

// Autocovariance returns the biased autocovariance of x at lags 0..n-1,
// computed with a zero-padded FFT
func Autocovariance(x []float64) []float64 {
	n := len(x)
	if n == 0 {
		return nil
	}

	mean := stat.Mean(x, nil)
	padded := make([]float64, 2*n)
	for i, v := range x {
		padded[i] = v - mean
	}

	fft := fourier.NewFFT(len(padded))
	coeff := fft.Coefficients(nil, padded)
	for i, c := range coeff {
		coeff[i] = complex(real(c*cmplx.Conj(c)), 0)
	}
	seq := fft.Sequence(nil, coeff)

	acov := make([]float64, n)
	if seq[0] == 0 {
		return acov
	}

	// Scale so lag 0 is the biased variance; this also absorbs the
	// normalization of the inverse transform
	variance := 0.0
	for _, v := range padded[:n] {
		variance += v * v
	}
	variance /= float64(n)

	for t := range acov {
		acov[t] = seq[t] / seq[0] * variance
	}
	return acov
}
