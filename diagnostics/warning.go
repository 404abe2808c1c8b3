package diagnostics

import (
	"fmt"
	"math"
)

// Kinds of ConvergenceWarning
const (
	WarnRHat       = "r_hat"
	WarnESS        = "ess"
	WarnDivergence = "divergence"
	WarnCancelled  = "cancelled"
)

// ConvergenceWarning flags draws that should not be trusted as they are. It
// is attached to a Fit, never returned as an error: the caller decides
// whether to keep the draws.
type ConvergenceWarning struct {
	Kind      string  `json:"kind"`
	Param     string  `json:"param,omitempty"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
}

func (w ConvergenceWarning) String() string {
	switch w.Kind {
	case WarnRHat:
		return fmt.Sprintf("%s: r_hat %.3f exceeds %.3f, chains have not mixed", w.Param, w.Value, w.Threshold)
	case WarnESS:
		return fmt.Sprintf("%s: ess %.0f below %.0f, increase sampling_iterations", w.Param, w.Value, w.Threshold)
	case WarnDivergence:
		return fmt.Sprintf("%.0f divergent transitions after warmup", w.Value)
	case WarnCancelled:
		return fmt.Sprintf("run cancelled: %.0f of %.0f chains completed", w.Value, w.Threshold)
	}
	return fmt.Sprintf("%s %s: %v (threshold %v)", w.Kind, w.Param, w.Value, w.Threshold)
}

// Check returns the warnings for one summary. NaN statistics (constant or
// too few draws) are reported as failures.
func Check(s Summary, rhatThreshold float64, minESS float64) []ConvergenceWarning {
	var warns []ConvergenceWarning
	if math.IsNaN(s.RHat) || s.RHat > rhatThreshold {
		warns = append(warns, ConvergenceWarning{Kind: WarnRHat, Param: s.Name, Value: s.RHat, Threshold: rhatThreshold})
	}
	if math.IsNaN(s.ESS) || s.ESS < minESS {
		warns = append(warns, ConvergenceWarning{Kind: WarnESS, Param: s.Name, Value: s.ESS, Threshold: minESS})
	}
	return warns
}
