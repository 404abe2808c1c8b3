package diagnostics

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/CraigKelly/dsem/model"
)

// RecoveryResult compares one generating value with its posterior
type RecoveryResult struct {
	Name    string
	Truth   float64
	Mean    float64
	SD      float64
	Z       float64 // (mean - truth) / sd
	Covered bool    // truth inside the 90% interval
}

func (r RecoveryResult) String() string {
	mark := "ok"
	if !r.Covered {
		mark = "MISS"
	}
	return fmt.Sprintf("%-12s truth %9.4f mean %9.4f sd %8.4f z %7.2f %s", r.Name, r.Truth, r.Mean, r.SD, r.Z, mark)
}

// Recovery scores the fixed effects (and random-effect scales when the
// model has them) of a fit against the values the data were simulated from
func Recovery(fit *Fit, truth model.Truth) ([]RecoveryResult, error) {
	if fit == nil || len(fit.Draws) == 0 {
		return nil, errors.New("No draws to score")
	}
	if err := truth.Check(); err != nil {
		return nil, err
	}

	score := func(name string, value float64) (RecoveryResult, error) {
		s, err := fit.Summary(name)
		if err != nil {
			return RecoveryResult{}, err
		}
		return RecoveryResult{
			Name:    name,
			Truth:   value,
			Mean:    s.Mean,
			SD:      s.SD,
			Z:       (s.Mean - value) / s.SD,
			Covered: value >= s.Q5 && value <= s.Q95,
		}, nil
	}

	var results []RecoveryResult
	for k := 0; k < model.NumEffects; k++ {
		r, err := score(fit.Names[fit.layout.GammaIndex(k)], truth.Gamma[k])
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}

	if !fit.layout.Hierarchical {
		return results, nil
	}
	for k := 0; k < model.NumEffects; k++ {
		r, err := score(fit.Names[fit.layout.TauIndex(k)], truth.Tau[k])
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}
