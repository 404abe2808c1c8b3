package sampler

import (
	"math"

	"github.com/pkg/errors"

	"github.com/CraigKelly/dsem/rand"
)

// StaticHMC integrates a fixed number of leapfrog steps and applies a
// Metropolis correction to the end point.
type StaticHMC struct {
	ham       *hamiltonian
	Steps     int
	MaxDeltaH float64
	proposal  *State
}

// NewStaticHMC creates a fixed-length HMC kernel
func NewStaticHMC(target Target, metric Metric, steps int, maxDeltaH float64) (*StaticHMC, error) {
	if target == nil || metric == nil {
		return nil, errors.New("HMC needs a target and a metric")
	}
	if target.Dim() != metric.Dim() {
		return nil, errors.Errorf("Target dim %d != metric dim %d", target.Dim(), metric.Dim())
	}
	if steps < 1 {
		return nil, errors.Errorf("Invalid leapfrog step count %d", steps)
	}
	if maxDeltaH <= 0 {
		maxDeltaH = 1000
	}
	return &StaticHMC{
		ham:       newHamiltonian(target, metric),
		Steps:     steps,
		MaxDeltaH: maxDeltaH,
		proposal:  NewState(target.Dim()),
	}, nil
}

// Transition implements Kernel
func (s *StaticHMC) Transition(z *State, eps float64, gen *rand.Generator) (Stats, error) {
	h := s.ham
	h.metric.SampleMomentum(gen, z.P)
	h0 := h.energy(z)

	prop := s.proposal
	prop.CopyFrom(z)

	st := Stats{StepSize: eps}
	for i := 0; i < s.Steps; i++ {
		st.NumLeapfrog++
		if err := h.leapfrog(prop, eps); err != nil {
			if fatal(err) {
				return st, errors.Wrap(err, "Leapfrog step failed")
			}
			st.Divergent = true
			break
		}
	}

	if !st.Divergent {
		delta := h0 - h.energy(prop)
		if -delta > s.MaxDeltaH {
			st.Divergent = true
		} else {
			st.AcceptStat = math.Min(1, math.Exp(delta))
			if gen.Float64() < st.AcceptStat {
				z.CopyFrom(prop)
			}
		}
	}

	st.Energy = h.energy(z)
	st.LogP = z.LogP
	return st, nil
}
