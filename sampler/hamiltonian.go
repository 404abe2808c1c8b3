package sampler

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/CraigKelly/dsem/posterior"
	"github.com/CraigKelly/dsem/rand"
)

// hamiltonian couples a target with a metric and integrates the dynamics
type hamiltonian struct {
	target Target
	metric Metric
	vel    []float64 // scratch, so a hamiltonian belongs to one chain
}

func newHamiltonian(target Target, metric Metric) *hamiltonian {
	return &hamiltonian{
		target: target,
		metric: metric,
		vel:    make([]float64, target.Dim()),
	}
}

// energy is the potential (-log density) plus kinetic energy
func (h *hamiltonian) energy(z *State) float64 {
	e := -z.LogP + h.metric.Kinetic(z.P)
	if math.IsNaN(e) {
		return math.Inf(1)
	}
	return e
}

// velocity writes dK/dp into dst
func (h *hamiltonian) velocity(p []float64, dst []float64) {
	h.metric.Velocity(p, dst)
}

// init evaluates the density and gradient at z.Q
func (h *hamiltonian) init(z *State) error {
	lp, err := h.target.Evaluate(z.Q, z.Grad)
	z.LogP = lp
	return err
}

// leapfrog takes one symplectic step of size eps. On error z is left
// part-way through the step with LogP = -Inf.
func (h *hamiltonian) leapfrog(z *State, eps float64) error {
	floats.AddScaled(z.P, 0.5*eps, z.Grad)
	h.metric.Velocity(z.P, h.vel)
	floats.AddScaled(z.Q, eps, h.vel)

	if err := h.init(z); err != nil {
		z.LogP = math.Inf(-1)
		return err
	}

	floats.AddScaled(z.P, 0.5*eps, z.Grad)
	return nil
}

// findStepSize doubles or halves eps until the acceptance probability of a
// single leapfrog step from z crosses 0.8. z is not modified.
func (h *hamiltonian) findStepSize(z *State, eps float64, gen *rand.Generator) (float64, error) {
	if eps <= 0 || eps > 1e7 || math.IsNaN(eps) {
		return eps, nil
	}

	work := z.Clone()
	logTarget := math.Log(0.8)

	var failed error
	step := func() float64 {
		work.CopyFrom(z)
		h.metric.SampleMomentum(gen, work.P)
		h0 := h.energy(work)
		if err := h.leapfrog(work, eps); err != nil {
			if fatal(err) {
				failed = err
			}
			return math.Inf(-1)
		}
		return h0 - h.energy(work)
	}

	direction := -1
	if step() > logTarget {
		direction = 1
	}
	if failed != nil {
		return eps, errors.Wrap(failed, "Step size search failed")
	}

	for i := 0; i < 100; i++ {
		delta := step()
		if failed != nil {
			return eps, errors.Wrap(failed, "Step size search failed")
		}
		if direction == 1 && !(delta > logTarget) {
			break
		}
		if direction == -1 && !(delta < logTarget) {
			break
		}

		if direction == 1 {
			eps *= 2
		} else {
			eps *= 0.5
		}

		if eps > 1e7 {
			return eps, errors.New("Step size search diverged: posterior may be improper")
		}
		if eps < 1e-300 {
			return eps, errors.New("Step size search collapsed to zero: density or gradient not finite near the current point")
		}
	}

	return eps, nil
}

// fatal separates numerical trouble (a divergence) from real failures
func fatal(err error) bool {
	return err != nil && !posterior.IsNumerical(err)
}
