package sampler

import (
	"github.com/CraigKelly/dsem/rand"
)

// A Target is a log density on an unbounded space together with its
// gradient. Evaluate must be safe for concurrent use and should report a
// non-finite density as a posterior.NumericalError.
type Target interface {
	Dim() int
	Evaluate(theta []float64, grad []float64) (float64, error)
}

// A Kernel is a Markov transition that leaves the target invariant. It
// updates z in place and reports statistics for the move.
type Kernel interface {
	Transition(z *State, eps float64, gen *rand.Generator) (Stats, error)
}

// Stats describes one transition
type Stats struct {
	AcceptStat  float64 // mean Metropolis acceptance over the trajectory
	StepSize    float64 // integrator step size used
	TreeDepth   int     // NUTS doubling count (0 for static HMC)
	NumLeapfrog int     // leapfrog steps taken
	Divergent   bool    // trajectory hit a numerical problem or energy blow-up
	Energy      float64 // Hamiltonian at the returned state
	LogP        float64 // log density at the returned state
}

// State is a point in phase space: position, momentum, the gradient of the
// log density at the position, and the log density itself.
type State struct {
	Q    []float64
	P    []float64
	Grad []float64
	LogP float64
}

// NewState allocates a zero state of the given dimension
func NewState(dim int) *State {
	return &State{
		Q:    make([]float64, dim),
		P:    make([]float64, dim),
		Grad: make([]float64, dim),
	}
}

// Clone returns a deep copy
func (s *State) Clone() *State {
	cp := NewState(len(s.Q))
	cp.CopyFrom(s)
	return cp
}

// CopyFrom overwrites s with o without allocating
func (s *State) CopyFrom(o *State) {
	copy(s.Q, o.Q)
	copy(s.P, o.P)
	copy(s.Grad, o.Grad)
	s.LogP = o.LogP
}
