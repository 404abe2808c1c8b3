package sampler

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/CraigKelly/dsem/rand"
)

// NUTS is the No-U-Turn sampler with multinomial selection along the
// trajectory and the generalized (momentum-sum) termination criterion. The
// trajectory doubles in a random direction until it turns back on itself,
// diverges, or reaches MaxDepth doublings.
type NUTS struct {
	ham       *hamiltonian
	MaxDepth  int
	MaxDeltaH float64
}

// NewNUTS creates a NUTS kernel for the target using the given metric
func NewNUTS(target Target, metric Metric, maxDepth int, maxDeltaH float64) (*NUTS, error) {
	if target == nil || metric == nil {
		return nil, errors.New("NUTS needs a target and a metric")
	}
	if target.Dim() != metric.Dim() {
		return nil, errors.Errorf("Target dim %d != metric dim %d", target.Dim(), metric.Dim())
	}
	if maxDepth < 1 {
		return nil, errors.Errorf("Invalid max tree depth %d", maxDepth)
	}
	if maxDeltaH <= 0 {
		maxDeltaH = 1000
	}
	return &NUTS{
		ham:       newHamiltonian(target, metric),
		MaxDepth:  maxDepth,
		MaxDeltaH: maxDeltaH,
	}, nil
}

// treeState accumulates over one transition
type treeState struct {
	eps          float64
	h0           float64
	gen          *rand.Generator
	nLeapfrog    int
	sumMetroProb float64
	divergent    bool
	err          error
}

func logSumExp(a, b float64) float64 {
	if math.IsInf(a, -1) {
		return b
	}
	if math.IsInf(b, -1) {
		return a
	}
	if a > b {
		return a + math.Log1p(math.Exp(b-a))
	}
	return b + math.Log1p(math.Exp(a-b))
}

// noUTurn is the generalized criterion: both end velocities still point
// along the summed momentum
func noUTurn(pSharpMinus, pSharpPlus, rho []float64) bool {
	return floats.Dot(pSharpPlus, rho) > 0 && floats.Dot(pSharpMinus, rho) > 0
}

func sum(a, b []float64) []float64 {
	out := make([]float64, len(a))
	floats.AddTo(out, a, b)
	return out
}

// Transition implements Kernel
func (n *NUTS) Transition(z *State, eps float64, gen *rand.Generator) (Stats, error) {
	dim := len(z.Q)
	h := n.ham

	h.metric.SampleMomentum(gen, z.P)

	t := &treeState{
		eps: eps,
		h0:  h.energy(z),
		gen: gen,
	}

	zFwd, zBck := z.Clone(), z.Clone()
	zSample, zPropose := z.Clone(), z.Clone()
	work := z.Clone()

	pSharpFwdFwd := make([]float64, dim)
	h.velocity(z.P, pSharpFwdFwd)
	pSharpFwdBck := append([]float64(nil), pSharpFwdFwd...)
	pSharpBckFwd := append([]float64(nil), pSharpFwdFwd...)
	pSharpBckBck := append([]float64(nil), pSharpFwdFwd...)

	pFwdFwd := append([]float64(nil), z.P...)
	pFwdBck := append([]float64(nil), z.P...)
	pBckFwd := append([]float64(nil), z.P...)
	pBckBck := append([]float64(nil), z.P...)

	rho := append([]float64(nil), z.P...)
	logSumWeight := 0.0 // log(exp(H0 - H0))

	depth := 0
	for depth < n.MaxDepth {
		rhoFwd := make([]float64, dim)
		rhoBck := make([]float64, dim)
		logSumWeightSubtree := math.Inf(-1)

		var valid bool
		if gen.Float64() > 0.5 {
			// Extend forward: the old trajectory becomes the backward subtree
			work.CopyFrom(zFwd)
			copy(rhoBck, rho)
			copy(pBckFwd, pFwdFwd)
			copy(pSharpBckFwd, pSharpFwdFwd)

			valid = n.buildTree(t, depth, work, zPropose,
				pSharpFwdBck, pSharpFwdFwd, rhoFwd, pFwdBck, pFwdFwd,
				1, &logSumWeightSubtree)
			zFwd.CopyFrom(work)
		} else {
			// Extend backward: the old trajectory becomes the forward subtree
			work.CopyFrom(zBck)
			copy(rhoFwd, rho)
			copy(pFwdBck, pBckBck)
			copy(pSharpFwdBck, pSharpBckBck)

			valid = n.buildTree(t, depth, work, zPropose,
				pSharpBckFwd, pSharpBckBck, rhoBck, pBckFwd, pBckBck,
				-1, &logSumWeightSubtree)
			zBck.CopyFrom(work)
		}

		if t.err != nil {
			return Stats{}, t.err
		}
		if !valid {
			break
		}
		depth++

		// Biased progressive sampling favours the new subtree
		if logSumWeightSubtree > logSumWeight {
			zSample.CopyFrom(zPropose)
		} else if gen.Float64() < math.Exp(logSumWeightSubtree-logSumWeight) {
			zSample.CopyFrom(zPropose)
		}
		logSumWeight = logSumExp(logSumWeight, logSumWeightSubtree)

		rho = sum(rhoBck, rhoFwd)

		// Around the merged trajectory and across the seam between subtrees
		persist := noUTurn(pSharpBckBck, pSharpFwdFwd, rho)
		persist = persist && noUTurn(pSharpBckBck, pSharpFwdBck, sum(rhoBck, pFwdBck))
		persist = persist && noUTurn(pSharpBckFwd, pSharpFwdFwd, sum(rhoFwd, pBckFwd))
		if !persist {
			break
		}
	}

	z.CopyFrom(zSample)

	accept := 0.0
	if t.nLeapfrog > 0 {
		accept = t.sumMetroProb / float64(t.nLeapfrog)
	}

	return Stats{
		AcceptStat:  accept,
		StepSize:    eps,
		TreeDepth:   depth,
		NumLeapfrog: t.nLeapfrog,
		Divergent:   t.divergent,
		Energy:      h.energy(z),
		LogP:        z.LogP,
	}, nil
}

// buildTree extends the trajectory from z by 2^depth leapfrog steps in the
// direction sign. It returns false when the subtree diverged or turned.
func (n *NUTS) buildTree(t *treeState, depth int, z *State, zPropose *State,
	pSharpBeg, pSharpEnd, rho, pBeg, pEnd []float64,
	sign float64, logSumWeight *float64) bool {

	h := n.ham

	if depth == 0 {
		err := h.leapfrog(z, sign*t.eps)
		t.nLeapfrog++

		energy := math.Inf(1)
		if err == nil {
			energy = h.energy(z)
		} else if fatal(err) {
			t.err = errors.Wrap(err, "Leapfrog step failed")
			return false
		}

		if err != nil || energy-t.h0 > n.MaxDeltaH {
			t.divergent = true
		}

		*logSumWeight = logSumExp(*logSumWeight, t.h0-energy)
		if t.h0-energy > 0 {
			t.sumMetroProb++
		} else {
			t.sumMetroProb += math.Exp(t.h0 - energy)
		}

		zPropose.CopyFrom(z)
		h.velocity(z.P, pSharpBeg)
		copy(pSharpEnd, pSharpBeg)
		floats.Add(rho, z.P)
		copy(pBeg, z.P)
		copy(pEnd, z.P)

		return !t.divergent
	}

	dim := len(z.Q)

	// Initial subtree
	logSumWeightInit := math.Inf(-1)
	pInitEnd := make([]float64, dim)
	pSharpInitEnd := make([]float64, dim)
	rhoInit := make([]float64, dim)

	if !n.buildTree(t, depth-1, z, zPropose,
		pSharpBeg, pSharpInitEnd, rhoInit, pBeg, pInitEnd,
		sign, &logSumWeightInit) {
		return false
	}

	// Final subtree
	zProposeFinal := z.Clone()
	logSumWeightFinal := math.Inf(-1)
	pFinalBeg := make([]float64, dim)
	pSharpFinalBeg := make([]float64, dim)
	rhoFinal := make([]float64, dim)

	if !n.buildTree(t, depth-1, z, zProposeFinal,
		pSharpFinalBeg, pSharpEnd, rhoFinal, pFinalBeg, pEnd,
		sign, &logSumWeightFinal) {
		return false
	}

	// Multinomial sample from the right subtree
	logSumWeightSubtree := logSumExp(logSumWeightInit, logSumWeightFinal)
	*logSumWeight = logSumExp(*logSumWeight, logSumWeightSubtree)

	if logSumWeightFinal > logSumWeightSubtree {
		zPropose.CopyFrom(zProposeFinal)
	} else if t.gen.Float64() < math.Exp(logSumWeightFinal-logSumWeightSubtree) {
		zPropose.CopyFrom(zProposeFinal)
	}

	rhoSubtree := sum(rhoInit, rhoFinal)
	floats.Add(rho, rhoSubtree)

	persist := noUTurn(pSharpBeg, pSharpEnd, rhoSubtree)
	persist = persist && noUTurn(pSharpBeg, pSharpFinalBeg, sum(rhoInit, pFinalBeg))
	persist = persist && noUTurn(pSharpInitEnd, pSharpEnd, sum(rhoFinal, pInitEnd))
	return persist
}
