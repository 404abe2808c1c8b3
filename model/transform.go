package model

import (
	"fmt"
	"math"
)

// Transform is a bijection between the unconstrained scale the sampler moves
// on and the natural scale the model is written on.
type Transform interface {
	Constrain(x float64) float64
	Unconstrain(v float64) (float64, error)
	Deriv(x float64) float64        // dv/dx
	LogJacobian(x float64) float64  // log |dv/dx|
	DLogJacobian(x float64) float64 // d/dx log |dv/dx|
	String() string
}

// Identity leaves a parameter unbounded
type Identity struct{}

// Constrain implements Transform
func (Identity) Constrain(x float64) float64 { return x }

// Unconstrain implements Transform
func (Identity) Unconstrain(v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, domainErrorf("Value %v is not finite", v)
	}
	return v, nil
}

// Deriv implements Transform
func (Identity) Deriv(x float64) float64 { return 1 }

// LogJacobian implements Transform
func (Identity) LogJacobian(x float64) float64 { return 0 }

// DLogJacobian implements Transform
func (Identity) DLogJacobian(x float64) float64 { return 0 }

func (Identity) String() string { return "identity" }

// LowerBound maps the real line onto (Bound, inf) with v = Bound + exp(x)
type LowerBound struct {
	Bound float64
}

// Constrain implements Transform
func (b LowerBound) Constrain(x float64) float64 { return b.Bound + math.Exp(x) }

// Unconstrain implements Transform
func (b LowerBound) Unconstrain(v float64) (float64, error) {
	if !(v > b.Bound) || math.IsInf(v, 0) {
		return 0, domainErrorf("Value %v must be finite and > %v", v, b.Bound)
	}
	return math.Log(v - b.Bound), nil
}

// Deriv implements Transform
func (b LowerBound) Deriv(x float64) float64 { return math.Exp(x) }

// LogJacobian implements Transform
func (b LowerBound) LogJacobian(x float64) float64 { return x }

// DLogJacobian implements Transform
func (b LowerBound) DLogJacobian(x float64) float64 { return 1 }

func (b LowerBound) String() string { return fmt.Sprintf("lower=%g", b.Bound) }
