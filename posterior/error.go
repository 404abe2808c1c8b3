package posterior

import (
	"fmt"

	"github.com/pkg/errors"
)

// NumericalError reports a non-finite log density or gradient at a proposed
// state. Samplers treat it as a rejected (divergent) proposal.
type NumericalError struct {
	LogP  float64 // density value when known
	Index int     // offending gradient component, or -1
	Cause error   // model error behind it, if any
}

func (e *NumericalError) Error() string {
	msg := fmt.Sprintf("numerical error: log density %v", e.LogP)
	if e.Index >= 0 {
		msg += fmt.Sprintf(", gradient component %d not finite", e.Index)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// IsNumerical is true if err (or its cause) is a NumericalError
func IsNumerical(err error) bool {
	if err == nil {
		return false
	}
	_, ok := errors.Cause(err).(*NumericalError)
	return ok
}
