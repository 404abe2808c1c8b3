package model

import (
	"fmt"

	"github.com/pkg/errors"
)

// DomainError reports input that the model cannot assign a finite density:
// malformed data, a non-positive scale, or a non-finite value.
type DomainError struct {
	Msg string
}

func (e *DomainError) Error() string {
	return "domain error: " + e.Msg
}

func domainErrorf(format string, args ...interface{}) error {
	return errors.WithStack(&DomainError{Msg: fmt.Sprintf(format, args...)})
}

// IsDomainError is true if err (or its cause) is a DomainError
func IsDomainError(err error) bool {
	if err == nil {
		return false
	}
	_, ok := errors.Cause(err).(*DomainError)
	return ok
}
