package query

import (
	"errors"
	"fmt"
)

// Pattern errors are structural: they are detected before any database
// call and are not retryable.
var (
	// ErrInvalidPattern marks a structurally broken step sequence.
	ErrInvalidPattern = errors.New("invalid pattern")
	// ErrUndefinedVariable marks a where/select/orderBy reference to a
	// variable no step declared.
	ErrUndefinedVariable = errors.New("undefined variable")
	// ErrCyclicTypeMismatch marks a cyclic pattern whose start and end
	// steps declare different node types.
	ErrCyclicTypeMismatch = errors.New("cyclic type mismatch")
	// ErrInvalidFilterOperator marks an unknown filter operator.
	ErrInvalidFilterOperator = errors.New("invalid filter operator")
)

// PatternError carries the offending variable and step alongside one of
// the sentinel pattern errors.
type PatternError struct {
	Err      error
	Variable string
	Step     int // index into the step sequence, -1 when not applicable
	Detail   string
}

func (e *PatternError) Error() string {
	msg := e.Err.Error()
	if e.Variable != "" {
		msg += fmt.Sprintf(" (variable %q)", e.Variable)
	}
	if e.Step >= 0 {
		msg += fmt.Sprintf(" (step %d)", e.Step)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *PatternError) Unwrap() error { return e.Err }

func patternErr(sentinel error, variable string, step int, format string, args ...any) error {
	return &PatternError{
		Err:      sentinel,
		Variable: variable,
		Step:     step,
		Detail:   fmt.Sprintf(format, args...),
	}
}
