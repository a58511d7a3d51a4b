package validation

import (
	"errors"
	"fmt"
	"strings"
)

// Constraint names reported in ValidationError.Constraint.
const (
	ConstraintRequired    = "required"
	ConstraintNonNegative = "non_negative"
	ConstraintOneOf       = "one_of"
	ConstraintPattern     = "pattern"
	ConstraintReconciled  = "reconciled_when_completed"
	ConstraintReadOnly    = "read_only"
	ConstraintPositive    = "positive"
)

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field      string // Field name as it appears in the JSON document
	Constraint string // Which rule failed
	Value      any    // The offending value, nil when missing
}

func (e *ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("field %q: %s", e.Field, e.Constraint)
	}
	return fmt.Sprintf("field %q: %s (got %v)", e.Field, e.Constraint, e.Value)
}

// AggregateError represents multiple validation failures.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d validation errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, err.Error())
	}
	return b.String()
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// Errors returns all validation errors if err is an AggregateError.
// Otherwise returns nil.
func Errors(err error) []error {
	var aggr *AggregateError
	if errors.As(err, &aggr) {
		return aggr.Errors
	}
	return nil
}

// First returns the first *ValidationError inside err, if any.
func First(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
