package params

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors for parameter loading.
var (
	// ErrFileType indicates a parameter file without a .yml or .yaml extension.
	ErrFileType = errors.New("params: file must have a .yml or .yaml extension")

	// ErrInvalidConfig indicates one or more fields violate their constraints.
	ErrInvalidConfig = errors.New("params: invalid configuration")
)

// Violation describes one field that failed validation.
type Violation struct {
	Field      string
	Value      any
	Constraint string
}

func (v Violation) String() string {
	if v.Value == nil {
		return fmt.Sprintf("%s: %s", v.Field, v.Constraint)
	}
	return fmt.Sprintf("%s = %v: %s", v.Field, v.Value, v.Constraint)
}

// ValidationError aggregates every violation found in a config.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	noun := "violations"
	if len(parts) == 1 {
		noun = "violation"
	}
	return fmt.Sprintf("params: %d %s: %s", len(parts), noun, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// Fields returns the offending field names in report order.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		out[i] = v.Field
	}
	return out
}
