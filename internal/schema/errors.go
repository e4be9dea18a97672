package schema

import (
	"fmt"
	"strings"
)

type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field %q", e.Field)
}

// RangeError reports a numeric value outside its bounding box. Bound is the
// limit that was crossed.
type RangeError struct {
	Field string
	Value float64
	Bound float64
}

func (e *RangeError) Error() string {
	if e.Value < e.Bound {
		return fmt.Sprintf("field %q value %v is below minimum %v", e.Field, e.Value, e.Bound)
	}
	return fmt.Sprintf("field %q value %v is above maximum %v", e.Field, e.Value, e.Bound)
}

type TypeMismatchError struct {
	Field    string
	Expected Kind
	Got      string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("field %q expects %s, got %s", e.Field, e.Expected, e.Got)
}

// ValidationError aggregates every field problem found in one record, in
// schema order.
type ValidationError struct {
	Problems []error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Error()
	}
	return "invalid patient record: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() []error {
	return e.Problems
}

// FieldProblem is the wire form of one validation problem.
type FieldProblem struct {
	Field  string   `json:"field"`
	Reason string   `json:"reason"`
	Value  *float64 `json:"value,omitempty"`
	Bound  *float64 `json:"bound,omitempty"`
}

func (e *ValidationError) FieldProblems() []FieldProblem {
	out := make([]FieldProblem, 0, len(e.Problems))
	for _, p := range e.Problems {
		switch v := p.(type) {
		case *MissingFieldError:
			out = append(out, FieldProblem{Field: v.Field, Reason: "missing"})
		case *RangeError:
			value, bound := v.Value, v.Bound
			out = append(out, FieldProblem{Field: v.Field, Reason: "out_of_range", Value: &value, Bound: &bound})
		case *TypeMismatchError:
			out = append(out, FieldProblem{Field: v.Field, Reason: "type_mismatch"})
		default:
			out = append(out, FieldProblem{Reason: p.Error()})
		}
	}
	return out
}
