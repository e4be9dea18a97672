package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Optional date fields from which LengthOfStay and PatientAge are derived
// when the caller does not send them directly.
const (
	AdmissionDate = "AdmissionDate"
	DischargeDate = "DischargeDate"
	DateOfBirth   = "DateOfBirth"
)

const dateLayout = "2006-01-02"

// MaxCategoryLength bounds categorical values in bytes, after trimming.
const MaxCategoryLength = 64

type Validator struct {
	schema *Schema
	now    func() time.Time
}

type ValidatorOption func(*Validator)

// WithClock sets the reference time used to derive age when no discharge date
// is supplied.
func WithClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) {
		v.now = now
	}
}

func NewValidator(s *Schema, opts ...ValidatorOption) (*Validator, error) {
	for _, f := range s.fields {
		if !supports(f) {
			return nil, fmt.Errorf("field %q of kind %s has no slot in PatientRecord", f.Name, f.Kind)
		}
	}

	v := &Validator{schema: s, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

func (v *Validator) Schema() *Schema {
	return v.schema
}

// Validate checks every required field and returns a typed record, or a
// *ValidationError listing all problems. The input map is not modified.
func (v *Validator) Validate(raw map[string]any) (*PatientRecord, error) {
	if raw == nil {
		raw = map[string]any{}
	}

	var problems []error
	derived, derivationProblems := v.derive(raw)

	record := &PatientRecord{}
	for _, f := range v.schema.fields {
		value, ok := lookup(raw, derived, f.Name)
		if !ok {
			if p, failed := derivationProblems[f.Name]; failed {
				problems = append(problems, p)
			} else {
				problems = append(problems, &MissingFieldError{Field: f.Name})
			}
			continue
		}

		switch f.Kind {
		case Categorical:
			s, err := toCategory(f, value)
			if err != nil {
				problems = append(problems, err)
				continue
			}
			record.setString(f.Name, s)
		case Integer:
			n, err := toNumber(f, value)
			if err != nil {
				problems = append(problems, err)
				continue
			}
			if n != math.Trunc(n) {
				problems = append(problems, &TypeMismatchError{Field: f.Name, Expected: Integer, Got: "fractional number"})
				continue
			}
			if err := checkRange(f, n); err != nil {
				problems = append(problems, err)
				continue
			}
			record.setInt(f.Name, int(n))
		case Float:
			n, err := toNumber(f, value)
			if err != nil {
				problems = append(problems, err)
				continue
			}
			if err := checkRange(f, n); err != nil {
				problems = append(problems, err)
				continue
			}
			record.setFloat(f.Name, n)
		}
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return record, nil
}

func lookup(raw, derived map[string]any, name string) (any, bool) {
	if value, ok := raw[name]; ok && value != nil {
		return value, true
	}
	value, ok := derived[name]
	return value, ok
}

// derive fills LengthOfStay and PatientAge from dates when they are absent.
// Date problems are reported against the field being derived.
func (v *Validator) derive(raw map[string]any) (map[string]any, map[string]error) {
	derived := map[string]any{}
	problems := map[string]error{}

	_, hasLOS := v.schema.Field(LengthOfStay)
	if hasLOS && raw[LengthOfStay] == nil && raw[AdmissionDate] != nil && raw[DischargeDate] != nil {
		admit, errA := parseDate(raw[AdmissionDate])
		discharge, errD := parseDate(raw[DischargeDate])
		switch {
		case errA != nil || errD != nil:
			problems[LengthOfStay] = &TypeMismatchError{Field: LengthOfStay, Expected: Integer, Got: "unparseable admission or discharge date"}
		default:
			derived[LengthOfStay] = float64(int(discharge.Sub(admit).Hours() / 24))
		}
	}

	_, hasAge := v.schema.Field(PatientAge)
	if hasAge && raw[PatientAge] == nil && raw[DateOfBirth] != nil {
		dob, err := parseDate(raw[DateOfBirth])
		if err != nil {
			problems[PatientAge] = &TypeMismatchError{Field: PatientAge, Expected: Integer, Got: "unparseable date of birth"}
			return derived, problems
		}
		ref := v.now()
		if raw[DischargeDate] != nil {
			if discharge, err := parseDate(raw[DischargeDate]); err == nil {
				ref = discharge
			}
		}
		derived[PatientAge] = float64(ageAt(dob, ref))
	}

	return derived, problems
}

func parseDate(value any) (time.Time, error) {
	s, ok := value.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("date must be a string")
	}
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func ageAt(dob, ref time.Time) int {
	age := ref.Year() - dob.Year()
	if ref.Month() < dob.Month() || (ref.Month() == dob.Month() && ref.Day() < dob.Day()) {
		age--
	}
	return age
}

func toCategory(f FieldSpec, value any) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", &TypeMismatchError{Field: f.Name, Expected: Categorical, Got: fmt.Sprintf("%T", value)}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", &TypeMismatchError{Field: f.Name, Expected: Categorical, Got: "empty string"}
	}
	if len(s) > MaxCategoryLength {
		return "", &TypeMismatchError{Field: f.Name, Expected: Categorical, Got: fmt.Sprintf("string longer than %d bytes", MaxCategoryLength)}
	}
	return s, nil
}

func toNumber(f FieldSpec, value any) (float64, error) {
	var n float64
	switch v := value.(type) {
	case float64:
		n = v
	case float32:
		n = float64(v)
	case int:
		n = float64(v)
	case int32:
		n = float64(v)
	case int64:
		n = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, &TypeMismatchError{Field: f.Name, Expected: f.Kind, Got: "non-numeric string"}
		}
		n = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, &TypeMismatchError{Field: f.Name, Expected: f.Kind, Got: "non-numeric string"}
		}
		n = parsed
	default:
		return 0, &TypeMismatchError{Field: f.Name, Expected: f.Kind, Got: fmt.Sprintf("%T", value)}
	}

	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, &TypeMismatchError{Field: f.Name, Expected: f.Kind, Got: "non-finite number"}
	}
	return n, nil
}

func checkRange(f FieldSpec, n float64) error {
	if n < f.Min {
		return &RangeError{Field: f.Name, Value: n, Bound: f.Min}
	}
	if n > f.Max {
		return &RangeError{Field: f.Name, Value: n, Bound: f.Max}
	}
	return nil
}
