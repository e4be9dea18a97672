// Package schema defines the patient fields the readmission model was
// trained on and validates raw request payloads into typed records.
package schema

import "fmt"

type Kind int

const (
	Integer Kind = iota
	Float
	Categorical
)

func (k Kind) String() string {
	switch k {
	case Integer:
		return "integer"
	case Float:
		return "float"
	case Categorical:
		return "categorical"
	default:
		return "unknown"
	}
}

func (k Kind) Numeric() bool {
	return k == Integer || k == Float
}

// Field names as they appear in the request payload and in the trained
// model's column list.
const (
	LengthOfStay       = "LengthOfStay"
	PreviousAdmissions = "PreviousAdmissions"
	PatientAge         = "PatientAge"
	PatientGender      = "PatientGender"
	DiagnosisChapter   = "DiagnosisChapter"
	NumLabs            = "NumLabs"
	HemoglobinAvg      = "hemoglobin_avg"
	GlucoseAvg         = "glucose_avg"
	CreatinineAvg      = "creatinine_avg"
	WBCAvg             = "wbc_avg"
)

// FieldSpec describes one required field. Min and Max are inclusive and only
// apply to numeric kinds; they are generous bounding boxes that reject values
// which cannot be real, not clinical reference ranges.
type FieldSpec struct {
	Name  string
	Kind  Kind
	Min   float64
	Max   float64
	Unit  string
	Label string
}

type Schema struct {
	fields []FieldSpec
	index  map[string]int
}

func New(fields ...FieldSpec) (*Schema, error) {
	s := &Schema{
		fields: make([]FieldSpec, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	copy(s.fields, fields)

	for i, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("field %d has no name", i)
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, fmt.Errorf("duplicate field %q", f.Name)
		}
		if f.Kind.Numeric() && f.Min > f.Max {
			return nil, fmt.Errorf("field %q has min %v above max %v", f.Name, f.Min, f.Max)
		}
		s.index[f.Name] = i
	}

	return s, nil
}

// DefaultSchema is the ten-field schema of the deployed model, in training
// column order.
func DefaultSchema() *Schema {
	s, err := New(
		FieldSpec{Name: LengthOfStay, Kind: Integer, Min: 0, Max: 365, Unit: "days", Label: "Length of Stay"},
		FieldSpec{Name: PreviousAdmissions, Kind: Integer, Min: 0, Max: 100, Label: "Previous Admissions"},
		FieldSpec{Name: PatientAge, Kind: Integer, Min: 0, Max: 120, Unit: "years", Label: "Patient Age"},
		FieldSpec{Name: PatientGender, Kind: Categorical, Label: "Gender"},
		FieldSpec{Name: DiagnosisChapter, Kind: Categorical, Label: "Diagnosis Chapter"},
		FieldSpec{Name: NumLabs, Kind: Integer, Min: 0, Max: 2000, Label: "Lab Test Count"},
		FieldSpec{Name: HemoglobinAvg, Kind: Float, Min: 0, Max: 30, Unit: "g/dL", Label: "Hemoglobin"},
		FieldSpec{Name: GlucoseAvg, Kind: Float, Min: 0, Max: 800, Unit: "mg/dL", Label: "Glucose"},
		FieldSpec{Name: CreatinineAvg, Kind: Float, Min: 0, Max: 30, Unit: "mg/dL", Label: "Creatinine"},
		FieldSpec{Name: WBCAvg, Kind: Float, Min: 0, Max: 500, Unit: "k/cumm", Label: "WBC Count"},
	)
	if err != nil {
		panic(err)
	}
	return s
}

// Fields returns a copy of the field specs in declaration order.
func (s *Schema) Fields() []FieldSpec {
	out := make([]FieldSpec, len(s.fields))
	copy(out, s.fields)
	return out
}

func (s *Schema) Field(name string) (FieldSpec, bool) {
	i, ok := s.index[name]
	if !ok {
		return FieldSpec{}, false
	}
	return s.fields[i], true
}

func (s *Schema) Len() int {
	return len(s.fields)
}

func (s *Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

func (s *Schema) CategoricalNames() []string {
	var names []string
	for _, f := range s.fields {
		if f.Kind == Categorical {
			names = append(names, f.Name)
		}
	}
	return names
}
