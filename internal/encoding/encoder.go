package encoding

import (
	"fmt"
	"strings"

	"github.com/kbhuvana2005/patient-readmission-prediction/internal/schema"
)

// UnknownFeatureError means the model's column list and the validator's
// required fields disagree. It is detected once, when the encoder is built.
type UnknownFeatureError struct {
	// Unknown are model columns the schema does not define.
	Unknown []string
	// Unused are schema fields the model does not consume.
	Unused []string
	// Unencoded are categorical columns without an encoding table.
	Unencoded []string
}

func (e *UnknownFeatureError) Error() string {
	var parts []string
	if len(e.Unknown) > 0 {
		parts = append(parts, "model columns not in schema: "+strings.Join(e.Unknown, ", "))
	}
	if len(e.Unused) > 0 {
		parts = append(parts, "schema fields not in model: "+strings.Join(e.Unused, ", "))
	}
	if len(e.Unencoded) > 0 {
		parts = append(parts, "categorical columns without encoder: "+strings.Join(e.Unencoded, ", "))
	}
	return "feature set drift: " + strings.Join(parts, "; ")
}

// UnknownCategoryWarning flags a categorical value that was encoded with the
// fallback code. The prediction is still returned but is degraded.
type UnknownCategoryWarning struct {
	Field        string `json:"field"`
	Value        string `json:"value"`
	FallbackCode int    `json:"fallback_code"`
}

func (w UnknownCategoryWarning) String() string {
	return fmt.Sprintf("unknown %s %q encoded as fallback code %d", w.Field, w.Value, w.FallbackCode)
}

type Encoding struct {
	Vector   Vector
	Warnings []UnknownCategoryWarning
}

func (e Encoding) Degraded() bool {
	return len(e.Warnings) > 0
}

type column struct {
	name string
	kind schema.Kind
}

// FeatureEncoder projects records into the model's column order. The column
// plan is resolved in NewFeatureEncoder so Encode cannot hit a missing column.
type FeatureEncoder struct {
	columns  []column
	names    []string
	registry *Registry
}

func NewFeatureEncoder(columns []string, s *schema.Schema, registry *Registry) (*FeatureEncoder, error) {
	drift := &UnknownFeatureError{}
	seen := make(map[string]bool, len(columns))
	plan := make([]column, 0, len(columns))

	for _, name := range columns {
		if seen[name] {
			return nil, fmt.Errorf("duplicate model column %q", name)
		}
		seen[name] = true

		f, ok := s.Field(name)
		if !ok {
			drift.Unknown = append(drift.Unknown, name)
			continue
		}
		if f.Kind == schema.Categorical {
			if _, ok := registry.Table(name); !ok {
				drift.Unencoded = append(drift.Unencoded, name)
				continue
			}
		}
		plan = append(plan, column{name: name, kind: f.Kind})
	}

	for _, name := range s.Names() {
		if !seen[name] {
			drift.Unused = append(drift.Unused, name)
		}
	}

	if len(drift.Unknown) > 0 || len(drift.Unused) > 0 || len(drift.Unencoded) > 0 {
		return nil, drift
	}

	names := make([]string, len(columns))
	copy(names, columns)
	return &FeatureEncoder{columns: plan, names: names, registry: registry}, nil
}

func (e *FeatureEncoder) Columns() []string {
	out := make([]string, len(e.names))
	copy(out, e.names)
	return out
}

func (e *FeatureEncoder) Len() int {
	return len(e.columns)
}

func (e *FeatureEncoder) Encode(record *schema.PatientRecord) (Encoding, error) {
	values := make([]float64, len(e.columns))
	var warnings []UnknownCategoryWarning

	for i, col := range e.columns {
		switch col.kind {
		case schema.Categorical:
			label, _ := record.Categorical(col.name)
			code, err := e.registry.Encode(col.name, label)
			if err != nil {
				return Encoding{}, err
			}
			if code.Fallback {
				warnings = append(warnings, UnknownCategoryWarning{Field: col.name, Value: label, FallbackCode: code.Value})
			}
			values[i] = float64(code.Value)
		default:
			n, ok := record.Numeric(col.name)
			if !ok {
				return Encoding{}, fmt.Errorf("record has no numeric field %q", col.name)
			}
			values[i] = n
		}
	}

	return Encoding{Vector: Vector{columns: e.names, values: values}, Warnings: warnings}, nil
}
