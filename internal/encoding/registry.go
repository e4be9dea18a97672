package encoding

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/kbhuvana2005/patient-readmission-prediction/pkg/logger"
)

type UnknownFieldError struct {
	Field string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("no encoding table for field %q", e.Field)
}

// Code is the result of encoding one categorical value. Fallback is set when
// the value was not seen during training and the table's sentinel code was
// used instead.
type Code struct {
	Value    int
	Fallback bool
}

// Registry holds one Table per categorical field. It is filled once at
// startup and only read afterwards, so concurrent Encode calls need no locking.
type Registry struct {
	tables map[string]*Table
}

func NewRegistry(tables ...*Table) (*Registry, error) {
	r := &Registry{tables: make(map[string]*Table, len(tables))}
	for _, t := range tables {
		if _, dup := r.tables[t.field]; dup {
			return nil, fmt.Errorf("duplicate encoding table for field %q", t.field)
		}
		r.tables[t.field] = t
	}
	return r, nil
}

// RegistryFromSpecs builds a registry from the serialized encoder artifact.
func RegistryFromSpecs(specs map[string]TableSpec) (*Registry, error) {
	fields := make([]string, 0, len(specs))
	for field := range specs {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	tables := make([]*Table, 0, len(specs))
	for _, field := range fields {
		t, err := NewTable(field, specs[field])
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return NewRegistry(tables...)
}

func (r *Registry) Encode(field, value string) (Code, error) {
	t, ok := r.tables[field]
	if !ok {
		return Code{}, &UnknownFieldError{Field: field}
	}

	code, known := t.Lookup(value)
	if !known {
		logger.Warn("Unknown category, using fallback code",
			zap.String("field", field),
			zap.String("value", value),
			zap.String("fallback_label", t.FallbackLabel()),
			zap.Int("fallback_code", code),
		)
		return Code{Value: code, Fallback: true}, nil
	}
	return Code{Value: code}, nil
}

func (r *Registry) Table(field string) (*Table, bool) {
	t, ok := r.tables[field]
	return t, ok
}

// Fields returns the encoded field names in sorted order.
func (r *Registry) Fields() []string {
	fields := make([]string, 0, len(r.tables))
	for f := range r.tables {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}
