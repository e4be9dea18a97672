// Package encoding turns validated patient records into the numeric feature
// vectors the classifier was trained on.
package encoding

import (
	"fmt"
	"strings"
)

// Table is the label encoding learned for one categorical field. Codes are
// positions in the training-time class list, so they must be loaded in
// exactly the order the model saw them.
type Table struct {
	field    string
	classes  []string
	codes    map[string]int
	fallback int
	aliases  map[string]string
	display  map[string]string
}

// TableSpec is the serialized form of a Table.
type TableSpec struct {
	Classes  []string          `json:"classes"`
	Fallback string            `json:"fallback,omitempty"`
	Aliases  map[string]string `json:"aliases,omitempty"`
}

// NewTable builds a table from the training class list. An empty fallback
// selects the first class.
func NewTable(field string, spec TableSpec) (*Table, error) {
	if field == "" {
		return nil, fmt.Errorf("encoding table has no field name")
	}
	if len(spec.Classes) == 0 {
		return nil, fmt.Errorf("encoding table %q has no classes", field)
	}

	t := &Table{
		field:   field,
		classes: make([]string, len(spec.Classes)),
		codes:   make(map[string]int, len(spec.Classes)),
		aliases: make(map[string]string, len(spec.Aliases)),
		display: make(map[string]string, len(spec.Aliases)),
	}
	copy(t.classes, spec.Classes)

	for code, label := range spec.Classes {
		if _, dup := t.codes[label]; dup {
			return nil, fmt.Errorf("encoding table %q has duplicate class %q", field, label)
		}
		t.codes[label] = code
	}

	if spec.Fallback != "" {
		code, ok := t.codes[spec.Fallback]
		if !ok {
			return nil, fmt.Errorf("encoding table %q fallback %q is not a known class", field, spec.Fallback)
		}
		t.fallback = code
	}

	for from, to := range spec.Aliases {
		if _, ok := t.codes[to]; !ok {
			return nil, fmt.Errorf("encoding table %q alias %q points at unknown class %q", field, from, to)
		}
		t.aliases[normalizeAlias(from)] = to
		t.display[from] = to
	}

	return t, nil
}

func (t *Table) Field() string {
	return t.field
}

func (t *Table) Classes() []string {
	out := make([]string, len(t.classes))
	copy(out, t.classes)
	return out
}

// Aliases returns the accepted display labels and the class each maps to.
func (t *Table) Aliases() map[string]string {
	out := make(map[string]string, len(t.display))
	for k, v := range t.display {
		out[k] = v
	}
	return out
}

func (t *Table) FallbackLabel() string {
	return t.classes[t.fallback]
}

// Lookup returns the code for a label and whether it was known. Exact class
// matches win over aliases.
func (t *Table) Lookup(label string) (int, bool) {
	if code, ok := t.codes[label]; ok {
		return code, true
	}
	if target, ok := t.aliases[normalizeAlias(label)]; ok {
		return t.codes[target], true
	}
	return t.fallback, false
}

func normalizeAlias(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
