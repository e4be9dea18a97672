// Package model wraps the trained readmission classifier behind a fixed
// scoring contract.
package model

import (
	"fmt"
	"math"
	"strings"

	"github.com/kbhuvana2005/patient-readmission-prediction/internal/encoding"
)

const (
	NotReadmitted = 0
	Readmitted    = 1
)

// ShapeMismatchError means a feature vector does not fit the model's input
// signature. It indicates artifact drift and is never a per-request problem.
type ShapeMismatchError struct {
	Expected int
	Got      int
	Detail   string
}

func (e *ShapeMismatchError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("feature vector shape mismatch: %s", e.Detail)
	}
	return fmt.Sprintf("feature vector has %d values, model expects %d", e.Got, e.Expected)
}

// PredictionResult is derived from a single model evaluation, so Label is
// always the arg-max of Probabilities.
type PredictionResult struct {
	Label         int
	Classes       []int
	Probabilities []float64
	Confidence    float64
}

func (p *PredictionResult) probabilityOf(class int) float64 {
	for i, c := range p.Classes {
		if c == class {
			return p.Probabilities[i]
		}
	}
	return 0
}

func (p *PredictionResult) ReadmissionPercent() float64 {
	return p.probabilityOf(Readmitted) * 100
}

func (p *PredictionResult) NotReadmittedPercent() float64 {
	return p.probabilityOf(NotReadmitted) * 100
}

func (p *PredictionResult) ConfidencePercent() float64 {
	return p.Confidence * 100
}

type Adapter struct {
	classifier Classifier
	columns    []string
	classes    []int
}

// NewAdapter binds a classifier to the column order it was trained on. The
// column list may be nil when the caller only checks vector length.
func NewAdapter(classifier Classifier, columns []string) (*Adapter, error) {
	classes := classifier.Classes()
	if !hasClass(classes, NotReadmitted) || !hasClass(classes, Readmitted) {
		return nil, fmt.Errorf("classifier classes %v must include %d and %d", classes, NotReadmitted, Readmitted)
	}
	if columns != nil && len(columns) != classifier.NumFeatures() {
		return nil, &ShapeMismatchError{Expected: classifier.NumFeatures(), Got: len(columns), Detail: fmt.Sprintf("%d columns configured for a %d-feature model", len(columns), classifier.NumFeatures())}
	}

	return &Adapter{
		classifier: classifier,
		columns:    append([]string(nil), columns...),
		classes:    classes,
	}, nil
}

func hasClass(classes []int, c int) bool {
	for _, x := range classes {
		if x == c {
			return true
		}
	}
	return false
}

func (a *Adapter) NumFeatures() int {
	return a.classifier.NumFeatures()
}

func (a *Adapter) Classes() []int {
	return append([]int(nil), a.classes...)
}

func (a *Adapter) Score(v encoding.Vector) (*PredictionResult, error) {
	if err := a.checkShape(v); err != nil {
		return nil, err
	}

	proba, err := a.classifier.PredictProba(v.Values())
	if err != nil {
		return nil, fmt.Errorf("classifier evaluation failed: %w", err)
	}
	proba, err = normalize(proba, len(a.classes))
	if err != nil {
		return nil, err
	}

	best := 0
	for i := 1; i < len(proba); i++ {
		if proba[i] > proba[best] {
			best = i
		}
	}

	return &PredictionResult{
		Label:         a.classes[best],
		Classes:       append([]int(nil), a.classes...),
		Probabilities: proba,
		Confidence:    proba[best],
	}, nil
}

// PredictClass returns the most likely class for v.
func (a *Adapter) PredictClass(v encoding.Vector) (int, error) {
	res, err := a.Score(v)
	if err != nil {
		return 0, err
	}
	return res.Label, nil
}

// PredictClassProbabilities returns the class distribution for v.
func (a *Adapter) PredictClassProbabilities(v encoding.Vector) ([]float64, error) {
	res, err := a.Score(v)
	if err != nil {
		return nil, err
	}
	return res.Probabilities, nil
}

func (a *Adapter) checkShape(v encoding.Vector) error {
	if v.Len() != a.classifier.NumFeatures() {
		return &ShapeMismatchError{Expected: a.classifier.NumFeatures(), Got: v.Len()}
	}
	if len(a.columns) == 0 {
		return nil
	}

	got := v.Columns()
	if len(got) != len(a.columns) {
		return &ShapeMismatchError{
			Expected: len(a.columns),
			Got:      v.Len(),
			Detail:   fmt.Sprintf("vector carries %d column names, model expects %d", len(got), len(a.columns)),
		}
	}
	for i, want := range a.columns {
		if got[i] != want {
			return &ShapeMismatchError{
				Expected: len(a.columns),
				Got:      v.Len(),
				Detail:   fmt.Sprintf("column %d is %q, model expects %q (order: %s)", i, got[i], want, strings.Join(a.columns, ",")),
			}
		}
	}
	return nil
}

func normalize(proba []float64, nClasses int) ([]float64, error) {
	if len(proba) != nClasses {
		return nil, fmt.Errorf("classifier returned %d probabilities for %d classes", len(proba), nClasses)
	}

	var total float64
	for _, p := range proba {
		if p < 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return nil, fmt.Errorf("classifier returned invalid probability %v", p)
		}
		total += p
	}
	if total == 0 {
		return nil, fmt.Errorf("classifier returned an all-zero distribution")
	}

	out := make([]float64, len(proba))
	for i, p := range proba {
		out[i] = p / total
	}
	return out, nil
}
