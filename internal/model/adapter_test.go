package model_test

import (
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbhuvana2005/patient-readmission-prediction/internal/encoding"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/model"
)

type fakeClassifier struct {
	classes []int
	proba   []float64
	err     error
	calls   atomic.Int32
}

func (f *fakeClassifier) Classes() []int { return f.classes }
func (f *fakeClassifier) NumFeatures() int { return 2 }
func (f *fakeClassifier) FeatureImportances() []float64 { return []float64{0.5, 0.5} }

func (f *fakeClassifier) PredictProba([]float64) ([]float64, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return append([]float64(nil), f.proba...), nil
}

var columns = []string{"a", "b"}

func vector() encoding.Vector {
	return encoding.NewVector(columns, []float64{1, 2})
}

func TestAdapter_Score(t *testing.T) {
	fc := &fakeClassifier{classes: []int{0, 1}, proba: []float64{0.3, 0.7}}
	a, err := model.NewAdapter(fc, columns)
	require.NoError(t, err)

	res, err := a.Score(vector())
	require.NoError(t, err)

	assert.Equal(t, model.Readmitted, res.Label)
	assert.InDelta(t, 70, res.ReadmissionPercent(), 1e-9)
	assert.InDelta(t, 30, res.NotReadmittedPercent(), 1e-9)
	assert.InDelta(t, 70, res.ConfidencePercent(), 1e-9)
	assert.Equal(t, int32(1), fc.calls.Load())
}

func TestAdapter_LabelAgreesWithProbabilities(t *testing.T) {
	tests := []struct {
		name  string
		proba []float64
		label int
	}{
		{"not readmitted", []float64{0.8, 0.2}, model.NotReadmitted},
		{"readmitted", []float64{0.49, 0.51}, model.Readmitted},
		{"tie takes first class", []float64{0.5, 0.5}, model.NotReadmitted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := model.NewAdapter(&fakeClassifier{classes: []int{0, 1}, proba: tt.proba}, columns)
			require.NoError(t, err)

			label, err := a.PredictClass(vector())
			require.NoError(t, err)
			assert.Equal(t, tt.label, label)

			proba, err := a.PredictClassProbabilities(vector())
			require.NoError(t, err)
			assert.InDelta(t, 1.0, proba[0]+proba[1], 1e-9)
		})
	}
}

func TestAdapter_RenormalisesDistribution(t *testing.T) {
	a, err := model.NewAdapter(&fakeClassifier{classes: []int{0, 1}, proba: []float64{2, 6}}, columns)
	require.NoError(t, err)

	res, err := a.Score(vector())
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.25, 0.75}, res.Probabilities, 1e-12)
}

func TestAdapter_ClassOrderFromClassifier(t *testing.T) {
	a, err := model.NewAdapter(&fakeClassifier{classes: []int{1, 0}, proba: []float64{0.9, 0.1}}, columns)
	require.NoError(t, err)

	res, err := a.Score(vector())
	require.NoError(t, err)
	assert.Equal(t, model.Readmitted, res.Label)
	assert.InDelta(t, 90, res.ReadmissionPercent(), 1e-9)
}

func TestAdapter_RejectsInvalidDistribution(t *testing.T) {
	tests := []struct {
		name  string
		proba []float64
	}{
		{"wrong length", []float64{1}},
		{"negative", []float64{-0.1, 1.1}},
		{"nan", []float64{math.NaN(), 1}},
		{"all zero", []float64{0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := model.NewAdapter(&fakeClassifier{classes: []int{0, 1}, proba: tt.proba}, columns)
			require.NoError(t, err)
			_, err = a.Score(vector())
			assert.Error(t, err)
		})
	}
}

func TestAdapter_ClassifierError(t *testing.T) {
	boom := errors.New("boom")
	a, err := model.NewAdapter(&fakeClassifier{classes: []int{0, 1}, err: boom}, columns)
	require.NoError(t, err)

	_, err = a.Score(vector())
	assert.ErrorIs(t, err, boom)
}

func TestAdapter_ShapeMismatch(t *testing.T) {
	fc := &fakeClassifier{classes: []int{0, 1}, proba: []float64{0.5, 0.5}}
	a, err := model.NewAdapter(fc, columns)
	require.NoError(t, err)

	tests := []struct {
		name string
		v    encoding.Vector
	}{
		{"too long", encoding.NewVector([]string{"a", "b", "c"}, []float64{1, 2, 3})},
		{"reordered", encoding.NewVector([]string{"b", "a"}, []float64{2, 1})},
		{"unnamed", encoding.NewVector(nil, []float64{1, 2})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Score(tt.v)
			var shape *model.ShapeMismatchError
			assert.ErrorAs(t, err, &shape)
		})
	}
	assert.Equal(t, int32(0), fc.calls.Load())
}

func TestNewAdapter_Rejects(t *testing.T) {
	_, err := model.NewAdapter(&fakeClassifier{classes: []int{0, 2}}, columns)
	assert.Error(t, err)

	_, err = model.NewAdapter(&fakeClassifier{classes: []int{0, 1}}, []string{"a"})
	var shape *model.ShapeMismatchError
	assert.ErrorAs(t, err, &shape)
}

func TestAdapter_LengthOnlyWithoutColumns(t *testing.T) {
	a, err := model.NewAdapter(&fakeClassifier{classes: []int{0, 1}, proba: []float64{0.5, 0.5}}, nil)
	require.NoError(t, err)

	_, err = a.Score(encoding.NewVector(nil, []float64{1, 2}))
	assert.NoError(t, err)
}
