package explain_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbhuvana2005/patient-readmission-prediction/internal/explain"
)

func TestReporter_RankDescendingStable(t *testing.T) {
	r, err := explain.NewReporter(
		[]string{"age", "labs", "los", "glucose"},
		[]float64{0.2, 0.4, 0.2, 0.2},
	)
	require.NoError(t, err)

	var names []string
	for fi := range r.Rank() {
		names = append(names, fi.Feature)
	}
	assert.Equal(t, []string{"labs", "age", "los", "glucose"}, names)
}

func TestReporter_RankIsRestartable(t *testing.T) {
	r, err := explain.NewReporter([]string{"a", "b"}, []float64{0.1, 0.9})
	require.NoError(t, err)

	count := func() int {
		n := 0
		for range r.Rank() {
			n++
		}
		return n
	}
	assert.Equal(t, 2, count())
	assert.Equal(t, 2, count())

	for fi := range r.Rank() {
		assert.Equal(t, "b", fi.Feature)
		break
	}
}

func TestReporter_Top(t *testing.T) {
	r, err := explain.NewReporter([]string{"a", "b", "c"}, []float64{0.5, 0.2, 0.3})
	require.NoError(t, err)

	top := r.Top(2)
	assert.Equal(t, []explain.FeatureImportance{{Feature: "a", Importance: 0.5}, {Feature: "c", Importance: 0.3}}, top)

	top[0].Feature = "changed"
	assert.Equal(t, "a", r.Top(1)[0].Feature)

	assert.Len(t, r.Top(0), 3)
	assert.Len(t, r.Top(10), 3)
	assert.Equal(t, 3, r.Len())
}

func TestNewReporter_Rejects(t *testing.T) {
	_, err := explain.NewReporter([]string{"a"}, []float64{0.1, 0.2})
	assert.Error(t, err)

	_, err = explain.NewReporter([]string{"a"}, []float64{-0.1})
	assert.Error(t, err)

	_, err = explain.NewReporter([]string{"a"}, []float64{math.NaN()})
	assert.Error(t, err)
}
