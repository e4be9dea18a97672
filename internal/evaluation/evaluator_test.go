package evaluation_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbhuvana2005/patient-readmission-prediction/internal/artifacts"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/evaluation"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/inference"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/risk"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/schema"
)

func loadHoldout(t *testing.T) *evaluation.Dataset {
	t.Helper()
	f, err := os.Open("testdata/holdout.csv")
	require.NoError(t, err)
	defer f.Close()

	dataset, err := evaluation.LoadDatasetFromCSV(f, evaluation.DefaultLabelColumn)
	require.NoError(t, err)
	return dataset
}

func TestLoadDatasetFromCSV(t *testing.T) {
	dataset := loadHoldout(t)
	require.Len(t, dataset.Items, 6)

	first := dataset.Items[0]
	assert.Equal(t, 2, first.Line)
	assert.Equal(t, 0, first.Label)
	assert.Equal(t, "Male", first.Patient[schema.PatientGender])
	assert.NotContains(t, first.Patient, evaluation.DefaultLabelColumn)

	assert.NotContains(t, dataset.Items[5].Patient, schema.NumLabs)
}

func TestLoadDatasetFromCSV_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"no label column", "PatientAge\n40\n"},
		{"bad label", "PatientAge,Readmitted\n40,yes\n"},
		{"label out of range", "PatientAge,Readmitted\n40,2\n"},
		{"ragged row", "PatientAge,Readmitted\n40,1,extra\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := evaluation.LoadDatasetFromCSV(strings.NewReader(tt.data), evaluation.DefaultLabelColumn)
			assert.Error(t, err)
		})
	}
}

func TestRunDatasetEvaluation(t *testing.T) {
	rt, err := artifacts.Open(context.Background(), artifacts.DirSource{Dir: "../../models"}, schema.DefaultSchema())
	require.NoError(t, err)

	report, err := evaluation.NewEvaluator(inference.NewEngine(rt, nil)).
		RunDatasetEvaluation(context.Background(), loadHoldout(t))
	require.NoError(t, err)

	assert.Equal(t, 6, report.TotalRows)
	assert.Equal(t, 5, report.Scored)
	assert.Equal(t, 1, report.Invalid)
	assert.Equal(t, 1, report.Degraded)

	assert.Equal(t, 1, report.TruePositives)
	assert.Equal(t, 0, report.FalsePositives)
	assert.Equal(t, 1, report.FalseNegatives)
	assert.Equal(t, 3, report.TrueNegatives)

	assert.InDelta(t, 0.8, report.Accuracy, 1e-9)
	assert.InDelta(t, 1.0, report.Precision, 1e-9)
	assert.InDelta(t, 0.5, report.Recall, 1e-9)
	assert.InDelta(t, 5.5/6, report.ROCAUC, 1e-9)

	require.Len(t, report.Tiers, 3)
	assert.Equal(t, risk.Low, report.Tiers[0].Tier)
	assert.Equal(t, 2, report.Tiers[0].Count)
	assert.InDelta(t, 40, report.Tiers[0].Percentage, 1e-9)
	assert.Zero(t, report.Tiers[0].ObservedRate)
	assert.Equal(t, risk.Moderate, report.Tiers[1].Tier)
	assert.InDelta(t, 0.5, report.Tiers[1].ObservedRate, 1e-9)
	assert.Equal(t, 1, report.Tiers[2].Count)
	assert.InDelta(t, 1.0, report.Tiers[2].ObservedRate, 1e-9)

	text := evaluation.GenerateReport(report)
	assert.Contains(t, text, "ROC AUC:   0.917")
	assert.Contains(t, text, "HIGH")
}

type failingPredictor struct{}

func (failingPredictor) Predict(context.Context, map[string]any) (*inference.Result, error) {
	return nil, errors.New("model unavailable")
}

func TestRunDatasetEvaluation_AbortsOnPipelineError(t *testing.T) {
	_, err := evaluation.NewEvaluator(failingPredictor{}).
		RunDatasetEvaluation(context.Background(), loadHoldout(t))
	assert.ErrorContains(t, err, "line 2")
}

func TestRunDatasetEvaluation_Empty(t *testing.T) {
	report, err := evaluation.NewEvaluator(failingPredictor{}).
		RunDatasetEvaluation(context.Background(), &evaluation.Dataset{})
	require.NoError(t, err)
	assert.Zero(t, report.ROCAUC)
	assert.Len(t, report.Tiers, 3)
}
