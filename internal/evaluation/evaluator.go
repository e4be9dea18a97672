// Package evaluation scores a labeled holdout set through the live pipeline
// and summarizes how well the loaded bundle separates readmissions.
package evaluation

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kbhuvana2005/patient-readmission-prediction/internal/inference"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/model"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/risk"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/schema"
	"github.com/kbhuvana2005/patient-readmission-prediction/pkg/logger"
)

// DefaultLabelColumn is the outcome column written by the training export.
const DefaultLabelColumn = "Readmitted"

type Predictor interface {
	Predict(ctx context.Context, raw map[string]any) (*inference.Result, error)
}

type Evaluator struct {
	predictor Predictor
}

type Dataset struct {
	Items []DatasetItem
}

// DatasetItem is one holdout row: the raw record as read plus the observed
// outcome (model.Readmitted or model.NotReadmitted).
type DatasetItem struct {
	Line    int
	Patient map[string]any
	Label   int
}

type TierSummary struct {
	Tier         risk.Tier `json:"tier"`
	Count        int       `json:"count"`
	Percentage   float64   `json:"percentage"`
	Readmitted   int       `json:"readmitted"`
	ObservedRate float64   `json:"observed_rate"`
}

type Report struct {
	TotalRows int `json:"total_rows"`
	Scored    int `json:"scored"`
	Invalid   int `json:"invalid"`
	Degraded  int `json:"degraded"`

	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	ROCAUC    float64 `json:"roc_auc"`

	TruePositives  int `json:"true_positives"`
	FalsePositives int `json:"false_positives"`
	TrueNegatives  int `json:"true_negatives"`
	FalseNegatives int `json:"false_negatives"`

	Tiers []TierSummary `json:"tiers"`
}

func NewEvaluator(predictor Predictor) *Evaluator {
	return &Evaluator{
		predictor: predictor,
	}
}

type scored struct {
	probability float64
	label       int
}

// RunDatasetEvaluation predicts every item. Rows the validator rejects are
// counted as invalid and left out of the metrics; any other failure aborts.
func (e *Evaluator) RunDatasetEvaluation(ctx context.Context, dataset *Dataset) (*Report, error) {
	logger.Info("Running dataset evaluation", zap.Int("items", len(dataset.Items)))

	ctx = inference.WithChannel(ctx, "evaluation")
	report := &Report{TotalRows: len(dataset.Items)}

	tiers := map[risk.Tier]*TierSummary{
		risk.Low:      {Tier: risk.Low},
		risk.Moderate: {Tier: risk.Moderate},
		risk.High:     {Tier: risk.High},
	}
	results := make([]scored, 0, len(dataset.Items))

	for _, item := range dataset.Items {
		res, err := e.predictor.Predict(ctx, item.Patient)
		if err != nil {
			var validationErr *schema.ValidationError
			if errors.As(err, &validationErr) {
				report.Invalid++
				logger.Debug("Skipping invalid row", zap.Int("line", item.Line), zap.Int("problems", len(validationErr.Problems)))
				continue
			}
			return nil, fmt.Errorf("line %d: %w", item.Line, err)
		}

		report.Scored++
		if res.Degraded {
			report.Degraded++
		}

		predicted := res.Prediction.Label
		switch {
		case predicted == model.Readmitted && item.Label == model.Readmitted:
			report.TruePositives++
		case predicted == model.Readmitted:
			report.FalsePositives++
		case item.Label == model.Readmitted:
			report.FalseNegatives++
		default:
			report.TrueNegatives++
		}

		t := tiers[res.Risk.Tier]
		t.Count++
		if item.Label == model.Readmitted {
			t.Readmitted++
		}

		results = append(results, scored{
			probability: res.Prediction.ReadmissionPercent() / 100,
			label:       item.Label,
		})
	}

	if report.Scored > 0 {
		report.Accuracy = float64(report.TruePositives+report.TrueNegatives) / float64(report.Scored)
		report.Precision = ratio(report.TruePositives, report.TruePositives+report.FalsePositives)
		report.Recall = ratio(report.TruePositives, report.TruePositives+report.FalseNegatives)
		report.ROCAUC = rocAUC(results)
	}

	for _, tier := range []risk.Tier{risk.Low, risk.Moderate, risk.High} {
		t := tiers[tier]
		t.Percentage = ratio(t.Count, report.Scored) * 100
		t.ObservedRate = ratio(t.Readmitted, t.Count)
		report.Tiers = append(report.Tiers, *t)
	}

	logger.Info("Dataset evaluation completed",
		zap.Int("total", report.TotalRows),
		zap.Int("scored", report.Scored),
		zap.Int("invalid", report.Invalid),
		zap.Float64("roc_auc", report.ROCAUC),
	)

	return report, nil
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// rocAUC is the Mann-Whitney statistic: the share of (positive, negative)
// pairs ranked correctly, ties counting half. It is 0 when either class is
// absent.
func rocAUC(results []scored) float64 {
	sorted := append([]scored(nil), results...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].probability < sorted[j].probability })

	var positives, negatives int
	var rankSum float64
	for i := 0; i < len(sorted); {
		j := i
		for j < len(sorted) && sorted[j].probability == sorted[i].probability {
			j++
		}
		// ranks are 1-based; tied scores share the average rank
		avgRank := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			if sorted[k].label == model.Readmitted {
				positives++
				rankSum += avgRank
			} else {
				negatives++
			}
		}
		i = j
	}

	if positives == 0 || negatives == 0 {
		return 0
	}
	u := rankSum - float64(positives*(positives+1))/2
	return u / float64(positives*negatives)
}

// LoadDatasetFromCSV reads a header row followed by one patient per row.
// Header names are the record field names; empty cells are left out so they
// surface as missing fields. labelColumn must hold 0 or 1.
func LoadDatasetFromCSV(r io.Reader, labelColumn string) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	labelIdx := -1
	for i, name := range header {
		header[i] = strings.TrimSpace(name)
		if header[i] == labelColumn {
			labelIdx = i
		}
	}
	if labelIdx < 0 {
		return nil, fmt.Errorf("label column %q not found in header", labelColumn)
	}

	dataset := &Dataset{}
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read line %d: %w", line, err)
		}

		label, err := strconv.Atoi(strings.TrimSpace(row[labelIdx]))
		if err != nil || (label != model.Readmitted && label != model.NotReadmitted) {
			return nil, fmt.Errorf("line %d: %s must be 0 or 1, got %q", line, labelColumn, row[labelIdx])
		}

		patient := make(map[string]any, len(header)-1)
		for i, cell := range row {
			if i == labelIdx || strings.TrimSpace(cell) == "" {
				continue
			}
			patient[header[i]] = cell
		}

		dataset.Items = append(dataset.Items, DatasetItem{Line: line, Patient: patient, Label: label})
	}

	return dataset, nil
}

func GenerateReport(report *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, `
Evaluation Report
=================

Rows: %d (scored %d, invalid %d, degraded %d)

Classification (threshold 50%%):
- Accuracy:  %.3f
- Precision: %.3f
- Recall:    %.3f
- ROC AUC:   %.3f

Confusion:
- TP %d  FP %d
- FN %d  TN %d

Risk tiers:
`,
		report.TotalRows, report.Scored, report.Invalid, report.Degraded,
		report.Accuracy, report.Precision, report.Recall, report.ROCAUC,
		report.TruePositives, report.FalsePositives,
		report.FalseNegatives, report.TrueNegatives,
	)
	for _, t := range report.Tiers {
		fmt.Fprintf(&b, "- %-8s %d (%.1f%%), observed readmission %.1f%%\n",
			t.Tier, t.Count, t.Percentage, t.ObservedRate*100)
	}
	return b.String()
}
