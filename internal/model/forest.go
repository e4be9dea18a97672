package model

import (
	"encoding/json"
	"fmt"
	"math"
)

// Classifier is the trained model behind the adapter. Implementations must be
// safe for concurrent use and must not change after construction.
type Classifier interface {
	// Classes lists the class labels in probability-vector order.
	Classes() []int
	NumFeatures() int
	PredictProba(features []float64) ([]float64, error)
	FeatureImportances() []float64
}

const ForestFormat = "random_forest/v1"

// ForestSpec is the JSON export of a fitted random forest. Each estimator
// uses the flat node arrays of a fitted decision tree; a node whose left
// child is -1 is a leaf.
type ForestSpec struct {
	Format             string     `json:"format"`
	Algorithm          string     `json:"algorithm,omitempty"`
	Classes            []int      `json:"classes"`
	NFeatures          int        `json:"n_features"`
	FeatureImportances []float64  `json:"feature_importances"`
	Estimators         []TreeSpec `json:"estimators"`
}

type TreeSpec struct {
	ChildrenLeft  []int       `json:"children_left"`
	ChildrenRight []int       `json:"children_right"`
	Feature       []int       `json:"feature"`
	Threshold     []float64   `json:"threshold"`
	Value         [][]float64 `json:"value"`
}

type tree struct {
	left      []int
	right     []int
	feature   []int
	threshold []float64
	// dist holds the normalised class distribution of each leaf.
	dist [][]float64
}

// Forest averages the leaf class distributions of its trees, matching the
// probability semantics of a fitted random forest classifier.
type Forest struct {
	classes     []int
	nFeatures   int
	importances []float64
	trees       []tree
}

func DecodeForest(data []byte) (*Forest, error) {
	var spec ForestSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to decode forest: %w", err)
	}
	return NewForest(spec)
}

func NewForest(spec ForestSpec) (*Forest, error) {
	if spec.Format != "" && spec.Format != ForestFormat {
		return nil, fmt.Errorf("unsupported model format %q", spec.Format)
	}
	if len(spec.Classes) < 2 {
		return nil, fmt.Errorf("forest needs at least two classes, got %d", len(spec.Classes))
	}
	if spec.NFeatures <= 0 {
		return nil, fmt.Errorf("forest has no features")
	}
	if len(spec.Estimators) == 0 {
		return nil, fmt.Errorf("forest has no estimators")
	}
	if len(spec.FeatureImportances) != 0 && len(spec.FeatureImportances) != spec.NFeatures {
		return nil, fmt.Errorf("forest has %d importances for %d features", len(spec.FeatureImportances), spec.NFeatures)
	}

	f := &Forest{
		classes:     append([]int(nil), spec.Classes...),
		nFeatures:   spec.NFeatures,
		importances: append([]float64(nil), spec.FeatureImportances...),
		trees:       make([]tree, 0, len(spec.Estimators)),
	}

	for i, ts := range spec.Estimators {
		t, err := buildTree(ts, len(spec.Classes), spec.NFeatures)
		if err != nil {
			return nil, fmt.Errorf("estimator %d: %w", i, err)
		}
		f.trees = append(f.trees, t)
	}

	return f, nil
}

func buildTree(ts TreeSpec, nClasses, nFeatures int) (tree, error) {
	n := len(ts.ChildrenLeft)
	if n == 0 {
		return tree{}, fmt.Errorf("tree has no nodes")
	}
	if len(ts.ChildrenRight) != n || len(ts.Feature) != n || len(ts.Threshold) != n || len(ts.Value) != n {
		return tree{}, fmt.Errorf("tree node arrays have mismatched lengths")
	}

	t := tree{
		left:      ts.ChildrenLeft,
		right:     ts.ChildrenRight,
		feature:   ts.Feature,
		threshold: ts.Threshold,
		dist:      make([][]float64, n),
	}

	for i := 0; i < n; i++ {
		if ts.ChildrenLeft[i] == -1 {
			if ts.ChildrenRight[i] != -1 {
				return tree{}, fmt.Errorf("node %d has only one child", i)
			}
			if len(ts.Value[i]) != nClasses {
				return tree{}, fmt.Errorf("leaf %d has %d class weights, want %d", i, len(ts.Value[i]), nClasses)
			}
			var total float64
			for _, w := range ts.Value[i] {
				if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
					return tree{}, fmt.Errorf("leaf %d has invalid weight %v", i, w)
				}
				total += w
			}
			if total == 0 {
				return tree{}, fmt.Errorf("leaf %d has zero total weight", i)
			}
			dist := make([]float64, nClasses)
			for c, w := range ts.Value[i] {
				dist[c] = w / total
			}
			t.dist[i] = dist
			continue
		}

		// Children always follow their parent in the flat layout, which also
		// rules out cycles.
		if ts.ChildrenLeft[i] <= i || ts.ChildrenLeft[i] >= n || ts.ChildrenRight[i] <= i || ts.ChildrenRight[i] >= n {
			return tree{}, fmt.Errorf("node %d has out-of-order children", i)
		}
		if ts.Feature[i] < 0 || ts.Feature[i] >= nFeatures {
			return tree{}, fmt.Errorf("node %d splits on feature %d of %d", i, ts.Feature[i], nFeatures)
		}
	}

	return t, nil
}

// leaf walks the tree. Features and thresholds are compared in float32 since
// the tree was fitted on float32 inputs.
func (t *tree) leaf(x []float64) []float64 {
	node := 0
	for t.left[node] != -1 {
		if float64(float32(x[t.feature[node]])) <= t.threshold[node] {
			node = t.left[node]
		} else {
			node = t.right[node]
		}
	}
	return t.dist[node]
}

func (f *Forest) Classes() []int {
	return append([]int(nil), f.classes...)
}

func (f *Forest) NumFeatures() int {
	return f.nFeatures
}

func (f *Forest) FeatureImportances() []float64 {
	return append([]float64(nil), f.importances...)
}

func (f *Forest) NumTrees() int {
	return len(f.trees)
}

func (f *Forest) PredictProba(x []float64) ([]float64, error) {
	if len(x) != f.nFeatures {
		return nil, &ShapeMismatchError{Expected: f.nFeatures, Got: len(x)}
	}

	proba := make([]float64, len(f.classes))
	for i := range f.trees {
		for c, p := range f.trees[i].leaf(x) {
			proba[c] += p
		}
	}

	n := float64(len(f.trees))
	for c := range proba {
		proba[c] /= n
	}
	return proba, nil
}
