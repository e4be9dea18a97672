// Package explain ranks model features by their global importance.
package explain

import (
	"fmt"
	"iter"
	"math"
	"sort"
)

type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// Reporter holds the importance ranking of the loaded model. The ranking is
// computed once; Rank replays it.
type Reporter struct {
	ranked []FeatureImportance
}

func NewReporter(features []string, importances []float64) (*Reporter, error) {
	if len(features) != len(importances) {
		return nil, fmt.Errorf("%d features but %d importance scores", len(features), len(importances))
	}

	ranked := make([]FeatureImportance, len(features))
	for i, name := range features {
		score := importances[i]
		if score < 0 || math.IsNaN(score) || math.IsInf(score, 0) {
			return nil, fmt.Errorf("feature %q has invalid importance %v", name, score)
		}
		ranked[i] = FeatureImportance{Feature: name, Importance: score}
	}

	// Ties keep model column order.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Importance > ranked[j].Importance
	})

	return &Reporter{ranked: ranked}, nil
}

// Rank yields features in descending importance. The sequence can be ranged
// over any number of times.
func (r *Reporter) Rank() iter.Seq[FeatureImportance] {
	return func(yield func(FeatureImportance) bool) {
		for _, fi := range r.ranked {
			if !yield(fi) {
				return
			}
		}
	}
}

// Top returns up to n leading entries; n <= 0 returns all of them.
func (r *Reporter) Top(n int) []FeatureImportance {
	if n <= 0 || n > len(r.ranked) {
		n = len(r.ranked)
	}
	out := make([]FeatureImportance, n)
	copy(out, r.ranked[:n])
	return out
}

func (r *Reporter) Len() int {
	return len(r.ranked)
}
