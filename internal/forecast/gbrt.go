// Package forecast trains per-segment demand regressors and projects them
// forward under deterministic realism constraints.
package forecast

import (
	"fmt"
	"math"
	"sort"
)

// Gradient boosting hyperparameters. Fixed for reproducibility; the fit is
// fully deterministic (greedy exhaustive splits, no row or feature
// subsampling), so retraining on the same snapshot yields the same model.
const (
	gbrtEstimators   = 100
	gbrtLearningRate = 0.1
	gbrtMaxDepth     = 3
	gbrtMinLeaf      = 2
	// Split candidates per feature are capped to bound fit cost on long
	// series; candidates are value quantiles so the cap does not skew
	// splits toward either tail.
	gbrtMaxCandidates = 32
)

// gbNode is one node of a regression tree in flat-slice form.
type gbNode struct {
	Feature   int     `msgpack:"feature"`
	Threshold float64 `msgpack:"threshold"`
	Left      int     `msgpack:"left"`
	Right     int     `msgpack:"right"`
	Value     float64 `msgpack:"value"`
	Leaf      bool    `msgpack:"leaf"`
}

type gbTree struct {
	Nodes []gbNode `msgpack:"nodes"`
}

// GBRT is a gradient-boosted ensemble of shallow regression trees fit on
// squared-error residuals.
type GBRT struct {
	Base         float64  `msgpack:"base"`
	LearningRate float64  `msgpack:"learning_rate"`
	Trees        []gbTree `msgpack:"trees"`
	Fitted       bool     `msgpack:"fitted"`
}

// Fit trains the ensemble on the feature matrix x against target y.
func (g *GBRT) Fit(x [][]float64, y []float64) error {
	if len(x) == 0 || len(x) != len(y) {
		return fmt.Errorf("gbrt fit: need matching non-empty x and y, got %d and %d rows", len(x), len(y))
	}

	g.LearningRate = gbrtLearningRate
	g.Base = mean(y)

	pred := make([]float64, len(y))
	for i := range pred {
		pred[i] = g.Base
	}
	residual := make([]float64, len(y))

	idx := make([]int, len(x))
	for i := range idx {
		idx[i] = i
	}

	g.Trees = make([]gbTree, 0, gbrtEstimators)
	for t := 0; t < gbrtEstimators; t++ {
		for i := range y {
			residual[i] = y[i] - pred[i]
		}
		tree := gbTree{}
		buildGBTree(&tree, x, residual, idx, 0)
		g.Trees = append(g.Trees, tree)
		for i := range pred {
			pred[i] += g.LearningRate * predictTree(&tree, x[i])
		}
	}
	g.Fitted = true
	return nil
}

// Predict returns the model output for one feature row.
func (g *GBRT) Predict(row []float64) float64 {
	out := g.Base
	for t := range g.Trees {
		out += g.LearningRate * predictTree(&g.Trees[t], row)
	}
	return out
}

// PredictAll returns model outputs for every row.
func (g *GBRT) PredictAll(x [][]float64) []float64 {
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = g.Predict(row)
	}
	return out
}

// buildGBTree grows a depth-limited tree over the rows named by idx,
// returning the created node's index.
func buildGBTree(tree *gbTree, x [][]float64, target []float64, idx []int, depth int) int {
	nodeIdx := len(tree.Nodes)
	leafValue := meanAt(target, idx)

	if depth >= gbrtMaxDepth || len(idx) < 2*gbrtMinLeaf {
		tree.Nodes = append(tree.Nodes, gbNode{Leaf: true, Value: leafValue, Left: -1, Right: -1})
		return nodeIdx
	}

	feature, threshold, ok := bestSplit(x, target, idx)
	if !ok {
		tree.Nodes = append(tree.Nodes, gbNode{Leaf: true, Value: leafValue, Left: -1, Right: -1})
		return nodeIdx
	}

	var left, right []int
	for _, i := range idx {
		if x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	tree.Nodes = append(tree.Nodes, gbNode{Feature: feature, Threshold: threshold, Left: -1, Right: -1})
	tree.Nodes[nodeIdx].Left = buildGBTree(tree, x, target, left, depth+1)
	tree.Nodes[nodeIdx].Right = buildGBTree(tree, x, target, right, depth+1)
	return nodeIdx
}

// bestSplit finds the (feature, threshold) pair minimizing the summed
// squared error of the two children.
func bestSplit(x [][]float64, target []float64, idx []int) (feature int, threshold float64, ok bool) {
	bestScore := math.Inf(1)
	cols := len(x[idx[0]])

	values := make([]float64, 0, len(idx))
	for j := 0; j < cols; j++ {
		values = values[:0]
		for _, i := range idx {
			values = append(values, x[i][j])
		}
		for _, cand := range splitCandidates(values) {
			score, valid := splitScore(x, target, idx, j, cand)
			if valid && score < bestScore {
				bestScore = score
				feature = j
				threshold = cand
				ok = true
			}
		}
	}
	return feature, threshold, ok
}

func splitScore(x [][]float64, target []float64, idx []int, feature int, threshold float64) (float64, bool) {
	var nL, nR int
	var sumL, sumR float64
	for _, i := range idx {
		if x[i][feature] <= threshold {
			nL++
			sumL += target[i]
		} else {
			nR++
			sumR += target[i]
		}
	}
	if nL < gbrtMinLeaf || nR < gbrtMinLeaf {
		return 0, false
	}
	meanL := sumL / float64(nL)
	meanR := sumR / float64(nR)

	score := 0.0
	for _, i := range idx {
		var d float64
		if x[i][feature] <= threshold {
			d = target[i] - meanL
		} else {
			d = target[i] - meanR
		}
		score += d * d
	}
	return score, true
}

// splitCandidates returns midpoints between consecutive distinct values,
// downsampled to quantiles when there are many.
func splitCandidates(values []float64) []float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	uniq := sorted[:0]
	for i, v := range sorted {
		if i == 0 || v != uniq[len(uniq)-1] {
			uniq = append(uniq, v)
		}
	}
	if len(uniq) < 2 {
		return nil
	}

	mids := make([]float64, 0, len(uniq)-1)
	for i := 1; i < len(uniq); i++ {
		mids = append(mids, (uniq[i-1]+uniq[i])/2)
	}
	if len(mids) <= gbrtMaxCandidates {
		return mids
	}
	out := make([]float64, 0, gbrtMaxCandidates)
	step := float64(len(mids)) / float64(gbrtMaxCandidates)
	for i := 0; i < gbrtMaxCandidates; i++ {
		out = append(out, mids[int(float64(i)*step)])
	}
	return out
}

func predictTree(tree *gbTree, row []float64) float64 {
	idx := 0
	for {
		node := tree.Nodes[idx]
		if node.Leaf {
			return node.Value
		}
		if row[node.Feature] <= node.Threshold {
			idx = node.Left
		} else {
			idx = node.Right
		}
	}
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

func meanAt(v []float64, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	sum := 0.0
	for _, i := range idx {
		sum += v[i]
	}
	return sum / float64(len(idx))
}
