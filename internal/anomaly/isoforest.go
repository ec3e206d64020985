package anomaly

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Isolation forest hyperparameters. Fixed, matching the convention of 100
// estimators with 256-point subsamples and a deterministic seed so retrains
// over the same snapshot produce the same model.
const (
	isoTrees      = 100
	isoSubsample  = 256
	isoRandomSeed = 42
)

// isoNode is one node of an isolation tree. Nodes are stored in a flat
// slice with child indexes so the whole forest serializes cleanly.
type isoNode struct {
	Feature  int     `msgpack:"feature"`
	Split    float64 `msgpack:"split"`
	Left     int     `msgpack:"left"`
	Right    int     `msgpack:"right"`
	Size     int     `msgpack:"size"`
	External bool    `msgpack:"external"`
}

type isoTree struct {
	Nodes []isoNode `msgpack:"nodes"`
}

// IsolationForest flags points that isolate in few random splits. Scores
// follow the standard formulation: s(x) = 2^(-E[h(x)]/c(n)), where h is the
// path length and c(n) the average path length of an unsuccessful BST
// search. Points scoring above the fitted contamination quantile are
// anomalous.
type IsolationForest struct {
	Trees         []isoTree `msgpack:"trees"`
	SampleSize    int       `msgpack:"sample_size"`
	Contamination float64   `msgpack:"contamination"`
	Threshold     float64   `msgpack:"threshold"`
	Fitted        bool      `msgpack:"fitted"`
}

// Fit grows the forest on a standardized feature matrix and fixes the
// anomaly threshold at the (1 - contamination) quantile of the training
// scores.
func (f *IsolationForest) Fit(x [][]float64, contamination float64) error {
	if len(x) == 0 {
		return fmt.Errorf("isolation forest fit: empty matrix")
	}
	f.Contamination = contamination
	f.SampleSize = isoSubsample
	if f.SampleSize > len(x) {
		f.SampleSize = len(x)
	}
	heightLimit := int(math.Ceil(math.Log2(float64(f.SampleSize))))
	if heightLimit < 1 {
		heightLimit = 1
	}

	rng := rand.New(rand.NewSource(isoRandomSeed))
	f.Trees = make([]isoTree, isoTrees)
	for t := range f.Trees {
		sample := subsample(x, f.SampleSize, rng)
		tree := &f.Trees[t]
		buildIsoTree(tree, sample, 0, heightLimit, rng)
	}
	f.Fitted = true

	scores := f.Scores(x)
	f.Threshold = upperQuantile(scores, contamination)
	return nil
}

// Scores returns the anomaly score of every row.
func (f *IsolationForest) Scores(x [][]float64) []float64 {
	cn := avgPathLength(f.SampleSize)
	scores := make([]float64, len(x))
	for i, row := range x {
		total := 0.0
		for t := range f.Trees {
			total += pathLength(&f.Trees[t], row)
		}
		mean := total / float64(len(f.Trees))
		scores[i] = math.Pow(2, -mean/cn)
	}
	return scores
}

// Predict flags the rows whose score exceeds the fitted threshold.
func (f *IsolationForest) Predict(x [][]float64) ([]bool, []float64, error) {
	if !f.Fitted {
		return nil, nil, fmt.Errorf("isolation forest predict: not fitted")
	}
	scores := f.Scores(x)
	flags := make([]bool, len(scores))
	for i, s := range scores {
		flags[i] = s > f.Threshold
	}
	return flags, scores, nil
}

// buildIsoTree grows a tree over sample, returning the index of the
// created node.
func buildIsoTree(tree *isoTree, sample [][]float64, depth, heightLimit int, rng *rand.Rand) int {
	idx := len(tree.Nodes)
	if depth >= heightLimit || len(sample) <= 1 || allRowsEqual(sample) {
		tree.Nodes = append(tree.Nodes, isoNode{External: true, Size: len(sample), Left: -1, Right: -1})
		return idx
	}

	cols := len(sample[0])
	feature, lo, hi := -1, 0.0, 0.0
	// Pick a feature that actually varies in this sample.
	for attempt := 0; attempt < cols; attempt++ {
		j := rng.Intn(cols)
		mn, mx := columnRange(sample, j)
		if mx > mn {
			feature, lo, hi = j, mn, mx
			break
		}
	}
	if feature < 0 {
		tree.Nodes = append(tree.Nodes, isoNode{External: true, Size: len(sample), Left: -1, Right: -1})
		return idx
	}

	split := lo + rng.Float64()*(hi-lo)
	var left, right [][]float64
	for _, row := range sample {
		if row[feature] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}

	tree.Nodes = append(tree.Nodes, isoNode{Feature: feature, Split: split, Size: len(sample), Left: -1, Right: -1})
	tree.Nodes[idx].Left = buildIsoTree(tree, left, depth+1, heightLimit, rng)
	tree.Nodes[idx].Right = buildIsoTree(tree, right, depth+1, heightLimit, rng)
	return idx
}

func pathLength(tree *isoTree, row []float64) float64 {
	idx := 0
	depth := 0.0
	for {
		node := tree.Nodes[idx]
		if node.External {
			return depth + avgPathLength(node.Size)
		}
		if row[node.Feature] < node.Split {
			idx = node.Left
		} else {
			idx = node.Right
		}
		depth++
	}
}

// avgPathLength is c(n), the average path length of an unsuccessful BST
// search over n points.
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+0.5772156649) - 2*(fn-1)/fn
}

func subsample(x [][]float64, size int, rng *rand.Rand) [][]float64 {
	if size >= len(x) {
		return x
	}
	idxs := rng.Perm(len(x))[:size]
	out := make([][]float64, size)
	for i, idx := range idxs {
		out[i] = x[idx]
	}
	return out
}

func columnRange(x [][]float64, j int) (mn, mx float64) {
	mn, mx = x[0][j], x[0][j]
	for _, row := range x[1:] {
		if row[j] < mn {
			mn = row[j]
		}
		if row[j] > mx {
			mx = row[j]
		}
	}
	return mn, mx
}

func allRowsEqual(x [][]float64) bool {
	for _, row := range x[1:] {
		for j, v := range row {
			if v != x[0][j] {
				return false
			}
		}
	}
	return true
}

// upperQuantile returns the value below which (1 - q) of the scores fall,
// so that roughly a q fraction of training points exceed it.
func upperQuantile(scores []float64, q float64) float64 {
	if len(scores) == 0 {
		return math.Inf(1)
	}
	sorted := make([]float64, len(scores))
	copy(sorted, scores)
	sort.Float64s(sorted)
	idx := int(math.Ceil(float64(len(sorted))*(1-q))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
