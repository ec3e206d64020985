package anomaly

import (
	"fmt"
	"math"
	"sort"
)

// lofNeighbors is the fixed neighborhood size for the density comparison.
const lofNeighbors = 20

// LocalOutlierFactor flags points whose local density is low relative to
// their neighbors'. Factors near 1 indicate a point as dense as its
// neighborhood; factors well above 1 indicate a sparse neighborhood. The
// detector operates over the matrix it is handed, so verdicts for a row set
// are a deterministic function of that row set and the hyperparameters.
type LocalOutlierFactor struct {
	K             int     `msgpack:"k"`
	Contamination float64 `msgpack:"contamination"`
}

// NewLocalOutlierFactor returns a density detector with the fixed
// neighborhood size and the given contamination rate.
func NewLocalOutlierFactor(contamination float64) *LocalOutlierFactor {
	return &LocalOutlierFactor{K: lofNeighbors, Contamination: contamination}
}

// Detect computes local outlier factors over the standardized matrix and
// flags the top contamination fraction.
func (l *LocalOutlierFactor) Detect(x [][]float64) ([]bool, []float64, error) {
	n := len(x)
	if n == 0 {
		return nil, nil, fmt.Errorf("lof detect: empty matrix")
	}
	k := l.K
	if k >= n {
		k = n - 1
	}
	if k < 1 {
		// A single point has no neighborhood to compare against.
		return make([]bool, n), make([]float64, n), nil
	}

	// Pairwise distances and k-nearest neighborhoods.
	neighbors := make([][]int, n)
	kDist := make([]float64, n)
	dists := make([][]float64, n)
	for i := 0; i < n; i++ {
		dists[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := euclidean(x[i], x[j])
			dists[i][j] = d
			dists[j][i] = d
		}
	}
	for i := 0; i < n; i++ {
		order := make([]int, 0, n-1)
		for j := 0; j < n; j++ {
			if j != i {
				order = append(order, j)
			}
		}
		sort.Slice(order, func(a, b int) bool {
			return dists[i][order[a]] < dists[i][order[b]]
		})
		neighbors[i] = order[:k]
		kDist[i] = dists[i][order[k-1]]
	}

	// Local reachability density.
	lrd := make([]float64, n)
	for i := 0; i < n; i++ {
		sum := 0.0
		for _, j := range neighbors[i] {
			reach := dists[i][j]
			if kDist[j] > reach {
				reach = kDist[j]
			}
			sum += reach
		}
		lrd[i] = float64(k) / (sum + 1e-12)
	}

	// Outlier factor: mean neighbor density over own density.
	factors := make([]float64, n)
	for i := 0; i < n; i++ {
		sum := 0.0
		for _, j := range neighbors[i] {
			sum += lrd[j]
		}
		factors[i] = sum / float64(k) / (lrd[i] + 1e-12)
	}

	threshold := upperQuantile(factors, l.Contamination)
	// Never flag points that look denser than or equal to their
	// neighborhood, regardless of quantile position.
	if threshold < 1.0 {
		threshold = 1.0
	}
	flags := make([]bool, n)
	for i, f := range factors {
		flags[i] = f > threshold
	}
	return flags, factors, nil
}

func euclidean(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
