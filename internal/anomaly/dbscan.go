package anomaly

import "fmt"

// DBSCAN hyperparameters are fixed: cluster radius and minimum cluster
// size are design constants over the standardized feature space.
const (
	dbscanEps        = 0.5
	dbscanMinSamples = 5
)

// DBSCAN performs density-based clustering and treats noise points, those
// assigned to no cluster, as anomalies.
type DBSCAN struct {
	Eps        float64 `msgpack:"eps"`
	MinSamples int     `msgpack:"min_samples"`
}

// NewDBSCAN returns a clustering detector with the fixed hyperparameters.
func NewDBSCAN() *DBSCAN {
	return &DBSCAN{Eps: dbscanEps, MinSamples: dbscanMinSamples}
}

const (
	labelUndefined = -2
	labelNoise     = -1
)

// Detect clusters the standardized matrix and flags noise points. The
// returned labels use -1 for noise and 0..k-1 for cluster membership.
func (d *DBSCAN) Detect(x [][]float64) ([]bool, []int, error) {
	n := len(x)
	if n == 0 {
		return nil, nil, fmt.Errorf("dbscan detect: empty matrix")
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = labelUndefined
	}

	cluster := 0
	for i := 0; i < n; i++ {
		if labels[i] != labelUndefined {
			continue
		}
		seeds := d.regionQuery(x, i)
		if len(seeds) < d.MinSamples {
			labels[i] = labelNoise
			continue
		}
		labels[i] = cluster
		// Expand the cluster over the seed set; the set grows as new
		// core points are found.
		for s := 0; s < len(seeds); s++ {
			j := seeds[s]
			if labels[j] == labelNoise {
				labels[j] = cluster // border point reclaimed from noise
			}
			if labels[j] != labelUndefined {
				continue
			}
			labels[j] = cluster
			jSeeds := d.regionQuery(x, j)
			if len(jSeeds) >= d.MinSamples {
				seeds = append(seeds, jSeeds...)
			}
		}
		cluster++
	}

	flags := make([]bool, n)
	for i, l := range labels {
		flags[i] = l == labelNoise
	}
	return flags, labels, nil
}

// regionQuery returns the indexes of all points within eps of point i,
// including i itself.
func (d *DBSCAN) regionQuery(x [][]float64, i int) []int {
	var out []int
	for j := range x {
		if euclidean(x[i], x[j]) <= d.Eps {
			out = append(out, j)
		}
	}
	return out
}
