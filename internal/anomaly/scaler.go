// Package anomaly implements the multi-method anomaly detection ensemble:
// statistical σ-band checks, an isolation forest, a nearest-neighbor
// density detector, and a density-based clustering detector, combined by
// consensus over one shared standardized feature space.
package anomaly

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// StandardScaler standardizes features to zero mean and unit variance.
// One scaler is fit per training snapshot and shared by every detector so
// their verdicts are comparable.
type StandardScaler struct {
	Means  []float64 `msgpack:"means"`
	Stds   []float64 `msgpack:"stds"`
	Fitted bool      `msgpack:"fitted"`
}

// Fit computes per-column means and sample standard deviations.
func (s *StandardScaler) Fit(x [][]float64) error {
	if len(x) == 0 {
		return fmt.Errorf("scaler fit: empty matrix")
	}
	cols := len(x[0])
	s.Means = make([]float64, cols)
	s.Stds = make([]float64, cols)
	col := make([]float64, len(x))
	for j := 0; j < cols; j++ {
		for i := range x {
			col[i] = x[i][j]
		}
		s.Means[j] = stat.Mean(col, nil)
		sd := stat.StdDev(col, nil)
		if math.IsNaN(sd) || sd == 0 {
			sd = 1 // constant column; leave values centered only
		}
		s.Stds[j] = sd
	}
	s.Fitted = true
	return nil
}

// Transform standardizes a matrix using the fitted parameters.
func (s *StandardScaler) Transform(x [][]float64) ([][]float64, error) {
	if !s.Fitted {
		return nil, fmt.Errorf("scaler transform: not fitted")
	}
	out := make([][]float64, len(x))
	for i, row := range x {
		if len(row) != len(s.Means) {
			return nil, fmt.Errorf("scaler transform: row has %d columns, scaler fit on %d", len(row), len(s.Means))
		}
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = (v - s.Means[j]) / s.Stds[j]
		}
		out[i] = scaled
	}
	return out, nil
}
