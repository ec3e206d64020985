package anomaly

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Band holds the statistical baseline for one feature: its mean, sample
// standard deviation, and the 2σ/3σ acceptance bounds.
type Band struct {
	Mean   float64 `msgpack:"mean"`
	Std    float64 `msgpack:"std"`
	Upper2 float64 `msgpack:"upper_2std"`
	Lower2 float64 `msgpack:"lower_2std"`
	Upper3 float64 `msgpack:"upper_3std"`
	Lower3 float64 `msgpack:"lower_3std"`
}

// Bounds returns the band limits for a σ multiplier of 2 or 3. Any other
// value falls back to 3σ.
func (b Band) Bounds(sigma int) (lower, upper float64) {
	if sigma == 2 {
		return b.Lower2, b.Upper2
	}
	return b.Lower3, b.Upper3
}

// ThresholdSet maps feature names to their statistical bands. Computed once
// per training snapshot from that snapshot only; immutable afterward.
type ThresholdSet map[string]Band

// ComputeThresholds derives per-feature bands from a raw (unscaled) feature
// matrix. NaN cells are excluded from the statistics, not treated as zero.
func ComputeThresholds(x [][]float64, columns []string) ThresholdSet {
	set := make(ThresholdSet, len(columns))
	for j, name := range columns {
		values := make([]float64, 0, len(x))
		for i := range x {
			if j < len(x[i]) && !math.IsNaN(x[i][j]) {
				values = append(values, x[i][j])
			}
		}
		if len(values) == 0 {
			continue
		}
		mean := stat.Mean(values, nil)
		sd := stat.StdDev(values, nil)
		if math.IsNaN(sd) {
			sd = 0
		}
		set[name] = Band{
			Mean:   mean,
			Std:    sd,
			Upper2: mean + 2*sd,
			Lower2: mean - 2*sd,
			Upper3: mean + 3*sd,
			Lower3: mean - 3*sd,
		}
	}
	return set
}
