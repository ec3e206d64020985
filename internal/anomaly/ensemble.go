package anomaly

import (
	"fmt"
	"math"

	"github.com/smartrental/rentaltracker/internal/features"
)

// DetectorParams are the tunable knobs of the ensemble. All are design
// constants at runtime but exposed for testing.
type DetectorParams struct {
	// Contamination is the expected fraction of anomalous points.
	Contamination float64 `msgpack:"contamination"`
	// SigmaBand selects the 2σ or 3σ band for the statistical method.
	SigmaBand int `msgpack:"sigma_band"`
	// ConsensusThreshold is the number of agreeing methods needed to
	// declare a consensus anomaly.
	ConsensusThreshold int `msgpack:"consensus_threshold"`
}

// DefaultParams returns the ensemble defaults: 10% contamination, 2σ
// statistical bands, consensus at 2 of 4 methods.
func DefaultParams() DetectorParams {
	return DetectorParams{
		Contamination:      0.1,
		SigmaBand:          2,
		ConsensusThreshold: 2,
	}
}

// Violation is one statistical band violation: the feature, the observed
// value, and the baseline it broke.
type Violation struct {
	Feature  string  `json:"feature" msgpack:"feature"`
	Observed float64 `json:"observed" msgpack:"observed"`
	Mean     float64 `json:"baseline_mean" msgpack:"baseline_mean"`
	Std      float64 `json:"baseline_std" msgpack:"baseline_std"`
}

// String renders the violation in the report form "feature: observed
// (normal: mean±std)".
func (v Violation) String() string {
	return fmt.Sprintf("%s: %.2f (normal: %.2f±%.2f)", v.Feature, v.Observed, v.Mean, v.Std)
}

// Verdict is the ensemble's output for one input row: the four independent
// method flags, the consensus flag, and the statistical reasons.
type Verdict struct {
	Statistical bool `json:"statistical"`
	Isolation   bool `json:"isolation"`
	Density     bool `json:"density"`
	Clustering  bool `json:"clustering"`

	Consensus bool `json:"is_consensus_anomaly"`
	// MethodVotes is the number of methods that flagged the row.
	MethodVotes int `json:"method_votes"`
	// StatisticalScore counts the features outside their band.
	StatisticalScore int     `json:"statistical_score"`
	IsolationScore   float64 `json:"isolation_score"`

	Violations  []Violation `json:"violations,omitempty"`
	AnomalyType string      `json:"anomaly_type"`
	Severity    string      `json:"severity"`
}

// Ensemble holds everything fitted at training time: the shared scaler,
// the statistical thresholds, the isolation forest, and the hyperparameters
// of the two recompute-on-demand detectors. The ensemble is immutable once
// trained; retraining produces a new value.
type Ensemble struct {
	Columns    []string            `msgpack:"columns"`
	Params     DetectorParams      `msgpack:"params"`
	Scaler     *StandardScaler     `msgpack:"scaler"`
	Thresholds ThresholdSet        `msgpack:"thresholds"`
	Forest     *IsolationForest    `msgpack:"forest"`
	LOF        *LocalOutlierFactor `msgpack:"lof"`
	Clusterer  *DBSCAN             `msgpack:"dbscan"`
	Trained    bool                `msgpack:"trained"`
}

// Train fits the ensemble on a raw usage feature matrix: thresholds from
// the raw values, then one scaler fit shared by all methods, then the
// isolation forest over the standardized space.
func Train(x [][]float64, columns []string, params DetectorParams) (*Ensemble, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("ensemble train: empty matrix")
	}
	e := &Ensemble{
		Columns:    columns,
		Params:     params,
		Scaler:     &StandardScaler{},
		Forest:     &IsolationForest{},
		LOF:        NewLocalOutlierFactor(params.Contamination),
		Clusterer:  NewDBSCAN(),
		Thresholds: ComputeThresholds(x, columns),
	}
	if err := e.Scaler.Fit(x); err != nil {
		return nil, err
	}
	scaled, err := e.Scaler.Transform(x)
	if err != nil {
		return nil, err
	}
	if err := e.Forest.Fit(scaled, params.Contamination); err != nil {
		return nil, err
	}
	e.Trained = true
	return e, nil
}

// Detect runs all four methods over the engineered rows and combines their
// flags into consensus verdicts. The row order of the output matches the
// input.
func (e *Ensemble) Detect(rows []features.UsageFeatures) ([]Verdict, error) {
	if !e.Trained {
		return nil, fmt.Errorf("ensemble detect: not trained")
	}
	if len(rows) == 0 {
		return nil, nil
	}

	raw := features.UsageMatrix(rows)
	scaled, err := e.Scaler.Transform(raw)
	if err != nil {
		return nil, err
	}

	isoFlags, isoScores, err := e.Forest.Predict(scaled)
	if err != nil {
		return nil, err
	}
	lofFlags, _, err := e.LOF.Detect(scaled)
	if err != nil {
		return nil, err
	}
	dbFlags, _, err := e.Clusterer.Detect(scaled)
	if err != nil {
		return nil, err
	}

	verdicts := make([]Verdict, len(rows))
	for i := range rows {
		v := Verdict{
			Isolation:      isoFlags[i],
			Density:        lofFlags[i],
			Clustering:     dbFlags[i],
			IsolationScore: isoScores[i],
		}
		v.Violations = e.bandViolations(raw[i])
		v.StatisticalScore = len(v.Violations)
		v.Statistical = v.StatisticalScore > 0

		for _, flagged := range []bool{v.Statistical, v.Isolation, v.Density, v.Clustering} {
			if flagged {
				v.MethodVotes++
			}
		}
		v.Consensus = v.MethodVotes >= e.Params.ConsensusThreshold
		v.AnomalyType = classify(rows[i], v)
		v.Severity = severity(v)
		verdicts[i] = v
	}
	return verdicts, nil
}

// bandViolations returns the fixed-shape reason records for every feature
// outside its configured σ-band.
func (e *Ensemble) bandViolations(raw []float64) []Violation {
	var out []Violation
	for j, name := range e.Columns {
		band, ok := e.Thresholds[name]
		if !ok || j >= len(raw) || math.IsNaN(raw[j]) {
			continue
		}
		lower, upper := band.Bounds(e.Params.SigmaBand)
		if raw[j] > upper || raw[j] < lower {
			out = append(out, Violation{
				Feature:  name,
				Observed: raw[j],
				Mean:     band.Mean,
				Std:      band.Std,
			})
		}
	}
	return out
}

// classify names the dominant usage pattern behind a flagged row. Rows no
// method flagged are "normal".
func classify(f features.UsageFeatures, v Verdict) string {
	if v.MethodVotes == 0 {
		return "normal"
	}
	switch {
	case f.Record.IdleHoursPerDay > 12:
		return "high_idle_time"
	case f.Record.EngineHoursPerDay == 0 && f.Record.IdleHoursPerDay > 8:
		return "unused_equipment"
	case f.UtilizationEfficiency < features.LowUtilizationThreshold:
		return "low_utilization"
	case f.EfficiencyScore < 0.3:
		return "low_efficiency"
	default:
		return "usage_pattern_anomaly"
	}
}

func severity(v Verdict) string {
	switch {
	case v.MethodVotes >= 3 || v.IsolationScore >= 0.7:
		return "high"
	case v.MethodVotes == 2 || v.IsolationScore >= 0.6:
		return "medium"
	default:
		return "low"
	}
}
