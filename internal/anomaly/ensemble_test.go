package anomaly

import (
	"math"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/smartrental/rentaltracker/internal/features"
	"github.com/smartrental/rentaltracker/internal/types"
)

// healthyRecords generates a fleet of normal-looking usage records with a
// fixed seed so every test run sees the same data.
func healthyRecords(n int) []types.UsageRecord {
	rng := rand.New(rand.NewSource(7))
	out := make([]types.UsageRecord, n)
	base := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = types.UsageRecord{
			EquipmentID:       "EQ1000",
			EquipmentType:     "Excavator",
			SiteID:            "S001",
			CheckOutDate:      base,
			CheckInDate:       base.AddDate(0, 0, 5+rng.Intn(10)),
			EngineHoursPerDay: 5 + rng.Float64()*4,
			IdleHoursPerDay:   1 + rng.Float64()*3,
			OperatingDays:     10,
		}
	}
	return out
}

func idleOutlier() types.UsageRecord {
	return types.UsageRecord{
		EquipmentID:       "EQ9999",
		EquipmentType:     "Excavator",
		SiteID:            "S001",
		CheckOutDate:      time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
		CheckInDate:       time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC),
		EngineHoursPerDay: 0,
		IdleHoursPerDay:   20,
		OperatingDays:     9,
	}
}

func trainedEnsemble(t *testing.T, records []types.UsageRecord, params DetectorParams) (*Ensemble, []features.UsageFeatures) {
	t.Helper()
	rows := features.EngineerUsage(records)
	e, err := Train(features.UsageMatrix(rows), features.UsageFeatureColumns, params)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	return e, rows
}

func TestStandardScalerRoundtrip(t *testing.T) {
	x := [][]float64{{1, 10}, {2, 10}, {3, 10}}
	s := &StandardScaler{}
	if err := s.Fit(x); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	scaled, err := s.Transform(x)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	// First column standardizes; second is constant and only centers.
	if math.Abs(scaled[0][0]+1) > 1e-9 || math.Abs(scaled[2][0]-1) > 1e-9 {
		t.Errorf("column 0 scaled to %v, %v; want -1, 1", scaled[0][0], scaled[2][0])
	}
	for i := range scaled {
		if scaled[i][1] != 0 {
			t.Errorf("constant column row %d = %v, want 0", i, scaled[i][1])
		}
	}

	if _, err := s.Transform([][]float64{{1}}); err == nil {
		t.Error("expected column-count mismatch error")
	}
}

func TestComputeThresholdsExcludesNaN(t *testing.T) {
	x := [][]float64{{1}, {math.NaN()}, {3}}
	set := ComputeThresholds(x, []string{"f"})

	band := set["f"]
	if band.Mean != 2 {
		t.Errorf("Mean = %v, want 2 (NaN excluded)", band.Mean)
	}
	wantStd := math.Sqrt(2) // sample std of {1, 3}
	if math.Abs(band.Std-wantStd) > 1e-9 {
		t.Errorf("Std = %v, want %v", band.Std, wantStd)
	}
	if band.Upper2 != band.Mean+2*band.Std || band.Lower3 != band.Mean-3*band.Std {
		t.Error("band bounds not derived from mean and std")
	}
}

func TestEnsembleFlagsIdleOutlier(t *testing.T) {
	records := append(healthyRecords(60), idleOutlier())
	e, rows := trainedEnsemble(t, records, DefaultParams())

	verdicts, err := e.Detect(rows)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}

	outlier := verdicts[len(verdicts)-1]
	if !outlier.Statistical {
		t.Error("statistical method should flag a 0-engine/20-idle record")
	}
	if outlier.StatisticalScore == 0 || len(outlier.Violations) == 0 {
		t.Error("expected band violations for the outlier")
	}
	if !outlier.Consensus {
		t.Error("expected consensus on an extreme outlier")
	}
	if outlier.AnomalyType != "high_idle_time" {
		t.Errorf("AnomalyType = %q, want high_idle_time", outlier.AnomalyType)
	}

	// The healthy majority should mostly pass.
	flagged := 0
	for _, v := range verdicts[:len(verdicts)-1] {
		if v.Consensus {
			flagged++
		}
	}
	if flagged > len(verdicts)/4 {
		t.Errorf("%d of %d healthy rows flagged; ensemble too aggressive", flagged, len(verdicts)-1)
	}
}

func TestConsensusThresholdMonotonic(t *testing.T) {
	records := append(healthyRecords(60), idleOutlier())

	strict := DefaultParams()
	strict.ConsensusThreshold = 2
	loose := DefaultParams()
	loose.ConsensusThreshold = 1

	eStrict, rows := trainedEnsemble(t, records, strict)
	eLoose, _ := trainedEnsemble(t, records, loose)

	strictVerdicts, err := eStrict.Detect(rows)
	if err != nil {
		t.Fatalf("strict Detect: %v", err)
	}
	looseVerdicts, err := eLoose.Detect(rows)
	if err != nil {
		t.Fatalf("loose Detect: %v", err)
	}

	// Lowering the consensus threshold can only add anomalies.
	for i := range strictVerdicts {
		if strictVerdicts[i].Consensus && !looseVerdicts[i].Consensus {
			t.Errorf("row %d: consensus at threshold 2 but not at threshold 1", i)
		}
	}
}

func TestDetectBeforeTraining(t *testing.T) {
	e := &Ensemble{}
	if _, err := e.Detect(features.EngineerUsage(healthyRecords(3))); err == nil {
		t.Error("expected error from untrained ensemble")
	}
}

func TestViolationString(t *testing.T) {
	v := Violation{Feature: "idle_hours_per_day", Observed: 20, Mean: 2.5, Std: 1.25}
	got := v.String()
	if !strings.Contains(got, "idle_hours_per_day") || !strings.Contains(got, "normal: 2.50±1.25") {
		t.Errorf("String() = %q", got)
	}
}

func TestIsolationForestDeterministic(t *testing.T) {
	rows := features.EngineerUsage(append(healthyRecords(50), idleOutlier()))
	x := features.UsageMatrix(rows)

	s := &StandardScaler{}
	if err := s.Fit(x); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	scaled, _ := s.Transform(x)

	f1 := &IsolationForest{}
	f2 := &IsolationForest{}
	if err := f1.Fit(scaled, 0.1); err != nil {
		t.Fatalf("forest fit: %v", err)
	}
	if err := f2.Fit(scaled, 0.1); err != nil {
		t.Fatalf("forest fit: %v", err)
	}

	_, scores1, _ := f1.Predict(scaled)
	_, scores2, _ := f2.Predict(scaled)
	for i := range scores1 {
		if scores1[i] != scores2[i] {
			t.Fatalf("row %d: scores differ between identically seeded forests", i)
		}
	}

	// The planted outlier should isolate more easily than the median row.
	if scores1[len(scores1)-1] <= scores1[0] {
		t.Errorf("outlier score %v not above healthy score %v", scores1[len(scores1)-1], scores1[0])
	}
}

func TestLOFSmallMatrix(t *testing.T) {
	lof := NewLocalOutlierFactor(0.1)

	// Fewer rows than the neighborhood size must not panic; a lone point
	// has no neighborhood and is never flagged.
	flags, _, err := lof.Detect([][]float64{{1, 2}})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if flags[0] {
		t.Error("single point should not be flagged")
	}
}

func TestDBSCANNoisePoint(t *testing.T) {
	// A tight cluster plus one far-away point: the point is noise.
	var x [][]float64
	for i := 0; i < 10; i++ {
		x = append(x, []float64{float64(i) * 0.01, 0})
	}
	x = append(x, []float64{50, 50})

	flags, labels, err := NewDBSCAN().Detect(x)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if !flags[len(flags)-1] {
		t.Error("distant point should be labeled noise")
	}
	if labels[len(labels)-1] != -1 {
		t.Errorf("noise label = %d, want -1", labels[len(labels)-1])
	}
	for i := 0; i < 10; i++ {
		if flags[i] {
			t.Errorf("cluster point %d flagged as noise", i)
		}
	}
}
