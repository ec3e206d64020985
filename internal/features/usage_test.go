package features

import (
	"math"
	"testing"
	"time"

	"github.com/smartrental/rentaltracker/internal/types"
)

const epsilon = 1e-9

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestEngineerUsageRatios(t *testing.T) {
	tests := []struct {
		name       string
		engine     float64
		idle       float64
		wantIdle   float64
		wantUtil   float64
		zeroEngine bool
	}{
		{"balanced", 6, 2, 0.25, 0.75, false},
		{"all idle", 0, 8, 1.0, 0.0, true},
		{"all engine", 8, 0, 0.0, 1.0, false},
		{"zero usage", 0, 0, 0.0, 0.0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := EngineerUsage([]types.UsageRecord{{
				EquipmentID:       "EQ0001",
				EngineHoursPerDay: tt.engine,
				IdleHoursPerDay:   tt.idle,
				CheckOutDate:      day(2025, 3, 1),
				CheckInDate:       day(2025, 3, 11),
			}})
			f := rows[0]

			if math.Abs(f.IdleRatio-tt.wantIdle) > 1e-6 {
				t.Errorf("IdleRatio = %v, want %v", f.IdleRatio, tt.wantIdle)
			}
			if math.Abs(f.UtilizationEfficiency-tt.wantUtil) > 1e-6 {
				t.Errorf("UtilizationEfficiency = %v, want %v", f.UtilizationEfficiency, tt.wantUtil)
			}
			if f.ZeroEngineHours != tt.zeroEngine {
				t.Errorf("ZeroEngineHours = %v, want %v", f.ZeroEngineHours, tt.zeroEngine)
			}
		})
	}
}

func TestEngineerUsageRatiosSumToOne(t *testing.T) {
	// For any record with nonzero total hours, idle ratio and utilization
	// must sum to (almost exactly) 1.
	records := []types.UsageRecord{
		{EngineHoursPerDay: 3.5, IdleHoursPerDay: 2.1, CheckOutDate: day(2025, 1, 1), CheckInDate: day(2025, 1, 5)},
		{EngineHoursPerDay: 0.1, IdleHoursPerDay: 11.9, CheckOutDate: day(2025, 1, 1), CheckInDate: day(2025, 1, 5)},
		{EngineHoursPerDay: 12, IdleHoursPerDay: 0.5, CheckOutDate: day(2025, 1, 1), CheckInDate: day(2025, 1, 5)},
	}
	for i, f := range EngineerUsage(records) {
		sum := f.IdleRatio + f.UtilizationEfficiency
		if math.Abs(sum-1.0) > 1e-6 {
			t.Errorf("record %d: idle+util = %v, want ~1", i, sum)
		}
	}
}

func TestEngineerUsageNormalizedDuration(t *testing.T) {
	records := []types.UsageRecord{
		{CheckOutDate: day(2025, 5, 1), CheckInDate: day(2025, 5, 11)}, // 10 days
		{CheckOutDate: day(2025, 5, 1), CheckInDate: day(2025, 5, 21)}, // 20 days, max
		{CheckOutDate: day(2025, 5, 1), CheckInDate: day(2025, 5, 6)},  // 5 days
	}
	rows := EngineerUsage(records)

	want := []float64{0.5, 1.0, 0.25}
	for i, w := range want {
		if math.Abs(rows[i].NormalizedDuration-w) > epsilon {
			t.Errorf("row %d: NormalizedDuration = %v, want %v", i, rows[i].NormalizedDuration, w)
		}
	}
}

func TestEngineerUsageEfficiencyScore(t *testing.T) {
	rows := EngineerUsage([]types.UsageRecord{{
		EngineHoursPerDay: 6,
		IdleHoursPerDay:   4,
		CheckOutDate:      day(2025, 5, 1),
		CheckInDate:       day(2025, 5, 2),
	}})

	// (6*0.6 + (24-4)*0.4) / 24
	want := (6*0.6 + 20*0.4) / 24
	if math.Abs(rows[0].EfficiencyScore-want) > epsilon {
		t.Errorf("EfficiencyScore = %v, want %v", rows[0].EfficiencyScore, want)
	}
}

func TestEngineerUsageFlags(t *testing.T) {
	rows := EngineerUsage([]types.UsageRecord{
		{EngineHoursPerDay: 1, IdleHoursPerDay: 9, CheckOutDate: day(2025, 5, 1), CheckInDate: day(2025, 5, 2)},
		{EngineHoursPerDay: 9, IdleHoursPerDay: 1, CheckOutDate: day(2025, 5, 1), CheckInDate: day(2025, 5, 2)},
	})

	if !rows[0].HighIdleRatio {
		t.Error("expected HighIdleRatio for 90% idle record")
	}
	if !rows[0].VeryLowUtilization {
		t.Error("expected VeryLowUtilization for 10% utilization record")
	}
	if rows[1].HighIdleRatio || rows[1].VeryLowUtilization {
		t.Error("healthy record should not be flagged")
	}
}

func TestUsageVectorMatchesColumns(t *testing.T) {
	rows := EngineerUsage([]types.UsageRecord{{
		EngineHoursPerDay: 5,
		IdleHoursPerDay:   3,
		OperatingDays:     73,
		CheckOutDate:      day(2025, 5, 1),
		CheckInDate:       day(2025, 5, 11),
	}})

	vec := rows[0].Vector()
	if len(vec) != len(UsageFeatureColumns) {
		t.Fatalf("vector length = %d, want %d", len(vec), len(UsageFeatureColumns))
	}
	if vec[0] != 5 || vec[1] != 3 || vec[2] != 8 {
		t.Errorf("hour columns = %v %v %v, want 5 3 8", vec[0], vec[1], vec[2])
	}
	if math.Abs(vec[5]-73.0/365.0) > epsilon {
		t.Errorf("operating_days_ratio = %v, want %v", vec[5], 73.0/365.0)
	}
}

func TestLabelEncoderDeterministicAndUnknown(t *testing.T) {
	enc := &LabelEncoder{}
	enc.Fit([]string{"Crane", "Excavator", "Bulldozer", "Crane"})

	// Classes sort alphabetically so codes are stable across fits.
	if got := enc.Transform("Bulldozer"); got != 0 {
		t.Errorf("Transform(Bulldozer) = %v, want 0", got)
	}
	if got := enc.Transform("Crane"); got != 1 {
		t.Errorf("Transform(Crane) = %v, want 1", got)
	}
	if got := enc.Transform("Excavator"); got != 2 {
		t.Errorf("Transform(Excavator) = %v, want 2", got)
	}
	if got := enc.Transform("Forklift"); got != -1 {
		t.Errorf("Transform(unknown) = %v, want -1", got)
	}
}
