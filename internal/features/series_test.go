package features

import (
	"math"
	"testing"
	"time"

	"github.com/smartrental/rentaltracker/internal/types"
)

func fittedEncoders() (*LabelEncoder, *LabelEncoder) {
	siteEnc := &LabelEncoder{}
	siteEnc.Fit([]string{"S001", "S002"})
	typeEnc := &LabelEncoder{}
	typeEnc.Fit([]string{"Crane", "Excavator"})
	return siteEnc, typeEnc
}

// demandRun builds a single-partition daily series with the given counts.
func demandRun(counts []int) []types.DailyDemandPoint {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	points := make([]types.DailyDemandPoint, len(counts))
	for i, c := range counts {
		points[i] = types.DailyDemandPoint{
			Date:          start.AddDate(0, 0, i),
			SiteID:        "S001",
			EquipmentType: "Excavator",
			ActiveRentals: c,
		}
	}
	return points
}

func TestEngineerSeriesLags(t *testing.T) {
	counts := make([]int, 40)
	for i := range counts {
		counts[i] = i + 1
	}
	siteEnc, typeEnc := fittedEncoders()
	series := EngineerSeries(demandRun(counts), siteEnc, typeEnc)

	for i, p := range series {
		wantLag1, wantLag7, wantLag30 := 0.0, 0.0, 0.0
		if i >= 1 {
			wantLag1 = float64(counts[i-1])
		}
		if i >= 7 {
			wantLag7 = float64(counts[i-7])
		}
		if i >= 30 {
			wantLag30 = float64(counts[i-30])
		}
		if p.Lag1 != wantLag1 || p.Lag7 != wantLag7 || p.Lag30 != wantLag30 {
			t.Errorf("day %d: lags = (%v, %v, %v), want (%v, %v, %v)",
				i, p.Lag1, p.Lag7, p.Lag30, wantLag1, wantLag7, wantLag30)
		}
	}
}

func TestEngineerSeriesRollingMinPeriod(t *testing.T) {
	siteEnc, typeEnc := fittedEncoders()
	series := EngineerSeries(demandRun([]int{4, 8, 6}), siteEnc, typeEnc)

	// Day 0: window of one value, mean = itself, no sample deviation.
	if series[0].MovingAvg7 != 4 {
		t.Errorf("day 0 MovingAvg7 = %v, want 4", series[0].MovingAvg7)
	}
	if series[0].MovingStd7 != 0 {
		t.Errorf("day 0 MovingStd7 = %v, want 0", series[0].MovingStd7)
	}

	// Day 1: mean of {4, 8}; sample std = sqrt(8).
	if series[1].MovingAvg7 != 6 {
		t.Errorf("day 1 MovingAvg7 = %v, want 6", series[1].MovingAvg7)
	}
	if math.Abs(series[1].MovingStd7-math.Sqrt(8)) > 1e-9 {
		t.Errorf("day 1 MovingStd7 = %v, want %v", series[1].MovingStd7, math.Sqrt(8))
	}

	// Day 2: mean of {4, 8, 6}.
	if series[2].MovingAvg7 != 6 {
		t.Errorf("day 2 MovingAvg7 = %v, want 6", series[2].MovingAvg7)
	}
}

func TestEngineerSeriesRollingWindowSlides(t *testing.T) {
	counts := []int{10, 10, 10, 10, 10, 10, 10, 3, 3, 3, 3, 3, 3, 3}
	siteEnc, typeEnc := fittedEncoders()
	series := EngineerSeries(demandRun(counts), siteEnc, typeEnc)

	// The last point's window covers only the trailing seven 3s.
	last := series[len(series)-1]
	if last.MovingAvg7 != 3 {
		t.Errorf("trailing MovingAvg7 = %v, want 3", last.MovingAvg7)
	}
	if last.MovingStd7 != 0 {
		t.Errorf("trailing MovingStd7 = %v, want 0", last.MovingStd7)
	}
}

func TestEngineerSeriesPartitionIsolation(t *testing.T) {
	// Two segments on the same dates must not leak lag values into each
	// other.
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	var points []types.DailyDemandPoint
	for i := 0; i < 10; i++ {
		date := start.AddDate(0, 0, i)
		points = append(points,
			types.DailyDemandPoint{Date: date, SiteID: "S001", EquipmentType: "Excavator", ActiveRentals: 100},
			types.DailyDemandPoint{Date: date, SiteID: "S002", EquipmentType: "Crane", ActiveRentals: 1},
		)
	}
	siteEnc, typeEnc := fittedEncoders()
	series := EngineerSeries(points, siteEnc, typeEnc)

	for _, p := range series {
		if p.SiteID == "S001" && p.Lag1 != 0 && p.Lag1 != 100 {
			t.Errorf("S001 Lag1 = %v, leaked from other partition", p.Lag1)
		}
		if p.SiteID == "S002" && p.Lag1 != 0 && p.Lag1 != 1 {
			t.Errorf("S002 Lag1 = %v, leaked from other partition", p.Lag1)
		}
	}
}

func TestEngineerSeriesCalendarAndCodes(t *testing.T) {
	siteEnc, typeEnc := fittedEncoders()
	// 2025-06-02 is a Monday.
	series := EngineerSeries([]types.DailyDemandPoint{{
		Date:          time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		SiteID:        "S002",
		EquipmentType: "Crane",
		ActiveRentals: 5,
	}}, siteEnc, typeEnc)

	p := series[0]
	if p.Calendar.DayOfWeek != 1 {
		t.Errorf("DayOfWeek = %d, want 1 (Monday)", p.Calendar.DayOfWeek)
	}
	if p.Calendar.Quarter != 2 {
		t.Errorf("Quarter = %d, want 2", p.Calendar.Quarter)
	}
	if p.Seasonal != 1.20 {
		t.Errorf("June seasonal factor = %v, want 1.20", p.Seasonal)
	}
	if p.SiteCode != 1 {
		t.Errorf("SiteCode = %v, want 1", p.SiteCode)
	}
	if p.TypeCode != 0 {
		t.Errorf("TypeCode = %v, want 0", p.TypeCode)
	}
	if len(p.Vector()) != len(SeriesFeatureColumns) {
		t.Fatalf("vector length = %d, want %d", len(p.Vector()), len(SeriesFeatureColumns))
	}
}

func TestCalendarSundayMapsToSeven(t *testing.T) {
	// 2025-06-01 is a Sunday.
	cal := CalendarFor(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	if cal.DayOfWeek != 7 {
		t.Errorf("DayOfWeek = %d, want 7 (Sunday)", cal.DayOfWeek)
	}
	if !cal.Weekend {
		t.Error("Sunday should be a weekend")
	}
}

func TestSeasonalFactorTable(t *testing.T) {
	tests := []struct {
		month int
		want  float64
	}{
		{1, 0.70},
		{7, 1.30},
		{4, 1.00},
		{12, 0.80},
	}
	for _, tt := range tests {
		if got := SeasonalFactor(tt.month); got != tt.want {
			t.Errorf("SeasonalFactor(%d) = %v, want %v", tt.month, got, tt.want)
		}
	}
}
