package forecast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smartrental/rentaltracker/internal/features"
	"github.com/smartrental/rentaltracker/internal/types"
)

// trainedSegment fits a real model over a uniform 5-per-day series and
// returns it with its encoders.
func trainedSegment(t *testing.T, unitCount int) (map[string]*SegmentModel, *SegmentModel, *features.LabelEncoder, *features.LabelEncoder) {
	t.Helper()

	start := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	points := make([]types.DailyDemandPoint, 60)
	for i := range points {
		points[i] = types.DailyDemandPoint{
			Date:          start.AddDate(0, 0, i),
			SiteID:        "S001",
			EquipmentType: "Excavator",
			ActiveRentals: 5,
		}
	}
	siteEnc := &features.LabelEncoder{}
	siteEnc.Fit([]string{"S001"})
	typeEnc := &features.LabelEncoder{}
	typeEnc.Fit([]string{"Excavator"})

	series := features.EngineerSeries(points, siteEnc, typeEnc)
	unitCounts := map[string]int{"S001|Excavator": unitCount}
	result, err := TrainSegments(context.Background(), series, unitCounts, DefaultTrainerParams(), nil)
	if err != nil {
		t.Fatalf("TrainSegments: %v", err)
	}
	if result.Segments["S001|Excavator"] == nil {
		t.Fatal("segment model missing")
	}
	return result.Segments, result.Global, siteEnc, typeEnc
}

func TestForecastOutputsWithinBounds(t *testing.T) {
	segments, global, siteEnc, typeEnc := trainedSegment(t, 10)

	series, err := Forecast(segments, global, siteEnc, typeEnc, ForecastRequest{
		EquipmentType: "Excavator",
		SiteID:        "S001",
		DaysAhead:     14,
	})
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}

	if len(series.Points) != 14 {
		t.Fatalf("len(Points) = %d, want 14", len(series.Points))
	}
	limit := 1.5 * 10.0
	for i, p := range series.Points {
		if p.Predicted < 0 {
			t.Errorf("day %d: predicted %v < 0", i, p.Predicted)
		}
		if p.Predicted > limit {
			t.Errorf("day %d: predicted %v exceeds capacity limit %v", i, p.Predicted, limit)
		}
		if p.Confidence < 0.3 || p.Confidence > 0.95 {
			t.Errorf("day %d: confidence %v outside [0.3, 0.95]", i, p.Confidence)
		}
	}

	switch series.Trend {
	case "increasing", "decreasing", "stable":
	default:
		t.Errorf("Trend = %q", series.Trend)
	}
	if series.ModelKey != "S001|Excavator" {
		t.Errorf("ModelKey = %q, want the segment model", series.ModelKey)
	}
}

func TestForecastWeekendDampening(t *testing.T) {
	segments, global, siteEnc, typeEnc := trainedSegment(t, 0)

	series, err := Forecast(segments, global, siteEnc, typeEnc, ForecastRequest{
		EquipmentType: "Excavator",
		SiteID:        "S001",
		DaysAhead:     7,
	})
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}

	// Over a 7-day horizon both weekend days appear; a uniform model must
	// predict strictly less on them than on adjacent weekdays.
	var weekday, weekend float64
	for _, p := range series.Points {
		switch p.Date.Weekday() {
		case time.Saturday, time.Sunday:
			weekend = p.Predicted
		case time.Wednesday:
			weekday = p.Predicted
		}
	}
	if weekend >= weekday {
		t.Errorf("weekend prediction %v not dampened below weekday %v", weekend, weekday)
	}
}

func TestForecastUniformDemandTrendStable(t *testing.T) {
	segments, global, siteEnc, typeEnc := trainedSegment(t, 10)

	// A model fit on a constant 5-per-day history must read as stable at
	// any horizon: weekend dampening lowers Saturday and Sunday points,
	// but that is a calendar cycle, not a trend.
	for _, days := range []int{7, 14, 30} {
		series, err := Forecast(segments, global, siteEnc, typeEnc, ForecastRequest{
			EquipmentType: "Excavator",
			SiteID:        "S001",
			DaysAhead:     days,
		})
		if err != nil {
			t.Fatalf("Forecast(%d days): %v", days, err)
		}
		if series.Trend != "stable" {
			t.Errorf("days=%d: Trend = %q (strength %v), want stable",
				days, series.Trend, series.TrendStrength)
		}
	}
}

func TestForecastGlobalFallback(t *testing.T) {
	segments, global, siteEnc, typeEnc := trainedSegment(t, 0)

	series, err := Forecast(segments, global, siteEnc, typeEnc, ForecastRequest{
		EquipmentType: "Crane", // no segment model for this type
		SiteID:        "S001",
		DaysAhead:     7,
	})
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	if series.ModelKey != "global" {
		t.Errorf("ModelKey = %q, want global fallback", series.ModelKey)
	}
}

func TestForecastSegmentNotFound(t *testing.T) {
	siteEnc := &features.LabelEncoder{}
	typeEnc := &features.LabelEncoder{}
	_, err := Forecast(map[string]*SegmentModel{}, nil, siteEnc, typeEnc, ForecastRequest{
		EquipmentType: "Crane",
		DaysAhead:     7,
	})
	if !errors.Is(err, ErrSegmentNotFound) {
		t.Errorf("err = %v, want ErrSegmentNotFound", err)
	}
}

func TestForecastDefaultHorizon(t *testing.T) {
	segments, global, siteEnc, typeEnc := trainedSegment(t, 0)

	series, err := Forecast(segments, global, siteEnc, typeEnc, ForecastRequest{
		EquipmentType: "Excavator",
		SiteID:        "S001",
	})
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	if len(series.Points) != 7 {
		t.Errorf("default horizon = %d days, want 7", len(series.Points))
	}
}

func TestForecastCompoundMode(t *testing.T) {
	segments, global, siteEnc, typeEnc := trainedSegment(t, 10)

	series, err := Forecast(segments, global, siteEnc, typeEnc, ForecastRequest{
		EquipmentType: "Excavator",
		SiteID:        "S001",
		DaysAhead:     30,
		Compound:      true,
	})
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	for i, p := range series.Points {
		if p.Predicted < 0 || p.Predicted > 15 {
			t.Errorf("compound day %d: predicted %v outside [0, 15]", i, p.Predicted)
		}
		if p.Confidence < 0.3 || p.Confidence > 0.95 {
			t.Errorf("compound day %d: confidence %v outside [0.3, 0.95]", i, p.Confidence)
		}
	}
}

func TestApplyConstraintsOrdering(t *testing.T) {
	weekday := features.CalendarFor(time.Date(2025, 7, 2, 0, 0, 0, 0, time.UTC))  // Wednesday, July
	saturday := features.CalendarFor(time.Date(2025, 7, 5, 0, 0, 0, 0, time.UTC)) // Saturday, July
	january := features.CalendarFor(time.Date(2025, 1, 4, 0, 0, 0, 0, time.UTC))  // Saturday, January

	if got := applyConstraints(-3, 0, weekday); got != 0 {
		t.Errorf("negative prediction clamped to %v, want 0", got)
	}
	if got := applyConstraints(100, 10, weekday); got != 15 {
		t.Errorf("capacity cap = %v, want 15 (1.5x of 10 units)", got)
	}
	if got := applyConstraints(10, 0, saturday); got != 6 {
		t.Errorf("weekend dampening = %v, want 6", got)
	}
	// Winter Saturday stacks both dampening factors on the capped value.
	want := 15 * 0.6 * 0.8
	if got := applyConstraints(100, 10, january); got != want {
		t.Errorf("stacked constraints = %v, want %v", got, want)
	}
}

func TestVolumeFactorTiers(t *testing.T) {
	tests := []struct {
		samples int
		want    float64
	}{
		{400, 1.2},
		{200, 1.1},
		{100, 1.0},
		{45, 0.9},
		{10, 0.8},
	}
	for _, tt := range tests {
		if got := volumeFactor(tt.samples); got != tt.want {
			t.Errorf("volumeFactor(%d) = %v, want %v", tt.samples, got, tt.want)
		}
	}
}

func TestConfidenceDecaysWithHorizon(t *testing.T) {
	model := &SegmentModel{SampleCount: 100}
	req := ForecastRequest{EquipmentType: "Excavator", SiteID: "S001"}

	day1 := confidence(model, true, req, 1)
	day30 := confidence(model, true, req, 30)
	if day30 >= day1 {
		t.Errorf("confidence did not decay: day1=%v day30=%v", day1, day30)
	}
	if day1 > 0.95 || day30 < 0.3 {
		t.Errorf("confidence outside bounds: day1=%v day30=%v", day1, day30)
	}
}
