// Package features turns raw usage records and daily demand points into the
// fixed-order numeric vectors consumed by the anomaly ensemble and the
// segment models.
package features

import (
	"github.com/smartrental/rentaltracker/internal/types"
)

// Epsilon guards every ratio against division by zero. All-zero usage rows
// produce zero ratios, never an error.
const Epsilon = 1e-8

// Fixed detection thresholds for the binary indicators. These are design
// constants, not learned.
const (
	HighIdleThreshold       = 0.8
	LowUtilizationThreshold = 0.2
	operatingDaysPerYear    = 365.0
)

// UsageFeatureColumns is the fixed column ordering of a usage feature
// vector. Vector() emits values in exactly this order.
var UsageFeatureColumns = []string{
	"engine_hours_per_day",
	"idle_hours_per_day",
	"total_hours",
	"idle_ratio",
	"utilization_efficiency",
	"operating_days_ratio",
	"zero_engine_hours",
	"high_idle_ratio",
	"very_low_utilization",
	"normalized_duration",
}

// UsageFeatures is the engineered feature set for one usage record.
type UsageFeatures struct {
	Record types.UsageRecord

	TotalHours            float64
	IdleRatio             float64
	UtilizationEfficiency float64
	OperatingDaysRatio    float64
	ZeroEngineHours       bool
	HighIdleRatio         bool
	VeryLowUtilization    bool
	RentalDuration        float64
	NormalizedDuration    float64
	EfficiencyScore       float64
}

// Vector returns the numeric feature tuple in UsageFeatureColumns order.
func (f UsageFeatures) Vector() []float64 {
	return []float64{
		f.Record.EngineHoursPerDay,
		f.Record.IdleHoursPerDay,
		f.TotalHours,
		f.IdleRatio,
		f.UtilizationEfficiency,
		f.OperatingDaysRatio,
		boolToFloat(f.ZeroEngineHours),
		boolToFloat(f.HighIdleRatio),
		boolToFloat(f.VeryLowUtilization),
		f.NormalizedDuration,
	}
}

// EngineerUsage computes usage features for every record. Duration
// normalization needs the snapshot-wide maximum, so this is a two-pass
// transform over the whole collection.
func EngineerUsage(records []types.UsageRecord) []UsageFeatures {
	maxDuration := 0.0
	for _, r := range records {
		if d := r.Duration(); d > maxDuration {
			maxDuration = d
		}
	}

	out := make([]UsageFeatures, 0, len(records))
	for _, r := range records {
		f := UsageFeatures{Record: r}
		f.TotalHours = r.EngineHoursPerDay + r.IdleHoursPerDay
		f.IdleRatio = r.IdleHoursPerDay / (f.TotalHours + Epsilon)
		f.UtilizationEfficiency = r.EngineHoursPerDay / (f.TotalHours + Epsilon)
		f.OperatingDaysRatio = float64(r.OperatingDays) / operatingDaysPerYear
		f.ZeroEngineHours = r.EngineHoursPerDay == 0
		f.HighIdleRatio = f.IdleRatio > HighIdleThreshold
		f.VeryLowUtilization = f.UtilizationEfficiency < LowUtilizationThreshold
		f.RentalDuration = r.Duration()
		if maxDuration > 0 {
			f.NormalizedDuration = f.RentalDuration / maxDuration
		}
		f.EfficiencyScore = (r.EngineHoursPerDay*0.6 + (24-r.IdleHoursPerDay)*0.4) / 24
		out = append(out, f)
	}
	return out
}

// UsageMatrix extracts the raw feature matrix from engineered rows.
func UsageMatrix(rows []UsageFeatures) [][]float64 {
	m := make([][]float64, len(rows))
	for i, r := range rows {
		m[i] = r.Vector()
	}
	return m
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
