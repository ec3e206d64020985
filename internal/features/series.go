package features

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/smartrental/rentaltracker/internal/types"
)

// SeriesFeatureColumns is the fixed column ordering of a time-series
// feature vector.
var SeriesFeatureColumns = []string{
	"day_of_week",
	"month",
	"week_of_year",
	"quarter",
	"year",
	"t",
	"seasonal_factor",
	"site_code",
	"equipment_type_code",
	"lag_1",
	"lag_7",
	"lag_30",
	"moving_avg_7",
	"moving_std_7",
}

// rollingWindow is the trailing window length for the moving statistics.
const rollingWindow = 7

// SeriesPoint is one row of the engineered demand series.
type SeriesPoint struct {
	Date          time.Time
	SiteID        string
	EquipmentType string
	ActiveRentals float64

	Calendar   Calendar
	T          float64
	Seasonal   float64
	SiteCode   float64
	TypeCode   float64
	Lag1       float64
	Lag7       float64
	Lag30      float64
	MovingAvg7 float64
	MovingStd7 float64
}

// Segment returns the point's segment key.
func (p SeriesPoint) Segment() types.SegmentKey {
	return types.SegmentKey{SiteID: p.SiteID, EquipmentType: p.EquipmentType}
}

// Vector returns the numeric feature tuple in SeriesFeatureColumns order.
func (p SeriesPoint) Vector() []float64 {
	return []float64{
		float64(p.Calendar.DayOfWeek),
		float64(p.Calendar.Month),
		float64(p.Calendar.WeekOfYear),
		float64(p.Calendar.Quarter),
		float64(p.Calendar.Year),
		p.T,
		p.Seasonal,
		p.SiteCode,
		p.TypeCode,
		p.Lag1,
		p.Lag7,
		p.Lag30,
		p.MovingAvg7,
		p.MovingStd7,
	}
}

// LastData is the snapshot of the most recent feature row of a segment,
// kept alongside the fitted model to seed forward prediction.
type LastData struct {
	Date          time.Time `msgpack:"date"`
	T             float64   `msgpack:"t"`
	ActiveRentals float64   `msgpack:"active_rentals"`
	Lag1          float64   `msgpack:"lag_1"`
	Lag7          float64   `msgpack:"lag_7"`
	Lag30         float64   `msgpack:"lag_30"`
	MovingAvg7    float64   `msgpack:"moving_avg_7"`
	MovingStd7    float64   `msgpack:"moving_std_7"`
}

// EngineerSeries computes lag and rolling features for a daily demand
// series. Lag and rolling values are derived strictly from earlier dates
// within the same (site, equipment type) partition; lag-k is 0 when the
// partition has no point k days back, and the rolling window uses a
// minimum period of 1 so early points get a partial-window estimate.
// The encoders supply the categorical codes for site and equipment type.
func EngineerSeries(points []types.DailyDemandPoint, siteEnc, typeEnc *LabelEncoder) []SeriesPoint {
	sorted := make([]types.DailyDemandPoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		if sorted[i].SiteID != sorted[j].SiteID {
			return sorted[i].SiteID < sorted[j].SiteID
		}
		return sorted[i].EquipmentType < sorted[j].EquipmentType
	})

	out := make([]SeriesPoint, len(sorted))
	partitions := make(map[types.SegmentKey][]int)
	for i, p := range sorted {
		cal := CalendarFor(p.Date)
		out[i] = SeriesPoint{
			Date:          p.Date,
			SiteID:        p.SiteID,
			EquipmentType: p.EquipmentType,
			ActiveRentals: float64(p.ActiveRentals),
			Calendar:      cal,
			T:             float64(i + 1),
			Seasonal:      SeasonalFactor(cal.Month),
			SiteCode:      siteEnc.Transform(p.SiteID),
			TypeCode:      typeEnc.Transform(p.EquipmentType),
		}
		key := types.SegmentKey{SiteID: p.SiteID, EquipmentType: p.EquipmentType}
		partitions[key] = append(partitions[key], i)
	}

	// Partition index lists are already date-ordered because the input
	// was globally sorted by date first.
	for _, idxs := range partitions {
		values := make([]float64, len(idxs))
		for j, i := range idxs {
			values[j] = out[i].ActiveRentals
		}
		for j, i := range idxs {
			out[i].Lag1 = lagValue(values, j, 1)
			out[i].Lag7 = lagValue(values, j, 7)
			out[i].Lag30 = lagValue(values, j, 30)
			out[i].MovingAvg7, out[i].MovingStd7 = rollingStats(values, j)
		}
	}

	return out
}

// SeriesMatrix extracts the feature matrix and target vector from a set of
// engineered points.
func SeriesMatrix(points []SeriesPoint) (x [][]float64, y []float64) {
	x = make([][]float64, len(points))
	y = make([]float64, len(points))
	for i, p := range points {
		x[i] = p.Vector()
		y[i] = p.ActiveRentals
	}
	return x, y
}

// Snapshot captures the final row of a date-ordered partition as a LastData
// seed.
func Snapshot(p SeriesPoint) LastData {
	return LastData{
		Date:          p.Date,
		T:             p.T,
		ActiveRentals: p.ActiveRentals,
		Lag1:          p.Lag1,
		Lag7:          p.Lag7,
		Lag30:         p.Lag30,
		MovingAvg7:    p.MovingAvg7,
		MovingStd7:    p.MovingStd7,
	}
}

func lagValue(values []float64, i, k int) float64 {
	if i < k {
		return 0
	}
	return values[i-k]
}

// rollingStats returns the trailing-window mean and sample standard
// deviation ending at index i inclusive, with a minimum period of 1. A
// single-element window has no sample deviation and reports 0.
func rollingStats(values []float64, i int) (mean, std float64) {
	start := i - rollingWindow + 1
	if start < 0 {
		start = 0
	}
	window := values[start : i+1]
	mean = stat.Mean(window, nil)
	if len(window) < 2 {
		return mean, 0
	}
	std = stat.StdDev(window, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return mean, std
}
