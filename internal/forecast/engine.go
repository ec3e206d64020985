package forecast

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/smartrental/rentaltracker/internal/features"
	"github.com/smartrental/rentaltracker/internal/types"
)

// Realism constraints applied, in order, to every raw model prediction.
// They are deterministic post-processing, not fitted behavior.
const (
	// capacityFactor caps predicted demand relative to the segment's
	// known unit count, when known.
	capacityFactor = 1.5
	// weekendDampening and winterDampening stack multiplicatively.
	weekendDampening = 0.6
	winterDampening  = 0.8
)

// Confidence scoring constants. The score is a heuristic signal in
// [0.3, 0.95], not a statistical interval.
const (
	confidenceBase  = 0.7
	confidenceFloor = 0.3
	confidenceCeil  = 0.95
	horizonDecay    = 0.99
)

// trendDeadZone is the slope magnitude below which a forecast trend is
// reported as stable.
const trendDeadZone = 0.01

// ForecastRequest selects what to project and how far.
type ForecastRequest struct {
	EquipmentType string
	SiteID        string
	DaysAhead     int
	// Compound switches the lag/rolling seed from the default static
	// last-observed snapshot to a mode that rolls the engine's own
	// predictions forward as pseudo-observations. Off by default.
	Compound bool
}

// ForecastPoint is one projected day.
type ForecastPoint struct {
	Date       time.Time `json:"date"`
	DayOfWeek  string    `json:"day_of_week"`
	Predicted  float64   `json:"predicted_demand"`
	Confidence float64   `json:"confidence"`
}

// ForecastSeries is the full day-by-day projection with its trend summary.
type ForecastSeries struct {
	EquipmentType  string          `json:"equipment_type,omitempty"`
	SiteID         string          `json:"site_id,omitempty"`
	Days           int             `json:"forecast_days"`
	ModelKey       string          `json:"model_key"`
	Points         []ForecastPoint `json:"forecasts"`
	Trend          string          `json:"trend"`
	TrendStrength  float64         `json:"trend_strength"`
	TotalPredicted float64         `json:"total_predicted_demand"`
	AverageDaily   float64         `json:"average_daily_demand"`
	GeneratedAt    time.Time       `json:"generated_at"`
}

// Forecast projects demand for the requested segment. Model selection
// prefers the exact (site, type) segment model and falls back to the
// global model; with neither available it returns ErrSegmentNotFound. The
// encoders must be the ones fitted alongside the models.
func Forecast(segments map[string]*SegmentModel, global *SegmentModel, siteEnc, typeEnc *features.LabelEncoder, req ForecastRequest) (*ForecastSeries, error) {
	if req.DaysAhead <= 0 {
		req.DaysAhead = 7
	}

	key := types.SegmentKey{SiteID: req.SiteID, EquipmentType: req.EquipmentType}
	model, segmentSpecific := segments[key.String()]
	if !segmentSpecific {
		if global == nil {
			return nil, ErrSegmentNotFound
		}
		model = global
	}

	series := &ForecastSeries{
		EquipmentType: req.EquipmentType,
		SiteID:        req.SiteID,
		Days:          req.DaysAhead,
		ModelKey:      model.Key,
		Points:        make([]ForecastPoint, 0, req.DaysAhead),
		GeneratedAt:   time.Now().UTC(),
	}

	start := model.Last.Date
	if start.IsZero() {
		start = time.Now().UTC()
	}
	start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)

	// The lag/rolling seed. In the default static mode every future day
	// reuses this same most-recent snapshot; compounding mode rolls it
	// forward with the engine's own predictions.
	seed := model.Last
	history := []float64{seed.ActiveRentals}

	// Demand levels before calendar dampening. The trend is fit on these:
	// weekend and winter factors repeat on a fixed calendar cycle and
	// carry no trend information.
	basis := make([]float64, 0, req.DaysAhead)

	for d := 1; d <= req.DaysAhead; d++ {
		date := start.AddDate(0, 0, d)
		cal := features.CalendarFor(date)

		point := features.SeriesPoint{
			Date:          date,
			SiteID:        req.SiteID,
			EquipmentType: req.EquipmentType,
			Calendar:      cal,
			T:             seed.T + float64(d),
			Seasonal:      features.SeasonalFactor(cal.Month),
			SiteCode:      siteEnc.Transform(req.SiteID),
			TypeCode:      typeEnc.Transform(req.EquipmentType),
			Lag1:          seed.Lag1,
			Lag7:          seed.Lag7,
			Lag30:         seed.Lag30,
			MovingAvg7:    seed.MovingAvg7,
			MovingStd7:    seed.MovingStd7,
		}

		raw := model.Model.Predict(point.Vector())
		level := clampToCapacity(raw, model.UnitCount)
		constrained := dampenForCalendar(level, cal)
		basis = append(basis, level)

		series.Points = append(series.Points, ForecastPoint{
			Date:       date,
			DayOfWeek:  date.Weekday().String(),
			Predicted:  constrained,
			Confidence: confidence(model, segmentSpecific, req, d),
		})

		if req.Compound {
			history = append(history, constrained)
			seed = rollSeed(seed, history, constrained)
		}
	}

	summarize(series, basis)
	return series, nil
}

// applyConstraints clamps and dampens a raw prediction: non-negativity
// first, then the capacity cap, then weekend and winter dampening, which
// stack multiplicatively.
func applyConstraints(raw float64, unitCount int, cal features.Calendar) float64 {
	return dampenForCalendar(clampToCapacity(raw, unitCount), cal)
}

// clampToCapacity enforces non-negativity and the capacity cap.
func clampToCapacity(raw float64, unitCount int) float64 {
	demand := raw
	if demand < 0 {
		demand = 0
	}
	if unitCount > 0 {
		limit := capacityFactor * float64(unitCount)
		if demand > limit {
			demand = limit
		}
	}
	return demand
}

// dampenForCalendar applies the weekend and winter factors.
func dampenForCalendar(demand float64, cal features.Calendar) float64 {
	if cal.Weekend {
		demand *= weekendDampening
	}
	if features.IsWinter(cal.Month) {
		demand *= winterDampening
	}
	return demand
}

// confidence combines the base constant with data-volume, specificity and
// horizon-decay factors, clamped to [0.3, 0.95].
func confidence(model *SegmentModel, segmentSpecific bool, req ForecastRequest, day int) float64 {
	score := confidenceBase
	score *= volumeFactor(model.SampleCount)

	if segmentSpecific && req.SiteID != "" {
		score *= 1.05
	} else {
		score *= 0.95
	}
	if segmentSpecific && req.EquipmentType != "" {
		score *= 1.05
	} else {
		score *= 0.95
	}

	score *= math.Pow(horizonDecay, float64(day))

	if score < confidenceFloor {
		return confidenceFloor
	}
	if score > confidenceCeil {
		return confidenceCeil
	}
	return score
}

// volumeFactor tiers confidence by how much history backed the fit.
func volumeFactor(samples int) float64 {
	switch {
	case samples >= 365:
		return 1.2
	case samples >= 180:
		return 1.1
	case samples >= 90:
		return 1.0
	case samples >= 30:
		return 0.9
	default:
		return 0.8
	}
}

// rollSeed advances the lag/rolling snapshot by one predicted day, using
// the combined observed-plus-predicted history for the window statistics.
func rollSeed(seed features.LastData, history []float64, predicted float64) features.LastData {
	next := seed
	next.Lag1 = predicted
	next.Lag7 = lagFromHistory(history, 7)
	next.Lag30 = lagFromHistory(history, 30)

	windowStart := len(history) - 7
	if windowStart < 0 {
		windowStart = 0
	}
	window := history[windowStart:]
	next.MovingAvg7 = stat.Mean(window, nil)
	if len(window) >= 2 {
		sd := stat.StdDev(window, nil)
		if !math.IsNaN(sd) {
			next.MovingStd7 = sd
		}
	}
	return next
}

func lagFromHistory(history []float64, k int) float64 {
	idx := len(history) - k
	if idx < 0 {
		return 0
	}
	return history[idx]
}

// summarize fills the aggregate fields from the final forecast values and
// fits the linear trend on the pre-dampening levels, where the calendar
// cycle has been factored out.
func summarize(series *ForecastSeries, basis []float64) {
	n := len(series.Points)
	if n == 0 {
		series.Trend = "stable"
		return
	}

	xs := make([]float64, n)
	ys := make([]float64, n)
	total := 0.0
	for i, p := range series.Points {
		xs[i] = float64(i + 1)
		ys[i] = basis[i]
		total += p.Predicted
	}
	series.TotalPredicted = total
	series.AverageDaily = total / float64(n)

	if n < 2 {
		series.Trend = "stable"
		return
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	switch {
	case beta > trendDeadZone:
		series.Trend = "increasing"
	case beta < -trendDeadZone:
		series.Trend = "decreasing"
	default:
		series.Trend = "stable"
	}

	r2 := stat.RSquared(xs, ys, nil, alpha, beta)
	if !math.IsNaN(r2) && !math.IsInf(r2, 0) {
		series.TrendStrength = r2
	}
}
