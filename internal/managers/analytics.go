package managers

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/smartrental/rentaltracker/internal/features"
	"github.com/smartrental/rentaltracker/internal/forecast"
)

// Analytics thresholds. These drive reporting only, never model behavior.
const (
	underutilizedCutoff  = 0.3
	highIdleHoursCutoff  = 12.0
	longRentalDaysCutoff = 30.0
	affectedListLimit    = 5

	// drilldownForecastDays is the horizon attached to the per-type and
	// per-site drill-down reports.
	drilldownForecastDays = 30
)

// OverallStats covers the whole fleet.
type OverallStats struct {
	TotalRentals       float64 `json:"total_rentals"`
	AvgRentalDuration  float64 `json:"average_rental_duration"`
	TotalEngineHours   float64 `json:"total_engine_hours"`
	TotalIdleHours     float64 `json:"total_idle_hours"`
	AverageUtilization float64 `json:"average_utilization"`
}

// TypeStats aggregates one equipment type.
type TypeStats struct {
	Count             int     `json:"count"`
	AvgEngineHours    float64 `json:"avg_engine_hours"`
	TotalEngineHours  float64 `json:"total_engine_hours"`
	AvgIdleHours      float64 `json:"avg_idle_hours"`
	TotalIdleHours    float64 `json:"total_idle_hours"`
	AvgUtilization    float64 `json:"avg_utilization"`
	AvgEfficiency     float64 `json:"avg_efficiency"`
	AvgRentalDuration float64 `json:"avg_rental_duration"`
}

// SiteStats aggregates one site.
type SiteStats struct {
	EquipmentCount int     `json:"equipment_count"`
	AvgUtilization float64 `json:"avg_utilization"`
	AvgEfficiency  float64 `json:"avg_efficiency"`
}

// MonthStats aggregates rentals by check-out month.
type MonthStats struct {
	RentalCount    int     `json:"rental_count"`
	AvgUtilization float64 `json:"avg_utilization"`
}

// EquipmentStats is the full fleet analytics report.
type EquipmentStats struct {
	Overall     OverallStats          `json:"overall"`
	ByType      map[string]TypeStats  `json:"by_equipment_type"`
	BySite      map[string]SiteStats  `json:"by_site"`
	ByMonth     map[string]MonthStats `json:"by_month"`
	GeneratedAt time.Time             `json:"generated_at"`
}

// EquipmentStats aggregates current usage records into fleet, per-type,
// per-site and per-month statistics. Utilization and efficiency are
// reported as percentages; unassigned equipment is excluded from the
// per-site table.
func (m *ModelManager) EquipmentStats(ctx context.Context) (*EquipmentStats, error) {
	snap, err := m.db.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("taking analytics snapshot: %w", err)
	}
	if len(snap.Records) == 0 {
		return nil, ErrNoData
	}
	rows := features.EngineerUsage(snap.Records)

	stats := &EquipmentStats{
		ByType:      make(map[string]TypeStats),
		BySite:      make(map[string]SiteStats),
		ByMonth:     make(map[string]MonthStats),
		GeneratedAt: time.Now().UTC(),
	}

	type acc struct {
		n                                        int
		engine, idle, util, efficiency, duration float64
	}
	byType := make(map[string]*acc)
	bySite := make(map[string]*acc)
	byMonth := make(map[string]*acc)

	overall := acc{}
	for _, row := range rows {
		r := row.Record
		overall.n++
		overall.engine += r.EngineHoursPerDay
		overall.idle += r.IdleHoursPerDay
		overall.util += row.UtilizationEfficiency
		overall.duration += row.RentalDuration

		add := func(m map[string]*acc, key string) {
			a := m[key]
			if a == nil {
				a = &acc{}
				m[key] = a
			}
			a.n++
			a.engine += r.EngineHoursPerDay
			a.idle += r.IdleHoursPerDay
			a.util += row.UtilizationEfficiency
			a.efficiency += row.EfficiencyScore
			a.duration += row.RentalDuration
		}
		add(byType, r.EquipmentType)
		if r.SiteID != "" {
			add(bySite, r.SiteID)
		}
		add(byMonth, r.CheckOutDate.Month().String())
	}

	n := float64(overall.n)
	stats.Overall = OverallStats{
		TotalRentals:       n,
		AvgRentalDuration:  round2(overall.duration / n),
		TotalEngineHours:   round2(overall.engine),
		TotalIdleHours:     round2(overall.idle),
		AverageUtilization: round2(100 * overall.util / n),
	}
	for key, a := range byType {
		an := float64(a.n)
		stats.ByType[key] = TypeStats{
			Count:             a.n,
			AvgEngineHours:    round2(a.engine / an),
			TotalEngineHours:  round2(a.engine),
			AvgIdleHours:      round2(a.idle / an),
			TotalIdleHours:    round2(a.idle),
			AvgUtilization:    round2(100 * a.util / an),
			AvgEfficiency:     round2(100 * a.efficiency / an),
			AvgRentalDuration: round2(a.duration / an),
		}
	}
	for key, a := range bySite {
		an := float64(a.n)
		stats.BySite[key] = SiteStats{
			EquipmentCount: a.n,
			AvgUtilization: round2(100 * a.util / an),
			AvgEfficiency:  round2(100 * a.efficiency / an),
		}
	}
	for key, a := range byMonth {
		stats.ByMonth[key] = MonthStats{
			RentalCount:    a.n,
			AvgUtilization: round2(100 * a.util / float64(a.n)),
		}
	}
	return stats, nil
}

// EquipmentPerformance pairs one equipment type's current stats with a
// demand forecast over the drill-down horizon.
type EquipmentPerformance struct {
	EquipmentType  string                   `json:"equipment_type"`
	CurrentStats   TypeStats                `json:"current_stats"`
	DemandForecast *forecast.ForecastSeries `json:"demand_forecast,omitempty"`
	GeneratedAt    time.Time                `json:"generated_at"`
}

// SiteUtilization pairs one site's current stats with a demand forecast
// over the drill-down horizon.
type SiteUtilization struct {
	SiteID         string                   `json:"site_id"`
	CurrentStats   SiteStats                `json:"current_stats"`
	DemandForecast *forecast.ForecastSeries `json:"demand_forecast,omitempty"`
	GeneratedAt    time.Time                `json:"generated_at"`
}

// EquipmentPerformance reports one equipment type's aggregate stats with a
// 30-day forecast attached. Unknown types report ErrNoData. The forecast
// is best-effort: an untrained model leaves it empty rather than failing
// the stats.
func (m *ModelManager) EquipmentPerformance(ctx context.Context, equipmentType string) (*EquipmentPerformance, error) {
	stats, err := m.EquipmentStats(ctx)
	if err != nil {
		return nil, err
	}
	perf, err := equipmentPerformanceFrom(stats, equipmentType)
	if err != nil {
		return nil, err
	}
	if series, err := m.Forecast(forecast.ForecastRequest{
		EquipmentType: equipmentType,
		DaysAhead:     drilldownForecastDays,
	}); err == nil {
		perf.DemandForecast = series
	}
	return perf, nil
}

// SiteUtilization reports one site's aggregate stats with a 30-day
// forecast attached, with the same unknown-key and best-effort forecast
// behavior as EquipmentPerformance.
func (m *ModelManager) SiteUtilization(ctx context.Context, siteID string) (*SiteUtilization, error) {
	stats, err := m.EquipmentStats(ctx)
	if err != nil {
		return nil, err
	}
	util, err := siteUtilizationFrom(stats, siteID)
	if err != nil {
		return nil, err
	}
	if series, err := m.Forecast(forecast.ForecastRequest{
		SiteID:    siteID,
		DaysAhead: drilldownForecastDays,
	}); err == nil {
		util.DemandForecast = series
	}
	return util, nil
}

func equipmentPerformanceFrom(stats *EquipmentStats, equipmentType string) (*EquipmentPerformance, error) {
	ts, ok := stats.ByType[equipmentType]
	if !ok {
		return nil, fmt.Errorf("equipment type %q: %w", equipmentType, ErrNoData)
	}
	return &EquipmentPerformance{
		EquipmentType: equipmentType,
		CurrentStats:  ts,
		GeneratedAt:   time.Now().UTC(),
	}, nil
}

func siteUtilizationFrom(stats *EquipmentStats, siteID string) (*SiteUtilization, error) {
	ss, ok := stats.BySite[siteID]
	if !ok {
		return nil, fmt.Errorf("site %q: %w", siteID, ErrNoData)
	}
	return &SiteUtilization{
		SiteID:       siteID,
		CurrentStats: ss,
		GeneratedAt:  time.Now().UTC(),
	}, nil
}

// Recommendation is one actionable finding.
type Recommendation struct {
	Type              string   `json:"type"`
	Priority          string   `json:"priority"`
	Description       string   `json:"description"`
	Action            string   `json:"action"`
	AffectedEquipment []string `json:"affected_equipment"`
}

// RecommendationReport bundles the findings with their priority counts.
type RecommendationReport struct {
	Recommendations []Recommendation `json:"recommendations"`
	Total           int              `json:"total_recommendations"`
	HighPriority    int              `json:"high_priority_count"`
	GeneratedAt     time.Time        `json:"generated_at"`
}

// Recommendations scans current usage for actionable fleet issues:
// underutilized units, excessive idle time, unassigned equipment, overly
// long rentals, and the demand spread across equipment types.
func (m *ModelManager) Recommendations(ctx context.Context) (*RecommendationReport, error) {
	snap, err := m.db.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("taking analytics snapshot: %w", err)
	}
	if len(snap.Records) == 0 {
		return nil, ErrNoData
	}
	rows := features.EngineerUsage(snap.Records)

	var underutilized, highIdle, unassigned, longRentals []string
	typeCounts := make(map[string]int)
	for _, row := range rows {
		r := row.Record
		typeCounts[r.EquipmentType]++
		if row.UtilizationEfficiency < underutilizedCutoff {
			underutilized = append(underutilized, r.EquipmentID)
		}
		if r.IdleHoursPerDay > highIdleHoursCutoff {
			highIdle = append(highIdle, r.EquipmentID)
		}
		if r.SiteID == "" {
			unassigned = append(unassigned, r.EquipmentID)
		}
		if row.RentalDuration > longRentalDaysCutoff {
			longRentals = append(longRentals, r.EquipmentID)
		}
	}

	report := &RecommendationReport{GeneratedAt: time.Now().UTC()}
	if len(underutilized) > 0 {
		report.Recommendations = append(report.Recommendations, Recommendation{
			Type:              "underutilization",
			Priority:          "high",
			Description:       fmt.Sprintf("%d equipment items have utilization below 30%%", len(underutilized)),
			Action:            "Consider reallocating or reducing rental duration for underutilized equipment",
			AffectedEquipment: truncate(underutilized, affectedListLimit),
		})
	}
	if len(highIdle) > 0 {
		report.Recommendations = append(report.Recommendations, Recommendation{
			Type:              "high_idle_time",
			Priority:          "medium",
			Description:       fmt.Sprintf("%d equipment items have idle time > 12 hours/day", len(highIdle)),
			Action:            "Review scheduling and operator allocation to reduce idle time",
			AffectedEquipment: truncate(highIdle, affectedListLimit),
		})
	}
	if len(unassigned) > 0 {
		report.Recommendations = append(report.Recommendations, Recommendation{
			Type:              "unassigned_equipment",
			Priority:          "high",
			Description:       fmt.Sprintf("%d equipment items are not assigned to any site", len(unassigned)),
			Action:            "Assign unassigned equipment to active sites or return to inventory",
			AffectedEquipment: unassigned,
		})
	}
	if len(longRentals) > 0 {
		report.Recommendations = append(report.Recommendations, Recommendation{
			Type:              "long_rentals",
			Priority:          "medium",
			Description:       fmt.Sprintf("%d rentals exceed 30 days", len(longRentals)),
			Action:            "Review if long-term rentals are cost-effective vs. purchasing",
			AffectedEquipment: truncate(longRentals, affectedListLimit),
		})
	}
	if most, least, ok := demandSpread(typeCounts); ok {
		report.Recommendations = append(report.Recommendations, Recommendation{
			Type:        "demand_analysis",
			Priority:    "low",
			Description: fmt.Sprintf("Most demanded equipment: %s, Least demanded: %s", most, least),
			Action:      fmt.Sprintf("Consider increasing inventory of %s and reducing %s", most, least),
		})
	}

	report.Total = len(report.Recommendations)
	for _, rec := range report.Recommendations {
		if rec.Priority == "high" {
			report.HighPriority++
		}
	}
	return report, nil
}

// demandSpread names the most and least rented equipment types, with ties
// broken alphabetically so output is stable.
func demandSpread(counts map[string]int) (most, least string, ok bool) {
	if len(counts) == 0 {
		return "", "", false
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	most, least = names[0], names[0]
	for _, name := range names[1:] {
		if counts[name] > counts[most] {
			most = name
		}
		if counts[name] < counts[least] {
			least = name
		}
	}
	return most, least, true
}

func truncate(list []string, limit int) []string {
	if len(list) <= limit {
		return list
	}
	return list[:limit]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
