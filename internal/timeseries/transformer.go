// Package timeseries expands interval-based rental records into a dense
// daily demand series keyed by (site, equipment type).
package timeseries

import (
	"sort"
	"time"

	"github.com/smartrental/rentaltracker/internal/types"
)

// BuildDailySeries converts rental intervals into daily active-rental
// counts. For every date between the earliest check-out and the latest
// check-in, and for every combination of an observed site and an observed
// equipment type, the output contains one point whose count is the number
// of records for that pair whose [check-out, check-in] interval covers the
// date. Combinations with no rentals on a date appear with a count of 0,
// never as a missing entry.
//
// Internally each segment is swept with a difference array over the day
// range, which keeps the cost near O(records + days × segments) while
// producing values identical to the naive per-date interval count.
func BuildDailySeries(records []types.UsageRecord) []types.DailyDemandPoint {
	if len(records) == 0 {
		return nil
	}

	minDay, maxDay := dayIndex(records[0].CheckOutDate), dayIndex(records[0].CheckInDate)
	for _, r := range records[1:] {
		if d := dayIndex(r.CheckOutDate); d < minDay {
			minDay = d
		}
		if d := dayIndex(r.CheckInDate); d > maxDay {
			maxDay = d
		}
	}
	numDays := maxDay - minDay + 1
	if numDays <= 0 {
		return nil
	}

	// One difference array per segment that has rentals; intervals
	// clipped to the global day range.
	diffs := make(map[types.SegmentKey][]int)
	siteSet := make(map[string]struct{})
	typeSet := make(map[string]struct{})
	for _, r := range records {
		siteSet[r.SiteID] = struct{}{}
		typeSet[r.EquipmentType] = struct{}{}
		key := types.SegmentKey{SiteID: r.SiteID, EquipmentType: r.EquipmentType}
		diff, ok := diffs[key]
		if !ok {
			diff = make([]int, numDays+1)
			diffs[key] = diff
		}
		start := dayIndex(r.CheckOutDate) - minDay
		end := dayIndex(r.CheckInDate) - minDay
		if end < start {
			continue // inverted interval; snapshot validation should have caught it
		}
		if start < 0 {
			start = 0
		}
		if end >= numDays {
			end = numDays - 1
		}
		diff[start]++
		diff[end+1]--
	}

	// The series covers the full cross product of observed sites and
	// observed equipment types, zero-filled where a combination never
	// rented.
	sites := sortedSet(siteSet)
	eqTypes := sortedSet(typeSet)
	keys := make([]types.SegmentKey, 0, len(sites)*len(eqTypes))
	for _, site := range sites {
		for _, eq := range eqTypes {
			keys = append(keys, types.SegmentKey{SiteID: site, EquipmentType: eq})
		}
	}

	// Prefix-sum each segment once, then emit points date-major so the
	// output is globally date-ordered.
	points := make([]types.DailyDemandPoint, 0, numDays*len(keys))
	counts := make(map[types.SegmentKey][]int, len(diffs))
	for key, diff := range diffs {
		running := 0
		c := make([]int, numDays)
		for day := 0; day < numDays; day++ {
			running += diff[day]
			c[day] = running
		}
		counts[key] = c
	}
	for day := 0; day < numDays; day++ {
		date := dayFromIndex(minDay + day)
		for _, key := range keys {
			count := 0
			if c, ok := counts[key]; ok {
				count = c[day]
			}
			points = append(points, types.DailyDemandPoint{
				Date:          date,
				SiteID:        key.SiteID,
				EquipmentType: key.EquipmentType,
				ActiveRentals: count,
			})
		}
	}
	return points
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// DateRange returns the first and last dates covered by a snapshot's
// rental intervals.
func DateRange(records []types.UsageRecord) (first, last time.Time) {
	if len(records) == 0 {
		return time.Time{}, time.Time{}
	}
	first = records[0].CheckOutDate
	last = records[0].CheckInDate
	for _, r := range records[1:] {
		if r.CheckOutDate.Before(first) {
			first = r.CheckOutDate
		}
		if r.CheckInDate.After(last) {
			last = r.CheckInDate
		}
	}
	return truncateDay(first), truncateDay(last)
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// dayIndex maps a date to a day count since the Unix epoch, ignoring the
// time-of-day component.
func dayIndex(t time.Time) int {
	d := truncateDay(t)
	return int(d.Unix() / 86400)
}

func dayFromIndex(idx int) time.Time {
	return time.Unix(int64(idx)*86400, 0).UTC()
}
