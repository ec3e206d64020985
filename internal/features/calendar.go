package features

import "time"

// Calendar holds the calendar-derived codes for a reference date. Day of
// week is 1=Monday through 7=Sunday. No locale dependency: ISO week and
// weekday come straight from the time package.
type Calendar struct {
	DayOfWeek  int
	Month      int
	WeekOfYear int
	Quarter    int
	Year       int
	Weekend    bool
}

// CalendarFor derives the calendar codes from a date.
func CalendarFor(date time.Time) Calendar {
	dow := int(date.Weekday())
	if dow == 0 {
		dow = 7 // Sunday
	}
	_, week := date.ISOWeek()
	return Calendar{
		DayOfWeek:  dow,
		Month:      int(date.Month()),
		WeekOfYear: week,
		Quarter:    (int(date.Month())-1)/3 + 1,
		Year:       date.Year(),
		Weekend:    dow >= 6,
	}
}

// seasonalFactors is a fixed lookup, not fitted: summer months amplify
// demand, winter months dampen it, shoulder months sit near neutral.
var seasonalFactors = [13]float64{
	0,    // unused; months are 1-based
	0.70, // January
	0.75, // February
	1.00, // March
	1.00, // April
	1.10, // May
	1.20, // June
	1.30, // July
	1.25, // August
	1.10, // September
	1.00, // October
	1.00, // November
	0.80, // December
}

// SeasonalFactor returns the deterministic seasonal demand multiplier for
// a month (1-12).
func SeasonalFactor(month int) float64 {
	if month < 1 || month > 12 {
		return 1.0
	}
	return seasonalFactors[month]
}

// IsWinter reports whether a month falls in the winter dampening period.
func IsWinter(month int) bool {
	return month == 12 || month == 1 || month == 2
}
