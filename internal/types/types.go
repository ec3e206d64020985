// Package types contains the core data types shared across the engine.
package types

import "time"

// UsageRecord is a flattened view of one rental with its usage telemetry.
// Records are immutable once ingested into a training snapshot; the record
// store owns the underlying rows.
type UsageRecord struct {
	EquipmentID       string
	EquipmentType     string
	SiteID            string // empty when the equipment is unassigned
	OperatorID        string
	CheckOutDate      time.Time
	CheckInDate       time.Time
	EngineHoursPerDay float64
	IdleHoursPerDay   float64
	OperatingDays     int

	// OpenRental marks a record whose check-in date was missing in the
	// store. The snapshot resolves CheckInDate to the snapshot date so
	// that interval math always sees a closed interval.
	OpenRental bool
}

// Duration returns the rental duration in days.
func (r UsageRecord) Duration() float64 {
	return r.CheckInDate.Sub(r.CheckOutDate).Hours() / 24.0
}

// DailyDemandPoint is one cell of the daily demand series: the number of
// rentals of a given equipment type active at a site on a given date.
type DailyDemandPoint struct {
	Date          time.Time
	SiteID        string
	EquipmentType string
	ActiveRentals int
}

// MalformedRecord describes a row excluded from a snapshot and why.
type MalformedRecord struct {
	EquipmentID string `json:"equipment_id"`
	RentalID    uint   `json:"rental_id"`
	Reason      string `json:"reason"`
}

// Snapshot is the result of pulling a training snapshot out of the record
// store. Malformed rows are reported, not fatal.
type Snapshot struct {
	TakenAt   time.Time
	Records   []UsageRecord
	Malformed []MalformedRecord
}

// SegmentKey identifies a (site, equipment type) pair, the unit of
// per-model specialization.
type SegmentKey struct {
	SiteID        string
	EquipmentType string
}

// GlobalSegment is the sentinel key for the global fallback model.
var GlobalSegment = SegmentKey{SiteID: "global", EquipmentType: "global"}

// String renders the key in the stable form used for artifact naming.
func (k SegmentKey) String() string {
	if k == GlobalSegment {
		return "global"
	}
	site := k.SiteID
	if site == "" {
		site = "UNASSIGNED"
	}
	return site + "|" + k.EquipmentType
}
