package database

import (
	"context"
	"fmt"
	"time"

	"github.com/smartrental/rentaltracker/internal/types"
)

// rentalRow is the flattened join the snapshot query produces.
type rentalRow struct {
	Rental
	EquipmentType string
}

const maxHoursPerDay = 24.0

// Snapshot pulls every rental joined with its equipment type and flattens
// the rows into usage records. Malformed rows are excluded and reported in
// the snapshot, not fatal: ingestion always continues. A missing check-in
// date means the rental is still open and is resolved to the snapshot
// date so downstream interval math sees a closed interval.
func (c *Client) Snapshot(ctx context.Context) (*types.Snapshot, error) {
	var rows []rentalRow
	err := c.DB.WithContext(ctx).
		Table("rentals").
		Select("rentals.*, equipment.type AS equipment_type").
		Joins("JOIN equipment ON equipment.equipment_id = rentals.equipment_id").
		Order("rentals.check_out_date, rentals.id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("snapshot query: %w", err)
	}

	snap := &types.Snapshot{TakenAt: time.Now().UTC()}
	for _, row := range rows {
		rec, reason := flatten(row, snap.TakenAt)
		if reason != "" {
			snap.Malformed = append(snap.Malformed, types.MalformedRecord{
				EquipmentID: row.EquipmentID,
				RentalID:    row.ID,
				Reason:      reason,
			})
			continue
		}
		snap.Records = append(snap.Records, rec)
	}

	if len(snap.Malformed) > 0 {
		c.logger.Warnf("snapshot excluded %d malformed rental rows of %d", len(snap.Malformed), len(rows))
	}
	return snap, nil
}

// flatten validates one joined row. It returns a non-empty reason when the
// row must be excluded from the snapshot.
func flatten(row rentalRow, takenAt time.Time) (types.UsageRecord, string) {
	rec := types.UsageRecord{
		EquipmentID:       row.EquipmentID,
		EquipmentType:     row.EquipmentType,
		CheckOutDate:      row.CheckOutDate,
		EngineHoursPerDay: row.EngineHoursPerDay,
		IdleHoursPerDay:   row.IdleHoursPerDay,
		OperatingDays:     row.OperatingDays,
	}
	if row.SiteID != nil {
		rec.SiteID = *row.SiteID
	}
	if row.OperatorID != nil {
		rec.OperatorID = *row.OperatorID
	}

	switch {
	case row.CheckOutDate.IsZero():
		return rec, "missing check-out date"
	case row.EngineHoursPerDay < 0 || row.EngineHoursPerDay > maxHoursPerDay:
		return rec, fmt.Sprintf("engine hours out of range: %.2f", row.EngineHoursPerDay)
	case row.IdleHoursPerDay < 0 || row.IdleHoursPerDay > maxHoursPerDay:
		return rec, fmt.Sprintf("idle hours out of range: %.2f", row.IdleHoursPerDay)
	case row.EngineHoursPerDay+row.IdleHoursPerDay > maxHoursPerDay:
		return rec, fmt.Sprintf("combined hours exceed a day: %.2f", row.EngineHoursPerDay+row.IdleHoursPerDay)
	case row.OperatingDays < 0:
		return rec, fmt.Sprintf("negative operating days: %d", row.OperatingDays)
	}

	if row.CheckInDate == nil {
		rec.CheckInDate = takenAt
		rec.OpenRental = true
	} else {
		rec.CheckInDate = *row.CheckInDate
		if rec.CheckInDate.Before(rec.CheckOutDate) {
			return rec, "check-in precedes check-out"
		}
	}
	return rec, ""
}

// EquipmentCounts returns the number of distinct known units per (site,
// equipment type) segment, from the equipment roster. The forecast
// capacity constraint uses these.
func (c *Client) EquipmentCounts(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		SiteID string
		Type   string
		Count  int
	}
	err := c.DB.WithContext(ctx).
		Table("equipment").
		Select("site_id, type, COUNT(*) AS count").
		Group("site_id, type").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("equipment counts query: %w", err)
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		key := types.SegmentKey{SiteID: row.SiteID, EquipmentType: row.Type}
		counts[key.String()] = row.Count
	}
	return counts, nil
}
