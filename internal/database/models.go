package database

import (
	"time"
)

// Equipment represents a rentable unit in the fleet
type Equipment struct {
	ID           uint   `gorm:"primaryKey;autoIncrement;column:id"`
	EquipmentID  string `gorm:"column:equipment_id;not null;unique"`
	Type         string `gorm:"column:type;not null"`
	SiteID       string `gorm:"column:site_id"`
	Model        string `gorm:"column:model"`
	Manufacturer string `gorm:"column:manufacturer"`
	Year         int    `gorm:"column:year"`
	SerialNumber string `gorm:"column:serial_number"`

	// available, rented, maintenance, retired
	Status string `gorm:"column:status;default:available"`

	CreatedAt time.Time `gorm:"column:created_at;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"column:updated_at;default:CURRENT_TIMESTAMP"`
}

// TableName specifies the table name for Equipment
func (Equipment) TableName() string {
	return "equipment"
}

// Site represents a work site equipment can be assigned to
type Site struct {
	ID       uint   `gorm:"primaryKey;autoIncrement;column:id"`
	SiteID   string `gorm:"column:site_id;not null;unique"`
	Name     string `gorm:"column:name"`
	Location string `gorm:"column:location"`

	CreatedAt time.Time `gorm:"column:created_at;default:CURRENT_TIMESTAMP"`
}

// TableName specifies the table name for Site
func (Site) TableName() string {
	return "sites"
}

// Rental represents one rental of a unit with its per-day usage telemetry.
// CheckInDate is null while the rental is still open.
type Rental struct {
	ID          uint    `gorm:"primaryKey;autoIncrement;column:id"`
	EquipmentID string  `gorm:"column:equipment_id;not null;index"`
	SiteID      *string `gorm:"column:site_id;index"`
	OperatorID  *string `gorm:"column:operator_id"`

	CheckOutDate time.Time  `gorm:"column:check_out_date;not null"`
	CheckInDate  *time.Time `gorm:"column:check_in_date"`

	EngineHoursPerDay float64 `gorm:"column:engine_hours_per_day;default:0"`
	IdleHoursPerDay   float64 `gorm:"column:idle_hours_per_day;default:0"`
	OperatingDays     int     `gorm:"column:operating_days;default:0"`

	CreatedAt time.Time `gorm:"column:created_at;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"column:updated_at;default:CURRENT_TIMESTAMP"`
}

// TableName specifies the table name for Rental
func (Rental) TableName() string {
	return "rentals"
}

// UsageLog is a raw daily usage reading reported for a unit.
type UsageLog struct {
	ID          uint      `gorm:"primaryKey;autoIncrement;column:id"`
	EquipmentID string    `gorm:"column:equipment_id;not null;index"`
	LogDate     time.Time `gorm:"column:log_date;not null;index"`
	EngineHours float64   `gorm:"column:engine_hours;default:0"`
	IdleHours   float64   `gorm:"column:idle_hours;default:0"`

	CreatedAt time.Time `gorm:"column:created_at;default:CURRENT_TIMESTAMP"`
}

// TableName specifies the table name for UsageLog
func (UsageLog) TableName() string {
	return "usage_logs"
}
