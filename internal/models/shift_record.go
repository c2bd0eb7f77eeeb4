package models

import "time"

// Status is the tri-state machine signal carried on a ShiftRecord.
type Status int8

const (
	StatusError   Status = -1 // error or unknown (no telemetry)
	StatusStopped Status = 0
	StatusRunning Status = 1
)

// ConnectionStatus returns the Machine.Status string matching s.
func (s Status) ConnectionStatus() string {
	switch s {
	case StatusRunning:
		return MachineOnline
	case StatusStopped:
		return MachineOffline
	default:
		return MachineError
	}
}

// ShiftRecord represents the spray_machine_data table
// One row per machine per shift-local date, holding the shift accumulators
type ShiftRecord struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	MachineID string `gorm:"column:machine_id;size:50;not null;uniqueIndex:idx_machine_date,priority:1" json:"machineId"`
	Date      string `gorm:"size:10;not null;uniqueIndex:idx_machine_date,priority:2;index" json:"date"` // YYYY-MM-DD, shift-local

	// Time buckets in hours, each clamped to [0, HoursPerDay]
	ActiveTime float64 `gorm:"column:active_time;default:0" json:"activeTime"`
	StopTime   float64 `gorm:"column:stop_time;default:0" json:"stopTime"`
	ErrorTime  float64 `gorm:"column:error_time;default:0" json:"errorTime"`

	// Energy (cumulative meter readings, kWh)
	TotalEnergyConsumed     float64 `gorm:"column:total_energy_consumed;default:0" json:"totalEnergyConsumed"`
	EnergyAtStartOfDay      float64 `gorm:"column:energy_at_start_of_day;default:0" json:"energyAtStartOfDay"`
	CurrentPowerConsumption float64 `gorm:"column:current_power_consumption;default:0" json:"currentPowerConsumption"`

	Efficiency float64 `gorm:"default:0" json:"efficiency"` // percent, 1 decimal

	// Status tracking
	LastStatus           Status    `gorm:"column:last_status;type:tinyint;default:-1" json:"lastStatus"`
	LastStatusChangeTime time.Time `gorm:"column:last_status_change_time" json:"lastStatusChangeTime"`
	LastUpdate           time.Time `gorm:"column:last_update" json:"lastUpdate"`

	Version   uint      `gorm:"default:0" json:"-"` // optimistic lock, bumped on every save
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name for ShiftRecord model
func (ShiftRecord) TableName() string {
	return "spray_machine_data"
}
