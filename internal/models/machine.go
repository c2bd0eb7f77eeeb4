package models

import "time"

// SprayMachineType is the Machine.Type value tracked by this service
const SprayMachineType = "Spray Machine"

// Machine.Status values
const (
	MachineOnline  = "online"
	MachineOffline = "offline"
	MachineError   = "error"
)

// Machine represents the machines table
// Owned by the machine management API; this service only reads it and
// refreshes the live connection fields
type Machine struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	MachineID     string     `gorm:"column:machine_id;size:50;not null;uniqueIndex" json:"machineId"`
	Name          string     `gorm:"size:100;not null" json:"name"`
	Type          string     `gorm:"size:50;not null;index" json:"type"`
	Location      string     `gorm:"size:255" json:"location,omitempty"`
	UserID        uint       `gorm:"column:user_id;index" json:"userId"` // owner
	IsConnected   bool       `gorm:"column:is_connected;default:false" json:"isConnected"`
	Status        string     `gorm:"size:20;default:'offline'" json:"status"`
	LastHeartbeat *time.Time `gorm:"column:last_heartbeat" json:"lastHeartbeat"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`

	ShiftRecords []ShiftRecord `gorm:"foreignKey:MachineID;references:MachineID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for Machine model
func (Machine) TableName() string {
	return "machines"
}
