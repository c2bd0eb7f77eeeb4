package models

import "time"

// Notification types
const (
	NotificationMachineError     = "machine_error"
	NotificationMQTTDisconnected = "mqtt_disconnected"
	NotificationIncompleteShift  = "incomplete_shift"
	NotificationSystem           = "system"
)

// Notification represents the notifications table
type Notification struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	UserID      uint       `gorm:"column:user_id;not null;index:idx_user_created,priority:1" json:"userId"`
	MachineID   string     `gorm:"column:machine_id;size:50;index" json:"machineId"`
	MachineName string     `gorm:"column:machine_name;size:100" json:"machineName"`
	Type        string     `gorm:"size:30;not null;default:'system'" json:"type"`
	Severity    string     `gorm:"type:enum('info','warning','error','success');default:'info'" json:"severity"`
	Title       string     `gorm:"size:255;not null" json:"title"`
	Message     string     `gorm:"type:text;not null" json:"message"`
	Source      string     `gorm:"size:50;default:'System'" json:"source"`
	IsRead      bool       `gorm:"column:is_read;default:false" json:"isRead"`
	ReadAt      *time.Time `gorm:"column:read_at" json:"readAt"`
	CreatedAt   time.Time  `gorm:"index:idx_user_created,priority:2" json:"createdAt"`
}

// TableName specifies the table name for Notification model
func (Notification) TableName() string {
	return "notifications"
}
