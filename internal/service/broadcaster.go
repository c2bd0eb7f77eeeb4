package service

import (
	"fmt"
	"time"

	"spray-machine-monitoring/internal/accounting"
	"spray-machine-monitoring/internal/models"
)

// Real-time event names
const (
	EventSprayRealtime   = "spray:realtime"
	EventStatusUpdate    = "machine:status-update"
	EventDailyReset      = "spray:daily-reset"
	EventNotificationNew = "notification:new"
)

// RoomSprayMachines is joined by dashboards that follow every spray machine
const RoomSprayMachines = "spray-machines"

// MachineRoom is the room of clients following one machine
func MachineRoom(machineID string) string {
	return "machine-" + machineID
}

// UserRoom is the private room of one user
func UserRoom(userID uint) string {
	return fmt.Sprintf("user:%d", userID)
}

// RealtimePayload is the spray:realtime body
type RealtimePayload struct {
	MachineID           string        `json:"machineId"`
	Date                string        `json:"date"`
	Status              models.Status `json:"status"`
	ActiveTime          float64       `json:"activeTime"`
	StopTime            float64       `json:"stopTime"`
	ErrorTime           float64       `json:"errorTime"`
	TotalEnergyConsumed float64       `json:"totalEnergyConsumed"`
	PowerConsumption    float64       `json:"powerConsumption"`
	Efficiency          float64       `json:"efficiency"`
	LastUpdate          time.Time     `json:"lastUpdate"`
}

// NewRealtimePayload rounds times to 2 decimals, energy to 3 and
// efficiency to 1
func NewRealtimePayload(rec *models.ShiftRecord) RealtimePayload {
	return RealtimePayload{
		MachineID:           rec.MachineID,
		Date:                rec.Date,
		Status:              rec.LastStatus,
		ActiveTime:          accounting.Round(rec.ActiveTime, 2),
		StopTime:            accounting.Round(rec.StopTime, 2),
		ErrorTime:           accounting.Round(rec.ErrorTime, 2),
		TotalEnergyConsumed: accounting.Round(rec.TotalEnergyConsumed, 3),
		PowerConsumption:    accounting.Round(rec.CurrentPowerConsumption, 3),
		Efficiency:          accounting.Round(rec.Efficiency, 1),
		LastUpdate:          rec.LastUpdate,
	}
}

// StatusUpdatePayload is the machine:status-update body
type StatusUpdatePayload struct {
	MachineID     string        `json:"machineId"`
	Status        string        `json:"status"`
	IsConnected   bool          `json:"isConnected"`
	LastStatus    models.Status `json:"lastStatus"`
	LastUpdate    time.Time     `json:"lastUpdate"`
	LastHeartbeat time.Time     `json:"lastHeartbeat"`
}

// DailyResetPayload is the spray:daily-reset body
type DailyResetPayload struct {
	MachineID string `json:"machineId"`
	Date      string `json:"date"`
	Message   string `json:"message"`
}

// Broadcaster shapes domain state into real-time events
type Broadcaster struct {
	publisher Publisher
}

func NewBroadcaster(publisher Publisher) *Broadcaster {
	return &Broadcaster{publisher: publisher}
}

// Realtime publishes the current accumulators of a record to everyone
func (b *Broadcaster) Realtime(rec *models.ShiftRecord) {
	b.publisher.Publish(EventSprayRealtime, NewRealtimePayload(rec))
}

// StatusUpdate publishes a machine's connection state to everyone
func (b *Broadcaster) StatusUpdate(p StatusUpdatePayload) {
	b.publisher.Publish(EventStatusUpdate, p)
}

// DailyReset tells followers of a machine that a new shift began
func (b *Broadcaster) DailyReset(machineID, date, message string) {
	b.publisher.Publish(EventDailyReset, DailyResetPayload{
		MachineID: machineID,
		Date:      date,
		Message:   message,
	}, MachineRoom(machineID), RoomSprayMachines)
}

// Notification pushes a stored notification to its recipient
func (b *Broadcaster) Notification(n *models.Notification) {
	b.publisher.Publish(EventNotificationNew, n, UserRoom(n.UserID))
}
