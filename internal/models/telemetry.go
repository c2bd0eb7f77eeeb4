package models

import "time"

// TelemetryMessage is one decoded reading from the MQTT topic.
// Status has already been normalized to StatusRunning/StatusStopped/StatusError.
type TelemetryMessage struct {
	MachineID        string
	Status           Status
	PowerConsumption float64 // cumulative meter reading, kWh
	ReceivedAt       time.Time
}
