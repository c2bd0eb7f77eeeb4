package service

import (
	"context"

	"spray-machine-monitoring/internal/models"
)

// ShiftRecordStore is the persistence the ingestion engine needs.
// Implemented by repository.ShiftRecordRepository.
type ShiftRecordStore interface {
	FindByDate(ctx context.Context, machineID, date string) (*models.ShiftRecord, error)
	FindLatestBefore(ctx context.Context, machineID, date string) (*models.ShiftRecord, error)
	GetOrCreate(ctx context.Context, rec *models.ShiftRecord) (*models.ShiftRecord, bool, error)
	Save(ctx context.Context, rec *models.ShiftRecord) error
}

// ShiftRecordReader is the read side used by the dashboard queries.
type ShiftRecordReader interface {
	FindByDate(ctx context.Context, machineID, date string) (*models.ShiftRecord, error)
	FindLatest(ctx context.Context, machineID string) (*models.ShiftRecord, error)
	History(ctx context.Context, machineID string, limit int) ([]models.ShiftRecord, error)
	FindRange(ctx context.Context, machineID, from, to string) ([]models.ShiftRecord, error)
}

// MachineDirectory looks up machines and refreshes their live fields.
// Implemented by repository.MachineRepository.
type MachineDirectory interface {
	FindSprayMachine(ctx context.Context, machineID string) (*models.Machine, error)
	ListSprayMachines(ctx context.Context) ([]models.Machine, error)
	UpdateConnectionStatus(ctx context.Context, machineID string, connected bool, status string) error
}

// Publisher delivers an event to real-time clients. With no rooms the
// event goes to every connected client; otherwise to the members of
// any listed room, once per client.
type Publisher interface {
	Publish(event string, payload interface{}, rooms ...string)
}

// Archiver keeps a copy of every accepted reading.
type Archiver interface {
	Archive(ctx context.Context, msg models.TelemetryMessage, rec *models.ShiftRecord) error
}

// Notifier persists and pushes user-facing notifications. Notify must
// not block the caller.
type Notifier interface {
	Notify(event NotificationEvent)
}
