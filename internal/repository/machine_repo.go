package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spray-machine-monitoring/internal/models"

	"gorm.io/gorm"
)

// ErrMachineNotFound is returned when no spray machine has the given id
var ErrMachineNotFound = errors.New("spray machine not found")

type MachineRepository struct {
	db *gorm.DB
}

func NewMachineRepo(db *gorm.DB) *MachineRepository {
	return &MachineRepository{db: db}
}

// FindSprayMachine retrieves a machine of the spray type by its machine id
func (r *MachineRepository) FindSprayMachine(ctx context.Context, machineID string) (*models.Machine, error) {
	var machine models.Machine
	err := r.db.WithContext(ctx).
		Where("machine_id = ? AND type = ?", machineID, models.SprayMachineType).
		First(&machine).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrMachineNotFound, machineID)
		}
		return nil, err
	}
	return &machine, nil
}

// ListSprayMachines retrieves every machine of the spray type
func (r *MachineRepository) ListSprayMachines(ctx context.Context) ([]models.Machine, error) {
	var machines []models.Machine
	err := r.db.WithContext(ctx).
		Where("type = ?", models.SprayMachineType).
		Order("machine_id ASC").
		Find(&machines).Error
	return machines, err
}

// UpdateConnectionStatus refreshes the live connection fields of a machine
func (r *MachineRepository) UpdateConnectionStatus(ctx context.Context, machineID string, connected bool, status string) error {
	return r.db.WithContext(ctx).
		Model(&models.Machine{}).
		Where("machine_id = ?", machineID).
		Updates(map[string]interface{}{
			"is_connected":   connected,
			"status":         status,
			"last_heartbeat": time.Now().UTC(),
		}).Error
}
