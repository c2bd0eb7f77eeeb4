package repository

import (
	"context"
	"errors"
	"fmt"

	"spray-machine-monitoring/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrShiftRecordNotFound is returned when no record exists for the query
	ErrShiftRecordNotFound = errors.New("shift record not found")

	// ErrShiftRecordConflict is returned by Save when another writer
	// updated the record since it was loaded
	ErrShiftRecordConflict = errors.New("shift record was modified concurrently")
)

type ShiftRecordRepository struct {
	db *gorm.DB
}

func NewShiftRecordRepo(db *gorm.DB) *ShiftRecordRepository {
	return &ShiftRecordRepository{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrShiftRecordNotFound
	}
	return err
}

// FindByDate retrieves the record of a machine for one shift date
func (r *ShiftRecordRepository) FindByDate(ctx context.Context, machineID, date string) (*models.ShiftRecord, error) {
	var rec models.ShiftRecord
	err := r.db.WithContext(ctx).
		Where("machine_id = ? AND date = ?", machineID, date).
		First(&rec).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

// FindLatest retrieves the most recent record of a machine
func (r *ShiftRecordRepository) FindLatest(ctx context.Context, machineID string) (*models.ShiftRecord, error) {
	var rec models.ShiftRecord
	err := r.db.WithContext(ctx).
		Where("machine_id = ?", machineID).
		Order("date DESC").
		First(&rec).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

// FindLatestBefore retrieves the most recent record strictly before date
// Used to seed the energy baseline of a new shift
func (r *ShiftRecordRepository) FindLatestBefore(ctx context.Context, machineID, date string) (*models.ShiftRecord, error) {
	var rec models.ShiftRecord
	err := r.db.WithContext(ctx).
		Where("machine_id = ? AND date < ?", machineID, date).
		Order("date DESC").
		First(&rec).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

// Create inserts rec unless a record for the same machine and date
// already exists. Reports whether a row was inserted.
func (r *ShiftRecordRepository) Create(ctx context.Context, rec *models.ShiftRecord) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rec)
	if result.Error != nil {
		return false, fmt.Errorf("create shift record %s/%s: %w", rec.MachineID, rec.Date, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// GetOrCreate returns the existing record for rec's machine and date,
// inserting rec first if there is none
func (r *ShiftRecordRepository) GetOrCreate(ctx context.Context, rec *models.ShiftRecord) (*models.ShiftRecord, bool, error) {
	created, err := r.Create(ctx, rec)
	if err != nil {
		return nil, false, err
	}
	if created {
		return rec, true, nil
	}
	existing, err := r.FindByDate(ctx, rec.MachineID, rec.Date)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// Save writes back every mutable field of rec. The write only applies if
// the stored version still matches rec.Version.
func (r *ShiftRecordRepository) Save(ctx context.Context, rec *models.ShiftRecord) error {
	result := r.db.WithContext(ctx).
		Model(&models.ShiftRecord{}).
		Where("id = ? AND version = ?", rec.ID, rec.Version).
		Updates(map[string]interface{}{
			"active_time":               rec.ActiveTime,
			"stop_time":                 rec.StopTime,
			"error_time":                rec.ErrorTime,
			"total_energy_consumed":     rec.TotalEnergyConsumed,
			"energy_at_start_of_day":    rec.EnergyAtStartOfDay,
			"current_power_consumption": rec.CurrentPowerConsumption,
			"efficiency":                rec.Efficiency,
			"last_status":               rec.LastStatus,
			"last_status_change_time":   rec.LastStatusChangeTime,
			"last_update":               rec.LastUpdate,
			"version":                   rec.Version + 1,
		})
	if result.Error != nil {
		return fmt.Errorf("save shift record %s/%s: %w", rec.MachineID, rec.Date, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrShiftRecordConflict
	}
	rec.Version++
	return nil
}

// History retrieves the latest records of a machine, newest first
func (r *ShiftRecordRepository) History(ctx context.Context, machineID string, limit int) ([]models.ShiftRecord, error) {
	var records []models.ShiftRecord
	err := r.db.WithContext(ctx).
		Where("machine_id = ?", machineID).
		Order("date DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// FindRange retrieves records with from <= date <= to, oldest first
func (r *ShiftRecordRepository) FindRange(ctx context.Context, machineID, from, to string) ([]models.ShiftRecord, error) {
	var records []models.ShiftRecord
	err := r.db.WithContext(ctx).
		Where("machine_id = ? AND date >= ? AND date <= ?", machineID, from, to).
		Order("date ASC").
		Find(&records).Error
	return records, err
}
