package repository

import (
	"context"

	"spray-machine-monitoring/internal/models"

	"gorm.io/gorm"
)

// Audit actions recorded by this service
const (
	AuditManualShiftReset = "spray_manual_reset"
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepo(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Record stores who triggered an admin action and what it affected
func (r *AuditRepository) Record(ctx context.Context, userID uint, action, details string) error {
	return r.db.WithContext(ctx).Create(&models.AuditLog{
		UserID:  &userID,
		Action:  action,
		Details: details,
	}).Error
}
