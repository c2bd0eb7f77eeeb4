package repository

import (
	"context"

	"spray-machine-monitoring/internal/models"

	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepo(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindAdmins retrieves all users with the admin role
func (r *UserRepository) FindAdmins(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).Where("role = ?", "admin").Find(&users).Error
	return users, err
}
