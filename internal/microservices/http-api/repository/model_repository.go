package repository

import (
	"context"

	"mobius/internal/microservices/http-api/models"

	"gorm.io/gorm"
)

// ModelRepository defines data operations for uploaded 3D models.
type ModelRepository interface {
	Create(ctx context.Context, model *models.Model) error
	FindByID(ctx context.Context, id int64) (*models.Model, error)
	ListByUser(ctx context.Context, userID string) ([]models.Model, error)
	Delete(ctx context.Context, id int64) error
}

// modelRepository is the GORM implementation of ModelRepository.
type modelRepository struct {
	db *gorm.DB
}

func NewModelRepository(db *gorm.DB) ModelRepository {
	return &modelRepository{db: db}
}

func (r *modelRepository) Create(ctx context.Context, model *models.Model) error {
	return r.db.WithContext(ctx).Create(model).Error
}

func (r *modelRepository) FindByID(ctx context.Context, id int64) (*models.Model, error) {
	var model models.Model
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &model, nil
}

// ListByUser returns the user's models without the file bytes. Listing with
// payloads pulls the whole library into memory for no reason.
func (r *modelRepository) ListByUser(ctx context.Context, userID string) ([]models.Model, error) {
	var result []models.Model
	err := r.db.WithContext(ctx).
		Select("id", "user_id", "name", "size", "created_at").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&result).Error
	return result, err
}

func (r *modelRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&models.Model{}, "id = ?", id).Error
}
