package repository

import (
	"context"

	"mobius/internal/microservices/http-api/models"

	"gorm.io/gorm"
)

// QuoteRepository defines data operations for provider quotes.
type QuoteRepository interface {
	Create(ctx context.Context, quote *models.Quote) error
	ListByModel(ctx context.Context, modelID int64) ([]models.Quote, error)
	LatestByModelAndProvider(ctx context.Context, modelID int64, provider string) (*models.Quote, error)
}

// quoteRepository is the GORM implementation of QuoteRepository.
type quoteRepository struct {
	db *gorm.DB
}

func NewQuoteRepository(db *gorm.DB) QuoteRepository {
	return &quoteRepository{db: db}
}

func (r *quoteRepository) Create(ctx context.Context, quote *models.Quote) error {
	return r.db.WithContext(ctx).Create(quote).Error
}

func (r *quoteRepository) ListByModel(ctx context.Context, modelID int64) ([]models.Quote, error) {
	var quotes []models.Quote
	err := r.db.WithContext(ctx).
		Where("model_id = ?", modelID).
		Order("fetched_at DESC").
		Find(&quotes).Error
	return quotes, err
}

func (r *quoteRepository) LatestByModelAndProvider(ctx context.Context, modelID int64, provider string) (*models.Quote, error) {
	var quote models.Quote
	err := r.db.WithContext(ctx).
		Where("model_id = ? AND provider = ?", modelID, provider).
		Order("fetched_at DESC").
		First(&quote).Error
	if err != nil {
		return nil, err
	}
	return &quote, nil
}
