package models

import "time"

// Quote is a price answer returned by a print provider for one of our models.
type Quote struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ModelID   int64     `gorm:"not null;index" json:"model_id"`
	Provider  string    `gorm:"not null;index" json:"provider"` // IMATERIALISE, SCULPTEO
	Payload   string    `gorm:"type:jsonb" json:"payload"`      // provider response as returned
	FetchedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"fetched_at"`

	// Associations
	Model *Model `gorm:"foreignKey:ModelID" json:"model,omitempty"`
}

func (Quote) TableName() string {
	return "quotes"
}
