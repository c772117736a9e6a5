package models

import (
	"time"
)

// Model is a 3D design file uploaded by a user. The raw bytes are kept in
// the database so every provider upload can be replayed from here.
type Model struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    string    `gorm:"type:uuid;not null;index" json:"user_id"`
	Name      string    `gorm:"not null" json:"name"` // filename as entered on the upload form
	Data      []byte    `gorm:"type:bytea" json:"-"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`

	// Associations
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (Model) TableName() string {
	return "models"
}
