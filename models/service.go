package models

import (
	"time"

	"gorm.io/gorm"
)

// Service represents a posted service or order listing. The communication
// core only reads it (title and ownership resolution); listing CRUD lives in
// the marketplace service.
type Service struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	OwnerID     uint           `gorm:"not null;index" json:"owner_id"` // foreign key to users table
	Owner       User           `gorm:"foreignKey:OwnerID" json:"-"`
	Title       string         `gorm:"not null" json:"title"`
	Description string         `gorm:"type:text" json:"description"`
	Price       *float64       `json:"price"` // nullable, negotiable listings carry no price
	Status      string         `gorm:"not null;default:'ACTIVE'" json:"status"` // ACTIVE, HIDDEN
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Service model
func (Service) TableName() string {
	return "services"
}
