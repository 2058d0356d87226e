package models

import (
	"time"

	"gorm.io/gorm"
)

// Response statuses
const (
	ResponseStatusActive   = "ACTIVE"
	ResponseStatusArchived = "ARCHIVED"
)

// Response represents one user's expression of interest in a service or
// order. A response owns exactly one chat thread between its sender and the
// listing owner. Archived on deal completion; deleted when the sender
// withdraws.
type Response struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	ServiceID uint           `gorm:"not null;index" json:"service_id"` // foreign key to services table
	Service   Service        `gorm:"foreignKey:ServiceID" json:"-"`
	SenderID  uint           `gorm:"not null;index" json:"sender_id"` // foreign key to users table, never the listing owner
	Sender    User           `gorm:"foreignKey:SenderID" json:"-"`
	Status    string         `gorm:"not null;default:'ACTIVE'" json:"status"` // ACTIVE, ARCHIVED
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Response model
func (Response) TableName() string {
	return "responses"
}
