package models

import (
	"time"

	"gorm.io/gorm"
)

// Feedback represents a rating and optional review left on a service after a
// successfully completed deal.
type Feedback struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	ServiceID uint           `gorm:"not null;index" json:"service_id"` // foreign key to services table
	Service   Service        `gorm:"foreignKey:ServiceID" json:"-"`
	SenderID  uint           `gorm:"not null;index" json:"sender_id"` // the responder who completed the deal
	Sender    User           `gorm:"foreignKey:SenderID" json:"-"`
	Rate      int            `gorm:"not null;check:rate >= 1 AND rate <= 5" json:"rate"`
	Review    *string        `gorm:"type:text" json:"review,omitempty"` // nullable, bounded at 5000 chars by validation
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"-"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Feedback model
func (Feedback) TableName() string {
	return "feedbacks"
}
