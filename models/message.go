package models

import (
	"time"

	"gorm.io/gorm"
)

// Message represents one unit of communication within a response's thread.
// At least one of Text and ImageS3Key is set; a message may carry both.
// Messages are immutable once created and never deleted.
type Message struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	ResponseID uint           `gorm:"not null;index" json:"response_id"` // foreign key to responses table
	Response   Response       `gorm:"foreignKey:ResponseID" json:"-"`
	SenderID   uint           `gorm:"not null;index" json:"sender_id"` // foreign key to users table
	ReceiverID uint           `gorm:"not null;index" json:"receiver_id"`
	Text       *string        `gorm:"type:text" json:"text,omitempty"`
	ImageS3Key *string        `json:"image_s3_key,omitempty"`
	ImageURL   *string        `gorm:"-" json:"image_url,omitempty"` // computed field, presigned URL for attachment
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"-"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Message model
func (Message) TableName() string {
	return "messages"
}
