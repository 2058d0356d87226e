package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents a member of the university marketplace
type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Auth0ID      string         `gorm:"uniqueIndex;not null" json:"auth0_id"` // Auth0 user ID (from 'sub' claim)
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	Name         string         `gorm:"not null" json:"name"`
	Surname      string         `json:"surname"`
	Role         string         `gorm:"not null;default:'student'" json:"role"` // "student" or "moderator"
	Rate         *float64       `json:"rate"`                                   // nullable, aggregate rating across completed deals
	AvatarBase64 *string        `gorm:"type:text" json:"avatar_base64,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}

// DisplayName returns "Surname Name", falling back to the email when the
// profile carries no name fields.
func (u *User) DisplayName() string {
	switch {
	case u.Surname != "" && u.Name != "":
		return u.Surname + " " + u.Name
	case u.Name != "":
		return u.Name
	default:
		return u.Email
	}
}
