package model

import (
	"time"

	"gorm.io/gorm"
)

// User is the marketplace account. Email is the identity OTP records are
// scoped by.
type User struct {
	ID                uint           `gorm:"primarykey" json:"id"`
	Email             string         `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash      string         `gorm:"not null" json:"-"`
	Name              string         `gorm:"not null" json:"name"`
	EmailVerified     bool           `gorm:"not null;default:false" json:"email_verified"`
	EmailVerifiedAt   *time.Time     `json:"email_verified_at,omitempty"`
	PasswordChangedAt *time.Time     `json:"-"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "users"
}
