package model

import "time"

// OTPPurpose scopes a code; a code issued for one purpose never verifies
// for another.
type OTPPurpose string

const (
	PurposeRegistration  OTPPurpose = "registration"
	PurposePasswordReset OTPPurpose = "password_reset"
)

func (p OTPPurpose) Valid() bool {
	return p == PurposeRegistration || p == PurposePasswordReset
}

// OTPRecord is one issued code. Records are append-only apart from the
// attempt counter and the consumed flag; only the newest record for an
// (identity, purpose) pair can ever verify.
type OTPRecord struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Identity     string     `gorm:"size:255;not null;index:idx_otp_identity_purpose,priority:1" json:"identity"`
	Purpose      OTPPurpose `gorm:"type:varchar(32);not null;index:idx_otp_identity_purpose,priority:2" json:"purpose"`
	CodeHash     string     `gorm:"size:64;not null" json:"-"`
	CodeSalt     string     `gorm:"size:64;not null" json:"-"`
	AccountID    *uint      `gorm:"index" json:"account_id,omitempty"`
	AttemptCount int        `gorm:"not null;default:0" json:"attempt_count"`
	Consumed     bool       `gorm:"not null;default:false" json:"consumed"`
	ConsumedAt   *time.Time `json:"consumed_at,omitempty"`
	ExpiresAt    time.Time  `gorm:"not null;index" json:"expires_at"`
	CreatedAt    time.Time  `gorm:"not null;index:idx_otp_identity_purpose,priority:3" json:"created_at"`
}

func (OTPRecord) TableName() string {
	return "otp_records"
}

func (r *OTPRecord) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
