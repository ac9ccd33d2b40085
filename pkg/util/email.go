package util

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var ErrInvalidEmail = errors.New("invalid email address")

// same rule as the request structs' binding:"required,email"
var emailValidator = validator.New()

// NormalizeEmail trims and lower-cases an address so OTP records and
// accounts agree on one spelling per identity.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ParseEmail normalizes email and validates it for callers outside gin
// binding (workflows, cmd/import).
func ParseEmail(email string) (string, error) {
	normalized := NormalizeEmail(email)
	if err := emailValidator.Var(normalized, "required,max=254,email"); err != nil {
		return "", ErrInvalidEmail
	}
	return normalized, nil
}
