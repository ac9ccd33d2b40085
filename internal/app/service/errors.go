package service

import (
	"errors"
	"fmt"
)

// Verification error taxonomy. Controllers map these with errors.Is.
var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrThrottled         = errors.New("daily verification code limit reached")
	ErrIssuanceBusy      = errors.New("another verification code is being issued")
	ErrCodeInvalid       = errors.New("verification code is incorrect")
	ErrCodeExpired       = errors.New("verification code has expired")
	ErrCodeNotFound      = errors.New("no active verification code")
	ErrResetNotVerified  = errors.New("password reset has not been verified")
	ErrResetTokenInvalid = errors.New("reset token is invalid or expired")
	ErrPasswordPolicy    = errors.New("password does not meet policy")
	ErrDeliveryFailed    = errors.New("email delivery failed")
	ErrStoreUnavailable  = errors.New("verification store unavailable")
	ErrAlreadyVerified   = errors.New("email is already verified")
)

var (
	ErrCSRFInvalid        = fmt.Errorf("%w: csrf token missing or invalid", ErrInvalidRequest)
	ErrInvalidIdentity    = fmt.Errorf("%w: email address is not valid", ErrInvalidRequest)
	ErrAccountUnknown     = fmt.Errorf("%w: account not found", ErrInvalidRequest)
	ErrEmailAlreadyExists = errors.New("email already exists")
)

func storeFailure(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
