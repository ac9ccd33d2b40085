package errors

import (
	"errors"
	"net/http"

	"github.com/ikkim/localservices-backend/internal/app/service"
	"github.com/ikkim/localservices-backend/pkg/util"
)

// User-facing messages. Store and transport detail never reaches clients.
const (
	MsgInvalidRequest  = "Invalid request. Please reload the page and try again."
	MsgThrottled       = "Too many codes requested today. Please try again tomorrow."
	MsgCodeInvalid     = "Incorrect code. Please check your inbox and try again."
	MsgCodeExpired     = "Code expired. Please resend a new code."
	MsgTokenInvalid    = "This reset link is invalid or has expired. Please start over."
	MsgAlreadyVerified = "This email address is already verified."
	MsgEmailExists     = "An account with this email already exists."
	MsgRetry           = "Something went wrong. Please try again in a moment."
	MsgPasswordShort   = "Password is too short."
	MsgPasswordMatch   = "Passwords do not match."
)

// ErrorInfo is the HTTP rendering of an error
type ErrorInfo struct {
	Status  int
	Code    string
	Message string
}

// ParseError maps service errors to a status, code and message. Unknown
// errors become a generic retry so nothing internal leaks.
func ParseError(err error) ErrorInfo {
	switch {
	case err == nil:
		return ErrorInfo{http.StatusInternalServerError, InternalServerError, MsgRetry}

	// expired and not-found share one message so clients cannot tell
	// whether a code was ever issued
	case errors.Is(err, service.ErrCodeExpired), errors.Is(err, service.ErrCodeNotFound):
		return ErrorInfo{http.StatusBadRequest, AuthCodeExpired, MsgCodeExpired}
	case errors.Is(err, service.ErrCodeInvalid):
		return ErrorInfo{http.StatusBadRequest, AuthCodeInvalid, MsgCodeInvalid}
	case errors.Is(err, service.ErrThrottled):
		return ErrorInfo{http.StatusTooManyRequests, AuthOTPThrottled, MsgThrottled}
	case errors.Is(err, service.ErrResetTokenInvalid), errors.Is(err, service.ErrResetNotVerified):
		return ErrorInfo{http.StatusBadRequest, AuthTokenInvalid, MsgTokenInvalid}
	case errors.Is(err, service.ErrPasswordPolicy):
		return parsePasswordPolicy(err)
	case errors.Is(err, service.ErrAlreadyVerified):
		return ErrorInfo{http.StatusConflict, AuthAlreadyVerified, MsgAlreadyVerified}
	case errors.Is(err, service.ErrEmailAlreadyExists):
		return ErrorInfo{http.StatusConflict, AuthEmailAlreadyExists, MsgEmailExists}
	case errors.Is(err, service.ErrInvalidRequest):
		return ErrorInfo{http.StatusBadRequest, RequestInvalid, MsgInvalidRequest}
	case errors.Is(err, service.ErrStoreUnavailable), errors.Is(err, service.ErrIssuanceBusy):
		return ErrorInfo{http.StatusServiceUnavailable, InternalRetry, MsgRetry}
	default:
		return ErrorInfo{http.StatusInternalServerError, InternalServerError, MsgRetry}
	}
}

func parsePasswordPolicy(err error) ErrorInfo {
	if errors.Is(err, util.ErrPasswordMismatch) {
		return ErrorInfo{http.StatusBadRequest, AuthPasswordPolicy, MsgPasswordMatch}
	}
	return ErrorInfo{http.StatusBadRequest, AuthPasswordPolicy, MsgPasswordShort}
}
