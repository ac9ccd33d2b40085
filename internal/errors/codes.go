package errors

// Error codes returned in ErrorResponse.Error.
// Format: CATEGORY_SPECIFIC_DETAIL. Clients map messages from the code.

const (
	// ==================== Request (REQUEST_) ====================
	RequestInvalid = "REQUEST_INVALID" // malformed body, bad identity or failed CSRF check

	// ==================== Auth (AUTH_) ====================
	AuthEmailAlreadyExists = "AUTH_EMAIL_EXISTS"
	AuthAlreadyVerified    = "AUTH_ALREADY_VERIFIED"
	AuthOTPThrottled       = "AUTH_OTP_THROTTLED" // daily code ceiling reached
	AuthCodeInvalid        = "AUTH_CODE_INVALID"
	AuthCodeExpired        = "AUTH_CODE_EXPIRED" // also used when no active code exists
	AuthTokenInvalid       = "AUTH_TOKEN_INVALID"
	AuthPasswordPolicy     = "AUTH_PASSWORD_POLICY"

	// ==================== Validation (VALIDATION_) ====================
	ValidationInvalidInput = "VALIDATION_INVALID_INPUT"

	// ==================== Internal (INTERNAL_) ====================
	InternalRetry       = "INTERNAL_RETRY" // store or lock unavailable; safe to retry
	InternalServerError = "INTERNAL_SERVER_ERROR"
)
