package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/localservices-backend/internal/app/service"
	apperrors "github.com/ikkim/localservices-backend/internal/errors"
	"github.com/ikkim/localservices-backend/internal/middleware"
)

// Form actions
const (
	ActionConfirm = "confirm"
	ActionResend  = "resend"
	ActionRequest = "request"
)

type VerificationController struct {
	verification service.VerificationService
}

func NewVerificationController(verification service.VerificationService) *VerificationController {
	return &VerificationController{verification: verification}
}

type VerifyEmailRequest struct {
	Email  string `json:"email" binding:"required,email"`
	Code   string `json:"code"`
	Action string `json:"action"`
}

type ForgotPasswordRequest struct {
	Email  string `json:"email" binding:"required,email"`
	Action string `json:"action"`
}

type VerifyResetCodeRequest struct {
	Email  string `json:"email" binding:"required,email"`
	Code   string `json:"code"`
	Action string `json:"action"`
}

type ResetPasswordRequest struct {
	Email                string `json:"email" binding:"required,email"`
	Token                string `json:"token" binding:"required"`
	NewPassword          string `json:"new_password" binding:"required"`
	PasswordConfirmation string `json:"password_confirmation" binding:"required"`
}

// EntryPage describes the verification form for an identity
// GET /api/v1/auth/verify?identity=&step=code|password&purpose=registration|password_reset
func (ctrl *VerificationController) EntryPage(c *gin.Context) {
	page, err := ctrl.verification.EntryPage(c.Query("identity"), c.Query("step"), c.Query("purpose"))
	if err != nil {
		apperrors.RespondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// VerifyEmail confirms or resends the registration code
// POST /api/v1/auth/verify-email
func (ctrl *VerificationController) VerifyEmail(c *gin.Context) {
	var req VerifyEmailRequest
	if !bindRequest(c, &req) {
		return
	}

	ctx := c.Request.Context()
	scope := requestScope(c)

	var (
		result *service.FlowResult
		err    error
	)
	switch req.Action {
	case "", ActionConfirm:
		result, err = ctrl.verification.ConfirmRegistration(ctx, scope, req.Email, req.Code)
	case ActionResend:
		result, err = ctrl.verification.ResendRegistration(ctx, scope, req.Email)
	default:
		apperrors.InvalidRequest(c)
		return
	}
	respondFlow(c, "verify email", result, err)
}

// ForgotPassword requests or resends a password reset code
// POST /api/v1/auth/forgot-password
func (ctrl *VerificationController) ForgotPassword(c *gin.Context) {
	var req ForgotPasswordRequest
	if !bindRequest(c, &req) {
		return
	}

	ctx := c.Request.Context()
	scope := requestScope(c)

	var (
		result *service.FlowResult
		err    error
	)
	switch req.Action {
	case "", ActionRequest:
		result, err = ctrl.verification.RequestReset(ctx, scope, req.Email)
	case ActionResend:
		result, err = ctrl.verification.ResendReset(ctx, scope, req.Email)
	default:
		apperrors.InvalidRequest(c)
		return
	}
	respondFlow(c, "forgot password", result, err)
}

// VerifyResetCode exchanges a reset code for a reset token, or resends it
// POST /api/v1/auth/forgot-password/verify
func (ctrl *VerificationController) VerifyResetCode(c *gin.Context) {
	var req VerifyResetCodeRequest
	if !bindRequest(c, &req) {
		return
	}

	ctx := c.Request.Context()
	scope := requestScope(c)

	var (
		result *service.FlowResult
		err    error
	)
	switch req.Action {
	case "", ActionConfirm:
		result, err = ctrl.verification.VerifyResetCode(ctx, scope, req.Email, req.Code)
	case ActionResend:
		result, err = ctrl.verification.ResendReset(ctx, scope, req.Email)
	default:
		apperrors.InvalidRequest(c)
		return
	}
	respondFlow(c, "verify reset code", result, err)
}

// ResetPassword sets a new password using a reset token
// POST /api/v1/auth/reset-password
func (ctrl *VerificationController) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if !bindRequest(c, &req) {
		return
	}

	result, err := ctrl.verification.ResetPassword(
		c.Request.Context(),
		requestScope(c),
		req.Email,
		req.Token,
		req.NewPassword,
		req.PasswordConfirmation,
	)
	respondFlow(c, "reset password", result, err)
}

func bindRequest(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		middleware.GetLoggerFromContext(c).Warn("Invalid verification request", map[string]interface{}{
			"error": err.Error(),
		})
		apperrors.InvalidRequest(c)
		return false
	}
	return true
}

func respondFlow(c *gin.Context, operation string, result *service.FlowResult, err error) {
	if err != nil {
		info := apperrors.ParseError(err)
		log := middleware.GetLoggerFromContext(c)
		if info.Status >= http.StatusInternalServerError {
			log.Error("Verification flow failed", err, map[string]interface{}{
				"operation": operation,
			})
		} else {
			log.Info("Verification flow rejected", map[string]interface{}{
				"operation": operation,
				"code":      info.Code,
			})
		}
		apperrors.RespondWithError(c, info.Status, info.Code, info.Message)
		return
	}
	c.JSON(http.StatusOK, result)
}
