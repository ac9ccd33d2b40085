package controller

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/ikkim/localservices-backend/internal/app/service"
	apperrors "github.com/ikkim/localservices-backend/internal/errors"
	"github.com/ikkim/localservices-backend/internal/middleware"
)

type AuthController struct {
	authService  service.AuthService
	verification service.VerificationService
}

func NewAuthController(authService service.AuthService, verification service.VerificationService) *AuthController {
	useJSONFieldNames()
	return &AuthController{
		authService:  authService,
		verification: verification,
	}
}

type RegisterRequest struct {
	Email                string `json:"email" binding:"required,email"`
	Password             string `json:"password" binding:"required"`
	PasswordConfirmation string `json:"password_confirmation" binding:"required"`
	Name                 string `json:"name" binding:"required"`
}

// Register creates an unverified account and starts email verification
// POST /api/v1/auth/register
func (ctrl *AuthController) Register(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Invalid registration request", map[string]interface{}{
			"error": err.Error(),
		})
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			apperrors.RespondWithValidationError(c, fields)
			return
		}
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Please fill in every field")
		return
	}

	user, err := ctrl.authService.Register(c.Request.Context(), req.Email, req.Password, req.PasswordConfirmation, req.Name)
	if err != nil {
		log.Warn("Registration failed", map[string]interface{}{
			"error": err.Error(),
		})
		apperrors.RespondWithServiceError(c, err)
		return
	}

	response := gin.H{
		"message": "Account created. Check your email for a verification code.",
		"user": gin.H{
			"id":             user.ID,
			"email":          user.Email,
			"name":           user.Name,
			"email_verified": user.EmailVerified,
		},
	}

	// the account stands even if the first code cannot be issued; the
	// client can resend from the verification page
	result, err := ctrl.verification.StartRegistration(c.Request.Context(), requestScope(c), user.Email, user.Name, user.ID)
	if err != nil {
		log.Warn("Registration verification not started", map[string]interface{}{
			"user_id": user.ID,
			"error":   err.Error(),
		})
		response["warning"] = apperrors.ParseError(err).Message
	} else {
		response["verification"] = result
	}

	log.Info("User registered", map[string]interface{}{
		"user_id": user.ID,
	})
	c.JSON(http.StatusCreated, response)
}

func requestScope(c *gin.Context) service.RequestScope {
	return service.RequestScope{
		CSRFToken: middleware.GetCSRFToken(c),
		RequestID: middleware.GetRequestID(c),
		ClientIP:  c.ClientIP(),
	}
}

var jsonNamesOnce sync.Once

// useJSONFieldNames makes binding errors name fields the way clients send them
func useJSONFieldNames() {
	jsonNamesOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
}
