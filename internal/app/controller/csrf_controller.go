package controller

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	apperrors "github.com/ikkim/localservices-backend/internal/errors"
	"github.com/ikkim/localservices-backend/internal/middleware"
)

// CSRFGenerator issues anti-forgery tokens
type CSRFGenerator interface {
	Generate(subject string) (string, time.Time, error)
}

type CSRFController struct {
	generator CSRFGenerator
}

func NewCSRFController(generator CSRFGenerator) *CSRFController {
	return &CSRFController{generator: generator}
}

// GetToken issues a token for the X-CSRF-Token header
// GET /api/v1/csrf-token
func (ctrl *CSRFController) GetToken(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	token, expiresAt, err := ctrl.generator.Generate(c.ClientIP())
	if err != nil {
		log.Error("Failed to generate CSRF token", err, nil)
		apperrors.InternalError(c, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"csrf_token": token,
		"header":     middleware.CSRFHeader,
		"expires_at": expiresAt,
	})
}
