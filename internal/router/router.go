package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/localservices-backend/config"
	"github.com/ikkim/localservices-backend/internal/app/controller"
	"github.com/ikkim/localservices-backend/internal/middleware"
)

// MetricsProvider records request timings and exposes a scrape handler
type MetricsProvider interface {
	middleware.RequestRecorder
	Handler() http.Handler
}

type Router struct {
	authController         *controller.AuthController
	verificationController *controller.VerificationController
	csrfController         *controller.CSRFController
	csrfMiddleware         *middleware.CSRFMiddleware
	metrics                MetricsProvider
	config                 *config.Config
}

func NewRouter(
	authController *controller.AuthController,
	verificationController *controller.VerificationController,
	csrfController *controller.CSRFController,
	csrfMiddleware *middleware.CSRFMiddleware,
	metrics MetricsProvider,
	cfg *config.Config,
) *Router {
	return &Router{
		authController:         authController,
		verificationController: verificationController,
		csrfController:         csrfController,
		csrfMiddleware:         csrfMiddleware,
		metrics:                metrics,
		config:                 cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	gin.SetMode(r.config.Server.GinMode)

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.LoggingMiddleware())
	if r.metrics != nil {
		router.Use(middleware.MetricsMiddleware(r.metrics))
	}
	router.Use(corsMiddleware(r.config.CORS.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"message": "Local Services API is running",
		})
	})
	if r.metrics != nil {
		router.GET("/metrics", gin.WrapH(r.metrics.Handler()))
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/csrf-token", r.csrfController.GetToken)

		auth := v1.Group("/auth")
		{
			auth.GET("/verify", r.verificationController.EntryPage)

			protected := auth.Group("")
			protected.Use(r.csrfMiddleware.Require())
			{
				protected.POST("/register", r.authController.Register)
				protected.POST("/verify-email", r.verificationController.VerifyEmail)
				protected.POST("/forgot-password", r.verificationController.ForgotPassword)
				protected.POST("/forgot-password/verify", r.verificationController.VerifyResetCode)
				protected.POST("/reset-password", r.verificationController.ResetPassword)
			}
		}
	}

	return router
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowed := false
		for _, allowedOrigin := range allowedOrigins {
			if origin == allowedOrigin || allowedOrigin == "*" {
				allowed = true
				break
			}
		}

		if allowed {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, X-Request-ID, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
