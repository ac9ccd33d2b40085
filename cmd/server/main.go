package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ikkim/localservices-backend/config"
	"github.com/ikkim/localservices-backend/internal/app/controller"
	"github.com/ikkim/localservices-backend/internal/app/repository"
	"github.com/ikkim/localservices-backend/internal/app/service"
	"github.com/ikkim/localservices-backend/internal/db"
	"github.com/ikkim/localservices-backend/internal/metrics"
	"github.com/ikkim/localservices-backend/internal/middleware"
	"github.com/ikkim/localservices-backend/internal/router"
	"github.com/ikkim/localservices-backend/internal/scheduler"
	"github.com/ikkim/localservices-backend/pkg/logger"
	"github.com/ikkim/localservices-backend/pkg/mailer"
	redisclient "github.com/ikkim/localservices-backend/pkg/redis"
	"github.com/ikkim/localservices-backend/pkg/util"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", err)
	}

	// Initialize logger
	logLevel := "info"
	logFormat := "json"
	if cfg.Server.Environment == "development" {
		logLevel = "debug"
		logFormat = "console"
	}
	logger.Initialize(logger.Config{
		Level:       logLevel,
		Format:      logFormat,
		EnableColor: true,
	})

	logger.Info("Starting Local Services verification server", map[string]interface{}{
		"environment": cfg.Server.Environment,
		"port":        cfg.Server.Port,
		"log_level":   logLevel,
	})

	// Initialize database
	if err := db.Initialize(&cfg.Database); err != nil {
		logger.Fatal("Failed to initialize database", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", err)
		}
	}()

	if err := db.Migrate(); err != nil {
		logger.Fatal("Failed to run migrations", err)
	}

	// Issuance lock; without Redis the daily ceiling is a soft limit
	var locker service.IssuanceLocker = service.NopLocker{}
	if cfg.Redis.Enabled() {
		if err := redisclient.Init(&cfg.Redis); err != nil {
			logger.Fatal("Failed to initialize Redis", err)
		}
		defer func() {
			if err := redisclient.Close(); err != nil {
				logger.Error("Failed to close Redis connection", err)
			}
		}()
		locker = redisclient.NewLocker(redisclient.GetClient(), "localservices:")
	} else {
		logger.Warn("Redis not configured, OTP daily limit is not enforced across instances")
	}

	// Observability
	m := metrics.New()
	observer := service.MultiObserver{service.LogObserver{}, m}

	csrfGuard, err := util.NewCSRFGuard(cfg.CSRF.Secret, cfg.CSRF.TokenTTL, nil)
	if err != nil {
		logger.Fatal("Failed to initialize CSRF guard", err)
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db.GetDB())
	otpRepo := repository.NewOTPRepository(db.GetDB())
	resetRepo := repository.NewPasswordResetRepository(db.GetDB())

	// Initialize services
	v := cfg.Verification
	otpService := service.NewOTPService(otpRepo, locker, nil, nil, observer, service.NewOTPPolicy(v))
	resetService := service.NewResetTokenService(resetRepo, nil, nil, observer, v.ResetTokenTTL, v.StoreTimeout)
	verificationService := service.NewVerificationService(service.VerificationDeps{
		OTP:               otpService,
		Resets:            resetService,
		Users:             userRepo,
		Mail:              service.NewEmailDispatch(mailer.New(cfg.SMTP)),
		CSRF:              csrfGuard,
		Observer:          observer,
		MinPasswordLength: v.MinPasswordLength,
		StoreTimeout:      v.StoreTimeout,
		SendWelcome:       true,
	})
	authService := service.NewAuthService(userRepo, v.MinPasswordLength, v.StoreTimeout)

	// Cleanup of spent verification state
	cleanup := scheduler.NewCleanupScheduler(otpRepo, resetRepo, nil, v.CleanupSchedule, v.CleanupRetention)
	if err := cleanup.Start(); err != nil {
		logger.Fatal("Failed to start cleanup scheduler", err)
	}
	defer cleanup.Stop()

	// Setup router
	r := router.NewRouter(
		controller.NewAuthController(authService, verificationService),
		controller.NewVerificationController(verificationService),
		controller.NewCSRFController(csrfGuard),
		middleware.NewCSRFMiddleware(csrfGuard),
		m,
		cfg,
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           r.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server started successfully", map[string]interface{}{
			"address": srv.Addr,
			"pid":     os.Getpid(),
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", err)
	}

	logger.Info("Server stopped successfully")
}
