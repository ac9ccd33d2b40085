package scheduler

import (
	"context"
	"time"

	"github.com/ikkim/localservices-backend/internal/app/repository"
	"github.com/ikkim/localservices-backend/pkg/logger"
	"github.com/ikkim/localservices-backend/pkg/util"
	"github.com/robfig/cron/v3"
)

const (
	DefaultCleanupSchedule  = "@hourly"
	DefaultCleanupRetention = 48 * time.Hour

	// OTP records feed the daily issuance count, so none may be pruned
	// before its calendar day is over.
	minCleanupRetention = 24 * time.Hour

	cleanupTimeout = 30 * time.Second
)

// CleanupScheduler prunes spent verification state on a cron schedule
type CleanupScheduler struct {
	cron      *cron.Cron
	schedule  string
	retention time.Duration
	otpRepo   repository.OTPRepository
	resetRepo repository.PasswordResetRepository
	clock     util.Clock
}

// CleanupResult counts the rows removed by one run
type CleanupResult struct {
	OTPRecords     int64
	PasswordResets int64
}

func NewCleanupScheduler(
	otpRepo repository.OTPRepository,
	resetRepo repository.PasswordResetRepository,
	clock util.Clock,
	schedule string,
	retention time.Duration,
) *CleanupScheduler {
	if clock == nil {
		clock = util.SystemClock{}
	}
	if schedule == "" {
		schedule = DefaultCleanupSchedule
	}
	if retention < minCleanupRetention {
		logger.Warn("Cleanup retention too short, using default", map[string]interface{}{
			"retention": retention.String(),
			"default":   DefaultCleanupRetention.String(),
		})
		retention = DefaultCleanupRetention
	}
	return &CleanupScheduler{
		cron:      cron.New(),
		schedule:  schedule,
		retention: retention,
		otpRepo:   otpRepo,
		resetRepo: resetRepo,
		clock:     clock,
	}
}

// Start registers the cleanup job and starts the cron runner
func (s *CleanupScheduler) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()

		if _, err := s.RunOnce(ctx); err != nil {
			logger.Error("Scheduled verification cleanup failed", err)
		}
	})
	if err != nil {
		logger.Error("Failed to add cron job for verification cleanup", err, map[string]interface{}{
			"schedule": s.schedule,
		})
		return err
	}

	s.cron.Start()
	logger.Info("Verification cleanup scheduler started", map[string]interface{}{
		"schedule":  s.schedule,
		"retention": s.retention.String(),
	})
	return nil
}

// RunOnce deletes OTP records that expired more than the retention ago and
// every expired reset token.
func (s *CleanupScheduler) RunOnce(ctx context.Context) (CleanupResult, error) {
	var result CleanupResult
	now := s.clock.Now().UTC()

	otpCount, err := s.otpRepo.DeleteExpiredBefore(ctx, now.Add(-s.retention))
	if err != nil {
		return result, err
	}
	result.OTPRecords = otpCount

	resetCount, err := s.resetRepo.DeleteExpired(ctx, now)
	if err != nil {
		return result, err
	}
	result.PasswordResets = resetCount

	logger.Info("Verification cleanup finished", map[string]interface{}{
		"otp_records":     result.OTPRecords,
		"password_resets": result.PasswordResets,
	})
	return result, nil
}

// Stop waits for a running job to finish
func (s *CleanupScheduler) Stop() {
	logger.Info("Stopping verification cleanup scheduler...")
	<-s.cron.Stop().Done()
	logger.Info("Verification cleanup scheduler stopped")
}
