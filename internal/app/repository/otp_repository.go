package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ikkim/localservices-backend/internal/app/model"
	"github.com/ikkim/localservices-backend/pkg/logger"
	"gorm.io/gorm"
)

type OTPRepository interface {
	Create(ctx context.Context, record *model.OTPRecord) error
	FindLatest(ctx context.Context, identity string, purpose model.OTPPurpose) (*model.OTPRecord, error)
	CountIssuedSince(ctx context.Context, identity string, purpose model.OTPPurpose, since time.Time) (int64, error)
	IncrementAttempts(ctx context.Context, id uint) error
	MarkConsumed(ctx context.Context, id uint, at time.Time) error
	ConsumeWith(ctx context.Context, id uint, at time.Time, fn func(tx *gorm.DB) error) error
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type otpRepository struct {
	db *gorm.DB
}

func NewOTPRepository(db *gorm.DB) OTPRepository {
	return &otpRepository{db: db}
}

func (r *otpRepository) Create(ctx context.Context, record *model.OTPRecord) error {
	logger.Debug("Creating OTP record in database", map[string]interface{}{
		"identity": record.Identity,
		"purpose":  record.Purpose,
	})

	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		logger.Error("Failed to create OTP record in database", err, map[string]interface{}{
			"identity": record.Identity,
			"purpose":  record.Purpose,
		})
		return err
	}

	logger.Debug("OTP record created in database", map[string]interface{}{
		"record_id": record.ID,
	})
	return nil
}

// FindLatest returns the newest record for the pair whether or not it has
// been consumed. Callers decide eligibility; an older record is never
// returned in place of a consumed newer one.
func (r *otpRepository) FindLatest(ctx context.Context, identity string, purpose model.OTPPurpose) (*model.OTPRecord, error) {
	logger.Debug("Finding latest OTP record in database", map[string]interface{}{
		"identity": identity,
		"purpose":  purpose,
	})

	var record model.OTPRecord
	err := r.db.WithContext(ctx).
		Where("identity = ? AND purpose = ?", identity, purpose).
		Order("created_at DESC").
		Order("id DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Debug("No OTP record found", map[string]interface{}{
				"identity": identity,
				"purpose":  purpose,
			})
			return nil, err
		}
		logger.Error("Failed to find latest OTP record in database", err, map[string]interface{}{
			"identity": identity,
			"purpose":  purpose,
		})
		return nil, err
	}

	return &record, nil
}

func (r *otpRepository) CountIssuedSince(ctx context.Context, identity string, purpose model.OTPPurpose, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.OTPRecord{}).
		Where("identity = ? AND purpose = ? AND created_at >= ?", identity, purpose, since).
		Count(&count).Error
	if err != nil {
		logger.Error("Failed to count OTP records in database", err, map[string]interface{}{
			"identity": identity,
			"purpose":  purpose,
		})
		return 0, err
	}

	logger.Debug("Counted OTP records issued today", map[string]interface{}{
		"identity": identity,
		"purpose":  purpose,
		"count":    count,
	})
	return count, nil
}

func (r *otpRepository) IncrementAttempts(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).
		Model(&model.OTPRecord{}).
		Where("id = ?", id).
		UpdateColumn("attempt_count", gorm.Expr("attempt_count + ?", 1)).Error
	if err != nil {
		logger.Error("Failed to increment OTP attempt count", err, map[string]interface{}{
			"record_id": id,
		})
		return err
	}
	return nil
}

// MarkConsumed flips the record to consumed only if it is still unconsumed.
// ErrConflict means a concurrent request consumed it first.
func (r *otpRepository) MarkConsumed(ctx context.Context, id uint, at time.Time) error {
	return markConsumed(r.db.WithContext(ctx), id, at)
}

// ConsumeWith runs the conditional consume and fn in one transaction.
// If fn fails the record stays unconsumed.
func (r *otpRepository) ConsumeWith(ctx context.Context, id uint, at time.Time, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := markConsumed(tx, id, at); err != nil {
			return err
		}
		if fn == nil {
			return nil
		}
		return fn(tx)
	})
}

func markConsumed(db *gorm.DB, id uint, at time.Time) error {
	logger.Debug("Marking OTP record as consumed", map[string]interface{}{
		"record_id": id,
	})

	result := db.
		Model(&model.OTPRecord{}).
		Where("id = ? AND consumed = ?", id, false).
		UpdateColumns(map[string]interface{}{
			"consumed":    true,
			"consumed_at": at,
		})
	if result.Error != nil {
		logger.Error("Failed to mark OTP record as consumed", result.Error, map[string]interface{}{
			"record_id": id,
		})
		return result.Error
	}
	if result.RowsAffected == 0 {
		logger.Warn("OTP record was already consumed", map[string]interface{}{
			"record_id": id,
		})
		return ErrConflict
	}
	return nil
}

func (r *otpRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	logger.Debug("Deleting expired OTP records from database", map[string]interface{}{
		"cutoff": cutoff,
	})

	result := r.db.WithContext(ctx).Where("expires_at < ?", cutoff).Delete(&model.OTPRecord{})
	if result.Error != nil {
		logger.Error("Failed to delete expired OTP records from database", result.Error, nil)
		return 0, result.Error
	}

	logger.Debug("Expired OTP records deleted from database", map[string]interface{}{
		"count": result.RowsAffected,
	})
	return result.RowsAffected, nil
}
