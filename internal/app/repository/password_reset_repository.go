package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ikkim/localservices-backend/internal/app/model"
	"github.com/ikkim/localservices-backend/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PasswordResetRepository interface {
	Upsert(ctx context.Context, reset *model.PasswordReset) error
	FindByAccountID(ctx context.Context, accountID uint) (*model.PasswordReset, error)
	ConsumeAndSetPassword(ctx context.Context, reset *model.PasswordReset, passwordHash string, changedAt time.Time) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type passwordResetRepository struct {
	db *gorm.DB
}

func NewPasswordResetRepository(db *gorm.DB) PasswordResetRepository {
	return &passwordResetRepository{db: db}
}

// Upsert stores the reset, replacing any live token for the same account.
func (r *passwordResetRepository) Upsert(ctx context.Context, reset *model.PasswordReset) error {
	logger.Debug("Storing password reset in database", map[string]interface{}{
		"account_id": reset.AccountID,
	})

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"token_hash", "expires_at", "created_at"}),
	}).Create(reset).Error
	if err != nil {
		logger.Error("Failed to store password reset in database", err, map[string]interface{}{
			"account_id": reset.AccountID,
		})
		return err
	}

	logger.Debug("Password reset stored in database", map[string]interface{}{
		"account_id": reset.AccountID,
		"expires_at": reset.ExpiresAt,
	})
	return nil
}

func (r *passwordResetRepository) FindByAccountID(ctx context.Context, accountID uint) (*model.PasswordReset, error) {
	logger.Debug("Finding password reset by account in database", map[string]interface{}{
		"account_id": accountID,
	})

	var reset model.PasswordReset
	if err := r.db.WithContext(ctx).Where("account_id = ?", accountID).First(&reset).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error("Failed to find password reset in database", err, map[string]interface{}{
				"account_id": accountID,
			})
		}
		return nil, err
	}
	return &reset, nil
}

// ConsumeAndSetPassword deletes the reset row and writes the new password
// hash in one transaction. If the row was already deleted or replaced it
// returns ErrConflict; if the password write fails the row survives.
func (r *passwordResetRepository) ConsumeAndSetPassword(ctx context.Context, reset *model.PasswordReset, passwordHash string, changedAt time.Time) error {
	logger.Debug("Consuming password reset in database", map[string]interface{}{
		"account_id": reset.AccountID,
	})

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deleted := tx.Where("id = ? AND token_hash = ?", reset.ID, reset.TokenHash).
			Delete(&model.PasswordReset{})
		if deleted.Error != nil {
			return deleted.Error
		}
		if deleted.RowsAffected == 0 {
			return ErrConflict
		}

		updated := tx.Model(&model.User{}).
			Where("id = ?", reset.AccountID).
			Updates(map[string]interface{}{
				"password_hash":       passwordHash,
				"password_changed_at": changedAt,
			})
		if updated.Error != nil {
			return updated.Error
		}
		if updated.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrConflict) {
			logger.Error("Failed to consume password reset in database", err, map[string]interface{}{
				"account_id": reset.AccountID,
			})
		}
		return err
	}

	logger.Debug("Password reset consumed in database", map[string]interface{}{
		"account_id": reset.AccountID,
	})
	return nil
}

func (r *passwordResetRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	logger.Debug("Deleting expired password resets from database")

	result := r.db.WithContext(ctx).Where("expires_at < ?", now).Delete(&model.PasswordReset{})
	if result.Error != nil {
		logger.Error("Failed to delete expired password resets from database", result.Error, nil)
		return 0, result.Error
	}

	logger.Debug("Expired password resets deleted from database", map[string]interface{}{
		"count": result.RowsAffected,
	})
	return result.RowsAffected, nil
}
