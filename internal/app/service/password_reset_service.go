package service

import (
	"context"
	"errors"
	"time"

	"github.com/ikkim/localservices-backend/internal/app/model"
	"github.com/ikkim/localservices-backend/internal/app/repository"
	"github.com/ikkim/localservices-backend/pkg/logger"
	"github.com/ikkim/localservices-backend/pkg/util"
	"gorm.io/gorm"
)

const (
	// ResetTokenBytes is the entropy of a reset token before encoding
	ResetTokenBytes = 32
	// DefaultResetTokenTTL is how long a reset token stays usable
	DefaultResetTokenTTL = 15 * time.Minute
)

// IssuedResetToken is handed to the client once; only its hash is stored.
type IssuedResetToken struct {
	Token     string
	AccountID uint
	ExpiresAt time.Time
}

type ResetTokenService interface {
	Issue(ctx context.Context, proof *VerifiedOTP) (*IssuedResetToken, error)
	Consume(ctx context.Context, accountID uint, token, newPasswordHash string) error
}

type resetTokenService struct {
	resetRepo    repository.PasswordResetRepository
	clock        util.Clock
	random       util.RandomSource
	observer     VerificationObserver
	ttl          time.Duration
	storeTimeout time.Duration
}

func NewResetTokenService(
	resetRepo repository.PasswordResetRepository,
	clock util.Clock,
	random util.RandomSource,
	observer VerificationObserver,
	ttl, storeTimeout time.Duration,
) ResetTokenService {
	if clock == nil {
		clock = util.SystemClock{}
	}
	if random == nil {
		random = util.CryptoRandom{}
	}
	if ttl <= 0 {
		ttl = DefaultResetTokenTTL
	}
	return &resetTokenService{
		resetRepo:    resetRepo,
		clock:        clock,
		random:       random,
		observer:     observerOrNop(observer),
		ttl:          ttl,
		storeTimeout: storeTimeout,
	}
}

// Issue mints a token for the account bound to a password-reset proof,
// replacing any token the account already holds.
func (s *resetTokenService) Issue(ctx context.Context, proof *VerifiedOTP) (*IssuedResetToken, error) {
	if proof == nil || proof.Purpose() != model.PurposePasswordReset {
		logger.Warn("Reset token requested without a password reset verification", nil)
		return nil, ErrResetNotVerified
	}
	accountID, ok := proof.AccountID()
	if !ok {
		logger.Warn("Reset token requested for a verification without an account", map[string]interface{}{
			"identity": proof.Identity(),
		})
		return nil, ErrResetNotVerified
	}

	token, err := s.random.Token(ResetTokenBytes)
	if err != nil {
		logger.Error("Failed to generate reset token", err, map[string]interface{}{
			"account_id": accountID,
		})
		return nil, err
	}

	now := s.clock.Now()
	reset := &model.PasswordReset{
		AccountID: accountID,
		TokenHash: util.HashSecret("", token),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	storeCtx, cancel := storeContext(ctx, s.storeTimeout)
	defer cancel()
	if err := s.resetRepo.Upsert(storeCtx, reset); err != nil {
		return nil, storeFailure(err)
	}

	logger.Info("Reset token issued", map[string]interface{}{
		"account_id": accountID,
		"expires_at": reset.ExpiresAt,
	})
	s.observe(EventTokenIssued, proof.Identity(), accountID, now)

	return &IssuedResetToken{
		Token:     token,
		AccountID: accountID,
		ExpiresAt: reset.ExpiresAt,
	}, nil
}

// Consume spends the token and stores newPasswordHash atomically. The token
// survives if the password write fails.
func (s *resetTokenService) Consume(ctx context.Context, accountID uint, token, newPasswordHash string) error {
	now := s.clock.Now()
	if token == "" {
		s.observe(EventTokenRejected, "", accountID, now)
		return ErrResetTokenInvalid
	}

	findCtx, cancel := storeContext(ctx, s.storeTimeout)
	reset, err := s.resetRepo.FindByAccountID(findCtx, accountID)
	cancel()
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.reject(accountID, "no live token", now)
			return ErrResetTokenInvalid
		}
		return storeFailure(err)
	}

	if !util.SecretMatches(reset.TokenHash, "", token) {
		s.reject(accountID, "token mismatch", now)
		return ErrResetTokenInvalid
	}
	if reset.IsExpired(now) {
		s.reject(accountID, "token expired", now)
		return ErrResetTokenInvalid
	}

	consumeCtx, cancel := storeContext(ctx, s.storeTimeout)
	defer cancel()
	if err := s.resetRepo.ConsumeAndSetPassword(consumeCtx, reset, newPasswordHash, now); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			s.reject(accountID, "token already used", now)
			return ErrResetTokenInvalid
		case errors.Is(err, gorm.ErrRecordNotFound):
			s.reject(accountID, "account missing", now)
			return ErrResetTokenInvalid
		default:
			return storeFailure(err)
		}
	}

	logger.Info("Reset token consumed and password updated", map[string]interface{}{
		"account_id": accountID,
	})
	return nil
}

func (s *resetTokenService) reject(accountID uint, reason string, at time.Time) {
	logger.Warn("Reset token rejected", map[string]interface{}{
		"account_id": accountID,
		"reason":     reason,
	})
	s.observe(EventTokenRejected, "", accountID, at)
}

func (s *resetTokenService) observe(kind EventKind, identity string, accountID uint, at time.Time) {
	id := accountID
	s.observer.Observe(VerificationEvent{
		Kind:      kind,
		Purpose:   model.PurposePasswordReset,
		Identity:  identity,
		AccountID: &id,
		At:        at,
	})
}
