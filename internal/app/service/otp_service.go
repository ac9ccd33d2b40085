package service

import (
	"context"
	"errors"
	"time"

	"github.com/ikkim/localservices-backend/config"
	"github.com/ikkim/localservices-backend/internal/app/model"
	"github.com/ikkim/localservices-backend/internal/app/repository"
	"github.com/ikkim/localservices-backend/pkg/logger"
	"github.com/ikkim/localservices-backend/pkg/util"
	"gorm.io/gorm"
)

const codeSaltBytes = 16

// IssuanceLocker serializes the count-then-insert of OTP issuance for one
// (identity, purpose) pair.
type IssuanceLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// NopLocker never blocks. Without a shared lock the daily ceiling is a soft
// limit under concurrent requests.
type NopLocker struct{}

func (NopLocker) Acquire(context.Context, string, time.Duration) (func(), error) {
	return func() {}, nil
}

// OTPPolicy holds the tunables of code issuance and verification.
type OTPPolicy struct {
	CodeLength   int
	TTL          time.Duration
	DailyLimits  map[model.OTPPurpose]int
	DayLocation  *time.Location
	StoreTimeout time.Duration
	LockTTL      time.Duration
}

func NewOTPPolicy(cfg config.VerificationConfig) OTPPolicy {
	return OTPPolicy{
		CodeLength: cfg.CodeLength,
		TTL:        cfg.OTPTTL,
		DailyLimits: map[model.OTPPurpose]int{
			model.PurposeRegistration:  cfg.RegistrationDailyLimit,
			model.PurposePasswordReset: cfg.PasswordResetDailyLimit,
		},
		DayLocation:  cfg.Location(),
		StoreTimeout: cfg.StoreTimeout,
		LockTTL:      cfg.IssueLockTTL,
	}
}

// DefaultOTPPolicy: six digits, ten minutes, 5 registration and 3 reset
// codes per identity per UTC day.
func DefaultOTPPolicy() OTPPolicy {
	return OTPPolicy{
		CodeLength: 6,
		TTL:        10 * time.Minute,
		DailyLimits: map[model.OTPPurpose]int{
			model.PurposeRegistration:  5,
			model.PurposePasswordReset: 3,
		},
		DayLocation:  time.UTC,
		StoreTimeout: defaultStoreTimeout,
		LockTTL:      5 * time.Second,
	}
}

// IssuedOTP carries the plaintext code to the caller exactly once; only its
// hash is persisted.
type IssuedOTP struct {
	Code      string
	ExpiresAt time.Time
	RecordID  uint
}

// VerifiedOTP is proof of a successful verification. Its fields are
// unexported so only this package can mint one.
type VerifiedOTP struct {
	recordID   uint
	identity   string
	purpose    model.OTPPurpose
	accountID  *uint
	verifiedAt time.Time
}

func (v *VerifiedOTP) RecordID() uint { return v.recordID }
func (v *VerifiedOTP) Identity() string { return v.identity }
func (v *VerifiedOTP) Purpose() model.OTPPurpose { return v.purpose }
func (v *VerifiedOTP) VerifiedAt() time.Time { return v.verifiedAt }

// AccountID returns the bound account, if the code was issued for one.
func (v *VerifiedOTP) AccountID() (uint, bool) {
	if v.accountID == nil {
		return 0, false
	}
	return *v.accountID, true
}

type OTPService interface {
	Create(ctx context.Context, identity string, purpose model.OTPPurpose, accountID *uint) (*IssuedOTP, error)
	Verify(ctx context.Context, identity, code string, purpose model.OTPPurpose) (*VerifiedOTP, error)
	VerifyAndApply(ctx context.Context, identity, code string, purpose model.OTPPurpose, apply ApplyFunc) (*VerifiedOTP, error)
}

// ApplyFunc runs inside the consume transaction. Returning an error rolls
// the consume back and is passed to the caller unchanged.
type ApplyFunc func(tx *gorm.DB, proof *VerifiedOTP) error

type otpService struct {
	otpRepo  repository.OTPRepository
	locker   IssuanceLocker
	clock    util.Clock
	random   util.RandomSource
	observer VerificationObserver
	policy   OTPPolicy
}

func NewOTPService(
	otpRepo repository.OTPRepository,
	locker IssuanceLocker,
	clock util.Clock,
	random util.RandomSource,
	observer VerificationObserver,
	policy OTPPolicy,
) OTPService {
	if locker == nil {
		locker = NopLocker{}
	}
	if clock == nil {
		clock = util.SystemClock{}
	}
	if random == nil {
		random = util.CryptoRandom{}
	}
	if policy.DayLocation == nil {
		policy.DayLocation = time.UTC
	}
	return &otpService{
		otpRepo:  otpRepo,
		locker:   locker,
		clock:    clock,
		random:   random,
		observer: observerOrNop(observer),
		policy:   policy,
	}
}

func issuanceLockKey(identity string, purpose model.OTPPurpose) string {
	return "otp:issue:" + string(purpose) + ":" + identity
}

func (s *otpService) Create(ctx context.Context, identity string, purpose model.OTPPurpose, accountID *uint) (*IssuedOTP, error) {
	if identity == "" || !purpose.Valid() {
		return nil, ErrInvalidRequest
	}

	release, err := s.locker.Acquire(ctx, issuanceLockKey(identity, purpose), s.policy.LockTTL)
	if err != nil {
		logger.Warn("OTP issuance lock unavailable", map[string]interface{}{
			"identity": identity,
			"purpose":  purpose,
			"error":    err.Error(),
		})
		return nil, ErrIssuanceBusy
	}
	defer release()

	now := s.clock.Now()
	dayStart := util.StartOfDay(now, s.policy.DayLocation).UTC()

	countCtx, cancel := storeContext(ctx, s.policy.StoreTimeout)
	issuedToday, err := s.otpRepo.CountIssuedSince(countCtx, identity, purpose, dayStart)
	cancel()
	if err != nil {
		logger.Error("Failed to count OTP issuance", err, map[string]interface{}{
			"identity": identity,
			"purpose":  purpose,
		})
		return nil, storeFailure(err)
	}

	if issuedToday >= int64(s.policy.DailyLimits[purpose]) {
		logger.Warn("OTP daily limit reached", map[string]interface{}{
			"identity": identity,
			"purpose":  purpose,
			"count":    issuedToday,
		})
		s.observe(EventThrottled, identity, purpose, accountID, now)
		return nil, ErrThrottled
	}

	code, err := s.random.Digits(s.policy.CodeLength)
	if err != nil {
		logger.Error("Failed to generate OTP code", err, nil)
		return nil, err
	}
	salt, err := s.random.Token(codeSaltBytes)
	if err != nil {
		logger.Error("Failed to generate OTP salt", err, nil)
		return nil, err
	}

	record := &model.OTPRecord{
		Identity:  identity,
		Purpose:   purpose,
		CodeHash:  util.HashSecret(salt, code),
		CodeSalt:  salt,
		AccountID: accountID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.policy.TTL),
	}

	createCtx, cancel := storeContext(ctx, s.policy.StoreTimeout)
	defer cancel()
	if err := s.otpRepo.Create(createCtx, record); err != nil {
		return nil, storeFailure(err)
	}

	logger.Info("OTP issued", map[string]interface{}{
		"identity":   identity,
		"purpose":    purpose,
		"record_id":  record.ID,
		"expires_at": record.ExpiresAt,
	})
	s.observe(EventIssued, identity, purpose, accountID, now)

	return &IssuedOTP{
		Code:      code,
		ExpiresAt: record.ExpiresAt,
		RecordID:  record.ID,
	}, nil
}

func (s *otpService) Verify(ctx context.Context, identity, code string, purpose model.OTPPurpose) (*VerifiedOTP, error) {
	return s.VerifyAndApply(ctx, identity, code, purpose, nil)
}

func (s *otpService) VerifyAndApply(ctx context.Context, identity, code string, purpose model.OTPPurpose, apply ApplyFunc) (*VerifiedOTP, error) {
	if identity == "" || !purpose.Valid() {
		return nil, ErrInvalidRequest
	}

	now := s.clock.Now()
	if !isNumericCode(code, s.policy.CodeLength) {
		s.observe(EventInvalidCode, identity, purpose, nil, now)
		return nil, ErrCodeInvalid
	}

	findCtx, cancel := storeContext(ctx, s.policy.StoreTimeout)
	record, err := s.otpRepo.FindLatest(findCtx, identity, purpose)
	cancel()
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.observe(EventNotFound, identity, purpose, nil, now)
			return nil, ErrCodeNotFound
		}
		return nil, storeFailure(err)
	}

	// a consumed latest record deactivates the pair; older records never
	// become eligible again
	if record.Consumed {
		s.observe(EventNotFound, identity, purpose, record.AccountID, now)
		return nil, ErrCodeNotFound
	}
	if record.IsExpired(now) {
		logger.Info("OTP expired", map[string]interface{}{
			"identity":   identity,
			"purpose":    purpose,
			"record_id":  record.ID,
			"expires_at": record.ExpiresAt,
		})
		s.observe(EventExpired, identity, purpose, record.AccountID, now)
		return nil, ErrCodeExpired
	}

	incCtx, cancel := storeContext(ctx, s.policy.StoreTimeout)
	err = s.otpRepo.IncrementAttempts(incCtx, record.ID)
	cancel()
	if err != nil {
		return nil, storeFailure(err)
	}

	if !util.SecretMatches(record.CodeHash, record.CodeSalt, code) {
		logger.Warn("OTP mismatch", map[string]interface{}{
			"identity":  identity,
			"purpose":   purpose,
			"record_id": record.ID,
			"attempts":  record.AttemptCount + 1,
		})
		s.observe(EventInvalidCode, identity, purpose, record.AccountID, now)
		return nil, ErrCodeInvalid
	}

	proof := &VerifiedOTP{
		recordID:   record.ID,
		identity:   identity,
		purpose:    purpose,
		accountID:  record.AccountID,
		verifiedAt: now,
	}

	var applyErr error
	consumeCtx, cancel := storeContext(ctx, s.policy.StoreTimeout)
	defer cancel()
	err = s.otpRepo.ConsumeWith(consumeCtx, record.ID, now, func(tx *gorm.DB) error {
		if apply == nil {
			return nil
		}
		applyErr = apply(tx, proof)
		return applyErr
	})
	if err != nil {
		if applyErr != nil {
			return nil, applyErr
		}
		if errors.Is(err, repository.ErrConflict) {
			s.observe(EventNotFound, identity, purpose, record.AccountID, now)
			return nil, ErrCodeNotFound
		}
		return nil, storeFailure(err)
	}

	logger.Info("OTP verified", map[string]interface{}{
		"identity":  identity,
		"purpose":   purpose,
		"record_id": record.ID,
	})
	s.observe(EventVerified, identity, purpose, record.AccountID, now)

	return proof, nil
}

func (s *otpService) observe(kind EventKind, identity string, purpose model.OTPPurpose, accountID *uint, at time.Time) {
	s.observer.Observe(VerificationEvent{
		Kind:      kind,
		Purpose:   purpose,
		Identity:  identity,
		AccountID: accountID,
		At:        at,
	})
}

func isNumericCode(code string, length int) bool {
	if len(code) != length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
