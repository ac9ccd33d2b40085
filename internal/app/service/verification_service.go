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

// RequestScope carries per-request inputs the flows need from the HTTP
// layer. It replaces any session state shared between requests.
type RequestScope struct {
	CSRFToken string
	RequestID string
	ClientIP  string
}

type FlowState string

const (
	StateOTPIssued   FlowState = "otp_issued"
	StateVerified    FlowState = "verified"
	StateTokenIssued FlowState = "token_issued"
	StateCompleted   FlowState = "completed"
)

const (
	MsgCodeSent          = "A verification code has been sent to your email."
	MsgResetCodeSent     = "If this account exists, a verification code has been sent."
	MsgEmailVerified     = "Your email address has been verified."
	MsgResetCodeVerified = "Code verified. Please choose a new password."
	MsgPasswordChanged   = "Your password has been changed. You can now log in."
	MsgDeliveryWarning   = "We could not send the email right now. Please use resend in a moment."
)

// Entry page steps
const (
	StepCode     = "code"
	StepPassword = "password"
)

// FlowResult is the typed outcome handed back to the caller.
type FlowResult struct {
	State      FlowState  `json:"state"`
	Identity   string     `json:"identity"`
	Message    string     `json:"message"`
	Warning    string     `json:"warning,omitempty"`
	ResetToken string     `json:"reset_token,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// EntryPage describes the verification entry form for a given step.
type EntryPage struct {
	Identity string   `json:"identity"`
	Step     string   `json:"step"`
	Purpose  string   `json:"purpose"`
	Actions  []string `json:"actions"`
}

// CSRFVerifier checks anti-forgery tokens before any state change.
type CSRFVerifier interface {
	Verify(token string) bool
}

type VerificationService interface {
	StartRegistration(ctx context.Context, scope RequestScope, identity, name string, accountID uint) (*FlowResult, error)
	ResendRegistration(ctx context.Context, scope RequestScope, identity string) (*FlowResult, error)
	ConfirmRegistration(ctx context.Context, scope RequestScope, identity, code string) (*FlowResult, error)

	RequestReset(ctx context.Context, scope RequestScope, identity string) (*FlowResult, error)
	ResendReset(ctx context.Context, scope RequestScope, identity string) (*FlowResult, error)
	VerifyResetCode(ctx context.Context, scope RequestScope, identity, code string) (*FlowResult, error)
	ResetPassword(ctx context.Context, scope RequestScope, identity, token, newPassword, confirmation string) (*FlowResult, error)

	EntryPage(identity, step, purpose string) (*EntryPage, error)
}

type verificationService struct {
	otp               OTPService
	resets            ResetTokenService
	userRepo          repository.UserRepository
	mail              EmailDispatch
	csrf              CSRFVerifier
	clock             util.Clock
	observer          VerificationObserver
	minPasswordLength int
	storeTimeout      time.Duration
	sendWelcome       bool
}

type VerificationDeps struct {
	OTP               OTPService
	Resets            ResetTokenService
	Users             repository.UserRepository
	Mail              EmailDispatch
	CSRF              CSRFVerifier
	Clock             util.Clock
	Observer          VerificationObserver
	MinPasswordLength int
	StoreTimeout      time.Duration
	SendWelcome       bool
}

func NewVerificationService(deps VerificationDeps) VerificationService {
	if deps.Clock == nil {
		deps.Clock = util.SystemClock{}
	}
	if deps.MinPasswordLength <= 0 {
		deps.MinPasswordLength = 8
	}
	return &verificationService{
		otp:               deps.OTP,
		resets:            deps.Resets,
		userRepo:          deps.Users,
		mail:              deps.Mail,
		csrf:              deps.CSRF,
		clock:             deps.Clock,
		observer:          observerOrNop(deps.Observer),
		minPasswordLength: deps.MinPasswordLength,
		storeTimeout:      deps.StoreTimeout,
		sendWelcome:       deps.SendWelcome,
	}
}

// guard runs the checks every entry point shares: CSRF first, then the
// identity is normalized and validated.
func (s *verificationService) guard(scope RequestScope, identity string) (string, error) {
	if s.csrf == nil || !s.csrf.Verify(scope.CSRFToken) {
		logger.Warn("CSRF verification failed", map[string]interface{}{
			"request_id": scope.RequestID,
			"client_ip":  scope.ClientIP,
		})
		return "", ErrCSRFInvalid
	}
	normalized, err := util.ParseEmail(identity)
	if err != nil {
		return "", ErrInvalidIdentity
	}
	return normalized, nil
}

func (s *verificationService) StartRegistration(ctx context.Context, scope RequestScope, identity, name string, accountID uint) (*FlowResult, error) {
	identity, err := s.guard(scope, identity)
	if err != nil {
		return nil, err
	}
	if accountID == 0 {
		return nil, ErrInvalidRequest
	}
	return s.issueRegistration(ctx, identity, name, accountID)
}

func (s *verificationService) ResendRegistration(ctx context.Context, scope RequestScope, identity string) (*FlowResult, error) {
	identity, err := s.guard(scope, identity)
	if err != nil {
		return nil, err
	}

	user, err := s.findUserByEmail(ctx, identity)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountUnknown
		}
		return nil, err
	}
	if user.EmailVerified {
		logger.Info("Registration resend for verified account", map[string]interface{}{
			"user_id": user.ID,
		})
		return nil, ErrAlreadyVerified
	}

	return s.issueRegistration(ctx, identity, user.Name, user.ID)
}

func (s *verificationService) issueRegistration(ctx context.Context, identity, name string, accountID uint) (*FlowResult, error) {
	issued, err := s.otp.Create(ctx, identity, model.PurposeRegistration, &accountID)
	if err != nil {
		return nil, err
	}

	result := &FlowResult{
		State:     StateOTPIssued,
		Identity:  identity,
		Message:   MsgCodeSent,
		ExpiresAt: &issued.ExpiresAt,
	}
	if dispatch := s.mail.SendCode(ctx, model.PurposeRegistration, identity, name, issued.Code); dispatch.Failed() {
		result.Warning = MsgDeliveryWarning
		s.observe(EventDeliveryFailed, model.PurposeRegistration, identity, &accountID)
	}
	return result, nil
}

func (s *verificationService) ConfirmRegistration(ctx context.Context, scope RequestScope, identity, code string) (*FlowResult, error) {
	identity, err := s.guard(scope, identity)
	if err != nil {
		return nil, err
	}

	// email_verified is written in the consume transaction; a failed write
	// leaves the code usable.
	var user *model.User
	_, err = s.otp.VerifyAndApply(ctx, identity, code, model.PurposeRegistration, func(tx *gorm.DB, proof *VerifiedOTP) error {
		users := s.userRepo.WithTx(tx)
		var findErr error
		if accountID, ok := proof.AccountID(); ok {
			user, findErr = users.FindByID(ctx, accountID)
		} else {
			user, findErr = users.FindByEmail(ctx, identity)
		}
		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return ErrAccountUnknown
			}
			return storeFailure(findErr)
		}

		if err := users.SetEmailVerified(ctx, user.ID, proof.VerifiedAt()); err != nil {
			logger.Error("Failed to mark email as verified", err, map[string]interface{}{
				"user_id": user.ID,
			})
			return storeFailure(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Email verified", map[string]interface{}{
		"user_id": user.ID,
	})

	if s.sendWelcome {
		// advisory; the account is verified either way
		s.mail.SendWelcome(ctx, identity, user.Name)
	}

	return &FlowResult{
		State:    StateVerified,
		Identity: identity,
		Message:  MsgEmailVerified,
	}, nil
}

// RequestReset answers unknown and unverified identities exactly like
// known ones so the response never confirms that an account exists.
func (s *verificationService) RequestReset(ctx context.Context, scope RequestScope, identity string) (*FlowResult, error) {
	identity, err := s.guard(scope, identity)
	if err != nil {
		return nil, err
	}

	generic := &FlowResult{
		State:    StateOTPIssued,
		Identity: identity,
		Message:  MsgResetCodeSent,
	}

	user, err := s.findUserByEmail(ctx, identity)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Info("Password reset requested for unknown email", map[string]interface{}{
				"identity": identity,
			})
			return generic, nil
		}
		return nil, err
	}
	if !user.EmailVerified {
		logger.Info("Password reset requested for unverified email", map[string]interface{}{
			"user_id": user.ID,
		})
		return generic, nil
	}

	accountID := user.ID
	issued, err := s.otp.Create(ctx, identity, model.PurposePasswordReset, &accountID)
	if err != nil {
		return nil, err
	}

	if dispatch := s.mail.SendCode(ctx, model.PurposePasswordReset, identity, user.Name, issued.Code); dispatch.Failed() {
		generic.Warning = MsgDeliveryWarning
		s.observe(EventDeliveryFailed, model.PurposePasswordReset, identity, &accountID)
	}
	return generic, nil
}

func (s *verificationService) ResendReset(ctx context.Context, scope RequestScope, identity string) (*FlowResult, error) {
	return s.RequestReset(ctx, scope, identity)
}

func (s *verificationService) VerifyResetCode(ctx context.Context, scope RequestScope, identity, code string) (*FlowResult, error) {
	identity, err := s.guard(scope, identity)
	if err != nil {
		return nil, err
	}

	proof, err := s.otp.Verify(ctx, identity, code, model.PurposePasswordReset)
	if err != nil {
		return nil, err
	}

	token, err := s.resets.Issue(ctx, proof)
	if err != nil {
		return nil, err
	}

	return &FlowResult{
		State:      StateTokenIssued,
		Identity:   identity,
		Message:    MsgResetCodeVerified,
		ResetToken: token.Token,
		ExpiresAt:  &token.ExpiresAt,
	}, nil
}

func (s *verificationService) ResetPassword(ctx context.Context, scope RequestScope, identity, token, newPassword, confirmation string) (*FlowResult, error) {
	identity, err := s.guard(scope, identity)
	if err != nil {
		return nil, err
	}

	if err := util.ValidatePassword(newPassword, confirmation, s.minPasswordLength); err != nil {
		return nil, errors.Join(ErrPasswordPolicy, err)
	}

	user, err := s.findUserByEmail(ctx, identity)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.observe(EventTokenRejected, model.PurposePasswordReset, identity, nil)
			return nil, ErrResetTokenInvalid
		}
		return nil, err
	}

	hash, err := util.HashPassword(newPassword)
	if err != nil {
		logger.Error("Failed to hash new password", err, map[string]interface{}{
			"user_id": user.ID,
		})
		return nil, err
	}

	if err := s.resets.Consume(ctx, user.ID, token, hash); err != nil {
		return nil, err
	}

	accountID := user.ID
	s.observe(EventPasswordReset, model.PurposePasswordReset, identity, &accountID)
	logger.Info("Password reset completed", map[string]interface{}{
		"user_id": user.ID,
	})

	result := &FlowResult{
		State:    StateCompleted,
		Identity: identity,
		Message:  MsgPasswordChanged,
	}
	if dispatch := s.mail.SendPasswordChanged(ctx, identity, user.Name); dispatch.Failed() {
		result.Warning = MsgDeliveryWarning
		s.observe(EventDeliveryFailed, model.PurposePasswordReset, identity, &accountID)
	}
	return result, nil
}

// EntryPage is read-only: it neither checks CSRF nor touches the store.
// An empty purpose means password reset; registration has no password step.
func (s *verificationService) EntryPage(identity, step, purpose string) (*EntryPage, error) {
	normalized, err := util.ParseEmail(identity)
	if err != nil {
		return nil, ErrInvalidIdentity
	}

	p := model.OTPPurpose(purpose)
	if purpose == "" {
		p = model.PurposePasswordReset
	}
	if !p.Valid() {
		return nil, ErrInvalidRequest
	}

	switch step {
	case "", StepCode:
		return &EntryPage{
			Identity: normalized,
			Step:     StepCode,
			Purpose:  string(p),
			Actions:  []string{"confirm", "resend"},
		}, nil
	case StepPassword:
		if p != model.PurposePasswordReset {
			return nil, ErrInvalidRequest
		}
		return &EntryPage{
			Identity: normalized,
			Step:     StepPassword,
			Purpose:  string(p),
			Actions:  []string{"reset", "resend"},
		}, nil
	default:
		return nil, ErrInvalidRequest
	}
}

func (s *verificationService) findUserByEmail(ctx context.Context, email string) (*model.User, error) {
	storeCtx, cancel := storeContext(ctx, s.storeTimeout)
	defer cancel()

	user, err := s.userRepo.FindByEmail(storeCtx, email)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storeFailure(err)
	}
	return user, err
}

func (s *verificationService) observe(kind EventKind, purpose model.OTPPurpose, identity string, accountID *uint) {
	s.observer.Observe(VerificationEvent{
		Kind:      kind,
		Purpose:   purpose,
		Identity:  identity,
		AccountID: accountID,
		At:        s.clock.Now(),
	})
}
