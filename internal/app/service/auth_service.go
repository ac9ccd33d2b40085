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

// AuthService owns account creation. New accounts start unverified; the
// registration flow in VerificationService flips them to verified.
type AuthService interface {
	Register(ctx context.Context, email, password, confirmation, name string) (*model.User, error)
}

type authService struct {
	userRepo          repository.UserRepository
	minPasswordLength int
	storeTimeout      time.Duration
}

func NewAuthService(userRepo repository.UserRepository, minPasswordLength int, storeTimeout time.Duration) AuthService {
	if minPasswordLength <= 0 {
		minPasswordLength = 8
	}
	return &authService{
		userRepo:          userRepo,
		minPasswordLength: minPasswordLength,
		storeTimeout:      storeTimeout,
	}
}

func (s *authService) Register(ctx context.Context, email, password, confirmation, name string) (*model.User, error) {
	email, err := util.ParseEmail(email)
	if err != nil {
		return nil, ErrInvalidIdentity
	}
	if name == "" {
		return nil, ErrInvalidRequest
	}

	logger.Info("Attempting user registration", map[string]interface{}{
		"email": email,
		"name":  name,
	})

	if err := util.ValidatePassword(password, confirmation, s.minPasswordLength); err != nil {
		return nil, errors.Join(ErrPasswordPolicy, err)
	}

	findCtx, cancel := storeContext(ctx, s.storeTimeout)
	existing, err := s.userRepo.FindByEmail(findCtx, email)
	cancel()
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Error("Failed to check existing user", err, map[string]interface{}{
			"email": email,
		})
		return nil, storeFailure(err)
	}
	if existing != nil {
		logger.Warn("Registration failed: email already exists", map[string]interface{}{
			"email": email,
		})
		return nil, ErrEmailAlreadyExists
	}

	hashedPassword, err := util.HashPassword(password)
	if err != nil {
		logger.Error("Failed to hash password", err, map[string]interface{}{
			"email": email,
		})
		return nil, err
	}

	user := &model.User{
		Email:        email,
		PasswordHash: hashedPassword,
		Name:         name,
	}

	createCtx, cancel := storeContext(ctx, s.storeTimeout)
	defer cancel()
	if err := s.userRepo.Create(createCtx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailAlreadyExists
		}
		return nil, storeFailure(err)
	}

	logger.Info("User registered successfully", map[string]interface{}{
		"user_id": user.ID,
		"email":   email,
	})
	return user, nil
}
