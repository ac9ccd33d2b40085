package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/localservices-backend/internal/app/repository"
	"github.com/ikkim/localservices-backend/internal/app/service"
	"github.com/ikkim/localservices-backend/internal/db"
	"github.com/ikkim/localservices-backend/internal/middleware"
	"github.com/ikkim/localservices-backend/pkg/util"
	"github.com/stretchr/testify/require"
)

// recordingSender captures outgoing codes so tests can complete flows.
type recordingSender struct {
	mu      sync.Mutex
	codes   map[string]string
	changed []string
}

func (s *recordingSender) SendCode(_ context.Context, purpose, to, _, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.codes == nil {
		s.codes = make(map[string]string)
	}
	s.codes[purpose+":"+to] = code
	return nil
}

func (s *recordingSender) SendPasswordChanged(_ context.Context, to, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changed = append(s.changed, to)
	return nil
}

func (s *recordingSender) SendWelcome(context.Context, string, string) error {
	return nil
}

func (s *recordingSender) Code(purpose, to string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[purpose+":"+to]
}

type testServer struct {
	router *gin.Engine
	sender *recordingSender
	guard  *util.CSRFGuard
}

func setupControllerTest(t *testing.T) *testServer {
	gin.SetMode(gin.TestMode)

	testDB, err := db.SetupTestDB(t)
	require.NoError(t, err)

	guard, err := util.NewCSRFGuard("test-csrf-secret", time.Hour, nil)
	require.NoError(t, err)

	sender := &recordingSender{}
	userRepo := repository.NewUserRepository(testDB)
	otp := service.NewOTPService(repository.NewOTPRepository(testDB), service.NopLocker{}, nil, nil, service.NopObserver{}, service.DefaultOTPPolicy())
	resets := service.NewResetTokenService(repository.NewPasswordResetRepository(testDB), nil, nil, service.NopObserver{}, service.DefaultResetTokenTTL, time.Second)
	verification := service.NewVerificationService(service.VerificationDeps{
		OTP:               otp,
		Resets:            resets,
		Users:             userRepo,
		Mail:              service.NewEmailDispatch(sender),
		CSRF:              guard,
		Observer:          service.NopObserver{},
		MinPasswordLength: 8,
		StoreTimeout:      time.Second,
	})
	authService := service.NewAuthService(userRepo, 8, time.Second)

	authCtrl := NewAuthController(authService, verification)
	verificationCtrl := NewVerificationController(verification)
	csrfCtrl := NewCSRFController(guard)
	csrf := middleware.NewCSRFMiddleware(guard)

	router := gin.New()
	router.Use(middleware.LoggingMiddleware())
	router.GET("/csrf-token", csrfCtrl.GetToken)
	router.GET("/auth/verify", verificationCtrl.EntryPage)
	router.POST("/auth/register", csrf.Require(), authCtrl.Register)
	router.POST("/auth/verify-email", csrf.Require(), verificationCtrl.VerifyEmail)
	router.POST("/auth/forgot-password", csrf.Require(), verificationCtrl.ForgotPassword)
	router.POST("/auth/forgot-password/verify", csrf.Require(), verificationCtrl.VerifyResetCode)
	router.POST("/auth/reset-password", csrf.Require(), verificationCtrl.ResetPassword)

	return &testServer{router: router, sender: sender, guard: guard}
}

func (s *testServer) token(t *testing.T) string {
	token, _, err := s.guard.Generate("")
	require.NoError(t, err)
	return token
}

func (s *testServer) post(t *testing.T, path, csrfToken string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBuffer(payload))
	req.Header.Set("Content-Type", "application/json")
	if csrfToken != "" {
		req.Header.Set(middleware.CSRFHeader, csrfToken)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	return w, response
}

func (s *testServer) get(t *testing.T, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	return w, response
}

// registerVerified creates an account and confirms its email.
func (s *testServer) registerVerified(t *testing.T, email, password string) {
	token := s.token(t)
	w, _ := s.post(t, "/auth/register", token, RegisterRequest{
		Email:                email,
		Password:             password,
		PasswordConfirmation: password,
		Name:                 "Test User",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	code := s.sender.Code("registration", email)
	require.NotEmpty(t, code)

	w, _ = s.post(t, "/auth/verify-email", token, VerifyEmailRequest{Email: email, Code: code})
	require.Equal(t, http.StatusOK, w.Code)
}
