package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ikkim/localservices-backend/internal/app/model"
	"github.com/ikkim/localservices-backend/internal/app/repository"
	"github.com/ikkim/localservices-backend/pkg/util"
	"gorm.io/gorm"
)

var testBaseTime = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(now time.Time) *testClock {
	return &testClock{now: now}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// stubRandom hands out queued codes first, then falls back to crypto/rand.
type stubRandom struct {
	mu    sync.Mutex
	codes []string
}

func (r *stubRandom) Queue(codes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes = append(r.codes, codes...)
}

func (r *stubRandom) Digits(n int) (string, error) {
	r.mu.Lock()
	if len(r.codes) > 0 {
		code := r.codes[0]
		r.codes = r.codes[1:]
		r.mu.Unlock()
		return code, nil
	}
	r.mu.Unlock()
	return util.CryptoRandom{}.Digits(n)
}

func (r *stubRandom) Token(n int) (string, error) {
	return util.CryptoRandom{}.Token(n)
}

var _ util.RandomSource = (*stubRandom)(nil)

type recordingObserver struct {
	mu     sync.Mutex
	events []VerificationEvent
}

func (o *recordingObserver) Observe(event VerificationEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
}

func (o *recordingObserver) Kinds() []EventKind {
	o.mu.Lock()
	defer o.mu.Unlock()
	kinds := make([]EventKind, 0, len(o.events))
	for _, e := range o.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func (o *recordingObserver) Count(kind EventKind) int {
	n := 0
	for _, k := range o.Kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

var _ VerificationObserver = (*recordingObserver)(nil)

type sentCode struct {
	Purpose     model.OTPPurpose
	Identity    string
	DisplayName string
	Code        string
}

type mockEmailDispatch struct {
	mu                sync.Mutex
	codes             []sentCode
	passwordChanged   []string
	welcomes          []string
	SendCodeFunc      func(purpose model.OTPPurpose, identity string) DispatchResult
	PasswordChangedFn func(identity string) DispatchResult
}

func (m *mockEmailDispatch) SendCode(_ context.Context, purpose model.OTPPurpose, identity, displayName, code string) DispatchResult {
	m.mu.Lock()
	m.codes = append(m.codes, sentCode{Purpose: purpose, Identity: identity, DisplayName: displayName, Code: code})
	m.mu.Unlock()
	if m.SendCodeFunc != nil {
		return m.SendCodeFunc(purpose, identity)
	}
	return DispatchResult{Delivered: true}
}

func (m *mockEmailDispatch) SendPasswordChanged(_ context.Context, identity, _ string) DispatchResult {
	m.mu.Lock()
	m.passwordChanged = append(m.passwordChanged, identity)
	m.mu.Unlock()
	if m.PasswordChangedFn != nil {
		return m.PasswordChangedFn(identity)
	}
	return DispatchResult{Delivered: true}
}

func (m *mockEmailDispatch) SendWelcome(_ context.Context, identity, _ string) DispatchResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.welcomes = append(m.welcomes, identity)
	return DispatchResult{Delivered: true}
}

// LastCode returns the most recent code sent to identity.
func (m *mockEmailDispatch) LastCode(identity string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.codes) - 1; i >= 0; i-- {
		if m.codes[i].Identity == identity {
			return m.codes[i].Code
		}
	}
	return ""
}

func (m *mockEmailDispatch) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.codes)
}

var _ EmailDispatch = (*mockEmailDispatch)(nil)

type mockCSRF struct {
	valid string
}

func (m mockCSRF) Verify(token string) bool {
	return token != "" && token == m.valid
}

type mockLocker struct {
	AcquireFunc func(key string) (func(), error)
}

func (m *mockLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	return m.AcquireFunc(key)
}

var _ IssuanceLocker = (*mockLocker)(nil)

// failingVerifyUsers fails every email_verified write, including inside transactions.
type failingVerifyUsers struct {
	repository.UserRepository
}

func (u failingVerifyUsers) WithTx(tx *gorm.DB) repository.UserRepository {
	return failingVerifyUsers{UserRepository: u.UserRepository.WithTx(tx)}
}

func (u failingVerifyUsers) SetEmailVerified(context.Context, uint, time.Time) error {
	return errors.New("write failed")
}
