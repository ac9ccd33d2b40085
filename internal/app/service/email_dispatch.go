package service

import (
	"context"

	"github.com/ikkim/localservices-backend/internal/app/model"
	"github.com/ikkim/localservices-backend/pkg/logger"
)

// DispatchResult reports the outcome of an email send. A failed send is
// advisory: flows record a warning and carry on.
type DispatchResult struct {
	Delivered bool
	Err       error
}

func (r DispatchResult) Failed() bool {
	return !r.Delivered
}

// EmailDispatch delivers verification and account notices.
type EmailDispatch interface {
	SendCode(ctx context.Context, purpose model.OTPPurpose, identity, displayName, code string) DispatchResult
	SendPasswordChanged(ctx context.Context, identity, displayName string) DispatchResult
	SendWelcome(ctx context.Context, identity, displayName string) DispatchResult
}

// MailSender is the transport underneath EmailDispatch.
type MailSender interface {
	SendCode(ctx context.Context, purpose, to, displayName, code string) error
	SendPasswordChanged(ctx context.Context, to, displayName string) error
	SendWelcome(ctx context.Context, to, displayName string) error
}

type mailDispatch struct {
	sender MailSender
}

// NewEmailDispatch adapts a MailSender so send errors never propagate into
// the verification flows.
func NewEmailDispatch(sender MailSender) EmailDispatch {
	return &mailDispatch{sender: sender}
}

func (d *mailDispatch) SendCode(ctx context.Context, purpose model.OTPPurpose, identity, displayName, code string) DispatchResult {
	return d.result("verification code", identity, d.sender.SendCode(ctx, string(purpose), identity, displayName, code))
}

func (d *mailDispatch) SendPasswordChanged(ctx context.Context, identity, displayName string) DispatchResult {
	return d.result("password changed notice", identity, d.sender.SendPasswordChanged(ctx, identity, displayName))
}

func (d *mailDispatch) SendWelcome(ctx context.Context, identity, displayName string) DispatchResult {
	return d.result("welcome email", identity, d.sender.SendWelcome(ctx, identity, displayName))
}

func (d *mailDispatch) result(kind, identity string, err error) DispatchResult {
	if err != nil {
		logger.Error("Failed to send "+kind, err, map[string]interface{}{
			"identity": identity,
		})
		return DispatchResult{Err: err}
	}
	return DispatchResult{Delivered: true}
}
