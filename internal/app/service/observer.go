package service

import (
	"time"

	"github.com/ikkim/localservices-backend/internal/app/model"
	"github.com/ikkim/localservices-backend/pkg/logger"
)

type EventKind string

const (
	EventIssued         EventKind = "issued"
	EventDeliveryFailed EventKind = "delivery_failed"
	EventThrottled      EventKind = "throttled"
	EventVerified       EventKind = "verified"
	EventInvalidCode    EventKind = "invalid_code"
	EventExpired        EventKind = "expired"
	EventNotFound       EventKind = "not_found"
	EventTokenIssued    EventKind = "token_issued"
	EventTokenRejected  EventKind = "token_rejected"
	EventPasswordReset  EventKind = "password_reset"
)

// VerificationEvent describes one state transition. It never carries codes
// or tokens.
type VerificationEvent struct {
	Kind      EventKind
	Purpose   model.OTPPurpose
	Identity  string
	AccountID *uint
	At        time.Time
}

// VerificationObserver receives every transition of the verification flows.
// Implementations must not block.
type VerificationObserver interface {
	Observe(event VerificationEvent)
}

type NopObserver struct{}

func (NopObserver) Observe(VerificationEvent) {}

// LogObserver writes each event as a structured log line.
type LogObserver struct{}

func (LogObserver) Observe(event VerificationEvent) {
	fields := map[string]interface{}{
		"event":    string(event.Kind),
		"purpose":  string(event.Purpose),
		"identity": event.Identity,
		"at":       event.At,
	}
	if event.AccountID != nil {
		fields["account_id"] = *event.AccountID
	}

	switch event.Kind {
	case EventDeliveryFailed, EventThrottled, EventTokenRejected:
		logger.Warn("Verification event", fields)
	default:
		logger.Info("Verification event", fields)
	}
}

// MultiObserver fans an event out to every observer in order.
type MultiObserver []VerificationObserver

func (m MultiObserver) Observe(event VerificationEvent) {
	for _, o := range m {
		if o != nil {
			o.Observe(event)
		}
	}
}

func observerOrNop(o VerificationObserver) VerificationObserver {
	if o == nil {
		return NopObserver{}
	}
	return o
}
