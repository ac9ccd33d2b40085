package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ikkim/localservices-backend/internal/app/model"
	"github.com/ikkim/localservices-backend/internal/app/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestMetrics_Observe(t *testing.T) {
	m := New()

	m.Observe(service.VerificationEvent{Kind: service.EventIssued, Purpose: model.PurposeRegistration})
	m.Observe(service.VerificationEvent{Kind: service.EventIssued, Purpose: model.PurposeRegistration})
	m.Observe(service.VerificationEvent{Kind: service.EventThrottled, Purpose: model.PurposePasswordReset})

	body := scrape(t, m)
	assert.Contains(t, body, `verification_events_total{event="issued",purpose="registration"} 2`)
	assert.Contains(t, body, `verification_events_total{event="throttled",purpose="password_reset"} 1`)
	assert.NotContains(t, body, `verification_events_total{event="issued",purpose="password_reset"}`)
}

func TestMetrics_ObserveRequest(t *testing.T) {
	m := New()
	m.ObserveRequest(http.MethodPost, "/api/v1/auth/verify-email", http.StatusOK, 20*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "", http.StatusNotFound, time.Millisecond)

	body := scrape(t, m)
	assert.Contains(t, body, `http_request_duration_seconds_count{method="POST",route="/api/v1/auth/verify-email",status="200"} 1`)
	assert.Contains(t, body, `http_request_duration_seconds_count{method="GET",route="unmatched",status="404"} 1`)
	assert.Contains(t, body, "go_goroutines")
}
