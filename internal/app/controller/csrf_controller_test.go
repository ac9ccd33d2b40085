package controller

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSRFController_GetToken(t *testing.T) {
	s := setupControllerTest(t)

	w, response := s.get(t, "/csrf-token")

	assert.Equal(t, http.StatusOK, w.Code)
	token, ok := response["csrf_token"].(string)
	require.True(t, ok)
	assert.True(t, s.guard.Verify(token))
	assert.Equal(t, "X-CSRF-Token", response["header"])
	assert.NotEmpty(t, response["expires_at"])
}

func TestCSRFController_TokenAcceptedByProtectedRoute(t *testing.T) {
	s := setupControllerTest(t)

	_, response := s.get(t, "/csrf-token")
	token := response["csrf_token"].(string)

	w, _ := s.post(t, "/auth/forgot-password", token, ForgotPasswordRequest{Email: "nobody@example.com"})
	assert.Equal(t, http.StatusOK, w.Code)
}
