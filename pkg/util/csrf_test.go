package util

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCSRFSecret = "test-secret-key-for-csrf-testing"

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

func TestNewCSRFGuard_EmptySecret(t *testing.T) {
	guard, err := NewCSRFGuard("", time.Hour, nil)
	assert.ErrorIs(t, err, ErrEmptyCSRFSecret)
	assert.Nil(t, guard)
}

func TestCSRFGuard_GenerateAndVerify(t *testing.T) {
	clock := &fixedClock{now: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)}
	guard, err := NewCSRFGuard(testCSRFSecret, 30*time.Minute, clock)
	require.NoError(t, err)

	token, expiresAt, err := guard.Generate("203.0.113.7")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, clock.now.Add(30*time.Minute), expiresAt)

	assert.True(t, guard.Verify(token))

	other, _, err := guard.Generate("203.0.113.7")
	require.NoError(t, err)
	assert.NotEqual(t, token, other, "each token carries a unique ID")
}

func TestCSRFGuard_Verify(t *testing.T) {
	clock := &fixedClock{now: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)}
	guard, err := NewCSRFGuard(testCSRFSecret, 30*time.Minute, clock)
	require.NoError(t, err)

	valid, _, err := guard.Generate("")
	require.NoError(t, err)

	foreign, err := NewCSRFGuard("another-secret", 30*time.Minute, clock)
	require.NoError(t, err)
	foreignToken, _, err := foreign.Generate("")
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"iss": csrfIssuer,
		"pur": "csrf",
		"exp": clock.now.Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"Valid token", valid, true},
		{"Empty token", "", false},
		{"Garbage", "not-a-token", false},
		{"Signed with another secret", foreignToken, false},
		{"Unsigned token", unsigned, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, guard.Verify(tt.token))
		})
	}
}

func TestCSRFGuard_Expiry(t *testing.T) {
	clock := &fixedClock{now: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)}
	guard, err := NewCSRFGuard(testCSRFSecret, 30*time.Minute, clock)
	require.NoError(t, err)

	token, _, err := guard.Generate("")
	require.NoError(t, err)

	clock.now = clock.now.Add(29 * time.Minute)
	assert.True(t, guard.Verify(token))

	clock.now = clock.now.Add(2 * time.Minute)
	assert.False(t, guard.Verify(token))
}
