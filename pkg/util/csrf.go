package util

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const csrfIssuer = "localservices-csrf"

var ErrEmptyCSRFSecret = errors.New("csrf secret must not be empty")

// CSRFGuard issues and verifies stateless anti-forgery tokens. Tokens are
// HS256 JWTs with a short expiry; nothing is stored server-side.
type CSRFGuard struct {
	secret []byte
	ttl    time.Duration
	clock  Clock
}

type csrfClaims struct {
	Purpose string `json:"pur"`
	jwt.RegisteredClaims
}

func NewCSRFGuard(secret string, ttl time.Duration, clock Clock) (*CSRFGuard, error) {
	if secret == "" {
		return nil, ErrEmptyCSRFSecret
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &CSRFGuard{
		secret: []byte(secret),
		ttl:    ttl,
		clock:  clock,
	}, nil
}

// Generate returns a token bound to subject (usually the client IP or a
// browser fingerprint; may be empty).
func (g *CSRFGuard) Generate(subject string) (string, time.Time, error) {
	now := g.clock.Now()
	expiresAt := now.Add(g.ttl)

	claims := csrfClaims{
		Purpose: "csrf",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    csrfIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Verify reports whether token was issued by this guard and has not expired
func (g *CSRFGuard) Verify(token string) bool {
	if token == "" {
		return false
	}

	claims := &csrfClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return g.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(csrfIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(g.clock.Now),
	)
	if err != nil || !parsed.Valid {
		return false
	}
	return claims.Purpose == "csrf"
}
