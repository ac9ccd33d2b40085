package util

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var ErrInvalidLength = errors.New("random length must be positive")

// RandomSource produces unpredictable values for codes, salts and tokens
type RandomSource interface {
	// Digits returns a uniformly distributed numeric string of length n
	Digits(n int) (string, error)
	// Token returns n random bytes encoded as unpadded base64url
	Token(n int) (string, error)
}

// CryptoRandom reads from crypto/rand
type CryptoRandom struct{}

func (CryptoRandom) Digits(n int) (string, error) {
	if n <= 0 {
		return "", ErrInvalidLength
	}
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	v, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to read random digits: %w", err)
	}
	digits := v.String()
	return strings.Repeat("0", n-len(digits)) + digits, nil
}

func (CryptoRandom) Token(n int) (string, error) {
	if n <= 0 {
		return "", ErrInvalidLength
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
