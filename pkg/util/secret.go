package util

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashSecret derives the stored form of a short-lived secret such as an OTP
// code or reset token. salt may be empty for high-entropy secrets.
func HashSecret(salt, secret string) string {
	h := sha256.New()
	h.Write([]byte(salt))
	h.Write([]byte{':'})
	h.Write([]byte(secret))
	return hex.EncodeToString(h.Sum(nil))
}

// SecretMatches compares secret against a stored hash in constant time
func SecretMatches(storedHash, salt, secret string) bool {
	computed := HashSecret(salt, secret)
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(computed)) == 1
}
