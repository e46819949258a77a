// Package secret provides one-way hashing and generation of the random
// credentials this service mints itself: client secrets, authorization
// codes, and refresh tokens. A plain unsalted SHA-256 is sufficient here
// because every hashed value is a 32+ byte random string generated below;
// user-chosen passwords go through internal/password instead.
package secret

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Hash returns the hex-encoded SHA-256 digest of a secret value.
func Hash(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// Verify compares a presented secret against a stored digest in constant
// time so comparison latency does not depend on matching prefix length.
func Verify(value, digest string) bool {
	computed := Hash(value)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(digest)) == 1
}

// NewToken generates a hex-encoded random value from n bytes of entropy.
func NewToken(n int) string {
	if n <= 0 {
		n = 32
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
