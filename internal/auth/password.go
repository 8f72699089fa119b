// Package auth implements the gateway's IRC PASS check. Spec §9's
// open question on the source's double-digest comparison resolves to:
// hash both sides with the same fixed-size digest and compare in
// constant time, so comparison latency never leaks how much of the
// password matched.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
)

// Digest hashes a password to a fixed-size comparison key.
func Digest(password string) [sha256.Size]byte {
	return sha256.Sum256([]byte(password))
}

// Check reports whether supplied matches configured under a
// constant-time comparison of their digests. An empty configured
// password means no PASS is required; callers check that separately
// (spec §6: password is optional).
func Check(supplied, configured string) bool {
	a := Digest(supplied)
	b := Digest(configured)
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
