package security

import (
	"crypto/sha256"
	"crypto/subtle"
)

// Passcode is the shared secret guarding the page.
type Passcode struct {
	digest [sha256.Size]byte
	set    bool
}

// NewPasscode returns a gate for secret. An empty secret denies everyone.
func NewPasscode(secret string) *Passcode {
	if secret == "" {
		return &Passcode{}
	}
	return &Passcode{digest: sha256.Sum256([]byte(secret)), set: true}
}

// Check compares input with the secret in constant time. Both sides are
// hashed first so the comparison does not leak the secret's length.
func (p *Passcode) Check(input string) bool {
	if !p.set {
		return false
	}
	got := sha256.Sum256([]byte(input))
	return subtle.ConstantTimeCompare(got[:], p.digest[:]) == 1
}
