package security

import (
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// CredentialVerifier checks download secrets. Stored values are either an
// argon2id hash, a bcrypt hash written by older deployments, or plain text
// that hasn't been migrated yet.
type CredentialVerifier struct {
	Argon *ArgonHash
}

func NewCredentialVerifier(a *ArgonHash) *CredentialVerifier {
	return &CredentialVerifier{Argon: a}
}

// IsHashed reports whether stored is a well formed argon2id or bcrypt hash.
// Values that only share a prefix with one are plain text
func IsHashed(stored string) bool {
	if isArgon(stored) {
		_, err := decodeArgon(stored)
		return err == nil
	}

	if isBcrypt(stored) {
		_, err := bcrypt.Cost([]byte(stored))
		return err == nil
	}

	return false
}

func isArgon(s string) bool {
	return strings.HasPrefix(s, argonPrefix)
}

func isBcrypt(s string) bool {
	return strings.HasPrefix(s, "$2a$") ||
		strings.HasPrefix(s, "$2b$") ||
		strings.HasPrefix(s, "$2y$")
}

// Matches reports whether presented matches stored. An empty stored value never
// matches. A stored value that starts like a hash but doesn't parse as one is
// compared as plain text
func (v *CredentialVerifier) Matches(presented, stored string) (bool, error) {
	if stored == "" {
		return false, nil
	}

	switch {
	case isArgon(stored):
		ok, err := v.Argon.Verify(presented, stored)
		if !errors.Is(err, ErrMalformedHash) {
			return ok, err
		}
	case isBcrypt(stored):
		err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(presented))
		if err == nil {
			return true, nil
		}
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
	}

	return subtle.ConstantTimeCompare([]byte(presented), []byte(stored)) == 1, nil
}
