// Package password hashes and verifies user credentials.
//
// New digests are salted bcrypt. Accounts created before the switch carry
// unsalted SHA-256 hex digests; those verify through a legacy path that can be
// disabled once every live account has been rehashed.
package password

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/secure/precis"
)

const legacyDigestLen = sha256.Size * 2

// Hasher produces and checks password digests.
type Hasher struct {
	cost        int
	allowLegacy bool
}

// NewHasher constructs a Hasher. allowLegacy enables verification of
// pre-migration unsalted SHA-256 digests.
func NewHasher(allowLegacy bool) *Hasher {
	return &Hasher{cost: bcrypt.DefaultCost, allowLegacy: allowLegacy}
}

// Hash derives a salted digest from the plaintext. The plaintext is run
// through the PRECIS OpaqueString profile first so visually identical
// passwords typed on different platforms compare equal.
func (h *Hasher) Hash(plaintext string) (string, error) {
	normalized, err := normalize(plaintext)
	if err != nil {
		return "", fmt.Errorf("password: normalize: %w", err)
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(normalized), h.cost)
	if err != nil {
		return "", fmt.Errorf("password: hash: %w", err)
	}
	return string(digest), nil
}

// Verify reports whether plaintext matches the stored digest.
func (h *Hasher) Verify(plaintext, digest string) bool {
	if h.isLegacy(digest) {
		return verifyLegacy(plaintext, digest)
	}
	normalized, err := normalize(plaintext)
	if err != nil {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(normalized)) == nil
}

// NeedsRehash reports whether the stored digest should be upgraded on the
// next successful verification.
func (h *Hasher) NeedsRehash(digest string) bool {
	if h.isLegacy(digest) {
		return true
	}
	cost, err := bcrypt.Cost([]byte(digest))
	return err != nil || cost < h.cost
}

func (h *Hasher) isLegacy(digest string) bool {
	if !h.allowLegacy || len(digest) != legacyDigestLen {
		return false
	}
	_, err := hex.DecodeString(digest)
	return err == nil
}

// verifyLegacy reproduces the original scheme: SHA-256 over the raw UTF-8
// bytes, lowercase hex, no salt and no normalization.
func verifyLegacy(plaintext, digest string) bool {
	sum := sha256.Sum256([]byte(plaintext))
	computed := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(computed), []byte(digest)) == 1
}

func normalize(plaintext string) (string, error) {
	return precis.OpaqueString.String(plaintext)
}
