// Package token generates opaque, URL-safe single-use tokens.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// entropyBytes gives 256 bits of entropy; collisions are treated as impossible.
const entropyBytes = 32

// Generate returns a cryptographically random, URL-safe token with no padding.
func Generate() (string, error) {
	b := make([]byte, entropyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("token: read entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
