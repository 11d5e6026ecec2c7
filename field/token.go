package field

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// NewToken returns a random 256-bit bearer token in hex. The raw value is
// shown once at session creation and never persisted.
func NewToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("field: generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Digest derives the stored one-way form of a token. Sessions are looked up
// by this digest, so the derivation must be deterministic; the salt keeps a
// leaked table from being matched against tokens captured elsewhere.
func Digest(salt, token string) string {
	sum := sha256.Sum256([]byte(salt + ":" + token))
	return hex.EncodeToString(sum[:])
}
