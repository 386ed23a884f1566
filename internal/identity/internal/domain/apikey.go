// Package domain contains the core types for the identity store: the
// (token, caller name) mapping the admission front-end authenticates
// against.
package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// APIKey is a row of the persistent api_keys table: name UNIQUE, api_key
// UNIQUE INDEXED, leaderboard BOOL. Unlike a credential store guarding
// access to the system itself, the plaintext token here IS the lookup
// key used by callers on every request, so it is stored verbatim rather
// than hashed, matching the table layout dictated by the persistent
// state layout.
type APIKey struct {
	// Name is the caller's display/identity name, unique.
	Name string

	// Token is the plaintext bearer credential, unique and indexed.
	Token string

	// Leaderboard marks whether this caller appears on the usage
	// leaderboard report.
	Leaderboard bool
}

// GenerateToken creates a new random bearer token (16 random bytes, hex
// encoded to 32 characters), the same shape as a UUID4 hex string.
func GenerateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
