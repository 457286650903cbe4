// Package auth implements password hashing and session-token issuance
// shared by the owner login path and the child/client session commands
// (§6's CreateClientNodeSession, TryLogIntoServer). Grounded on
// golang.org/x/crypto/bcrypt, already pulled in by federation's Argon2 key
// derivation — bcrypt is the idiomatic choice for a per-login password
// check where the defender controls both sides, versus Argon2's use here
// as a KDF for an encryption key.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword bcrypt-hashes password at the default cost for storage in
// local_node.owner_password_hash or client_nodes.password_hash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches hash.
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NewSessionToken returns a random, URL-safe session token: 32 bytes of
// entropy, hex-encoded so it's safe to carry in an HTTP header or cookie
// verbatim.
func NewSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: read random token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
