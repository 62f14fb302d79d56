// Package server gates the single privileged admin identity behind an
// external password-verification capability.
package server

import "golang.org/x/crypto/bcrypt"

// DefaultBcryptCost balances hashing time against brute-force resistance for
// generated admin credentials.
const DefaultBcryptCost = 12

// PasswordVerifier checks a plaintext credential against a stored hash.
// Implementations must compare in constant time and must not retain or log
// the plaintext.
type PasswordVerifier interface {
	Verify(hash, password string) bool
}

// bcryptVerifier verifies credentials against bcrypt hashes.
type bcryptVerifier struct{}

func (bcryptVerifier) Verify(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// HashAdminPassword generates a bcrypt hash suitable for the
// ADMIN_PASSWORD_HASH configuration value.
func HashAdminPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), DefaultBcryptCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// adminGate decides whether a join request becomes an admin session. Exactly
// one admin identity is configured; every authentication attempt is
// independent, with no lockout or retry bookkeeping.
type adminGate struct {
	username     string
	passwordHash string
	verifier     PasswordVerifier
}

func newAdminGate(username, passwordHash string, verifier PasswordVerifier) *adminGate {
	if verifier == nil {
		verifier = bcryptVerifier{}
	}
	return &adminGate{username: username, passwordHash: passwordHash, verifier: verifier}
}

// claimsAdmin reports whether a join request is claiming the admin identity
// and therefore must pass the credential check.
func (g *adminGate) claimsAdmin(name string) bool {
	return g.username != "" && name == g.username
}

// authenticate verifies the supplied credential for the configured admin
// identity. An unset hash denies all attempts.
func (g *adminGate) authenticate(name, password string) bool {
	if !g.claimsAdmin(name) {
		return false
	}
	if password == "" || g.passwordHash == "" {
		return false
	}
	return g.verifier.Verify(g.passwordHash, password)
}
