// Package guard implements the password gate protecting stats viewing and
// every mutating operation on a key.
package guard

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/qrtrack/qr-track/internal/model"
)

// HashPassword returns a bcrypt hash for storage. An empty password means
// the resource is unprotected and yields nil.
func HashPassword(password string) (*string, error) {
	if password == "" {
		return nil, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("guard: hash password: %w", err)
	}
	s := string(hash)
	return &s, nil
}

// Check evaluates the gate for one request. It is stateless: every call
// verifies afresh, with no session or lockout tracking.
//
// Unprotected records always pass. For protected records a missing
// submission yields model.ErrAuthRequired and a mismatch yields
// model.ErrAuthRejected; the two must stay distinct so the caller can
// render a prompt for the former and a generic failure for the latter.
func Check(stats *model.Stats, submitted string) error {
	if !stats.Protected() {
		return nil
	}
	if submitted == "" {
		return model.ErrAuthRequired
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*stats.PasswordHash), []byte(submitted)); err != nil {
		return model.ErrAuthRejected
	}
	return nil
}
