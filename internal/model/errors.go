package model

import "errors"

// Domain result states. Handlers map these to HTTP responses with
// errors.Is; none of them should escape as an unhandled fault.
var (
	// ErrNotFound means the key does not resolve to an Association.
	ErrNotFound = errors.New("key not found")

	// ErrKeyConflict means an explicitly supplied key is already taken.
	ErrKeyConflict = errors.New("key already exists")

	// ErrKeyGenExhausted means random key generation ran out of attempts.
	ErrKeyGenExhausted = errors.New("failed to generate a unique key")

	// ErrAuthRequired means the resource is password protected and no
	// password was submitted.
	ErrAuthRequired = errors.New("password required")

	// ErrAuthRejected means the submitted password did not match.
	ErrAuthRejected = errors.New("authentication failed")

	// ErrIntegrity means a Stats record is missing for an existing
	// Association. Callers log it and present ErrNotFound externally.
	ErrIntegrity = errors.New("stats record missing for association")
)
