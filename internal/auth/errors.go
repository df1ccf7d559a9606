package auth

import "errors"

// Outcomes of the login flow. Handlers map these to wire error codes.
var (
	// ErrBadRequest is returned for malformed input. It never says which field was malformed.
	ErrBadRequest = errors.New("bad request")

	// ErrAuthenticationFailed covers both unknown users and proof mismatches.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrSessionExpired is returned when a login attempt is unknown, already used or expired.
	ErrSessionExpired = errors.New("login attempt expired")

	// ErrAlreadyExists is returned when registering a taken username.
	ErrAlreadyExists = errors.New("user already exists")

	// ErrUserNotFound is returned by administrative operations on a missing user.
	ErrUserNotFound = errors.New("user not found")

	// ErrRateLimited is returned when a client must wait before another attempt.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrInternal wraps collaborator failures. Its message carries no protocol detail.
	ErrInternal = errors.New("internal error")

	// ErrInvalidToken is returned for bearer tokens that fail verification.
	ErrInvalidToken = errors.New("invalid token")
)
