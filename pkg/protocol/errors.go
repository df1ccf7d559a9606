// Package protocol defines shared data structures and error codes for the QuietPlanet API.
package protocol

import "fmt"

// ErrorCode represents a standardized error code for the QuietPlanet API.
type ErrorCode string

// API error codes.
const (
	// ErrCodeAuthenticationFailed indicates the login proof did not verify.
	// Unknown users and wrong passwords share this code.
	ErrCodeAuthenticationFailed ErrorCode = "AUTHENTICATION_FAILED"
	// ErrCodeSessionExpired indicates the login attempt is unknown, used or expired.
	ErrCodeSessionExpired ErrorCode = "SESSION_EXPIRED"
	// ErrCodeRateLimitExceeded indicates too many failed attempts were made.
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// ErrCodeUnauthorized indicates a missing or invalid bearer token.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrCodeForbidden indicates the bearer's role does not allow the operation.
	ErrCodeForbidden ErrorCode = "FORBIDDEN"

	// ErrCodeInvalidRequest indicates the request payload is invalid.
	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	// ErrCodeAlreadyExists indicates the username is already registered.
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"
	// ErrCodeNotFound indicates the referenced user does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeSystemError indicates a system-level error occurred.
	ErrCodeSystemError ErrorCode = "SYSTEM_ERROR"
	// ErrCodeShuttingDown indicates the service is shutting down.
	ErrCodeShuttingDown ErrorCode = "SHUTTING_DOWN"
)

// ErrorResponse represents a standardized API error response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *ErrorResponse) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError creates a new ErrorResponse.
func NewError(code ErrorCode, message string) *ErrorResponse {
	return &ErrorResponse{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithDetails creates a new ErrorResponse with details.
func NewErrorWithDetails(code ErrorCode, message, details string) *ErrorResponse {
	return &ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NewAuthenticationFailedError creates an authentication failed error.
func NewAuthenticationFailedError() *ErrorResponse {
	return NewError(ErrCodeAuthenticationFailed, "Authentication failed")
}

// NewSessionExpiredError creates a session expired error.
func NewSessionExpiredError() *ErrorResponse {
	return NewError(ErrCodeSessionExpired, "Login attempt expired, start again")
}

// NewRateLimitExceededError creates a rate limit exceeded error.
func NewRateLimitExceededError(retryAfter int) *ErrorResponse {
	return NewErrorWithDetails(ErrCodeRateLimitExceeded, "Rate limit exceeded", fmt.Sprintf("Retry after %d seconds", retryAfter))
}

// NewUnauthorizedError creates an unauthorized error.
func NewUnauthorizedError() *ErrorResponse {
	return NewError(ErrCodeUnauthorized, "Authentication required")
}

// NewForbiddenError creates a forbidden error.
func NewForbiddenError() *ErrorResponse {
	return NewError(ErrCodeForbidden, "Insufficient role")
}

// NewInvalidRequestError creates an invalid request error. Details must never name which
// numeric field failed to parse.
func NewInvalidRequestError(details string) *ErrorResponse {
	return NewErrorWithDetails(ErrCodeInvalidRequest, "Invalid request", details)
}

// NewAlreadyExistsError creates a username taken error.
func NewAlreadyExistsError() *ErrorResponse {
	return NewError(ErrCodeAlreadyExists, "User already exists")
}

// NewNotFoundError creates a user not found error.
func NewNotFoundError() *ErrorResponse {
	return NewError(ErrCodeNotFound, "User not found")
}

// NewSystemError creates a system error.
func NewSystemError() *ErrorResponse {
	return NewError(ErrCodeSystemError, "System error")
}

// NewShuttingDownError creates a shutting down error.
func NewShuttingDownError() *ErrorResponse {
	return NewError(ErrCodeShuttingDown, "Service is shutting down")
}
