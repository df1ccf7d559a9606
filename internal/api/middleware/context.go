package middleware

import (
	"context"

	"github.com/fzdarsky/quietplanet/internal/auth"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

const (
	claimsContextKey contextKey = "claims"
)

// withClaims stores verified token claims in the request context.
func withClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// GetClaims retrieves the bearer's claims from the request context.
// Returns nil if the request was not authenticated.
func GetClaims(ctx context.Context) *auth.Claims {
	claims, ok := ctx.Value(claimsContextKey).(*auth.Claims)
	if !ok {
		return nil
	}
	return claims
}
