package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/fzdarsky/quietplanet/internal/auth"
	"github.com/fzdarsky/quietplanet/internal/credstore"
	"github.com/fzdarsky/quietplanet/pkg/protocol"
)

// AuthMiddleware provides bearer token authentication for HTTP handlers.
type AuthMiddleware struct {
	tokens *auth.TokenIssuer
}

// NewAuthMiddleware creates a new authentication middleware.
func NewAuthMiddleware(tokens *auth.TokenIssuer) *AuthMiddleware {
	return &AuthMiddleware{
		tokens: tokens,
	}
}

// Require is an HTTP middleware that enforces authentication.
// It validates the JWT from the Authorization header and rejects requests with missing or
// invalid tokens.
func (am *AuthMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Format: "Authorization: Bearer <token>"
		scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			WriteJSONError(w, protocol.NewUnauthorizedError())
			return
		}

		claims, err := am.tokens.Parse(token)
		if err != nil {
			WriteJSONError(w, protocol.NewUnauthorizedError())
			return
		}

		next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
	})
}

// RequireRole wraps Require and additionally rejects bearers whose role is not listed.
func (am *AuthMiddleware) RequireRole(roles ...credstore.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return am.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaims(r.Context())
			if claims == nil || !slices.Contains(roles, credstore.Role(claims.Role)) {
				WriteJSONError(w, protocol.NewForbiddenError())
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}
