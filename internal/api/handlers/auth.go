// Package handlers provides HTTP request handlers for the QuietPlanet API.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/fzdarsky/quietplanet/internal/api/middleware"
	"github.com/fzdarsky/quietplanet/internal/auth"
	"github.com/fzdarsky/quietplanet/internal/logging"
	"github.com/fzdarsky/quietplanet/pkg/protocol"
)

const (
	// AttemptCookie carries the login attempt id between start and verify.
	AttemptCookie = "qp_attempt"

	maxBodyBytes = 64 << 10
)

// AuthHandler handles registration, SRP-6a login and account endpoints.
type AuthHandler struct {
	authn        *auth.Authenticator
	rateLimiter  *auth.RateLimiter
	logger       *logging.Logger
	attemptTTL   time.Duration
	secureCookie bool
}

// AuthHandlerConfig tunes the handler. A nil RateLimiter disables rate limiting.
type AuthHandlerConfig struct {
	RateLimiter  *auth.RateLimiter
	AttemptTTL   time.Duration
	SecureCookie bool
}

// NewAuthHandler creates a new authentication handler.
func NewAuthHandler(authn *auth.Authenticator, logger *logging.Logger, cfg AuthHandlerConfig) *AuthHandler {
	ttl := cfg.AttemptTTL
	if ttl <= 0 {
		ttl = auth.DefaultHandshakeTTL
	}
	return &AuthHandler{
		authn:        authn,
		rateLimiter:  cfg.RateLimiter,
		logger:       logger,
		attemptTTL:   ttl,
		secureCookie: cfg.SecureCookie,
	}
}

// HandleRegister handles POST /api/register.
func (ah *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req protocol.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := ah.authn.Register(r.Context(), req.Username, req.Salt, req.Verifier); err != nil {
		ah.writeAuthError(w, r, "register", err)
		return
	}

	middleware.WriteJSON(w, protocol.MessageResponse{Message: "User registered"}, http.StatusOK)
}

// HandleLoginStart handles POST /api/login/start.
func (ah *AuthHandler) HandleLoginStart(w http.ResponseWriter, r *http.Request) {
	clientIP := getClientIP(r)
	if ah.rateLimited(w, r, clientIP) {
		return
	}

	var req protocol.LoginStartRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := ah.authn.Start(r.Context(), req.Username, req.A)
	if err != nil {
		ah.writeAuthError(w, r, "login_start", err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     AttemptCookie,
		Value:    res.AttemptID,
		Path:     "/api/login",
		MaxAge:   int(ah.attemptTTL / time.Second),
		HttpOnly: true,
		Secure:   ah.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})

	ah.logger.InfoContext(r.Context(), "login started", map[string]any{
		"event":     "login_start",
		"username":  req.Username,
		"client_ip": clientIP,
	})

	middleware.WriteJSON(w, protocol.LoginStartResponse{
		B:         res.B,
		Salt:      res.Salt,
		AttemptID: res.AttemptID,
	}, http.StatusOK)
}

// HandleLoginVerify handles POST /api/login/verify. The attempt id is taken from the body,
// falling back to the attempt cookie.
func (ah *AuthHandler) HandleLoginVerify(w http.ResponseWriter, r *http.Request) {
	clientIP := getClientIP(r)

	var slot *auth.ProofSlot
	if ah.rateLimiter != nil {
		var (
			wait time.Duration
			err  error
		)
		slot, wait, err = ah.rateLimiter.BeginProof(clientIP)
		if err != nil {
			ah.writeRateLimited(w, r, clientIP, wait)
			return
		}
		defer slot.Release()
	}

	var req protocol.LoginVerifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	attemptID := req.AttemptID
	if attemptID == "" {
		if c, err := r.Cookie(AttemptCookie); err == nil {
			attemptID = c.Value
		}
	}

	// The attempt is consumed whatever the outcome.
	http.SetCookie(w, &http.Cookie{
		Name:     AttemptCookie,
		Value:    "",
		Path:     "/api/login",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   ah.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})

	result, err := ah.authn.Verify(r.Context(), attemptID, req.M1)
	if err != nil {
		if errors.Is(err, auth.ErrAuthenticationFailed) && slot != nil {
			delay := slot.Fail()
			w.Header().Set("Retry-After", strconv.Itoa(auth.FormatRetryAfter(delay)))
		}
		ah.writeAuthError(w, r, "login_verify", err)
		return
	}

	if slot != nil {
		slot.Succeed()
	}

	middleware.WriteJSON(w, protocol.LoginVerifyResponse{
		M2:    result.M2,
		Token: result.Sealed.Ciphertext,
		IV:    result.Sealed.IV,
	}, http.StatusOK)
}

// HandleLogout handles POST /api/login/logout. Requires a bearer token.
func (ah *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		middleware.WriteJSONError(w, protocol.NewUnauthorizedError())
		return
	}

	if err := ah.authn.Logout(r.Context(), claims.Name); err != nil {
		ah.writeAuthError(w, r, "logout", err)
		return
	}

	middleware.WriteJSON(w, protocol.MessageResponse{Message: "Logged out"}, http.StatusOK)
}

// HandleWhoAmI handles GET /api/me. Requires a bearer token.
func (ah *AuthHandler) HandleWhoAmI(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		middleware.WriteJSONError(w, protocol.NewUnauthorizedError())
		return
	}

	resp := protocol.WhoAmIResponse{
		Username: claims.Name,
		Role:     claims.Role,
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.UTC()
	}

	middleware.WriteJSON(w, resp, http.StatusOK)
}

// HandleDonator handles GET /api/donator. Requires a Donator or Admin bearer token.
func (ah *AuthHandler) HandleDonator(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		middleware.WriteJSONError(w, protocol.NewUnauthorizedError())
		return
	}

	middleware.WriteJSON(w, protocol.DonatorResponse{
		Message:  "Donator area",
		Username: claims.Name,
	}, http.StatusOK)
}

// HandleAssignRole handles PUT /api/admin/role. Requires an Admin bearer token.
func (ah *AuthHandler) HandleAssignRole(w http.ResponseWriter, r *http.Request) {
	var req protocol.RoleUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := ah.authn.AssignRole(r.Context(), req.Username, req.Role); err != nil {
		ah.writeAuthError(w, r, "assign_role", err)
		return
	}

	if claims := middleware.GetClaims(r.Context()); claims != nil {
		ah.logger.InfoContext(r.Context(), "role assigned", map[string]any{
			"event":    "assign_role",
			"by":       claims.Name,
			"username": req.Username,
			"role":     req.Role,
		})
	}

	middleware.WriteJSON(w, protocol.MessageResponse{Message: "Role updated"}, http.StatusOK)
}

// rateLimited writes a 429 and reports true when the client must wait.
func (ah *AuthHandler) rateLimited(w http.ResponseWriter, r *http.Request, clientIP string) bool {
	if ah.rateLimiter == nil {
		return false
	}

	wait, err := ah.rateLimiter.Check(clientIP)
	if err == nil {
		return false
	}

	ah.writeRateLimited(w, r, clientIP, wait)
	return true
}

// writeRateLimited writes a 429 telling the client how long to wait.
func (ah *AuthHandler) writeRateLimited(w http.ResponseWriter, r *http.Request, clientIP string, wait time.Duration) {
	retryAfter := auth.FormatRetryAfter(wait)
	ah.logger.WarnContext(r.Context(), "client rate limited", map[string]any{
		"event":       "rate_limited",
		"client_ip":   clientIP,
		"retry_after": retryAfter,
	})
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	middleware.WriteJSONError(w, protocol.NewRateLimitExceededError(retryAfter))
}

// writeAuthError maps authenticator errors to wire errors. Internal causes are logged by the
// authenticator and never sent.
func (ah *AuthHandler) writeAuthError(w http.ResponseWriter, r *http.Request, event string, err error) {
	var resp *protocol.ErrorResponse
	switch {
	case errors.Is(err, auth.ErrBadRequest):
		resp = protocol.NewInvalidRequestError("Malformed request")
	case errors.Is(err, auth.ErrAuthenticationFailed):
		resp = protocol.NewAuthenticationFailedError()
	case errors.Is(err, auth.ErrSessionExpired):
		resp = protocol.NewSessionExpiredError()
	case errors.Is(err, auth.ErrAlreadyExists):
		resp = protocol.NewAlreadyExistsError()
	case errors.Is(err, auth.ErrUserNotFound):
		resp = protocol.NewNotFoundError()
	default:
		resp = protocol.NewSystemError()
	}

	ah.logger.InfoContext(r.Context(), "request rejected", map[string]any{
		"event": event + "_failed",
		"code":  string(resp.Code),
	})
	middleware.WriteJSONError(w, resp)
}

// decodeJSON reads a bounded JSON body into dst, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil {
		middleware.WriteJSONError(w, protocol.NewInvalidRequestError("Invalid request body"))
		return false
	}
	return true
}

// getClientIP extracts the client IP address from the request.
// Forwarding headers are not trusted since the address keys rate limiting.
func getClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
