// Package client provides the QuietPlanet API client used by the qp CLI tool.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/fzdarsky/quietplanet/internal/cli/config"
	"github.com/fzdarsky/quietplanet/internal/cli/session"
	cliTLS "github.com/fzdarsky/quietplanet/internal/cli/tls"
	"github.com/fzdarsky/quietplanet/pkg/protocol"
	"github.com/fzdarsky/quietplanet/pkg/srp"
	"github.com/fzdarsky/quietplanet/pkg/tokenseal"
)

const (
	defaultTimeout  = 30 * time.Second
	contentTypeJSON = "application/json"
	maxRetries      = 3
	initialBackoff  = 500 * time.Millisecond
	maxBackoff      = 5 * time.Second
)

// Client is an HTTP client for the QuietPlanet API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	group      *srp.Group
	token      string
}

// NewClient creates a client for the server in cfg. Unknown server certificates are
// passed to accept unless cfg names a CA bundle.
func NewClient(cfg *config.Config, accept cliTLS.AcceptFunc) (*Client, error) {
	transport, err := newTransport(cfg, accept)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	return NewWithHTTPClient(cfg.BaseURL(), &http.Client{
		Transport: transport,
		Timeout:   defaultTimeout,
	}), nil
}

// NewWithHTTPClient creates a client for baseURL using httpClient as is.
func NewWithHTTPClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		group:      srp.DefaultGroup,
	}
}

// SetToken sets the bearer token for authenticated requests.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Register creates an account. Only the salt and verifier are sent.
func (c *Client) Register(ctx context.Context, username, password string) error {
	reg, err := srp.NewRegistration(c.group, password)
	if err != nil {
		return fmt.Errorf("failed to derive verifier: %w", err)
	}

	return c.do(ctx, http.MethodPost, "/api/register", protocol.RegisterRequest{
		Username: username,
		Salt:     reg.Salt,
		Verifier: reg.Verifier,
	}, nil)
}

// Login runs the SRP-6a handshake, checks the server proof and opens the sealed token.
// The returned session is not stored.
func (c *Client) Login(ctx context.Context, username, password string) (*session.Session, error) {
	srpClient, err := srp.NewClient(c.group, password)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}
	defer srpClient.ClearSecrets()

	var challenge protocol.LoginStartResponse
	if err := c.do(ctx, http.MethodPost, "/api/login/start", protocol.LoginStartRequest{
		Username: username,
		A:        srpClient.PublicKey(),
	}, &challenge); err != nil {
		return nil, fmt.Errorf("login start failed: %w", err)
	}

	if err := srpClient.ProcessChallenge(challenge.Salt, challenge.B); err != nil {
		return nil, fmt.Errorf("invalid server challenge: %w", err)
	}

	proof, err := srpClient.WireProof()
	if err != nil {
		return nil, fmt.Errorf("failed to compute proof: %w", err)
	}

	var verified protocol.LoginVerifyResponse
	if err := c.do(ctx, http.MethodPost, "/api/login/verify", protocol.LoginVerifyRequest{
		AttemptID: challenge.AttemptID,
		M1:        proof,
	}, &verified); err != nil {
		return nil, fmt.Errorf("login verify failed: %w", err)
	}

	if err := srpClient.VerifyServerProof(verified.M2); err != nil {
		return nil, fmt.Errorf("server authentication failed: %w", err)
	}

	token, err := tokenseal.Open(srpClient.SessionKey(), &tokenseal.Sealed{
		Ciphertext: verified.Token,
		IV:         verified.IV,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open token: %w", err)
	}

	c.token = string(token)

	sess := &session.Session{Username: username, Token: c.token}
	if me, err := c.WhoAmI(ctx); err == nil {
		sess.ExpiresAt = me.ExpiresAt
	}
	return sess, nil
}

// WhoAmI describes the bearer of the current token.
func (c *Client) WhoAmI(ctx context.Context) (*protocol.WhoAmIResponse, error) {
	var me protocol.WhoAmIResponse
	if err := c.do(ctx, http.MethodGet, "/api/me", nil, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

// Logout records a logout for the current token's user.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/login/logout", nil, nil)
}

// AssignRole changes a user's role. Requires an Admin token.
func (c *Client) AssignRole(ctx context.Context, username, role string) error {
	return c.do(ctx, http.MethodPut, "/api/admin/role", protocol.RoleUpdateRequest{
		Username: username,
		Role:     role,
	}, nil)
}

// do sends a JSON request and decodes a JSON response into out. Only GET requests are
// retried; login attempts are single use.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	retries := 0
	if method == http.MethodGet {
		retries = maxRetries
	}

	var lastErr error
	backoff := initialBackoff

	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
		}

		respBody, status, header, err := c.roundTrip(ctx, method, path, payload)
		if err != nil {
			if isRetryable(err) {
				lastErr = fmt.Errorf("request failed (attempt %d/%d): %w", attempt+1, retries+1, err)
				continue
			}
			return fmt.Errorf("request failed: %w", err)
		}

		if status >= http.StatusBadRequest {
			apiErr := parseAPIError(status, header, respBody)
			if status >= http.StatusInternalServerError {
				lastErr = apiErr
				continue
			}
			return apiErr
		}

		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("failed to parse response (invalid JSON): %w", err)
			}
		}
		return nil
	}

	return lastErr
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte) ([]byte, int, http.Header, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, resp.StatusCode, resp.Header, nil
}

// isRetryable checks if an error is transient and should be retried.
func isRetryable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsTemporary {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// APIError is an error response from the server.
type APIError struct {
	Status     int
	Code       protocol.ErrorCode
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	if e.Code == protocol.ErrCodeRateLimitExceeded && e.RetryAfter > 0 {
		return fmt.Sprintf("%s, retry in %s (HTTP %d)", e.Message, e.RetryAfter, e.Status)
	}
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
}

// IsCode reports whether err is an APIError with code.
func IsCode(err error, code protocol.ErrorCode) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

func parseAPIError(status int, header http.Header, body []byte) *APIError {
	apiErr := &APIError{Status: status}

	var resp protocol.ErrorResponse
	if err := json.Unmarshal(body, &resp); err == nil {
		apiErr.Code = resp.Code
		apiErr.Message = resp.Message
	}

	if secs, err := strconv.Atoi(header.Get("Retry-After")); err == nil && secs > 0 {
		apiErr.RetryAfter = time.Duration(secs) * time.Second
	}

	if apiErr.Message == "" {
		switch status {
		case http.StatusUnauthorized:
			apiErr.Message = "Session expired or invalid. Run 'qp login' to re-authenticate"
		case http.StatusServiceUnavailable:
			apiErr.Message = "service unavailable - try again later"
		}
	}
	return apiErr
}
