// Package auth implements the SRP-6a registration and login flow for the QuietPlanet service,
// together with the stores, rate limiting and bearer tokens it relies on.
package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/fzdarsky/quietplanet/internal/credstore"
	"github.com/fzdarsky/quietplanet/internal/logging"
	"github.com/fzdarsky/quietplanet/pkg/srp"
	"github.com/fzdarsky/quietplanet/pkg/tokenseal"
)

const (
	// DefaultHandshakeTTL bounds the time between login start and verify.
	DefaultHandshakeTTL = 5 * time.Minute

	// MaxUsernameLength is the longest accepted username in bytes.
	MaxUsernameLength = 64

	dummySecretSize = 32
)

// StartResult is returned by Start.
type StartResult struct {
	AttemptID string
	B         string
	Salt      string
}

// LoginResult is returned by a successful Verify.
type LoginResult struct {
	Username string
	Role     credstore.Role
	M2       string
	Sealed   *tokenseal.Sealed
}

// AuthenticatorOption configures an Authenticator.
type AuthenticatorOption func(*Authenticator)

// WithHandshakeTTL sets how long a login attempt stays valid.
func WithHandshakeTTL(ttl time.Duration) AuthenticatorOption {
	return func(a *Authenticator) {
		if ttl > 0 {
			a.handshakeTTL = ttl
		}
	}
}

// WithDummySecret sets the key for fake credentials of unknown users. Instances sharing a
// handshake store should share this secret so their responses agree.
func WithDummySecret(secret []byte) AuthenticatorOption {
	return func(a *Authenticator) {
		if len(secret) > 0 {
			a.dummy.secret = append([]byte(nil), secret...)
		}
	}
}

// WithIDGenerator replaces the attempt id generator.
func WithIDGenerator(fn func() string) AuthenticatorOption {
	return func(a *Authenticator) {
		if fn != nil {
			a.newID = fn
		}
	}
}

// Authenticator runs registration and the two-step login.
type Authenticator struct {
	server       *srp.Server
	creds        credstore.Store
	handshakes   HandshakeStore
	tokens       *TokenIssuer
	logger       *logging.Logger
	dummy        dummyCredentials
	handshakeTTL time.Duration
	newID        func() string
}

// NewAuthenticator wires the login flow to its collaborators.
func NewAuthenticator(
	server *srp.Server,
	creds credstore.Store,
	handshakes HandshakeStore,
	tokens *TokenIssuer,
	logger *logging.Logger,
	opts ...AuthenticatorOption,
) (*Authenticator, error) {
	if server == nil || creds == nil || handshakes == nil || tokens == nil || logger == nil {
		return nil, errors.New("authenticator: missing dependency")
	}

	a := &Authenticator{
		server:       server,
		creds:        creds,
		handshakes:   handshakes,
		tokens:       tokens,
		logger:       logger,
		dummy:        dummyCredentials{group: server.Group()},
		handshakeTTL: DefaultHandshakeTTL,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.dummy.secret == nil {
		secret := make([]byte, dummySecretSize)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate dummy secret: %w", err)
		}
		a.dummy.secret = secret
	}

	return a, nil
}

// ValidateUsername checks a username is non-empty, at most MaxUsernameLength bytes of valid
// UTF-8 and free of control characters.
func ValidateUsername(username string) error {
	if username == "" || len(username) > MaxUsernameLength || !utf8.ValidString(username) {
		return ErrBadRequest
	}
	for _, r := range username {
		if unicode.IsControl(r) {
			return ErrBadRequest
		}
	}
	return nil
}

// Register stores a salt and verifier computed by the client.
func (a *Authenticator) Register(ctx context.Context, username, salt, verifier string) error {
	if err := ValidateUsername(username); err != nil {
		return err
	}
	if _, err := srp.ParseInt(salt); err != nil {
		return ErrBadRequest
	}
	v, err := srp.ParseInt(verifier)
	if err != nil {
		return ErrBadRequest
	}
	if v.Sign() == 0 || v.Cmp(a.server.Group().N()) >= 0 {
		return ErrBadRequest
	}

	if err := a.creds.Register(ctx, username, salt, verifier); err != nil {
		if errors.Is(err, credstore.ErrAlreadyExists) {
			return ErrAlreadyExists
		}
		a.logger.ErrorContext(ctx, "failed to register user", map[string]any{
			"username": username,
			"error":    err.Error(),
		})
		return fmt.Errorf("%w: register", ErrInternal)
	}

	a.logger.InfoContext(ctx, "user registered", map[string]any{"username": username})
	return nil
}

// Start begins a login attempt. Unknown usernames get a challenge built from deterministic
// fake credentials, so the response does not reveal whether the user exists.
// clientA is optional; when given, Verify must present the same A.
//
//nolint:gocritic // clientA is the SRP A value
func (a *Authenticator) Start(ctx context.Context, username, clientA string) (*StartResult, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if clientA != "" {
		if _, err := srp.ParseInt(clientA); err != nil {
			return nil, ErrBadRequest
		}
	}

	// Computed for every request so known and unknown users cost the same.
	salt, verifier := a.dummy.forUser(username)

	record, err := a.creds.Lookup(ctx, username)
	switch {
	case err == nil:
		salt, verifier = record.Salt, record.Verifier
	case errors.Is(err, credstore.ErrNotFound):
		a.logger.DebugContext(ctx, "login start for unknown user", map[string]any{"username": username})
	default:
		a.logger.ErrorContext(ctx, "failed to look up user", map[string]any{
			"username": username,
			"error":    err.Error(),
		})
		return nil, fmt.Errorf("%w: lookup", ErrInternal)
	}

	state, err := a.server.Start(username, salt, verifier, clientA)
	if err != nil {
		if errors.Is(err, srp.ErrInvalidPublicKey) {
			return nil, ErrBadRequest
		}
		a.logger.ErrorContext(ctx, "failed to start handshake", map[string]any{
			"username": username,
			"error":    err.Error(),
		})
		return nil, fmt.Errorf("%w: start", ErrInternal)
	}

	data, err := state.Marshal()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	id := a.newID()
	if err := a.handshakes.Put(ctx, id, data, a.handshakeTTL); err != nil {
		a.logger.ErrorContext(ctx, "failed to store handshake state", map[string]any{"error": err.Error()})
		return nil, fmt.Errorf("%w: store handshake", ErrInternal)
	}

	return &StartResult{
		AttemptID: id,
		B:         state.PublicB,
		Salt:      state.Salt,
	}, nil
}

// Verify completes a login attempt with the client's "A|M1" proof. The attempt is consumed
// before the proof is checked, whatever the outcome.
func (a *Authenticator) Verify(ctx context.Context, attemptID, wireProof string) (*LoginResult, error) {
	if attemptID == "" {
		return nil, ErrSessionExpired
	}

	data, err := a.handshakes.Get(ctx, attemptID)
	if err != nil {
		if errors.Is(err, ErrHandshakeNotFound) {
			return nil, ErrSessionExpired
		}
		a.logger.ErrorContext(ctx, "failed to load handshake state", map[string]any{"error": err.Error()})
		return nil, fmt.Errorf("%w: load handshake", ErrInternal)
	}

	cleared, err := a.handshakes.Clear(ctx, attemptID)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to clear handshake state", map[string]any{"error": err.Error()})
		return nil, fmt.Errorf("%w: clear handshake", ErrInternal)
	}
	if !cleared {
		// A concurrent verify consumed the attempt first.
		return nil, ErrSessionExpired
	}

	state, err := srp.UnmarshalServerHandshakeState(data)
	clear(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	clientA, clientM1, err := srp.ParseWireProof(wireProof)
	if err != nil {
		return nil, ErrBadRequest
	}

	result, err := a.server.Verify(state, clientA, clientM1)
	if err != nil {
		switch {
		case errors.Is(err, srp.ErrProofMismatch):
			a.logger.WarnContext(ctx, "login proof mismatch", map[string]any{"username": state.Username})
			return nil, ErrAuthenticationFailed
		case errors.Is(err, srp.ErrInvalidPublicKey):
			return nil, ErrBadRequest
		default:
			a.logger.ErrorContext(ctx, "failed to verify proof", map[string]any{"error": err.Error()})
			return nil, fmt.Errorf("%w: verify", ErrInternal)
		}
	}
	defer clear(result.SessionKey)

	record, err := a.creds.Lookup(ctx, state.Username)
	if err != nil {
		if errors.Is(err, credstore.ErrNotFound) {
			// Matching a dummy verifier needs the server secret, but never grant it.
			return nil, ErrAuthenticationFailed
		}
		return nil, fmt.Errorf("%w: lookup", ErrInternal)
	}

	token, err := a.tokens.Issue(record.Username, record.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	sealed, err := tokenseal.Seal(result.SessionKey, []byte(token))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	if err := a.creds.LogAuthEvent(ctx, record.Username, credstore.EventLogin); err != nil {
		a.logger.ErrorContext(ctx, "failed to record login", map[string]any{
			"username": record.Username,
			"error":    err.Error(),
		})
		return nil, fmt.Errorf("%w: log event", ErrInternal)
	}

	a.logger.InfoContext(ctx, "user logged in", map[string]any{
		"username": record.Username,
		"role":     string(record.Role),
	})

	return &LoginResult{
		Username: record.Username,
		Role:     record.Role,
		M2:       result.M2,
		Sealed:   sealed,
	}, nil
}

// Logout records a logout event. Issued tokens stay valid until they expire.
func (a *Authenticator) Logout(ctx context.Context, username string) error {
	if err := a.creds.LogAuthEvent(ctx, username, credstore.EventLogout); err != nil {
		a.logger.ErrorContext(ctx, "failed to record logout", map[string]any{
			"username": username,
			"error":    err.Error(),
		})
		return fmt.Errorf("%w: log event", ErrInternal)
	}
	a.logger.InfoContext(ctx, "user logged out", map[string]any{"username": username})
	return nil
}

// AssignRole changes a user's role.
func (a *Authenticator) AssignRole(ctx context.Context, username, role string) error {
	parsed, err := credstore.ParseRole(role)
	if err != nil {
		return ErrBadRequest
	}
	if err := ValidateUsername(username); err != nil {
		return err
	}

	if err := a.creds.UpdateRole(ctx, username, parsed); err != nil {
		if errors.Is(err, credstore.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: update role", ErrInternal)
	}

	a.logger.InfoContext(ctx, "role updated", map[string]any{
		"username": username,
		"role":     role,
	})
	return nil
}

// Tokens returns the issuer used to sign and verify bearer tokens.
func (a *Authenticator) Tokens() *TokenIssuer {
	return a.tokens
}
