package srp

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"
)

// Option configures a Client, Server or registration.
type Option func(*options)

type options struct {
	random io.Reader
}

// WithRandom overrides the randomness source. Only deterministic tests should use it.
func WithRandom(r io.Reader) Option {
	return func(o *options) {
		o.random = r
	}
}

func buildOptions(opts []Option) options {
	o := options{random: rand.Reader}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Registration holds the values a client sends to register a user.
type Registration struct {
	Salt     string
	Verifier string
}

// NewRegistration samples a fresh salt and derives the verifier for password.
func NewRegistration(group *Group, password string, opts ...Option) (*Registration, error) {
	o := buildOptions(opts)

	salt, err := randomSalt(o.random)
	if err != nil {
		return nil, err
	}

	saltStr := FormatInt(salt)
	return &Registration{
		Salt:     saltStr,
		Verifier: FormatInt(group.ComputeVerifier(saltStr, password)),
	}, nil
}

// ComputeVerifier returns v = g^x mod N with x = H(salt || password).
func (g *Group) ComputeVerifier(salt, password string) *big.Int {
	x := ComputeX(salt, password)
	defer wipe(x)
	return g.ModPow(g.g, x)
}

// ClientPremaster computes S = (B - k*g^x)^(a + u*x) mod N.
// The difference B - k*g^x is usually negative; it is renormalized into [0, N) before
// exponentiation.
//
//nolint:gocritic // B is capitalized per SRP-6a notation
func (g *Group) ClientPremaster(B, x, a, u *big.Int) *big.Int {
	kgx := new(big.Int).Mul(g.k, g.ModPow(g.g, x))
	base := new(big.Int).Sub(B, kgx)

	exp := new(big.Int).Mul(u, x)
	exp.Add(exp, a)

	S := g.ModPow(base, exp)
	wipe(base, exp, kgx)
	return S
}

// Client is the client half of one login attempt.
type Client struct {
	group    *Group
	password string

	a *big.Int // ephemeral private value
	A *big.Int // ephemeral public value

	B  *big.Int
	S  *big.Int // shared secret
	K  *big.Int // session key, H(S)
	M1 *big.Int
}

// NewClient samples a fresh ephemeral key pair for a login attempt.
// A = g^a mod N, resampled while A ≡ 0 (mod N).
func NewClient(group *Group, password string, opts ...Option) (*Client, error) {
	o := buildOptions(opts)

	c := &Client{
		group:    group,
		password: password,
	}

	for {
		a, err := randomExponent(o.random)
		if err != nil {
			return nil, err
		}

		A := group.ModPow(group.g, a)
		if !group.isZeroMod(A) {
			c.a = a
			c.A = A
			return c, nil
		}
		wipe(a)
	}
}

// PublicKey returns A in decimal form.
func (c *Client) PublicKey() string {
	return FormatInt(c.A)
}

// ProcessChallenge consumes the server's salt and B and derives S, K and M1.
//
//nolint:gocritic // serverB is the SRP B value
func (c *Client) ProcessChallenge(salt, serverB string) error {
	if c.a == nil {
		return ErrInvalidState
	}

	B, err := ParseInt(serverB)
	if err != nil {
		return err
	}
	if c.group.isZeroMod(B) {
		return ErrInvalidPublicKey
	}

	x := ComputeX(salt, c.password)
	defer wipe(x)

	u := ComputeU(c.A, B)
	if u.Sign() == 0 {
		return ErrInvalidPublicKey
	}

	c.B = B
	c.S = c.group.ClientPremaster(B, x, c.a, u)
	c.K = ComputeSessionKey(c.S)
	c.M1 = ComputeClientProof(c.A, B, c.K)

	return nil
}

// Proof returns M1 in decimal form.
func (c *Client) Proof() (string, error) {
	if c.M1 == nil {
		return "", ErrInvalidState
	}
	return FormatInt(c.M1), nil
}

// WireProof returns the "A|M1" form expected by the verify endpoint.
func (c *Client) WireProof() (string, error) {
	m1, err := c.Proof()
	if err != nil {
		return "", err
	}
	return FormatWireProof(c.PublicKey(), m1), nil
}

// VerifyServerProof checks the server's M2 = H(A || M1 || K) in constant time.
//
//nolint:gocritic // serverM2 is the SRP M2 value
func (c *Client) VerifyServerProof(serverM2 string) error {
	if c.M1 == nil || c.K == nil {
		return ErrInvalidState
	}

	M2, err := ParseInt(serverM2)
	if err != nil {
		return err
	}

	expected := ComputeServerProof(c.A, c.M1, c.K)
	if !EqualDigest(M2, expected) {
		return fmt.Errorf("server authentication failed: %w", ErrProofMismatch)
	}
	return nil
}

// SessionKey returns the 32-byte session key. It is nil until ProcessChallenge succeeds.
func (c *Client) SessionKey() []byte {
	if c.K == nil {
		return nil
	}
	return sessionKeyBytes(c.K)
}

// ClearSecrets clears sensitive values from memory.
func (c *Client) ClearSecrets() {
	c.password = ""
	wipe(c.a, c.S, c.K, c.M1)
	c.a = nil
	c.S = nil
	c.K = nil
	c.M1 = nil
}

// FormatWireProof joins A and M1 as "A|M1".
//
//nolint:gocritic // A and M1 are capitalized per SRP-6a notation
func FormatWireProof(A, M1 string) string {
	return A + "|" + M1
}

// ParseWireProof splits an "A|M1" proof into its parts and checks both are canonical decimals.
//
//nolint:gocritic // A and M1 are capitalized per SRP-6a notation
func ParseWireProof(s string) (A, M1 string, err error) {
	A, M1, ok := strings.Cut(s, "|")
	if !ok {
		return "", "", &ParseError{Input: s}
	}
	if _, err := ParseInt(A); err != nil {
		return "", "", err
	}
	if _, err := ParseInt(M1); err != nil {
		return "", "", err
	}
	return A, M1, nil
}
