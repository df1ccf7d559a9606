package srp

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
)

// ServerHandshakeState is everything the server keeps between login start and verify.
// It is serialized as JSON with decimal-string integers and stored under an attempt id.
type ServerHandshakeState struct {
	Username string `json:"username"`
	Salt     string `json:"salt"`
	Verifier string `json:"verifier"`
	PrivateB string `json:"private_b"`
	PublicB  string `json:"public_b"`

	// PublicA is set when the client supplied A at start. Verify then requires the same A.
	PublicA string `json:"public_a,omitempty"`
}

// Marshal encodes the state for storage.
func (s *ServerHandshakeState) Marshal() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode handshake state: %w", err)
	}
	return data, nil
}

// UnmarshalServerHandshakeState decodes a stored state.
func UnmarshalServerHandshakeState(data []byte) (*ServerHandshakeState, error) {
	var s ServerHandshakeState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode handshake state: %w", err)
	}
	return &s, nil
}

// ServerResult is the outcome of a successful verification.
type ServerResult struct {
	// M2 is the server proof in decimal form.
	M2 string

	// SessionKey is the 32-byte key material H(S).
	SessionKey []byte
}

// ServerPremaster computes S = (A * v^u mod N)^b mod N.
//
//nolint:gocritic // A is capitalized per SRP-6a notation
func (g *Group) ServerPremaster(A, v, u, b *big.Int) *big.Int {
	base := g.ModMul(A, g.ModPow(v, u))
	S := g.ModPow(base, b)
	wipe(base)
	return S
}

// Server is the server half of the handshake. It holds no per-attempt state and is safe for
// concurrent use.
type Server struct {
	group  *Group
	random io.Reader
}

// NewServer creates a server over group.
func NewServer(group *Group, opts ...Option) *Server {
	o := buildOptions(opts)
	return &Server{
		group:  group,
		random: o.random,
	}
}

// Group returns the server's group parameters.
func (s *Server) Group() *Group {
	return s.group
}

// Start begins a login attempt for a credential record.
// It samples b and computes B = (k*v + g^b) mod N, resampling while B ≡ 0 (mod N).
// clientA may be empty; when present it is validated and recorded in the state.
//
//nolint:gocritic // clientA is the SRP A value
func (s *Server) Start(username, salt, verifier, clientA string) (*ServerHandshakeState, error) {
	v, err := ParseInt(verifier)
	if err != nil {
		return nil, err
	}
	if v.Sign() == 0 || v.Cmp(s.group.n) >= 0 {
		return nil, ErrInvalidVerifier
	}

	if clientA != "" {
		A, err := ParseInt(clientA)
		if err != nil {
			return nil, err
		}
		if s.group.isZeroMod(A) {
			return nil, ErrInvalidPublicKey
		}
	}

	kv := s.group.ModMul(s.group.k, v)
	for {
		b, err := randomExponent(s.random)
		if err != nil {
			return nil, err
		}

		B := s.group.ModAdd(kv, s.group.ModPow(s.group.g, b))
		if s.group.isZeroMod(B) {
			wipe(b)
			continue
		}

		return &ServerHandshakeState{
			Username: username,
			Salt:     salt,
			Verifier: verifier,
			PrivateB: FormatInt(b),
			PublicB:  FormatInt(B),
			PublicA:  clientA,
		}, nil
	}
}

// Verify checks the client proof M1 against the stored state and returns the server proof
// and session key. Any failure is terminal for the attempt.
//
//nolint:gocritic // clientA and clientM1 are the SRP A and M1 values
func (s *Server) Verify(state *ServerHandshakeState, clientA, clientM1 string) (*ServerResult, error) {
	if state == nil {
		return nil, ErrInvalidState
	}

	A, err := ParseInt(clientA)
	if err != nil {
		return nil, err
	}
	M1, err := ParseInt(clientM1)
	if err != nil {
		return nil, err
	}
	if s.group.isZeroMod(A) {
		return nil, ErrInvalidPublicKey
	}
	if state.PublicA != "" && state.PublicA != clientA {
		return nil, ErrProofMismatch
	}

	v, err := ParseInt(state.Verifier)
	if err != nil {
		return nil, fmt.Errorf("corrupt handshake state: %w", err)
	}
	b, err := ParseInt(state.PrivateB)
	if err != nil {
		return nil, fmt.Errorf("corrupt handshake state: %w", err)
	}
	defer wipe(b)
	B, err := ParseInt(state.PublicB)
	if err != nil {
		return nil, fmt.Errorf("corrupt handshake state: %w", err)
	}

	u := ComputeU(A, B)
	S := s.group.ServerPremaster(A, v, u, b)
	defer wipe(S)

	K := ComputeSessionKey(S)
	defer wipe(K)

	expected := ComputeClientProof(A, B, K)
	if !EqualDigest(M1, expected) {
		return nil, ErrProofMismatch
	}

	return &ServerResult{
		M2:         FormatInt(ComputeServerProof(A, M1, K)),
		SessionKey: sessionKeyBytes(K),
	}, nil
}
