package srp

import "errors"

var (
	// ErrInvalidPublicKey is returned when a peer's public key is ≡ 0 (mod N).
	ErrInvalidPublicKey = errors.New("invalid public key")

	// ErrInvalidVerifier is returned when a verifier is outside (0, N).
	ErrInvalidVerifier = errors.New("invalid verifier")

	// ErrProofMismatch is returned when a proof does not match the expected value.
	ErrProofMismatch = errors.New("proof mismatch")

	// ErrInvalidState is returned when a handshake method is called out of order.
	ErrInvalidState = errors.New("invalid handshake state")
)

// ParseError reports a malformed numeric or wire field. The message never includes the input.
type ParseError struct {
	Input string
}

func (e *ParseError) Error() string {
	return "malformed numeric value"
}
