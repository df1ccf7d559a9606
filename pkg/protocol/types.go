package protocol

import "time"

// Big integers are carried as canonical decimal strings throughout.

// RegisterRequest registers a new user. The password never leaves the client.
type RegisterRequest struct {
	Username string `json:"username"`
	Salt     string `json:"salt"`
	Verifier string `json:"verifier"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// LoginStartRequest is step 1 of the SRP-6a login.
type LoginStartRequest struct {
	Username string `json:"username"`
	A        string `json:"A,omitempty"` // client ephemeral public key
}

// LoginStartResponse carries the server challenge.
type LoginStartResponse struct {
	B         string `json:"B"`
	Salt      string `json:"salt"`
	AttemptID string `json:"attempt_id"`
}

// LoginVerifyRequest is step 2 of the SRP-6a login.
type LoginVerifyRequest struct {
	// AttemptID may be omitted when the attempt cookie is sent instead.
	AttemptID string `json:"attempt_id,omitempty"`

	// M1 is "A|M1".
	M1 string `json:"M1"`
}

// LoginVerifyResponse carries the server proof and the sealed bearer token.
type LoginVerifyResponse struct {
	M2    string `json:"M2"`
	Token string `json:"token"` // base64 ciphertext of the bearer token
	IV    string `json:"iv"`    // base64 IV
}

// WhoAmIResponse describes the bearer of a token.
type WhoAmIResponse struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DonatorResponse is returned by the Donator-only endpoint.
type DonatorResponse struct {
	Message  string `json:"message"`
	Username string `json:"username"`
}

// RoleUpdateRequest assigns a role to a user.
type RoleUpdateRequest struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}
