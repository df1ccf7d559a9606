package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"math/big"

	"github.com/fzdarsky/quietplanet/pkg/srp"
)

// dummyCredentials derives a stable fake salt and verifier for usernames without a record.
// Both are keyed by a server secret so they cannot be told apart from real ones.
type dummyCredentials struct {
	group  *srp.Group
	secret []byte
}

func (d *dummyCredentials) mac(label, username string) []byte {
	h := hmac.New(sha256.New, d.secret)
	h.Write([]byte(label))
	h.Write([]byte{0})
	h.Write([]byte(username))
	return h.Sum(nil)
}

// forUser returns the dummy salt and verifier in decimal form.
func (d *dummyCredentials) forUser(username string) (salt, verifier string) {
	// Salts are 128 bits, like registration salts.
	salt = srp.FormatInt(new(big.Int).SetBytes(d.mac("salt", username)[:16]))
	password := hex.EncodeToString(d.mac("password", username))
	verifier = srp.FormatInt(d.group.ComputeVerifier(salt, password))
	return salt, verifier
}
