package srp

import (
	"crypto/sha256"
	"math/big"
)

// Hash returns SHA-256 over the concatenation of parts, read as a big-endian unsigned integer.
// Callers pass the decimal form of integers (see FormatInt); the order of parts is part of the
// protocol.
func Hash(parts ...string) *big.Int {
	sum := hashBytes(parts...)
	return new(big.Int).SetBytes(sum[:])
}

func hashBytes(parts ...string) [sha256.Size]byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
	}

	var out [sha256.Size]byte
	h.Sum(out[:0])
	return out
}

// ComputeX derives the private key x = H(salt || password).
func ComputeX(salt, password string) *big.Int {
	return Hash(salt, password)
}

// ComputeU derives the scrambling parameter u = H(A || B).
//
//nolint:gocritic // A and B are capitalized per SRP-6a notation
func ComputeU(A, B *big.Int) *big.Int {
	return Hash(FormatInt(A), FormatInt(B))
}

// ComputeSessionKey derives K = H(S).
//
//nolint:gocritic // S is capitalized per SRP-6a notation
func ComputeSessionKey(S *big.Int) *big.Int {
	return Hash(FormatInt(S))
}

// ComputeClientProof derives M1 = H(A || B || K).
//
//nolint:gocritic // A, B and K are capitalized per SRP-6a notation
func ComputeClientProof(A, B, K *big.Int) *big.Int {
	return Hash(FormatInt(A), FormatInt(B), FormatInt(K))
}

// ComputeServerProof derives M2 = H(A || M1 || K).
//
//nolint:gocritic // A, M1 and K are capitalized per SRP-6a notation
func ComputeServerProof(A, M1, K *big.Int) *big.Int {
	return Hash(FormatInt(A), FormatInt(M1), FormatInt(K))
}

// sessionKeyBytes returns K as the 32-byte digest used as symmetric key material.
//
//nolint:gocritic // K is capitalized per SRP-6a notation
func sessionKeyBytes(K *big.Int) []byte {
	out := make([]byte, digestBytes)
	K.FillBytes(out)
	return out
}
