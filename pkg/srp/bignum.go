package srp

import (
	"crypto/subtle"
	"fmt"
	"io"
	"math/big"
)

const (
	// exponentBytes is the size of sampled private exponents (256 bits).
	exponentBytes = 32

	// saltBytes is the size of registration salts (128 bits).
	saltBytes = 16

	// digestBytes is the width of a SHA-256 digest.
	digestBytes = 32
)

// ParseInt parses a canonical non-negative decimal integer.
// Signs, whitespace, leading zeros (other than "0" itself) and non-digit characters are rejected
// with a *ParseError.
func ParseInt(s string) (*big.Int, error) {
	if s == "" || len(s) > 4096 {
		return nil, &ParseError{Input: s}
	}
	if len(s) > 1 && s[0] == '0' {
		return nil, &ParseError{Input: s}
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return nil, &ParseError{Input: s}
		}
	}

	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, &ParseError{Input: s}
	}
	return n, nil
}

// FormatInt returns the canonical decimal form of x.
func FormatInt(x *big.Int) string {
	return x.Text(10)
}

// Mod reduces x into [0, N).
func (g *Group) Mod(x *big.Int) *big.Int {
	// big.Int.Mod is Euclidean, so negative inputs land in [0, N) as well.
	return new(big.Int).Mod(x, g.n)
}

// ModAdd returns (x + y) mod N.
func (g *Group) ModAdd(x, y *big.Int) *big.Int {
	sum := new(big.Int).Add(x, y)
	return sum.Mod(sum, g.n)
}

// ModMul returns (x * y) mod N.
func (g *Group) ModMul(x, y *big.Int) *big.Int {
	prod := new(big.Int).Mul(x, y)
	return prod.Mod(prod, g.n)
}

// ModPow returns base^exp mod N. The base is reduced into [0, N) first, so a negative base
// yields the same result as its positive representative.
func (g *Group) ModPow(base, exp *big.Int) *big.Int {
	return new(big.Int).Exp(g.Mod(base), exp, g.n)
}

// isZeroMod reports whether x ≡ 0 (mod N).
func (g *Group) isZeroMod(x *big.Int) bool {
	return g.Mod(x).Sign() == 0
}

// EqualDigest compares two digest-sized integers in constant time. Values wider than a digest
// never match.
func EqualDigest(x, y *big.Int) bool {
	if x == nil || y == nil || x.Sign() < 0 || y.Sign() < 0 {
		return false
	}
	if x.BitLen() > digestBytes*8 || y.BitLen() > digestBytes*8 {
		return false
	}

	var xb, yb [digestBytes]byte
	x.FillBytes(xb[:])
	y.FillBytes(yb[:])

	return subtle.ConstantTimeCompare(xb[:], yb[:]) == 1
}

// randomExponent samples a 256-bit private exponent with the top bit set, so every exponent
// has the same bit length.
func randomExponent(r io.Reader) (*big.Int, error) {
	buf := make([]byte, exponentBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("failed to generate random exponent: %w", err)
	}
	buf[0] |= 0x80

	exp := new(big.Int).SetBytes(buf)
	clear(buf)
	return exp, nil
}

// randomSalt samples a 128-bit salt.
func randomSalt(r io.Reader) (*big.Int, error) {
	buf := make([]byte, saltBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return new(big.Int).SetBytes(buf), nil
}

// wipe zeroes the given integers in place.
func wipe(values ...*big.Int) {
	for _, v := range values {
		if v != nil {
			v.SetInt64(0)
		}
	}
}
