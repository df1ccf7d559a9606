// Package srp implements the SRP-6a password-authenticated key exchange used by QuietPlanet.
//
// Every hash input is the canonical decimal string of an integer (or a raw string such as the
// password), and every digest is read back as an unsigned big-endian integer. Values cross the
// wire as decimal strings.
package srp

import (
	"fmt"
	"math/big"
)

// defaultModulus is the 1024-bit safe prime shared with the browser client.
const defaultModulus = "167609434410335061345139523764350090260135525329813904557420930309800865859473551531551523800013916573891864789934747039010546328480848979516637673776605610374669426214776197828492691384519453218253702788022233205683635831626913357154941914129985489522629902540768368409482248290641036967659389658897350067939"

// DefaultGroup is the process-wide group used by the service. It is never mutated.
var DefaultGroup = mustGroup(defaultModulus, 2)

// Group holds the SRP group parameters. A Group is immutable once built and safe for
// concurrent use.
type Group struct {
	n *big.Int
	g *big.Int
	k *big.Int // k = H(N || g)
}

// NewGroup builds a group from a modulus and generator.
//
//nolint:gocritic // N is capitalized per SRP-6a notation
func NewGroup(N, g *big.Int) (*Group, error) {
	if N == nil || g == nil {
		return nil, fmt.Errorf("modulus and generator are required")
	}
	if N.Cmp(big.NewInt(3)) < 0 {
		return nil, fmt.Errorf("modulus too small")
	}
	if g.Sign() <= 0 || g.Cmp(N) >= 0 {
		return nil, fmt.Errorf("generator must be in [1, N)")
	}

	n := new(big.Int).Set(N)
	gen := new(big.Int).Set(g)

	return &Group{
		n: n,
		g: gen,
		k: Hash(FormatInt(n), FormatInt(gen)),
	}, nil
}

func mustGroup(modulus string, g int64) *Group {
	n, err := ParseInt(modulus)
	if err != nil {
		panic(fmt.Sprintf("srp: invalid built-in modulus: %v", err))
	}
	group, err := NewGroup(n, big.NewInt(g))
	if err != nil {
		panic(fmt.Sprintf("srp: invalid built-in group: %v", err))
	}
	return group
}

// N returns a copy of the modulus.
func (g *Group) N() *big.Int { return new(big.Int).Set(g.n) }

// G returns a copy of the generator.
func (g *Group) G() *big.Int { return new(big.Int).Set(g.g) }

// K returns a copy of the multiplier k = H(N || g).
func (g *Group) K() *big.Int { return new(big.Int).Set(g.k) }
