package srp_test

import (
	"math/big"
	"testing"

	"github.com/fzdarsky/quietplanet/pkg/srp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInt(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "zero", input: "0", want: "0"},
		{name: "small", input: "23", want: "23"},
		{name: "large", input: "340282366920938463463374607431768211456", want: "340282366920938463463374607431768211456"},
		{name: "empty", input: "", wantErr: true},
		{name: "leading zero", input: "023", wantErr: true},
		{name: "negative", input: "-5", wantErr: true},
		{name: "plus sign", input: "+5", wantErr: true},
		{name: "whitespace", input: " 5", wantErr: true},
		{name: "trailing garbage", input: "5x", wantErr: true},
		{name: "hex", input: "0x1f", wantErr: true},
		{name: "decimal point", input: "1.5", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := srp.ParseInt(tt.input)
			if tt.wantErr {
				var parseErr *srp.ParseError
				require.ErrorAs(t, err, &parseErr)
				// The message never echoes the rejected value.
				assert.Equal(t, "malformed numeric value", err.Error())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, srp.FormatInt(n))
		})
	}
}

func TestGroup_ModArithmetic(t *testing.T) {
	group, err := srp.NewGroup(big.NewInt(23), big.NewInt(5))
	require.NoError(t, err)

	assert.Equal(t, int64(3), group.ModAdd(big.NewInt(20), big.NewInt(6)).Int64())
	assert.Equal(t, int64(13), group.ModMul(big.NewInt(7), big.NewInt(15)).Int64())
	assert.Equal(t, int64(20), group.Mod(big.NewInt(-3)).Int64())

	// 5^3 = 125 = 5*23 + 10
	assert.Equal(t, int64(10), group.ModPow(big.NewInt(5), big.NewInt(3)).Int64())

	// A negative base is reduced to its positive representative first.
	assert.Equal(t, group.ModPow(big.NewInt(20), big.NewInt(2)).String(), group.ModPow(big.NewInt(-3), big.NewInt(2)).String())
	assert.Equal(t, int64(9), group.ModPow(big.NewInt(-3), big.NewInt(2)).Int64())
	assert.Equal(t, int64(20), group.ModPow(big.NewInt(-3), big.NewInt(1)).Int64())
}

func TestNewGroup_Invalid(t *testing.T) {
	tests := []struct {
		name string
		n    *big.Int
		g    *big.Int
	}{
		{name: "nil modulus", n: nil, g: big.NewInt(2)},
		{name: "tiny modulus", n: big.NewInt(2), g: big.NewInt(1)},
		{name: "zero generator", n: big.NewInt(23), g: big.NewInt(0)},
		{name: "generator equal to modulus", n: big.NewInt(23), g: big.NewInt(23)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := srp.NewGroup(tt.n, tt.g)
			assert.Error(t, err)
		})
	}
}

func TestDefaultGroup(t *testing.T) {
	group := srp.DefaultGroup

	assert.Equal(t, 1024, group.N().BitLen())
	assert.Equal(t, int64(2), group.G().Int64())
	assert.True(t, group.N().ProbablyPrime(20))
	assert.Equal(t, srp.Hash(srp.FormatInt(group.N()), "2").String(), group.K().String())

	// Accessors return copies.
	group.N().SetInt64(0)
	assert.Equal(t, 1024, group.N().BitLen())
}

func TestEqualDigest(t *testing.T) {
	a := srp.Hash("a")
	b := srp.Hash("b")
	wide := new(big.Int).Lsh(big.NewInt(1), 256)

	assert.True(t, srp.EqualDigest(a, new(big.Int).Set(a)))
	assert.False(t, srp.EqualDigest(a, b))
	assert.False(t, srp.EqualDigest(a, nil))
	assert.False(t, srp.EqualDigest(wide, wide))
	assert.False(t, srp.EqualDigest(big.NewInt(-1), big.NewInt(-1)))
	assert.True(t, srp.EqualDigest(big.NewInt(7), big.NewInt(7)))
}

func TestHash_DecimalConcatenation(t *testing.T) {
	// Parts are concatenated before hashing.
	assert.Equal(t, srp.Hash("235").String(), srp.Hash("23", "5").String())
	assert.Equal(t, srp.Hash("abcpw").String(), srp.ComputeX("abc", "pw").String())
	assert.Equal(t, srp.Hash("1020").String(), srp.ComputeU(big.NewInt(10), big.NewInt(20)).String())
}
