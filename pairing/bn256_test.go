package pairing

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBN256Bilinearity(t *testing.T) {
	s := NewBN256Suite()

	a, err := s.RandScalar()
	require.NoError(t, err)
	b, err := s.RandScalar()
	require.NoError(t, err)

	g1, g2 := s.G1().Base(), s.G2().Base()

	// e(g1^a, g2^b) == e(g1, g2)^(a*b)
	lhs := s.Pair(s.G1().Exp(g1, a), s.G2().Exp(g2, b))
	ab := new(big.Int).Mod(new(big.Int).Mul(a, b), s.Order())
	rhs := s.GT().Exp(s.Pair(g1, g2), ab)

	assert.True(t, bytes.Equal(lhs.Bytes(), rhs.Bytes()))
}

func TestBN256GroupLaws(t *testing.T) {
	s := NewBN256Suite()

	for _, g := range []Group{s.G1(), s.G2(), s.GT()} {
		base := g.Base()

		assert.True(t, bytes.Equal(g.Op(base, g.Identity()).Bytes(), base.Bytes()))
		assert.True(t, bytes.Equal(g.Op(base, g.Inverse(base)).Bytes(), g.Identity().Bytes()))

		two := g.Exp(base, big.NewInt(2))
		assert.True(t, bytes.Equal(two.Bytes(), g.Op(base, base).Bytes()))
	}
}

func TestBN256ExpReducesScalar(t *testing.T) {
	s := NewBN256Suite()
	g := s.G1()
	base := g.Base()

	k := big.NewInt(5)
	shifted := new(big.Int).Add(k, s.Order())
	assert.True(t, bytes.Equal(g.Exp(base, k).Bytes(), g.Exp(base, shifted).Bytes()))

	neg := new(big.Int).Neg(big.NewInt(1))
	assert.True(t, bytes.Equal(g.Exp(base, neg).Bytes(), g.Inverse(base).Bytes()))
}

func TestBN256DecodeRoundtrip(t *testing.T) {
	s := NewBN256Suite()

	k, err := s.RandScalar()
	require.NoError(t, err)

	for _, g := range []Group{s.G1(), s.G2(), s.GT()} {
		p := g.Exp(g.Base(), k)
		decoded, err := g.Decode(p.Bytes())
		require.NoError(t, err)
		assert.True(t, bytes.Equal(p.Bytes(), decoded.Bytes()))
	}
}

func TestBN256DecodeCorrupt(t *testing.T) {
	s := NewBN256Suite()

	for _, g := range []Group{s.G1(), s.G2(), s.GT()} {
		_, err := g.Decode([]byte{0x01, 0x02, 0x03})
		require.Error(t, err)
		var be *BackendError
		assert.ErrorAs(t, err, &be)
	}
}

func TestBN256HashToG1Deterministic(t *testing.T) {
	s := NewBN256Suite()

	first := s.HashToG1([]byte("DOCTOR"))
	second := s.HashToG1([]byte("DOCTOR"))
	other := s.HashToG1([]byte("NURSE"))

	assert.True(t, bytes.Equal(first.Bytes(), second.Bytes()))
	assert.False(t, bytes.Equal(first.Bytes(), other.Bytes()))
}

func TestBN256RandScalarRange(t *testing.T) {
	s := NewBN256Suite()
	for i := 0; i < 16; i++ {
		k, err := s.RandScalar()
		require.NoError(t, err)
		assert.True(t, k.Sign() >= 0 && k.Cmp(s.Order()) < 0)
	}
}

func TestBN256RandGT(t *testing.T) {
	s := NewBN256Suite()
	a, err := s.RandGT()
	require.NoError(t, err)
	b, err := s.RandGT()
	require.NoError(t, err)
	assert.False(t, bytes.Equal(a.Bytes(), b.Bytes()))
}

func TestNewSuite(t *testing.T) {
	s, err := NewSuite(SuiteBN256)
	require.NoError(t, err)
	assert.Equal(t, SuiteBN256, s.Name())

	_, err = NewSuite("bls12-381")
	assert.Error(t, err)
}
