package pairing

import (
	"crypto/rand"
	"math/big"

	"github.com/fentec-project/bn256"
)

// SuiteBN256 names the pure-Go Barreto-Naehrig suite. It needs no cgo and
// is the default for deployments and tests.
const SuiteBN256 = "bn256"

type bn256Suite struct {
	g1 *bn256G1Group
	g2 *bn256G2Group
	gt *bn256GTGroup
}

// NewBN256Suite returns a Suite over the fentec-project bn256 groups.
func NewBN256Suite() Suite {
	return &bn256Suite{
		g1: &bn256G1Group{},
		g2: &bn256G2Group{},
		gt: &bn256GTGroup{},
	}
}

func (s *bn256Suite) Name() string    { return SuiteBN256 }
func (s *bn256Suite) Order() *big.Int { return new(big.Int).Set(bn256.Order) }
func (s *bn256Suite) G1() Group       { return s.g1 }
func (s *bn256Suite) G2() Group       { return s.g2 }
func (s *bn256Suite) GT() Group       { return s.gt }

func (s *bn256Suite) Pair(a, b Point) Point {
	p := a.(*bn256G1Point)
	q := b.(*bn256G2Point)
	return &bn256GTPoint{v: bn256.Pair(p.v, q.v)}
}

func (s *bn256Suite) HashToG1(msg []byte) Point {
	h, err := bn256.HashG1(string(msg))
	if err != nil {
		// HashG1 only fails on internal randomness exhaustion of the
		// try-and-increment loop, which cannot happen for the curve
		// parameters baked into the library.
		panic(NewBackendError(SuiteBN256, "HashToG1", err))
	}
	return &bn256G1Point{v: h}
}

func (s *bn256Suite) RandScalar() (*big.Int, error) {
	k, err := rand.Int(rand.Reader, bn256.Order)
	if err != nil {
		return nil, NewBackendError(SuiteBN256, "RandScalar", err)
	}
	return k, nil
}

func (s *bn256Suite) RandGT() (Point, error) {
	_, gt, err := bn256.RandomGT(rand.Reader)
	if err != nil {
		return nil, NewBackendError(SuiteBN256, "RandGT", err)
	}
	return &bn256GTPoint{v: gt}, nil
}

type bn256G1Point struct{ v *bn256.G1 }

func (p *bn256G1Point) Bytes() []byte { return p.v.Marshal() }

type bn256G2Point struct{ v *bn256.G2 }

func (p *bn256G2Point) Bytes() []byte { return p.v.Marshal() }

type bn256GTPoint struct{ v *bn256.GT }

func (p *bn256GTPoint) Bytes() []byte { return p.v.Marshal() }

type bn256G1Group struct{}

func (g *bn256G1Group) Base() Point {
	return &bn256G1Point{v: new(bn256.G1).ScalarBaseMult(big.NewInt(1))}
}

func (g *bn256G1Group) Identity() Point {
	return &bn256G1Point{v: new(bn256.G1).ScalarBaseMult(big.NewInt(0))}
}

func (g *bn256G1Group) Op(a, b Point) Point {
	return &bn256G1Point{v: new(bn256.G1).Add(a.(*bn256G1Point).v, b.(*bn256G1Point).v)}
}

func (g *bn256G1Group) Exp(p Point, k *big.Int) Point {
	return &bn256G1Point{v: new(bn256.G1).ScalarMult(p.(*bn256G1Point).v, reduce(k))}
}

func (g *bn256G1Group) Inverse(p Point) Point {
	return &bn256G1Point{v: new(bn256.G1).Neg(p.(*bn256G1Point).v)}
}

func (g *bn256G1Group) Decode(raw []byte) (Point, error) {
	v := new(bn256.G1)
	if _, err := v.Unmarshal(raw); err != nil {
		return nil, NewBackendError(SuiteBN256, "G1.Decode", err)
	}
	return &bn256G1Point{v: v}, nil
}

type bn256G2Group struct{}

func (g *bn256G2Group) Base() Point {
	return &bn256G2Point{v: new(bn256.G2).ScalarBaseMult(big.NewInt(1))}
}

func (g *bn256G2Group) Identity() Point {
	return &bn256G2Point{v: new(bn256.G2).ScalarBaseMult(big.NewInt(0))}
}

func (g *bn256G2Group) Op(a, b Point) Point {
	return &bn256G2Point{v: new(bn256.G2).Add(a.(*bn256G2Point).v, b.(*bn256G2Point).v)}
}

func (g *bn256G2Group) Exp(p Point, k *big.Int) Point {
	return &bn256G2Point{v: new(bn256.G2).ScalarMult(p.(*bn256G2Point).v, reduce(k))}
}

func (g *bn256G2Group) Inverse(p Point) Point {
	return &bn256G2Point{v: new(bn256.G2).Neg(p.(*bn256G2Point).v)}
}

func (g *bn256G2Group) Decode(raw []byte) (Point, error) {
	v := new(bn256.G2)
	if _, err := v.Unmarshal(raw); err != nil {
		return nil, NewBackendError(SuiteBN256, "G2.Decode", err)
	}
	return &bn256G2Point{v: v}, nil
}

type bn256GTGroup struct{}

func (g *bn256GTGroup) Base() Point {
	return &bn256GTPoint{v: new(bn256.GT).ScalarBaseMult(big.NewInt(1))}
}

func (g *bn256GTGroup) Identity() Point {
	return &bn256GTPoint{v: new(bn256.GT).ScalarBaseMult(big.NewInt(0))}
}

func (g *bn256GTGroup) Op(a, b Point) Point {
	return &bn256GTPoint{v: new(bn256.GT).Add(a.(*bn256GTPoint).v, b.(*bn256GTPoint).v)}
}

func (g *bn256GTGroup) Exp(p Point, k *big.Int) Point {
	return &bn256GTPoint{v: new(bn256.GT).ScalarMult(p.(*bn256GTPoint).v, reduce(k))}
}

func (g *bn256GTGroup) Inverse(p Point) Point {
	return &bn256GTPoint{v: new(bn256.GT).Neg(p.(*bn256GTPoint).v)}
}

func (g *bn256GTGroup) Decode(raw []byte) (Point, error) {
	v := new(bn256.GT)
	if _, err := v.Unmarshal(raw); err != nil {
		return nil, NewBackendError(SuiteBN256, "GT.Decode", err)
	}
	return &bn256GTPoint{v: v}, nil
}

func reduce(k *big.Int) *big.Int {
	if k.Sign() >= 0 && k.Cmp(bn256.Order) < 0 {
		return k
	}
	return new(big.Int).Mod(k, bn256.Order)
}
