package pairing

import (
	"crypto/sha256"
	"errors"
	"math/big"

	"github.com/Nik-U/pbc"
)

// SuitePBC names the PBC-backed suite. It requires the C pbc library and
// uses a symmetric type-A pairing, so G1 and G2 coincide.
const SuitePBC = "pbc"

// Fixed 160-bit type-A curve group. Generating parameters per deployment
// buys nothing here and would make stored key material curve-dependent.
const typeAParams = `type a
q 8780710799663312522437781984754049815806883199414208211028653399266475630880222957078625179422662221423155858769582317459277713367317481324925129998224791
h 12016012264891146079388821366740534204802954401251311822919615131047207289359704531102844802183906537786776
r 730750818665451621361119245571504901405976559617
exp2 159
exp1 107
sign1 1
sign0 1`

const typeAOrder = "730750818665451621361119245571504901405976559617"

type pbcSuite struct {
	pairing *pbc.Pairing
	order   *big.Int
	g1      *pbcGroup
	g2      *pbcGroup
	gt      *pbcGroup
}

// NewPBCSuite builds the suite over the fixed type-A parameters. The group
// generators are drawn once per suite instance; everything derived from
// them travels inside serialized key material, never through the suite.
func NewPBCSuite() (Suite, error) {
	params, err := pbc.NewParamsFromString(typeAParams)
	if err != nil {
		return nil, NewBackendError(SuitePBC, "NewParamsFromString", err)
	}
	order, ok := new(big.Int).SetString(typeAOrder, 10)
	if !ok {
		return nil, NewBackendError(SuitePBC, "order", errors.New("bad order constant"))
	}

	s := &pbcSuite{pairing: params.NewPairing(), order: order}
	s.g1 = &pbcGroup{suite: s, kind: pbcG1, base: s.pairing.NewG1().Rand()}
	s.g2 = &pbcGroup{suite: s, kind: pbcG2, base: s.pairing.NewG2().Rand()}
	s.gt = &pbcGroup{suite: s, kind: pbcGT}
	s.gt.base = s.pairing.NewGT().Pair(s.g1.base, s.g2.base)
	return s, nil
}

func (s *pbcSuite) Name() string    { return SuitePBC }
func (s *pbcSuite) Order() *big.Int { return new(big.Int).Set(s.order) }
func (s *pbcSuite) G1() Group       { return s.g1 }
func (s *pbcSuite) G2() Group       { return s.g2 }
func (s *pbcSuite) GT() Group       { return s.gt }

func (s *pbcSuite) Pair(a, b Point) Point {
	out := s.pairing.NewGT()
	out.Pair(a.(*pbcPoint).el, b.(*pbcPoint).el)
	return &pbcPoint{el: out}
}

func (s *pbcSuite) HashToG1(msg []byte) Point {
	sum := sha256.Sum256(msg)
	el := s.pairing.NewG1()
	el.SetFromHash(sum[:])
	return &pbcPoint{el: el}
}

func (s *pbcSuite) RandScalar() (*big.Int, error) {
	return s.pairing.NewZr().Rand().BigInt(), nil
}

func (s *pbcSuite) RandGT() (Point, error) {
	return &pbcPoint{el: s.pairing.NewGT().Rand()}, nil
}

type pbcKind int

const (
	pbcG1 pbcKind = iota
	pbcG2
	pbcGT
)

type pbcPoint struct{ el *pbc.Element }

func (p *pbcPoint) Bytes() []byte { return p.el.Bytes() }

type pbcGroup struct {
	suite *pbcSuite
	kind  pbcKind
	base  *pbc.Element
}

func (g *pbcGroup) new() *pbc.Element {
	switch g.kind {
	case pbcG1:
		return g.suite.pairing.NewG1()
	case pbcG2:
		return g.suite.pairing.NewG2()
	default:
		return g.suite.pairing.NewGT()
	}
}

func (g *pbcGroup) Base() Point {
	return &pbcPoint{el: g.new().Set(g.base)}
}

func (g *pbcGroup) Identity() Point {
	return &pbcPoint{el: g.new().Set1()}
}

func (g *pbcGroup) Op(a, b Point) Point {
	out := g.new()
	out.Mul(a.(*pbcPoint).el, b.(*pbcPoint).el)
	return &pbcPoint{el: out}
}

func (g *pbcGroup) Exp(p Point, k *big.Int) Point {
	out := g.new()
	out.PowBig(p.(*pbcPoint).el, new(big.Int).Mod(k, g.suite.order))
	return &pbcPoint{el: out}
}

func (g *pbcGroup) Inverse(p Point) Point {
	out := g.new()
	out.Invert(p.(*pbcPoint).el)
	return &pbcPoint{el: out}
}

// Decode parses element bytes. The pbc bindings panic on data of the wrong
// length, so the panic is translated here rather than crashing the caller.
func (g *pbcGroup) Decode(raw []byte) (p Point, err error) {
	defer Capture(SuitePBC, "Decode", &err)
	el := g.new()
	el.SetBytes(raw)
	return &pbcPoint{el: el}, nil
}
