package abe

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/hashicorp/go-hclog"

	"abeguard/pairing"
	"abeguard/policy"
)

// ErrPolicyNotSatisfied is the single decryption failure a caller can
// observe when their attribute set does not satisfy a ciphertext's policy.
// It deliberately carries no detail about which rows failed.
var ErrPolicyNotSatisfied = errors.New("abe: policy not satisfied")

// AttributeStore resolves the attribute set an identity currently holds.
// Implemented by the surrounding deployment, not by this package.
type AttributeStore interface {
	Lookup(ctx context.Context, gid string) ([]string, error)
}

// PublicKey holds the published parameters: the group generators, the
// master pairing value and one public element per registered attribute.
// Attrs grows append-only; nothing in it is ever rewritten.
type PublicKey struct {
	Suite    string
	G1       pairing.Point
	G2       pairing.Point
	G1A      pairing.Point // g1^a, used for the row components
	EggAlpha pairing.Point // e(g1, g2)^alpha
	Attrs    map[string]pairing.Point
}

// Universe returns the registered attribute labels.
func (pk *PublicKey) Universe() []string {
	out := make([]string, 0, len(pk.Attrs))
	for label := range pk.Attrs {
		out = append(out, label)
	}
	return out
}

// MasterKey is the master secret. It never travels: Setup hands it to the
// caller and the caller keeps it inside its own trust boundary.
type MasterKey struct {
	Alpha *big.Int
	A     *big.Int
}

// UserKey is a per-identity decryption key over an attribute set. The
// blinding scalar behind K and L is fresh per issuance and derived from the
// GID, so components from two different keys do not combine.
type UserKey struct {
	GID        string
	K          pairing.Point // g2^alpha * g2^(a*t)
	L          pairing.Point // g2^t
	Components map[string]pairing.Point
}

// Attributes returns the labels this key can decrypt under.
func (uk *UserKey) Attributes() []string {
	out := make([]string, 0, len(uk.Components))
	for label := range uk.Components {
		out = append(out, label)
	}
	return out
}

// Ciphertext carries the compiled policy and the group components. It is
// immutable once produced.
type Ciphertext struct {
	Suite  string
	Policy *policy.Program
	C      pairing.Point   // payloadKey * e(g1,g2)^(alpha*s)
	CPrime pairing.Point   // g1^s
	C1     []pairing.Point // per row, in G1
	D      []pairing.Point // per row, in G2
}

// Engine implements Waters-style ciphertext-policy ABE over an LSSS
// program. All operations are pure computations over immutable inputs and
// safe for concurrent use.
type Engine struct {
	suite  pairing.Suite
	logger hclog.Logger
}

func NewEngine(suite pairing.Suite, logger hclog.Logger) *Engine {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Engine{suite: suite, logger: logger}
}

func (e *Engine) Suite() pairing.Suite { return e.suite }

// Compile builds the LSSS program for expr against the key's universe.
func (e *Engine) Compile(expr string, pk *PublicKey) (*policy.Program, error) {
	return policy.Compile(expr, e.suite.Order(), pk.Universe())
}

// Setup draws the master exponents and one public element per attribute in
// universe. It runs once per deployment; the universe can only grow
// afterwards, via AddAttribute.
func (e *Engine) Setup(universe []string) (pk *PublicKey, msk *MasterKey, err error) {
	defer pairing.Capture(e.suite.Name(), "Setup", &err)

	alpha, err := e.suite.RandScalar()
	if err != nil {
		return nil, nil, err
	}
	a, err := e.suite.RandScalar()
	if err != nil {
		return nil, nil, err
	}

	g1 := e.suite.G1().Base()
	g2 := e.suite.G2().Base()

	pk = &PublicKey{
		Suite:    e.suite.Name(),
		G1:       g1,
		G2:       g2,
		G1A:      e.suite.G1().Exp(g1, a),
		EggAlpha: e.suite.GT().Exp(e.suite.Pair(g1, g2), alpha),
		Attrs:    make(map[string]pairing.Point, len(universe)),
	}
	msk = &MasterKey{Alpha: alpha, A: a}

	for _, label := range universe {
		if err := e.AddAttribute(pk, label); err != nil {
			return nil, nil, err
		}
	}
	return pk, msk, nil
}

// AddAttribute appends a fresh public element for label. Existing labels
// are immutable: re-registration is an error, never a rotation.
func (e *Engine) AddAttribute(pk *PublicKey, label string) (err error) {
	defer pairing.Capture(e.suite.Name(), "AddAttribute", &err)

	label = normalizeLabel(label)
	if label == "" {
		return errors.New("abe: empty attribute label")
	}
	if _, ok := pk.Attrs[label]; ok {
		return fmt.Errorf("abe: attribute %s already registered", label)
	}
	r, err := e.suite.RandScalar()
	if err != nil {
		return err
	}
	pk.Attrs[label] = e.suite.G1().Exp(pk.G1, r)
	return nil
}

// KeyGen issues a decryption key for gid over attrs. Each invocation draws
// an independent blinding scalar, so issuing twice for the same identity
// yields two unrelated keys.
func (e *Engine) KeyGen(msk *MasterKey, pk *PublicKey, gid string, attrs []string) (uk *UserKey, err error) {
	defer pairing.Capture(e.suite.Name(), "KeyGen", &err)

	if gid == "" {
		return nil, errors.New("abe: empty GID")
	}
	if len(attrs) == 0 {
		return nil, errors.New("abe: empty attribute set")
	}

	t, err := e.blindingScalar(gid)
	if err != nil {
		return nil, err
	}

	g2 := pk.G2
	k := e.suite.G2().Op(
		e.suite.G2().Exp(g2, msk.Alpha),
		e.suite.G2().Exp(e.suite.G2().Exp(g2, msk.A), t),
	)

	uk = &UserKey{
		GID:        gid,
		K:          k,
		L:          e.suite.G2().Exp(g2, t),
		Components: make(map[string]pairing.Point, len(attrs)),
	}
	for _, label := range attrs {
		label = normalizeLabel(label)
		h, ok := pk.Attrs[label]
		if !ok {
			return nil, fmt.Errorf("abe: attribute %s not in universe", label)
		}
		uk.Components[label] = e.suite.G1().Exp(h, t)
	}
	return uk, nil
}

// blindingScalar derives the per-key scalar from the GID and fresh system
// randomness, binding the key to the identity it was issued for.
func (e *Engine) blindingScalar(gid string) (*big.Int, error) {
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	sum := sha256.Sum256(append([]byte(gid), seed...))
	return new(big.Int).Mod(new(big.Int).SetBytes(sum[:]), e.suite.Order()), nil
}

// Encrypt binds payloadKey (a GT element) to the compiled program. Cost is
// linear in the program's row count.
func (e *Engine) Encrypt(pk *PublicKey, prog *policy.Program, payloadKey pairing.Point) (ct *Ciphertext, err error) {
	defer pairing.Capture(e.suite.Name(), "Encrypt", &err)

	if prog.Rows() == 0 {
		return nil, &policy.CompileError{Expr: prog.Expr, Reason: "empty program"}
	}
	p := e.suite.Order()

	s, err := e.suite.RandScalar()
	if err != nil {
		return nil, err
	}
	// v_1 = s; the remaining coordinates blind the shares.
	v := make([]*big.Int, prog.Cols())
	v[0] = s
	for i := 1; i < len(v); i++ {
		if v[i], err = e.suite.RandScalar(); err != nil {
			return nil, err
		}
	}

	ct = &Ciphertext{
		Suite:  e.suite.Name(),
		Policy: prog,
		C:      e.suite.GT().Op(payloadKey, e.suite.GT().Exp(pk.EggAlpha, s)),
		CPrime: e.suite.G1().Exp(pk.G1, s),
		C1:     make([]pairing.Point, prog.Rows()),
		D:      make([]pairing.Point, prog.Rows()),
	}

	for i := 0; i < prog.Rows(); i++ {
		h, ok := pk.Attrs[prog.Rho[i]]
		if !ok {
			return nil, fmt.Errorf("abe: attribute %s not in universe", prog.Rho[i])
		}
		lambda := big.NewInt(0)
		for j, cell := range prog.Mat[i] {
			lambda.Add(lambda, new(big.Int).Mul(cell, v[j]))
		}
		lambda.Mod(lambda, p)

		r, err := e.suite.RandScalar()
		if err != nil {
			return nil, err
		}
		ct.C1[i] = e.suite.G1().Op(
			e.suite.G1().Exp(pk.G1A, lambda),
			e.suite.G1().Inverse(e.suite.G1().Exp(h, r)),
		)
		ct.D[i] = e.suite.G2().Exp(pk.G2, r)
	}
	return ct, nil
}

// Decrypt recovers the payload key iff the key's attributes satisfy the
// ciphertext's program. The unsatisfied path executes the same pairing
// product as the satisfied one (with inert coefficients) before failing,
// so the two are not distinguishable by operation shape.
func (e *Engine) Decrypt(uk *UserKey, ct *Ciphertext) (payloadKey pairing.Point, err error) {
	defer pairing.Capture(e.suite.Name(), "Decrypt", &err)

	held := uk.Attributes()
	indices, omega := ct.Policy.ReconstructionConstants(held)
	if indices == nil {
		matched, ones := e.dummyConstants(uk, ct)
		shareProd := e.pairingProduct(uk, ct, matched, ones)
		num := e.suite.Pair(ct.CPrime, uk.K)
		eggS := e.suite.GT().Op(num, e.suite.GT().Inverse(shareProd))
		_ = e.suite.GT().Op(ct.C, e.suite.GT().Inverse(eggS))
		return nil, ErrPolicyNotSatisfied
	}

	shareProd := e.pairingProduct(uk, ct, indices, omega)
	num := e.suite.Pair(ct.CPrime, uk.K)
	eggS := e.suite.GT().Op(num, e.suite.GT().Inverse(shareProd))
	return e.suite.GT().Op(ct.C, e.suite.GT().Inverse(eggS)), nil
}

// pairingProduct computes prod_i (e(C1_i, L) * e(K_rho(i), D_i))^(w_i)
// over the given rows.
func (e *Engine) pairingProduct(uk *UserKey, ct *Ciphertext, indices []int, w []*big.Int) pairing.Point {
	acc := e.suite.GT().Identity()
	for k, i := range indices {
		comp := uk.Components[ct.Policy.Rho[i]]
		base := e.suite.GT().Op(
			e.suite.Pair(ct.C1[i], uk.L),
			e.suite.Pair(comp, ct.D[i]),
		)
		acc = e.suite.GT().Op(acc, e.suite.GT().Exp(base, w[k]))
	}
	return acc
}

// dummyConstants mirrors the row selection of the satisfied path with unit
// coefficients.
func (e *Engine) dummyConstants(uk *UserKey, ct *Ciphertext) ([]int, []*big.Int) {
	var indices []int
	var w []*big.Int
	for i, label := range ct.Policy.Rho {
		if _, ok := uk.Components[label]; ok {
			indices = append(indices, i)
			w = append(w, big.NewInt(1))
		}
	}
	return indices, w
}

func normalizeLabel(label string) string {
	return strings.ToUpper(strings.TrimSpace(label))
}
