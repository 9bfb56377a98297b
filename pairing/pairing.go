package pairing

import (
	"fmt"
	"math/big"

	goerrors "github.com/go-errors/errors"
)

// Point is an opaque element of one of the three pairing groups. Points are
// immutable; every group operation allocates a fresh point.
type Point interface {
	Bytes() []byte
}

// Group exposes the operations the ABE engine needs from a single pairing
// group, written multiplicatively.
type Group interface {
	// Base returns the group generator fixed at suite construction.
	Base() Point
	// Identity returns the neutral element.
	Identity() Point
	// Op returns a*b.
	Op(a, b Point) Point
	// Exp returns p^k. k is reduced modulo the group order.
	Exp(p Point, k *big.Int) Point
	// Inverse returns p^-1.
	Inverse(p Point) Point
	// Decode parses a point previously produced by Bytes. Corrupt input
	// yields a *BackendError.
	Decode(raw []byte) (Point, error)
}

// Suite is the bilinear-group capability the engine is written against.
// The concrete pairing library stays behind this interface so the curve can
// be swapped without touching any scheme logic.
type Suite interface {
	Name() string
	Order() *big.Int
	G1() Group
	G2() Group
	GT() Group
	// Pair computes e(a, b) for a in G1 and b in G2.
	Pair(a, b Point) Point
	// HashToG1 maps arbitrary bytes onto G1.
	HashToG1(msg []byte) Point
	RandScalar() (*big.Int, error)
	RandGT() (Point, error)
}

// BackendError reports a failure inside the pairing library itself: corrupt
// element bytes, an incompatible operation, a broken backend. It is fatal to
// the operation that hit it and is never retried.
type BackendError struct {
	Suite string
	Op    string
	Err   error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("pairing backend %s: %s: %v", e.Suite, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// NewBackendError wraps err with a stack trace so a corrupted backend can be
// located after the fact.
func NewBackendError(suite, op string, err error) *BackendError {
	return &BackendError{Suite: suite, Op: op, Err: goerrors.Wrap(err, 1)}
}

// Capture converts a recovered panic into a *BackendError stored in *errp.
// The pbc bindings panic on malformed input, so every exported operation
// that touches backend elements runs under
//
//	defer pairing.Capture(suiteName, opName, &err)
func Capture(suite, op string, errp *error) {
	r := recover()
	if r == nil {
		return
	}
	var inner error
	if e, ok := r.(error); ok {
		inner = e
	} else {
		inner = fmt.Errorf("%v", r)
	}
	*errp = &BackendError{Suite: suite, Op: op, Err: goerrors.Wrap(inner, 2)}
}

// NewSuite returns the suite registered under name ("pbc" or "bn256").
func NewSuite(name string) (Suite, error) {
	switch name {
	case SuiteBN256:
		return NewBN256Suite(), nil
	case SuitePBC:
		return NewPBCSuite()
	}
	return nil, fmt.Errorf("unknown pairing suite %q", name)
}
