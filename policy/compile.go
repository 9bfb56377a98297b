package policy

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/fentec-project/gofe/data"
)

// CompileError reports a malformed access expression. It is terminal: the
// expression is rejected before any key material is touched.
type CompileError struct {
	Expr   string
	Reason string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("policy %q: %s", e.Expr, e.Reason)
}

func sprintf(format string, args ...interface{}) string {
	return fmt.Sprintf(format, args...)
}

// Program is a compiled access policy: an LSSS matrix Mat over Z_P together
// with the row-to-attribute map Rho. A set of attributes S satisfies the
// program iff the rows {i : Rho[i] in S} span the vector (1, 0, ..., 0).
//
// Compilation is deterministic: the same expression always yields the same
// matrix with the same row order, which downstream ciphertexts rely on.
type Program struct {
	P    *big.Int
	Expr string
	Mat  data.Matrix
	Rho  []string
}

func (pr *Program) Rows() int { return len(pr.Mat) }

func (pr *Program) Cols() int {
	if len(pr.Mat) == 0 {
		return 0
	}
	return len(pr.Mat[0])
}

// Attributes returns the distinct labels the program references, in first
// occurrence order.
func (pr *Program) Attributes() []string {
	seen := make(map[string]bool)
	var out []string
	for _, label := range pr.Rho {
		if !seen[label] {
			seen[label] = true
			out = append(out, label)
		}
	}
	return out
}

// Compile turns an access expression into an LSSS program over Z_p. When
// universe is non-nil every referenced attribute must appear in it.
//
// The matrix construction is the Lewko-Waters share-vector insertion,
// generalized from binary AND/OR gates to k-of-n gates: a gate holding
// vector v over c columns allocates k-1 fresh columns and hands child j the
// vector (v, j, j^2, ..., j^(k-1)), the matrix form of a Shamir polynomial
// of degree k-1 evaluated at j.
func Compile(expr string, p *big.Int, universe []string) (*Program, error) {
	root, err := parse(expr)
	if err != nil {
		return nil, err
	}

	if universe != nil {
		known := make(map[string]bool, len(universe))
		for _, label := range universe {
			known[normalize(label)] = true
		}
		var referenced []string
		root.attributes(&referenced)
		for _, label := range referenced {
			if !known[label] {
				return nil, &CompileError{Expr: expr, Reason: sprintf("unknown attribute %s", label)}
			}
		}
	}

	b := &lsssBuilder{p: p}
	vec := data.Vector{big.NewInt(1)}
	cols := b.emit(root, vec, 1)

	mat := make(data.Matrix, len(b.rows))
	for i, row := range b.rows {
		mat[i] = make(data.Vector, cols)
		for j := 0; j < cols; j++ {
			if j < len(row) {
				mat[i][j] = new(big.Int).Mod(row[j], p)
			} else {
				mat[i][j] = big.NewInt(0)
			}
		}
	}

	return &Program{P: p, Expr: expr, Mat: mat, Rho: b.rho}, nil
}

type lsssBuilder struct {
	p    *big.Int
	rows []data.Vector
	rho  []string
}

// emit walks the gate tree depth first, allocating matrix columns left to
// right and appending one row per leaf. It returns the column count after
// the subtree.
func (b *lsssBuilder) emit(n *node, vec data.Vector, cols int) int {
	if n.leaf() {
		b.rows = append(b.rows, vec)
		b.rho = append(b.rho, n.label)
		return cols
	}

	fresh := n.k - 1
	next := cols + fresh
	for j, child := range n.children {
		cv := make(data.Vector, next)
		for i := range cv {
			cv[i] = big.NewInt(0)
		}
		copy(cv, vec)
		x := big.NewInt(int64(j + 1))
		pow := big.NewInt(1)
		for m := 1; m <= fresh; m++ {
			pow = new(big.Int).Mod(new(big.Int).Mul(pow, x), b.p)
			cv[cols+m-1] = new(big.Int).Set(pow)
		}
		next = b.emit(child, cv, next)
	}
	return next
}

// ReconstructionConstants finds, for the rows whose attribute lies in
// attrs, coefficients w with sum_i w_i * Mat_i = (1, 0, ..., 0). It returns
// the matched row indices and their constants, or nil when the attribute
// set does not satisfy the program. Solving is Gaussian elimination over
// Z_P on the transposed row subset.
func (pr *Program) ReconstructionConstants(attrs []string) ([]int, data.Vector) {
	held := make(map[string]bool, len(attrs))
	for _, a := range attrs {
		held[normalize(a)] = true
	}

	sub := make(data.Matrix, 0, len(pr.Mat))
	indices := make([]int, 0, len(pr.Mat))
	for i, label := range pr.Rho {
		if held[label] {
			sub = append(sub, pr.Mat[i])
			indices = append(indices, i)
		}
	}
	if len(sub) == 0 {
		return nil, nil
	}

	target := make(data.Vector, pr.Cols())
	target[0] = big.NewInt(1)
	for i := 1; i < len(target); i++ {
		target[i] = big.NewInt(0)
	}

	w, err := data.GaussianEliminationSolver(sub.Transpose(), target, pr.P)
	if err != nil {
		return nil, nil
	}
	return indices, w
}

// Satisfies reports whether attrs admit reconstruction constants.
func (pr *Program) Satisfies(attrs []string) bool {
	indices, _ := pr.ReconstructionConstants(attrs)
	return indices != nil
}

func normalize(label string) string {
	return strings.ToUpper(strings.TrimSpace(label))
}
