package policy

import (
	"regexp"
	"strconv"
	"strings"
)

// Access expressions are boolean/threshold formulas over attribute labels:
//
//	DOCTOR AND (NURSE OR DEPT:CARDIOLOGY)
//	2 OF (A, B, C)
//
// Keywords are case-insensitive; labels are normalized to upper case.

type node struct {
	k        int    // gate threshold; k of len(children) must hold
	label    string // set on leaves only
	children []*node
}

func (n *node) leaf() bool { return len(n.children) == 0 }

var spaceRE = regexp.MustCompile(`\s+`)

func tokenize(in string) []string {
	in = strings.ToUpper(in)
	in = strings.Replace(in, "(", " ( ", -1)
	in = strings.Replace(in, ")", " ) ", -1)
	in = strings.Replace(in, ",", " , ", -1)
	in = strings.TrimSpace(spaceRE.ReplaceAllString(in, " "))
	if in == "" {
		return nil
	}
	return strings.Split(in, " ")
}

func isOp(tok string) bool    { return tok == "AND" || tok == "OR" }
func isLPar(tok string) bool  { return tok == "(" }
func isRPar(tok string) bool  { return tok == ")" }
func isComma(tok string) bool { return tok == "," }

func isAttr(tok string) bool {
	return !isOp(tok) && !isLPar(tok) && !isRPar(tok) && !isComma(tok) && tok != "OF"
}

type parser struct {
	expr string
	toks []string
	pos  int
}

func parse(expr string) (*node, error) {
	toks := tokenize(expr)
	if len(toks) == 0 {
		return nil, &CompileError{Expr: expr, Reason: "empty formula"}
	}
	p := &parser{expr: expr, toks: toks}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, p.errorf("unexpected token %q", p.toks[p.pos])
	}
	return root, nil
}

func (p *parser) peek() string {
	if p.pos >= len(p.toks) {
		return ""
	}
	return p.toks[p.pos]
}

func (p *parser) next() string {
	tok := p.peek()
	if tok != "" {
		p.pos++
	}
	return tok
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return &CompileError{Expr: p.expr, Reason: sprintf(format, args...)}
}

// parseOr handles the lowest-precedence gate: and-expr (OR and-expr)*.
func (p *parser) parseOr() (*node, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	children := []*node{first}
	for p.peek() == "OR" {
		p.next()
		n, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		children = append(children, n)
	}
	if len(children) == 1 {
		return first, nil
	}
	return &node{k: 1, children: children}, nil
}

func (p *parser) parseAnd() (*node, error) {
	first, err := p.parseUnit()
	if err != nil {
		return nil, err
	}
	children := []*node{first}
	for p.peek() == "AND" {
		p.next()
		n, err := p.parseUnit()
		if err != nil {
			return nil, err
		}
		children = append(children, n)
	}
	if len(children) == 1 {
		return first, nil
	}
	return &node{k: len(children), children: children}, nil
}

// parseUnit handles leaves, parenthesized groups and "k OF (a, b, ...)"
// threshold gates.
func (p *parser) parseUnit() (*node, error) {
	tok := p.next()
	switch {
	case tok == "":
		return nil, p.errorf("dangling operator")
	case isLPar(tok):
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !isRPar(p.next()) {
			return nil, p.errorf("missing closing parenthesis")
		}
		return inner, nil
	case isAttr(tok):
		if k, err := strconv.Atoi(tok); err == nil {
			return p.parseThreshold(k)
		}
		return &node{label: tok}, nil
	}
	return nil, p.errorf("unexpected token %q", tok)
}

func (p *parser) parseThreshold(k int) (*node, error) {
	if p.next() != "OF" {
		return nil, p.errorf("number %d must be followed by OF", k)
	}
	if !isLPar(p.next()) {
		return nil, p.errorf("threshold children must be parenthesized")
	}
	var children []*node
	for {
		n, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		children = append(children, n)
		tok := p.next()
		if isRPar(tok) {
			break
		}
		if !isComma(tok) {
			return nil, p.errorf("expected , or ) in threshold list")
		}
	}
	if k < 1 {
		return nil, p.errorf("threshold %d below 1", k)
	}
	if k > len(children) {
		return nil, p.errorf("threshold %d exceeds %d children", k, len(children))
	}
	return &node{k: k, children: children}, nil
}

func (n *node) attributes(out *[]string) {
	if n.leaf() {
		*out = append(*out, n.label)
		return
	}
	for _, c := range n.children {
		c.attributes(out)
	}
}
