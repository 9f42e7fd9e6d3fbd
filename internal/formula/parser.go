package formula

import (
	"fmt"
	"strconv"
	"strings"
)

// maxDepth bounds expression nesting.
const maxDepth = 64

type node interface {
	eval(ctx Context) (value, error)
}

type literalNode struct {
	v value
}

type refNode struct {
	name string
	attr string
}

type unaryNode struct {
	op string
	x  node
}

type binaryNode struct {
	op   string
	l, r node
}

type condNode struct {
	cond, then, els node
}

type parser struct {
	tokens []Token
	pos    int
	depth  int
}

// parse builds an AST from tokens, requiring every token to be consumed.
func parse(tokens []Token) (node, error) {
	if len(tokens) == 0 {
		return nil, &SyntaxError{Pos: -1, Msg: ErrEmptyFormula.Error(), Err: ErrEmptyFormula}
	}
	p := &parser{tokens: tokens}
	root, err := p.conditional()
	if err != nil {
		return nil, err
	}
	if tok, ok := p.peek(); ok {
		return nil, syntaxErrorf(tok.Pos, "unexpected %s %q", tok.Kind, tok.Text)
	}
	return root, nil
}

func (p *parser) peek() (Token, bool) {
	if p.pos >= len(p.tokens) {
		return Token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) acceptOperator(ops ...string) (string, bool) {
	tok, ok := p.peek()
	if !ok || tok.Kind != TokenOperator {
		return "", false
	}
	for _, op := range ops {
		if tok.Text == op {
			p.pos++
			return op, true
		}
	}
	return "", false
}

func (p *parser) endPos() int {
	if len(p.tokens) == 0 {
		return 0
	}
	last := p.tokens[len(p.tokens)-1]
	return last.Pos + len(last.Text)
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > maxDepth {
		pos := p.endPos()
		if tok, ok := p.peek(); ok {
			pos = tok.Pos
		}
		return syntaxErrorf(pos, "expression nested deeper than %d levels", maxDepth)
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

func (p *parser) conditional() (node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	cond, err := p.binary(0)
	if err != nil {
		return nil, err
	}
	if _, ok := p.acceptOperator("?"); !ok {
		return cond, nil
	}
	then, err := p.conditional()
	if err != nil {
		return nil, err
	}
	if _, ok := p.acceptOperator(":"); !ok {
		pos := p.endPos()
		if tok, ok := p.peek(); ok {
			pos = tok.Pos
		}
		return nil, syntaxErrorf(pos, "expected ':' in conditional expression")
	}
	els, err := p.conditional()
	if err != nil {
		return nil, err
	}
	return &condNode{cond: cond, then: then, els: els}, nil
}

// precedence lists binary operator levels from loosest to tightest.
var precedence = [][]string{
	{"||"},
	{"&&"},
	{"===", "!=="},
	{">", "<", ">=", "<="},
	{"+", "-"},
	{"*", "/"},
}

func (p *parser) binary(level int) (node, error) {
	if level == len(precedence) {
		return p.unary()
	}
	left, err := p.binary(level + 1)
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOperator(precedence[level]...)
		if !ok {
			return left, nil
		}
		right, err := p.binary(level + 1)
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, l: left, r: right}
	}
}

func (p *parser) unary() (node, error) {
	if op, ok := p.acceptOperator("!", "-", "+"); ok {
		if err := p.enter(); err != nil {
			return nil, err
		}
		defer p.leave()
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: op, x: x}, nil
	}
	return p.primary()
}

func (p *parser) primary() (node, error) {
	tok, ok := p.peek()
	if !ok {
		return nil, syntaxErrorf(p.endPos(), "unexpected end of formula")
	}
	p.pos++

	switch tok.Kind {
	case TokenNumber:
		f, err := strconv.ParseFloat(tok.Text, 64)
		if err != nil {
			return nil, syntaxErrorf(tok.Pos, "invalid number %q", tok.Text)
		}
		return &literalNode{v: numberValue(f)}, nil
	case TokenString:
		return &literalNode{v: stringValue(tok.Text)}, nil
	case TokenIdent:
		switch tok.Text {
		case "true":
			return &literalNode{v: boolValue(true)}, nil
		case "false":
			return &literalNode{v: boolValue(false)}, nil
		}
		name, attr := splitReference(tok.Text)
		return &refNode{name: name, attr: attr}, nil
	case TokenOperator:
		if tok.Text == "(" {
			inner, err := p.conditional()
			if err != nil {
				return nil, err
			}
			if _, ok := p.acceptOperator(")"); !ok {
				return nil, syntaxErrorf(tok.Pos, "missing ')' for '('")
			}
			return inner, nil
		}
	}
	return nil, syntaxErrorf(tok.Pos, "unexpected %s %q", tok.Kind, tok.Text)
}

// splitReference splits "field.attr" into its parts; attr defaults to value.
func splitReference(ref string) (string, string) {
	name, attr, found := strings.Cut(ref, ".")
	if !found {
		return name, "value"
	}
	return name, attr
}

func (n *literalNode) eval(Context) (value, error) { return n.v, nil }

func (n *refNode) eval(ctx Context) (value, error) {
	f, err := ctx.lookup(n.name, n.attr)
	if err != nil {
		return value{}, err
	}
	return numberValue(f), nil
}

func (n *unaryNode) eval(ctx Context) (value, error) {
	x, err := n.x.eval(ctx)
	if err != nil {
		return value{}, err
	}
	if n.op == "!" {
		return boolValue(!x.truthy()), nil
	}
	f, err := x.number()
	if err != nil {
		return value{}, err
	}
	if n.op == "-" {
		return numberValue(-f), nil
	}
	return numberValue(f), nil
}

func (n *binaryNode) eval(ctx Context) (value, error) {
	l, err := n.l.eval(ctx)
	if err != nil {
		return value{}, err
	}

	switch n.op {
	case "&&":
		if !l.truthy() {
			return l, nil
		}
		return n.r.eval(ctx)
	case "||":
		if l.truthy() {
			return l, nil
		}
		return n.r.eval(ctx)
	}

	r, err := n.r.eval(ctx)
	if err != nil {
		return value{}, err
	}

	switch n.op {
	case "===":
		return boolValue(strictEqual(l, r)), nil
	case "!==":
		return boolValue(!strictEqual(l, r)), nil
	}

	a, err := l.number()
	if err != nil {
		return value{}, err
	}
	b, err := r.number()
	if err != nil {
		return value{}, err
	}

	switch n.op {
	case "+":
		return numberValue(a + b), nil
	case "-":
		return numberValue(a - b), nil
	case "*":
		return numberValue(a * b), nil
	case "/":
		return numberValue(a / b), nil
	case ">":
		return boolValue(a > b), nil
	case "<":
		return boolValue(a < b), nil
	case ">=":
		return boolValue(a >= b), nil
	case "<=":
		return boolValue(a <= b), nil
	}
	return value{}, fmt.Errorf("unsupported operator %q", n.op)
}

func (n *condNode) eval(ctx Context) (value, error) {
	c, err := n.cond.eval(ctx)
	if err != nil {
		return value{}, err
	}
	if c.truthy() {
		return n.then.eval(ctx)
	}
	return n.els.eval(ctx)
}
