package expr

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/reactivedb/reactivedb/internal/value"
)

type node interface{}

type litNode struct{ v value.EntryValue }
type colRefNode struct{ name string }
type unaryNode struct {
	op string
	x  node
}
type binaryNode struct {
	op   string
	l, r node
}

// Expr is a parsed, ready-to-evaluate expression tree.
type Expr struct{ root node }

// Parse lexes and parses src into an Expr.
func Parse(src string) (*Expr, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tEOF {
		return nil, fmt.Errorf("%w: unexpected trailing input at %q", ErrSyntax, p.peek().text)
	}
	return &Expr{root: n}, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tOp && p.peek().text == "||" {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "||", l: left, r: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tOp && p.peek().text == "&&" {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "&&", l: left, r: right}
	}
	return left, nil
}

func (p *parser) parseNot() (node, error) {
	if p.peek().kind == tOp && p.peek().text == "!" {
		p.next()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: "!", x: x}, nil
	}
	return p.parseComparison()
}

var comparisonOps = map[string]bool{"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if p.peek().kind == tOp && comparisonOps[p.peek().text] {
		op := p.next().text
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &binaryNode{op: op, l: left, r: right}, nil
	}
	return left, nil
}

func (p *parser) parseAdditive() (node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tOp && (p.peek().text == "+" || p.peek().text == "-") {
		op := p.next().text
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, l: left, r: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tOp && (p.peek().text == "*" || p.peek().text == "/") {
		op := p.next().text
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, l: left, r: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.peek().kind == tOp && p.peek().text == "-" {
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: "-", x: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	t := p.next()
	switch t.kind {
	case tInt:
		n, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid integer literal %q", ErrSyntax, t.text)
		}
		return &litNode{v: value.Int(n)}, nil
	case tDecimal:
		d, err := parseDecimalLiteral(t.text)
		if err != nil {
			return nil, err
		}
		return &litNode{v: value.Dec(d)}, nil
	case tString:
		return &litNode{v: value.String(t.text)}, nil
	case tBool:
		return &litNode{v: value.Boolean(t.text == "true")}, nil
	case tIdent:
		return &colRefNode{name: t.text}, nil
	case tLParen:
		n, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tRParen {
			return nil, fmt.Errorf("%w: expected closing paren", ErrSyntax)
		}
		p.next()
		return n, nil
	default:
		return nil, fmt.Errorf("%w: unexpected token %q", ErrSyntax, t.text)
	}
}

// parseDecimalLiteral converts a literal like "12.340" into a Decimal
// with Scale equal to the number of digits after the point.
func parseDecimalLiteral(text string) (value.Decimal, error) {
	parts := strings.SplitN(text, ".", 2)
	whole, frac := parts[0], ""
	if len(parts) == 2 {
		frac = parts[1]
	}
	digits := whole + frac
	unscaled, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return value.Decimal{}, fmt.Errorf("%w: invalid decimal literal %q", ErrSyntax, text)
	}
	return value.Decimal{Unscaled: unscaled, Scale: int32(len(frac))}, nil
}
