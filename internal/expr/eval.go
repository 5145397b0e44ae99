package expr

import (
	"fmt"

	"github.com/reactivedb/reactivedb/internal/value"
)

// Evaluate parses and evaluates src against row in one call. Statement
// text is short-lived transform configuration, so it is acceptable to
// reparse it each invocation; callers evaluating the same statement
// repeatedly (e.g. a Function transform across many rows) should
// Parse once and call Expr.Eval per row instead.
func Evaluate(src string, row value.Entry) (value.EntryValue, error) {
	e, err := Parse(src)
	if err != nil {
		return value.EntryValue{}, err
	}
	return e.Eval(row)
}

// Eval evaluates a parsed expression against row.
func (e *Expr) Eval(row value.Entry) (value.EntryValue, error) {
	return evalNode(e.root, row)
}

func evalNode(n node, row value.Entry) (value.EntryValue, error) {
	switch t := n.(type) {
	case *litNode:
		return t.v, nil
	case *colRefNode:
		v, ok := row.Get(t.name)
		if !ok {
			return value.EntryValue{}, fmt.Errorf("%w: %q", ErrUnknownColumn, t.name)
		}
		return v, nil
	case *unaryNode:
		return evalUnary(t, row)
	case *binaryNode:
		return evalBinary(t, row)
	default:
		return value.EntryValue{}, fmt.Errorf("%w: unhandled node type", ErrSyntax)
	}
}

func evalUnary(n *unaryNode, row value.Entry) (value.EntryValue, error) {
	x, err := evalNode(n.x, row)
	if err != nil {
		return value.EntryValue{}, err
	}
	switch n.op {
	case "!":
		if x.Kind != value.KindBool {
			return value.EntryValue{}, fmt.Errorf("%w: ! requires a boolean operand", ErrTypeMismatch)
		}
		return value.Boolean(!x.Bool), nil
	case "-":
		switch x.Kind {
		case value.KindInteger:
			return value.Int(-x.Integer), nil
		case value.KindDecimal:
			zero := value.NewDecimal(0, x.Decimal.Scale)
			return value.Dec(zero.Sub(x.Decimal)), nil
		default:
			return value.EntryValue{}, fmt.Errorf("%w: unary - requires a numeric operand", ErrTypeMismatch)
		}
	default:
		return value.EntryValue{}, fmt.Errorf("%w: unknown unary operator %q", ErrSyntax, n.op)
	}
}

func evalBinary(n *binaryNode, row value.Entry) (value.EntryValue, error) {
	switch n.op {
	case "&&", "||":
		return evalBoolConnective(n, row)
	}

	l, err := evalNode(n.l, row)
	if err != nil {
		return value.EntryValue{}, err
	}
	r, err := evalNode(n.r, row)
	if err != nil {
		return value.EntryValue{}, err
	}

	switch n.op {
	case "==":
		return value.Boolean(value.Equal(l, r)), nil
	case "!=":
		return value.Boolean(!value.Equal(l, r)), nil
	case "<":
		return value.Boolean(value.Compare(l, r) < 0), nil
	case "<=":
		return value.Boolean(value.Compare(l, r) <= 0), nil
	case ">":
		return value.Boolean(value.Compare(l, r) > 0), nil
	case ">=":
		return value.Boolean(value.Compare(l, r) >= 0), nil
	case "+", "-", "*", "/":
		return evalArithmetic(n.op, l, r)
	default:
		return value.EntryValue{}, fmt.Errorf("%w: unknown binary operator %q", ErrSyntax, n.op)
	}
}

func evalBoolConnective(n *binaryNode, row value.Entry) (value.EntryValue, error) {
	l, err := evalNode(n.l, row)
	if err != nil {
		return value.EntryValue{}, err
	}
	if l.Kind != value.KindBool {
		return value.EntryValue{}, fmt.Errorf("%w: %s requires boolean operands", ErrTypeMismatch, n.op)
	}
	if n.op == "&&" && !l.Bool {
		return value.Boolean(false), nil
	}
	if n.op == "||" && l.Bool {
		return value.Boolean(true), nil
	}
	r, err := evalNode(n.r, row)
	if err != nil {
		return value.EntryValue{}, err
	}
	if r.Kind != value.KindBool {
		return value.EntryValue{}, fmt.Errorf("%w: %s requires boolean operands", ErrTypeMismatch, n.op)
	}
	return value.Boolean(r.Bool), nil
}

// evalArithmetic handles + - * / over Integer and Decimal operands,
// promoting Integer to Decimal (scale 0) whenever either side is
// Decimal, per the resolved integer/decimal promotion rule. Operand
// order is preserved exactly as parsed: Sub and Div never commute.
func evalArithmetic(op string, l, r value.EntryValue) (value.EntryValue, error) {
	if l.Kind == value.KindInteger && r.Kind == value.KindInteger {
		switch op {
		case "+":
			return value.Int(l.Integer + r.Integer), nil
		case "-":
			return value.Int(l.Integer - r.Integer), nil
		case "*":
			return value.Int(l.Integer * r.Integer), nil
		case "/":
			if r.Integer == 0 {
				return value.EntryValue{}, fmt.Errorf("%w: division by zero", ErrTypeMismatch)
			}
			return value.Int(l.Integer / r.Integer), nil
		}
	}

	ld, err := value.PromoteToDecimal(l)
	if err != nil {
		return value.EntryValue{}, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	rd, err := value.PromoteToDecimal(r)
	if err != nil {
		return value.EntryValue{}, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}

	switch op {
	case "+":
		return value.Dec(ld.Add(rd)), nil
	case "-":
		return value.Dec(ld.Sub(rd)), nil
	case "*":
		return value.Dec(ld.Mul(rd)), nil
	case "/":
		if rd.Unscaled == nil || rd.Unscaled.Sign() == 0 {
			return value.EntryValue{}, fmt.Errorf("%w: division by zero", ErrTypeMismatch)
		}
		return value.Dec(ld.Div(rd)), nil
	default:
		return value.EntryValue{}, fmt.Errorf("%w: unknown arithmetic operator %q", ErrSyntax, op)
	}
}
