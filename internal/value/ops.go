package value

import (
	"math"

	"github.com/pkg/errors"

	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/ast"
)

// Sentinel runtime faults. Callers attach the source position.
var (
	ErrDivisionByZero = errors.New("integer division by zero")
	ErrNegativeShift  = errors.New("negative shift count")
	ErrIndexRange     = errors.New("index out of range")
	ErrType           = errors.New("type mismatch")
)

// Truthy is the condition semantics used by if, while and the logical operators.
func Truthy(v Value) bool {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int != 0
	case KindFloat:
		return v.Float != 0
	case KindArray:
		return len(v.Elems) > 0
	}
	return false
}

func typeErr(op ast.Op, a, b Value) error {
	return errors.Wrapf(ErrType, "%s %s %s", a.Kind, op, b.Kind)
}

// Binary applies op to a and b. Integer arithmetic wraps on overflow; mixing
// int and float promotes to float.
func Binary(op ast.Op, a, b Value) (Value, error) {
	switch op {
	case ast.OpAnd:
		return Bool(Truthy(a) && Truthy(b)), nil
	case ast.OpOr:
		return Bool(Truthy(a) || Truthy(b)), nil
	case ast.OpEq:
		return Bool(looseEqual(a, b)), nil
	case ast.OpNe:
		return Bool(!looseEqual(a, b)), nil
	}

	if a.Kind == KindInt && b.Kind == KindInt {
		return IntBinary(op, a.Int, b.Int)
	}
	x, xok := asFloat(a)
	y, yok := asFloat(b)
	if !xok || !yok {
		return Nil, typeErr(op, a, b)
	}
	switch op {
	case ast.OpAdd:
		return Float(x + y), nil
	case ast.OpSub:
		return Float(x - y), nil
	case ast.OpMul:
		return Float(x * y), nil
	case ast.OpDiv:
		return Float(x / y), nil
	case ast.OpMod:
		return Float(math.Mod(x, y)), nil
	case ast.OpLt:
		return Bool(x < y), nil
	case ast.OpLe:
		return Bool(x <= y), nil
	case ast.OpGt:
		return Bool(x > y), nil
	case ast.OpGe:
		return Bool(x >= y), nil
	}
	return Nil, typeErr(op, a, b)
}

// IntBinary is the int64 fast path of Binary.
func IntBinary(op ast.Op, x, y int64) (Value, error) {
	switch op {
	case ast.OpAdd:
		return Int(x + y), nil
	case ast.OpSub:
		return Int(x - y), nil
	case ast.OpMul:
		return Int(x * y), nil
	case ast.OpDiv:
		if y == 0 {
			return Nil, ErrDivisionByZero
		}
		return Int(x / y), nil
	case ast.OpMod:
		if y == 0 {
			return Nil, ErrDivisionByZero
		}
		return Int(x % y), nil
	case ast.OpShl:
		if y < 0 {
			return Nil, ErrNegativeShift
		}
		return Int(x << uint64(y)), nil
	case ast.OpShr:
		if y < 0 {
			return Nil, ErrNegativeShift
		}
		return Int(x >> uint64(y)), nil
	case ast.OpBitAnd:
		return Int(x & y), nil
	case ast.OpBitOr:
		return Int(x | y), nil
	case ast.OpBitXor:
		return Int(x ^ y), nil
	case ast.OpLt:
		return Bool(x < y), nil
	case ast.OpLe:
		return Bool(x <= y), nil
	case ast.OpGt:
		return Bool(x > y), nil
	case ast.OpGe:
		return Bool(x >= y), nil
	case ast.OpEq:
		return Bool(x == y), nil
	case ast.OpNe:
		return Bool(x != y), nil
	case ast.OpAnd:
		return Bool(x != 0 && y != 0), nil
	case ast.OpOr:
		return Bool(x != 0 || y != 0), nil
	}
	return Nil, typeErr(op, Int(x), Int(y))
}

// Unary applies a prefix operator.
func Unary(op ast.Op, v Value) (Value, error) {
	switch op {
	case ast.OpNot:
		return Bool(!Truthy(v)), nil
	case ast.OpNeg:
		switch v.Kind {
		case KindInt:
			return Int(-v.Int), nil
		case KindFloat:
			return Float(-v.Float), nil
		}
	}
	return Nil, errors.Wrapf(ErrType, "%s %s", op, v.Kind)
}

// IndexOf returns a[i].
func IndexOf(a, i Value) (Value, error) {
	if a.Kind != KindArray || i.Kind != KindInt {
		return Nil, errors.Wrapf(ErrType, "%s[%s]", a.Kind, i.Kind)
	}
	if i.Int < 0 || i.Int >= int64(len(a.Elems)) {
		return Nil, errors.Wrapf(ErrIndexRange, "index %d, length %d", i.Int, len(a.Elems))
	}
	return a.Elems[i.Int], nil
}

func asFloat(v Value) (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.Int), true
	case KindFloat:
		return v.Float, true
	}
	return 0, false
}

// looseEqual is == as seen by scripts: numbers compare by value across kinds.
func looseEqual(a, b Value) bool {
	if a.Kind != b.Kind {
		x, xok := asFloat(a)
		y, yok := asFloat(b)
		return xok && yok && x == y
	}
	if a.Kind == KindFloat {
		return a.Float == b.Float
	}
	return Equal(a, b)
}
