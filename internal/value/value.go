package value

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies the dynamic type of a Value
type Kind uint8

const (
	KindNil Kind = iota
	KindInt
	KindFloat
	KindBool
	KindArray
)

// SlotSize is the arena footprint of every scalar kind.
const SlotSize = 8

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindArray:
		return "array"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Scalar reports whether values of this kind fit in an arena slot.
func (k Kind) Scalar() bool {
	return k == KindInt || k == KindFloat || k == KindBool
}

// PrimitiveSize returns the declared size in bytes of a scalar kind.
// Non-scalar kinds report 0.
func (k Kind) PrimitiveSize() int {
	switch k {
	case KindInt, KindFloat:
		return 8
	case KindBool:
		return 1
	}
	return 0
}

// Value is a script value. Scalars are held inline, arrays by reference.
type Value struct {
	Kind  Kind
	Int   int64
	Float float64
	Bool  bool
	Elems []Value
}

// Nil is the zero value
var Nil = Value{}

func Int(i int64) Value       { return Value{Kind: KindInt, Int: i} }
func Float(f float64) Value   { return Value{Kind: KindFloat, Float: f} }
func Bool(b bool) Value       { return Value{Kind: KindBool, Bool: b} }
func Array(e ...Value) Value  { return Value{Kind: KindArray, Elems: e} }
func (v Value) IsNil() bool   { return v.Kind == KindNil }
func (v Value) IsInt() bool   { return v.Kind == KindInt }
func (v Value) IsFloat() bool { return v.Kind == KindFloat }

// Bits returns the 8-byte slot encoding of a scalar value.
func (v Value) Bits() uint64 {
	switch v.Kind {
	case KindInt:
		return uint64(v.Int)
	case KindFloat:
		return math.Float64bits(v.Float)
	case KindBool:
		if v.Bool {
			return 1
		}
	}
	return 0
}

// FromBits decodes a slot word written by Bits.
func FromBits(k Kind, bits uint64) Value {
	switch k {
	case KindInt:
		return Int(int64(bits))
	case KindFloat:
		return Float(math.Float64frombits(bits))
	case KindBool:
		return Bool(bits != 0)
	}
	return Nil
}

// Equal compares two values structurally. Floats compare by bit pattern so
// NaN results from two execution paths are still considered identical.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNil:
		return true
	case KindInt:
		return a.Int == b.Int
	case KindFloat:
		return math.Float64bits(a.Float) == math.Float64bits(b.Float)
	case KindBool:
		return a.Bool == b.Bool
	case KindArray:
		if len(a.Elems) != len(b.Elems) {
			return false
		}
		for i := range a.Elems {
			if !Equal(a.Elems[i], b.Elems[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func (v Value) String() string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindArray:
		parts := make([]string, len(v.Elems))
		for i, e := range v.Elems {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return fmt.Sprintf("<%s>", v.Kind)
}

// Environment is the interpreter's variable environment as seen by the loop core
type Environment interface {
	// Lookup resolves a name through the scope chain.
	Lookup(name string) (Value, bool)
	// Assign updates an existing binding; it fails when name is not bound.
	Assign(name string, v Value) error
	// Declare binds name in the innermost scope.
	Declare(name string, v Value)
}
