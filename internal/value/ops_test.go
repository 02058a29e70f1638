package value

import (
	"math"
	"testing"

	"github.com/pkg/errors"

	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/ast"
)

func TestBinary(t *testing.T) {
	tests := []struct {
		name string
		op   ast.Op
		a, b Value
		want Value
		err  error
	}{
		{"int add", ast.OpAdd, Int(2), Int(3), Int(5), nil},
		{"int add wraps", ast.OpAdd, Int(math.MaxInt64), Int(1), Int(math.MinInt64), nil},
		{"int div truncates", ast.OpDiv, Int(-7), Int(2), Int(-3), nil},
		{"int mod sign", ast.OpMod, Int(-7), Int(2), Int(-1), nil},
		{"int div zero", ast.OpDiv, Int(1), Int(0), Nil, ErrDivisionByZero},
		{"int mod zero", ast.OpMod, Int(1), Int(0), Nil, ErrDivisionByZero},
		{"shift left", ast.OpShl, Int(3), Int(4), Int(48), nil},
		{"shift past width", ast.OpShl, Int(1), Int(64), Int(0), nil},
		{"negative shift", ast.OpShr, Int(8), Int(-1), Nil, ErrNegativeShift},
		{"mixed promotes", ast.OpMul, Int(3), Float(0.5), Float(1.5), nil},
		{"float div zero", ast.OpDiv, Float(1), Int(0), Float(math.Inf(1)), nil},
		{"comparison", ast.OpLe, Int(3), Int(3), Bool(true), nil},
		{"loose equal", ast.OpEq, Int(2), Float(2), Bool(true), nil},
		{"not equal kinds", ast.OpNe, Bool(true), Int(1), Bool(true), nil},
		{"bool arithmetic", ast.OpAdd, Bool(true), Int(1), Nil, ErrType},
		{"bit ops on floats", ast.OpBitAnd, Float(1), Float(1), Nil, ErrType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Binary(tt.op, tt.a, tt.b)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("error %v, want %v", err, tt.err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !Equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUnaryAndIndex(t *testing.T) {
	if v, _ := Unary(ast.OpNeg, Int(math.MinInt64)); !Equal(v, Int(math.MinInt64)) {
		t.Errorf("-MinInt64 = %v, want wrap", v)
	}
	if v, _ := Unary(ast.OpNot, Array()); !Equal(v, Bool(true)) {
		t.Errorf("!<empty array> = %v", v)
	}
	if _, err := Unary(ast.OpNeg, Bool(true)); !errors.Is(err, ErrType) {
		t.Errorf("-true: %v", err)
	}

	arr := Array(Int(10), Int(20))
	if v, _ := IndexOf(arr, Int(1)); !Equal(v, Int(20)) {
		t.Errorf("arr[1] = %v", v)
	}
	for _, i := range []int64{-1, 2} {
		if _, err := IndexOf(arr, Int(i)); !errors.Is(err, ErrIndexRange) {
			t.Errorf("arr[%d]: %v", i, err)
		}
	}
}

func TestBitsRoundTrip(t *testing.T) {
	for _, v := range []Value{Int(-5), Float(math.Copysign(0, -1)), Bool(true), Bool(false), Nil} {
		if got := FromBits(v.Kind, v.Bits()); !Equal(got, v) {
			t.Errorf("FromBits(Bits(%v)) = %v", v, got)
		}
	}
}
