package workload

import (
	"sort"

	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/ast"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/value"
)

// Program is a runnable workload and the value it must leave in Result.
type Program struct {
	Name        string
	Description string
	Stmts       []ast.Stmt
	Result      string
	Want        value.Value
}

type entry struct {
	description string
	size        int
	build       func(b *Builder, n int) ([]ast.Stmt, string, int64)
}

var catalog = map[string]entry{
	"sum_range":        {"for i in 0..n: sum += i", 1000, SumRange},
	"simple_while":     {"while i <= n: sum = sum + i", 1000, SimpleWhile},
	"simple_for":       {"for i in 1..n+1: sum = sum + i", 1000, SimpleFor},
	"nested_while":     {"two nested while loops counting n*n", 50, NestedWhile},
	"nested_products":  {"nested while loops summing i*j", 100, NestedProducts},
	"complex_loop":     {"for loop around a while loop with a parity branch", 200, ComplexLoop},
	"factorial":        {"iterative factorial, a multiplicative reduction", 12, Factorial},
	"sum_of_squares":   {"for i in 1..n+1: sum += i*i", 1000, SumOfSquares},
	"count_primes":     {"trial division with an inner break", 1000, CountPrimes},
	"array_sum":        {"for x in array: sum += x", 1000, ArraySum},
	"invariant_scale":  {"loop-invariant factor and constant multiply", 1000, InvariantScale},
	"first_multiple":   {"search loop leaving through break", 1000, FirstMultiple},
	"abs_distance_sum": {"calls a builtin, so it always stays interpreted", 1000, AbsDistanceSum},
}

// Names returns the workload names in sorted order.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns the one-line description of a workload.
func Describe(name string) (string, bool) {
	e, ok := catalog[name]
	return e.description, ok
}

// Build constructs workload name with its default size. Each call creates a
// fresh tree; col separates the loop sites of programs built side by side.
func Build(name string, col int) (*Program, bool) {
	e, ok := catalog[name]
	if !ok {
		return nil, false
	}
	return BuildSized(name, col, e.size)
}

// BuildSized is Build with an explicit problem size.
func BuildSized(name string, col, n int) (*Program, bool) {
	e, ok := catalog[name]
	if !ok {
		return nil, false
	}
	stmts, result, want := e.build(NewBuilder(col), n)
	return &Program{
		Name:        name,
		Description: e.description,
		Stmts:       stmts,
		Result:      result,
		Want:        value.Int(want),
	}, true
}

// SumRange: let sum = 0; for i in 0..n { sum += i }
func SumRange(b *Builder, n int) ([]ast.Stmt, string, int64) {
	var want int64
	for i := 0; i < n; i++ {
		want += int64(i)
	}
	return []ast.Stmt{
		b.Let("sum", b.Int(0)),
		b.For("i", b.Int(0), b.Int(int64(n)),
			b.Op("sum", ast.OpAdd, b.Ident("i")),
		),
	}, "sum", want
}

func SimpleWhile(b *Builder, n int) ([]ast.Stmt, string, int64) {
	var want int64
	for i := 1; i <= n; i++ {
		want += int64(i)
	}
	return []ast.Stmt{
		b.Let("sum", b.Int(0)),
		b.Let("i", b.Int(1)),
		b.While(b.Bin(ast.OpLe, b.Ident("i"), b.Int(int64(n))),
			b.Set("sum", b.Bin(ast.OpAdd, b.Ident("sum"), b.Ident("i"))),
			b.Set("i", b.Bin(ast.OpAdd, b.Ident("i"), b.Int(1))),
		),
	}, "sum", want
}

func SimpleFor(b *Builder, n int) ([]ast.Stmt, string, int64) {
	var want int64
	for i := 1; i <= n; i++ {
		want += int64(i)
	}
	return []ast.Stmt{
		b.Let("sum", b.Int(0)),
		b.For("i", b.Int(1), b.Bin(ast.OpAdd, b.Int(int64(n)), b.Int(1)),
			b.Set("sum", b.Bin(ast.OpAdd, b.Ident("sum"), b.Ident("i"))),
		),
	}, "sum", want
}

func NestedWhile(b *Builder, n int) ([]ast.Stmt, string, int64) {
	return []ast.Stmt{
		b.Let("sum", b.Int(0)),
		b.Let("i", b.Int(1)),
		b.While(b.Bin(ast.OpLe, b.Ident("i"), b.Int(int64(n))),
			b.Let("j", b.Int(1)),
			b.While(b.Bin(ast.OpLe, b.Ident("j"), b.Int(int64(n))),
				b.Set("sum", b.Bin(ast.OpAdd, b.Ident("sum"), b.Int(1))),
				b.Set("j", b.Bin(ast.OpAdd, b.Ident("j"), b.Int(1))),
			),
			b.Set("i", b.Bin(ast.OpAdd, b.Ident("i"), b.Int(1))),
		),
	}, "sum", int64(n) * int64(n)
}

func NestedProducts(b *Builder, n int) ([]ast.Stmt, string, int64) {
	var want int64
	for i := 1; i <= n; i++ {
		for j := 1; j <= n; j++ {
			want += int64(i * j)
		}
	}
	return []ast.Stmt{
		b.Let("sum", b.Int(0)),
		b.Let("i", b.Int(1)),
		b.While(b.Bin(ast.OpLe, b.Ident("i"), b.Int(int64(n))),
			b.Let("j", b.Int(1)),
			b.While(b.Bin(ast.OpLe, b.Ident("j"), b.Int(int64(n))),
				b.Op("sum", ast.OpAdd, b.Bin(ast.OpMul, b.Ident("i"), b.Ident("j"))),
				b.Op("j", ast.OpAdd, b.Int(1)),
			),
			b.Op("i", ast.OpAdd, b.Int(1)),
		),
	}, "sum", want
}

func ComplexLoop(b *Builder, n int) ([]ast.Stmt, string, int64) {
	var want int64
	for i := 1; i <= n; i++ {
		var temp int64
		for j := 1; j <= i; j++ {
			if j%2 == 0 {
				temp += int64(j * j)
			} else {
				temp += int64(j)
			}
		}
		want += temp
	}
	return []ast.Stmt{
		b.Let("result", b.Int(0)),
		b.For("i", b.Int(1), b.Bin(ast.OpAdd, b.Int(int64(n)), b.Int(1)),
			b.Let("temp", b.Int(0)),
			b.Let("j", b.Int(1)),
			b.While(b.Bin(ast.OpLe, b.Ident("j"), b.Ident("i")),
				b.If(b.Bin(ast.OpEq, b.Bin(ast.OpMod, b.Ident("j"), b.Int(2)), b.Int(0)),
					[]ast.Stmt{b.Op("temp", ast.OpAdd, b.Bin(ast.OpMul, b.Ident("j"), b.Ident("j")))},
					b.Op("temp", ast.OpAdd, b.Ident("j")),
				),
				b.Op("j", ast.OpAdd, b.Int(1)),
			),
			b.Op("result", ast.OpAdd, b.Ident("temp")),
		),
	}, "result", want
}

func Factorial(b *Builder, n int) ([]ast.Stmt, string, int64) {
	want := int64(1)
	for i := 1; i <= n; i++ {
		want *= int64(i)
	}
	return []ast.Stmt{
		b.Let("result", b.Int(1)),
		b.For("i", b.Int(1), b.Bin(ast.OpAdd, b.Int(int64(n)), b.Int(1)),
			b.Op("result", ast.OpMul, b.Ident("i")),
		),
	}, "result", want
}

func SumOfSquares(b *Builder, n int) ([]ast.Stmt, string, int64) {
	var want int64
	for i := 1; i <= n; i++ {
		want += int64(i) * int64(i)
	}
	return []ast.Stmt{
		b.Let("sum", b.Int(0)),
		b.For("i", b.Int(1), b.Bin(ast.OpAdd, b.Int(int64(n)), b.Int(1)),
			b.Op("sum", ast.OpAdd, b.Bin(ast.OpMul, b.Ident("i"), b.Ident("i"))),
		),
	}, "sum", want
}

func CountPrimes(b *Builder, n int) ([]ast.Stmt, string, int64) {
	var want int64
	for i := 2; i <= n; i++ {
		prime := true
		for d := 2; d*d <= i; d++ {
			if i%d == 0 {
				prime = false
				break
			}
		}
		if prime {
			want++
		}
	}
	return []ast.Stmt{
		b.Let("count", b.Int(0)),
		b.For("i", b.Int(2), b.Bin(ast.OpAdd, b.Int(int64(n)), b.Int(1)),
			b.Let("prime", b.Bool(true)),
			b.Let("d", b.Int(2)),
			b.While(b.Bin(ast.OpLe, b.Bin(ast.OpMul, b.Ident("d"), b.Ident("d")), b.Ident("i")),
				b.If(b.Bin(ast.OpEq, b.Bin(ast.OpMod, b.Ident("i"), b.Ident("d")), b.Int(0)),
					[]ast.Stmt{
						b.Set("prime", b.Bool(false)),
						b.Break(),
					},
				),
				b.Inc("d"),
			),
			b.If(b.Ident("prime"), []ast.Stmt{b.Inc("count")}),
		),
	}, "count", want
}

func ArraySum(b *Builder, n int) ([]ast.Stmt, string, int64) {
	var want int64
	for i := 0; i < n; i++ {
		want += int64(i)
	}
	return []ast.Stmt{
		b.Let("arr", b.Ints(n)),
		b.Let("sum", b.Int(0)),
		b.Each("x", b.Ident("arr"),
			b.Op("sum", ast.OpAdd, b.Ident("x")),
		),
	}, "sum", want
}

// InvariantScale multiplies by an expression of an outer variable and by a
// constant that strength reduction turns into shifts.
func InvariantScale(b *Builder, n int) ([]ast.Stmt, string, int64) {
	const k = 3
	var want int64
	for i := 0; i < n; i++ {
		want += int64(i)*(k+5) + int64(i)*10
	}
	return []ast.Stmt{
		b.Let("k", b.Int(k)),
		b.Let("sum", b.Int(0)),
		b.For("i", b.Int(0), b.Int(int64(n)),
			b.Op("sum", ast.OpAdd, b.Bin(ast.OpMul, b.Ident("i"), b.Bin(ast.OpAdd, b.Ident("k"), b.Int(5)))),
			b.Op("sum", ast.OpAdd, b.Bin(ast.OpMul, b.Ident("i"), b.Int(10))),
		),
	}, "sum", want
}

func FirstMultiple(b *Builder, n int) ([]ast.Stmt, string, int64) {
	var want int64 = -1
	for i := 1; i < n; i++ {
		if i%97 == 0 && i > n/2 {
			want = int64(i)
			break
		}
	}
	return []ast.Stmt{
		b.Let("found", b.Neg(b.Int(1))),
		b.For("i", b.Int(1), b.Int(int64(n)),
			b.If(b.Bin(ast.OpAnd,
				b.Bin(ast.OpEq, b.Bin(ast.OpMod, b.Ident("i"), b.Int(97)), b.Int(0)),
				b.Bin(ast.OpGt, b.Ident("i"), b.Int(int64(n/2)))),
				[]ast.Stmt{
					b.Set("found", b.Ident("i")),
					b.Break(),
				},
			),
		),
	}, "found", want
}

func AbsDistanceSum(b *Builder, n int) ([]ast.Stmt, string, int64) {
	mid := int64(n / 2)
	var want int64
	for i := int64(0); i < int64(n); i++ {
		d := i - mid
		if d < 0 {
			d = -d
		}
		want += d
	}
	return []ast.Stmt{
		b.Let("sum", b.Int(0)),
		b.For("i", b.Int(0), b.Int(int64(n)),
			b.Set("sum", b.Bin(ast.OpAdd, b.Ident("sum"),
				b.Call("abs", b.Bin(ast.OpSub, b.Ident("i"), b.Int(mid))))),
		),
	}, "sum", want
}
