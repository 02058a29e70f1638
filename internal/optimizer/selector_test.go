package optimizer

import (
	"testing"

	"github.com/kr/pretty"

	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/ast"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/hotspot"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/workload"
)

// loopOf returns the first loop statement of a workload program.
func loopOf(t *testing.T, build func(*workload.Builder, int) ([]ast.Stmt, string, int64)) ast.Loop {
	t.Helper()
	stmts, _, _ := build(workload.NewBuilder(1), 100)
	for _, s := range stmts {
		if l, ok := s.(ast.Loop); ok {
			return l
		}
	}
	t.Fatal("program has no loop")
	return nil
}

func selectFor(l ast.Loop, opts Options, prof hotspot.Profile) *Selection {
	if opts.VectorWidth == 0 {
		opts.VectorWidth = 4
	}
	return NewSelector(opts).Select(l, ast.Canonicalize(l), prof)
}

func TestSelectStrategies(t *testing.T) {
	b := workload.NewBuilder(1)
	callLoop := b.For("i", b.Int(0), b.Int(8), b.Set("s", b.Call("abs", b.Ident("i"))))
	whileLoop := b.While(b.Bin(ast.OpLt, b.Ident("i"), b.Int(8)), b.Inc("i"))

	tests := []struct {
		name string
		loop ast.Loop
		prof hotspot.Profile
		want Set
	}{
		{
			name: "sum reduction",
			loop: loopOf(t, workload.SumRange),
			want: Set(0).With(Vectorization).With(Unrolling),
		},
		{
			name: "invariant factor and constant multiply",
			loop: loopOf(t, workload.InvariantScale),
			want: Set(0).With(Hoisting).With(StrengthReduction).With(Unrolling),
		},
		{
			name: "factorial",
			loop: loopOf(t, workload.Factorial),
			want: Set(0).With(Vectorization).With(Unrolling),
		},
		{
			name: "complex tier keeps only safe rewrites",
			loop: loopOf(t, workload.SumRange),
			prof: hotspot.Profile{Tier: hotspot.TierComplex},
			want: 0,
		},
		{
			name: "irregular access blocks vectorization",
			loop: loopOf(t, workload.SumRange),
			prof: hotspot.Profile{Access: hotspot.AccessIrregular},
			want: Set(0).With(Unrolling),
		},
		{
			name: "calls",
			loop: callLoop,
			want: 0,
		},
		{
			name: "while loop",
			loop: whileLoop,
			want: 0,
		},
		{
			name: "collection loop",
			loop: loopOf(t, workload.ArraySum),
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := selectFor(tt.loop, Options{}, tt.prof)
			if sel.Set != tt.want {
				t.Errorf("strategies %s, want %s", sel.Set, tt.want)
			}
		})
	}
}

func TestSelectRespectsDisabled(t *testing.T) {
	l := loopOf(t, workload.InvariantScale)
	all := Set(0)
	for st := Strategy(0); st < numStrategies; st++ {
		all = all.With(st)
	}
	if sel := selectFor(l, Options{Disabled: all}, hotspot.Profile{}); !sel.Set.Empty() {
		t.Errorf("everything disabled, still selected %s", sel.Set)
	}

	sel := selectFor(l, Options{Disabled: Set(0).With(Hoisting)}, hotspot.Profile{})
	if sel.Set.Has(Hoisting) || len(sel.Hoisted) > 0 {
		t.Errorf("hoisting disabled but selected: %s", sel.Set)
	}
	if !sel.Set.Has(StrengthReduction) {
		t.Errorf("disabling hoisting dropped strength reduction: %s", sel.Set)
	}
}

func TestHoistedExpressions(t *testing.T) {
	b := workload.NewBuilder(1)
	inv := b.Bin(ast.OpAdd, b.Ident("k"), b.Int(5))
	div := b.Bin(ast.OpDiv, b.Ident("k"), b.Ident("m"))
	l := b.For("i", b.Int(0), b.Int(8),
		b.Op("sum", ast.OpAdd, b.Bin(ast.OpMul, b.Ident("i"), inv)),
		// division may fault, so it stays where it is
		b.Op("sum", ast.OpAdd, div),
		b.Op("sum", ast.OpAdd, b.Bin(ast.OpAdd, b.Int(1), b.Int(2))),
	)
	sel := selectFor(l, Options{}, hotspot.Profile{})

	if len(sel.Hoisted) != 1 || sel.Hoisted[0] != inv {
		t.Fatalf("hoisted %# v, want only k + 5", pretty.Formatter(sel.Hoisted))
	}
	if i, ok := sel.HoistIndex(inv); !ok || i != 0 {
		t.Errorf("HoistIndex = %d, %v", i, ok)
	}
	if _, ok := sel.HoistIndex(div); ok {
		t.Error("division was hoisted")
	}
}

func TestShiftsFor(t *testing.T) {
	tests := []struct {
		c    int64
		want []uint
		ok   bool
	}{
		{1, []uint{0}, true},
		{8, []uint{3}, true},
		{10, []uint{1, 3}, true},
		{7, []uint{0, 1, 2}, true},
		{15, nil, false},
		{0, nil, false},
		{-4, nil, false},
	}
	for _, tt := range tests {
		got, ok := shiftsFor(tt.c)
		if ok != tt.ok {
			t.Errorf("shiftsFor(%d) ok = %v", tt.c, ok)
			continue
		}
		if diff := pretty.Diff(got, tt.want); len(diff) > 0 {
			t.Errorf("shiftsFor(%d): %v", tt.c, diff)
		}
	}
}

func TestReductions(t *testing.T) {
	b := workload.NewBuilder(1)
	tests := []struct {
		name string
		stmt ast.Stmt
		ok   bool
	}{
		{"compound add", b.Op("s", ast.OpAdd, b.Ident("i")), true},
		{"compound mul", b.Op("s", ast.OpMul, b.Ident("i")), true},
		{"assign acc first", b.Set("s", b.Bin(ast.OpAdd, b.Ident("s"), b.Ident("i"))), true},
		{"assign acc second", b.Set("s", b.Bin(ast.OpMul, b.Ident("i"), b.Ident("s"))), true},
		{"subtraction", b.Op("s", ast.OpSub, b.Ident("i")), false},
		{"contribution reads acc", b.Op("s", ast.OpAdd, b.Bin(ast.OpMul, b.Ident("s"), b.Int(2))), false},
		{"counter", b.Op("i", ast.OpAdd, b.Int(1)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := b.For("i", b.Int(0), b.Int(8), tt.stmt)
			sel := selectFor(l, Options{}, hotspot.Profile{})
			_, ok := sel.ReductionOf(tt.stmt)
			if ok != tt.ok {
				t.Errorf("reduction = %v, want %v", ok, tt.ok)
			}
			if ok && sel.Width != 4 {
				t.Errorf("width %d, want 4", sel.Width)
			}
		})
	}
}

func TestBranchHints(t *testing.T) {
	b := workload.NewBuilder(1)
	below := b.If(b.Bin(ast.OpLt, b.Ident("i"), b.Ident("n")), []ast.Stmt{b.Inc("a")})
	mirrored := b.If(b.Bin(ast.OpLt, b.Int(10), b.Ident("i")), []ast.Stmt{b.Inc("a")})
	equal := b.If(b.Bin(ast.OpEq, b.Ident("i"), b.Int(3)), []ast.Stmt{b.Inc("a")})
	varying := b.If(b.Bin(ast.OpLt, b.Ident("i"), b.Ident("a")), []ast.Stmt{b.Inc("a")})
	l := b.For("i", b.Int(0), b.Int(100), below, mirrored, equal, varying)

	sel := selectFor(l, Options{}, hotspot.Profile{})
	want := map[*ast.If]bool{
		below.(*ast.If):    true,
		mirrored.(*ast.If): false,
		equal.(*ast.If):    false,
	}
	if len(sel.Hints) != len(want) {
		t.Errorf("%d hints, want %d", len(sel.Hints), len(want))
	}
	for ifs, likely := range want {
		got, ok := sel.Hints[ifs]
		if !ok || got != likely {
			t.Errorf("hint for line %d = %v (present %v), want %v", ifs.At.Line, got, ok, likely)
		}
	}
	if !sel.Set.Has(BranchHints) {
		t.Errorf("set %s lacks branch hints", sel.Set)
	}
}

func TestParseSet(t *testing.T) {
	s, err := ParseSet([]string{"Unrolling", " hoisting "})
	if err != nil {
		t.Fatal(err)
	}
	if s.String() != "hoisting+unrolling" {
		t.Errorf("String() = %q", s.String())
	}
	if _, err := ParseSet([]string{"loop-fusion"}); err == nil {
		t.Error("unknown strategy accepted")
	}
	if Set(0).String() != "none" {
		t.Errorf("empty set prints %q", Set(0).String())
	}
}
