package hotspot

import (
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/ast"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/workload"
)

func TestShouldCompileThreshold(t *testing.T) {
	a := NewAnalyzer(Options{Threshold: 5, MinIterations: 10, MinElapsed: time.Hour})
	const id = ast.LoopID("L1:1")

	for run := 1; run <= 20; run++ {
		a.RecordExecution(id, 100, time.Microsecond)
		got := a.ShouldCompile(id)
		if want := run >= 5; got != want {
			t.Fatalf("after %d executions ShouldCompile = %v, want %v", run, got, want)
		}
	}
}

func TestShouldCompileIsMonotonic(t *testing.T) {
	a := NewAnalyzer(Options{Threshold: 3, MinIterations: 1000, MinElapsed: time.Hour})
	const id = ast.LoopID("L2:1")

	became := -1
	for run := 0; run < 50; run++ {
		// small executions: the iteration floor is crossed late
		a.RecordExecution(id, 40, 0)
		hot := a.ShouldCompile(id)
		if hot && became < 0 {
			became = run
		}
		if !hot && became >= 0 {
			t.Fatalf("run %d: ShouldCompile flipped back to false", run)
		}
	}
	if became != 24 {
		t.Errorf("became hot at run %d, want 24 (1000 iterations)", became)
	}
}

func TestShouldCompileFloors(t *testing.T) {
	tests := []struct {
		name       string
		iterations int64
		elapsed    time.Duration
		want       bool
	}{
		{"neither floor", 1, time.Nanosecond, false},
		{"iteration floor", 64, 0, true},
		{"time floor", 0, time.Millisecond, true},
		{"zero-trip loops", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAnalyzer(Options{Threshold: 1, MinIterations: 64, MinElapsed: time.Millisecond})
			a.RecordExecution("L", tt.iterations, tt.elapsed)
			if got := a.ShouldCompile("L"); got != tt.want {
				t.Errorf("ShouldCompile = %v, want %v", got, tt.want)
			}
		})
	}
	if NewAnalyzer(DefaultOptions()).ShouldCompile("never-seen") {
		t.Error("unknown loop is hot")
	}
}

func TestRunningMeans(t *testing.T) {
	a := NewAnalyzer(DefaultOptions())
	for _, n := range []int64{10, 20, 30, -5} {
		a.RecordExecution("L", n, time.Duration(n)*time.Millisecond)
	}
	p, ok := a.Profile("L")
	if !ok {
		t.Fatal("profile missing")
	}
	if p.Executions != 4 || p.Iterations != 60 {
		t.Errorf("executions %d iterations %d", p.Executions, p.Iterations)
	}
	if p.AvgIterations != 15 {
		t.Errorf("AvgIterations = %v, want 15", p.AvgIterations)
	}
}

func TestReset(t *testing.T) {
	a := NewAnalyzer(Options{Threshold: 2, MinIterations: 1, MinElapsed: time.Hour})
	a.RecordExecution("L", 5, 0)
	a.RecordExecution("L", 5, 0)
	a.Reset("L")

	if _, ok := a.Profile("L"); ok || a.ShouldCompile("L") {
		t.Error("profile survived Reset")
	}
	a.RecordExecution("L", 5, 0)
	if p, _ := a.Profile("L"); p.Executions != 1 {
		t.Errorf("executions after reset %d", p.Executions)
	}
}

func TestProfilesHottestFirst(t *testing.T) {
	a := NewAnalyzer(DefaultOptions())
	a.RecordExecution("cold", 1, time.Millisecond)
	a.RecordExecution("hot", 1, time.Second)
	a.RecordExecution("warm-b", 1, 10*time.Millisecond)
	a.RecordExecution("warm-a", 1, 10*time.Millisecond)

	var got []ast.LoopID
	for _, p := range a.Profiles() {
		got = append(got, p.ID)
	}
	want := []ast.LoopID{"hot", "warm-a", "warm-b", "cold"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order %v, want %v", got, want)
		}
	}
}

func TestConcurrentRecording(t *testing.T) {
	a := NewAnalyzer(Options{Threshold: 1000})
	var g errgroup.Group
	for w := 0; w < 8; w++ {
		g.Go(func() error {
			for i := 0; i < 500; i++ {
				a.RecordExecution("shared", 2, time.Microsecond)
				a.ShouldCompile("shared")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	p, _ := a.Profile("shared")
	if p.Executions != 4000 || p.Iterations != 8000 {
		t.Errorf("lost updates: %d executions, %d iterations", p.Executions, p.Iterations)
	}
	if !a.ShouldCompile("shared") {
		t.Error("4000 executions did not cross a threshold of 1000")
	}
}

func TestClassifyComplexity(t *testing.T) {
	b := workload.NewBuilder(1)
	sum := func() ast.Stmt { return b.Op("sum", ast.OpAdd, b.Ident("i")) }

	tests := []struct {
		name string
		body []ast.Stmt
		want Tier
	}{
		{"single accumulate", []ast.Stmt{sum()}, TierTrivial},
		{"three statements", []ast.Stmt{sum(), sum(), sum()}, TierSimple},
		{"branch", []ast.Stmt{b.If(b.Ident("c"), []ast.Stmt{sum()})}, TierSimple},
		{"call", []ast.Stmt{b.Set("sum", b.Call("abs", b.Ident("i")))}, TierSimple},
		{"nested loop", []ast.Stmt{b.For("j", b.Int(0), b.Int(3), sum())}, TierModerate},
		{"nested loop with branches", []ast.Stmt{
			sum(),
			b.For("j", b.Int(0), b.Int(3),
				b.If(b.Ident("c"), []ast.Stmt{sum(), sum()}, sum()),
				b.Expr(b.Call("print", b.Ident("j"))),
			),
		}, TierComplex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyComplexity(tt.body); got != tt.want {
				t.Errorf("tier %s (%+v), want %s", got, Measure(tt.body), tt.want)
			}
		})
	}
}

func TestClassifyAccess(t *testing.T) {
	b := workload.NewBuilder(1)
	read := func(idx ast.Expr) []ast.Stmt {
		return []ast.Stmt{b.Op("sum", ast.OpAdd, b.Index(b.Ident("a"), idx))}
	}

	tests := []struct {
		name string
		loop ast.Loop
		want AccessPattern
	}{
		{"no indexing", b.For("i", b.Int(0), b.Int(8), b.Inc("sum")), AccessScalarOnly},
		{"a[i]", b.For("i", b.Int(0), b.Int(8), read(b.Ident("i"))...), AccessSequential},
		{"a[i+1]", b.For("i", b.Int(0), b.Int(8), read(b.Bin(ast.OpAdd, b.Ident("i"), b.Int(1)))...), AccessSequential},
		{"a[2*i]", b.For("i", b.Int(0), b.Int(8), read(b.Bin(ast.OpMul, b.Int(2), b.Ident("i")))...), AccessStrided},
		{"a[i*2+1]", b.For("i", b.Int(0), b.Int(8), read(b.Bin(ast.OpAdd, b.Bin(ast.OpMul, b.Ident("i"), b.Int(2)), b.Int(1)))...), AccessStrided},
		{"a[j]", b.For("i", b.Int(0), b.Int(8), read(b.Ident("j"))...), AccessIrregular},
		{"while a[k]", b.While(b.Bool(false), read(b.Ident("k"))...), AccessIrregular},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyAccess(tt.loop); got != tt.want {
				t.Errorf("access %s, want %s", got, tt.want)
			}
		})
	}
}
