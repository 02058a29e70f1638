package jit

import (
	"fmt"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/ast"
	cnerrors "github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/errors"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/hotspot"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/interp"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/memory"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/optimizer"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/value"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/workload"
)

// compiledRunner compiles every loop the interpreter reaches and runs the
// compiled form inside a manager frame.
type compiledRunner struct {
	mgr   *memory.Manager
	sel   *optimizer.Selector
	comp  *Compiler
	loops []*CompiledLoop
}

func newCompiledRunner(opts optimizer.Options) *compiledRunner {
	return &compiledRunner{
		mgr:  memory.NewManager(memory.DefaultOptions()),
		sel:  optimizer.NewSelector(opts),
		comp: NewCompiler(),
	}
}

func (r *compiledRunner) compile(l ast.Loop) (*CompiledLoop, *ast.Shape, error) {
	shape := ast.Canonicalize(l)
	prof := hotspot.Profile{Tier: hotspot.ClassifyComplexity(l.Body()), Access: hotspot.ClassifyAccess(l)}
	sel := r.sel.Select(l, shape, prof)
	cl, err := r.comp.Compile(l, shape, sel, NewFingerprint(shape, prof.Tier, sel.Set))
	return cl, shape, err
}

func (r *compiledRunner) RunLoop(in *interp.Interpreter, l ast.Loop, env value.Environment) (interp.Result, error) {
	cl, shape, err := r.compile(l)
	if err != nil {
		return interp.Result{}, err
	}
	r.loops = append(r.loops, cl)

	h, err := in.EvalHeader(l, env)
	if err != nil {
		return interp.Result{}, err
	}
	f, err := r.mgr.Enter(l, shape, env)
	if err != nil {
		return interp.Result{}, err
	}
	res, _, err := cl.Run(f, Inputs{Header: h, Nodes: ast.Preorder(l)})
	if xerr := r.mgr.Exit(f); err == nil {
		err = xerr
	}
	return res, err
}

// execute runs stmts in a fresh global scope, compiled when r is non-nil.
func execute(stmts []ast.Stmt, r interp.LoopRunner) (*interp.Scope, error) {
	env := interp.NewScope(nil)
	in := interp.New(nil)
	in.Runner = r
	_, err := in.Exec(stmts, env)
	return env, err
}

var selectorConfigs = map[string]optimizer.Options{
	"all strategies": {VectorWidth: 4, UnrollFactor: 4},
	"odd widths":     {VectorWidth: 3, UnrollFactor: 3},
	"none": {Disabled: optimizer.Set(0).
		With(optimizer.Hoisting).
		With(optimizer.StrengthReduction).
		With(optimizer.Vectorization).
		With(optimizer.Unrolling).
		With(optimizer.BranchHints)},
}

// quadratic workloads are too slow to interpret at the largest size
var quadratic = map[string]bool{
	"nested_while":    true,
	"nested_products": true,
	"complex_loop":    true,
}

func TestCompiledMatchesReference(t *testing.T) {
	for _, name := range workload.Names() {
		if name == "abs_distance_sum" {
			continue
		}
		for _, n := range []int{0, 1, 5, 64, 1000} {
			if n == 1000 && quadratic[name] {
				continue
			}
			for cfg, opts := range selectorConfigs {
				t.Run(fmt.Sprintf("%s/n=%d/%s", name, n, cfg), func(t *testing.T) {
					ref, _ := workload.BuildSized(name, 1, n)
					refEnv, err := execute(ref.Stmts, nil)
					if err != nil {
						t.Fatalf("reference: %v", err)
					}
					want, _ := refEnv.Lookup(ref.Result)
					if !value.Equal(want, ref.Want) {
						t.Fatalf("reference %s = %v, want %v", ref.Result, want, ref.Want)
					}

					prog, _ := workload.BuildSized(name, 1, n)
					r := newCompiledRunner(opts)
					env, err := execute(prog.Stmts, r)
					if err != nil {
						t.Fatalf("compiled: %v", err)
					}
					if got, _ := env.Lookup(prog.Result); !value.Equal(got, want) {
						t.Errorf("compiled %s = %v, reference %v", prog.Result, got, want)
					}
					if len(r.loops) == 0 {
						t.Error("no loop was compiled")
					}
					if d := r.mgr.Depth(); d != 0 {
						t.Errorf("%d frames left open", d)
					}
				})
			}
		}
	}
}

func TestRuntimeErrorsMatchReference(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *workload.Builder) []ast.Stmt
		cause error
	}{
		{
			name: "division by zero in a reduction",
			build: func(b *workload.Builder) []ast.Stmt {
				return []ast.Stmt{
					b.Let("sum", b.Int(0)),
					b.For("i", b.Int(0), b.Int(9),
						b.Op("sum", ast.OpAdd, b.Bin(ast.OpDiv, b.Int(60), b.Bin(ast.OpSub, b.Ident("i"), b.Int(6))))),
				}
			},
			cause: value.ErrDivisionByZero,
		},
		{
			name: "undefined variable",
			build: func(b *workload.Builder) []ast.Stmt {
				return []ast.Stmt{
					b.Let("sum", b.Int(0)),
					b.For("i", b.Int(0), b.Int(4), b.Op("sum", ast.OpAdd, b.Ident("missing"))),
				}
			},
			cause: interp.ErrUndefined,
		},
		{
			name: "hoisted fault is raised when reached",
			build: func(b *workload.Builder) []ast.Stmt {
				return []ast.Stmt{
					b.Let("sum", b.Int(0)),
					b.For("i", b.Int(0), b.Int(4),
						b.Op("sum", ast.OpAdd, b.Bin(ast.OpMul, b.Ident("i"), b.Bin(ast.OpAdd, b.Ident("missing"), b.Int(1))))),
				}
			},
			cause: interp.ErrUndefined,
		},
		{
			name: "hoisted fault in a loop that never runs",
			build: func(b *workload.Builder) []ast.Stmt {
				return []ast.Stmt{
					b.Let("sum", b.Int(0)),
					b.For("i", b.Int(0), b.Int(0),
						b.Op("sum", ast.OpAdd, b.Bin(ast.OpAdd, b.Ident("missing"), b.Int(1)))),
				}
			},
		},
		{
			name: "type error in a nested loop",
			build: func(b *workload.Builder) []ast.Stmt {
				return []ast.Stmt{
					b.Let("sum", b.Int(0)),
					b.For("i", b.Int(0), b.Int(4),
						b.For("j", b.Int(0), b.Int(4),
							b.If(b.Bin(ast.OpEq, b.Ident("j"), b.Int(2)),
								[]ast.Stmt{b.Set("sum", b.Bin(ast.OpAdd, b.Ident("sum"), b.Bool(true)))},
								b.Inc("sum"),
							),
						),
					),
				}
			},
			cause: value.ErrType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refEnv, refErr := execute(tt.build(workload.NewBuilder(1)), nil)
			env, err := execute(tt.build(workload.NewBuilder(1)), newCompiledRunner(selectorConfigs["all strategies"]))

			if tt.cause == nil {
				if refErr != nil || err != nil {
					t.Fatalf("reference %v, compiled %v", refErr, err)
				}
				return
			}
			if !errors.Is(refErr, tt.cause) || !errors.Is(err, tt.cause) {
				t.Fatalf("reference %v, compiled %v, want %v", refErr, err, tt.cause)
			}

			var refLE, le *cnerrors.LoopError
			if !errors.As(refErr, &refLE) || !errors.As(err, &le) {
				t.Fatal("errors are not LoopErrors")
			}
			if le.Location != refLE.Location {
				t.Errorf("compiled fault at %+v, reference at %+v", le.Location, refLE.Location)
			}
			if len(le.LoopStack) != len(refLE.LoopStack) {
				t.Errorf("compiled loop stack %+v, reference %+v", le.LoopStack, refLE.LoopStack)
			}

			want, _ := refEnv.Lookup("sum")
			if got, _ := env.Lookup("sum"); !value.Equal(got, want) {
				t.Errorf("sum after fault %v, reference %v", got, want)
			}
		})
	}
}

func TestCompileUnsupported(t *testing.T) {
	b := workload.NewBuilder(1)
	tests := []struct {
		name string
		loop ast.Loop
	}{
		{"call", b.For("i", b.Int(0), b.Int(4), b.Op("s", ast.OpAdd, b.Call("abs", b.Ident("i"))))},
		{"name scoped to an inner loop", b.For("i", b.Int(0), b.Int(4),
			b.For("j", b.Int(0), b.Int(2), b.Let("t", b.Ident("j"))),
			b.Op("s", ast.OpAdd, b.Ident("t")),
		)},
		{"inner loop variable used outside", b.For("i", b.Int(0), b.Int(4),
			b.For("j", b.Int(0), b.Int(2)),
			b.Set("s", b.Ident("j")),
		)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := newCompiledRunner(optimizer.Options{}).compile(tt.loop)
			if !errors.Is(err, ErrUnsupported) {
				t.Errorf("error %v, want ErrUnsupported", err)
			}
			var le *cnerrors.LoopError
			if !errors.As(err, &le) || le.Type != cnerrors.CompilationUnsupported {
				t.Fatalf("error %v is not a CompilationUnsupported LoopError", err)
			}
			if p := tt.loop.Position(); le.Location.Line != p.Line || le.Location.Column != p.Col {
				t.Errorf("located at %+v, loop at %s", le.Location, p)
			}
		})
	}
}

func TestFingerprintIgnoresNamesAndPositions(t *testing.T) {
	r := newCompiledRunner(selectorConfigs["all strategies"])

	a := workload.NewBuilder(1)
	la := a.For("i", a.Int(0), a.Int(10), a.Op("sum", ast.OpAdd, a.Ident("i")))
	b := workload.NewBuilder(7)
	lb := b.For("k", b.Int(0), b.Int(10), b.Op("total", ast.OpAdd, b.Ident("k")))
	c := workload.NewBuilder(1)
	lc := c.For("i", c.Int(0), c.Int(10), c.Op("sum", ast.OpMul, c.Ident("i")))

	ca, _, err := r.compile(la)
	if err != nil {
		t.Fatal(err)
	}
	cb, _, _ := r.compile(lb)
	cc, _, _ := r.compile(lc)

	if ca.Fingerprint != cb.Fingerprint {
		t.Errorf("renamed loop fingerprint %s, want %s", cb.Fingerprint, ca.Fingerprint)
	}
	if ca.Fingerprint == cc.Fingerprint {
		t.Error("different operators share a fingerprint")
	}
	if ca.ID == cb.ID {
		t.Error("two compiles share an artifact id")
	}
	if ca.IR != cb.IR {
		t.Error("IR depends on names or positions")
	}
}

func TestIRListing(t *testing.T) {
	p, _ := workload.Build("invariant_scale", 1)
	r := newCompiledRunner(selectorConfigs["all strategies"])
	if _, err := execute(p.Stmts, r); err != nil {
		t.Fatal(err)
	}
	cl := r.loops[0]
	want := fmt.Sprintf("@loop_%016x", cl.Fingerprint.Hash)
	if !strings.Contains(cl.IR, want) {
		t.Errorf("IR lacks %s:\n%s", want, cl.IR)
	}
	if cl.Size != len(cl.IR) {
		t.Errorf("Size %d, IR is %d bytes", cl.Size, len(cl.IR))
	}
	if !cl.Strategies.Has(optimizer.Hoisting) || !cl.Strategies.Has(optimizer.StrengthReduction) {
		t.Errorf("strategies %s", cl.Strategies)
	}

	r.comp.EmitIR = false
	cl, _, err := r.compile(p.Stmts[2].(ast.Loop))
	if err != nil {
		t.Fatal(err)
	}
	if cl.IR != "" || cl.Size != 0 {
		t.Error("IR emitted with EmitIR off")
	}
}

func TestRunRejectsForeignFrame(t *testing.T) {
	b := workload.NewBuilder(1)
	small := b.For("i", b.Int(0), b.Int(3))
	big := b.For("i", b.Int(0), b.Int(3), b.Let("t", b.Ident("i")), b.Op("s", ast.OpAdd, b.Ident("t")))

	r := newCompiledRunner(optimizer.Options{})
	cl, _, err := r.compile(big)
	if err != nil {
		t.Fatal(err)
	}
	env := interp.NewScope(nil)
	f, err := r.mgr.Enter(small, ast.Canonicalize(small), env)
	if err != nil {
		t.Fatal(err)
	}
	defer r.mgr.Exit(f)

	_, n, err := cl.Run(f, Inputs{Header: interp.Header{Start: 0, End: 3, Step: 1}, Nodes: ast.Preorder(small)})
	if !errors.Is(err, ErrInternal) || n != 0 {
		t.Errorf("Run = %d, %v; want ErrInternal before any iteration", n, err)
	}
}

func TestNestDepth(t *testing.T) {
	p, _ := workload.Build("count_primes", 1)
	r := newCompiledRunner(optimizer.Options{})
	cl, _, err := r.compile(p.Stmts[1].(ast.Loop))
	if err != nil {
		t.Fatal(err)
	}
	if cl.NestDepth != 1 {
		t.Errorf("NestDepth = %d, want 1", cl.NestDepth)
	}
}

func BenchmarkSumRange(b *testing.B) {
	for _, mode := range []string{"interpreted", "compiled"} {
		b.Run(mode, func(b *testing.B) {
			p, _ := workload.Build("sum_range", 1)
			var r interp.LoopRunner
			if mode == "compiled" {
				r = newCompiledRunner(selectorConfigs["all strategies"])
			}
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := execute(p.Stmts, r); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
