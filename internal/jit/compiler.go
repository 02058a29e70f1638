// Package jit compiles hot loops into closure trees that run directly against
// a loop frame's slots, and keeps the compiled artifacts in a shared cache.
package jit

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/ast"
	cnerrors "github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/errors"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/interp"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/logger"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/optimizer"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/value"
)

var (
	ErrUnsupported = errors.New("jit: unsupported construct")
	ErrInternal    = errors.New("jit: internal compiler error")
)

type (
	evalFn func(r *runtime) (value.Value, error)
	execFn func(r *runtime) (interp.Result, error)
)

// Compiler turns a loop, its shape and a strategy selection into a
// CompiledLoop. It reads the tree only and is safe for concurrent use.
type Compiler struct {
	// EmitIR controls whether the LLVM IR listing is generated.
	EmitIR bool
}

// NewCompiler creates a Compiler that emits IR.
func NewCompiler() *Compiler {
	return &Compiler{EmitIR: true}
}

// Compile builds the executable form of l. Failures are LoopErrors at the
// loop's position: CompilationUnsupported wrapping ErrUnsupported for
// constructs the backend cannot lower, CompilationInternal wrapping
// ErrInternal for defects.
func (c *Compiler) Compile(l ast.Loop, shape *ast.Shape, sel *optimizer.Selection, fp Fingerprint) (*CompiledLoop, error) {
	cl, err := c.compile(l, shape, sel, fp)
	if err != nil {
		t := cnerrors.CompilationInternal
		if errors.Is(err, ErrUnsupported) {
			t = cnerrors.CompilationUnsupported
		}
		pos := l.Position()
		return nil, cnerrors.Wrap(t, err, pos.Line, pos.Col)
	}
	return cl, nil
}

func (c *Compiler) compile(l ast.Loop, shape *ast.Shape, sel *optimizer.Selection, fp Fingerprint) (cl *CompiledLoop, err error) {
	defer func() {
		if p := recover(); p != nil {
			cl = nil
			err = errors.Wrapf(ErrInternal, "%v", p)
		}
	}()

	if err := supported(l); err != nil {
		return nil, err
	}

	cc := &compiler{
		shape: shape,
		sel:   sel,
		index: make(map[ast.Node]int),
	}
	for i, n := range ast.Preorder(l) {
		cc.index[n] = i
	}

	entry, err := cc.entry(l)
	if err != nil {
		return nil, err
	}

	cl = &CompiledLoop{
		ID:          uuid.New(),
		Fingerprint: fp,
		Strategies:  sel.Set,
		CompiledAt:  time.Now(),
		NestDepth:   nestDepth(l.Body()),
		entry:       entry,
	}
	for slot, i := range shape.Promoted() {
		cl.Layout = append(cl.Layout, Slot{Index: i, Slot: slot, Offset: slot * value.SlotSize})
	}
	if c.EmitIR {
		if cl.IR, err = lowerIR(l, shape, sel, fp); err != nil {
			return nil, errors.Wrap(ErrInternal, err.Error())
		}
		cl.Size = len(cl.IR)
	}

	logger.Trace(logger.JIT, "compiled loop", "fingerprint", fp, "strategies", sel.Set.String(), "slots", len(cl.Layout), "size", cl.Size)
	return cl, nil
}

// supported rejects calls, and names declared in a nested loop that are also
// used outside it. The compiled body keeps one frame for all nesting levels.
func supported(l ast.Loop) error {
	if ast.HasCall(l.Body()) {
		return errors.Wrap(ErrUnsupported, "call to dynamically resolved function")
	}
	var err error
	ast.InspectStmts(l.Body(), func(n ast.Node) bool {
		inner, ok := n.(ast.Loop)
		if err != nil || !ok {
			return err == nil
		}
		outside := namesOutside(l, inner)
		for name := range declaredIn(inner) {
			if outside[name] {
				err = errors.Wrapf(ErrUnsupported, "%s is scoped to a nested loop", name)
				return false
			}
		}
		return true
	})
	return err
}

// declaredIn returns the names a loop declares, including nested loops.
func declaredIn(l ast.Loop) map[string]bool {
	out := make(map[string]bool)
	if v, ok := ast.LoopVar(l); ok {
		out[v] = true
	}
	ast.InspectStmts(l.Body(), func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.Let:
			out[n.Name] = true
		case ast.Loop:
			if v, ok := ast.LoopVar(n); ok {
				out[v] = true
			}
		}
		return true
	})
	return out
}

// namesOutside collects every name l mentions outside the subtree of inner.
func namesOutside(l ast.Loop, inner ast.Loop) map[string]bool {
	out := make(map[string]bool)
	if v, ok := ast.LoopVar(l); ok {
		out[v] = true
	}
	ast.InspectStmts(l.Body(), func(n ast.Node) bool {
		if n == ast.Node(inner) {
			return false
		}
		switch n := n.(type) {
		case *ast.Ident:
			out[n.Name] = true
		default:
			if s, ok := n.(ast.Stmt); ok {
				if name, ok := ast.AssignedName(s); ok {
					out[name] = true
				}
			}
			if lp, ok := n.(ast.Loop); ok {
				if v, ok := ast.LoopVar(lp); ok {
					out[v] = true
				}
			}
		}
		return true
	})
	return out
}

func nestDepth(stmts []ast.Stmt) int {
	depth := 0
	for _, s := range stmts {
		d := 0
		switch s := s.(type) {
		case ast.Loop:
			d = 1 + nestDepth(s.Body())
		case *ast.If:
			d = max(nestDepth(s.Then), nestDepth(s.Else))
		}
		depth = max(depth, d)
	}
	return depth
}

// compiler holds the per-compilation state
type compiler struct {
	shape *ast.Shape
	sel   *optimizer.Selection
	index map[ast.Node]int // preorder position of every node
}

func (c *compiler) slotOf(name string) (int, int) {
	i, ok := c.shape.Index(name)
	if !ok {
		panic("jit: name missing from shape: " + name)
	}
	return i, c.shape.Slot(i)
}

// ----------------------------------------------------------------------------
// Entry

func (c *compiler) entry(l ast.Loop) (func(r *runtime) (interp.Result, int64, error), error) {
	body, err := c.block(l.Body())
	if err != nil {
		return nil, err
	}

	hoisted := make([]evalFn, len(c.sel.Hoisted))
	for k, e := range c.sel.Hoisted {
		if hoisted[k], err = c.exprNoHoist(e); err != nil {
			return nil, err
		}
	}
	prologue := func(r *runtime) {
		if len(hoisted) == 0 {
			return
		}
		r.hoist = make([]hoistedValue, len(hoisted))
		for k, fn := range hoisted {
			v, err := fn(r)
			r.hoist[k] = hoistedValue{v: v, err: err}
		}
	}

	// one iteration; done reports that the loop must stop
	iteration := func(r *runtime, n *int64) (done bool, res interp.Result, err error) {
		r.iter = *n
		*n++
		res, err = body(r)
		if err != nil {
			return true, res, interp.LoopFault(err, r.loop(0))
		}
		switch res.Signal {
		case interp.SignalBreak:
			return true, interp.Result{}, nil
		case interp.SignalReturn:
			return true, res, nil
		}
		return false, interp.Result{}, nil
	}

	switch l := l.(type) {
	case *ast.ForRange:
		_, counter := c.slotOf(l.Var)
		unroll := uint64(max(c.sel.UnrollFactor, 1))
		reds := c.reductionSlots()
		width := c.sel.Width

		return func(r *runtime) (res interp.Result, n int64, err error) {
			prologue(r)
			if len(reds) > 0 {
				r.openLanes(reds, c.sel.Reductions, width)
				defer r.closeLanes(reds, c.sel.Reductions)
			}
			h := r.header
			cur := h.Start
			trips := h.Trips()
			var done bool

			// blocks of unroll iterations share one trip check
			for trips >= unroll && unroll > 1 {
				for u := uint64(0); u < unroll; u++ {
					r.f.PutInt(counter, cur)
					if done, res, err = iteration(r, &n); done {
						return res, n, err
					}
					cur += h.Step
				}
				trips -= unroll
			}
			for ; trips > 0; trips-- {
				r.f.PutInt(counter, cur)
				if done, res, err = iteration(r, &n); done {
					return res, n, err
				}
				cur += h.Step
			}
			return interp.Result{}, n, nil
		}, nil

	case *ast.ForEach:
		_, slot := c.slotOf(l.Var)
		return func(r *runtime) (res interp.Result, n int64, err error) {
			prologue(r)
			var done bool
			for _, e := range r.header.Elems {
				r.f.Put(slot, e)
				if done, res, err = iteration(r, &n); done {
					return res, n, err
				}
			}
			return interp.Result{}, n, nil
		}, nil

	case *ast.While:
		cond, err := c.expr(l.Cond)
		if err != nil {
			return nil, err
		}
		return func(r *runtime) (res interp.Result, n int64, err error) {
			prologue(r)
			var done bool
			for {
				v, cerr := cond(r)
				if cerr != nil {
					return interp.Result{}, n, interp.LoopFault(cerr, r.loop(0))
				}
				if !value.Truthy(v) {
					return interp.Result{}, n, nil
				}
				if done, res, err = iteration(r, &n); done {
					return res, n, err
				}
			}
		}, nil
	}
	return nil, errors.Wrapf(ErrUnsupported, "loop %T", l)
}

// ----------------------------------------------------------------------------
// Reduction lanes

func (c *compiler) reductionSlots() []int {
	slots := make([]int, len(c.sel.Reductions))
	for j, red := range c.sel.Reductions {
		slots[j] = c.shape.Slot(red.Index)
	}
	return slots
}

func identity(op ast.Op) int64 {
	if op == ast.OpMul {
		return 1
	}
	return 0
}

func combine(op ast.Op, a, b int64) int64 {
	if op == ast.OpMul {
		return a * b
	}
	return a + b
}

// openLanes gives every int accumulator width partial results starting at the
// identity of its operator. The slot keeps the value held on entry.
func (r *runtime) openLanes(slots []int, reds []optimizer.Reduction, width int) {
	r.lanes = make([][]int64, len(slots))
	r.laneOn = make([]bool, len(slots))
	for j, slot := range slots {
		v, ok := r.f.Get(slot)
		if !ok || v.Kind != value.KindInt {
			continue
		}
		r.lanes[j] = make([]int64, width)
		for k := range r.lanes[j] {
			r.lanes[j][k] = identity(reds[j].Op)
		}
		r.laneOn[j] = true
	}
}

// flushLane folds the lanes of reduction j back into its slot. Integer
// addition and multiplication wrap, so the fold equals the sequential result.
func (r *runtime) flushLane(j, slot int, op ast.Op) {
	if !r.laneOn[j] {
		return
	}
	acc := r.f.Int(slot)
	for _, p := range r.lanes[j] {
		acc = combine(op, acc, p)
	}
	r.f.PutInt(slot, acc)
	r.laneOn[j] = false
}

func (r *runtime) closeLanes(slots []int, reds []optimizer.Reduction) {
	for j, slot := range slots {
		r.flushLane(j, slot, reds[j].Op)
	}
}
