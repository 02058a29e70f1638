package optimizer

import (
	"math/bits"

	"golang.org/x/sys/cpu"

	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/ast"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/hotspot"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/logger"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/memory"
)

// Selector limits
const (
	DefaultUnrollFactor = 4
	MaxUnrollStmts      = 4
	MaxShiftAddTerms    = 3
)

// Options configures a Selector
type Options struct {
	Disabled     Set
	UnrollFactor int
	VectorWidth  int // 0 detects the width from the host CPU
}

// Reduction is an accumulator updated as acc = acc op contribution.
type Reduction struct {
	Index        int // canonical index of the accumulator
	Op           ast.Op
	Stmt         ast.Stmt
	Contribution ast.Expr
}

// Selection is the plan the compiler applies to one loop.
type Selection struct {
	Set Set

	// Hoisted lists the maximal loop-invariant expressions in pre-order.
	Hoisted []ast.Expr
	hoisted map[ast.Expr]int

	// ShiftAdd maps a multiplication (a Binary or a *= CompoundAssign) to the
	// shift amounts whose sum replaces the constant factor.
	ShiftAdd map[ast.Node][]uint

	Reductions   []Reduction
	Width        int
	UnrollFactor int

	// Hints maps a conditional to true when its then-branch is the likely one.
	Hints map[*ast.If]bool
}

// HoistIndex returns the position of e in Hoisted.
func (s *Selection) HoistIndex(e ast.Expr) (int, bool) {
	i, ok := s.hoisted[e]
	return i, ok
}

// ReductionOf returns the reduction performed by stmt, if any.
func (s *Selection) ReductionOf(stmt ast.Stmt) (int, bool) {
	for i, r := range s.Reductions {
		if r.Stmt == stmt {
			return i, true
		}
	}
	return 0, false
}

// Selector evaluates strategy applicability
type Selector struct {
	opts  Options
	width int
}

// NewSelector creates a Selector.
func NewSelector(opts Options) *Selector {
	if opts.UnrollFactor <= 0 {
		opts.UnrollFactor = DefaultUnrollFactor
	}
	w := opts.VectorWidth
	if w <= 0 {
		w = DetectVectorWidth()
	}
	return &Selector{opts: opts, width: w}
}

// Width returns the vector lane count in use.
func (s *Selector) Width() int { return s.width }

// DetectVectorWidth returns the number of int64 lanes of the widest vector
// unit on this CPU.
func DetectVectorWidth() int {
	switch {
	case cpu.X86.HasAVX512F:
		return 8
	case cpu.X86.HasAVX2:
		return 4
	}
	return 2
}

// Select chooses the strategies for loop l. The result never changes the trip
// count or drops a side effect of the loop.
func (s *Selector) Select(l ast.Loop, shape *ast.Shape, prof hotspot.Profile) *Selection {
	sel := &Selection{
		hoisted:  make(map[ast.Expr]int),
		ShiftAdd: make(map[ast.Node][]uint),
		Hints:    make(map[*ast.If]bool),
	}
	body := l.Body()
	enabled := func(st Strategy) bool { return !s.opts.Disabled.Has(st) }

	if enabled(Hoisting) {
		s.selectHoisting(body, shape, sel)
		if len(sel.Hoisted) > 0 {
			sel.Set = sel.Set.With(Hoisting)
		}
	}

	if enabled(StrengthReduction) {
		s.selectStrengthReduction(body, sel)
		if len(sel.ShiftAdd) > 0 {
			sel.Set = sel.Set.With(StrengthReduction)
		}
	}

	_, counted := l.(*ast.ForRange)

	if enabled(Vectorization) && counted && s.width > 1 &&
		prof.Tier <= hotspot.TierModerate && prof.Access <= hotspot.AccessSequential {
		if reds, ok := vectorizable(l, shape); ok {
			sel.Reductions = reds
			sel.Width = s.width
			sel.Set = sel.Set.With(Vectorization)
		}
	}

	if enabled(Unrolling) && counted && s.opts.UnrollFactor > 1 &&
		prof.Tier <= hotspot.TierModerate &&
		len(body) <= MaxUnrollStmts && !ast.HasCall(body) && !ast.HasNestedLoop(body) {
		sel.UnrollFactor = s.opts.UnrollFactor
		sel.Set = sel.Set.With(Unrolling)
	}

	if enabled(BranchHints) && shape.Counter >= 0 {
		selectHints(body, shape, sel)
		if len(sel.Hints) > 0 {
			sel.Set = sel.Set.With(BranchHints)
		}
	}

	logger.Trace(logger.JIT, "strategies selected", "loop", ast.IDOf(l), "set", sel.Set.String(), "tier", prof.Tier, "access", prof.Access)
	return sel
}

// ----------------------------------------------------------------------------
// Hoisting

func invariant(e ast.Expr, shape *ast.Shape) bool {
	switch e := e.(type) {
	case *ast.IntLit, *ast.FloatLit, *ast.BoolLit:
		return true
	case *ast.Ident:
		i, ok := shape.Index(e.Name)
		return ok && !shape.Assigned(i)
	case *ast.Unary:
		return invariant(e.X, shape)
	case *ast.Binary:
		switch e.Op {
		case ast.OpDiv, ast.OpMod, ast.OpAnd, ast.OpOr:
			return false
		}
		return invariant(e.X, shape) && invariant(e.Y, shape)
	}
	return false
}

func readsVariable(e ast.Expr) bool {
	found := false
	ast.Inspect(e, func(n ast.Node) bool {
		if _, ok := n.(*ast.Ident); ok {
			found = true
		}
		return !found
	})
	return found
}

func (s *Selector) selectHoisting(body []ast.Stmt, shape *ast.Shape, sel *Selection) {
	ast.InspectStmts(body, func(n ast.Node) bool {
		e, ok := n.(ast.Expr)
		if !ok {
			return true
		}
		switch e.(type) {
		case *ast.Binary, *ast.Unary:
			if invariant(e, shape) && readsVariable(e) {
				sel.hoisted[e] = len(sel.Hoisted)
				sel.Hoisted = append(sel.Hoisted, e)
				return false
			}
		}
		return true
	})
}

// ----------------------------------------------------------------------------
// Strength reduction

// shiftsFor decomposes a positive constant into at most MaxShiftAddTerms powers of two.
func shiftsFor(c int64) ([]uint, bool) {
	if c <= 0 || bits.OnesCount64(uint64(c)) > MaxShiftAddTerms {
		return nil, false
	}
	var out []uint
	for u := uint64(c); u != 0; u &= u - 1 {
		out = append(out, uint(bits.TrailingZeros64(u)))
	}
	return out, true
}

func (s *Selector) selectStrengthReduction(body []ast.Stmt, sel *Selection) {
	ast.InspectStmts(body, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.Binary:
			if n.Op != ast.OpMul {
				break
			}
			if c, ok := n.Y.(*ast.IntLit); ok {
				if sh, ok := shiftsFor(c.Value); ok {
					sel.ShiftAdd[n] = sh
				}
			} else if c, ok := n.X.(*ast.IntLit); ok {
				if sh, ok := shiftsFor(c.Value); ok {
					sel.ShiftAdd[n] = sh
				}
			}
		case *ast.CompoundAssign:
			if n.Op != ast.OpMul {
				break
			}
			if c, ok := n.Value.(*ast.IntLit); ok {
				if sh, ok := shiftsFor(c.Value); ok {
					sel.ShiftAdd[n] = sh
				}
			}
		}
		return true
	})
}

// ----------------------------------------------------------------------------
// Vectorization

// vectorizable accepts bodies made only of temporaries and int reductions
// whose contribution never reads the accumulator.
func vectorizable(l ast.Loop, shape *ast.Shape) ([]Reduction, bool) {
	body := l.Body()
	if ast.HasCall(body) || ast.HasNestedLoop(body) || ast.HasControlTransfer(body) {
		return nil, false
	}
	roles := memory.Classify(l, shape)

	var reds []Reduction
	for _, st := range body {
		if r, ok := reductionOf(st, shape); ok {
			reds = append(reds, r)
			continue
		}
		var name string
		switch st := st.(type) {
		case *ast.Let:
			name = st.Name
		case *ast.Assign:
			name = st.Name
		default:
			return nil, false
		}
		i, ok := shape.Index(name)
		if !ok || i == shape.Counter || roles[i] != memory.RoleTemporary {
			return nil, false
		}
	}
	if len(reds) == 0 {
		return nil, false
	}

	// an accumulator must not be touched by any other statement
	for _, r := range reds {
		name := shape.Names[r.Index]
		for _, st := range body {
			if st == r.Stmt {
				continue
			}
			if touches(st, name) {
				return nil, false
			}
		}
	}
	return reds, true
}

func reductionOf(st ast.Stmt, shape *ast.Shape) (Reduction, bool) {
	var (
		name    string
		op      ast.Op
		contrib ast.Expr
	)
	switch st := st.(type) {
	case *ast.CompoundAssign:
		name, op, contrib = st.Name, st.Op, st.Value
	case *ast.Assign:
		b, ok := st.Value.(*ast.Binary)
		if !ok {
			return Reduction{}, false
		}
		name, op = st.Name, b.Op
		switch {
		case isIdent(b.X, st.Name):
			contrib = b.Y
		case isIdent(b.Y, st.Name):
			contrib = b.X
		default:
			return Reduction{}, false
		}
	default:
		return Reduction{}, false
	}
	if op != ast.OpAdd && op != ast.OpMul {
		return Reduction{}, false
	}
	i, ok := shape.Index(name)
	if !ok || i == shape.Counter || shape.Declared(i) || ast.Reads(contrib, name) {
		return Reduction{}, false
	}
	return Reduction{Index: i, Op: op, Stmt: st, Contribution: contrib}, true
}

func isIdent(e ast.Expr, name string) bool {
	id, ok := e.(*ast.Ident)
	return ok && id.Name == name
}

func touches(st ast.Stmt, name string) bool {
	if n, ok := ast.AssignedName(st); ok && n == name {
		return true
	}
	found := false
	ast.Inspect(st, func(n ast.Node) bool {
		if id, ok := n.(*ast.Ident); ok && id.Name == name {
			found = true
		}
		return !found
	})
	return found
}

// ----------------------------------------------------------------------------
// Branch hints

// selectHints marks conditionals comparing the loop variable against an
// invariant bound. Such comparisons keep one outcome for most iterations.
func selectHints(body []ast.Stmt, shape *ast.Shape, sel *Selection) {
	counter := shape.Names[shape.Counter]
	ast.InspectStmts(body, func(n ast.Node) bool {
		ifs, ok := n.(*ast.If)
		if !ok {
			return true
		}
		b, ok := ifs.Cond.(*ast.Binary)
		if !ok || !b.Op.IsComparison() {
			return true
		}
		op := b.Op
		switch {
		case isIdent(b.X, counter) && invariant(b.Y, shape):
		case isIdent(b.Y, counter) && invariant(b.X, shape):
			op = mirror(op)
		default:
			return true
		}
		switch op {
		case ast.OpLt, ast.OpLe, ast.OpNe:
			sel.Hints[ifs] = true
		default:
			sel.Hints[ifs] = false
		}
		return true
	})
}

// mirror turns "c op i" into "i op' c"
func mirror(op ast.Op) ast.Op {
	switch op {
	case ast.OpLt:
		return ast.OpGt
	case ast.OpLe:
		return ast.OpGe
	case ast.OpGt:
		return ast.OpLt
	case ast.OpGe:
		return ast.OpLe
	}
	return op
}
