package jit

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	llvalue "github.com/llir/llvm/ir/value"

	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/ast"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/optimizer"
)

// lowerIR emits the LLVM IR of the int64 specialisation of a counted loop:
//
//	i64 @loop_<hash>(i64* %slots, i64* %env, i64 %start, i64 %step, i64 %trips)
//
// %slots is the frame, %env holds the captured variables in canonical order.
// The function returns the number of iterations started. Whenever a value
// stops being an int, or the body does something the specialisation does not
// cover, it calls @cn_deopt with the preorder index of the node and returns -1.
func lowerIR(l ast.Loop, shape *ast.Shape, sel *optimizer.Selection, fp Fingerprint) (string, error) {
	m := ir.NewModule()
	g := &irGen{
		shape:    shape,
		sel:      sel,
		index:    make(map[ast.Node]int),
		captured: make(map[int]int),
		hoisted:  make(map[ast.Expr]llvalue.Value),
	}
	for i, n := range ast.Preorder(l) {
		g.index[n] = i
	}
	for k, i := range shape.Captured() {
		g.captured[i] = k
	}

	g.deopt = m.NewFunc("cn_deopt", types.Void, ir.NewParam("node", types.I64))
	g.expect = m.NewFunc("llvm.expect.i1", types.I1, ir.NewParam("", types.I1), ir.NewParam("", types.I1))

	g.slots = ir.NewParam("slots", types.NewPointer(types.I64))
	g.env = ir.NewParam("env", types.NewPointer(types.I64))
	g.start = ir.NewParam("start", types.I64)
	g.step = ir.NewParam("step", types.I64)
	g.trips = ir.NewParam("trips", types.I64)
	g.f = m.NewFunc(fmt.Sprintf("loop_%016x", fp.Hash), types.I64, g.slots, g.env, g.start, g.step, g.trips)

	entry := g.f.NewBlock("entry")
	fr, ok := l.(*ast.ForRange)
	if !ok {
		g.bail(entry, l)
		return m.String(), nil
	}
	g.counter = shape.Slot(shape.Counter)

	for _, e := range sel.Hoisted {
		v, isBool, next, ok := g.expr(entry, e)
		if !ok || isBool || next != entry {
			continue
		}
		g.hoisted[e] = v
	}

	zero := constant.NewInt(types.I64, 0)
	if sel.UnrollFactor > 1 {
		after, k, i := g.loop(entry, zero, g.start, fr.Stmts, int64(sel.UnrollFactor))
		rest, k, _ := g.loop(after, k, i, fr.Stmts, 1)
		rest.NewRet(k)
	} else {
		after, k, _ := g.loop(entry, zero, g.start, fr.Stmts, 1)
		after.NewRet(k)
	}
	return m.String(), nil
}

type irGen struct {
	shape *ast.Shape
	sel   *optimizer.Selection
	index map[ast.Node]int

	f      *ir.Func
	deopt  *ir.Func
	expect *ir.Func

	slots, env, start, step, trips *ir.Param

	counter  int
	captured map[int]int // canonical index -> position in %env
	hoisted  map[ast.Expr]llvalue.Value
	blocks   int
}

func i64(v int64) *constant.Int { return constant.NewInt(types.I64, v) }

func (g *irGen) block(name string) *ir.Block {
	g.blocks++
	return g.f.NewBlock(fmt.Sprintf("%s.%d", name, g.blocks))
}

// bail leaves the specialisation at node n.
func (g *irGen) bail(b *ir.Block, n ast.Node) {
	b.NewCall(g.deopt, i64(int64(g.index[n])))
	b.NewRet(i64(-1))
}

func (g *irGen) slotPtr(b *ir.Block, slot int) llvalue.Value {
	return b.NewGetElementPtr(types.I64, g.slots, i64(int64(slot)))
}

// loop emits a counted loop running copies body instances per trip check.
// It returns the block after the loop and the final iteration count and
// counter value.
func (g *irGen) loop(pre *ir.Block, k0, i0 llvalue.Value, body []ast.Stmt, copies int64) (*ir.Block, llvalue.Value, llvalue.Value) {
	header := g.block("loop")
	first := g.block("body")
	after := g.block("done")
	pre.NewBr(header)

	k := header.NewPhi(ir.NewIncoming(k0, pre))
	i := header.NewPhi(ir.NewIncoming(i0, pre))
	left := header.NewSub(g.trips, k)
	header.NewCondBr(header.NewICmp(enum.IPredUGE, left, i64(copies)), first, after)

	cur := first
	var kk, ii llvalue.Value = k, i
	for u := int64(0); u < copies; u++ {
		cur.NewStore(ii, g.slotPtr(cur, g.counter))
		next := g.block("next")
		if end := g.stmts(cur, body, kk, next); end != nil {
			end.NewBr(next)
		}
		cur = next
		kk = cur.NewAdd(kk, i64(1))
		ii = cur.NewAdd(ii, g.step)
	}
	cur.NewBr(header)
	k.Incs = append(k.Incs, ir.NewIncoming(kk, cur))
	i.Incs = append(i.Incs, ir.NewIncoming(ii, cur))
	return after, k, i
}

// stmts lowers a block. It returns the block control falls out of, or nil
// when every path has left already.
func (g *irGen) stmts(b *ir.Block, stmts []ast.Stmt, k llvalue.Value, next *ir.Block) *ir.Block {
	for _, s := range stmts {
		if b = g.stmt(b, s, k, next); b == nil {
			return nil
		}
	}
	return b
}

func (g *irGen) stmt(b *ir.Block, s ast.Stmt, k llvalue.Value, next *ir.Block) *ir.Block {
	store := func(b *ir.Block, name string, v llvalue.Value) {
		i, _ := g.shape.Index(name)
		b.NewStore(v, g.slotPtr(b, g.shape.Slot(i)))
	}
	load := func(b *ir.Block, name string) llvalue.Value {
		i, _ := g.shape.Index(name)
		return b.NewLoad(types.I64, g.slotPtr(b, g.shape.Slot(i)))
	}

	switch s := s.(type) {
	case *ast.Let:
		return g.assign(b, s, s.Name, s.Value, store)
	case *ast.Assign:
		return g.assign(b, s, s.Name, s.Value, store)

	case *ast.CompoundAssign:
		y, isBool, b, ok := g.expr(b, s.Value)
		if !ok || isBool {
			g.bail(b, s)
			return nil
		}
		v, b, ok := g.arith(b, s, s.Op, load(b, s.Name), y)
		if !ok {
			g.bail(b, s)
			return nil
		}
		store(b, s.Name, v)
		return b

	case *ast.IncDec:
		d := int64(1)
		if s.Dec {
			d = -1
		}
		store(b, s.Name, b.NewAdd(load(b, s.Name), i64(d)))
		return b

	case *ast.If:
		c, b, ok := g.cond(b, s.Cond)
		if !ok {
			g.bail(b, s)
			return nil
		}
		if likely, ok := g.sel.Hints[s]; ok {
			c = b.NewCall(g.expect, c, constant.NewBool(likely))
		}
		then, els, merge := g.block("then"), g.block("else"), g.block("endif")
		b.NewCondBr(c, then, els)
		reached := false
		if end := g.stmts(then, s.Then, k, next); end != nil {
			end.NewBr(merge)
			reached = true
		}
		if end := g.stmts(els, s.Else, k, next); end != nil {
			end.NewBr(merge)
			reached = true
		}
		if !reached {
			merge.NewUnreachable()
			return nil
		}
		return merge

	case *ast.Break:
		b.NewRet(b.NewAdd(k, i64(1)))
		return nil

	case *ast.Continue:
		b.NewBr(next)
		return nil

	case *ast.ExprStmt:
		_, _, b, ok := g.expr(b, s.X)
		if !ok {
			g.bail(b, s)
			return nil
		}
		return b
	}

	// return values and nested loops stay with the closure form
	g.bail(b, s)
	return nil
}

func (g *irGen) assign(b *ir.Block, s ast.Stmt, name string, e ast.Expr, store func(*ir.Block, string, llvalue.Value)) *ir.Block {
	v, isBool, b, ok := g.expr(b, e)
	if !ok || isBool {
		g.bail(b, s)
		return nil
	}
	store(b, name, v)
	return b
}

// cond lowers a condition to i1.
func (g *irGen) cond(b *ir.Block, e ast.Expr) (llvalue.Value, *ir.Block, bool) {
	v, isBool, b, ok := g.expr(b, e)
	if !ok {
		return nil, b, false
	}
	if isBool {
		return v, b, true
	}
	return b.NewICmp(enum.IPredNE, v, i64(0)), b, true
}

// expr lowers an int or bool expression. Bools are i1, ints i64.
func (g *irGen) expr(b *ir.Block, e ast.Expr) (v llvalue.Value, isBool bool, out *ir.Block, ok bool) {
	if v, ok := g.hoisted[e]; ok {
		return v, false, b, true
	}

	switch e := e.(type) {
	case *ast.IntLit:
		return i64(e.Value), false, b, true
	case *ast.BoolLit:
		return constant.NewBool(e.Value), true, b, true

	case *ast.Ident:
		i, _ := g.shape.Index(e.Name)
		if slot := g.shape.Slot(i); slot >= 0 {
			return b.NewLoad(types.I64, g.slotPtr(b, slot)), false, b, true
		}
		ptr := b.NewGetElementPtr(types.I64, g.env, i64(int64(g.captured[i])))
		return b.NewLoad(types.I64, ptr), false, b, true

	case *ast.Unary:
		x, xb, b, ok := g.expr(b, e.X)
		if !ok {
			return nil, false, b, false
		}
		switch e.Op {
		case ast.OpNeg:
			if xb {
				return nil, false, b, false
			}
			return b.NewSub(i64(0), x), false, b, true
		case ast.OpNot:
			if xb {
				return b.NewXor(x, constant.True), true, b, true
			}
			return b.NewICmp(enum.IPredEQ, x, i64(0)), true, b, true
		}

	case *ast.Binary:
		if e.Op == ast.OpAnd || e.Op == ast.OpOr {
			x, b, ok := g.cond(b, e.X)
			if !ok {
				return nil, false, b, false
			}
			y, b, ok := g.cond(b, e.Y)
			if !ok {
				return nil, false, b, false
			}
			if e.Op == ast.OpAnd {
				return b.NewAnd(x, y), true, b, true
			}
			return b.NewOr(x, y), true, b, true
		}
		x, xb, b, ok := g.expr(b, e.X)
		if !ok || xb {
			return nil, false, b, false
		}
		y, yb, b, ok := g.expr(b, e.Y)
		if !ok || yb {
			return nil, false, b, false
		}
		if e.Op.IsComparison() {
			return b.NewICmp(ipred(e.Op), x, y), true, b, true
		}
		v, b, ok := g.arith(b, e, e.Op, x, y)
		return v, false, b, ok
	}
	return nil, false, b, false
}

// arith lowers an int64 operator. Operand values that would fault in the
// interpreter divert to a deopt block.
func (g *irGen) arith(b *ir.Block, n ast.Node, op ast.Op, x, y llvalue.Value) (llvalue.Value, *ir.Block, bool) {
	guard := func(bad llvalue.Value) *ir.Block {
		fail, ok := g.block("deopt"), g.block("cont")
		b.NewCondBr(bad, fail, ok)
		g.bail(fail, n)
		return ok
	}

	switch op {
	case ast.OpAdd:
		return b.NewAdd(x, y), b, true
	case ast.OpSub:
		return b.NewSub(x, y), b, true
	case ast.OpMul:
		if shifts, ok := g.sel.ShiftAdd[n]; ok {
			operand := x
			if _, lit := y.(*constant.Int); !lit {
				operand = y
			}
			var acc llvalue.Value = i64(0)
			for _, s := range shifts {
				acc = b.NewAdd(acc, b.NewShl(operand, i64(int64(s))))
			}
			return acc, b, true
		}
		return b.NewMul(x, y), b, true
	case ast.OpDiv, ast.OpMod:
		zero := b.NewICmp(enum.IPredEQ, y, i64(0))
		minus := b.NewICmp(enum.IPredEQ, y, i64(-1))
		b = guard(b.NewOr(zero, minus))
		if op == ast.OpDiv {
			return b.NewSDiv(x, y), b, true
		}
		return b.NewSRem(x, y), b, true
	case ast.OpShl, ast.OpShr:
		b = guard(b.NewICmp(enum.IPredUGE, y, i64(64)))
		if op == ast.OpShl {
			return b.NewShl(x, y), b, true
		}
		return b.NewAShr(x, y), b, true
	case ast.OpBitAnd:
		return b.NewAnd(x, y), b, true
	case ast.OpBitOr:
		return b.NewOr(x, y), b, true
	case ast.OpBitXor:
		return b.NewXor(x, y), b, true
	}
	return nil, b, false
}

func ipred(op ast.Op) enum.IPred {
	switch op {
	case ast.OpLt:
		return enum.IPredSLT
	case ast.OpLe:
		return enum.IPredSLE
	case ast.OpGt:
		return enum.IPredSGT
	case ast.OpGe:
		return enum.IPredSGE
	case ast.OpEq:
		return enum.IPredEQ
	}
	return enum.IPredNE
}
