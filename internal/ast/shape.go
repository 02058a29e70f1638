package ast

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
)

// LoopID identifies a loop site for profiling. Loops with a known source
// position are keyed by it; synthetic loops fall back to their structural hash.
type LoopID string

// IDOf returns the profiling identity of l.
func IDOf(l Loop) LoopID {
	if p := l.Position(); p.IsValid() {
		return LoopID("L" + p.String())
	}
	return LoopID(fmt.Sprintf("H%016x", Canonicalize(l).Hash))
}

// Shape is the name-independent description of a loop. Variables are
// numbered in canonical order: the loop variable first, then every other
// identifier by first appearance. Two loops that differ only in variable
// names have identical shapes apart from Names.
type Shape struct {
	Kind    LoopKind
	Hash    uint64
	Names   []string
	Counter int // canonical index of the loop variable, -1 for while loops

	declared []bool
	assigned []bool
	read     []bool
	slots    []int // canonical index -> slot number, -1 if not promoted
	promoted []int // slot number -> canonical index
	index    map[string]int
}

// Index returns the canonical index of name.
func (s *Shape) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Declared reports whether variable i is introduced by the loop itself
// (loop variable or a let anywhere in the body).
func (s *Shape) Declared(i int) bool { return s.declared[i] }

// Assigned reports whether variable i is written anywhere in the loop.
func (s *Shape) Assigned(i int) bool { return s.assigned[i] }

// Read reports whether variable i is read anywhere in the loop.
func (s *Shape) Read(i int) bool { return s.read[i] }

// Slot returns the promoted slot of canonical variable i, or -1 when the
// variable is only read and stays in the enclosing environment.
func (s *Shape) Slot(i int) int { return s.slots[i] }

// Promoted returns the canonical indices of promoted variables in slot order.
func (s *Shape) Promoted() []int { return s.promoted }

// NumSlots is the number of arena slots the loop needs.
func (s *Shape) NumSlots() int { return len(s.promoted) }

// Captured returns the canonical indices of variables the loop only reads.
func (s *Shape) Captured() []int {
	var out []int
	for i := range s.Names {
		if s.slots[i] < 0 {
			out = append(out, i)
		}
	}
	return out
}

// Canonicalize computes the shape of l.
func Canonicalize(l Loop) *Shape {
	c := &canon{shape: &Shape{Kind: l.Kind(), Counter: -1, index: make(map[string]int)}}
	c.loop(l)

	s := c.shape
	s.slots = make([]int, len(s.Names))
	for i := range s.Names {
		s.slots[i] = -1
		if s.assigned[i] || s.declared[i] {
			s.slots[i] = len(s.promoted)
			s.promoted = append(s.promoted, i)
		}
	}
	s.Hash = xxhash.Sum64(c.buf)
	return s
}

// node tags of the canonical encoding
const (
	tagIntLit byte = iota + 1
	tagFloatLit
	tagBoolLit
	tagArrayLit
	tagIdent
	tagBinary
	tagUnary
	tagIndex
	tagCall
	tagLet
	tagAssign
	tagCompound
	tagIncDec
	tagIf
	tagBreak
	tagContinue
	tagReturn
	tagExprStmt
	tagForRange
	tagWhile
	tagForEach
	tagNil
)

type canon struct {
	shape *Shape
	buf   []byte
}

func (c *canon) name(n string) int {
	s := c.shape
	if i, ok := s.index[n]; ok {
		return i
	}
	i := len(s.Names)
	s.index[n] = i
	s.Names = append(s.Names, n)
	s.declared = append(s.declared, false)
	s.assigned = append(s.assigned, false)
	s.read = append(s.read, false)
	return i
}

func (c *canon) tag(t byte)       { c.buf = append(c.buf, t) }
func (c *canon) uvarint(u uint64) { c.buf = binary.AppendUvarint(c.buf, u) }

func (c *canon) ref(n string) {
	c.uvarint(uint64(c.name(n)))
}

func (c *canon) loop(l Loop) {
	switch l := l.(type) {
	case *ForRange:
		i := c.name(l.Var)
		if c.shape.Counter < 0 && len(c.shape.Names) == 1 {
			c.shape.Counter = i
		}
		c.shape.declared[i] = true
		c.shape.assigned[i] = true
		c.tag(tagForRange)
		c.uvarint(uint64(i))
		c.expr(l.Start)
		c.expr(l.End)
		c.expr(l.Step)
		c.block(l.Stmts)
	case *While:
		c.tag(tagWhile)
		c.expr(l.Cond)
		c.block(l.Stmts)
	case *ForEach:
		i := c.name(l.Var)
		if c.shape.Counter < 0 && len(c.shape.Names) == 1 {
			c.shape.Counter = i
		}
		c.shape.declared[i] = true
		c.shape.assigned[i] = true
		c.tag(tagForEach)
		c.uvarint(uint64(i))
		c.expr(l.Collection)
		c.block(l.Stmts)
	}
}

func (c *canon) block(stmts []Stmt) {
	c.uvarint(uint64(len(stmts)))
	for _, s := range stmts {
		c.stmt(s)
	}
}

func (c *canon) write(name string, declare bool) {
	i := c.name(name)
	c.shape.assigned[i] = true
	if declare {
		c.shape.declared[i] = true
	}
	c.uvarint(uint64(i))
}

func (c *canon) stmt(s Stmt) {
	switch s := s.(type) {
	case *Let:
		c.tag(tagLet)
		c.expr(s.Value)
		c.write(s.Name, true)
	case *Assign:
		c.tag(tagAssign)
		c.expr(s.Value)
		c.write(s.Name, false)
	case *CompoundAssign:
		c.tag(tagCompound)
		c.buf = append(c.buf, byte(s.Op))
		c.shape.read[c.name(s.Name)] = true
		c.expr(s.Value)
		c.write(s.Name, false)
	case *IncDec:
		c.tag(tagIncDec)
		if s.Dec {
			c.buf = append(c.buf, 1)
		} else {
			c.buf = append(c.buf, 0)
		}
		c.shape.read[c.name(s.Name)] = true
		c.write(s.Name, false)
	case *If:
		c.tag(tagIf)
		c.expr(s.Cond)
		c.block(s.Then)
		c.block(s.Else)
	case *Break:
		c.tag(tagBreak)
	case *Continue:
		c.tag(tagContinue)
	case *Return:
		c.tag(tagReturn)
		c.expr(s.Value)
	case *ExprStmt:
		c.tag(tagExprStmt)
		c.expr(s.X)
	case *ForRange:
		// nested loop variables are plain declarations of the outer shape
		i := c.name(s.Var)
		c.shape.declared[i] = true
		c.shape.assigned[i] = true
		c.tag(tagForRange)
		c.uvarint(uint64(i))
		c.expr(s.Start)
		c.expr(s.End)
		c.expr(s.Step)
		c.block(s.Stmts)
	case *While:
		c.tag(tagWhile)
		c.expr(s.Cond)
		c.block(s.Stmts)
	case *ForEach:
		i := c.name(s.Var)
		c.shape.declared[i] = true
		c.shape.assigned[i] = true
		c.tag(tagForEach)
		c.uvarint(uint64(i))
		c.expr(s.Collection)
		c.block(s.Stmts)
	default:
		panic(fmt.Sprintf("ast: unexpected statement %T", s))
	}
}

func (c *canon) expr(e Expr) {
	switch e := e.(type) {
	case nil:
		c.tag(tagNil)
	case *IntLit:
		c.tag(tagIntLit)
		c.buf = binary.LittleEndian.AppendUint64(c.buf, uint64(e.Value))
	case *FloatLit:
		c.tag(tagFloatLit)
		c.buf = binary.LittleEndian.AppendUint64(c.buf, math.Float64bits(e.Value))
	case *BoolLit:
		c.tag(tagBoolLit)
		if e.Value {
			c.buf = append(c.buf, 1)
		} else {
			c.buf = append(c.buf, 0)
		}
	case *ArrayLit:
		c.tag(tagArrayLit)
		c.uvarint(uint64(len(e.Elems)))
		for _, el := range e.Elems {
			c.expr(el)
		}
	case *Ident:
		c.tag(tagIdent)
		c.shape.read[c.name(e.Name)] = true
		c.ref(e.Name)
	case *Binary:
		c.tag(tagBinary)
		c.buf = append(c.buf, byte(e.Op))
		c.expr(e.X)
		c.expr(e.Y)
	case *Unary:
		c.tag(tagUnary)
		c.buf = append(c.buf, byte(e.Op))
		c.expr(e.X)
	case *Index:
		c.tag(tagIndex)
		c.expr(e.X)
		c.expr(e.Index)
	case *Call:
		// callees are resolved by name at run time, so the name is structure
		c.tag(tagCall)
		c.uvarint(uint64(len(e.Func)))
		c.buf = append(c.buf, e.Func...)
		c.uvarint(uint64(len(e.Args)))
		for _, a := range e.Args {
			c.expr(a)
		}
	default:
		panic(fmt.Sprintf("ast: unexpected expression %T", e))
	}
}
