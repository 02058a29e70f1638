package jit

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/ast"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/interp"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/memory"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/optimizer"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/value"
)

// Slot is one entry of the variable layout a compiled loop assumes
type Slot struct {
	Index  int // canonical variable index
	Slot   int
	Offset int // byte offset from the frame base
}

// CompiledLoop is an executable loop body plus the layout it was built for.
// It is immutable once built and may be shared by every loop with the same
// fingerprint.
type CompiledLoop struct {
	ID          uuid.UUID
	Fingerprint Fingerprint
	Layout      []Slot
	Strategies  optimizer.Set
	CompiledAt  time.Time
	Size        int    // bytes of IR text, not machine code
	IR          string // LLVM IR of the int64 specialisation
	NestDepth   int    // loops nested inside the body

	entry func(r *runtime) (interp.Result, int64, error)
}

// Inputs is what a compiled loop receives besides its frame.
type Inputs struct {
	Header interp.Header
	Nodes  []ast.Node // ast.Preorder of the loop being executed
}

// Run executes the loop against frame f. It returns the loop result and the
// number of iterations started.
func (c *CompiledLoop) Run(f *memory.Frame, in Inputs) (interp.Result, int64, error) {
	if f.NumSlots() != len(c.Layout) {
		return interp.Result{}, 0, errors.Wrapf(ErrInternal, "frame has %d slots, layout %d", f.NumSlots(), len(c.Layout))
	}
	r := &runtime{
		f:      f,
		nodes:  in.Nodes,
		names:  f.Shape().Names,
		header: in.Header,
	}
	return c.entry(r)
}

type hoistedValue struct {
	v   value.Value
	err error
}

// runtime is the state of one compiled loop execution
type runtime struct {
	f      *memory.Frame
	nodes  []ast.Node
	names  []string
	header interp.Header

	hoist  []hoistedValue
	lanes  [][]int64
	laneOn []bool
	iter   int64
}

func (r *runtime) fault(err error, node int) error {
	return interp.Fault(err, r.nodes[node].Position())
}

func (r *runtime) loop(node int) ast.Loop {
	return r.nodes[node].(ast.Loop)
}

// lookup resolves canonical variable i in the enclosing environment.
func (r *runtime) lookup(i, node int) (value.Value, error) {
	v, ok := r.f.Parent().Lookup(r.names[i])
	if !ok {
		return value.Nil, r.fault(interp.Undefined(r.names[i]), node)
	}
	return v, nil
}
