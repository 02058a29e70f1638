package memory

import (
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/ast"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/value"
)

// LoopVariable is a variable promoted into a frame slot
type LoopVariable struct {
	Name     string
	Index    int // canonical index in the loop shape
	Slot     int
	Offset   int // arena byte offset, -1 for heap slots
	Role     Role
	Declared bool // scoped to the loop, never written back
}

// Frame is the storage of one loop execution. Promoted variables live in
// consecutive 8-byte slots at base + 8*slot. A slot that has not been set
// yet behaves like a missing binding in a child scope: reads and assignments
// go to the enclosing environment.
type Frame struct {
	m      *Manager
	shape  *ast.Shape
	parent value.Environment
	vars   []LoopVariable

	base      int   // -1 when the frame lives on the heap
	exhausted error // why an arena frame fell back to the heap
	mark      Mark
	depth     int
	live      bool

	kinds   []value.Kind
	set     []bool
	heap    []uint64
	objects map[int][]value.Value // array values by slot
	extra   map[string]value.Value
}

// Shape returns the canonical layout the frame was built from.
func (f *Frame) Shape() *ast.Shape { return f.shape }

// Vars returns the promoted variables in slot order.
func (f *Frame) Vars() []LoopVariable { return f.vars }

// Depth is the 1-based nesting depth of the frame.
func (f *Frame) Depth() int { return f.depth }

// OnHeap reports whether the frame fell back to heap slots.
func (f *Frame) OnHeap() bool { return f.base < 0 }

// Exhausted returns the AllocatorExhausted error that put the frame on the
// heap, or nil when it got arena slots or preallocation is off.
func (f *Frame) Exhausted() error { return f.exhausted }

// Base is the arena offset of slot 0, or -1 for heap frames.
func (f *Frame) Base() int { return f.base }

// Live reports whether the frame has not been exited yet.
func (f *Frame) Live() bool { return f.live }

// Parent is the environment enclosing the loop.
func (f *Frame) Parent() value.Environment { return f.parent }

// NumSlots returns the number of promoted slots.
func (f *Frame) NumSlots() int { return len(f.kinds) }

func (f *Frame) word(slot int) uint64 {
	if f.base < 0 {
		return f.heap[slot]
	}
	return f.m.alloc.Word(f.base + slot*value.SlotSize)
}

func (f *Frame) putWord(slot int, w uint64) {
	if f.base < 0 {
		f.heap[slot] = w
		return
	}
	f.m.alloc.PutWord(f.base+slot*value.SlotSize, w)
}

// IsSet reports whether slot holds a value.
func (f *Frame) IsSet(slot int) bool { return f.set[slot] }

// Get returns the value in slot; ok is false for an unset slot.
func (f *Frame) Get(slot int) (value.Value, bool) {
	if !f.set[slot] {
		return value.Nil, false
	}
	k := f.kinds[slot]
	if k == value.KindArray {
		return value.Value{Kind: value.KindArray, Elems: f.objects[slot]}, true
	}
	return value.FromBits(k, f.word(slot)), true
}

// Put stores v in slot and marks it set.
func (f *Frame) Put(slot int, v value.Value) {
	f.set[slot] = true
	f.kinds[slot] = v.Kind
	if v.Kind == value.KindArray {
		if f.objects == nil {
			f.objects = make(map[int][]value.Value)
		}
		f.objects[slot] = v.Elems
		return
	}
	if f.objects != nil {
		delete(f.objects, slot)
	}
	f.putWord(slot, v.Bits())
}

// Unset clears slot so that the name resolves in the enclosing environment again.
func (f *Frame) Unset(slot int) {
	f.set[slot] = false
	f.kinds[slot] = value.KindNil
	if f.objects != nil {
		delete(f.objects, slot)
	}
}

// Kind returns the kind stored in slot.
func (f *Frame) Kind(slot int) value.Kind { return f.kinds[slot] }

// Int reads an int slot without boxing. The caller checks Kind first.
func (f *Frame) Int(slot int) int64 { return int64(f.word(slot)) }

// PutInt stores an int into slot without boxing.
func (f *Frame) PutInt(slot int, v int64) {
	f.set[slot] = true
	f.kinds[slot] = value.KindInt
	f.putWord(slot, uint64(v))
}

func (f *Frame) slotOf(name string) (int, bool) {
	i, ok := f.shape.Index(name)
	if !ok {
		return 0, false
	}
	s := f.shape.Slot(i)
	return s, s >= 0
}

// Lookup implements value.Environment.
func (f *Frame) Lookup(name string) (value.Value, bool) {
	if slot, ok := f.slotOf(name); ok && f.set[slot] {
		return f.Get(slot)
	}
	if v, ok := f.extra[name]; ok {
		return v, true
	}
	return f.parent.Lookup(name)
}

// Assign implements value.Environment.
func (f *Frame) Assign(name string, v value.Value) error {
	if slot, ok := f.slotOf(name); ok && f.set[slot] {
		f.Put(slot, v)
		return nil
	}
	if _, ok := f.extra[name]; ok {
		f.extra[name] = v
		return nil
	}
	return f.parent.Assign(name, v)
}

// Declare implements value.Environment.
func (f *Frame) Declare(name string, v value.Value) {
	if slot, ok := f.slotOf(name); ok {
		f.Put(slot, v)
		return
	}
	// only reachable for names the shape did not see
	if f.extra == nil {
		f.extra = make(map[string]value.Value)
	}
	f.extra[name] = v
}

// copyIn loads variables the loop assigns but does not declare.
func (f *Frame) copyIn() {
	for _, lv := range f.vars {
		if lv.Declared {
			continue
		}
		if v, ok := f.parent.Lookup(lv.Name); ok {
			f.Put(lv.Slot, v)
		}
	}
}

// writeBack stores copied-in variables into the enclosing environment.
func (f *Frame) writeBack() error {
	var first error
	for _, lv := range f.vars {
		if lv.Declared {
			continue
		}
		v, ok := f.Get(lv.Slot)
		if !ok {
			continue
		}
		if err := f.parent.Assign(lv.Name, v); err != nil && first == nil {
			first = err
		}
	}
	return first
}
