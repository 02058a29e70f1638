package memory

import (
	"github.com/pkg/errors"

	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/ast"
	cnerrors "github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/errors"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/logger"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/value"
)

// DefaultMaxNestingDepth bounds the number of simultaneously active loop frames.
const DefaultMaxNestingDepth = 64

// ErrNestingTooDeep is fatal: the interpreter cannot run the loop at all.
var ErrNestingTooDeep = errors.New("loop nesting too deep")

// Options configures a Manager
type Options struct {
	ArenaSize       int
	ArenaCeiling    int
	MaxNestingDepth int
	Preallocate     bool // false keeps every frame on the heap
}

// DefaultOptions returns the built-in sizing.
func DefaultOptions() Options {
	return Options{
		ArenaSize:       DefaultArenaSize,
		ArenaCeiling:    DefaultArenaCeiling,
		MaxNestingDepth: DefaultMaxNestingDepth,
		Preallocate:     true,
	}
}

// ManagerStats describes loop frame activity
type ManagerStats struct {
	LoopsEntered   uint64
	LoopsExited    uint64
	Depth          int
	MaxDepth       int
	SlotsPromoted  uint64
	HeapFallbacks  uint64
	PreallocHits   uint64
	PreallocMisses uint64
	Arena          StackStats
}

// HitRatio is the fraction of frames that were placed in the arena.
func (s ManagerStats) HitRatio() float64 {
	total := s.PreallocHits + s.PreallocMisses
	if total == 0 {
		return 0
	}
	return float64(s.PreallocHits) / float64(total)
}

// Manager owns the arena and the stack of active loop frames. Like the
// allocator it belongs to a single interpreter.
type Manager struct {
	alloc  *StackAllocator
	opts   Options
	frames []*Frame
	stats  ManagerStats
}

// NewManager creates a Manager. Zero option fields take the defaults.
func NewManager(opts Options) *Manager {
	def := DefaultOptions()
	if opts.ArenaSize <= 0 {
		opts.ArenaSize = def.ArenaSize
	}
	if opts.ArenaCeiling <= 0 {
		opts.ArenaCeiling = def.ArenaCeiling
	}
	if opts.MaxNestingDepth <= 0 {
		opts.MaxNestingDepth = def.MaxNestingDepth
	}
	return &Manager{
		alloc: NewStackAllocator(opts.ArenaSize, opts.ArenaCeiling),
		opts:  opts,
	}
}

// Allocator exposes the arena.
func (m *Manager) Allocator() *StackAllocator { return m.alloc }

// Depth returns the number of active frames.
func (m *Manager) Depth() int { return len(m.frames) }

// MaxNestingDepth returns the configured frame limit.
func (m *Manager) MaxNestingDepth() int { return m.opts.MaxNestingDepth }

// Enter opens a frame for one execution of l with the layout of shape.
// Variables the loop assigns without declaring are copied in from parent.
func (m *Manager) Enter(l ast.Loop, shape *ast.Shape, parent value.Environment) (*Frame, error) {
	if len(m.frames) >= m.opts.MaxNestingDepth {
		p := l.Position()
		err := errors.Wrapf(ErrNestingTooDeep, "depth %d exceeds limit %d", len(m.frames)+1, m.opts.MaxNestingDepth)
		return nil, cnerrors.Wrap(cnerrors.NestingTooDeep, err, p.Line, p.Col)
	}

	n := shape.NumSlots()
	f := &Frame{
		m:      m,
		shape:  shape,
		parent: parent,
		mark:   m.alloc.Checkpoint(),
		depth:  len(m.frames) + 1,
		live:   true,
		kinds:  make([]value.Kind, n),
		set:    make([]bool, n),
		base:   -1,
	}

	if m.opts.Preallocate {
		base, err := m.alloc.Allocate(n*value.SlotSize, value.SlotSize)
		if err == nil {
			f.base = base
			m.stats.PreallocHits++
		} else {
			m.stats.PreallocMisses++
			p := l.Position()
			f.exhausted = cnerrors.Wrap(cnerrors.AllocatorExhausted, err, p.Line, p.Col)
			logger.Trace(logger.Memory, "arena exhausted, frame on heap", "loop", ast.IDOf(l), "slots", n, "error", f.exhausted)
		}
	}
	if f.base < 0 {
		f.heap = make([]uint64, n)
		m.stats.HeapFallbacks++
	}

	roles := Classify(l, shape)
	f.vars = make([]LoopVariable, n)
	for slot, i := range shape.Promoted() {
		off := -1
		if f.base >= 0 {
			off = f.base + slot*value.SlotSize
		}
		f.vars[slot] = LoopVariable{
			Name:     shape.Names[i],
			Index:    i,
			Slot:     slot,
			Offset:   off,
			Role:     roles[i],
			Declared: shape.Declared(i),
		}
	}
	f.copyIn()

	m.frames = append(m.frames, f)
	m.stats.LoopsEntered++
	m.stats.SlotsPromoted += uint64(n)
	if len(m.frames) > m.stats.MaxDepth {
		m.stats.MaxDepth = len(m.frames)
	}
	logger.Trace(logger.Memory, "enter loop frame", "loop", ast.IDOf(l), "depth", f.depth, "slots", n, "heap", f.base < 0)
	return f, nil
}

// Exit writes back f's copied-in variables and releases its slots. Frames
// opened after f are closed first. Exiting a frame that is no longer live
// does nothing.
func (m *Manager) Exit(f *Frame) error {
	if f == nil || !f.live {
		return nil
	}
	idx := -1
	for i := len(m.frames) - 1; i >= 0; i-- {
		if m.frames[i] == f {
			idx = i
			break
		}
	}
	if idx < 0 {
		f.live = false
		return nil
	}

	var first error
	for i := len(m.frames) - 1; i >= idx; i-- {
		fr := m.frames[i]
		if err := fr.writeBack(); err != nil && first == nil {
			first = err
		}
		fr.live = false
		m.frames[i] = nil
		m.stats.LoopsExited++
	}
	m.frames = m.frames[:idx]
	m.alloc.Release(f.mark)
	return first
}

// Reset drops every frame without writing back and empties the arena.
func (m *Manager) Reset() {
	for _, f := range m.frames {
		f.live = false
	}
	m.frames = m.frames[:0]
	m.alloc.Release(0)
}

// Stats returns a snapshot of the manager counters.
func (m *Manager) Stats() ManagerStats {
	s := m.stats
	s.Depth = len(m.frames)
	s.Arena = m.alloc.Stats()
	return s
}
