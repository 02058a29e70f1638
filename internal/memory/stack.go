// Package memory keeps loop variables in a contiguous stack arena instead of
// the interpreter's map-based environment.
package memory

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

// Arena sizing defaults
const (
	DefaultArenaSize    = 64 * 1024        // 64KB
	DefaultArenaCeiling = 16 * 1024 * 1024 // growth stops here
	ArenaGrowthFactor   = 2
)

var (
	ErrOutOfCapacity = errors.New("stack allocator: capacity exhausted")
	ErrBadAlignment  = errors.New("stack allocator: alignment must be a positive power of two")
)

// Mark is a stack position returned by Checkpoint
type Mark int

// StackStats describes allocator usage
type StackStats struct {
	Size        int // bytes currently backing the arena
	Ceiling     int
	Used        int
	Peak        int
	Allocations uint64
	Releases    uint64
	Growths     uint64
}

// Utilization is the used fraction of the current arena size.
func (s StackStats) Utilization() float64 {
	if s.Size == 0 {
		return 0
	}
	return float64(s.Used) / float64(s.Size)
}

// StackAllocator is a bump allocator with LIFO release. Offsets stay valid
// while the arena grows since growth only appends. It is not safe for
// concurrent use; each interpreter owns one.
type StackAllocator struct {
	buf     []byte
	top     int
	ceiling int
	peak    int

	allocations uint64
	releases    uint64
	growths     uint64
}

// NewStackAllocator creates an arena of size bytes that may grow up to ceiling.
func NewStackAllocator(size, ceiling int) *StackAllocator {
	if size <= 0 {
		size = DefaultArenaSize
	}
	if ceiling < size {
		ceiling = size
	}
	return &StackAllocator{
		buf:     make([]byte, size),
		ceiling: ceiling,
	}
}

func alignUp[T constraints.Integer](n, align T) T {
	return (n + align - 1) &^ (align - 1)
}

// Allocate reserves size zeroed bytes aligned to align and returns their offset.
func (a *StackAllocator) Allocate(size, align int) (int, error) {
	if align <= 0 || align&(align-1) != 0 {
		return 0, ErrBadAlignment
	}
	off := alignUp(a.top, align)
	end := off + size
	if end > len(a.buf) {
		if err := a.grow(end); err != nil {
			return 0, err
		}
	}

	clear(a.buf[off:end])
	a.top = end
	a.allocations++
	if a.top > a.peak {
		a.peak = a.top
	}
	return off, nil
}

// grow doubles the arena until need bytes fit, bounded by the ceiling
func (a *StackAllocator) grow(need int) error {
	if need > a.ceiling {
		return errors.Wrapf(ErrOutOfCapacity, "need %d bytes, ceiling %d", need, a.ceiling)
	}
	size := len(a.buf)
	for size < need {
		size *= ArenaGrowthFactor
	}
	if size > a.ceiling {
		size = a.ceiling
	}
	a.buf = append(a.buf, make([]byte, size-len(a.buf))...)
	a.growths++
	return nil
}

// Checkpoint returns the current top for a later Release.
func (a *StackAllocator) Checkpoint() Mark { return Mark(a.top) }

// Release pops everything allocated after m. Releasing to a mark at or above
// the current top does nothing, so nested frames may be released out of order
// by an outer frame without harm.
func (a *StackAllocator) Release(m Mark) {
	if int(m) >= a.top || m < 0 {
		return
	}
	a.top = int(m)
	a.releases++
}

// Used returns the number of bytes below the top.
func (a *StackAllocator) Used() int { return a.top }

// Stats returns usage statistics
func (a *StackAllocator) Stats() StackStats {
	return StackStats{
		Size:        len(a.buf),
		Ceiling:     a.ceiling,
		Used:        a.top,
		Peak:        a.peak,
		Allocations: a.allocations,
		Releases:    a.releases,
		Growths:     a.growths,
	}
}

// Slot codecs. Offsets must come from Allocate.

func (a *StackAllocator) PutInt64(off int, v int64) {
	binary.LittleEndian.PutUint64(a.buf[off:], uint64(v))
}

func (a *StackAllocator) Int64(off int) int64 {
	return int64(binary.LittleEndian.Uint64(a.buf[off:]))
}

func (a *StackAllocator) PutFloat64(off int, v float64) {
	binary.LittleEndian.PutUint64(a.buf[off:], math.Float64bits(v))
}

func (a *StackAllocator) Float64(off int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(a.buf[off:]))
}

func (a *StackAllocator) PutBool(off int, v bool) {
	var b byte
	if v {
		b = 1
	}
	a.buf[off] = b
}

func (a *StackAllocator) Bool(off int) bool { return a.buf[off] != 0 }

// PutWord and Word move a raw 8-byte slot.
func (a *StackAllocator) PutWord(off int, w uint64) {
	binary.LittleEndian.PutUint64(a.buf[off:], w)
}

func (a *StackAllocator) Word(off int) uint64 {
	return binary.LittleEndian.Uint64(a.buf[off:])
}
