// Package monitor counts what the loop core does: compilations, cache
// traffic, interpreted and compiled runs, and state transitions. Counters are
// atomics so one Monitor can be shared by concurrent interpreters.
package monitor

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Monitor aggregates execution counters for the life of a process.
type Monitor struct {
	run     uuid.UUID
	started time.Time

	compileAttempts    atomic.Int64
	compileSuccesses   atomic.Int64
	compileUnsupported atomic.Int64
	compileInternal    atomic.Int64
	compileTime        atomic.Int64 // ns

	cacheHits   atomic.Int64
	cacheMisses atomic.Int64

	interpretedRuns  atomic.Int64
	interpretedIters atomic.Int64
	interpretedTime  atomic.Int64 // ns
	compiledRuns     atomic.Int64
	compiledIters    atomic.Int64
	compiledTime     atomic.Int64 // ns

	mu          sync.Mutex
	transitions map[string]int64
}

// New creates a Monitor with all counters at zero.
func New() *Monitor {
	return &Monitor{
		run:         uuid.New(),
		started:     time.Now(),
		transitions: make(map[string]int64),
	}
}

var (
	defaultOnce sync.Once
	defaultMon  *Monitor
)

// Default returns the process-wide Monitor, created on first use.
func Default() *Monitor {
	defaultOnce.Do(func() { defaultMon = New() })
	return defaultMon
}

// CompileOutcome classifies the result of one compile attempt
type CompileOutcome uint8

const (
	CompileOK CompileOutcome = iota
	CompileUnsupported
	CompileInternal
)

// RecordCompile counts a compile attempt and its duration.
func (m *Monitor) RecordCompile(outcome CompileOutcome, d time.Duration) {
	m.compileAttempts.Add(1)
	m.compileTime.Add(int64(d))
	switch outcome {
	case CompileOK:
		m.compileSuccesses.Add(1)
	case CompileUnsupported:
		m.compileUnsupported.Add(1)
	case CompileInternal:
		m.compileInternal.Add(1)
	}
}

func (m *Monitor) RecordCacheHit()  { m.cacheHits.Add(1) }
func (m *Monitor) RecordCacheMiss() { m.cacheMisses.Add(1) }

// RecordRun counts one loop execution.
func (m *Monitor) RecordRun(compiled bool, iterations int64, d time.Duration) {
	if compiled {
		m.compiledRuns.Add(1)
		m.compiledIters.Add(iterations)
		m.compiledTime.Add(int64(d))
		return
	}
	m.interpretedRuns.Add(1)
	m.interpretedIters.Add(iterations)
	m.interpretedTime.Add(int64(d))
}

// RecordTransition counts a dispatcher state change.
func (m *Monitor) RecordTransition(from, to string) {
	m.mu.Lock()
	m.transitions[from+" -> "+to]++
	m.mu.Unlock()
}

// Snapshot is a consistent-enough copy of the counters. Individual counters
// are exact; counters read a moment apart may disagree by in-flight events.
type Snapshot struct {
	Run    uuid.UUID
	Uptime time.Duration

	CompileAttempts    int64
	CompileSuccesses   int64
	CompileUnsupported int64
	CompileInternal    int64
	CompileTime        time.Duration

	CacheHits   int64
	CacheMisses int64

	InterpretedRuns       int64
	InterpretedIterations int64
	InterpretedTime       time.Duration
	CompiledRuns          int64
	CompiledIterations    int64
	CompiledTime          time.Duration

	Transitions []Transition
}

// Transition is a state change and how often it happened.
type Transition struct {
	Edge  string
	Count int64
}

// Snapshot copies the current counters.
func (m *Monitor) Snapshot() Snapshot {
	s := Snapshot{
		Run:    m.run,
		Uptime: time.Since(m.started),

		CompileAttempts:    m.compileAttempts.Load(),
		CompileSuccesses:   m.compileSuccesses.Load(),
		CompileUnsupported: m.compileUnsupported.Load(),
		CompileInternal:    m.compileInternal.Load(),
		CompileTime:        time.Duration(m.compileTime.Load()),

		CacheHits:   m.cacheHits.Load(),
		CacheMisses: m.cacheMisses.Load(),

		InterpretedRuns:       m.interpretedRuns.Load(),
		InterpretedIterations: m.interpretedIters.Load(),
		InterpretedTime:       time.Duration(m.interpretedTime.Load()),
		CompiledRuns:          m.compiledRuns.Load(),
		CompiledIterations:    m.compiledIters.Load(),
		CompiledTime:          time.Duration(m.compiledTime.Load()),
	}

	m.mu.Lock()
	for edge, n := range m.transitions {
		s.Transitions = append(s.Transitions, Transition{Edge: edge, Count: n})
	}
	m.mu.Unlock()
	sort.Slice(s.Transitions, func(i, j int) bool { return s.Transitions[i].Edge < s.Transitions[j].Edge })
	return s
}

// HitRate returns cache hits / lookups.
func (s Snapshot) HitRate() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

// PerIteration returns the mean time per iteration of interpreted and
// compiled runs. A side without iterations reports 0.
func (s Snapshot) PerIteration() (interpreted, compiled time.Duration) {
	if s.InterpretedIterations > 0 {
		interpreted = s.InterpretedTime / time.Duration(s.InterpretedIterations)
	}
	if s.CompiledIterations > 0 {
		compiled = s.CompiledTime / time.Duration(s.CompiledIterations)
	}
	return interpreted, compiled
}

// Speedup is interpreted over compiled time per iteration, 0 when unknown.
func (s Snapshot) Speedup() float64 {
	i, c := s.PerIteration()
	if i == 0 || c == 0 {
		return 0
	}
	return float64(i) / float64(c)
}

// Reset zeroes every counter.
func (m *Monitor) Reset() {
	for _, c := range []*atomic.Int64{
		&m.compileAttempts, &m.compileSuccesses, &m.compileUnsupported, &m.compileInternal, &m.compileTime,
		&m.cacheHits, &m.cacheMisses,
		&m.interpretedRuns, &m.interpretedIters, &m.interpretedTime,
		&m.compiledRuns, &m.compiledIters, &m.compiledTime,
	} {
		c.Store(0)
	}
	m.mu.Lock()
	m.transitions = make(map[string]int64)
	m.mu.Unlock()
}
