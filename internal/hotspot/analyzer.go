// Package hotspot profiles loop executions and answers whether a loop is hot
// enough to compile. It never compiles anything itself.
package hotspot

import (
	"sort"
	"sync"
	"time"

	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/ast"
)

// Compilation gating defaults
const (
	DefaultThreshold     = 50
	DefaultMinIterations = 64
	DefaultMinElapsed    = time.Millisecond
)

// Options configures an Analyzer
type Options struct {
	Threshold     int           // executions before a loop is a candidate
	MinIterations int64         // cumulative iteration floor
	MinElapsed    time.Duration // cumulative time floor, either floor suffices
}

// DefaultOptions returns the built-in gating.
func DefaultOptions() Options {
	return Options{
		Threshold:     DefaultThreshold,
		MinIterations: DefaultMinIterations,
		MinElapsed:    DefaultMinElapsed,
	}
}

// Profile is the execution history of one loop site
type Profile struct {
	ID         ast.LoopID
	Executions uint64
	Iterations uint64
	Elapsed    time.Duration

	AvgIterations float64       // running mean per execution
	AvgElapsed    time.Duration // running mean per execution

	Tier     Tier
	Access   AccessPattern
	Observed bool // Tier and Access have been set
}

// Analyzer keeps one Profile per loop identity for the life of the process.
// Updates for an identity are applied in call order.
type Analyzer struct {
	mu       sync.RWMutex
	opts     Options
	profiles map[ast.LoopID]*Profile
}

// NewAnalyzer creates an Analyzer. A zero Threshold takes the default.
func NewAnalyzer(opts Options) *Analyzer {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	return &Analyzer{
		opts:     opts,
		profiles: make(map[ast.LoopID]*Profile),
	}
}

// Options returns the gating in use.
func (a *Analyzer) Options() Options { return a.opts }

func (a *Analyzer) profile(id ast.LoopID) *Profile {
	p, ok := a.profiles[id]
	if !ok {
		p = &Profile{ID: id}
		a.profiles[id] = p
	}
	return p
}

// RecordExecution adds one completed execution of loop id.
func (a *Analyzer) RecordExecution(id ast.LoopID, iterations int64, elapsed time.Duration) {
	if iterations < 0 {
		iterations = 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	p := a.profile(id)
	p.Executions++
	p.Iterations += uint64(iterations)
	p.Elapsed += elapsed

	// incremental means: m += (x - m) / n
	n := float64(p.Executions)
	p.AvgIterations += (float64(iterations) - p.AvgIterations) / n
	p.AvgElapsed += time.Duration((float64(elapsed) - float64(p.AvgElapsed)) / n)
}

// Observe stores the structural classification of loop id.
func (a *Analyzer) Observe(id ast.LoopID, tier Tier, access AccessPattern) {
	a.mu.Lock()
	defer a.mu.Unlock()

	p := a.profile(id)
	p.Tier = tier
	p.Access = access
	p.Observed = true
}

// Reset drops the profile of id, so its next execution counts as the first.
func (a *Analyzer) Reset(id ast.LoopID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.profiles, id)
}

// ShouldCompile reports whether id has run at least Threshold times and has
// done enough work in total to be worth compiling.
func (a *Analyzer) ShouldCompile(id ast.LoopID) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	p, ok := a.profiles[id]
	if !ok || p.Executions < uint64(a.opts.Threshold) {
		return false
	}
	return p.Iterations >= uint64(a.opts.MinIterations) || p.Elapsed >= a.opts.MinElapsed
}

// Profile returns a copy of the profile of id.
func (a *Analyzer) Profile(id ast.LoopID) (Profile, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	p, ok := a.profiles[id]
	if !ok {
		return Profile{}, false
	}
	return *p, true
}

// Profiles returns copies of all profiles, most total time first.
func (a *Analyzer) Profiles() []Profile {
	a.mu.RLock()
	out := make([]Profile, 0, len(a.profiles))
	for _, p := range a.profiles {
		out = append(out, *p)
	}
	a.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Elapsed != out[j].Elapsed {
			return out[i].Elapsed > out[j].Elapsed
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of profiled loops.
func (a *Analyzer) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.profiles)
}
