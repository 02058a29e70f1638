// Package dispatch decides, for every loop the interpreter reaches, whether to
// interpret it or run compiled code, and drives the profile -> compile ->
// cache cycle as an explicit state machine per loop site.
package dispatch

import (
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/ast"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/config"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/hotspot"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/interp"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/jit"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/logger"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/memory"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/monitor"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/optimizer"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/value"
)

// TransitionFunc observes state changes of a loop site.
type TransitionFunc func(id ast.LoopID, from, to State)

// Options configures a Dispatcher
type Options struct {
	Hotspot   hotspot.Options
	Optimizer optimizer.Options
	Memory    memory.Options

	// Cache defaults to jit.SharedCache(), Monitor to monitor.Default().
	Cache   *jit.Cache
	Monitor *monitor.Monitor

	Out          io.Writer // print output of the interpreter, stdout when nil
	ShowStats    bool
	OnTransition TransitionFunc
}

// DefaultOptions returns the options of config.Default().
func DefaultOptions() Options {
	opts, _ := OptionsFromConfig(config.Default())
	return opts
}

// OptionsFromConfig maps a validated configuration onto dispatcher options.
func OptionsFromConfig(cfg config.Config) (Options, error) {
	disabled, err := optimizer.ParseSet(cfg.Optimizer.Disabled)
	if err != nil {
		return Options{}, errors.Wrap(err, "optimizer.disabled")
	}
	opts := Options{
		Hotspot: hotspot.Options{
			Threshold:     cfg.Hotspot.Threshold,
			MinIterations: cfg.Hotspot.MinIterations,
			MinElapsed:    cfg.Hotspot.MinElapsed,
		},
		Optimizer: optimizer.Options{
			Disabled:     disabled,
			UnrollFactor: cfg.Optimizer.UnrollFactor,
			VectorWidth:  cfg.Optimizer.VectorWidth,
		},
		Memory: memory.Options{
			ArenaSize:       cfg.Memory.ArenaSize,
			ArenaCeiling:    cfg.Memory.ArenaCeiling,
			MaxNestingDepth: cfg.Memory.MaxNestingDepth,
			Preallocate:     cfg.Memory.Preallocate,
		},
		ShowStats: cfg.ShowStats,
	}
	if cfg.Cache.Capacity != jit.DefaultCacheCapacity {
		opts.Cache = jit.NewCache(cfg.Cache.Capacity)
	}
	return opts, nil
}

// site is the dispatcher's view of one loop
type site struct {
	id    ast.LoopID
	loop  ast.Loop
	state State

	shape *ast.Shape
	nodes []ast.Node
	prof  hotspot.Profile // tier and access, set once

	sel *optimizer.Selection
	fp  jit.Fingerprint
}

// Dispatcher runs loops for one interpreter. It implements interp.LoopRunner.
// Like the memory manager it must not be shared between goroutines; the cache
// and monitor it reports to may be.
type Dispatcher struct {
	opts     Options
	in       *interp.Interpreter
	analyzer *hotspot.Analyzer
	selector *optimizer.Selector
	compiler *jit.Compiler
	cache    *jit.Cache
	manager  *memory.Manager
	mon      *monitor.Monitor

	sites  map[ast.LoopID]*site
	failed map[jit.Fingerprint]error
}

// New creates a Dispatcher with its own interpreter, installed as that
// interpreter's loop runner.
func New(opts Options) *Dispatcher {
	if opts.Cache == nil {
		opts.Cache = jit.SharedCache()
	}
	if opts.Monitor == nil {
		opts.Monitor = monitor.Default()
	}
	d := &Dispatcher{
		opts:     opts,
		analyzer: hotspot.NewAnalyzer(opts.Hotspot),
		selector: optimizer.NewSelector(opts.Optimizer),
		compiler: jit.NewCompiler(),
		cache:    opts.Cache,
		manager:  memory.NewManager(opts.Memory),
		mon:      opts.Monitor,
		sites:    make(map[ast.LoopID]*site),
		failed:   make(map[jit.Fingerprint]error),
	}
	d.in = interp.New(opts.Out)
	d.in.Runner = d
	return d
}

// Interpreter returns the interpreter whose loops this dispatcher runs.
func (d *Dispatcher) Interpreter() *interp.Interpreter { return d.in }

// Analyzer returns the hotspot profiles.
func (d *Dispatcher) Analyzer() *hotspot.Analyzer { return d.analyzer }

// Manager returns the loop variable manager.
func (d *Dispatcher) Manager() *memory.Manager { return d.manager }

// Cache returns the compilation cache in use.
func (d *Dispatcher) Cache() *jit.Cache { return d.cache }

// Monitor returns the monitor the dispatcher reports to.
func (d *Dispatcher) Monitor() *monitor.Monitor { return d.mon }

// State returns the state of the loop site id.
func (d *Dispatcher) State(id ast.LoopID) State {
	if s, ok := d.sites[id]; ok {
		return s.state
	}
	return StateInterpreted
}

// ExecuteLoop runs loop l against env. Apart from a too deep loop nesting,
// failures of the core itself never surface; runtime errors of the loop body
// are returned as the interpreter would return them.
func (d *Dispatcher) ExecuteLoop(l ast.Loop, env value.Environment) (interp.Result, error) {
	return d.RunLoop(d.in, l, env)
}

// Run executes a statement block with this dispatcher handling its loops.
func (d *Dispatcher) Run(stmts []ast.Stmt, env value.Environment) (interp.Result, error) {
	return d.in.Exec(stmts, env)
}

func (d *Dispatcher) site(l ast.Loop) *site {
	id := ast.IDOf(l)
	s, ok := d.sites[id]
	if ok && s.loop == l {
		return s
	}
	shape := ast.Canonicalize(l)
	if !ok || s.shape.Hash != shape.Hash {
		// a different loop at a known position starts over
		if ok {
			d.analyzer.Reset(id)
		}
		s = &site{id: id, state: StateInterpreted}
		d.sites[id] = s
	}
	s.loop = l
	s.shape = shape
	s.nodes = ast.Preorder(l)
	s.prof = hotspot.Profile{
		Tier:   hotspot.ClassifyComplexity(l.Body()),
		Access: hotspot.ClassifyAccess(l),
	}
	d.analyzer.Observe(id, s.prof.Tier, s.prof.Access)
	return s
}

func (d *Dispatcher) transition(s *site, to State) {
	from := s.state
	if from == to {
		return
	}
	if !CanTransition(from, to) {
		logger.Warn("unexpected loop state transition", "loop", s.id, "from", from, "to", to)
	}
	s.state = to
	d.mon.RecordTransition(from.String(), to.String())
	logger.Trace(logger.JIT, "loop state", "loop", s.id, "from", from, "to", to)
	if d.opts.OnTransition != nil {
		d.opts.OnTransition(s.id, from, to)
	}
}

// RunLoop implements interp.LoopRunner.
func (d *Dispatcher) RunLoop(in *interp.Interpreter, l ast.Loop, env value.Environment) (interp.Result, error) {
	s := d.site(l)

	h, err := in.EvalHeader(l, env)
	if err != nil {
		return interp.Result{}, err
	}

	if s.state == StateCompiled {
		if cl, ok := d.acquire(s); ok {
			return d.runCompiled(in, s, cl, h, env)
		}
	}

	res, err := d.runInterpreted(in, s, h, env)
	if err != nil || s.state == StatePermanentlyInterpreted {
		return res, err
	}

	if s.state == StateInterpreted {
		d.transition(s, StateProfiling)
	}
	if d.analyzer.ShouldCompile(s.id) {
		d.promote(s)
	}
	return res, nil
}

// acquire fetches the artifact of a compiled site, recompiling it when it
// was evicted.
func (d *Dispatcher) acquire(s *site) (*jit.CompiledLoop, bool) {
	cl, hit, err := d.cache.GetOrCompile(s.fp, func() (*jit.CompiledLoop, error) {
		d.transition(s, StateCompiling)
		return d.compile(s)
	})
	d.countLookup(hit)
	if err != nil {
		d.fail(s, err)
		return nil, false
	}
	d.transition(s, StateCompiled)
	return cl, true
}

// promote moves a hot site to Compiled, through a compile unless another site
// with the same fingerprint already produced the artifact.
func (d *Dispatcher) promote(s *site) {
	prof, _ := d.analyzer.Profile(s.id)
	s.sel = d.selector.Select(s.loop, s.shape, prof)
	s.fp = jit.NewFingerprint(s.shape, prof.Tier, s.sel.Set)

	if err, ok := d.failed[s.fp]; ok {
		logger.Trace(logger.JIT, "fingerprint failed before, not retrying", "loop", s.id, "fingerprint", s.fp, "error", err)
		d.transition(s, StatePermanentlyInterpreted)
		return
	}
	d.acquire(s)
}

func (d *Dispatcher) countLookup(hit bool) {
	if hit {
		d.mon.RecordCacheHit()
	} else {
		d.mon.RecordCacheMiss()
	}
}

func (d *Dispatcher) compile(s *site) (*jit.CompiledLoop, error) {
	start := time.Now()
	cl, err := d.compiler.Compile(s.loop, s.shape, s.sel, s.fp)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		d.mon.RecordCompile(monitor.CompileOK, elapsed)
		logger.Trace(logger.JIT, "compiled loop", "loop", s.id, "fingerprint", s.fp, "id", cl.ID, "elapsed", elapsed)
	case errors.Is(err, jit.ErrUnsupported):
		d.mon.RecordCompile(monitor.CompileUnsupported, elapsed)
	default:
		d.mon.RecordCompile(monitor.CompileInternal, elapsed)
	}
	return cl, err
}

// fail records a compile failure for the fingerprint of s.
func (d *Dispatcher) fail(s *site, err error) {
	d.failed[s.fp] = err
	if errors.Is(err, jit.ErrUnsupported) {
		logger.Trace(logger.JIT, "loop not compilable", "loop", s.id, "fingerprint", s.fp, "error", err)
	} else {
		logger.Warn("loop compilation failed", "loop", s.id, "fingerprint", s.fp, "error", err)
	}
	d.transition(s, StatePermanentlyInterpreted)
}

// frame runs fn inside a fresh loop frame that is closed on every exit path.
func (d *Dispatcher) frame(l ast.Loop, shape *ast.Shape, env value.Environment, fn func(*memory.Frame) (interp.Result, int64, error)) (res interp.Result, n int64, err error) {
	f, err := d.manager.Enter(l, shape, env)
	if err != nil {
		return interp.Result{}, 0, err
	}
	defer func() {
		if xerr := d.manager.Exit(f); xerr != nil && err == nil {
			err = xerr
		}
	}()
	return fn(f)
}

func (d *Dispatcher) runInterpreted(in *interp.Interpreter, s *site, h interp.Header, env value.Environment) (interp.Result, error) {
	start := time.Now()
	res, n, err := d.frame(s.loop, s.shape, env, func(f *memory.Frame) (interp.Result, int64, error) {
		return in.Iterate(s.loop, h, f)
	})
	elapsed := time.Since(start)
	d.analyzer.RecordExecution(s.id, n, elapsed)
	d.mon.RecordRun(false, n, elapsed)
	return res, err
}

// runCompiled runs cl, or interprets when the compiled body would nest
// deeper than the manager allows. Interpretation then reports the
// nesting error at the exact loop that crosses the limit.
func (d *Dispatcher) runCompiled(in *interp.Interpreter, s *site, cl *jit.CompiledLoop, h interp.Header, env value.Environment) (interp.Result, error) {
	if d.manager.Depth()+1+cl.NestDepth > d.manager.MaxNestingDepth() {
		return d.runInterpreted(in, s, h, env)
	}

	start := time.Now()
	res, n, err := d.frame(s.loop, s.shape, env, func(f *memory.Frame) (interp.Result, int64, error) {
		res, n, err := cl.Run(f, jit.Inputs{Header: h, Nodes: s.nodes})
		if errors.Is(err, jit.ErrInternal) && n == 0 {
			d.fail(s, err)
			return in.Iterate(s.loop, h, f)
		}
		return res, n, err
	})
	elapsed := time.Since(start)
	d.analyzer.RecordExecution(s.id, n, elapsed)
	d.mon.RecordRun(true, n, elapsed)
	return res, err
}

// Report collects the statistics of this dispatcher.
func (d *Dispatcher) Report() monitor.Report {
	return monitor.Report{
		Snapshot: d.mon.Snapshot(),
		Cache:    d.cache.Stats(),
		Memory:   d.manager.Stats(),
		Hottest:  d.analyzer.Profiles(),
	}
}

// Finish writes the statistics report to w when statistics were requested.
func (d *Dispatcher) Finish(w io.Writer) error {
	if !d.opts.ShowStats {
		return nil
	}
	return monitor.WriteReport(w, d.Report())
}
