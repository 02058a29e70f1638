package memory

import (
	"testing"

	"github.com/kr/pretty"
	"github.com/pkg/errors"

	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/ast"
	cnerrors "github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/errors"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/interp"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/value"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/workload"
)

// accumulate is: for i in 0..n { let t = i * 2; sum += t; k += 1 }
func accumulate() ast.Loop {
	b := workload.NewBuilder(1)
	return b.For("i", b.Int(0), b.Ident("n"),
		b.Let("t", b.Bin(ast.OpMul, b.Ident("i"), b.Int(2))),
		b.Op("sum", ast.OpAdd, b.Ident("t")),
		b.Op("k", ast.OpAdd, b.Int(1)),
	)
}

func globals(vars map[string]int64) *interp.Scope {
	s := interp.NewScope(nil)
	for name, v := range vars {
		s.Declare(name, value.Int(v))
	}
	return s
}

func TestClassifyRoles(t *testing.T) {
	l := accumulate()
	shape := ast.Canonicalize(l)
	roles := Classify(l, shape)

	want := map[string]Role{
		"i":   RoleCounter,
		"n":   RoleTemporary,
		"t":   RoleTemporary,
		"sum": RoleAccumulator,
		"k":   RoleCounter,
	}
	got := make(map[string]Role)
	for i, name := range shape.Names {
		got[name] = roles[i]
	}
	if diff := pretty.Diff(got, want); len(diff) > 0 {
		t.Errorf("roles differ: %v", diff)
	}
}

func TestEnterCopiesInAndExitWritesBack(t *testing.T) {
	l := accumulate()
	shape := ast.Canonicalize(l)
	env := globals(map[string]int64{"n": 3, "sum": 5, "k": 0})

	m := NewManager(DefaultOptions())
	f, err := m.Enter(l, shape, env)
	if err != nil {
		t.Fatal(err)
	}
	if f.OnHeap() {
		t.Fatal("frame fell back to the heap with a default arena")
	}
	if f.NumSlots() != 4 {
		t.Fatalf("NumSlots() = %d, want 4 (n is only read)", f.NumSlots())
	}

	if v, _ := f.Lookup("sum"); !value.Equal(v, value.Int(5)) {
		t.Errorf("sum was not copied in: %v", v)
	}
	if v, _ := f.Lookup("n"); !value.Equal(v, value.Int(3)) {
		t.Errorf("n does not resolve through the parent: %v", v)
	}

	f.Declare("i", value.Int(7))
	f.Declare("t", value.Int(14))
	if err := f.Assign("sum", value.Int(42)); err != nil {
		t.Fatal(err)
	}
	if v, _ := env.Lookup("sum"); !value.Equal(v, value.Int(5)) {
		t.Errorf("parent changed before exit: %v", v)
	}

	if err := m.Exit(f); err != nil {
		t.Fatal(err)
	}
	if v, _ := env.Lookup("sum"); !value.Equal(v, value.Int(42)) {
		t.Errorf("sum after exit = %v, want 42", v)
	}
	for _, name := range []string{"i", "t"} {
		if _, ok := env.Lookup(name); ok {
			t.Errorf("%s leaked into the enclosing scope", name)
		}
	}
	if m.Depth() != 0 || m.Allocator().Used() != 0 {
		t.Errorf("depth %d used %d after exit", m.Depth(), m.Allocator().Used())
	}
	if f.Live() {
		t.Error("frame still live after exit")
	}
}

func TestUnsetSlotFallsThrough(t *testing.T) {
	l := accumulate()
	shape := ast.Canonicalize(l)
	// sum is not bound anywhere: the slot stays unset and assignment fails
	env := globals(map[string]int64{"n": 1, "k": 0})

	m := NewManager(DefaultOptions())
	f, err := m.Enter(l, shape, env)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Exit(f)

	if _, ok := f.Lookup("sum"); ok {
		t.Error("unbound sum resolved")
	}
	if err := f.Assign("sum", value.Int(1)); !errors.Is(err, interp.ErrUndefined) {
		t.Errorf("Assign to unbound name: %v", err)
	}
}

func TestNestingLimit(t *testing.T) {
	l := accumulate()
	shape := ast.Canonicalize(l)
	env := globals(map[string]int64{"n": 1, "sum": 0, "k": 0})

	m := NewManager(Options{MaxNestingDepth: 2})
	outer, err := m.Enter(l, shape, env)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Enter(l, shape, outer); err != nil {
		t.Fatal(err)
	}
	_, err = m.Enter(l, shape, outer)
	if !errors.Is(err, ErrNestingTooDeep) {
		t.Fatalf("third frame: got %v, want ErrNestingTooDeep", err)
	}
	if !cnerrors.Is(err, cnerrors.NestingTooDeep) {
		t.Errorf("error type is %s", cnerrors.TypeOf(err))
	}

	// exiting the outer frame closes the inner one too
	if err := m.Exit(outer); err != nil {
		t.Fatal(err)
	}
	st := m.Stats()
	if st.Depth != 0 || st.MaxDepth != 2 || st.LoopsEntered != 2 || st.LoopsExited != 2 {
		t.Errorf("stats after exit: %# v", pretty.Formatter(st))
	}
	if st.Arena.Used != 0 {
		t.Errorf("arena holds %d bytes after all frames exited", st.Arena.Used)
	}
}

func TestHeapFallback(t *testing.T) {
	l := accumulate()
	shape := ast.Canonicalize(l)
	env := globals(map[string]int64{"n": 1, "sum": 10, "k": 0})

	// room for two of the four slots, no growth
	m := NewManager(Options{ArenaSize: 16, ArenaCeiling: 16, Preallocate: true})
	f, err := m.Enter(l, shape, env)
	if err != nil {
		t.Fatal(err)
	}
	if !f.OnHeap() {
		t.Fatal("frame placed in an arena too small for it")
	}
	if err := f.Exhausted(); cnerrors.TypeOf(err) != cnerrors.AllocatorExhausted || !errors.Is(err, ErrOutOfCapacity) {
		t.Errorf("heap fallback cause %v", err)
	}
	if err := f.Assign("sum", value.Int(11)); err != nil {
		t.Fatal(err)
	}
	if err := m.Exit(f); err != nil {
		t.Fatal(err)
	}
	if v, _ := env.Lookup("sum"); !value.Equal(v, value.Int(11)) {
		t.Errorf("heap frame write back: sum = %v", v)
	}

	st := m.Stats()
	if st.HeapFallbacks != 1 || st.PreallocMisses != 1 || st.PreallocHits != 0 {
		t.Errorf("stats %# v", pretty.Formatter(st))
	}
}

func TestPreallocateOff(t *testing.T) {
	l := accumulate()
	m := NewManager(Options{Preallocate: false})
	f, err := m.Enter(l, ast.Canonicalize(l), globals(map[string]int64{"n": 1, "sum": 0, "k": 0}))
	if err != nil {
		t.Fatal(err)
	}
	defer m.Exit(f)
	if !f.OnHeap() || m.Allocator().Used() != 0 {
		t.Error("frame used the arena with preallocation off")
	}
	if f.Exhausted() != nil {
		t.Errorf("heap frame by choice reports %v", f.Exhausted())
	}
	if m.Stats().PreallocMisses != 0 {
		t.Error("a frame that never tried the arena counted as a miss")
	}
}

func TestFrameValueKinds(t *testing.T) {
	b := workload.NewBuilder(1)
	l := b.For("i", b.Int(0), b.Int(1),
		b.Let("a", b.Int(0)),
		b.Let("b", b.Int(0)),
		b.Let("c", b.Int(0)),
		b.Let("d", b.Int(0)),
	)
	m := NewManager(DefaultOptions())
	f, err := m.Enter(l, ast.Canonicalize(l), interp.NewScope(nil))
	if err != nil {
		t.Fatal(err)
	}
	defer m.Exit(f)

	vals := map[string]value.Value{
		"a": value.Int(-3),
		"b": value.Float(2.5),
		"c": value.Bool(true),
		"d": value.Array(value.Int(1), value.Int(2)),
	}
	for name, v := range vals {
		f.Declare(name, v)
	}
	for name, want := range vals {
		if got, _ := f.Lookup(name); !value.Equal(got, want) {
			t.Errorf("%s = %v, want %v", name, got, want)
		}
	}

	slot := f.Shape().Slot(0)
	f.PutInt(slot, 99)
	if f.Kind(slot) != value.KindInt || f.Int(slot) != 99 {
		t.Errorf("PutInt round trip: kind %s value %d", f.Kind(slot), f.Int(slot))
	}
	f.Unset(slot)
	if f.IsSet(slot) {
		t.Error("slot still set after Unset")
	}
}
