package monitor

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/hotspot"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/jit"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/memory"
)

func TestCounters(t *testing.T) {
	m := New()
	m.RecordCompile(CompileOK, time.Millisecond)
	m.RecordCompile(CompileUnsupported, time.Millisecond)
	m.RecordCompile(CompileInternal, time.Millisecond)
	m.RecordCacheMiss()
	for i := 0; i < 3; i++ {
		m.RecordCacheHit()
	}
	m.RecordRun(false, 100, 400*time.Microsecond)
	m.RecordRun(true, 100, 100*time.Microsecond)
	m.RecordTransition("profiling", "compiling")
	m.RecordTransition("interpreted", "profiling")
	m.RecordTransition("profiling", "compiling")

	s := m.Snapshot()
	if s.CompileAttempts != 3 || s.CompileSuccesses != 1 || s.CompileUnsupported != 1 || s.CompileInternal != 1 {
		t.Errorf("compile counters %+v", s)
	}
	if s.CompileTime != 3*time.Millisecond {
		t.Errorf("compile time %s", s.CompileTime)
	}
	if s.HitRate() != 0.75 {
		t.Errorf("hit rate %v", s.HitRate())
	}
	interp, comp := s.PerIteration()
	if interp != 4*time.Microsecond || comp != time.Microsecond {
		t.Errorf("per iteration %s / %s", interp, comp)
	}
	if s.Speedup() != 4 {
		t.Errorf("speedup %v", s.Speedup())
	}

	want := []Transition{{"interpreted -> profiling", 1}, {"profiling -> compiling", 2}}
	if len(s.Transitions) != len(want) {
		t.Fatalf("transitions %v", s.Transitions)
	}
	for i := range want {
		if s.Transitions[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, s.Transitions[i], want[i])
		}
	}
}

func TestEmptySnapshot(t *testing.T) {
	s := New().Snapshot()
	if s.HitRate() != 0 || s.Speedup() != 0 {
		t.Errorf("empty monitor reports hit rate %v speedup %v", s.HitRate(), s.Speedup())
	}
	if New().Snapshot().Run == s.Run {
		t.Error("two monitors share a run id")
	}
}

func TestReset(t *testing.T) {
	m := New()
	m.RecordCacheHit()
	m.RecordRun(true, 5, time.Second)
	m.RecordTransition("a", "b")
	m.Reset()

	s := m.Snapshot()
	if s.CacheHits != 0 || s.CompiledRuns != 0 || s.CompiledTime != 0 || len(s.Transitions) != 0 {
		t.Errorf("reset left %+v", s)
	}
}

func TestConcurrentRecording(t *testing.T) {
	m := New()
	var g errgroup.Group
	for w := 0; w < 8; w++ {
		g.Go(func() error {
			for i := 0; i < 1000; i++ {
				m.RecordCacheHit()
				m.RecordRun(i%2 == 0, 1, time.Nanosecond)
				m.RecordTransition("compiled", "compiling")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	s := m.Snapshot()
	if s.CacheHits != 8000 || s.InterpretedRuns+s.CompiledRuns != 8000 || s.Transitions[0].Count != 8000 {
		t.Errorf("lost updates: %+v", s)
	}
}

func TestWriteReport(t *testing.T) {
	m := New()
	m.RecordCompile(CompileOK, 2*time.Millisecond)
	m.RecordCacheMiss()
	m.RecordCacheHit()
	m.RecordRun(true, 12345, time.Millisecond)
	m.RecordTransition("profiling", "compiling")

	r := Report{
		Snapshot: m.Snapshot(),
		Cache:    jit.CacheStats{Entries: 1, Capacity: 256, Evictions: 3},
		Memory: memory.ManagerStats{
			LoopsEntered: 1500,
			Arena:        memory.StackStats{Size: 64 << 10, Ceiling: 16 << 20},
		},
		Hottest: []hotspot.Profile{
			{ID: "L3:1", Executions: 200, Iterations: 200000},
			{ID: "L9:2", Executions: 1, Iterations: 10},
		},
	}

	var buf bytes.Buffer
	if err := WriteReport(&buf, r); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"run " + r.Snapshot.Run.String(),
		"--- compilation cache ---",
		"hit rate:             50.00%",
		"entries:              1 / 256",
		"evictions:            3",
		"12,345 iterations",
		"loops entered:        1,500",
		"64 KiB (ceiling 16 MiB)",
		"profiling -> compiling",
		"L3:1",
		"200,000 iterations",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report lacks %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("escape sequences written to a buffer")
	}
}
