package monitor

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"

	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/hotspot"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/jit"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/memory"
)

// MaxHottest is the number of loops listed in a report.
const MaxHottest = 5

// Report gathers everything the statistics printout shows.
type Report struct {
	Snapshot Snapshot
	Cache    jit.CacheStats
	Memory   memory.ManagerStats
	Hottest  []hotspot.Profile // sorted hottest first
}

type reportWriter struct {
	w     io.Writer
	color bool
	err   error
}

func (rw *reportWriter) printf(format string, args ...any) {
	if rw.err != nil {
		return
	}
	_, rw.err = fmt.Fprintf(rw.w, format, args...)
}

func (rw *reportWriter) heading(title string) {
	if rw.color {
		rw.printf("\n\x1b[1m--- %s ---\x1b[0m\n", title)
		return
	}
	rw.printf("\n--- %s ---\n", title)
}

// isTerminal reports whether w is a terminal, so emphasis is worth emitting.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func percent(f float64) string {
	return fmt.Sprintf("%.2f%%", f*100)
}

func count[T constraints.Integer](n T) string {
	return humanize.Comma(int64(n))
}

// WriteReport writes r in human readable form.
func WriteReport(w io.Writer, r Report) error {
	rw := &reportWriter{w: w, color: isTerminal(w)}
	s := r.Snapshot

	rw.printf("=== loop execution statistics (run %s) ===\n", s.Run)

	rw.heading("executions")
	rw.printf("interpreted runs:     %s (%s iterations, %s)\n", count(s.InterpretedRuns), count(s.InterpretedIterations), s.InterpretedTime.Round(time.Microsecond))
	rw.printf("compiled runs:        %s (%s iterations, %s)\n", count(s.CompiledRuns), count(s.CompiledIterations), s.CompiledTime.Round(time.Microsecond))
	interp, comp := s.PerIteration()
	rw.printf("time per iteration:   interpreted %s, compiled %s", interp, comp)
	if sp := s.Speedup(); sp > 0 {
		rw.printf(" (%.1fx)", sp)
	}
	rw.printf("\n")

	rw.heading("compilation")
	rw.printf("attempts:             %s\n", count(s.CompileAttempts))
	rw.printf("succeeded:            %s\n", count(s.CompileSuccesses))
	rw.printf("unsupported:          %s\n", count(s.CompileUnsupported))
	rw.printf("internal errors:      %s\n", count(s.CompileInternal))
	rw.printf("compile time:         %s\n", s.CompileTime.Round(time.Microsecond))

	rw.heading("compilation cache")
	rw.printf("entries:              %d / %d\n", r.Cache.Entries, r.Cache.Capacity)
	rw.printf("hits / misses:        %s / %s\n", count(s.CacheHits), count(s.CacheMisses))
	rw.printf("hit rate:             %s\n", percent(s.HitRate()))
	rw.printf("evictions:            %s\n", count(r.Cache.Evictions))

	m := r.Memory
	rw.heading("loop variables")
	rw.printf("loops entered:        %s\n", count(m.LoopsEntered))
	rw.printf("max nesting depth:    %d\n", m.MaxDepth)
	rw.printf("slots promoted:       %s\n", count(m.SlotsPromoted))
	rw.printf("arena hits / misses:  %s / %s (%s)\n", count(m.PreallocHits), count(m.PreallocMisses), percent(m.HitRatio()))
	rw.printf("heap fallbacks:       %s\n", count(m.HeapFallbacks))

	a := m.Arena
	rw.heading("stack arena")
	rw.printf("size:                 %s (ceiling %s)\n", humanize.IBytes(uint64(a.Size)), humanize.IBytes(uint64(a.Ceiling)))
	rw.printf("used / peak:          %s / %s\n", humanize.IBytes(uint64(a.Used)), humanize.IBytes(uint64(a.Peak)))
	rw.printf("allocations:          %s (%s releases, %s growths)\n", count(a.Allocations), count(a.Releases), count(a.Growths))
	rw.printf("utilization:          %s\n", percent(a.Utilization()))

	if len(s.Transitions) > 0 {
		rw.heading("state transitions")
		for _, t := range s.Transitions {
			rw.printf("%-36s %s\n", t.Edge, count(t.Count))
		}
	}

	if len(r.Hottest) > 0 {
		rw.heading("hottest loops")
		for i, p := range r.Hottest {
			if i == MaxHottest {
				break
			}
			rw.printf("%-12s %8s runs %12s iterations %10s  %s/%s\n",
				p.ID, count(p.Executions), count(p.Iterations), p.Elapsed.Round(time.Microsecond), p.Tier, p.Access)
		}
	}
	rw.printf("%s\n", strings.Repeat("=", 44))
	return errors.Wrap(rw.err, "write statistics report")
}
