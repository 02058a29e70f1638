// cmd/cnloop/main.go
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/config"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/dispatch"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/interp"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/jit"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/logger"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/monitor"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/value"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/workload"
)

const VERSION = "0.5.11"

// Build variables - can be set during build with ldflags
var (
	BuildDate = time.Now().Format("2006-01-02")
	GitCommit = "unknown"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		showUsage()
		return
	}

	switch args[0] {
	case "--help", "-h", "help", "-help":
		showUsage()
		return
	case "--version", "-v", "version", "-version":
		showVersion()
		return
	case "list":
		listWorkloads()
		return
	case "run":
		ok, err := runCommand(args[1:])
		if err != nil {
			log.Fatalf("Error: %v", err)
		}
		if !ok {
			os.Exit(1)
		}
		return
	}

	fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
	showUsage()
	os.Exit(2)
}

func showUsage() {
	fmt.Println("cnloop - loop acceleration core driver")
	fmt.Println("")
	fmt.Println("Usage:")
	fmt.Println("  cnloop run [flags] [workload...]   Run workloads (all when none are named)")
	fmt.Println("  cnloop list                        List the available workloads")
	fmt.Println("  cnloop version                     Show version information")
	fmt.Println("  cnloop help                        Show this help")
	fmt.Println("")
	fmt.Println("Run flags:")
	fmt.Println("  -config <file>      YAML configuration")
	fmt.Println("  -runs <n>           Executions of each workload (default 200)")
	fmt.Println("  -size <n>           Problem size, 0 keeps each workload's default")
	fmt.Println("  -stats              Print execution statistics at exit")
	fmt.Println("  -dump-ir            Print the IR of every compiled loop at exit")
	fmt.Println("  -interpret          Never compile; interpret every loop")
	fmt.Println("  -log-level <level>  debug, info, warn or error")
	fmt.Println("  -debug-jit          Trace compiler and dispatcher decisions")
	fmt.Println("  -debug-memory       Trace loop frame allocation")
}

func showVersion() {
	fmt.Printf("cnloop version %s\n", VERSION)
	fmt.Printf("Build date: %s\n", BuildDate)
	fmt.Printf("Git commit: %s\n", GitCommit)
}

func listWorkloads() {
	for _, name := range workload.Names() {
		desc, _ := workload.Describe(name)
		fmt.Printf("  %-18s %s\n", name, desc)
	}
}

type runFlags struct {
	config      string
	runs        int
	size        int
	stats       bool
	dumpIR      bool
	interpret   bool
	logLevel    string
	debugJIT    bool
	debugMemory bool
}

func parseRunFlags(args []string) (runFlags, []string, error) {
	var rf runFlags
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.Usage = showUsage
	fs.StringVar(&rf.config, "config", "", "")
	fs.IntVar(&rf.runs, "runs", 200, "")
	fs.IntVar(&rf.size, "size", 0, "")
	fs.BoolVar(&rf.stats, "stats", false, "")
	fs.BoolVar(&rf.dumpIR, "dump-ir", false, "")
	fs.BoolVar(&rf.interpret, "interpret", false, "")
	fs.StringVar(&rf.logLevel, "log-level", "", "")
	fs.BoolVar(&rf.debugJIT, "debug-jit", false, "")
	fs.BoolVar(&rf.debugMemory, "debug-memory", false, "")
	if err := fs.Parse(args); err != nil {
		return rf, nil, err
	}
	if rf.runs < 1 {
		return rf, nil, errors.Errorf("-runs must be at least 1, got %d", rf.runs)
	}
	return rf, fs.Args(), nil
}

func loadConfig(rf runFlags) (config.Config, error) {
	cfg := config.Default()
	if rf.config != "" {
		var err error
		if cfg, err = config.Load(rf.config); err != nil {
			return cfg, err
		}
	}
	if rf.stats {
		cfg.ShowStats = true
	}
	if rf.interpret {
		// no loop ever becomes hot
		cfg.Hotspot.Threshold = int(^uint(0) >> 1)
	}
	if rf.logLevel != "" {
		cfg.LogLevel = rf.logLevel
	}
	cfg.Debug.JIT = cfg.Debug.JIT || rf.debugJIT
	cfg.Debug.Memory = cfg.Debug.Memory || rf.debugMemory
	return cfg, nil
}

// runCommand runs the selected workloads and reports whether every result
// matched its expected value.
func runCommand(args []string) (bool, error) {
	rf, names, err := parseRunFlags(args)
	if err != nil {
		return false, err
	}
	cfg, err := loadConfig(rf)
	if err != nil {
		return false, err
	}
	if cfg.LogLevel != "" && !logger.SetLevel(cfg.LogLevel) {
		return false, errors.Errorf("unknown log level %q", cfg.LogLevel)
	}
	logger.EnableDebug(cfg.Debug.JIT, cfg.Debug.Memory)

	if len(names) == 0 {
		names = workload.Names()
	}
	programs := make([]*workload.Program, 0, len(names))
	for i, name := range names {
		var (
			p  *workload.Program
			ok bool
		)
		if rf.size > 0 {
			p, ok = workload.BuildSized(name, i+1, rf.size)
		} else {
			p, ok = workload.Build(name, i+1)
		}
		if !ok {
			return false, errors.Errorf("unknown workload %q (try: %s)", name, strings.Join(workload.Names(), ", "))
		}
		programs = append(programs, p)
	}

	opts, err := dispatch.OptionsFromConfig(cfg)
	if err != nil {
		return false, err
	}
	if opts.Cache == nil {
		opts.Cache = jit.NewCache(cfg.Cache.Capacity)
	}
	opts.Monitor = monitor.New()
	d := dispatch.New(opts)

	allOK := true
	for _, p := range programs {
		ok, err := runProgram(d, p, rf.runs)
		if err != nil {
			return false, err
		}
		allOK = allOK && ok
	}

	if rf.dumpIR {
		dumpIR(d.Cache())
	}
	if err := d.Finish(os.Stdout); err != nil {
		return false, err
	}
	return allOK, nil
}

func runProgram(d *dispatch.Dispatcher, p *workload.Program, runs int) (bool, error) {
	var (
		env   *interp.Scope
		start = time.Now()
	)
	for r := 0; r < runs; r++ {
		env = interp.NewScope(nil)
		if _, err := d.Run(p.Stmts, env); err != nil {
			return false, errors.Wrap(err, p.Name)
		}
	}
	elapsed := time.Since(start)

	got, _ := env.Lookup(p.Result)
	status := "ok"
	same := value.Equal(got, p.Want)
	if !same {
		status = fmt.Sprintf("MISMATCH (want %s)", p.Want)
	}
	fmt.Printf("%-18s %s = %-14s %s runs in %-12s %s\n",
		p.Name, p.Result, got, humanize.Comma(int64(runs)), elapsed.Round(time.Microsecond), status)
	return same, nil
}

func dumpIR(c *jit.Cache) {
	for _, cl := range c.Loops() {
		fmt.Printf("\n; fingerprint %s, strategies %s, %s\n", cl.Fingerprint, cl.Strategies, humanize.IBytes(uint64(cl.Size)))
		fmt.Print(cl.IR)
	}
}
