// Package logger is the process-wide structured logger of the loop core.
// Calls take a message followed by alternating key/value pairs:
//
//	logger.Debug("compiled loop", "loop", id, "strategies", set)
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Subsystems whose debug output can be switched on individually.
const (
	JIT    = "jit"
	Memory = "memory"
)

var (
	mu     sync.Mutex
	level  = new(slog.LevelVar)
	active atomic.Pointer[slog.Logger]

	debugJIT    atomic.Bool
	debugMemory atomic.Bool
)

func init() {
	level.Set(slog.LevelWarn)
	SetOutput(os.Stderr)
}

// SetOutput redirects all log output to w.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	active.Store(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// SetLevel sets the minimum level from its name (debug, info, warn, error).
// Unknown names leave the level unchanged and return false.
func SetLevel(name string) bool {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(name))); err != nil {
		return false
	}
	level.Set(l)
	return true
}

// EnableDebug turns on debug output for the named subsystems. Enabling any
// subsystem also lowers the level to debug.
func EnableDebug(jit, memory bool) {
	debugJIT.Store(jit)
	debugMemory.Store(memory)
	if jit || memory {
		level.Set(slog.LevelDebug)
	}
}

// DebugEnabled reports whether subsystem debug output is on.
func DebugEnabled(subsystem string) bool {
	switch subsystem {
	case JIT:
		return debugJIT.Load()
	case Memory:
		return debugMemory.Load()
	}
	return level.Level() <= slog.LevelDebug
}

func Debug(msg string, args ...any) { active.Load().Debug(msg, args...) }
func Info(msg string, args ...any)  { active.Load().Info(msg, args...) }
func Warn(msg string, args ...any)  { active.Load().Warn(msg, args...) }
func Error(msg string, args ...any) { active.Load().Error(msg, args...) }

// Trace logs at debug level only when subsystem debugging is switched on.
func Trace(subsystem, msg string, args ...any) {
	if !DebugEnabled(subsystem) {
		return
	}
	active.Load().Debug(msg, append([]any{"subsystem", subsystem}, args...)...)
}
