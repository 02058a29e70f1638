// Package config holds the tunables of the loop execution core and loads them
// from YAML.
package config

import (
	"bytes"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the complete loop core configuration.
type Config struct {
	Memory    MemoryConfig    `yaml:"memory"`
	Hotspot   HotspotConfig   `yaml:"hotspot"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Cache     CacheConfig     `yaml:"cache"`
	Debug     DebugConfig     `yaml:"debug"`
	LogLevel  string          `yaml:"log_level,omitempty"`
	ShowStats bool            `yaml:"show_stats,omitempty"`
}

// MemoryConfig sizes the loop variable arena.
type MemoryConfig struct {
	ArenaSize       int  `yaml:"arena_size"`        // initial bytes
	ArenaCeiling    int  `yaml:"arena_ceiling"`     // growth limit in bytes
	MaxNestingDepth int  `yaml:"max_nesting_depth"` // deeper loops are rejected
	Preallocate     bool `yaml:"preallocate"`       // false keeps every frame on the heap
}

// HotspotConfig controls when a loop becomes a compilation candidate.
type HotspotConfig struct {
	Threshold     int           `yaml:"threshold"`
	MinIterations int64         `yaml:"min_iterations"`
	MinElapsed    time.Duration `yaml:"min_elapsed"`
}

// OptimizerConfig enables strategies and fixes their parameters.
type OptimizerConfig struct {
	Disabled     []string `yaml:"disabled,omitempty"`
	UnrollFactor int      `yaml:"unroll_factor"`
	VectorWidth  int      `yaml:"vector_width"` // 0 selects the width from the host CPU
}

// CacheConfig bounds the compilation cache.
type CacheConfig struct {
	Capacity int `yaml:"capacity"`
}

// DebugConfig switches per-subsystem debug logging.
type DebugConfig struct {
	JIT    bool `yaml:"jit"`
	Memory bool `yaml:"memory"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Memory: MemoryConfig{
			ArenaSize:       64 * 1024,
			ArenaCeiling:    16 * 1024 * 1024,
			MaxNestingDepth: 64,
			Preallocate:     true,
		},
		Hotspot: HotspotConfig{
			Threshold:     50,
			MinIterations: 64,
			MinElapsed:    time.Millisecond,
		},
		Optimizer: OptimizerConfig{
			UnrollFactor: 4,
		},
		Cache: CacheConfig{
			Capacity: 256,
		},
		LogLevel: "warn",
	}
}

// Load reads a YAML file on top of the defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}
	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		return Config{}, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Parse decodes YAML from r on top of the defaults. Unknown keys are errors.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var strategyNames = map[string]bool{
	"hoisting":           true,
	"strength-reduction": true,
	"vectorization":      true,
	"unrolling":          true,
	"branch-hints":       true,
}

// Validate checks ranges and strategy names.
func (c Config) Validate() error {
	switch {
	case c.Memory.ArenaSize <= 0:
		return errors.Errorf("memory.arena_size must be positive, got %d", c.Memory.ArenaSize)
	case c.Memory.ArenaCeiling < c.Memory.ArenaSize:
		return errors.Errorf("memory.arena_ceiling %d is below arena_size %d", c.Memory.ArenaCeiling, c.Memory.ArenaSize)
	case c.Memory.MaxNestingDepth < 1:
		return errors.Errorf("memory.max_nesting_depth must be at least 1, got %d", c.Memory.MaxNestingDepth)
	case c.Hotspot.Threshold < 1:
		return errors.Errorf("hotspot.threshold must be at least 1, got %d", c.Hotspot.Threshold)
	case c.Hotspot.MinIterations < 0 || c.Hotspot.MinElapsed < 0:
		return errors.New("hotspot minimums must not be negative")
	case c.Optimizer.UnrollFactor < 1:
		return errors.Errorf("optimizer.unroll_factor must be at least 1, got %d", c.Optimizer.UnrollFactor)
	case c.Optimizer.VectorWidth < 0 || c.Optimizer.VectorWidth&(c.Optimizer.VectorWidth-1) != 0:
		return errors.Errorf("optimizer.vector_width must be 0 or a power of two, got %d", c.Optimizer.VectorWidth)
	case c.Cache.Capacity < 1:
		return errors.Errorf("cache.capacity must be at least 1, got %d", c.Cache.Capacity)
	}
	for _, name := range c.Optimizer.Disabled {
		if !strategyNames[strings.ToLower(name)] {
			return errors.Errorf("optimizer.disabled: unknown strategy %q", name)
		}
	}
	return nil
}
