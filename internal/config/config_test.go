package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kr/pretty"
)

func TestParseOverridesDefaults(t *testing.T) {
	const doc = `
memory:
  arena_size: 4096
  max_nesting_depth: 8
hotspot:
  threshold: 10
  min_elapsed: 5ms
optimizer:
  disabled: [vectorization, Branch-Hints]
  vector_width: 4
show_stats: true
`
	cfg, err := Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}

	want := Default()
	want.Memory.ArenaSize = 4096
	want.Memory.MaxNestingDepth = 8
	want.Hotspot.Threshold = 10
	want.Hotspot.MinElapsed = 5 * time.Millisecond
	want.Optimizer.Disabled = []string{"vectorization", "Branch-Hints"}
	want.Optimizer.VectorWidth = 4
	want.ShowStats = true

	if diff := pretty.Diff(cfg, want); len(diff) > 0 {
		t.Errorf("config differs from expected:\n%s", strings.Join(diff, "\n"))
	}
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	if diff := pretty.Diff(cfg, Default()); len(diff) > 0 {
		t.Errorf("empty document changed defaults: %v", diff)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown key", "cache:\n  size: 3\n", "field size not found"},
		{"bad duration", "hotspot:\n  min_elapsed: soon\n", "decode config"},
		{"ceiling below size", "memory:\n  arena_size: 1024\n  arena_ceiling: 512\n", "arena_ceiling"},
		{"unknown strategy", "optimizer:\n  disabled: [inlining]\n", "unknown strategy"},
		{"width not power of two", "optimizer:\n  vector_width: 3\n", "vector_width"},
		{"zero threshold", "hotspot:\n  threshold: 0\n", "threshold"},
		{"zero capacity", "cache:\n  capacity: 0\n", "capacity"},
		{"zero depth", "memory:\n  max_nesting_depth: 0\n", "max_nesting_depth"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %v, want one mentioning %q", err, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loop.yaml")
	if err := os.WriteFile(path, []byte("cache:\n  capacity: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Cache.Capacity != 2 {
		t.Errorf("capacity %d", cfg.Cache.Capacity)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file loaded")
	}
}
