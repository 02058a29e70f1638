package jit

import (
	"fmt"

	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/ast"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/hotspot"
	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/optimizer"
)

// Fingerprint is the structural identity of a compiled loop. Loops that
// differ only in variable names or source position share a fingerprint and
// therefore a compiled artifact.
type Fingerprint struct {
	Hash       uint64
	Kind       ast.LoopKind
	Tier       hotspot.Tier
	Strategies uint32
}

// NewFingerprint combines a loop shape with its classification and strategy set.
func NewFingerprint(shape *ast.Shape, tier hotspot.Tier, set optimizer.Set) Fingerprint {
	return Fingerprint{
		Hash:       shape.Hash,
		Kind:       shape.Kind,
		Tier:       tier,
		Strategies: set.Code(),
	}
}

func (f Fingerprint) String() string {
	return fmt.Sprintf("%016x/%s/%s/%s", f.Hash, f.Kind, f.Tier, optimizer.Set(f.Strategies))
}
