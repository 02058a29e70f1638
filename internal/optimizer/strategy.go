// Package optimizer decides which transformations a compiled loop gets.
package optimizer

import (
	"strings"

	"github.com/pkg/errors"
)

// Strategy is one loop transformation
type Strategy uint8

// Strategies in priority order
const (
	Hoisting Strategy = iota
	StrengthReduction
	Vectorization
	Unrolling
	BranchHints

	numStrategies
)

var strategyNames = [...]string{
	Hoisting:          "hoisting",
	StrengthReduction: "strength-reduction",
	Vectorization:     "vectorization",
	Unrolling:         "unrolling",
	BranchHints:       "branch-hints",
}

func (s Strategy) String() string {
	if s < numStrategies {
		return strategyNames[s]
	}
	return "unknown"
}

// ParseStrategy resolves a strategy by its configuration name.
func ParseStrategy(name string) (Strategy, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range strategyNames {
		if n == name {
			return Strategy(i), nil
		}
	}
	return 0, errors.Errorf("unknown strategy %q", name)
}

// Set is an ordered set of strategies; iteration follows priority order.
type Set uint32

func (s Set) Has(st Strategy) bool    { return s&(1<<st) != 0 }
func (s Set) With(st Strategy) Set    { return s | 1<<st }
func (s Set) Without(st Strategy) Set { return s &^ (1 << st) }
func (s Set) Empty() bool             { return s == 0 }

// Code is the stable numeric form used in fingerprints.
func (s Set) Code() uint32 { return uint32(s) }

// Strategies lists the members in priority order.
func (s Set) Strategies() []Strategy {
	var out []Strategy
	for st := Strategy(0); st < numStrategies; st++ {
		if s.Has(st) {
			out = append(out, st)
		}
	}
	return out
}

func (s Set) String() string {
	if s.Empty() {
		return "none"
	}
	parts := make([]string, 0, numStrategies)
	for _, st := range s.Strategies() {
		parts = append(parts, st.String())
	}
	return strings.Join(parts, "+")
}

// ParseSet builds a set from configuration names.
func ParseSet(names []string) (Set, error) {
	var s Set
	for _, n := range names {
		st, err := ParseStrategy(n)
		if err != nil {
			return 0, err
		}
		s = s.With(st)
	}
	return s, nil
}
