package interp

import (
	"github.com/pkg/errors"

	"github.com/HelloAIXIAOJI/CodeNothing-ghw/internal/value"
)

// ErrUndefined is returned when assigning or reading an unbound name.
var ErrUndefined = errors.New("undefined variable")

// Undefined builds the error for an unbound name.
func Undefined(name string) error {
	return errors.Wrap(ErrUndefined, name)
}

// Scope is a map-backed environment with lexical parent lookup.
type Scope struct {
	vars   map[string]value.Value
	parent value.Environment
}

// NewScope creates a scope nested in parent. A nil parent makes a global scope.
func NewScope(parent value.Environment) *Scope {
	return &Scope{
		vars:   make(map[string]value.Value),
		parent: parent,
	}
}

// Lookup searches the current scope, then the parents.
func (s *Scope) Lookup(name string) (value.Value, bool) {
	if v, ok := s.vars[name]; ok {
		return v, true
	}
	if s.parent != nil {
		return s.parent.Lookup(name)
	}
	return value.Nil, false
}

// Assign updates the nearest binding of name.
func (s *Scope) Assign(name string, v value.Value) error {
	if _, ok := s.vars[name]; ok {
		s.vars[name] = v
		return nil
	}
	if s.parent != nil {
		return s.parent.Assign(name, v)
	}
	return Undefined(name)
}

// Declare binds name in this scope, shadowing any outer binding.
func (s *Scope) Declare(name string, v value.Value) {
	s.vars[name] = v
}

// Len returns the number of bindings held directly by this scope.
func (s *Scope) Len() int { return len(s.vars) }
