package checker

import (
	"fmt"

	"github.com/lhaig/boundcheck/internal/model"
)

// Scope is one level of the name table: the members of a class, or the parameters
// and locals of a method nested inside it
type Scope struct {
	parent  *Scope
	symbols map[string]*model.Variable
}

// NewScope creates a new scope with an optional parent
func NewScope(parent *Scope) *Scope {
	return &Scope{
		parent:  parent,
		symbols: make(map[string]*model.Variable),
	}
}

// Define adds a variable to the current scope.
// Names must be unique across a method and the members of its class, so a name
// visible from a parent scope is a duplicate too.
func (s *Scope) Define(v *model.Variable) error {
	if existing := s.Resolve(v.Name); existing != nil && existing != v {
		return fmt.Errorf("%s %q conflicts with %s declared at %s", v.Kind, v.Name, existing.Kind, existing.Location.ID())
	}
	s.symbols[v.Name] = v
	return nil
}

// Resolve looks up a name, walking up the scope chain
func (s *Scope) Resolve(name string) *model.Variable {
	if v, ok := s.symbols[name]; ok {
		return v
	}
	if s.parent != nil {
		return s.parent.Resolve(name)
	}
	return nil
}

// ResolveLocal looks up a name only in the current scope
func (s *Scope) ResolveLocal(name string) *model.Variable {
	return s.symbols[name]
}
