package model

import "fmt"

// VariableKind distinguishes the declaration site of a variable
type VariableKind int

const (
	FieldVar VariableKind = iota
	PropertyVar
	ParameterVar
	LocalVar
)

// String returns the string representation of the variable kind
func (k VariableKind) String() string {
	switch k {
	case FieldVar:
		return "field"
	case PropertyVar:
		return "property"
	case ParameterVar:
		return "parameter"
	case LocalVar:
		return "local"
	default:
		return "unknown"
	}
}

// ResultName is the name of the synthesized local holding a method's return value
const ResultName = "Result"

// Variable is a field, property, parameter or local.
// Owner is the declaring class; Method is set for parameters and locals.
type Variable struct {
	Name        string       `json:"name"`
	Kind        VariableKind `json:"kind"`
	Type        *Type        `json:"type"`
	Initializer Expression   `json:"-"`
	Location    Location     `json:"loc"`
	Owner       string       `json:"owner"`
	Method      string       `json:"method,omitempty"`
	IsPublic    bool         `json:"public,omitempty"`
	IsResult    bool         `json:"result,omitempty"`
}

// IsMember reports whether the variable lives on an object instance
func (v *Variable) IsMember() bool {
	return v.Kind == FieldVar || v.Kind == PropertyVar
}

// ScopedName returns the alias key of the variable. Members are keyed by the owning
// instance index, parameters and locals by their host method.
func (v *Variable) ScopedName(instance int) string {
	if v.IsMember() {
		return fmt.Sprintf("%s#%d:%s", v.Owner, instance, v.Name)
	}
	return fmt.Sprintf("%s::%s-%s", v.Owner, v.Method, v.Name)
}

// String returns a human-readable name for reports
func (v *Variable) String() string {
	if v.IsMember() || v.Method == "" {
		return v.Name
	}
	return v.Method + "." + v.Name
}

// AccessModifier is the visibility of a method
type AccessModifier int

const (
	Private AccessModifier = iota
	Public
)

// String returns the keyword for the modifier
func (a AccessModifier) String() string {
	if a == Public {
		return "public"
	}
	return "private"
}

// Method is a method of a class model. Methods are never mutated after the front-end
// built them; new model revisions share or clone them.
type Method struct {
	Name       string         `json:"name"`
	Access     AccessModifier `json:"access"`
	IsStatic   bool           `json:"static,omitempty"`
	Parameters []*Variable    `json:"parameters"`
	Locals     []*Variable    `json:"locals"`
	ReturnType *Type          `json:"return_type"`
	Body       []Statement    `json:"-"`
	Requires   []*Assertion   `json:"requires"`
	Ensures    []*Assertion   `json:"ensures"`
	Location   Location       `json:"loc"`
}

// IsPublic reports whether the method is a public entry point
func (m *Method) IsPublic() bool {
	return m.Access == Public
}

// Result returns the synthesized Result local, or nil for void methods
func (m *Method) Result() *Variable {
	for _, l := range m.Locals {
		if l.IsResult {
			return l
		}
	}
	return nil
}

// Lookup finds a parameter or local by name
func (m *Method) Lookup(name string) *Variable {
	for _, p := range m.Parameters {
		if p.Name == name {
			return p
		}
	}
	for _, l := range m.Locals {
		if l.Name == name {
			return l
		}
	}
	return nil
}

// AssertionKind distinguishes the three kinds of contract annotations
type AssertionKind int

const (
	RequireAssertion AssertionKind = iota
	EnsureAssertion
	InvariantAssertion
)

// String returns the comment keyword for the assertion kind
func (k AssertionKind) String() string {
	switch k {
	case RequireAssertion:
		return "Require"
	case EnsureAssertion:
		return "Ensure"
	case InvariantAssertion:
		return "Invariant"
	default:
		return "unknown"
	}
}

// Assertion is a parsed contract annotation
type Assertion struct {
	Kind     AssertionKind `json:"kind"`
	Text     string        `json:"text"`
	Location Location      `json:"loc"`
	Expr     Expression    `json:"-"`
}
