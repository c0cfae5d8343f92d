package model

import "maps"

// ViolationKind classifies a reported property failure
type ViolationKind int

const (
	InvariantViolation ViolationKind = iota
	RequireViolation
	EnsureViolation
	AssumeViolation
)

// String returns the string representation of the violation kind
func (k ViolationKind) String() string {
	switch k {
	case InvariantViolation:
		return "invariant"
	case RequireViolation:
		return "require"
	case EnsureViolation:
		return "ensure"
	case AssumeViolation:
		return "assume"
	default:
		return "unknown"
	}
}

// Violation is one falsified property. Sequence is the public call order that reaches
// it and Counterexample the solver model restricted to fields and call arguments.
type Violation struct {
	Kind           ViolationKind     `json:"kind"`
	Method         string            `json:"method,omitempty"`
	Location       Location          `json:"loc"`
	Text           string            `json:"text"`
	Message        string            `json:"message"`
	Sequence       []string          `json:"sequence,omitempty"`
	Counterexample map[string]string `json:"counterexample,omitempty"`
}

// ClassModel is one class of the restricted language plus its verification outputs.
// A model is replaced wholesale when its source changes; only the outputs are written
// after construction, and only on clones owned by the model manager.
type ClassModel struct {
	Name         string        `json:"name"`
	Location     Location      `json:"loc"`
	Properties   []*Variable   `json:"properties"`
	Fields       []*Variable   `json:"fields"`
	Methods      []*Method     `json:"methods"`
	Invariants   []*Assertion  `json:"invariants"`
	Unsupported  *Unsupported  `json:"unsupported"`
	Dependencies []*ClassModel `json:"dependencies,omitempty"`

	IsVerified          bool        `json:"is_verified"`
	IsInvariantViolated bool        `json:"is_invariant_violated"`
	InvariantViolations []Violation `json:"invariant_violations,omitempty"`
	RequireViolations   []Violation `json:"require_violations,omitempty"`
	EnsureViolations    []Violation `json:"ensure_violations,omitempty"`
	AssumeViolations    []Violation `json:"assume_violations,omitempty"`
}

// NewClassModel returns an empty model with an empty Unsupported accumulator
func NewClassModel(name string) *ClassModel {
	return &ClassModel{Name: name, Unsupported: &Unsupported{}}
}

// Members returns properties followed by fields
func (c *ClassModel) Members() []*Variable {
	members := make([]*Variable, 0, len(c.Properties)+len(c.Fields))
	members = append(members, c.Properties...)
	return append(members, c.Fields...)
}

// Member finds a property or field by name
func (c *ClassModel) Member(name string) *Variable {
	for _, m := range c.Members() {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// Method finds a method by name
func (c *ClassModel) Method(name string) *Method {
	for _, m := range c.Methods {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// PublicMethods returns the public entry points in declaration order
func (c *ClassModel) PublicMethods() []*Method {
	var public []*Method
	for _, m := range c.Methods {
		if m.IsPublic() {
			public = append(public, m)
		}
	}
	return public
}

// Class resolves a class name to this model or one of its dependencies
func (c *ClassModel) Class(name string) *ClassModel {
	if c.Name == name || shortName(c.Name) == name {
		return c
	}
	for _, d := range c.Dependencies {
		if d.Name == name || shortName(d.Name) == name {
			return d
		}
	}
	return nil
}

func shortName(qualified string) string {
	for i := len(qualified) - 1; i >= 0; i-- {
		if qualified[i] == '.' {
			return qualified[i+1:]
		}
	}
	return qualified
}

// IsEligible reports whether the class can be verified at all
func (c *ClassModel) IsEligible() bool {
	return c.Unsupported.IsEmpty()
}

// ResetResults clears every verification output
func (c *ClassModel) ResetResults() {
	c.IsVerified = false
	c.IsInvariantViolated = false
	c.InvariantViolations = nil
	c.RequireViolations = nil
	c.EnsureViolations = nil
	c.AssumeViolations = nil
}

// AddViolation files a violation under its kind
func (c *ClassModel) AddViolation(v Violation) {
	switch v.Kind {
	case InvariantViolation:
		c.IsInvariantViolated = true
		c.InvariantViolations = append(c.InvariantViolations, v)
	case RequireViolation:
		c.RequireViolations = append(c.RequireViolations, v)
	case EnsureViolation:
		c.EnsureViolations = append(c.EnsureViolations, v)
	case AssumeViolation:
		c.AssumeViolations = append(c.AssumeViolations, v)
	}
}

// Clone returns a copy whose outputs and tables can be changed without affecting c.
// Methods, variables and statements are immutable and therefore shared.
func (c *ClassModel) Clone() *ClassModel {
	clone := *c
	clone.Properties = append([]*Variable(nil), c.Properties...)
	clone.Fields = append([]*Variable(nil), c.Fields...)
	clone.Methods = append([]*Method(nil), c.Methods...)
	clone.Invariants = append([]*Assertion(nil), c.Invariants...)
	clone.Dependencies = append([]*ClassModel(nil), c.Dependencies...)
	clone.Unsupported = c.Unsupported.Clone()
	clone.InvariantViolations = cloneViolations(c.InvariantViolations)
	clone.RequireViolations = cloneViolations(c.RequireViolations)
	clone.EnsureViolations = cloneViolations(c.EnsureViolations)
	clone.AssumeViolations = cloneViolations(c.AssumeViolations)
	return &clone
}

func cloneViolations(vs []Violation) []Violation {
	if vs == nil {
		return nil
	}
	out := make([]Violation, len(vs))
	for i, v := range vs {
		v.Sequence = append([]string(nil), v.Sequence...)
		v.Counterexample = maps.Clone(v.Counterexample)
		out[i] = v
	}
	return out
}

// View is the read-only face of a class model handed to host integrations
type View interface {
	ClassName() string
	Verified() bool
	InvariantViolated() bool
	Eligible() bool
	Violations() []Violation
	UnsupportedElements() []UnsupportedElement
}

// ClassName implements View
func (c *ClassModel) ClassName() string { return c.Name }

// Verified implements View
func (c *ClassModel) Verified() bool { return c.IsVerified }

// InvariantViolated implements View
func (c *ClassModel) InvariantViolated() bool { return c.IsInvariantViolated }

// Eligible implements View
func (c *ClassModel) Eligible() bool { return c.IsEligible() }

// Violations implements View
func (c *ClassModel) Violations() []Violation {
	var all []Violation
	all = append(all, c.InvariantViolations...)
	all = append(all, c.RequireViolations...)
	all = append(all, c.EnsureViolations...)
	all = append(all, c.AssumeViolations...)
	return all
}

// UnsupportedElements implements View
func (c *ClassModel) UnsupportedElements() []UnsupportedElement {
	return c.Unsupported.All()
}
