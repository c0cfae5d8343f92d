package model

import "fmt"

// Kind classifies a Type
type Kind int

const (
	Void Kind = iota
	Boolean
	Integer
	FloatingPoint
	Reference
	Array
)

// String returns the source-level spelling of the kind
func (k Kind) String() string {
	switch k {
	case Void:
		return "void"
	case Boolean:
		return "bool"
	case Integer:
		return "int"
	case FloatingPoint:
		return "double"
	case Reference:
		return "class"
	case Array:
		return "array"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Type is the type of a variable or expression.
// ClassName is set for Reference types, Elem for Array types.
type Type struct {
	Kind      Kind   `json:"kind"`
	ClassName string `json:"class,omitempty"`
	Elem      *Type  `json:"elem,omitempty"`
}

// Builtin types
var (
	TypeVoid  = &Type{Kind: Void}
	TypeBool  = &Type{Kind: Boolean}
	TypeInt   = &Type{Kind: Integer}
	TypeFloat = &Type{Kind: FloatingPoint}
)

// RefType returns the reference type for the named class
func RefType(className string) *Type {
	return &Type{Kind: Reference, ClassName: className}
}

// ArrayOf returns the array type with the given element type
func ArrayOf(elem *Type) *Type {
	return &Type{Kind: Array, Elem: elem}
}

// String renders the type the way it is written in source
func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	switch t.Kind {
	case Reference:
		return t.ClassName
	case Array:
		return t.Elem.String() + "[]"
	default:
		return t.Kind.String()
	}
}

// Equal reports whether two types are structurally identical
func (t *Type) Equal(other *Type) bool {
	if t == nil || other == nil {
		return t == other
	}
	if t.Kind != other.Kind {
		return false
	}
	switch t.Kind {
	case Reference:
		return t.ClassName == other.ClassName
	case Array:
		return t.Elem.Equal(other.Elem)
	default:
		return true
	}
}

// IsNumeric reports whether arithmetic is defined on the type
func (t *Type) IsNumeric() bool {
	return t != nil && (t.Kind == Integer || t.Kind == FloatingPoint)
}

// IsPrimitive reports whether values of the type are not heap objects
func (t *Type) IsPrimitive() bool {
	return t != nil && (t.Kind == Boolean || t.Kind == Integer || t.Kind == FloatingPoint)
}

// IsHeap reports whether values of the type are references into the object arena
func (t *Type) IsHeap() bool {
	return t != nil && (t.Kind == Reference || t.Kind == Array)
}

// Location identifies a node in the source text
type Location struct {
	Line   int `json:"line"`
	Column int `json:"col"`
}

// ID returns the stable location identifier used in verification results
func (l Location) ID() string {
	return fmt.Sprintf("%d:%d", l.Line, l.Column)
}

// IsValid reports whether the location points into the source
func (l Location) IsValid() bool {
	return l.Line > 0 && l.Column > 0
}
